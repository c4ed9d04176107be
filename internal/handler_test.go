package internal_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GarcesSebastian/3js-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHandler_Health 測試健康檢查端點
func TestHandler_Health(t *testing.T) {
	reg := newTestRegistry(t)
	handler := internal.NewHandler(reg, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

// TestHandler_Stats 測試統計端點
func TestHandler_Stats(t *testing.T) {
	reg := newTestRegistry(t)
	joinGame(t, reg, "conn_001", "玩家一", 100)

	handler := internal.NewHandler(reg, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1.0, body["sessions"]) // JSON 數字解碼為 float64
	assert.Equal(t, 1.0, body["game"])
	assert.Equal(t, 0.0, body["projectiles"])
}

// TestHandler_MethodNotAllowed 測試路由只接受 GET
func TestHandler_MethodNotAllowed(t *testing.T) {
	reg := newTestRegistry(t)
	handler := internal.NewHandler(reg, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
