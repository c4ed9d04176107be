package internal

import (
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   如何在訊息進入業務處理之前攔截濫用，並追蹤每個來源 IP 的連接？
//
// 核心挑戰：
//   1. 負載炸彈：超大訊息在反序列化 / 廣播時放大成本
//   2. 連接洪水：單一 IP 開大量連接佔用資源
//   3. 事件洪水：單一連接高頻重發同一事件
//
// 設計方案：
//   ✅ 調度前的大小檢查 - 超限即強制斷線，訊息不進 handler
//   ✅ IP -> 連接集合映射 - 連接時登記、斷線時修剪，供策略層消費
//   ✅ 滑動視窗事件計數 - 按（連接, 事件）記錄時間戳，視窗外修剪

// Guard 濫用防護
//
// 大小檢查是內聯攔截器：每條入站訊息在分派前經過它；
// IP 追蹤在訊息路徑之外維護，本核心不對它施加上限，
// 只暴露結構給策略消費。
type Guard struct {
	maxPayload int
	rateWindow time.Duration
	rateLimit  int // 0 表示停用攔截（只追蹤）

	mu              sync.Mutex
	connectionsByIP map[string]map[string]struct{} // 來源位址 -> 連接 ID 集合
	eventCounts     map[string]map[string][]time.Time // 連接 ID -> 事件 -> 時間戳
	logger          *slog.Logger
}

// NewGuard 創建濫用防護
func NewGuard(cfg *Config, logger *slog.Logger) *Guard {
	return &Guard{
		maxPayload:      cfg.MaxPayloadBytes,
		rateWindow:      cfg.RateLimitWindow,
		rateLimit:       cfg.RateLimitMax,
		connectionsByIP: make(map[string]map[string]struct{}),
		eventCounts:     make(map[string]map[string][]time.Time),
		logger:          logger,
	}
}

// CheckPayload 檢查序列化後的訊息大小
//
// 超限時記錄來源位址並返回 false——調用方必須強制關閉該連接，
// 訊息不得進入任何 handler。
func (g *Guard) CheckPayload(size int, addr string) bool {
	if size <= g.maxPayload {
		return true
	}

	g.logger.Error("負載超過上限",
		"bytes", size,
		"limit", g.maxPayload,
		"addr", addr)
	return false
}

// AllowEvent 滑動視窗事件頻率檢查
//
// 按（連接, 事件）記錄時間戳，先修剪視窗外的記錄再計數；
// rateLimit 為 0 時只記錄不攔截。
func (g *Guard) AllowEvent(connID, event string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	events, ok := g.eventCounts[connID]
	if !ok {
		events = make(map[string][]time.Time)
		g.eventCounts[connID] = events
	}

	now := time.Now()
	windowStart := now.Add(-g.rateWindow)

	// 修剪視窗外的記錄
	timestamps := events[event]
	validIdx := len(timestamps)
	for i, ts := range timestamps {
		if ts.After(windowStart) {
			validIdx = i
			break
		}
	}
	timestamps = timestamps[validIdx:]

	if g.rateLimit > 0 && len(timestamps) >= g.rateLimit {
		events[event] = timestamps
		g.logger.Warn("事件頻率超過上限",
			"conn_id", connID,
			"event", event,
			"window", g.rateWindow,
			"limit", g.rateLimit)
		return false
	}

	events[event] = append(timestamps, now)
	return true
}

// TrackConnection 登記來源位址下的連接
func (g *Guard) TrackConnection(addr, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.connectionsByIP[addr] == nil {
		g.connectionsByIP[addr] = make(map[string]struct{})
	}
	g.connectionsByIP[addr][connID] = struct{}{}
}

// ReleaseConnection 移除連接登記；位址下沒有連接時刪除整個條目
func (g *Guard) ReleaseConnection(addr, connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if connections, ok := g.connectionsByIP[addr]; ok {
		delete(connections, connID)
		if len(connections) == 0 {
			delete(g.connectionsByIP, addr)
		}
	}
}

// ClearCounters 清除連接的事件計數（斷線清理用）
func (g *Guard) ClearCounters(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.eventCounts, connID)
}

// ConnectionsFromIP 來源位址下的連接數（供策略層查詢）
func (g *Guard) ConnectionsFromIP(addr string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.connectionsByIP[addr])
}

// TrackedIPs 追蹤中的來源位址數量（監控用）
func (g *Guard) TrackedIPs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.connectionsByIP)
}
