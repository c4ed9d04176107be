package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GarcesSebastian/3js-server/internal"
)

func main() {
	// 解析命令行參數（優先於環境變數）
	var (
		port      = flag.Int("port", 0, "服務器端口（0 表示使用 PORT 環境變數或預設值）")
		logLevel  = flag.String("log-level", "info", "日誌級別 (debug, info, warn, error)")
		logFormat = flag.String("log-format", "text", "日誌格式 (text, json)")
	)
	flag.Parse()

	// 設置日誌
	logger := setupLogger(*logLevel, *logFormat)

	// 載入配置
	cfg := internal.LoadConfig()
	if *port > 0 {
		cfg.Port = *port
	}

	// 創建會話註冊中心
	registry := internal.NewRegistry(cfg, logger)

	// 創建 WebSocket Hub
	wsHub := internal.NewWebSocketHub(registry, cfg, logger)

	// 創建 HTTP 處理器
	handler := internal.NewHandler(registry, logger)

	// 設置路由
	mux := http.NewServeMux()

	// HTTP API 路由
	mux.Handle("/", handler.Routes())

	// WebSocket 路由（直接掛載，升級需要 http.Hijacker）
	mux.HandleFunc("/ws", wsHub.ServeWS)

	// 創建 HTTP 服務器
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// 啟動服務器
	go func() {
		logger.Info("遊戲會話服務器啟動",
			"port", cfg.Port,
			"max_payload_bytes", cfg.MaxPayloadBytes,
			"log_level", *logLevel,
			"log_format", *logFormat)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	// 優雅關閉
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	// 停止 WebSocket Hub（斷開所有客戶端）
	wsHub.Stop()

	// 停止註冊中心（停止拋射物清掃）
	registry.Stop()

	logger.Info("服務器已關閉")
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug", // debug 模式顯示源碼位置
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
