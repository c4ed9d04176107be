package internal

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 進程配置（環境變數導出，帶預設值）
type Config struct {
	Port                    int           // 監聽端口
	Origins                 []string      // 允許的 CORS 來源；空表示不限制
	MaxPayloadBytes         int           // 單條訊息序列化後的大小上限
	RateLimitWindow         time.Duration // 事件頻率統計視窗
	RateLimitMax            int           // 視窗內單一事件的最大次數；0 表示停用
	ProjectileSweepInterval time.Duration // 拋射物過期清掃間隔
}

// DefaultConfig 預設配置
//
// RateLimitMax 預設 0（只追蹤不攔截）：高頻的 move 事件
// 在任何合理的視窗上限下都會誤傷，啟用攔截是部署方的
// 策略決定。
func DefaultConfig() *Config {
	return &Config{
		Port:                    4000,
		Origins:                 nil,
		MaxPayloadBytes:         50000,
		RateLimitWindow:         15 * time.Minute,
		RateLimitMax:            0,
		ProjectileSweepInterval: time.Second,
	}
}

// LoadConfig 從環境變數載入配置，未設置的項目使用預設值
func LoadConfig() *Config {
	cfg := DefaultConfig()

	cfg.Port = envInt("PORT", cfg.Port)
	cfg.MaxPayloadBytes = envInt("MAX_PAYLOAD_BYTES", cfg.MaxPayloadBytes)
	cfg.RateLimitMax = envInt("RATE_LIMIT_MAX", cfg.RateLimitMax)
	cfg.RateLimitWindow = envDuration("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)
	cfg.ProjectileSweepInterval = envDuration("PROJECTILE_SWEEP_INTERVAL", cfg.ProjectileSweepInterval)

	if origins := os.Getenv("ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.Origins = append(cfg.Origins, origin)
			}
		}
	}

	return cfg
}

// envInt 讀取整數環境變數
func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// envDuration 讀取時長環境變數（Go 時長格式，如 "15m"、"1s"）
func envDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
