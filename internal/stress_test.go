package internal_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GarcesSebastian/3js-server/internal"
	"github.com/stretchr/testify/assert"
)

// TestStress_ConcurrentConnections 測試併發連接與斷線
//
// Registry 的互斥鎖序列化所有回調：任意交錯的連接 / 加入 / 斷線
// 之後，成員集必須回到空且不殘留追蹤條目。
func TestStress_ConcurrentConnections(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	reg := newTestRegistry(t)

	const (
		numGoroutines   = 100
		cyclesPerWorker = 10
	)

	var (
		wg         sync.WaitGroup
		cycleCount int32
	)

	start := time.Now()

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for j := 0; j < cyclesPerWorker; j++ {
				connID := fmt.Sprintf("conn_%d_%d", workerID, j)
				userID := fmt.Sprintf("玩家_%d", workerID)

				conn := &fakeConn{id: connID, addr: fmt.Sprintf("203.0.113.%d", workerID%250)}
				reg.OnConnect(conn)

				payload, _ := json.Marshal(internal.JoinPayload{
					ID:       userID,
					Username: userID,
					Health:   100,
				})
				reg.OnMessage(connID, internal.EventPlayerJoin, payload)

				reg.OnDisconnect(connID)
				atomic.AddInt32(&cycleCount, 1)
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)

	t.Logf("併發連接壓力測試結果:")
	t.Logf("  週期數: %d", cycleCount)
	t.Logf("  耗時: %v", duration)
	t.Logf("  速率: %.2f cycles/sec", float64(cycleCount)/duration.Seconds())

	assert.Equal(t, int32(numGoroutines*cyclesPerWorker), cycleCount)

	// 全部斷線後不殘留任何狀態
	stats := reg.Stats()
	assert.Equal(t, 0, stats["sessions"])
	assert.Equal(t, 0, stats["lobby"])
	assert.Equal(t, 0, stats["game"])
	assert.Equal(t, 0, stats["tracked_ips"])
}

// TestStress_ConcurrentDispatch 測試併發事件調度
//
// 每次 handler 調用都是原子的：對同一目標的併發命中不會交錯，
// 最終血量必須等於 max(0, 初始血量 - 命中數 × 傷害)。
func TestStress_ConcurrentDispatch(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	reg := newTestRegistry(t)

	joinGame(t, reg, "conn_target", "目標", 100)

	const numShooters = 50

	// 每個射手預先創建自己的拋射物（傷害 1）
	for i := 0; i < numShooters; i++ {
		shooterID := fmt.Sprintf("conn_%d", i)
		joinGame(t, reg, shooterID, fmt.Sprintf("射手_%d", i), 100)
		sendEvent(t, reg, shooterID, internal.EventProjectileCreate, internal.ProjectileCreatePayload{
			ID:      fmt.Sprintf("proj_%d", i),
			OwnerID: fmt.Sprintf("射手_%d", i),
			Damage:  1,
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < numShooters; i++ {
		wg.Add(1)
		go func(shooter int) {
			defer wg.Done()

			raw, _ := json.Marshal(map[string]any{
				"event": internal.EventProjectileHit,
				"data": internal.ProjectileHitPayload{
					ID:       fmt.Sprintf("proj_%d", shooter),
					OwnerID:  fmt.Sprintf("射手_%d", shooter),
					TargetID: "目標",
				},
			})
			reg.Dispatch(fmt.Sprintf("conn_%d", shooter), raw)
		}(i)
	}
	wg.Wait()

	// 50 次 1 點傷害的命中全部結算，沒有丟失更新
	session, ok := reg.Game().SessionByUserID("目標")
	assert.True(t, ok)
	assert.Equal(t, 50.0, session.User.Health)
	assert.Equal(t, 0, reg.Projectiles().Len())
}
