package internal

import (
	"log/slog"
	"sync"
	"time"
)

// Projectile 短暫存活的拋射物記錄
//
// ID 由客戶端提供並作為權威鍵；CreatedAt 由服務器在創建時指定，
// 客戶端提供的值會被覆蓋。服務器只鏡像客戶端回報的狀態，
// 不做任何物理驗證——信任邊界是明確的設計決定。
//
// OwnerID 是對擁有者的弱引用（只存邏輯玩家 ID）：
// 擁有者斷線不會級聯刪除其拋射物。
type Projectile struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"ownerId"`
	Position  Vector3 `json:"position"`
	Rotation  Vector3 `json:"rotation"`
	Speed     float64 `json:"speed"`
	Damage    float64 `json:"damage"`
	Radius    float64 `json:"radius"`
	TTL       float64 `json:"ttl"` // 毫秒；0 表示不過期
	CreatedAt int64   `json:"createdAt"`
}

// NewProjectile 從創建負載實例化拋射物，創建時間取服務器時鐘
func NewProjectile(payload ProjectileCreatePayload) *Projectile {
	return &Projectile{
		ID:        payload.ID,
		OwnerID:   payload.OwnerID,
		Position:  payload.Position,
		Rotation:  payload.Rotation,
		Speed:     payload.Speed,
		Damage:    payload.Damage,
		Radius:    payload.Radius,
		TTL:       payload.TTL,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// UpdateMove 更新位置與旋轉
func (p *Projectile) UpdateMove(position, rotation Vector3) {
	p.Position = position
	p.Rotation = rotation
}

// Expired 是否已超過存活時間
func (p *Projectile) Expired(now time.Time) bool {
	if p.TTL <= 0 {
		return false
	}
	return now.UnixMilli() > p.CreatedAt+int64(p.TTL)
}

// ProjectileStore 拋射物註冊表
//
// 以 ID 為鍵的簡單映射：核心的調用模式只需要按 ID 查找，
// 不需要其他索引。實體只在創建事件與銷毀事件（death 或
// 命中結算）之間存在於表中——沒有實體能在一次命中後存活。
//
// 資源回收：客戶端不保證對每個實體發送 death，沒有清掃程序
// 的話過期實體會一直佔用內存，所以按 TTL 定期清掃
// （ticker + stopCh + WaitGroup）。
type ProjectileStore struct {
	mu          sync.RWMutex
	projectiles map[string]*Projectile
	logger      *slog.Logger
	onExpire    func(*Projectile) // 清掃移除實體後的通知（在 store 鎖外調用）
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// NewProjectileStore 創建拋射物註冊表並啟動清掃 goroutine
//
// sweepInterval <= 0 時不啟動清掃（測試中常用）。
func NewProjectileStore(logger *slog.Logger, sweepInterval time.Duration, onExpire func(*Projectile)) *ProjectileStore {
	store := &ProjectileStore{
		projectiles: make(map[string]*Projectile),
		logger:      logger,
		onExpire:    onExpire,
		stopCh:      make(chan struct{}),
	}

	if sweepInterval > 0 {
		store.wg.Add(1)
		go store.sweepLoop(sweepInterval)
	}

	return store
}

// Put 插入或覆寫實體
func (s *ProjectileStore) Put(projectile *Projectile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectiles[projectile.ID] = projectile
}

// Get 按 ID 查找
func (s *ProjectileStore) Get(id string) (*Projectile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projectile, ok := s.projectiles[id]
	return projectile, ok
}

// Delete 移除實體；對不存在的 ID 是 no-op
func (s *ProjectileStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projectiles, id)
}

// Len 現存實體數量
func (s *ProjectileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projectiles)
}

// Snapshot 現存實體快照（給新加入玩家的初始同步）
func (s *ProjectileStore) Snapshot() []*Projectile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projectiles := make([]*Projectile, 0, len(s.projectiles))
	for _, projectile := range s.projectiles {
		projectiles = append(projectiles, projectile)
	}
	return projectiles
}

// sweepLoop 定期清掃過期實體
func (s *ProjectileStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep 執行一次清掃（公開方法供測試使用）
//
// 鎖序約定：先在 store 鎖內收集並移除過期實體，釋放鎖後才調用
// onExpire——onExpire 會取 Registry 鎖做廣播，而 Registry 的
// handler 持 Registry 鎖調用 store，兩條路徑不可嵌套同一對鎖。
func (s *ProjectileStore) Sweep() {
	now := time.Now()

	s.mu.Lock()
	var expired []*Projectile
	for id, projectile := range s.projectiles {
		if projectile.Expired(now) {
			expired = append(expired, projectile)
			delete(s.projectiles, id)
		}
	}
	s.mu.Unlock()

	for _, projectile := range expired {
		s.logger.Debug("拋射物已過期清掃",
			"id", projectile.ID,
			"owner_id", projectile.OwnerID,
			"ttl_ms", projectile.TTL)
		if s.onExpire != nil {
			s.onExpire(projectile)
		}
	}
}

// Stop 停止清掃 goroutine
func (s *ProjectileStore) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
