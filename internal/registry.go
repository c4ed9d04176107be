package internal

import (
	"encoding/json"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
)

// 系統設計問題：
//   如何作為權威中繼協調多人對戰會話：接收多條並發的雙向客戶端
//   通道，按房間分組，向房間成員鏡像輕量遊戲狀態？
//
// 核心挑戰：
//   1. 成員一致性：Session 與 Room 的雙向引用必須同步維護
//   2. 身份去重：同一邏輯玩家 ID 在房間內最多一個 Session
//   3. 廣播順序：私有回覆必須反映變更生效之後的狀態
//   4. 失敗局部化：壞訊息只損害發送者自己的意圖，不碰全局狀態
//
// 並發模型（設計關鍵）：
//   正確性論證建立在單線程事件循環的語義上：handler 整體執行、
//   不被搶佔。在多線程運行時用單一 Registry 互斥鎖提供同樣的
//   原子性：OnConnect / OnMessage / OnDisconnect 整體持鎖執行，
//   等價於「每個 Registry 一條序列化調度隊列」。
//   同一連接的訊息由其 readPump 同步調度，保證到達順序；
//   不同連接的訊息任意交錯，但每次 handler 調用都是原子的——
//   對同一目標的兩次近同時命中，第二次看到的是第一次留下的血量。
//   handler 內部不做阻塞 I/O，鎖的持有時間有界。

// 遊戲常數
const (
	defaultHealth = 100.0 // 血量未設置時的預設值
	defaultDamage = 10.0  // 拋射物傷害未設置時的預設值
	worldBound    = 50.0  // 重生位置的世界邊界（X/Z 軸 ±worldBound）
)

// Registry 會話註冊表（連接管理器）
//
// 頂層協調者：擁有所有 Session、兩個常駐房間（lobby / game）、
// 拋射物註冊表、濫用防護，以及對入站訊息做出反應並產生廣播的
// 事件分派表。
//
// 顯式構造、依賴注入——不用進程級單例，便於在測試中建立多個
// 互相隔離的實例。
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session // 連接 ID -> Session
	lobby       *Room
	game        *Room
	projectiles *ProjectileStore
	guard       *Guard
	cfg         *Config
	logger      *slog.Logger
}

// NewRegistry 創建會話註冊表
//
// 兩個常駐房間在這裡創建一次，存活至進程結束。
func NewRegistry(cfg *Config, logger *slog.Logger) *Registry {
	registry := &Registry{
		sessions: make(map[string]*Session),
		lobby:    NewRoom("lobby"),
		game:     NewRoom("game"),
		guard:    NewGuard(cfg, logger),
		cfg:      cfg,
		logger:   logger,
	}
	registry.projectiles = NewProjectileStore(logger, cfg.ProjectileSweepInterval, registry.expireProjectile)

	logger.Info("會話註冊表已初始化",
		"lobby_id", registry.lobby.ID(),
		"game_id", registry.game.ID())

	return registry
}

// Lobby 大廳房間
func (reg *Registry) Lobby() *Room {
	return reg.lobby
}

// Game 遊戲房間
func (reg *Registry) Game() *Room {
	return reg.game
}

// Projectiles 拋射物註冊表
func (reg *Registry) Projectiles() *ProjectileStore {
	return reg.projectiles
}

// Guard 濫用防護
func (reg *Registry) Guard() *Guard {
	return reg.guard
}

// OnConnect 傳輸層連接回調
//
// 分配一個尚無玩家身份的 Session、按連接 ID 註冊、自動加入大廳、
// 在來源位址下登記連接，然後向新連接發送遊戲房間的現有名單。
func (reg *Registry) OnConnect(conn Conn) *Session {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	session := NewSession(conn)
	reg.sessions[session.ID()] = session
	session.Join(reg.lobby)
	reg.guard.TrackConnection(session.RemoteAddr(), session.ID())

	session.Emit(EventConnected, ConnectedData{
		ID:      session.ID(),
		Players: reg.gameRosterLocked(nil),
	})

	reg.logger.Info("客戶端已連接",
		"conn_id", session.ID(),
		"addr", session.RemoteAddr())

	return session
}

// OnDisconnect 傳輸層斷線回調
//
// 冪等：對未知連接 ID 調用是 no-op，不會產生重複的 player:left
// 廣播。斷線清理即使在該連接的 handler 剛執行完後運行也安全
// （移除操作容忍缺失的條目）。
func (reg *Registry) OnDisconnect(connID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	session, ok := reg.sessions[connID]
	if !ok {
		reg.logger.Debug("斷線的連接不在註冊表中", "conn_id", connID)
		return
	}

	if session.InRoom(reg.game.ID()) {
		reg.game.Broadcast(EventPlayerLeft, LeftData{
			ID:       session.User.ID,
			Username: session.User.Username,
		}, &BroadcastOptions{Exclude: []*Session{session}})
	}

	reg.guard.ReleaseConnection(session.RemoteAddr(), connID)
	reg.guard.ClearCounters(connID)

	session.Disconnection()
	delete(reg.sessions, connID)

	reg.logger.Info("客戶端已斷線",
		"conn_id", connID,
		"user_id", session.User.ID)
}

// Dispatch 調度一條原始入站訊息
//
// 執行順序：濫用防護（大小檢查、事件頻率）→ 解析封包 → OnMessage。
// 任何一步失敗都不會進入 handler。
func (reg *Registry) Dispatch(connID string, raw []byte) {
	if !reg.guard.CheckPayload(len(raw), reg.sessionAddr(connID)) {
		// 協議濫用：強制斷線，不再處理
		reg.closeSession(connID)
		return
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		reg.logger.Debug("無法解析訊息封包", "conn_id", connID, "error", err)
		return
	}

	if !reg.guard.AllowEvent(connID, msg.Event) {
		return
	}

	reg.OnMessage(connID, msg.Event, msg.Data)
}

// OnMessage 按事件名稱分派到 handler
//
// 找不到對應 Session 時靜默丟棄（記錄於診斷級別，不是致命錯誤）。
// 未知事件落入 default：記錄並忽略。
func (reg *Registry) OnMessage(connID, event string, data json.RawMessage) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	session, ok := reg.sessions[connID]
	if !ok {
		reg.logger.Debug("訊息的連接不在註冊表中", "conn_id", connID, "event", event)
		return
	}

	switch event {
	case EventPlayerJoin:
		reg.handleJoin(session, data)
	case EventPlayerMove:
		reg.handleMove(session, data)
	case EventPlayerRespawn:
		reg.handleRespawn(session)
	case EventProjectileCreate:
		reg.handleProjectileCreate(session, data)
	case EventProjectileMove:
		reg.handleProjectileMove(session, data)
	case EventProjectileDeath:
		reg.handleProjectileDeath(session, data)
	case EventProjectileHit:
		reg.handleProjectileHit(session, data)
	default:
		reg.logger.Debug("未知事件", "conn_id", connID, "event", event)
	}
}

// handleJoin 玩家加入遊戲房間
//
// 順序要求：私有回覆必須反映加入生效之後的狀態——名單排除
// 加入者自己，這樣新玩家永遠不會看到自己兩次。
func (reg *Registry) handleJoin(session *Session, data json.RawMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		reg.logger.Debug("無法解析 join 負載", "conn_id", session.ID(), "error", err)
		return
	}

	update := UserUpdate{
		ID:       &payload.ID,
		Username: &payload.Username,
		Position: payload.Position,
		Rotation: payload.Rotation,
	}
	if payload.Health > 0 {
		update.Health = &payload.Health
		update.MaxHealth = &payload.Health
	}
	session.UpdateUser(update)

	// 同身份的舊 Session 在這裡被驅逐（後加入者勝出）
	session.Join(reg.game)

	reg.logger.Info("玩家已登入",
		"conn_id", session.ID(),
		"user_id", session.User.ID,
		"username", session.User.Username)

	reg.game.Broadcast(EventPlayerJoined, JoinedData{
		ID:       session.User.ID,
		Username: session.User.Username,
	}, &BroadcastOptions{Exclude: []*Session{session}})

	session.Emit(EventPlayerJoin, JoinReplyData{
		Players:     reg.gameRosterLocked(session),
		Projectiles: reg.projectiles.Snapshot(),
	})
}

// handleMove 玩家移動（不驗證物理合理性——信任邊界是明確的）
func (reg *Registry) handleMove(session *Session, data json.RawMessage) {
	var payload MovePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		reg.logger.Debug("無法解析 move 負載", "conn_id", session.ID(), "error", err)
		return
	}

	session.UpdateUser(UserUpdate{
		Position:  &payload.Position,
		Rotation:  &payload.Rotation,
		IsMoving:  payload.IsMoving,
		IsJumping: payload.IsJumping,
	})

	reg.game.Broadcast(EventPlayerMoved, payload,
		&BroadcastOptions{Exclude: []*Session{session}})
}

// handleRespawn 重生：血量重置為配置的最大值，位置在世界邊界內隨機
//
// 血量與移動更新廣播給整個遊戲房間（包含本人）。
func (reg *Registry) handleRespawn(session *Session) {
	maxHealth := session.User.MaxHealth
	if maxHealth <= 0 {
		maxHealth = defaultHealth
	}

	position := Vector3{
		X: randRange(-worldBound, worldBound),
		Y: 0,
		Z: randRange(-worldBound, worldBound),
	}

	session.UpdateUser(UserUpdate{
		Health:   &maxHealth,
		Position: &position,
	})

	rotation := Vector3{}
	if session.User.Rotation != nil {
		rotation = *session.User.Rotation
	}

	reg.game.Broadcast(EventPlayerHealth, HealthData{
		ID:        session.User.ID,
		Health:    maxHealth,
		MaxHealth: maxHealth,
	}, nil)

	reg.game.Broadcast(EventPlayerMoved, MovePayload{
		ID:       session.User.ID,
		Position: position,
		Rotation: rotation,
	}, nil)
}

// handleProjectileCreate 創建拋射物，創建時間取服務器時鐘
func (reg *Registry) handleProjectileCreate(session *Session, data json.RawMessage) {
	var payload ProjectileCreatePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		reg.logger.Debug("無法解析 projectile:create 負載", "conn_id", session.ID(), "error", err)
		return
	}

	projectile := NewProjectile(payload)
	reg.projectiles.Put(projectile)

	reg.game.Broadcast(EventProjectileCreated, projectile,
		&BroadcastOptions{Exclude: []*Session{session}})
}

// handleProjectileMove 更新拋射物的位置與旋轉；未知 ID 是 no-op
func (reg *Registry) handleProjectileMove(session *Session, data json.RawMessage) {
	var payload ProjectileMovePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		reg.logger.Debug("無法解析 projectile:move 負載", "conn_id", session.ID(), "error", err)
		return
	}

	projectile, ok := reg.projectiles.Get(payload.ID)
	if !ok {
		reg.logger.Debug("移動的拋射物不存在", "projectile_id", payload.ID)
		return
	}

	projectile.UpdateMove(payload.Position, payload.Rotation)

	reg.game.Broadcast(EventProjectileMoved, payload,
		&BroadcastOptions{Exclude: []*Session{session}})
}

// handleProjectileDeath 銷毀拋射物；未知 ID 是 no-op
func (reg *Registry) handleProjectileDeath(session *Session, data json.RawMessage) {
	var payload ProjectileDeathPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		reg.logger.Debug("無法解析 projectile:death 負載", "conn_id", session.ID(), "error", err)
		return
	}

	projectile, ok := reg.projectiles.Get(payload.ID)
	if !ok {
		reg.logger.Debug("銷毀的拋射物不存在", "projectile_id", payload.ID)
		return
	}

	reg.projectiles.Delete(projectile.ID)

	reg.game.Broadcast(EventProjectileDied, ProjectileDeathPayload{
		ID:      projectile.ID,
		OwnerID: projectile.OwnerID,
	}, &BroadcastOptions{Exclude: []*Session{session}})
}

// handleProjectileHit 命中結算
//
// 步驟（順序執行，缺失引用時中止且不產生任何狀態變更或部分廣播）：
//  1. 在遊戲房間按邏輯玩家 ID 解析目標 Session
//  2. 按 ID 解析拋射物
//  3. 傷害取拋射物配置值，未設置時用預設 10
//  4. 新血量 = max(0, 當前血量（未設置時 100）- 傷害)
//  5. 血量更新廣播給整個房間（含射手——傷害對所有人可見）
//  6. 新血量 <= 0 時追加目標的死亡廣播（整個房間）
//  7. 無條件銷毀拋射物並向整個房間廣播其死亡
//
// 不驗證射手是否擁有拋射物、也不驗證目標在拋射物半徑內——
// 沿用既有的信任模型。
func (reg *Registry) handleProjectileHit(session *Session, data json.RawMessage) {
	var payload ProjectileHitPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		reg.logger.Debug("無法解析 projectile:hit 負載", "conn_id", session.ID(), "error", err)
		return
	}

	target, ok := reg.game.SessionByUserID(payload.TargetID)
	if !ok {
		reg.logger.Debug("命中的目標不在遊戲房間",
			"target_id", payload.TargetID,
			"projectile_id", payload.ID)
		return
	}

	projectile, ok := reg.projectiles.Get(payload.ID)
	if !ok {
		reg.logger.Debug("命中的拋射物不存在", "projectile_id", payload.ID)
		return
	}

	damage := projectile.Damage
	if damage <= 0 {
		damage = defaultDamage
	}

	health := target.User.Health
	if health <= 0 {
		health = defaultHealth
	}
	maxHealth := target.User.MaxHealth
	if maxHealth <= 0 {
		maxHealth = defaultHealth
	}

	newHealth := math.Max(0, health-damage)
	target.UpdateUser(UserUpdate{Health: &newHealth})

	reg.game.Broadcast(EventPlayerHealth, HealthData{
		ID:        payload.TargetID,
		Health:    newHealth,
		MaxHealth: maxHealth,
	}, nil)

	if newHealth <= 0 {
		reg.game.Broadcast(EventPlayerDied, DiedData{ID: payload.TargetID}, nil)
	}

	reg.projectiles.Delete(projectile.ID)
	reg.game.Broadcast(EventProjectileDied, ProjectileDeathPayload{
		ID:      projectile.ID,
		OwnerID: projectile.OwnerID,
	}, nil)
}

// expireProjectile 清掃回調：實體已從表中移除，向遊戲房間廣播其死亡
func (reg *Registry) expireProjectile(projectile *Projectile) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.game.Broadcast(EventProjectileDied, ProjectileDeathPayload{
		ID:      projectile.ID,
		OwnerID: projectile.OwnerID,
	}, nil)
}

// gameRosterLocked 遊戲房間的玩家名單（需持有 Registry 鎖）
func (reg *Registry) gameRosterLocked(exclude *Session) []UserState {
	players := make([]UserState, 0, reg.game.Len())
	for _, session := range reg.game.Sessions() {
		if session == exclude {
			continue
		}
		players = append(players, session.User)
	}
	return players
}

// sessionAddr 查詢連接的來源位址（找不到時返回空字串）
func (reg *Registry) sessionAddr(connID string) string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if session, ok := reg.sessions[connID]; ok {
		return session.RemoteAddr()
	}
	return ""
}

// closeSession 強制關閉連接（濫用防護觸發）
func (reg *Registry) closeSession(connID string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if session, ok := reg.sessions[connID]; ok {
		session.Close()
	}
}

// Stats 統計資訊（監控端點用）
func (reg *Registry) Stats() map[string]any {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return map[string]any{
		"sessions":    len(reg.sessions),
		"lobby":       reg.lobby.Len(),
		"game":        reg.game.Len(),
		"projectiles": reg.projectiles.Len(),
		"tracked_ips": reg.guard.TrackedIPs(),
	}
}

// Stop 停止註冊表（目前只需停止拋射物清掃）
func (reg *Registry) Stop() {
	reg.projectiles.Stop()
	reg.logger.Info("會話註冊表已停止")
}

// randRange 均勻隨機數 [min, max)
func randRange(min, max float64) float64 {
	return min + rand.Float64()*(max-min)
}
