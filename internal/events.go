package internal

import "encoding/json"

// Vector3 三維向量（位置 / 旋轉）
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// 入站事件名稱（客戶端 → 服務器）
const (
	EventPlayerJoin       = "player:join"
	EventPlayerMove       = "player:move"
	EventPlayerRespawn    = "player:respawn"
	EventProjectileCreate = "projectile:create"
	EventProjectileMove   = "projectile:move"
	EventProjectileDeath  = "projectile:death"
	EventProjectileHit    = "projectile:hit"
)

// 出站事件名稱（服務器 → 客戶端）
const (
	EventConnected         = "socket:connected:client"
	EventPlayerJoined      = "player:joined"
	EventPlayerMoved       = "player:moved"
	EventPlayerHealth      = "player:health"
	EventPlayerDied        = "player:died"
	EventPlayerLeft        = "player:left"
	EventProjectileCreated = "projectile:created"
	EventProjectileMoved   = "projectile:moved"
	EventProjectileDied    = "projectile:died"
)

// Message 傳輸層訊息封包
//
// Event 作為標籤，Data 保留原始 JSON：Registry 依 Event 靜態
// 分派到對應 handler，各 handler 自行解析出強型別的 payload。
// 未知事件落入 switch 的 default 分支：記錄並忽略。
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinPayload player:join 的負載
type JoinPayload struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Position *Vector3 `json:"position,omitempty"`
	Rotation *Vector3 `json:"rotation,omitempty"`
	Health   float64  `json:"health"`
}

// MovePayload player:move 的負載
type MovePayload struct {
	ID        string  `json:"id"`
	Position  Vector3 `json:"position"`
	Rotation  Vector3 `json:"rotation"`
	IsMoving  *bool   `json:"isMoving,omitempty"`
	IsJumping *bool   `json:"isJumping,omitempty"`
}

// ProjectileCreatePayload projectile:create 的負載
//
// 客戶端提供的 createdAt 會被服務器時間覆蓋（見 NewProjectile）。
type ProjectileCreatePayload struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"ownerId"`
	Position  Vector3 `json:"position"`
	Rotation  Vector3 `json:"rotation"`
	Speed     float64 `json:"speed"`
	Damage    float64 `json:"damage"`
	Radius    float64 `json:"radius"`
	TTL       float64 `json:"ttl"`
	CreatedAt int64   `json:"createdAt,omitempty"`
}

// ProjectileMovePayload projectile:move 的負載
type ProjectileMovePayload struct {
	ID       string  `json:"id"`
	OwnerID  string  `json:"ownerId"`
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
}

// ProjectileDeathPayload projectile:death 的負載
type ProjectileDeathPayload struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
}

// ProjectileHitPayload projectile:hit 的負載
type ProjectileHitPayload struct {
	ID       string `json:"id"`
	OwnerID  string `json:"ownerId"`
	TargetID string `json:"targetId"`
}

// ConnectedData socket:connected:client 的資料：連接 ID 與遊戲房間現有名單
type ConnectedData struct {
	ID      string      `json:"id"`
	Players []UserState `json:"players"`
}

// JoinReplyData 私有 player:join 回覆：加入生效後的名單與拋射物快照
type JoinReplyData struct {
	Players     []UserState   `json:"players"`
	Projectiles []*Projectile `json:"projectiles"`
}

// JoinedData player:joined 的資料
type JoinedData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// HealthData player:health 的資料
type HealthData struct {
	ID        string  `json:"id"`
	Health    float64 `json:"health"`
	MaxHealth float64 `json:"maxHealth"`
}

// DiedData player:died 的資料
type DiedData struct {
	ID string `json:"id"`
}

// LeftData player:left 的資料
type LeftData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
