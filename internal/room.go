package internal

import (
	"github.com/google/uuid"
)

// 系統設計問題：
//   如何對一組連接做範圍廣播，並保證同一玩家身份在房間內不重複？
//
// 核心挑戰：
//   1. 成員一致性：房間的成員集與 Session 的房間集必須雙向一致
//   2. 身份去重：同一邏輯玩家 ID 最多一個成員（後加入者勝出）
//   3. 過濾廣播：排除名單 / 僅包含名單，按連接身份過濾
//
// 設計方案：
//   ✅ map[連接 ID]Session - O(1) 加入 / 退出
//   ✅ 加入時先驅逐同身份的舊成員 - 不變量由 Join 單點維護
//   ✅ 廣播選項結構 - 排除優先於僅包含

// BroadcastOptions 廣播過濾選項
//
// 兩個名單都按 Session 身份（而非邏輯玩家 ID）過濾；
// Exclude 優先：同時出現在兩個名單時仍然被排除。
type BroadcastOptions struct {
	Exclude     []*Session
	OnlyInclude []*Session
}

// Room 具名的無序成員集
//
// 兩個常駐房間（"lobby"、"game"）在 Registry 啟動時創建一次，
// 存活至進程結束；核心不支持動態房間。
//
// Room 不加鎖：所有變更都在 Registry 的序列化調度下進行
// （見 registry.go 的並發模型說明）。
type Room struct {
	id       string
	name     string
	sessions map[string]*Session // 連接 ID -> Session
}

// NewRoom 創建房間，ID 由服務器生成
func NewRoom(name string) *Room {
	return &Room{
		id:       uuid.NewString(),
		name:     name,
		sessions: make(map[string]*Session),
	}
}

// ID 房間識別
func (r *Room) ID() string {
	return r.id
}

// Name 房間名稱
func (r *Room) Name() string {
	return r.name
}

// Len 成員數量
func (r *Room) Len() int {
	return len(r.sessions)
}

// Sessions 成員快照
func (r *Room) Sessions() []*Session {
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// SessionByID 按連接 ID 查找成員
func (r *Room) SessionByID(id string) (*Session, bool) {
	session, ok := r.sessions[id]
	return session, ok
}

// SessionByUserID 按邏輯玩家 ID 查找成員（第一個匹配）
func (r *Room) SessionByUserID(userID string) (*Session, bool) {
	if userID == "" {
		return nil, false
	}
	for _, session := range r.sessions {
		if session.User.ID == userID {
			return session, true
		}
	}
	return nil, false
}

// Join 加入成員
//
// 不變量維護：同一邏輯玩家 ID 在房間內最多一個成員。
// 若已有同身份的舊成員，先將其移出（後加入者勝出）——這是
// 預期行為（例如同一玩家重連），不是錯誤。
//
// 未補全身份的 Session（User.ID 為空）不參與去重：
// 大廳裡的未登入連接彼此之間不能互相驅逐。
func (r *Room) Join(session *Session) {
	if session.User.ID != "" {
		if existing, ok := r.SessionByUserID(session.User.ID); ok && existing != session {
			r.Leave(existing)
		}
	}

	r.sessions[session.id] = session
	session.rooms[r.id] = r
}

// Leave 移除成員；對非成員調用是 no-op
func (r *Room) Leave(session *Session) {
	delete(r.sessions, session.id)
	delete(session.rooms, r.id)
}

// LeaveByUserID 移除所有匹配邏輯玩家 ID 的成員（身份級驅逐）
func (r *Room) LeaveByUserID(userID string) {
	if userID == "" {
		return
	}
	for _, session := range r.Sessions() {
		if session.User.ID == userID {
			r.Leave(session)
		}
	}
}

// Broadcast 向當前成員快照廣播事件
//
// 過濾規則：
//  1. 成員在 Exclude 中 ⇒ 跳過（優先於 OnlyInclude）
//  2. 提供了 OnlyInclude 且成員不在其中 ⇒ 跳過
//  3. 其餘全部交付
func (r *Room) Broadcast(event string, data any, opts *BroadcastOptions) {
	for _, session := range r.sessions {
		if opts != nil {
			if containsSession(opts.Exclude, session) {
				continue
			}
			if opts.OnlyInclude != nil && !containsSession(opts.OnlyInclude, session) {
				continue
			}
		}
		session.Emit(event, data)
	}
}

// containsSession 按 Session 身份查找
func containsSession(list []*Session, target *Session) bool {
	for _, session := range list {
		if session == target {
			return true
		}
	}
	return false
}
