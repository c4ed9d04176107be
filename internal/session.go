package internal

// Conn 傳輸層連接契約
//
// 核心只依賴這個介面：傳輸層（WebSocket）需要提供穩定的連接識別、
// 依到達順序交付訊息、來源位址（優先 X-Forwarded-For），以及
// 強制關閉連接的能力。
type Conn interface {
	ID() string
	RemoteAddr() string
	Emit(event string, data any)
	Close()
}

// UserState 玩家的遊戲身份與狀態
//
// ID 是客戶端提供的邏輯玩家 ID，與連接 ID 不同：
// 連接 ID 標識一條傳輸連接，邏輯 ID 標識一個玩家身份，
// 房間用邏輯 ID 做去重（同一身份最多一個成員）。
type UserState struct {
	ID        string   `json:"id,omitempty"`
	Username  string   `json:"username,omitempty"`
	Health    float64  `json:"health"`
	MaxHealth float64  `json:"maxHealth"`
	Position  *Vector3 `json:"position,omitempty"`
	Rotation  *Vector3 `json:"rotation,omitempty"`
	IsMoving  bool     `json:"isMoving"`
	IsJumping bool     `json:"isJumping"`
}

// UserUpdate 玩家狀態的部分更新
//
// 每個欄位都是指針：nil 表示「未提供，保持原值」，非 nil 表示覆寫。
// 語義是「合併、絕不清除未提供的欄位」。
type UserUpdate struct {
	ID        *string
	Username  *string
	Health    *float64
	MaxHealth *float64
	Position  *Vector3
	Rotation  *Vector3
	IsMoving  *bool
	IsJumping *bool
}

// Session 一條已連接的客戶端連接及其遊戲身份
//
// 生命週期：
//   - 傳輸層連接時創建（此時尚無玩家身份）
//   - 客戶端發送 player:join 後補全身份
//   - 傳輸層斷開時銷毀（先退出所有已加入的房間）
//
// 不變量：
//   - 連接 ID 在物件生命期內唯一且不可變
//   - rooms 與各 Room 的成員集雙向一致（只透過 Room.Join / Room.Leave 維護）
//
// Session 本身不加鎖：所有狀態變更都在 Registry 的序列化調度下進行。
type Session struct {
	id    string
	conn  Conn
	User  UserState
	rooms map[string]*Room // 房間 ID -> Room
}

// NewSession 包裝一條傳輸連接
func NewSession(conn Conn) *Session {
	return &Session{
		id:    conn.ID(),
		conn:  conn,
		rooms: make(map[string]*Room),
	}
}

// ID 連接識別（穩定、不可變）
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr 來源位址
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// Emit 向這條連接發送事件
func (s *Session) Emit(event string, data any) {
	s.conn.Emit(event, data)
}

// Close 強制關閉底層連接
func (s *Session) Close() {
	s.conn.Close()
}

// UpdateUser 合併部分更新：只覆寫提供的欄位，未提供的保持原值
func (s *Session) UpdateUser(update UserUpdate) {
	if update.ID != nil {
		s.User.ID = *update.ID
	}
	if update.Username != nil {
		s.User.Username = *update.Username
	}
	if update.Health != nil {
		s.User.Health = *update.Health
	}
	if update.MaxHealth != nil {
		s.User.MaxHealth = *update.MaxHealth
	}
	if update.Position != nil {
		s.User.Position = update.Position
	}
	if update.Rotation != nil {
		s.User.Rotation = update.Rotation
	}
	if update.IsMoving != nil {
		s.User.IsMoving = *update.IsMoving
	}
	if update.IsJumping != nil {
		s.User.IsJumping = *update.IsJumping
	}
}

// Join 加入房間（委派給 Room 以維持雙向一致性）
func (s *Session) Join(room *Room) {
	room.Join(s)
}

// Leave 離開房間
func (s *Session) Leave(room *Room) {
	room.Leave(s)
}

// InRoom 是否為指定房間的成員
func (s *Session) InRoom(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

// Rooms 目前加入的房間快照
func (s *Session) Rooms() []*Room {
	rooms := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Disconnection 退出所有已加入的房間（斷線清理用）
func (s *Session) Disconnection() {
	// 先取快照：Leave 會修改 s.rooms
	for _, room := range s.Rooms() {
		room.Leave(s)
	}
}
