package internal_test

import (
	"testing"

	"github.com/GarcesSebastian/3js-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeSession 建立測試會話（userID 為空時保持未登入狀態）
func makeSession(connID, userID string) (*internal.Session, *fakeConn) {
	conn := &fakeConn{id: connID, addr: "198.51.100.7"}
	session := internal.NewSession(conn)
	if userID != "" {
		session.UpdateUser(internal.UserUpdate{ID: &userID})
	}
	return session, conn
}

// TestNewRoom 測試創建房間
func TestNewRoom(t *testing.T) {
	room := internal.NewRoom("game")

	require.NotNil(t, room)
	assert.NotEmpty(t, room.ID())
	assert.Equal(t, "game", room.Name())
	assert.Equal(t, 0, room.Len())

	// 每個房間的 ID 都是獨立生成的
	other := internal.NewRoom("game")
	assert.NotEqual(t, room.ID(), other.ID())
}

// TestRoom_Join 測試加入房間
func TestRoom_Join(t *testing.T) {
	tests := []struct {
		name     string
		run      func(t *testing.T, room *internal.Room)
	}{
		{
			name: "join maintains bidirectional membership",
			run: func(t *testing.T, room *internal.Room) {
				session, _ := makeSession("conn_001", "玩家一")
				room.Join(session)

				assert.Equal(t, 1, room.Len())
				found, ok := room.SessionByID(session.ID())
				require.True(t, ok)
				assert.Same(t, session, found)
				assert.True(t, session.InRoom(room.ID()))
			},
		},
		{
			name: "same identity evicts previous member",
			run: func(t *testing.T, room *internal.Room) {
				old, _ := makeSession("conn_001", "玩家一")
				room.Join(old)

				// 同一玩家重連：新會話加入時驅逐舊會話
				replacement, _ := makeSession("conn_002", "玩家一")
				room.Join(replacement)

				assert.Equal(t, 1, room.Len())
				assert.False(t, old.InRoom(room.ID()))
				assert.True(t, replacement.InRoom(room.ID()))

				found, ok := room.SessionByUserID("玩家一")
				require.True(t, ok)
				assert.Same(t, replacement, found)
			},
		},
		{
			name: "anonymous sessions do not evict each other",
			run: func(t *testing.T, room *internal.Room) {
				first, _ := makeSession("conn_001", "")
				second, _ := makeSession("conn_002", "")
				room.Join(first)
				room.Join(second)

				// 未登入的會話（User.ID 為空）不參與去重
				assert.Equal(t, 2, room.Len())
				assert.True(t, first.InRoom(room.ID()))
				assert.True(t, second.InRoom(room.ID()))
			},
		},
		{
			name: "rejoin same session is idempotent",
			run: func(t *testing.T, room *internal.Room) {
				session, _ := makeSession("conn_001", "玩家一")
				room.Join(session)
				room.Join(session)

				assert.Equal(t, 1, room.Len())
				assert.True(t, session.InRoom(room.ID()))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.run(t, internal.NewRoom("game"))
		})
	}
}

// TestRoom_Leave 測試離開房間
func TestRoom_Leave(t *testing.T) {
	room := internal.NewRoom("game")
	session, _ := makeSession("conn_001", "玩家一")

	// 對非成員調用是 no-op
	room.Leave(session)
	assert.Equal(t, 0, room.Len())

	room.Join(session)
	room.Leave(session)

	assert.Equal(t, 0, room.Len())
	assert.False(t, session.InRoom(room.ID()))

	// 離開後可以重新加入
	room.Join(session)
	assert.Equal(t, 1, room.Len())
	assert.True(t, session.InRoom(room.ID()))
}

// TestRoom_LeaveByUserID 測試按玩家身份驅逐
func TestRoom_LeaveByUserID(t *testing.T) {
	room := internal.NewRoom("game")
	first, _ := makeSession("conn_001", "玩家一")
	second, _ := makeSession("conn_002", "玩家二")
	room.Join(first)
	room.Join(second)

	room.LeaveByUserID("玩家一")

	assert.Equal(t, 1, room.Len())
	assert.False(t, first.InRoom(room.ID()))
	assert.True(t, second.InRoom(room.ID()))

	// 空 ID 是 no-op
	room.LeaveByUserID("")
	assert.Equal(t, 1, room.Len())
}

// TestRoom_Broadcast 測試過濾廣播
func TestRoom_Broadcast(t *testing.T) {
	setup := func() (*internal.Room, []*internal.Session, []*fakeConn) {
		room := internal.NewRoom("game")
		sessions := make([]*internal.Session, 3)
		conns := make([]*fakeConn, 3)
		for i, userID := range []string{"玩家一", "玩家二", "玩家三"} {
			sessions[i], conns[i] = makeSession(userID+"_conn", userID)
			room.Join(sessions[i])
		}
		return room, sessions, conns
	}

	tests := []struct {
		name     string
		opts     func(sessions []*internal.Session) *internal.BroadcastOptions
		received []bool // 對應三個成員
	}{
		{
			name:     "nil options delivers to everyone",
			opts:     func([]*internal.Session) *internal.BroadcastOptions { return nil },
			received: []bool{true, true, true},
		},
		{
			name: "exclude skips listed sessions",
			opts: func(sessions []*internal.Session) *internal.BroadcastOptions {
				return &internal.BroadcastOptions{Exclude: []*internal.Session{sessions[0]}}
			},
			received: []bool{false, true, true},
		},
		{
			name: "only include limits delivery",
			opts: func(sessions []*internal.Session) *internal.BroadcastOptions {
				return &internal.BroadcastOptions{OnlyInclude: []*internal.Session{sessions[1]}}
			},
			received: []bool{false, true, false},
		},
		{
			name: "exclude wins over only include",
			opts: func(sessions []*internal.Session) *internal.BroadcastOptions {
				return &internal.BroadcastOptions{
					Exclude:     []*internal.Session{sessions[1]},
					OnlyInclude: []*internal.Session{sessions[1], sessions[2]},
				}
			},
			received: []bool{false, false, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			room, sessions, conns := setup()

			room.Broadcast("player:moved", map[string]any{"id": "玩家一"}, tt.opts(sessions))

			for i, want := range tt.received {
				got := len(conns[i].eventsNamed("player:moved")) > 0
				assert.Equal(t, want, got, "成員 %d", i)
			}
		})
	}
}
