package internal_test

import (
	"testing"

	"github.com/GarcesSebastian/3js-server/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewSession 測試創建會話
func TestNewSession(t *testing.T) {
	conn := &fakeConn{id: "conn_001", addr: "198.51.100.7"}
	session := internal.NewSession(conn)

	require.NotNil(t, session)
	assert.Equal(t, "conn_001", session.ID())
	assert.Equal(t, "198.51.100.7", session.RemoteAddr())

	// 尚無玩家身份
	assert.Empty(t, session.User.ID)
	assert.Empty(t, session.Rooms())
}

// TestSession_UpdateUser 測試部分更新的合併語義
func TestSession_UpdateUser(t *testing.T) {
	strPtr := func(s string) *string { return &s }
	floatPtr := func(f float64) *float64 { return &f }
	boolPtr := func(b bool) *bool { return &b }

	tests := []struct {
		name     string
		updates  []internal.UserUpdate
		validate func(t *testing.T, user internal.UserState)
	}{
		{
			name: "identity fields",
			updates: []internal.UserUpdate{
				{ID: strPtr("玩家一"), Username: strPtr("小明")},
			},
			validate: func(t *testing.T, user internal.UserState) {
				assert.Equal(t, "玩家一", user.ID)
				assert.Equal(t, "小明", user.Username)
			},
		},
		{
			name: "unprovided fields keep previous values",
			updates: []internal.UserUpdate{
				{
					ID:       strPtr("玩家一"),
					Username: strPtr("小明"),
					Health:   floatPtr(100),
					Position: &internal.Vector3{X: 1, Y: 2, Z: 3},
				},
				{Health: floatPtr(75)}, // 只更新血量
			},
			validate: func(t *testing.T, user internal.UserState) {
				assert.Equal(t, 75.0, user.Health)
				// 未提供的欄位不被清除
				assert.Equal(t, "玩家一", user.ID)
				assert.Equal(t, "小明", user.Username)
				require.NotNil(t, user.Position)
				assert.Equal(t, 1.0, user.Position.X)
			},
		},
		{
			name: "movement flags",
			updates: []internal.UserUpdate{
				{IsMoving: boolPtr(true), IsJumping: boolPtr(false)},
			},
			validate: func(t *testing.T, user internal.UserState) {
				assert.True(t, user.IsMoving)
				assert.False(t, user.IsJumping)
			},
		},
		{
			name: "explicit zero overwrites",
			updates: []internal.UserUpdate{
				{Health: floatPtr(100)},
				{Health: floatPtr(0)}, // 顯式提供的零值是覆寫，不是「未提供」
			},
			validate: func(t *testing.T, user internal.UserState) {
				assert.Equal(t, 0.0, user.Health)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, _ := makeSession("conn_001", "")
			for _, update := range tt.updates {
				session.UpdateUser(update)
			}
			tt.validate(t, session.User)
		})
	}
}

// TestSession_Disconnection 測試斷線清理
func TestSession_Disconnection(t *testing.T) {
	lobby := internal.NewRoom("lobby")
	game := internal.NewRoom("game")
	session, _ := makeSession("conn_001", "玩家一")

	session.Join(lobby)
	session.Join(game)
	require.True(t, session.InRoom(lobby.ID()))
	require.True(t, session.InRoom(game.ID()))

	session.Disconnection()

	// 所有房間的成員關係都被清理，雙向一致
	assert.False(t, session.InRoom(lobby.ID()))
	assert.False(t, session.InRoom(game.ID()))
	assert.Equal(t, 0, lobby.Len())
	assert.Equal(t, 0, game.Len())
	assert.Empty(t, session.Rooms())
}
