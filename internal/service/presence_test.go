package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresenceRegisterAndLookup(t *testing.T) {
	presence := NewPresenceRegistry()

	require.False(t, presence.Online("alice"))

	presence.Register("alice", "conn-1")
	require.True(t, presence.Online("alice"))

	handle, ok := presence.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, "conn-1", handle)
}

func TestPresenceLastConnectWins(t *testing.T) {
	presence := NewPresenceRegistry()

	presence.Register("alice", "conn-1")
	presence.Register("alice", "conn-2")

	handle, ok := presence.Lookup("alice")
	require.True(t, ok)
	require.Equal(t, "conn-2", handle)
}

func TestPresenceStaleUnregisterIsNoOp(t *testing.T) {
	presence := NewPresenceRegistry()

	presence.Register("alice", "conn-1")
	presence.Register("alice", "conn-2")

	// The old connection's deferred cleanup fires after the reconnect; it
	// must not evict the live handle.
	presence.Unregister("alice", "conn-1")
	require.True(t, presence.Online("alice"))

	presence.Unregister("alice", "conn-2")
	require.False(t, presence.Online("alice"))
}

func TestRoomRendering(t *testing.T) {
	require.Equal(t, "chat_42", ChatRoom(42).String())
	require.Equal(t, "project_7", ProjectRoom(7).String())
	require.Equal(t, "user_alice", UserRoom("alice").String())
}

func TestRoomKeyspacesDoNotCollide(t *testing.T) {
	require.NotEqual(t, ChatRoom(7), ProjectRoom(7))
	require.NotEqual(t, ChatRoom(7).String(), ProjectRoom(7).String())
}
