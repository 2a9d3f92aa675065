package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusapp/chorus-go/pkg/api"
	"github.com/chorusapp/chorus-go/pkg/errors"
)

func joinedChannel(t *testing.T, sock *fakeSocket, roomID string) *Channel {
	t.Helper()
	ch := NewChannel(sock, nil, DefaultChannelConfig())
	require.NoError(t, ch.Join(roomID))
	sock.dispatch(EventRoomJoined, roomID, RoomPayload{RoomID: roomID})
	require.Equal(t, RoomJoined, ch.Status())
	return ch
}

func TestChannelJoinLifecycle(t *testing.T) {
	sock := newFakeSocket()
	ch := NewChannel(sock, nil, DefaultChannelConfig())
	defer ch.Close()

	assert.Equal(t, RoomDetached, ch.Status())

	var acked []string
	ch.OnJoined = func(roomID string, rejoined bool) {
		acked = append(acked, roomID)
		assert.False(t, rejoined)
	}

	require.NoError(t, ch.Join("room-1"))
	assert.Equal(t, RoomJoining, ch.Status())
	assert.Equal(t, 1, sock.joinCount())

	// Events are accepted as soon as the join is requested
	assert.True(t, ch.Accepts("room-1"))
	assert.False(t, ch.Accepts("room-2"))

	sock.dispatch(EventRoomJoined, "room-1", RoomPayload{RoomID: "room-1"})
	assert.Equal(t, RoomJoined, ch.Status())
	assert.Equal(t, "room-1", ch.Room())
	assert.Equal(t, []string{"room-1"}, acked)
}

func TestChannelJoinIdempotent(t *testing.T) {
	sock := newFakeSocket()
	ch := joinedChannel(t, sock, "room-1")
	defer ch.Close()

	require.NoError(t, ch.Join("room-1"))
	assert.Equal(t, 1, sock.joinCount())
	assert.Equal(t, RoomJoined, ch.Status())
}

func TestChannelSwitchLeavesOldRoom(t *testing.T) {
	sock := newFakeSocket()
	ch := joinedChannel(t, sock, "room-1")
	defer ch.Close()

	require.NoError(t, ch.Join("room-2"))
	assert.Equal(t, []string{"room-1"}, sock.leaves)
	assert.Equal(t, []string{"room-1", "room-2"}, sock.joins)
	assert.Equal(t, RoomJoining, ch.Status())
	assert.False(t, ch.Accepts("room-1"))
	assert.True(t, ch.Accepts("room-2"))
}

func TestChannelLeave(t *testing.T) {
	sock := newFakeSocket()
	ch := joinedChannel(t, sock, "room-1")
	defer ch.Close()

	require.NoError(t, ch.Leave("room-1"))
	assert.Equal(t, RoomDetached, ch.Status())
	assert.Empty(t, ch.Room())
	assert.False(t, ch.Accepts("room-1"))

	// Leaving again, or leaving a room we never joined, is a no-op
	require.NoError(t, ch.Leave("room-1"))
	require.NoError(t, ch.Leave("room-9"))
	assert.Len(t, sock.leaves, 1)
}

func TestChannelStaleAckIgnored(t *testing.T) {
	sock := newFakeSocket()
	ch := NewChannel(sock, nil, DefaultChannelConfig())
	defer ch.Close()

	require.NoError(t, ch.Join("room-1"))

	// Ack for a room we are not joining
	sock.dispatch(EventRoomJoined, "room-9", RoomPayload{RoomID: "room-9"})
	assert.Equal(t, RoomJoining, ch.Status())

	// Ack after the room is already joined
	sock.dispatch(EventRoomJoined, "room-1", RoomPayload{RoomID: "room-1"})
	assert.Equal(t, RoomJoined, ch.Status())
	sock.dispatch(EventRoomJoined, "room-1", RoomPayload{RoomID: "room-1"})
	assert.Equal(t, RoomJoined, ch.Status())
}

func TestChannelEmitRequiresJoined(t *testing.T) {
	sock := newFakeSocket()
	ch := NewChannel(sock, nil, DefaultChannelConfig())
	defer ch.Close()

	err := ch.SendTypingStart("u1", "ada")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeRoomNotJoined, errors.TypeOf(err))

	require.NoError(t, ch.Join("room-1"))
	err = ch.SendTypingStart("u1", "ada")
	require.Error(t, err) // Joining is not enough

	sock.dispatch(EventRoomJoined, "room-1", RoomPayload{RoomID: "room-1"})
	require.NoError(t, ch.SendTypingStart("u1", "ada"))
	require.NoError(t, ch.SendTypingStop("u1"))
	assert.Equal(t, 2, sock.emittedCount())
}

func TestChannelDisconnectDetaches(t *testing.T) {
	sock := newFakeSocket()
	ch := joinedChannel(t, sock, "room-1")
	defer ch.Close()

	sock.dispatch(EventDisconnect, "", nil)
	assert.Equal(t, RoomDetached, ch.Status())
	assert.False(t, ch.Accepts("room-1"))

	// The desired room survives for the reconnect re-join
	assert.Equal(t, "room-1", ch.Room())
}

func TestChannelReconnectRejoinsAndBackfills(t *testing.T) {
	sock := newFakeSocket()

	backfilled := make(chan []api.ChatMessage, 1)
	backfill := func(ctx context.Context, roomID string, limit int) ([]api.ChatMessage, error) {
		assert.Equal(t, "room-1", roomID)
		assert.Equal(t, 50, limit)
		return []api.ChatMessage{{ID: "m1", RoomID: roomID}}, nil
	}

	ch := NewChannel(sock, backfill, DefaultChannelConfig())
	defer ch.Close()
	ch.OnBackfill = func(roomID string, messages []api.ChatMessage) {
		backfilled <- messages
	}

	require.NoError(t, ch.Join("room-1"))
	sock.dispatch(EventRoomJoined, "room-1", RoomPayload{RoomID: "room-1"})

	sock.dispatch(EventDisconnect, "", nil)
	sock.dispatch(EventConnect, "", nil)

	// Transparent re-join, no user action
	assert.Equal(t, RoomJoining, ch.Status())
	assert.Equal(t, []string{"room-1", "room-1"}, sock.joins)

	sock.dispatch(EventRoomJoined, "room-1", RoomPayload{RoomID: "room-1"})
	assert.Equal(t, RoomJoined, ch.Status())

	select {
	case messages := <-backfilled:
		require.Len(t, messages, 1)
		assert.Equal(t, "m1", messages[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("backfill never delivered")
	}
}

func TestChannelBackfillError(t *testing.T) {
	sock := newFakeSocket()

	failed := make(chan error, 1)
	backfill := func(ctx context.Context, roomID string, limit int) ([]api.ChatMessage, error) {
		return nil, errors.New(errors.ErrorTypeNetwork, "fetch failed", nil)
	}

	ch := NewChannel(sock, backfill, DefaultChannelConfig())
	defer ch.Close()
	ch.OnBackfillError = func(roomID string, err error) {
		failed <- err
	}

	require.NoError(t, ch.Join("room-1"))
	sock.dispatch(EventRoomJoined, "room-1", RoomPayload{RoomID: "room-1"})
	sock.dispatch(EventDisconnect, "", nil)
	sock.dispatch(EventConnect, "", nil)
	sock.dispatch(EventRoomJoined, "room-1", RoomPayload{RoomID: "room-1"})

	select {
	case err := <-failed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("backfill error never surfaced")
	}
}

func TestChannelJoinDuringOutageRetriedOnConnect(t *testing.T) {
	sock := newFakeSocket()
	sock.joinErr = errors.New(errors.ErrorTypeConnectionLost, "socket not connected", nil)

	ch := NewChannel(sock, nil, DefaultChannelConfig())
	defer ch.Close()

	var rejoined []bool
	ch.OnJoined = func(roomID string, r bool) { rejoined = append(rejoined, r) }

	// Join while the socket is down: the request fails but the desired
	// room is kept
	require.Error(t, ch.Join("room-1"))
	assert.Equal(t, RoomJoining, ch.Status())
	assert.Equal(t, 1, sock.joinCount())

	sock.mu.Lock()
	sock.joinErr = nil
	sock.mu.Unlock()

	// The connect event reissues the join
	sock.dispatch(EventConnect, "", nil)
	assert.Equal(t, 2, sock.joinCount())

	sock.dispatch(EventRoomJoined, "room-1", RoomPayload{RoomID: "room-1"})
	assert.Equal(t, RoomJoined, ch.Status())

	// This was never Joined before, so it acks as a fresh join
	assert.Equal(t, []bool{false}, rejoined)
}

func TestChannelReconnectWithoutRoom(t *testing.T) {
	sock := newFakeSocket()
	ch := NewChannel(sock, nil, DefaultChannelConfig())
	defer ch.Close()

	sock.dispatch(EventConnect, "", nil)
	assert.Equal(t, RoomDetached, ch.Status())
	assert.Equal(t, 0, sock.joinCount())
}
