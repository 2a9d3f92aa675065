package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusapp/chorus-go/pkg/errors"
)

func TestSocketBackoffDoublesAndCaps(t *testing.T) {
	ws := NewWebSocket(SocketConfig{
		ReconnectBaseDelay:   100 * time.Millisecond,
		ReconnectMaxDelay:    250 * time.Millisecond,
		MaxReconnectAttempts: 2,
	})
	defer ws.Disconnect()

	assert.False(t, ws.reconnectExhausted())

	ws.recordReconnectFailure()
	assert.Equal(t, 200*time.Millisecond, ws.reconnectDelay)

	// Capped, not doubled past the maximum
	ws.recordReconnectFailure()
	assert.Equal(t, 250*time.Millisecond, ws.reconnectDelay)
	assert.True(t, ws.reconnectExhausted())

	// A successful connection restores the base delay and the budget
	ws.resetReconnectState()
	assert.Equal(t, 100*time.Millisecond, ws.reconnectDelay)
	assert.False(t, ws.reconnectExhausted())
}

func TestSocketUnlimitedReconnectAttempts(t *testing.T) {
	ws := NewWebSocket(DefaultSocketConfig())
	defer ws.Disconnect()

	for i := 0; i < 100; i++ {
		ws.recordReconnectFailure()
	}
	assert.False(t, ws.reconnectExhausted())
	assert.Equal(t, ws.config.ReconnectMaxDelay, ws.reconnectDelay)
}

func TestSocketNextReconnectWaitJitterBounds(t *testing.T) {
	ws := NewWebSocket(DefaultSocketConfig())
	defer ws.Disconnect()

	for i := 0; i < 20; i++ {
		wait := ws.nextReconnectWait()
		assert.GreaterOrEqual(t, wait, ws.config.ReconnectBaseDelay)
		assert.Less(t, wait, ws.config.ReconnectBaseDelay+time.Second)
	}
}

func TestSocketUnsubscribe(t *testing.T) {
	ws := NewWebSocket(DefaultSocketConfig())
	defer ws.Disconnect()

	var got []string
	unsubA := ws.On(EventMessageNew, func(m *Message) { got = append(got, "a") })
	ws.On(EventMessageNew, func(m *Message) { got = append(got, "b") })

	ws.dispatch(&Message{Type: EventMessageNew})
	assert.Equal(t, []string{"a", "b"}, got)

	// Only the unsubscribed listener stops receiving
	unsubA()
	ws.dispatch(&Message{Type: EventMessageNew})
	assert.Equal(t, []string{"a", "b", "b"}, got)
}

func TestSocketEmitWhenDisconnected(t *testing.T) {
	ws := NewWebSocket(DefaultSocketConfig())
	defer ws.Disconnect()

	err := ws.Emit(EventHeartbeat, "", nil)
	require.Error(t, err)
	assert.True(t, errors.IsConnectionLost(err))
}

func TestSocketPongLatency(t *testing.T) {
	ws := NewWebSocket(DefaultSocketConfig())
	defer ws.Disconnect()

	ws.recordPong(&Message{
		Type: EventPong,
		Payload: HeartbeatPayload{
			ClientTime: time.Now().Add(-50 * time.Millisecond).UnixMilli(),
		},
	})

	assert.GreaterOrEqual(t, ws.Stats().LastPongLatency, 50*time.Millisecond)
}
