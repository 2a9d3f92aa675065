package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/api"
	"github.com/chorusapp/chorus-go/pkg/errors"
	"github.com/chorusapp/chorus-go/pkg/logger"
)

// RoomStatus is the lifecycle state of a room subscription
type RoomStatus int

const (
	RoomDetached RoomStatus = iota
	RoomJoining
	RoomJoined
	RoomLeaving
)

// String implements Stringer for RoomStatus
func (s RoomStatus) String() string {
	switch s {
	case RoomDetached:
		return "detached"
	case RoomJoining:
		return "joining"
	case RoomJoined:
		return "joined"
	case RoomLeaving:
		return "leaving"
	default:
		return "unknown"
	}
}

// BackfillFunc fetches the last limit messages of a room. A plain
// request covering whatever events were missed during an outage; the
// channel guarantees no gap detection beyond refetch-on-reconnect.
type BackfillFunc func(ctx context.Context, roomID string, limit int) ([]api.ChatMessage, error)

// ChannelConfig holds room subscription configuration
type ChannelConfig struct {
	BackfillLimit int
}

// DefaultChannelConfig returns sensible defaults
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		BackfillLimit: 50,
	}
}

// Channel manages the lifecycle of one logical room subscription over
// the shared socket. At most one room is Joined per channel; entering
// a new room leaves the old one first, bounding server-side room
// membership to what is actually visible.
type Channel struct {
	sock     Socket
	backfill BackfillFunc
	config   ChannelConfig

	mu       sync.Mutex
	roomID   string
	status   RoomStatus
	joinedAt time.Time
	rejoin   bool // next ack is a reconnect re-join and needs backfill

	// OnJoined fires after the server acks a join. The re-join flag
	// distinguishes transparent reconnect re-joins from user joins.
	OnJoined func(roomID string, rejoined bool)

	// OnBackfill delivers refetched history for reconciliation
	OnBackfill func(roomID string, messages []api.ChatMessage)

	// OnBackfillError fires when the post-reconnect refetch fails;
	// the room should show a retryable error state.
	OnBackfillError func(roomID string, err error)

	unsubs []func()
	log    *zap.Logger
}

// NewChannel creates a channel over the shared socket and wires its
// socket event handlers
func NewChannel(sock Socket, backfill BackfillFunc, config ChannelConfig) *Channel {
	if config.BackfillLimit <= 0 {
		config.BackfillLimit = DefaultChannelConfig().BackfillLimit
	}

	ch := &Channel{
		sock:     sock,
		backfill: backfill,
		config:   config,
		status:   RoomDetached,
		log:      logger.Log,
	}

	ch.unsubs = append(ch.unsubs,
		sock.On(EventRoomJoined, ch.handleJoined),
		sock.On(EventDisconnect, ch.handleDisconnect),
		sock.On(EventConnect, ch.handleReconnect),
	)

	return ch
}

// Join subscribes to a room. If another room is currently Joined it is
// left first. The transition to Joined completes asynchronously on the
// server ack.
func (ch *Channel) Join(roomID string) error {
	ch.mu.Lock()

	if ch.roomID == roomID && (ch.status == RoomJoining || ch.status == RoomJoined) {
		ch.mu.Unlock()
		return nil
	}

	// Single-Joined-room rule: leave the old room before joining the
	// new one.
	if ch.roomID != "" && ch.roomID != roomID && ch.status != RoomDetached {
		old := ch.roomID
		ch.status = RoomLeaving
		ch.mu.Unlock()

		if err := ch.sock.LeaveRoom(old); err != nil {
			ch.log.Debug("leave on room switch failed", logger.WithRoomID(old), zap.Error(err))
		}

		ch.mu.Lock()
		ch.status = RoomDetached
		ch.roomID = ""
	}

	ch.roomID = roomID
	ch.status = RoomJoining
	ch.rejoin = false
	ch.mu.Unlock()

	if err := ch.sock.JoinRoom(roomID); err != nil {
		// Stay Joining: the next connect event reissues the join.
		return err
	}

	ch.log.Debug("joining room", logger.WithRoomID(roomID))
	return nil
}

// Leave unsubscribes from a room. Leaving an already-Detached room is
// a no-op. After Leave, in-flight events for the room are discarded
// even if they arrive later.
func (ch *Channel) Leave(roomID string) error {
	ch.mu.Lock()
	if ch.roomID != roomID || ch.status == RoomDetached {
		ch.mu.Unlock()
		return nil
	}

	ch.status = RoomLeaving
	ch.mu.Unlock()

	err := ch.sock.LeaveRoom(roomID)

	ch.mu.Lock()
	ch.status = RoomDetached
	ch.roomID = ""
	ch.mu.Unlock()

	ch.log.Debug("left room", logger.WithRoomID(roomID))
	return err
}

// Status returns the current subscription status
func (ch *Channel) Status() RoomStatus {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.status
}

// Room returns the current room id, empty when detached
func (ch *Channel) Room() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.roomID
}

// Accepts reports whether inbound events for a room should be merged.
// Events for rooms with no subscription are discarded; Leave stops
// delivery immediately, even for messages already in flight.
func (ch *Channel) Accepts(roomID string) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.roomID == roomID && (ch.status == RoomJoining || ch.status == RoomJoined)
}

// Emit sends a room-bound outbound event (typing, send). The room must
// be Joined; anything earlier is rejected.
func (ch *Channel) Emit(eventType EventType, payload interface{}) error {
	ch.mu.Lock()
	roomID := ch.roomID
	joined := ch.status == RoomJoined
	ch.mu.Unlock()

	if !joined {
		return errors.RoomNotJoined(roomID)
	}
	return ch.sock.Emit(eventType, roomID, payload)
}

// SendTypingStart announces the local user started typing
func (ch *Channel) SendTypingStart(userID, username string) error {
	return ch.Emit(EventTypingStart, TypingPayload{
		RoomID:    ch.Room(),
		UserID:    userID,
		Username:  username,
		Timestamp: time.Now().UnixMilli(),
	})
}

// SendTypingStop announces the local user stopped typing
func (ch *Channel) SendTypingStop(userID string) error {
	return ch.Emit(EventTypingStop, TypingPayload{
		RoomID:    ch.Room(),
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Close detaches the channel from the socket
func (ch *Channel) Close() {
	for _, unsub := range ch.unsubs {
		unsub()
	}
	ch.unsubs = nil

	ch.mu.Lock()
	ch.status = RoomDetached
	ch.roomID = ""
	ch.mu.Unlock()
}

// handleJoined processes the server's join ack
func (ch *Channel) handleJoined(msg *Message) {
	var payload RoomPayload
	if err := msg.ParsePayload(&payload); err != nil {
		ch.log.Warn("malformed room:joined payload", zap.Error(err))
		return
	}
	roomID := payload.RoomID
	if roomID == "" {
		roomID = msg.RoomID
	}

	ch.mu.Lock()
	if ch.roomID != roomID || ch.status != RoomJoining {
		ch.mu.Unlock()
		return
	}
	ch.status = RoomJoined
	ch.joinedAt = time.Now()
	rejoined := ch.rejoin
	ch.rejoin = false
	onJoined := ch.OnJoined
	ch.mu.Unlock()

	ch.log.Debug("room joined", logger.WithRoomID(roomID), zap.Bool("rejoined", rejoined))

	if onJoined != nil {
		onJoined(roomID, rejoined)
	}

	if rejoined {
		go ch.runBackfill(roomID)
	}
}

// handleDisconnect moves the channel to Detached immediately: there is
// no silent Joined-but-unreachable state. The desired room is kept so
// the reconnect handler can re-join.
func (ch *Channel) handleDisconnect(_ *Message) {
	ch.mu.Lock()
	if ch.roomID == "" {
		ch.mu.Unlock()
		return
	}
	ch.status = RoomDetached
	roomID := ch.roomID
	ch.mu.Unlock()

	ch.log.Debug("room detached by disconnect", logger.WithRoomID(roomID))
}

// handleReconnect reissues the join for the desired room. A room that
// was Joined before the outage re-joins transparently and backfills on
// the ack; a join requested while the socket was down is retried as a
// fresh join, no backfill needed.
func (ch *Channel) handleReconnect(_ *Message) {
	ch.mu.Lock()
	if ch.roomID == "" || (ch.status != RoomDetached && ch.status != RoomJoining) {
		ch.mu.Unlock()
		return
	}
	ch.rejoin = ch.rejoin || ch.status == RoomDetached
	ch.status = RoomJoining
	roomID := ch.roomID
	ch.mu.Unlock()

	if err := ch.sock.JoinRoom(roomID); err != nil {
		ch.log.Warn("re-join after reconnect failed", logger.WithRoomID(roomID), zap.Error(err))
	}
}

// runBackfill refetches recent history to cover events missed during
// the outage
func (ch *Channel) runBackfill(roomID string) {
	if ch.backfill == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	messages, err := ch.backfill(ctx, roomID, ch.config.BackfillLimit)
	if err != nil {
		ch.log.Warn("backfill failed", logger.WithRoomID(roomID), zap.Error(err))
		if ch.OnBackfillError != nil {
			ch.OnBackfillError(roomID, err)
		}
		return
	}

	if !ch.Accepts(roomID) {
		// Room was left while the fetch was in flight
		return
	}

	ch.log.Debug("backfill fetched",
		logger.WithRoomID(roomID),
		zap.Int("count", len(messages)))

	if ch.OnBackfill != nil {
		ch.OnBackfill(roomID, messages)
	}
}
