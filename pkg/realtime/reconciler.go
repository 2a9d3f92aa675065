package realtime

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/api"
	"github.com/chorusapp/chorus-go/pkg/errors"
	"github.com/chorusapp/chorus-go/pkg/logger"
	"github.com/chorusapp/chorus-go/pkg/store"
)

// Mutation kinds shared between local optimistic actions and inbound
// reconciliation, so a self-originated echo defers behind its own
// pending mutation.
const (
	KindMembership = "membership"
	KindSend       = "send"
)

// Reconciler consumes inbound realtime events and merges them into the
// optimistic stores, deduplicating against mutations already applied
// locally.
type Reconciler struct {
	channel     *Channel
	messages    *store.Store[api.ChatMessage]
	memberships *store.Store[api.Membership]
	typing      *TypingTracker

	mu     sync.Mutex
	unread map[string]int

	// OnNewMessage fires after a genuinely new message is merged; the
	// viewing screen uses it for the scrolled-to-bottom auto-scroll.
	OnNewMessage func(roomID string, msg api.ChatMessage)

	unsubs []func()
	log    *zap.Logger
}

// NewReconciler wires the reconciler into the socket and channel
func NewReconciler(
	sock Socket,
	channel *Channel,
	messages *store.Store[api.ChatMessage],
	memberships *store.Store[api.Membership],
	typing *TypingTracker,
) *Reconciler {
	r := &Reconciler{
		channel:     channel,
		messages:    messages,
		memberships: memberships,
		typing:      typing,
		unread:      make(map[string]int),
		log:         logger.Log,
	}

	r.unsubs = append(r.unsubs,
		sock.On(EventMessageNew, r.handleMessageNew),
		sock.On(EventTypingStart, r.handleTypingStart),
		sock.On(EventTypingStop, r.handleTypingStop),
		sock.On(EventMemberApproved, r.handleMembership),
		sock.On(EventMemberRejected, r.handleMembership),
		sock.On(EventMemberRole, r.handleMembership),
		sock.On(EventMemberRemoved, r.handleMembership),
	)

	channel.OnJoined = func(roomID string, rejoined bool) {
		// Typing state is derived; clearing on every join is safe and
		// drops any indicator left over from before the outage.
		typing.ClearRoom(roomID)
	}
	channel.OnBackfill = r.MergeBackfill

	return r
}

// Unread returns the unread message count for a room
func (r *Reconciler) Unread(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread[roomID]
}

// MarkRead resets the unread watermark for a room
func (r *Reconciler) MarkRead(roomID string) {
	r.mu.Lock()
	delete(r.unread, roomID)
	r.mu.Unlock()
}

// Close unsubscribes from all socket events
func (r *Reconciler) Close() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

// MergeBackfill merges refetched history through the same dedup path
// as live events, so a backfill that re-sends already-applied messages
// creates no duplicates.
func (r *Reconciler) MergeBackfill(roomID string, messages []api.ChatMessage) {
	merged := 0
	for _, msg := range messages {
		if r.mergeMessage(msg, false) {
			merged++
		}
	}

	r.log.Debug("backfill merged",
		logger.WithRoomID(roomID),
		zap.Int("new", merged),
		zap.Int("total", len(messages)))
}

func (r *Reconciler) handleMessageNew(m *Message) {
	var payload ChatMessagePayload
	if err := m.ParsePayload(&payload); err != nil || payload.ID == "" {
		r.log.Warn("dropping malformed event", zap.Error(errors.MalformedEvent(string(m.Type), err)))
		return
	}

	roomID := payload.RoomID
	if roomID == "" {
		roomID = m.RoomID
	}

	if !r.channel.Accepts(roomID) {
		r.log.Debug("discarding event for unsubscribed room", logger.WithRoomID(roomID))
		return
	}

	msg := api.ChatMessage{
		ID:        payload.ID,
		RoomID:    roomID,
		UserID:    payload.UserID,
		Username:  payload.Username,
		Body:      payload.Body,
		ClientID:  payload.ClientID,
		CreatedAt: time.UnixMilli(payload.CreatedAt),
	}

	r.mergeMessage(msg, true)
}

// mergeMessage inserts a message unless it is already present. The
// dedup key is the message id; a client-assigned id additionally
// matches the local optimistic echo, which is replaced in place by the
// server copy. Returns true if the store changed.
func (r *Reconciler) mergeMessage(msg api.ChatMessage, live bool) bool {
	if r.messages.Contains(msg.ID) {
		r.log.Debug("duplicate message discarded", logger.WithMessageID(msg.ID))
		return false
	}

	ownEcho := msg.ClientID != "" && r.messages.Contains(msg.ClientID)

	clientID := msg.ClientID
	r.messages.ReconcileIncoming(msg.ID, KindSend, func(c *store.Collection[api.ChatMessage]) {
		if clientID != "" {
			// Replace the optimistic copy with the server-assigned one
			c.Remove(clientID)
		}
		c.Set(msg)
	})

	if ownEcho {
		return true
	}

	r.mu.Lock()
	r.unread[msg.RoomID]++
	r.mu.Unlock()

	if live && r.OnNewMessage != nil {
		r.OnNewMessage(msg.RoomID, msg)
	}
	return true
}

func (r *Reconciler) handleTypingStart(m *Message) {
	var payload TypingPayload
	if err := m.ParsePayload(&payload); err != nil || payload.UserID == "" {
		r.log.Warn("dropping malformed event", zap.Error(errors.MalformedEvent(string(m.Type), err)))
		return
	}

	roomID := payload.RoomID
	if roomID == "" {
		roomID = m.RoomID
	}

	if !r.channel.Accepts(roomID) {
		return
	}

	r.typing.Start(roomID, payload.UserID, payload.Username)
}

func (r *Reconciler) handleTypingStop(m *Message) {
	var payload TypingPayload
	if err := m.ParsePayload(&payload); err != nil || payload.UserID == "" {
		r.log.Warn("dropping malformed event", zap.Error(errors.MalformedEvent(string(m.Type), err)))
		return
	}

	roomID := payload.RoomID
	if roomID == "" {
		roomID = m.RoomID
	}

	if !r.channel.Accepts(roomID) {
		return
	}

	r.typing.Stop(roomID, payload.UserID)
}

// handleMembership routes moderation events through the membership
// store's reconcile path. Using the same mutation kind as local
// moderation actions defers a self-originated echo until the pending
// mutation resolves.
func (r *Reconciler) handleMembership(m *Message) {
	var payload MembershipPayload
	if err := m.ParsePayload(&payload); err != nil || payload.MembershipID == "" {
		r.log.Warn("dropping malformed event", zap.Error(errors.MalformedEvent(string(m.Type), err)))
		return
	}

	var patch store.Patch[api.Membership]

	switch m.Type {
	case EventMemberApproved:
		member := api.Membership{
			ID:          payload.MembershipID,
			CommunityID: payload.CommunityID,
			UserID:      payload.UserID,
			Username:    payload.Username,
			Role:        payload.Role,
			Status:      api.MembershipActive,
			JoinedAt:    time.UnixMilli(payload.Timestamp),
		}
		if member.Role == "" {
			member.Role = api.RoleMember
		}
		patch = store.InsertEntity(member)

	case EventMemberRejected:
		patch = store.RemoveEntity[api.Membership](payload.MembershipID)

	case EventMemberRole:
		role := payload.Role
		patch = store.UpdateEntity(payload.MembershipID, func(member api.Membership) api.Membership {
			member.Role = role
			return member
		})

	case EventMemberRemoved:
		patch = store.RemoveEntity[api.Membership](payload.MembershipID)

	default:
		return
	}

	r.memberships.ReconcileIncoming(payload.MembershipID, KindMembership, patch)
}
