// Package realtime manages room subscriptions over a shared socket
// connection and reconciles server-pushed events into the optimistic
// stores.
package realtime

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	// Try Unix milliseconds (integer) first
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON implements custom marshaling (always output as RFC3339)
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// EventType identifies a realtime event for routing
type EventType string

// Event types for realtime communication
const (
	// Connection-state events (synthetic, socket-level)
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"

	// Room lifecycle
	EventRoomJoin   EventType = "room:join"   // outbound join request
	EventRoomJoined EventType = "room:joined" // server ack
	EventRoomLeave  EventType = "room:leave"

	// Chat
	EventMessageNew  EventType = "message:new"
	EventTypingStart EventType = "typing:start"
	EventTypingStop  EventType = "typing:stop"

	// Membership / moderation
	EventMemberApproved EventType = "member:approved"
	EventMemberRejected EventType = "member:rejected"
	EventMemberRole     EventType = "member:role"
	EventMemberRemoved  EventType = "member:removed"

	// System
	EventHeartbeat EventType = "heartbeat"
	EventPong      EventType = "pong"
	EventError     EventType = "error"
)

// Message is the wire envelope for realtime events
type Message struct {
	// Type identifies the event for routing
	Type EventType `json:"type"`

	// RoomID scopes room-bound events
	RoomID string `json:"room_id,omitempty"`

	// ID is a unique message identifier
	ID string `json:"id,omitempty"`

	// Payload contains the event-specific data
	Payload interface{} `json:"payload,omitempty"`

	// Timestamp when the event was created (accepts Unix ms or RFC3339)
	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(eventType EventType, roomID string, payload interface{}) *Message {
	return &Message{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}

	// Re-marshal and unmarshal to properly type the payload
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// RoomPayload carries a room id for join/leave traffic
type RoomPayload struct {
	RoomID string `json:"room_id"`
}

// ChatMessagePayload is the payload of a message:new event
type ChatMessagePayload struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Body      string `json:"body"`
	ClientID  string `json:"client_id,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// TypingPayload is the payload of typing:start / typing:stop events
type TypingPayload struct {
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// MembershipPayload is the payload of member:* events
type MembershipPayload struct {
	MembershipID string `json:"membership_id"`
	CommunityID  string `json:"community_id"`
	UserID       string `json:"user_id"`
	Username     string `json:"username,omitempty"`
	Role         string `json:"role,omitempty"`
	Status       string `json:"status,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// ErrorPayload is the payload of an error event
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatPayload is the payload of a heartbeat/pong exchange
type HeartbeatPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time,omitempty"`
}
