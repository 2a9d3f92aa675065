package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/api"
	"github.com/chorusapp/chorus-go/pkg/errors"
	"github.com/chorusapp/chorus-go/pkg/logger"
	"github.com/chorusapp/chorus-go/pkg/realtime"
	"github.com/chorusapp/chorus-go/pkg/store"
)

// ChatService owns the message store for the active room plus the
// outbound send and typing actions
type ChatService struct {
	api      *api.API
	messages *store.Store[api.ChatMessage]
	channel  *realtime.Channel
	userID   string
	username string
	log      *zap.Logger
}

// NewChatService creates the chat service for the local user
func NewChatService(a *api.API, messages *store.Store[api.ChatMessage], channel *realtime.Channel, userID, username string) *ChatService {
	return &ChatService{
		api:      a,
		messages: messages,
		channel:  channel,
		userID:   userID,
		username: username,
		log:      logger.Log,
	}
}

// Messages returns the observable message store
func (s *ChatService) Messages() *store.Store[api.ChatMessage] {
	return s.messages
}

// Enter joins a room and seeds its history
func (s *ChatService) Enter(ctx context.Context, roomID string, limit int) error {
	history, err := s.api.GetRoomMessages(ctx, roomID, limit)
	if err != nil {
		return err
	}
	s.messages.Seed(history.Messages)

	return s.channel.Join(roomID)
}

// Leave detaches from the room
func (s *ChatService) Leave(roomID string) error {
	return s.channel.Leave(roomID)
}

// Send posts a message optimistically. The local copy carries a
// client-assigned id; the realtime echo from the server replaces it
// with the server-assigned one, so the send is never duplicated even
// when a reconnect backfill re-delivers it.
func (s *ChatService) Send(ctx context.Context, roomID, body string) error {
	if s.channel.Status() != realtime.RoomJoined || s.channel.Room() != roomID {
		return errors.RoomNotJoined(roomID)
	}

	clientID := uuid.NewString()
	echo := api.ChatMessage{
		ID:        clientID,
		RoomID:    roomID,
		UserID:    s.userID,
		Username:  s.username,
		Body:      body,
		ClientID:  clientID,
		CreatedAt: time.Now(),
	}

	forward := store.InsertEntity(echo)
	inverse := store.RemoveEntity[api.ChatMessage](clientID)

	return s.messages.Mutate(ctx, clientID, realtime.KindSend, forward, inverse,
		func(ctx context.Context) error {
			_, err := s.api.SendMessage(ctx, roomID, clientID, body)
			return err
		})
}

// StartTyping announces the local user is composing
func (s *ChatService) StartTyping() error {
	err := s.channel.SendTypingStart(s.userID, s.username)
	if err != nil {
		s.log.Debug("typing start not sent", zap.Error(err))
	}
	return err
}

// StopTyping announces the local user stopped composing
func (s *ChatService) StopTyping() error {
	return s.channel.SendTypingStop(s.userID)
}
