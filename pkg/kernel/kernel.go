// Package kernel provides dependency management for the sync core. It
// is the composition root: stores and services are constructed here
// and injected into screens, never reached through ambient singletons.
package kernel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/api"
	"github.com/chorusapp/chorus-go/pkg/client"
	"github.com/chorusapp/chorus-go/pkg/config"
	"github.com/chorusapp/chorus-go/pkg/logger"
	"github.com/chorusapp/chorus-go/pkg/playback"
	"github.com/chorusapp/chorus-go/pkg/realtime"
	"github.com/chorusapp/chorus-go/pkg/service"
	"github.com/chorusapp/chorus-go/pkg/store"
)

// Kernel holds all core dependencies and provides type-safe access
type Kernel struct {
	// Core infrastructure
	logger *zap.Logger
	client *client.Client
	api    *api.API

	// Realtime
	socket     *realtime.WebSocket
	channel    *realtime.Channel
	reconciler *realtime.Reconciler
	typing     *realtime.TypingTracker

	// Services
	feed        *service.FeedService
	communities *service.CommunityService
	polls       *service.PollService
	chat        *service.ChatService

	// Playback
	playback *playback.Coordinator

	// Lifecycle hooks
	cleanupFuncs []func(context.Context) error
	mu           sync.RWMutex
}

// New creates an empty kernel. Dependencies are registered with Set*
// methods or assembled via Bootstrap.
func New() *Kernel {
	return &Kernel{
		cleanupFuncs: make([]func(context.Context) error, 0),
	}
}

// Bootstrap assembles the full core from loaded configuration for the
// given local user
func Bootstrap(userID, username string) (*Kernel, error) {
	k := New()

	k.SetLogger(logger.Log)

	httpClient := client.New(client.Config{
		BaseURL: config.GetString("api.base_url"),
		Timeout: time.Duration(config.GetInt("api.timeout")) * time.Second,
	})
	k.SetClient(httpClient)

	apiSurface := api.New(httpClient)
	k.SetAPI(apiSurface)

	sock := realtime.NewWebSocket(realtime.SocketConfig{
		Host:                 config.GetString("socket.host"),
		Port:                 config.GetInt("socket.port"),
		Path:                 config.GetString("socket.path"),
		UseTLS:               config.GetBool("socket.use_tls"),
		ConnectTimeout:       time.Duration(config.GetInt("socket.connect_timeout_ms")) * time.Millisecond,
		HeartbeatInterval:    time.Duration(config.GetInt("socket.heartbeat_interval_ms")) * time.Millisecond,
		ReconnectBaseDelay:   time.Duration(config.GetInt("socket.reconnect_base_delay_ms")) * time.Millisecond,
		ReconnectMaxDelay:    time.Duration(config.GetInt("socket.reconnect_max_delay_ms")) * time.Millisecond,
		MaxReconnectAttempts: config.GetInt("socket.max_reconnect_attempts"),
	})
	k.SetSocket(sock)
	k.OnCleanup(func(ctx context.Context) error {
		return sock.Disconnect()
	})

	messages := store.New[api.ChatMessage](logger.Log)
	memberships := store.New[api.Membership](logger.Log)
	communities := store.New[api.Community](logger.Log)
	posts := store.New[api.Post](logger.Log)
	polls := store.New[api.Poll](logger.Log)

	backfill := func(ctx context.Context, roomID string, limit int) ([]api.ChatMessage, error) {
		response, err := apiSurface.GetRoomMessages(ctx, roomID, limit)
		if err != nil {
			return nil, err
		}
		return response.Messages, nil
	}

	channel := realtime.NewChannel(sock, backfill, realtime.ChannelConfig{
		BackfillLimit: config.GetInt("realtime.backfill_limit"),
	})
	k.SetChannel(channel)

	typing := realtime.NewTypingTracker(
		time.Duration(config.GetInt("realtime.typing_timeout_ms")) * time.Millisecond)
	k.SetTyping(typing)
	k.OnCleanup(func(ctx context.Context) error {
		typing.Close()
		return nil
	})

	reconciler := realtime.NewReconciler(sock, channel, messages, memberships, typing)
	k.SetReconciler(reconciler)

	k.SetFeed(service.NewFeedService(apiSurface, posts))
	k.SetCommunities(service.NewCommunityService(apiSurface, communities, memberships))
	k.SetPolls(service.NewPollService(apiSurface, polls))
	k.SetChat(service.NewChatService(apiSurface, messages, channel, userID, username))

	k.SetPlayback(playback.NewCoordinator())

	return k, nil
}

// SetLogger registers the logger
func (k *Kernel) SetLogger(l *zap.Logger) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.logger = l
	return k
}

// Logger returns the logger instance
func (k *Kernel) Logger() *zap.Logger {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.logger == nil {
		return logger.Log
	}
	return k.logger
}

// SetClient registers the HTTP client
func (k *Kernel) SetClient(c *client.Client) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.client = c
	return k
}

// Client returns the HTTP client
func (k *Kernel) Client() *client.Client {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.client
}

// SetAPI registers the typed API surface
func (k *Kernel) SetAPI(a *api.API) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.api = a
	return k
}

// API returns the typed API surface
func (k *Kernel) API() *api.API {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.api
}

// SetSocket registers the shared socket
func (k *Kernel) SetSocket(s *realtime.WebSocket) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.socket = s
	return k
}

// Socket returns the shared socket
func (k *Kernel) Socket() *realtime.WebSocket {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.socket
}

// SetChannel registers the room channel
func (k *Kernel) SetChannel(c *realtime.Channel) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.channel = c
	return k
}

// Channel returns the room channel
func (k *Kernel) Channel() *realtime.Channel {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.channel
}

// SetReconciler registers the event reconciler
func (k *Kernel) SetReconciler(r *realtime.Reconciler) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.reconciler = r
	return k
}

// Reconciler returns the event reconciler
func (k *Kernel) Reconciler() *realtime.Reconciler {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.reconciler
}

// SetTyping registers the typing tracker
func (k *Kernel) SetTyping(t *realtime.TypingTracker) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.typing = t
	return k
}

// Typing returns the typing tracker
func (k *Kernel) Typing() *realtime.TypingTracker {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.typing
}

// SetFeed registers the feed service
func (k *Kernel) SetFeed(s *service.FeedService) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.feed = s
	return k
}

// Feed returns the feed service
func (k *Kernel) Feed() *service.FeedService {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.feed
}

// SetCommunities registers the community service
func (k *Kernel) SetCommunities(s *service.CommunityService) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.communities = s
	return k
}

// Communities returns the community service
func (k *Kernel) Communities() *service.CommunityService {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.communities
}

// SetPolls registers the poll service
func (k *Kernel) SetPolls(s *service.PollService) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.polls = s
	return k
}

// Polls returns the poll service
func (k *Kernel) Polls() *service.PollService {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.polls
}

// SetChat registers the chat service
func (k *Kernel) SetChat(s *service.ChatService) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.chat = s
	return k
}

// Chat returns the chat service
func (k *Kernel) Chat() *service.ChatService {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.chat
}

// SetPlayback registers the playback coordinator
func (k *Kernel) SetPlayback(c *playback.Coordinator) *Kernel {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.playback = c
	return k
}

// Playback returns the playback coordinator
func (k *Kernel) Playback() *playback.Coordinator {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.playback
}

// OnCleanup registers a function to run during shutdown
func (k *Kernel) OnCleanup(fn func(context.Context) error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.cleanupFuncs = append(k.cleanupFuncs, fn)
}

// Shutdown runs cleanup functions in reverse registration order
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.mu.Lock()
	funcs := k.cleanupFuncs
	k.cleanupFuncs = nil
	k.mu.Unlock()

	var firstErr error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
