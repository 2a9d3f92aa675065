package realtime

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/logger"
)

// DefaultTypingTimeout is the soft expiry for a typing:start with no
// matching typing:stop. Guards against a lost stop event leaving a
// stale indicator forever.
const DefaultTypingTimeout = 2 * time.Second

type typingEntry struct {
	username  string
	expiresAt time.Time
	timer     *time.Timer
}

// TypingTracker keeps the per-room set of currently-typing users.
// The state is derived, never persisted: it is cleared entirely on
// room re-join.
type TypingTracker struct {
	mu      sync.Mutex
	rooms   map[string]map[string]*typingEntry
	timeout time.Duration
	closed  bool

	// OnChange fires whenever a room's typing set changes
	OnChange func(roomID string)

	log *zap.Logger
}

// NewTypingTracker creates a tracker with the given soft timeout.
// A zero timeout uses DefaultTypingTimeout.
func NewTypingTracker(timeout time.Duration) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingTracker{
		rooms:   make(map[string]map[string]*typingEntry),
		timeout: timeout,
		log:     logger.Log,
	}
}

// Start records or refreshes a user's typing entry. Every inbound
// typing:start resets the expiry.
func (t *TypingTracker) Start(roomID, userID, username string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	room := t.rooms[roomID]
	if room == nil {
		room = make(map[string]*typingEntry)
		t.rooms[roomID] = room
	}

	if entry, ok := room[userID]; ok {
		entry.expiresAt = time.Now().Add(t.timeout)
		if entry.username == "" {
			entry.username = username
		}
		entry.timer.Reset(t.timeout)
		t.mu.Unlock()
		return
	}

	room[userID] = &typingEntry{
		username:  username,
		expiresAt: time.Now().Add(t.timeout),
		timer: time.AfterFunc(t.timeout, func() {
			t.expire(roomID, userID)
		}),
	}
	onChange := t.OnChange
	t.mu.Unlock()

	if onChange != nil {
		onChange(roomID)
	}
}

// Stop removes a user's typing entry
func (t *TypingTracker) Stop(roomID, userID string) {
	t.mu.Lock()
	changed := t.removeLocked(roomID, userID)
	onChange := t.OnChange
	t.mu.Unlock()

	if changed && onChange != nil {
		onChange(roomID)
	}
}

// Active returns the user ids currently typing in a room, sorted for
// stable display
func (t *TypingTracker) Active(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	room := t.rooms[roomID]
	users := make([]string, 0, len(room))
	for userID := range room {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Username returns the display name recorded for a typing user
func (t *TypingTracker) Username(roomID, userID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.rooms[roomID][userID]; ok {
		return entry.username
	}
	return ""
}

// ClearRoom drops all typing state for a room. Called on re-join;
// safe because the state is derived.
func (t *TypingTracker) ClearRoom(roomID string) {
	t.mu.Lock()
	room := t.rooms[roomID]
	for _, entry := range room {
		entry.timer.Stop()
	}
	delete(t.rooms, roomID)
	onChange := t.OnChange
	t.mu.Unlock()

	if len(room) > 0 && onChange != nil {
		onChange(roomID)
	}
}

// Close stops all timers
func (t *TypingTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for _, room := range t.rooms {
		for _, entry := range room {
			entry.timer.Stop()
		}
	}
	t.rooms = make(map[string]map[string]*typingEntry)
}

// expire drops an entry whose soft timeout elapsed, as if a stop had
// been received
func (t *TypingTracker) expire(roomID, userID string) {
	t.mu.Lock()
	entry, ok := t.rooms[roomID][userID]
	if !ok || time.Now().Before(entry.expiresAt) {
		// Refreshed after this timer fired; the reset timer owns it now
		t.mu.Unlock()
		return
	}
	t.removeLocked(roomID, userID)
	onChange := t.OnChange
	t.mu.Unlock()

	t.log.Debug("typing entry expired",
		logger.WithRoomID(roomID),
		logger.WithUserID(userID))

	if onChange != nil {
		onChange(roomID)
	}
}

// removeLocked deletes an entry and stops its timer (must hold lock)
func (t *TypingTracker) removeLocked(roomID, userID string) bool {
	room := t.rooms[roomID]
	entry, ok := room[userID]
	if !ok {
		return false
	}

	entry.timer.Stop()
	delete(room, userID)
	if len(room) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}
