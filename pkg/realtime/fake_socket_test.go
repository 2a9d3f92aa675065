package realtime

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/chorusapp/chorus-go/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Initialize("error", "")
	os.Exit(m.Run())
}

// fakeSocket is an in-process Socket double. Dispatch is synchronous in
// call order, matching the real socket's read-order delivery guarantee.
type fakeSocket struct {
	mu        sync.Mutex
	listeners map[EventType][]func(*Message)
	joins     []string
	leaves    []string
	emitted   []*Message
	joinErr   error
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		listeners: make(map[EventType][]func(*Message)),
	}
}

func (f *fakeSocket) On(eventType EventType, handler func(*Message)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[eventType] = append(f.listeners[eventType], handler)
	idx := len(f.listeners[eventType]) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listeners[eventType][idx] = nil
	}
}

func (f *fakeSocket) Emit(eventType EventType, roomID string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emitted = append(f.emitted, NewMessage(eventType, roomID, payload))
	return nil
}

func (f *fakeSocket) JoinRoom(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, roomID)
	return f.joinErr
}

func (f *fakeSocket) LeaveRoom(roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, roomID)
	return nil
}

// dispatch delivers an event to subscribed handlers synchronously
func (f *fakeSocket) dispatch(eventType EventType, roomID string, payload interface{}) {
	f.mu.Lock()
	handlers := make([]func(*Message), len(f.listeners[eventType]))
	copy(handlers, f.listeners[eventType])
	f.mu.Unlock()

	msg := &Message{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now()},
	}
	for _, h := range handlers {
		if h != nil {
			h(msg)
		}
	}
}

func (f *fakeSocket) joinCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.joins)
}

func (f *fakeSocket) emittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emitted)
}
