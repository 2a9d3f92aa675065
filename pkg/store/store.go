// Package store provides the generic optimistic state container. Every
// domain store (feed, community membership, polls, chat messages) is an
// instance of this pattern: local state mutates immediately, a ledger
// entry records how to undo it, and server confirmation or rejection
// resolves the entry asynchronously.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/errors"
	"github.com/chorusapp/chorus-go/pkg/ledger"
	"github.com/chorusapp/chorus-go/pkg/logger"
)

// Patch is a delta applied to the store's collection. Counter-style
// fields must always patch by relative deltas, never absolute
// overwrites, so optimistic and server-confirmed updates commute.
type Patch[E Entity] func(*Collection[E])

// SendFunc dispatches a mutation to the server. A nil error confirms
// the optimistic state; any error triggers an exact rollback.
type SendFunc func(ctx context.Context) error

// ErrorFunc is notified when the server rejects a mutation, after the
// store has already rolled back. Intended for transient UI feedback.
type ErrorFunc func(entityID, kind string, err error)

// KindReorder is the mutation kind used by Reorder
const KindReorder = "reorder"

type deferKey struct {
	entityID string
	kind     string
}

// Store is an observable optimistic state container for one entity
// collection. Entities are owned by exactly one store.
type Store[E Entity] struct {
	mu         sync.Mutex
	coll       *Collection[E]
	ledger     *ledger.Ledger[Patch[E]]
	deferred   map[deferKey][]Patch[E]
	listeners  map[int]func()
	nextListen int
	closed     bool

	onError ErrorFunc
	log     *zap.Logger
}

// New creates an empty store
func New[E Entity](log *zap.Logger) *Store[E] {
	if log == nil {
		log = logger.Log
	}
	return &Store[E]{
		coll:      NewCollection[E](),
		ledger:    ledger.New[Patch[E]](),
		deferred:  make(map[deferKey][]Patch[E]),
		listeners: make(map[int]func()),
		log:       log,
	}
}

// SetErrorFunc registers the mutation-rejection callback
func (s *Store[E]) SetErrorFunc(fn ErrorFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Seed replaces store contents from a fetch, preserving nothing.
// Pending ledger entries are untouched; callers seed before mutating.
func (s *Store[E]) Seed(entities []E) {
	s.mu.Lock()
	s.coll = NewCollection[E]()
	for _, e := range entities {
		s.coll.Set(e)
	}
	s.mu.Unlock()
	s.notify()
}

// Upsert inserts or replaces a single entity
func (s *Store[E]) Upsert(e E) {
	s.mu.Lock()
	s.coll.Set(e)
	s.mu.Unlock()
	s.notify()
}

// Get returns the entity with the given id
func (s *Store[E]) Get(id string) (E, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Get(id)
}

// Contains reports whether an entity exists
func (s *Store[E]) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Contains(id)
}

// List returns all entities in display order
func (s *Store[E]) List() []E {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.List()
}

// Order returns a copy of the current display order
func (s *Store[E]) Order() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.OrderSnapshot()
}

// Len returns the number of entities
func (s *Store[E]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Len()
}

// IsPendingFor reports whether a mutation is in flight for the pair
func (s *Store[E]) IsPendingFor(entityID, kind string) bool {
	return s.ledger.IsPendingFor(entityID, kind)
}

// Mutate applies forward synchronously, records the ledger entry, and
// dispatches send asynchronously. On server success the entry is
// confirmed; on failure the stored inverse is re-applied, restoring
// pre-mutation state exactly.
//
// A second Mutate for the same (entityID, kind) while one is in flight
// returns an AlreadyPending error and leaves state untouched. That is
// the documented policy for rapid double-taps: a silent no-op.
func (s *Store[E]) Mutate(ctx context.Context, entityID, kind string, forward, inverse Patch[E], send SendFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New(errors.ErrorTypeUnknown, "store is closed", nil)
	}

	id, err := s.ledger.Begin(entityID, kind, forward, inverse)
	if err != nil {
		s.mu.Unlock()
		s.log.Debug("mutation dropped, already pending",
			logger.WithEntityID(entityID),
			logger.WithMutationKind(kind))
		return err
	}

	forward(s.coll)
	s.mu.Unlock()
	s.notify()

	go s.settle(ctx, id, entityID, kind, send)
	return nil
}

// Reorder moves an entity to a new display position optimistically.
// The inverse is a snapshot of the full pre-move order: reorder is
// best-effort and reverts completely if the server declines.
func (s *Store[E]) Reorder(ctx context.Context, entityID string, toIndex int, send SendFunc) error {
	s.mu.Lock()
	snapshot := s.coll.OrderSnapshot()
	s.mu.Unlock()

	forward := func(c *Collection[E]) { c.Move(entityID, toIndex) }
	inverse := func(c *Collection[E]) { c.SetOrder(snapshot) }

	return s.Mutate(ctx, entityID, KindReorder, forward, inverse, send)
}

// ReconcileIncoming merges a server-pushed patch for events from other
// users or devices. While a mutation for the same (entityID, kind) is
// unresolved the patch is deferred and replayed once the ledger clears,
// so it never interleaves with an unconfirmed optimistic change.
// Fire-and-forget: malformed (nil) patches are dropped and logged.
func (s *Store[E]) ReconcileIncoming(entityID, kind string, patch Patch[E]) {
	if patch == nil {
		s.log.Warn("dropping nil incoming patch",
			logger.WithEntityID(entityID),
			logger.WithMutationKind(kind))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if s.ledger.IsPendingFor(entityID, kind) {
		key := deferKey{entityID: entityID, kind: kind}
		s.deferred[key] = append(s.deferred[key], patch)
		s.mu.Unlock()
		s.log.Debug("deferred incoming patch behind pending mutation",
			logger.WithEntityID(entityID),
			logger.WithMutationKind(kind))
		return
	}

	patch(s.coll)
	s.mu.Unlock()
	s.notify()
}

// Subscribe registers a change listener and returns its unsubscribe
// function. Listeners fire after every applied patch.
func (s *Store[E]) Subscribe(listener func()) func() {
	s.mu.Lock()
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Close marks the store dead. Late send results are discarded rather
// than cancelled; the network call runs to completion and its outcome
// is ignored.
func (s *Store[E]) Close() {
	s.mu.Lock()
	s.closed = true
	s.listeners = make(map[int]func())
	s.mu.Unlock()
}

// settle resolves a ledger entry from the send outcome
func (s *Store[E]) settle(ctx context.Context, id ledger.MutationID, entityID, kind string, send SendFunc) {
	sendErr := send(ctx)

	s.mu.Lock()
	if s.closed {
		// Owning screen was torn down mid-flight; discard the result.
		s.mu.Unlock()
		return
	}

	if sendErr == nil {
		if err := s.ledger.Confirm(id); err != nil {
			s.mu.Unlock()
			return
		}
		s.replayDeferredLocked(entityID, kind)
		s.mu.Unlock()
		s.notify()
		return
	}

	inverse, err := s.ledger.Rollback(id)
	if err != nil {
		s.mu.Unlock()
		return
	}
	inverse(s.coll)
	s.replayDeferredLocked(entityID, kind)
	onError := s.onError
	s.mu.Unlock()

	s.notify()
	s.log.Warn("mutation rejected, rolled back",
		logger.WithEntityID(entityID),
		logger.WithMutationKind(kind),
		zap.Error(sendErr))

	if onError != nil {
		onError(entityID, kind, errors.MutationRejected(entityID, kind, sendErr))
	}
}

// replayDeferredLocked applies queued incoming patches in arrival
// order once the pending mutation resolves (must hold lock)
func (s *Store[E]) replayDeferredLocked(entityID, kind string) {
	key := deferKey{entityID: entityID, kind: kind}
	patches := s.deferred[key]
	if len(patches) == 0 {
		return
	}
	delete(s.deferred, key)

	for _, patch := range patches {
		patch(s.coll)
	}
}

// notify invokes listeners outside the store lock
func (s *Store[E]) notify() {
	s.mu.Lock()
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}
