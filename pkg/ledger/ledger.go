// Package ledger tracks in-flight optimistic mutations keyed by target
// entity. It enforces single-flight per (entity, kind) and holds the
// inverse patch needed to undo a mutation the server rejects.
//
// The ledger is in-memory only and lives for the process lifetime.
// In-flight mutations are lost on restart and re-derived from a
// subsequent fetch.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chorusapp/chorus-go/pkg/errors"
)

// MutationID identifies a pending mutation
type MutationID string

// Status represents the lifecycle state of a mutation
type Status int

const (
	StatusApplying Status = iota
	StatusConfirmed
	StatusRolledBack
)

// String implements Stringer for Status
func (s Status) String() string {
	switch s {
	case StatusApplying:
		return "applying"
	case StatusConfirmed:
		return "confirmed"
	case StatusRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// entry is one pending mutation. The forward patch has already been
// merged into visible state; the inverse patch undoes it exactly.
type entry[P any] struct {
	id        MutationID
	entityID  string
	kind      string
	forward   P
	inverse   P
	createdAt time.Time
	status    Status
}

type pendingKey struct {
	entityID string
	kind     string
}

// Ledger tracks pending mutations. P is the patch representation; the
// ledger never applies patches, it only stores and returns them.
type Ledger[P any] struct {
	mu      sync.Mutex
	entries map[MutationID]*entry[P]
	pending map[pendingKey]MutationID
}

// New creates an empty ledger
func New[P any]() *Ledger[P] {
	return &Ledger[P]{
		entries: make(map[MutationID]*entry[P]),
		pending: make(map[pendingKey]MutationID),
	}
}

// Begin creates a new Applying entry for (entityID, kind). It fails
// with an AlreadyPending error if another entry for the same pair is
// still in flight; the second attempt is rejected, not queued.
func (l *Ledger[P]) Begin(entityID, kind string, forward, inverse P) (MutationID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := pendingKey{entityID: entityID, kind: kind}
	if _, busy := l.pending[key]; busy {
		return "", errors.AlreadyPending(entityID, kind)
	}

	id := MutationID(uuid.NewString())
	l.entries[id] = &entry[P]{
		id:        id,
		entityID:  entityID,
		kind:      kind,
		forward:   forward,
		inverse:   inverse,
		createdAt: time.Now(),
		status:    StatusApplying,
	}
	l.pending[key] = id

	return id, nil
}

// Confirm transitions Applying to Confirmed and removes the entry.
// Confirmed mutations leave no residue: the store's state is already
// the source of truth.
func (l *Ledger[P]) Confirm(id MutationID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return errors.New(errors.ErrorTypeUnknown, "unknown mutation id", nil)
	}

	e.status = StatusConfirmed
	l.remove(e)
	return nil
}

// Rollback transitions Applying to RolledBack, removes the entry, and
// returns the stored inverse patch for the caller to re-apply.
func (l *Ledger[P]) Rollback(id MutationID) (P, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		var zero P
		return zero, errors.New(errors.ErrorTypeUnknown, "unknown mutation id", nil)
	}

	e.status = StatusRolledBack
	l.remove(e)
	return e.inverse, nil
}

// IsPendingFor reports whether an Applying entry exists for the pair.
// The reconciler uses this to suppress duplicate application of a
// self-originated realtime echo.
func (l *Ledger[P]) IsPendingFor(entityID, kind string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, busy := l.pending[pendingKey{entityID: entityID, kind: kind}]
	return busy
}

// PendingCount returns the number of in-flight mutations
func (l *Ledger[P]) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// remove deletes an entry and its pending index (must hold lock)
func (l *Ledger[P]) remove(e *entry[P]) {
	delete(l.entries, e.id)
	delete(l.pending, pendingKey{entityID: e.entityID, kind: e.kind})
}
