package store

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chorusapp/chorus-go/pkg/errors"
	"github.com/chorusapp/chorus-go/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.Initialize("error", "")
	os.Exit(m.Run())
}

type post struct {
	ID      string
	Likes   int
	LikedBy bool
}

func (p post) EntityID() string { return p.ID }

func seedPosts(s *Store[post], n int) {
	posts := make([]post, 0, n)
	for i := 1; i <= n; i++ {
		posts = append(posts, post{ID: fmt.Sprintf("p%d", i), Likes: i * 10})
	}
	s.Seed(posts)
}

func like(id string) Patch[post] {
	return UpdateEntity(id, func(p post) post {
		p.Likes++
		p.LikedBy = true
		return p
	})
}

func unlike(id string) Patch[post] {
	return UpdateEntity(id, func(p post) post {
		p.Likes--
		p.LikedBy = false
		return p
	})
}

func waitSettled(t *testing.T, s *Store[post], entityID, kind string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !s.IsPendingFor(entityID, kind)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMutateAppliesImmediately(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 1)

	release := make(chan struct{})
	err := s.Mutate(context.Background(), "p1", "like", like("p1"), unlike("p1"),
		func(ctx context.Context) error {
			<-release
			return nil
		})
	require.NoError(t, err)

	// Optimistic state is visible before the server answers
	got, ok := s.Get("p1")
	require.True(t, ok)
	assert.Equal(t, 11, got.Likes)
	assert.True(t, got.LikedBy)
	assert.True(t, s.IsPendingFor("p1", "like"))

	close(release)
	waitSettled(t, s, "p1", "like")

	// Confirmation changes nothing; optimistic state was already right
	got, _ = s.Get("p1")
	assert.Equal(t, 11, got.Likes)
	assert.True(t, got.LikedBy)
}

func TestMutateRollbackRestoresExactState(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 2)

	rejected := make(chan error, 1)
	s.SetErrorFunc(func(entityID, kind string, err error) {
		rejected <- err
	})

	before, _ := s.Get("p1")

	err := s.Mutate(context.Background(), "p1", "like", like("p1"), unlike("p1"),
		func(ctx context.Context) error {
			return errors.New(errors.ErrorTypeServer, "internal error", nil)
		})
	require.NoError(t, err)

	select {
	case err := <-rejected:
		assert.True(t, errors.IsMutationRejected(err))
	case <-time.After(2 * time.Second):
		t.Fatal("rejection callback never fired")
	}

	after, _ := s.Get("p1")
	assert.Equal(t, before, after)
	assert.False(t, s.IsPendingFor("p1", "like"))

	// Untouched entities stay untouched
	other, _ := s.Get("p2")
	assert.Equal(t, 20, other.Likes)
}

func TestMutateSingleFlightPerPair(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 1)

	var calls atomic.Int32
	release := make(chan struct{})
	send := func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	}

	require.NoError(t, s.Mutate(context.Background(), "p1", "like", like("p1"), unlike("p1"), send))

	// Rapid second tap: rejected, no state change, no second call
	err := s.Mutate(context.Background(), "p1", "like", unlike("p1"), like("p1"), send)
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyPending(err))

	got, _ := s.Get("p1")
	assert.Equal(t, 11, got.Likes)

	close(release)
	waitSettled(t, s, "p1", "like")
	assert.Equal(t, int32(1), calls.Load())
}

func TestCounterDeltasCommute(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 1)

	release := make(chan struct{})
	err := s.Mutate(context.Background(), "p1", "like", like("p1"), unlike("p1"),
		func(ctx context.Context) error {
			<-release
			return errors.New(errors.ErrorTypeServer, "rejected", nil)
		})
	require.NoError(t, err)

	// A remote user's like arrives under a different kind while ours is
	// in flight; it applies immediately as a relative delta.
	s.ReconcileIncoming("p1", "remote-like", UpdateEntity("p1", func(p post) post {
		p.Likes++
		return p
	}))

	got, _ := s.Get("p1")
	assert.Equal(t, 12, got.Likes)

	close(release)
	waitSettled(t, s, "p1", "like")

	// Our +1 rolled back, the remote +1 survives
	got, _ = s.Get("p1")
	assert.Equal(t, 11, got.Likes)
	assert.False(t, got.LikedBy)
}

func TestReconcileIncomingDefersBehindPending(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 1)

	release := make(chan struct{})
	err := s.Mutate(context.Background(), "p1", "like", like("p1"), unlike("p1"),
		func(ctx context.Context) error {
			<-release
			return nil
		})
	require.NoError(t, err)

	// Same (entity, kind) while pending: deferred, not applied
	s.ReconcileIncoming("p1", "like", UpdateEntity("p1", func(p post) post {
		p.Likes += 5
		return p
	}))
	s.ReconcileIncoming("p1", "like", UpdateEntity("p1", func(p post) post {
		p.Likes += 100
		return p
	}))

	got, _ := s.Get("p1")
	assert.Equal(t, 11, got.Likes)

	close(release)
	waitSettled(t, s, "p1", "like")

	// Both replayed in arrival order once the mutation resolved
	require.Eventually(t, func() bool {
		got, _ := s.Get("p1")
		return got.Likes == 116
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReconcileIncomingAppliesWhenIdle(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 1)

	s.ReconcileIncoming("p1", "like", UpdateEntity("p1", func(p post) post {
		p.Likes++
		return p
	}))

	got, _ := s.Get("p1")
	assert.Equal(t, 11, got.Likes)
}

func TestReconcileIncomingDropsNilPatch(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 1)

	s.ReconcileIncoming("p1", "like", nil)

	got, _ := s.Get("p1")
	assert.Equal(t, 10, got.Likes)
}

func TestReorderRevertsCompletely(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 4)

	rejected := make(chan struct{})
	s.SetErrorFunc(func(entityID, kind string, err error) {
		close(rejected)
	})

	err := s.Reorder(context.Background(), "p4", 0, func(ctx context.Context) error {
		return errors.New(errors.ErrorTypeServer, "no", nil)
	})
	require.NoError(t, err)

	select {
	case <-rejected:
	case <-time.After(2 * time.Second):
		t.Fatal("rejection callback never fired")
	}

	assert.Equal(t, []string{"p1", "p2", "p3", "p4"}, s.Order())
}

func TestReorderConfirmKeepsNewOrder(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 3)

	err := s.Reorder(context.Background(), "p3", 0, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	// Optimistic move is visible immediately
	assert.Equal(t, []string{"p3", "p1", "p2"}, s.Order())

	waitSettled(t, s, "p3", KindReorder)
	assert.Equal(t, []string{"p3", "p1", "p2"}, s.Order())
}

func TestCloseDiscardsLateResult(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 1)

	settled := make(chan struct{})
	release := make(chan struct{})
	err := s.Mutate(context.Background(), "p1", "like", like("p1"), unlike("p1"),
		func(ctx context.Context) error {
			defer close(settled)
			<-release
			return errors.New(errors.ErrorTypeServer, "rejected", nil)
		})
	require.NoError(t, err)

	s.Close()
	close(release)
	<-settled

	// The rejection arrived after Close; no rollback is applied
	time.Sleep(20 * time.Millisecond)
	got, _ := s.Get("p1")
	assert.Equal(t, 11, got.Likes)

	// New mutations are refused outright
	err = s.Mutate(context.Background(), "p1", "like", like("p1"), unlike("p1"),
		func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestSubscribe(t *testing.T) {
	s := New[post](nil)

	var fired atomic.Int32
	unsub := s.Subscribe(func() { fired.Add(1) })

	s.Upsert(post{ID: "p1"})
	assert.Equal(t, int32(1), fired.Load())

	unsub()
	s.Upsert(post{ID: "p2"})
	assert.Equal(t, int32(1), fired.Load())
}

func TestPatchHelpers(t *testing.T) {
	s := New[post](nil)
	seedPosts(s, 2)

	s.ReconcileIncoming("p3", "insert", InsertEntity(post{ID: "p3", Likes: 30}))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"p1", "p2", "p3"}, s.Order())

	s.ReconcileIncoming("p1", "remove", RemoveEntity[post]("p1"))
	assert.False(t, s.Contains("p1"))

	// Updating a missing entity is a no-op
	s.ReconcileIncoming("p9", "update", UpdateEntity("p9", func(p post) post {
		p.Likes = 999
		return p
	}))
	assert.False(t, s.Contains("p9"))
}
