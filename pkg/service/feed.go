// Package service implements the user-facing optimistic actions: each
// operation applies a local patch immediately, dispatches the API call,
// and relies on the store to confirm or roll back.
package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/api"
	"github.com/chorusapp/chorus-go/pkg/logger"
	"github.com/chorusapp/chorus-go/pkg/store"
)

// Mutation kinds used by feed actions. Like and unlike share a kind so
// a rapid toggle cannot race its own in-flight request.
const (
	KindLike = "like"
)

// FeedService owns the feed post store and its optimistic actions
type FeedService struct {
	api   *api.API
	posts *store.Store[api.Post]
	log   *zap.Logger
}

// NewFeedService creates the feed service over a shared post store
func NewFeedService(a *api.API, posts *store.Store[api.Post]) *FeedService {
	return &FeedService{
		api:   a,
		posts: posts,
		log:   logger.Log,
	}
}

// Posts returns the underlying observable store
func (s *FeedService) Posts() *store.Store[api.Post] {
	return s.posts
}

// Refresh replaces the feed from a ranked fetch
func (s *FeedService) Refresh(ctx context.Context, weights api.FeedWeights, limit int) error {
	response, err := s.api.GetFeed(ctx, weights, limit, "")
	if err != nil {
		return err
	}

	s.posts.Seed(response.Posts)
	s.log.Debug("feed refreshed", zap.Int("count", len(response.Posts)))
	return nil
}

// Like applies an optimistic like: count +1, flag set, exact inverse
// on rejection. Counter patches are relative deltas so they commute
// with concurrent server-confirmed updates.
func (s *FeedService) Like(ctx context.Context, postID string) error {
	forward := store.UpdateEntity(postID, func(p api.Post) api.Post {
		p.LikeCount++
		p.LikedByMe = true
		return p
	})
	inverse := store.UpdateEntity(postID, func(p api.Post) api.Post {
		p.LikeCount--
		p.LikedByMe = false
		return p
	})

	return s.posts.Mutate(ctx, postID, KindLike, forward, inverse, func(ctx context.Context) error {
		return s.api.LikePost(ctx, postID)
	})
}

// Unlike reverses a like optimistically. It shares the like kind, so
// toggling while the like is still in flight is a silent no-op.
func (s *FeedService) Unlike(ctx context.Context, postID string) error {
	forward := store.UpdateEntity(postID, func(p api.Post) api.Post {
		p.LikeCount--
		p.LikedByMe = false
		return p
	})
	inverse := store.UpdateEntity(postID, func(p api.Post) api.Post {
		p.LikeCount++
		p.LikedByMe = true
		return p
	})

	return s.posts.Mutate(ctx, postID, KindLike, forward, inverse, func(ctx context.Context) error {
		return s.api.UnlikePost(ctx, postID)
	})
}

// Reorder moves a post to a new feed position optimistically, with
// full revert if the server declines
func (s *FeedService) Reorder(ctx context.Context, postID string, toIndex int) error {
	return s.posts.Reorder(ctx, postID, toIndex, func(ctx context.Context) error {
		return s.api.ReorderPost(ctx, postID, toIndex)
	})
}

// ReconcileLike merges another user's like delta pushed by the server.
// Shares the like kind so it defers behind the local user's own
// pending like instead of interleaving with it.
func (s *FeedService) ReconcileLike(postID string, delta int) {
	s.posts.ReconcileIncoming(postID, KindLike, store.UpdateEntity(postID, func(p api.Post) api.Post {
		p.LikeCount += delta
		return p
	}))
}
