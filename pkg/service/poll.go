package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/api"
	"github.com/chorusapp/chorus-go/pkg/logger"
	"github.com/chorusapp/chorus-go/pkg/store"
)

// KindVote is the mutation kind for poll voting
const KindVote = "vote"

// PollService owns the poll store and the optimistic vote action
type PollService struct {
	api   *api.API
	polls *store.Store[api.Poll]
	log   *zap.Logger
}

// NewPollService creates the poll service
func NewPollService(a *api.API, polls *store.Store[api.Poll]) *PollService {
	return &PollService{
		api:   a,
		polls: polls,
		log:   logger.Log,
	}
}

// Polls returns the observable poll store
func (s *PollService) Polls() *store.Store[api.Poll] {
	return s.polls
}

// Vote optimistically casts a vote: the chosen option's tally bumps by
// one and any previous vote by this user moves off its old option.
// The inverse restores both tallies and the recorded choice exactly.
func (s *PollService) Vote(ctx context.Context, pollID, optionID string) error {
	poll, ok := s.polls.Get(pollID)
	if !ok {
		s.log.Warn("vote on unknown poll", zap.String("poll_id", pollID))
		return nil
	}
	previousVote := poll.VotedOptionID

	forward := store.UpdateEntity(pollID, func(p api.Poll) api.Poll {
		p.Options = adjustTallies(p.Options, optionID, previousVote)
		p.VotedOptionID = optionID
		return p
	})
	inverse := store.UpdateEntity(pollID, func(p api.Poll) api.Poll {
		p.Options = adjustTallies(p.Options, previousVote, optionID)
		p.VotedOptionID = previousVote
		return p
	})

	return s.polls.Mutate(ctx, pollID, KindVote, forward, inverse, func(ctx context.Context) error {
		return s.api.VotePoll(ctx, pollID, optionID)
	})
}

// ReconcileVote merges another user's vote delta pushed by the server
func (s *PollService) ReconcileVote(pollID, optionID string, delta int) {
	s.polls.ReconcileIncoming(pollID, KindVote, store.UpdateEntity(pollID, func(p api.Poll) api.Poll {
		options := make([]api.PollOption, len(p.Options))
		copy(options, p.Options)
		for i := range options {
			if options[i].ID == optionID {
				options[i].VoteCount += delta
			}
		}
		p.Options = options
		return p
	}))
}

// adjustTallies returns a copy of options with +1 on the gained option
// and -1 on the lost one. Empty ids are skipped.
func adjustTallies(options []api.PollOption, gained, lost string) []api.PollOption {
	next := make([]api.PollOption, len(options))
	copy(next, options)
	for i := range next {
		if gained != "" && next[i].ID == gained {
			next[i].VoteCount++
		}
		if lost != "" && next[i].ID == lost {
			next[i].VoteCount--
		}
	}
	return next
}
