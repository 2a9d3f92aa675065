package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/chorusapp/chorus-go/pkg/api"
	"github.com/chorusapp/chorus-go/pkg/logger"
	"github.com/chorusapp/chorus-go/pkg/realtime"
	"github.com/chorusapp/chorus-go/pkg/store"
)

// CommunityService owns the community and membership stores and the
// optimistic join/leave/moderation actions
type CommunityService struct {
	api         *api.API
	communities *store.Store[api.Community]
	memberships *store.Store[api.Membership]
	log         *zap.Logger
}

// NewCommunityService creates the community service
func NewCommunityService(a *api.API, communities *store.Store[api.Community], memberships *store.Store[api.Membership]) *CommunityService {
	return &CommunityService{
		api:         a,
		communities: communities,
		memberships: memberships,
		log:         logger.Log,
	}
}

// Communities returns the observable community store
func (s *CommunityService) Communities() *store.Store[api.Community] {
	return s.communities
}

// Memberships returns the observable membership store
func (s *CommunityService) Memberships() *store.Store[api.Membership] {
	return s.memberships
}

// Join optimistically marks the community joined and bumps its member
// count by one
func (s *CommunityService) Join(ctx context.Context, communityID string) error {
	forward := store.UpdateEntity(communityID, func(c api.Community) api.Community {
		c.MemberCount++
		c.JoinedByMe = true
		return c
	})
	inverse := store.UpdateEntity(communityID, func(c api.Community) api.Community {
		c.MemberCount--
		c.JoinedByMe = false
		return c
	})

	return s.communities.Mutate(ctx, communityID, realtime.KindMembership, forward, inverse,
		func(ctx context.Context) error {
			return s.api.JoinCommunity(ctx, communityID)
		})
}

// Leave optimistically reverses membership
func (s *CommunityService) Leave(ctx context.Context, communityID string) error {
	forward := store.UpdateEntity(communityID, func(c api.Community) api.Community {
		c.MemberCount--
		c.JoinedByMe = false
		return c
	})
	inverse := store.UpdateEntity(communityID, func(c api.Community) api.Community {
		c.MemberCount++
		c.JoinedByMe = true
		return c
	})

	return s.communities.Mutate(ctx, communityID, realtime.KindMembership, forward, inverse,
		func(ctx context.Context) error {
			return s.api.LeaveCommunity(ctx, communityID)
		})
}

// Approve accepts a pending join request (moderator action)
func (s *CommunityService) Approve(ctx context.Context, membershipID, communityID, userID string) error {
	member, ok := s.memberships.Get(membershipID)
	if !ok {
		s.log.Warn("approve on unknown membership", zap.String("membership_id", membershipID))
	}
	previousStatus := member.Status

	forward := store.UpdateEntity(membershipID, func(m api.Membership) api.Membership {
		m.Status = api.MembershipActive
		return m
	})
	inverse := store.UpdateEntity(membershipID, func(m api.Membership) api.Membership {
		m.Status = previousStatus
		return m
	})

	return s.memberships.Mutate(ctx, membershipID, realtime.KindMembership, forward, inverse,
		func(ctx context.Context) error {
			return s.api.ApproveJoinRequest(ctx, communityID, userID)
		})
}

// Reject declines a pending join request (moderator action)
func (s *CommunityService) Reject(ctx context.Context, membershipID, communityID, userID string) error {
	member, ok := s.memberships.Get(membershipID)
	if !ok {
		return nil
	}

	forward := store.RemoveEntity[api.Membership](membershipID)
	inverse := store.InsertEntity(member)

	return s.memberships.Mutate(ctx, membershipID, realtime.KindMembership, forward, inverse,
		func(ctx context.Context) error {
			return s.api.RejectJoinRequest(ctx, communityID, userID)
		})
}

// SetRole changes a member's role (moderator action)
func (s *CommunityService) SetRole(ctx context.Context, membershipID, communityID, userID, role string) error {
	member, _ := s.memberships.Get(membershipID)
	previousRole := member.Role

	forward := store.UpdateEntity(membershipID, func(m api.Membership) api.Membership {
		m.Role = role
		return m
	})
	inverse := store.UpdateEntity(membershipID, func(m api.Membership) api.Membership {
		m.Role = previousRole
		return m
	})

	return s.memberships.Mutate(ctx, membershipID, realtime.KindMembership, forward, inverse,
		func(ctx context.Context) error {
			return s.api.UpdateMemberRole(ctx, communityID, userID, role)
		})
}

// Remove kicks a member from the community (moderator action)
func (s *CommunityService) Remove(ctx context.Context, membershipID, communityID, userID string) error {
	member, ok := s.memberships.Get(membershipID)
	if !ok {
		return nil
	}

	forward := store.RemoveEntity[api.Membership](membershipID)
	inverse := store.InsertEntity(member)

	return s.memberships.Mutate(ctx, membershipID, realtime.KindMembership, forward, inverse,
		func(ctx context.Context) error {
			return s.api.RemoveMember(ctx, communityID, userID)
		})
}
