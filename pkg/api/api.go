package api

import (
	"context"
	"fmt"

	"github.com/chorusapp/chorus-go/pkg/client"
)

// API exposes the typed HTTP operations used by sendToServer closures
// and backfill fetches
type API struct {
	client *client.Client
}

// New creates the API surface over a shared HTTP client
func New(c *client.Client) *API {
	return &API{client: c}
}

// GetFeed retrieves the ranked feed, transmitting weight preferences
func (a *API) GetFeed(ctx context.Context, weights FeedWeights, limit int, cursor string) (*FeedResponse, error) {
	query := map[string]string{
		"limit":     fmt.Sprintf("%d", limit),
		"recency":   fmt.Sprintf("%g", weights.Recency),
		"following": fmt.Sprintf("%g", weights.Following),
		"trending":  fmt.Sprintf("%g", weights.Trending),
	}
	if cursor != "" {
		query["cursor"] = cursor
	}

	var response FeedResponse
	if err := a.client.Get(ctx, "/api/v1/feed", query, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// LikePost records a like
func (a *API) LikePost(ctx context.Context, postID string) error {
	return a.client.Post(ctx, fmt.Sprintf("/api/v1/posts/%s/like", postID), nil, nil)
}

// UnlikePost removes a like
func (a *API) UnlikePost(ctx context.Context, postID string) error {
	return a.client.Delete(ctx, fmt.Sprintf("/api/v1/posts/%s/like", postID), nil)
}

// ReorderPost moves a pinned post to a new position
func (a *API) ReorderPost(ctx context.Context, postID string, toIndex int) error {
	body := map[string]interface{}{"position": toIndex}
	return a.client.Put(ctx, fmt.Sprintf("/api/v1/posts/%s/position", postID), body, nil)
}

// VotePoll casts a vote for one option
func (a *API) VotePoll(ctx context.Context, pollID, optionID string) error {
	body := map[string]interface{}{"option_id": optionID}
	return a.client.Post(ctx, fmt.Sprintf("/api/v1/polls/%s/vote", pollID), body, nil)
}

// SendMessage posts a chat message. The client id lets the realtime
// echo be matched against the optimistic copy.
func (a *API) SendMessage(ctx context.Context, roomID, clientID, body string) (*ChatMessage, error) {
	payload := map[string]interface{}{
		"client_id": clientID,
		"body":      body,
	}

	var message ChatMessage
	if err := a.client.Post(ctx, fmt.Sprintf("/api/v1/rooms/%s/messages", roomID), payload, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// GetRoomMessages fetches the last limit messages of a room. Used as
// the backfill after a reconnect.
func (a *API) GetRoomMessages(ctx context.Context, roomID string, limit int) (*MessagesResponse, error) {
	query := map[string]string{"limit": fmt.Sprintf("%d", limit)}

	var response MessagesResponse
	if err := a.client.Get(ctx, fmt.Sprintf("/api/v1/rooms/%s/messages", roomID), query, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// JoinCommunity requests membership in a community
func (a *API) JoinCommunity(ctx context.Context, communityID string) error {
	return a.client.Post(ctx, fmt.Sprintf("/api/v1/communities/%s/join", communityID), nil, nil)
}

// LeaveCommunity gives up membership
func (a *API) LeaveCommunity(ctx context.Context, communityID string) error {
	return a.client.Delete(ctx, fmt.Sprintf("/api/v1/communities/%s/membership", communityID), nil)
}

// ApproveJoinRequest approves a pending membership (moderator action)
func (a *API) ApproveJoinRequest(ctx context.Context, communityID, userID string) error {
	return a.client.Post(ctx,
		fmt.Sprintf("/api/v1/communities/%s/requests/%s/approve", communityID, userID), nil, nil)
}

// RejectJoinRequest rejects a pending membership (moderator action)
func (a *API) RejectJoinRequest(ctx context.Context, communityID, userID string) error {
	return a.client.Post(ctx,
		fmt.Sprintf("/api/v1/communities/%s/requests/%s/reject", communityID, userID), nil, nil)
}

// UpdateMemberRole changes a member's role (moderator action)
func (a *API) UpdateMemberRole(ctx context.Context, communityID, userID, role string) error {
	body := map[string]interface{}{"role": role}
	return a.client.Put(ctx,
		fmt.Sprintf("/api/v1/communities/%s/members/%s/role", communityID, userID), body, nil)
}

// RemoveMember removes a member from a community (moderator action)
func (a *API) RemoveMember(ctx context.Context, communityID, userID string) error {
	return a.client.Delete(ctx,
		fmt.Sprintf("/api/v1/communities/%s/members/%s", communityID, userID), nil)
}
