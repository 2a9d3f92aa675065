// Package api defines the Chorus domain types and the typed HTTP
// operations the sync core dispatches. Request and response shapes
// mirror the remote API; ranking happens server-side, the client only
// transmits weight preferences.
package api

import "time"

// Post is a feed post
type Post struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Body         string    `json:"body"`
	MediaURL     string    `json:"media_url,omitempty"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count"`
	LikedByMe    bool      `json:"liked_by_me"`
	CreatedAt    time.Time `json:"created_at"`
}

// EntityID returns the stable id used by optimistic stores
func (p Post) EntityID() string { return p.ID }

// FeedResponse is the ranked feed returned by the server
type FeedResponse struct {
	Posts      []Post `json:"posts"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// FeedWeights are the client's ranking weight preferences. The server
// owns the ranking algorithm; these only bias it.
type FeedWeights struct {
	Recency   float64 `json:"recency"`
	Following float64 `json:"following"`
	Trending  float64 `json:"trending"`
}

// ChatMessage is one message in a community chat room
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Body      string    `json:"body"`
	ClientID  string    `json:"client_id,omitempty"` // client-assigned id for echo matching
	CreatedAt time.Time `json:"created_at"`
}

// EntityID returns the stable id used by optimistic stores
func (m ChatMessage) EntityID() string { return m.ID }

// MessagesResponse is a page of room history, oldest first
type MessagesResponse struct {
	Messages []ChatMessage `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

// Membership role and status values
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"

	MembershipActive  = "active"
	MembershipPending = "pending"
	MembershipRemoved = "removed"
)

// Membership is one user's standing in a community
type Membership struct {
	ID          string    `json:"id"`
	CommunityID string    `json:"community_id"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	JoinedAt    time.Time `json:"joined_at"`
}

// EntityID returns the stable id used by optimistic stores
func (m Membership) EntityID() string { return m.ID }

// Community is a community summary with counter fields
type Community struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"member_count"`
	JoinedByMe  bool   `json:"joined_by_me"`
}

// EntityID returns the stable id used by optimistic stores
func (c Community) EntityID() string { return c.ID }

// PollOption is one choice with its running tally
type PollOption struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	VoteCount int    `json:"vote_count"`
}

// Poll is a votable poll attached to a post or community
type Poll struct {
	ID            string       `json:"id"`
	Question      string       `json:"question"`
	Options       []PollOption `json:"options"`
	VotedOptionID string       `json:"voted_option_id,omitempty"`
	ExpiresAt     time.Time    `json:"expires_at"`
}

// EntityID returns the stable id used by optimistic stores
func (p Poll) EntityID() string { return p.ID }
