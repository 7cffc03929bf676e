// Package social is the agent's outbound voice: phase-change artifacts
// with machine-execution payloads, opportunity replies, and the
// suspension-aware limiter that keeps a fragile platform from banning the
// agent. All failures here are non-fatal to the heartbeat.
package social

import (
	"context"
	"time"
)

// Feed orderings.
const (
	FeedHot = "hot"
	FeedNew = "new"
)

// Post is one platform post, inbound or outbound.
type Post struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one direct-inbox item.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Client is the platform capability set the controller consumes. Short
// posts are capped at 500 characters by the platform; articles are larger.
type Client interface {
	PublishPost(ctx context.Context, body string) (string, error)
	PublishArticle(ctx context.Context, title, body string) (string, error)
	Reply(ctx context.Context, postID, body string) (string, error)
	Like(ctx context.Context, postID string) error
	Feed(ctx context.Context, ordering string, limit int) ([]Post, error)
	Mentions(ctx context.Context) ([]Post, error)
	Inbox(ctx context.Context) ([]Message, error)
	Search(ctx context.Context, phrase string, limit int) ([]Post, error)
	SelfHandle() string
}

// MaxPostLength is the platform's short-post cap.
const MaxPostLength = 500
