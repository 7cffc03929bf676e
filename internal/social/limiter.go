package social

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/parapool/agent/internal/config"
	"github.com/parapool/agent/internal/registry"
)

// Write-class call outcomes.
var (
	ErrSuspended = errors.New("social writes suspended")
	ErrDuplicate = errors.New("duplicate content suppressed")
	ErrCapped    = errors.New("rate cap reached")
)

var suspendedUntilPattern = regexp.MustCompile(`suspended until ([0-9T:+\-\.Z]+)`)

// rateLimitBackoff applies when the platform complains without naming an
// expiry.
const rateLimitBackoff = 5 * time.Minute

// Limiter wraps a Client with the platform-survival policy: suspension
// awareness, daily and per-cycle caps, duplicate suppression, and the
// inter-comment delay. Read-class calls pass through even while suspended.
type Limiter struct {
	inner Client
	reg   *registry.Registry
	cfg   config.SocialConfig
	guard ContentGuard
	log   *slog.Logger

	lastComment  time.Time
	repliesCycle int
	likesCycle   int
}

// ContentGuard is a shared duplicate-suppression backend for multi-replica
// deployments. Nil means local-only suppression.
type ContentGuard interface {
	Claim(ctx context.Context, hash string) bool
	Release(ctx context.Context, hash string)
}

// NewLimiter builds the limiter over a platform client.
func NewLimiter(inner Client, reg *registry.Registry, cfg config.SocialConfig) *Limiter {
	return &Limiter{
		inner: inner,
		reg:   reg,
		cfg:   cfg,
		log:   slog.Default().With("component", "social"),
	}
}

// SetGuard installs a shared content guard. Call before first use.
func (l *Limiter) SetGuard(g ContentGuard) { l.guard = g }

// BeginCycle resets the per-cycle reply and like budgets.
func (l *Limiter) BeginCycle() {
	l.repliesCycle = 0
	l.likesCycle = 0
}

// SelfHandle proxies the platform identity.
func (l *Limiter) SelfHandle() string { return l.inner.SelfHandle() }

// PublishPost publishes a short post subject to suspension, daily cap and
// duplicate suppression.
func (l *Limiter) PublishPost(ctx context.Context, body string) (string, error) {
	if err := l.admitPost(body); err != nil {
		return "", err
	}
	hash := ContentHash(body)
	if err := l.claimShared(ctx, hash); err != nil {
		return "", err
	}
	id, err := l.inner.PublishPost(ctx, body)
	if err != nil {
		l.releaseShared(ctx, hash)
		l.noteWriteError(err)
		return "", err
	}
	l.reg.MarkContent(hash)
	l.reg.CountPost()
	return id, nil
}

// PublishArticle publishes a long article under the same write policy.
func (l *Limiter) PublishArticle(ctx context.Context, title, body string) (string, error) {
	if err := l.admitPost(title + body); err != nil {
		return "", err
	}
	hash := ContentHash(title + body)
	if err := l.claimShared(ctx, hash); err != nil {
		return "", err
	}
	id, err := l.inner.PublishArticle(ctx, title, body)
	if err != nil {
		l.releaseShared(ctx, hash)
		l.noteWriteError(err)
		return "", err
	}
	l.reg.MarkContent(hash)
	l.reg.CountPost()
	return id, nil
}

// Reply replies to a post, observing the inter-comment delay and both the
// per-cycle and daily comment caps.
func (l *Limiter) Reply(ctx context.Context, postID, body string) (string, error) {
	if l.reg.Suspended() {
		return "", ErrSuspended
	}
	if l.repliesCycle >= l.cfg.MaxRepliesCycle {
		return "", ErrCapped
	}
	if l.reg.Today().Comments >= l.cfg.MaxDailyComment {
		return "", ErrCapped
	}
	hash := ContentHash(body)
	if l.reg.SeenContent(hash) {
		return "", ErrDuplicate
	}
	if err := l.claimShared(ctx, hash); err != nil {
		return "", err
	}
	if wait := time.Until(l.lastComment.Add(l.cfg.CommentDelay)); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	id, err := l.inner.Reply(ctx, postID, body)
	l.lastComment = time.Now()
	if err != nil {
		l.releaseShared(ctx, hash)
		l.noteWriteError(err)
		return "", err
	}
	l.repliesCycle++
	l.reg.MarkContent(hash)
	l.reg.CountComment()
	return id, nil
}

// Like upvotes a post within the per-cycle budget.
func (l *Limiter) Like(ctx context.Context, postID string) error {
	if l.reg.Suspended() {
		return ErrSuspended
	}
	if l.likesCycle >= l.cfg.MaxLikesCycle {
		return ErrCapped
	}
	if err := l.inner.Like(ctx, postID); err != nil {
		l.noteWriteError(err)
		return err
	}
	l.likesCycle++
	return nil
}

// Read-class calls pass straight through.

func (l *Limiter) Feed(ctx context.Context, ordering string, limit int) ([]Post, error) {
	return l.inner.Feed(ctx, ordering, limit)
}

func (l *Limiter) Mentions(ctx context.Context) ([]Post, error) {
	return l.inner.Mentions(ctx)
}

func (l *Limiter) Inbox(ctx context.Context) ([]Message, error) {
	return l.inner.Inbox(ctx)
}

func (l *Limiter) Search(ctx context.Context, phrase string, limit int) ([]Post, error) {
	return l.inner.Search(ctx, phrase, limit)
}

func (l *Limiter) admitPost(content string) error {
	if l.reg.Suspended() {
		return ErrSuspended
	}
	if l.reg.Today().Posts >= l.cfg.MaxDailyPosts {
		return ErrCapped
	}
	if l.reg.SeenContent(ContentHash(content)) {
		return ErrDuplicate
	}
	return nil
}

func (l *Limiter) claimShared(ctx context.Context, hash string) error {
	if l.guard == nil {
		return nil
	}
	if !l.guard.Claim(ctx, hash) {
		return ErrDuplicate
	}
	return nil
}

func (l *Limiter) releaseShared(ctx context.Context, hash string) {
	if l.guard != nil {
		l.guard.Release(ctx, hash)
	}
}

// noteWriteError inspects a platform error for suspension or rate-limit
// signals and sets the registry's suspension flag accordingly.
func (l *Limiter) noteWriteError(err error) {
	until, ok := ParseSuspension(err)
	if !ok {
		return
	}
	l.log.Warn("platform suspension detected, downgrading to read-only social", "until", until)
	l.reg.Suspend(until)
}

// ParseSuspension extracts a suspension expiry from a platform error.
// An explicit "suspended until <timestamp>" wins; generic rate-limit and
// ban phrasings get a flat 5-minute backoff.
func ParseSuspension(err error) (time.Time, bool) {
	if err == nil {
		return time.Time{}, false
	}
	msg := err.Error()
	if m := suspendedUntilPattern.FindStringSubmatch(msg); m != nil {
		if t, perr := time.Parse(time.RFC3339, m[1]); perr == nil {
			return t, true
		}
	}
	lower := strings.ToLower(msg)
	for _, marker := range []string{"rate limit", "too many requests", "429", "suspended", "banned", "forbidden"} {
		if strings.Contains(lower, marker) {
			return time.Now().Add(rateLimitBackoff), true
		}
	}
	return time.Time{}, false
}

// ContentHash fingerprints outbound content for duplicate suppression:
// trimmed, lowercased, hashed.
func ContentHash(body string) string {
	norm := strings.ToLower(strings.TrimSpace(body))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}
