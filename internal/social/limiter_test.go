package social

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parapool/agent/internal/config"
	"github.com/parapool/agent/internal/registry"
)

// fakePlatform records writes and can be scripted to fail.
type fakePlatform struct {
	posts    []string
	articles []string
	replies  []string
	likes    []string
	fail     error
	nextID   int
}

func (f *fakePlatform) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakePlatform) PublishPost(ctx context.Context, body string) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.posts = append(f.posts, body)
	return f.id(), nil
}

func (f *fakePlatform) PublishArticle(ctx context.Context, title, body string) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.articles = append(f.articles, body)
	return f.id(), nil
}

func (f *fakePlatform) Reply(ctx context.Context, postID, body string) (string, error) {
	if f.fail != nil {
		return "", f.fail
	}
	f.replies = append(f.replies, body)
	return f.id(), nil
}

func (f *fakePlatform) Like(ctx context.Context, postID string) error {
	if f.fail != nil {
		return f.fail
	}
	f.likes = append(f.likes, postID)
	return nil
}

func (f *fakePlatform) Feed(ctx context.Context, ordering string, limit int) ([]Post, error) {
	return nil, nil
}
func (f *fakePlatform) Mentions(ctx context.Context) ([]Post, error) { return nil, nil }
func (f *fakePlatform) Inbox(ctx context.Context) ([]Message, error) { return nil, nil }
func (f *fakePlatform) Search(ctx context.Context, phrase string, limit int) ([]Post, error) {
	return nil, nil
}
func (f *fakePlatform) SelfHandle() string { return "parapool-agent" }

func testLimiter(p Client) (*Limiter, *registry.Registry) {
	reg := registry.New()
	cfg := config.SocialConfig{
		MaxRepliesCycle: 2,
		MaxLikesCycle:   2,
		MaxDailyPosts:   3,
		MaxDailyComment: 5,
	}
	return NewLimiter(p, reg, cfg), reg
}

func TestLimiter_PublishPostRecordsContentHash(t *testing.T) {
	p := &fakePlatform{}
	l, reg := testLimiter(p)

	id, err := l.PublishPost(context.Background(), "hello pools")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, reg.SeenContent(ContentHash("hello pools")))
	assert.Equal(t, 1, reg.Today().Posts)
}

func TestLimiter_DuplicateContentSuppressed(t *testing.T) {
	p := &fakePlatform{}
	l, _ := testLimiter(p)
	ctx := context.Background()

	_, err := l.PublishPost(ctx, "same text")
	require.NoError(t, err)
	_, err = l.PublishPost(ctx, "  SAME TEXT  ") // normalization catches this
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Len(t, p.posts, 1)
}

func TestLimiter_DailyPostCap(t *testing.T) {
	p := &fakePlatform{}
	l, _ := testLimiter(p)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.PublishPost(ctx, fmt.Sprintf("post %d", i))
		require.NoError(t, err)
	}
	_, err := l.PublishPost(ctx, "one too many")
	assert.ErrorIs(t, err, ErrCapped)
}

func TestLimiter_ReplyCycleCapResetsOnBeginCycle(t *testing.T) {
	p := &fakePlatform{}
	l, _ := testLimiter(p)
	ctx := context.Background()

	_, err := l.Reply(ctx, "p1", "reply one")
	require.NoError(t, err)
	_, err = l.Reply(ctx, "p2", "reply two")
	require.NoError(t, err)
	_, err = l.Reply(ctx, "p3", "reply three")
	assert.ErrorIs(t, err, ErrCapped)

	l.BeginCycle()
	_, err = l.Reply(ctx, "p4", "reply four")
	assert.NoError(t, err)
}

func TestLimiter_LikeCycleCap(t *testing.T) {
	p := &fakePlatform{}
	l, _ := testLimiter(p)
	ctx := context.Background()

	require.NoError(t, l.Like(ctx, "a"))
	require.NoError(t, l.Like(ctx, "b"))
	assert.ErrorIs(t, l.Like(ctx, "c"), ErrCapped)
}

func TestLimiter_SuspensionBlocksWritesNotReads(t *testing.T) {
	p := &fakePlatform{}
	l, reg := testLimiter(p)
	ctx := context.Background()
	reg.Suspend(time.Now().Add(time.Hour))

	_, err := l.PublishPost(ctx, "blocked")
	assert.ErrorIs(t, err, ErrSuspended)
	_, err = l.Reply(ctx, "p1", "blocked")
	assert.ErrorIs(t, err, ErrSuspended)
	assert.ErrorIs(t, l.Like(ctx, "p1"), ErrSuspended)

	_, err = l.Feed(ctx, FeedHot, 10)
	assert.NoError(t, err)
	_, err = l.Mentions(ctx)
	assert.NoError(t, err)
}

func TestLimiter_PlatformSuspensionErrorTriggersBackoff(t *testing.T) {
	p := &fakePlatform{fail: errors.New("429 too many requests")}
	l, reg := testLimiter(p)

	_, err := l.PublishPost(context.Background(), "will fail")
	require.Error(t, err)
	assert.True(t, reg.Suspended())
}

func TestParseSuspension_ExplicitTimestampWins(t *testing.T) {
	until, ok := ParseSuspension(errors.New("account suspended until 2026-09-01T10:00:00Z"))
	require.True(t, ok)
	assert.Equal(t, 2026, until.Year())
	assert.Equal(t, time.September, until.Month())
}

func TestParseSuspension_GenericMarkersGetFlatBackoff(t *testing.T) {
	for _, msg := range []string{"rate limit exceeded", "HTTP 429", "you are banned", "forbidden"} {
		until, ok := ParseSuspension(errors.New(msg))
		require.True(t, ok, "message %q", msg)
		assert.WithinDuration(t, time.Now().Add(5*time.Minute), until, 10*time.Second)
	}
}

func TestParseSuspension_OrdinaryErrorsIgnored(t *testing.T) {
	_, ok := ParseSuspension(errors.New("connection refused"))
	assert.False(t, ok)
	_, ok = ParseSuspension(nil)
	assert.False(t, ok)
}

func TestContentHash_NormalizesBeforeHashing(t *testing.T) {
	assert.Equal(t, ContentHash("Hello World"), ContentHash("  hello world  "))
	assert.NotEqual(t, ContentHash("a"), ContentHash("b"))
}

// claimingGuard scripts shared-claim outcomes.
type claimingGuard struct {
	allow    bool
	claims   []string
	releases []string
}

func (g *claimingGuard) Claim(ctx context.Context, hash string) bool {
	g.claims = append(g.claims, hash)
	return g.allow
}

func (g *claimingGuard) Release(ctx context.Context, hash string) {
	g.releases = append(g.releases, hash)
}

func TestLimiter_SharedGuardRejectsCrossReplicaDuplicates(t *testing.T) {
	p := &fakePlatform{}
	l, _ := testLimiter(p)
	l.SetGuard(&claimingGuard{allow: false})

	_, err := l.PublishPost(context.Background(), "claimed elsewhere")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Empty(t, p.posts)
}

func TestLimiter_SharedGuardReleasedOnPublishFailure(t *testing.T) {
	g := &claimingGuard{allow: true}
	p := &fakePlatform{fail: errors.New("boom")}
	l, _ := testLimiter(p)
	l.SetGuard(g)

	_, err := l.PublishPost(context.Background(), "will fail")
	require.Error(t, err)
	require.Len(t, g.claims, 1)
	assert.Equal(t, g.claims, g.releases)
}
