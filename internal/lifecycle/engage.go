package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/social"
)

const feedPageSize = 20

// engage is the social phase: answer mentions, then scan the hot feed
// for coverage opportunities. Every write goes through the limiter, so
// caps, duplicates and suspensions are enforced there; this layer only
// decides what is worth saying.
func (c *Controller) engage(ctx context.Context) {
	if c.reg.Suspended() {
		until := c.reg.SuspendedUntil()
		c.log.Info("social writes suspended, engagement skipped", "until", until)
		return
	}
	c.answerMentions(ctx)
	c.scanFeed(ctx)
}

func (c *Controller) answerMentions(ctx context.Context) {
	mentions, err := c.social.Mentions(ctx)
	if err != nil {
		c.log.Warn("mentions fetch failed", "err", err)
		return
	}
	self := c.social.SelfHandle()
	for _, m := range mentions {
		if m.Author == self || c.reg.SeenPost(m.ID) {
			continue
		}
		c.reg.MarkPost(m.ID)
		reply := c.mentionReply(m.Body)
		if reply == "" {
			continue
		}
		if _, err := c.social.Reply(ctx, m.ID, reply); c.noteEngageError("mention", err) {
			return
		}
	}
}

// mentionReply classifies an inbound mention and renders the answer.
func (c *Controller) mentionReply(body string) string {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "status") || strings.Contains(lower, "pool #"):
		return c.statusReply(lower)
	case strings.Contains(lower, "catalog") || strings.Contains(lower, "products") ||
		strings.Contains(lower, "what do you cover"):
		return c.catalogReply()
	case strings.Contains(lower, "help") || strings.Contains(lower, "how do"):
		return "I run parametric coverage pools on-chain. Ask for the catalog, a pool's status, " +
			"or describe a measurable event you want covered and I'll quote it."
	default:
		return ""
	}
}

func (c *Controller) statusReply(lower string) string {
	// Answer about a named pool when one matches, otherwise summarize.
	for _, e := range c.reg.All() {
		tag := fmt.Sprintf("pool #%d", e.PoolID)
		if !strings.Contains(lower, tag) {
			continue
		}
		return fmt.Sprintf("Pool #%d (%s): %s. Status %s, coverage %s, deadline %d.",
			e.PoolID, e.Variant, e.Description, e.Status,
			registry.FormatAmount(e.CoverageAmount), e.Deadline)
	}
	return fmt.Sprintf("Currently tracking %d pools, %d live.", c.reg.Len(), c.reg.LiveCount())
}

func (c *Controller) catalogReply() string {
	var sb strings.Builder
	sb.WriteString("Coverage catalog: ")
	for i, p := range c.engine.Catalog().List() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.DisplayName)
		if sb.Len() > social.MaxPostLength-40 {
			sb.WriteString(", and more")
			break
		}
	}
	sb.WriteString(".")
	return sb.String()
}

// scanFeed looks for posts describing insurable worries and replies with
// a concrete live pool when one fits, or a short pitch when the worry is
// parametric but nothing on the book matches.
func (c *Controller) scanFeed(ctx context.Context) {
	posts, err := c.social.Feed(ctx, social.FeedHot, feedPageSize)
	if err != nil {
		c.log.Warn("feed fetch failed", "err", err)
		return
	}
	self := c.social.SelfHandle()
	for _, p := range posts {
		if p.Author == self || c.reg.SeenPost(p.ID) {
			continue
		}
		c.reg.MarkPost(p.ID)

		product, ok := c.engine.Catalog().Match(p.Body)
		if !ok {
			continue
		}
		reply := c.opportunityReply(product.ID)
		if _, err := c.social.Reply(ctx, p.ID, reply); c.noteEngageError("opportunity", err) {
			return
		}
		// A like alongside the reply; cap handled by the limiter.
		if err := c.social.Like(ctx, p.ID); err != nil && !errors.Is(err, social.ErrCapped) {
			c.log.Debug("like failed", "post", p.ID, "err", err)
		}
	}
}

// opportunityReply points at a live pool for the product when one
// exists, otherwise pitches the product itself.
func (c *Controller) opportunityReply(productID string) string {
	for _, e := range c.reg.Live() {
		if e.ProductID != productID || !e.Status.IsOpen() && !e.Status.IsPending() {
			continue
		}
		payload, err := c.artifacts.BuildPayload(e, social.IntentProvideLiquidity)
		if err != nil {
			break
		}
		return fmt.Sprintf("There's an open pool for exactly this: #%d — %s. "+
			"Coverage %s at %d bps. %s",
			e.PoolID, e.Description, registry.FormatAmount(e.CoverageAmount),
			e.PremiumRateBps, payload.DeepLink)
	}
	product, ok := c.engine.Catalog().Get(productID)
	if !ok {
		return ""
	}
	return fmt.Sprintf("This is exactly the kind of measurable risk I cover (%s). "+
		"Mention me with the event, amount and deadline and I'll quote a parametric pool.",
		product.DisplayName)
}

// noteEngageError records a reply failure and reports whether the
// engagement pass should stop entirely.
func (c *Controller) noteEngageError(kind string, err error) bool {
	switch {
	case err == nil:
		c.metrics.SocialPosts.WithLabelValues(kind, "ok").Inc()
		return false
	case errors.Is(err, social.ErrDuplicate):
		c.metrics.SocialSuppressed.Inc()
		return false
	case errors.Is(err, social.ErrCapped):
		c.log.Debug("engagement budget exhausted", "kind", kind)
		return true
	case errors.Is(err, social.ErrSuspended):
		c.log.Warn("suspension hit mid-engagement", "kind", kind)
		return true
	default:
		c.metrics.SocialPosts.WithLabelValues(kind, "error").Inc()
		c.log.Warn("reply failed", "kind", kind, "err", err)
		return false
	}
}
