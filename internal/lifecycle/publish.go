package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/parapool/agent/internal/registry"
	"github.com/parapool/agent/internal/social"
)

// publishArtifact renders and publishes the artifact for one lifecycle
// phase of a pool, recording the published id so the phase never posts
// twice. Created and resolution phases go out as articles (they carry the
// full payload JSON), the mid-lifecycle phases as short posts.
func (c *Controller) publishArtifact(ctx context.Context, e registry.PoolEntry, intent, phase string) {
	if e.HasArtifact(phase) {
		return
	}
	payload, err := c.artifacts.BuildPayload(e, intent)
	if err != nil {
		c.log.Error("artifact payload build failed", "pool", e.PoolID, "phase", phase, "err", err)
		return
	}

	var postID string
	switch phase {
	case registry.PhaseArtifactCreated, registry.PhaseArtifactResolution:
		body, err := c.artifacts.ArticleBody(e, payload)
		if err != nil {
			c.log.Error("artifact article render failed", "pool", e.PoolID, "err", err)
			return
		}
		title := fmt.Sprintf("Coverage pool #%d (%s)", e.PoolID, e.Variant)
		postID, err = c.social.PublishArticle(ctx, title, body)
		if err != nil {
			c.notePublishError(e.PoolID, phase, err)
			return
		}
	default:
		body := c.artifacts.ShortPost(e, payload, phase)
		postID, err = c.social.PublishPost(ctx, body)
		if err != nil {
			c.notePublishError(e.PoolID, phase, err)
			return
		}
	}

	if err := c.reg.Update(e.Variant, e.PoolID, func(p *registry.PoolEntry) {
		p.SetArtifact(phase, postID)
	}); err != nil {
		c.log.Error("artifact record failed", "pool", e.PoolID, "phase", phase, "err", err)
		return
	}
	c.metrics.SocialPosts.WithLabelValues("artifact", "ok").Inc()
	c.log.Info("artifact published", "pool", e.PoolID, "phase", phase, "post", postID)
}

func (c *Controller) notePublishError(poolID uint64, phase string, err error) {
	switch {
	case errors.Is(err, social.ErrDuplicate):
		c.metrics.SocialSuppressed.Inc()
		c.log.Debug("artifact suppressed as duplicate", "pool", poolID, "phase", phase)
	case errors.Is(err, social.ErrSuspended), errors.Is(err, social.ErrCapped):
		c.metrics.SocialPosts.WithLabelValues("artifact", "skipped").Inc()
		c.log.Warn("artifact deferred", "pool", poolID, "phase", phase, "err", err)
	default:
		c.metrics.SocialPosts.WithLabelValues("artifact", "error").Inc()
		c.log.Error("artifact publish failed", "pool", poolID, "phase", phase, "err", err)
	}
}
