package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// TipCache is a read-through cache for per-view language tips. It is always
// safe to lose: every write path invalidates the (video, language) pair and
// readers fall back to the version store on a miss.
type TipCache struct {
	client *Client
	ttl    time.Duration
}

// NewTipCache creates a tip cache with the given TTL
func NewTipCache(client *Client, ttl time.Duration) *TipCache {
	return &TipCache{
		client: client,
		ttl:    ttl,
	}
}

func tipKey(videoID, languageCode string, view models.VersionView) string {
	return fmt.Sprintf("fern:tip:%s:%s:%s", videoID, languageCode, view)
}

// Get returns the cached tip, or nil on a miss
func (c *TipCache) Get(ctx context.Context, videoID, languageCode string, view models.VersionView) *models.SubtitleVersion {
	raw, err := c.client.Get(ctx, tipKey(videoID, languageCode, view))
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.client.logger.WithContext(ctx).WithError(err).Debug("Tip cache read failed")
		}
		metrics.TipCacheMisses.WithLabelValues(string(view)).Inc()
		return nil
	}

	var version models.SubtitleVersion
	if err := json.Unmarshal([]byte(raw), &version); err != nil {
		metrics.TipCacheMisses.WithLabelValues(string(view)).Inc()
		return nil
	}

	metrics.TipCacheHits.WithLabelValues(string(view)).Inc()
	return &version
}

// Set stores a tip. Best effort; errors are logged and swallowed.
func (c *TipCache) Set(ctx context.Context, view models.VersionView, version *models.SubtitleVersion) {
	if version == nil {
		return
	}

	raw, err := json.Marshal(version)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, tipKey(version.VideoID, version.LanguageCode, view), raw, c.ttl); err != nil {
		c.client.logger.WithContext(ctx).WithError(err).Debug("Tip cache write failed")
	}
}

// Invalidate drops all cached views of a (video, language) pair
func (c *TipCache) Invalidate(ctx context.Context, videoID, languageCode string) {
	keys := []string{
		tipKey(videoID, languageCode, models.ViewFull),
		tipKey(videoID, languageCode, models.ViewExtant),
		tipKey(videoID, languageCode, models.ViewPublic),
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		c.client.logger.WithContext(ctx).WithError(err).Debug("Tip cache invalidation failed")
	}
}
