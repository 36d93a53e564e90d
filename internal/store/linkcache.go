package store

import (
	"context"
	"time"

	"github.com/ppiankov/tweetpan/internal/logging"
)

// LinkCache exposes the link_cache table to the resolver. Storage errors are
// logged and treated as cache misses.
type LinkCache struct {
	store *Store
	ttl   time.Duration
	log   logging.Logger
	now   func() time.Time
}

// LinkCache returns a resolver cache backed by s. ttl <= 0 keeps entries
// until they are pruned.
func (s *Store) LinkCache(ttl time.Duration, log logging.Logger) *LinkCache {
	if log == nil {
		log = logging.Discard()
	}
	return &LinkCache{store: s, ttl: ttl, log: log, now: time.Now}
}

func (c *LinkCache) Lookup(ctx context.Context, link string) (string, bool) {
	final, ok, err := c.store.LookupLink(ctx, link, c.ttl, c.now())
	if err != nil {
		c.log.WithError(err).WithField("link", link).Debug("link cache lookup failed")
		return "", false
	}
	return final, ok
}

func (c *LinkCache) Remember(ctx context.Context, link, final string) {
	if err := c.store.SaveLink(ctx, link, final, c.now()); err != nil {
		c.log.WithError(err).WithField("link", link).Debug("link cache save failed")
	}
}
