// Package normalize turns raw post text into the form shown in digests.
package normalize

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/tweetpan/internal/filter"
	"github.com/ppiankov/tweetpan/internal/metrics"
	"github.com/ppiankov/tweetpan/internal/resolve"
	"github.com/ppiankov/tweetpan/internal/source"
)

// DefaultDomain is the platform host used by the media permalink check.
const DefaultDomain = "twitter.com"

// Linker resolves one link found in text.
type Linker interface {
	Resolve(ctx context.Context, link, text string) string
}

// Normalizer applies a topic filter to posts. It holds no mutable state and
// may be shared by concurrent workers.
type Normalizer struct {
	linker Linker
	filter *filter.Filter
	domain string
	cutoff time.Time
}

// New creates a Normalizer. Posts created before cutoff are discarded.
func New(linker Linker, f *filter.Filter, domain string, cutoff time.Time) *Normalizer {
	if f == nil {
		f = filter.Compile(filter.Config{})
	}
	if domain == "" {
		domain = DefaultDomain
	}
	return &Normalizer{linker: linker, filter: f, domain: domain, cutoff: cutoff}
}

// Normalize returns the cleaned text of post, or "" when the post must be
// discarded.
func (n *Normalizer) Normalize(ctx context.Context, post source.Post) string {
	if post.CreatedAt.Before(n.cutoff) {
		metrics.PostsDiscarded.WithLabelValues("window").Inc()
		return ""
	}

	text := n.filter.Strip(filter.Sanitize(post.Text))
	if n.filter.Banned(text) {
		metrics.PostsDiscarded.WithLabelValues("banned").Inc()
		return ""
	}

	words := strings.Split(text, " ")
	kept := make([]string, 0, len(words))
	hasLinks := false
	for _, word := range words {
		switch {
		case resolve.IsHTTPLink(word):
			link := n.linker.Resolve(ctx, word, text)
			if hasLinks && IsStatusMedia(post, word, link, n.domain) {
				metrics.MediaLinksSuppressed.Inc()
				continue
			}
			kept = append(kept, n.filter.StripQuery(link))
			hasLinks = true
		case word != "":
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, " ")
}

// IsStatusMedia reports whether resolved is the platform's auto-appended
// photo or video permalink of post: the raw text ends with word, resolved is
// on domain (or www.domain) and ends with /status/<ItemID>/photo/1 or
// /status/<ItemID>/video/1.
func IsStatusMedia(post source.Post, word, resolved, domain string) bool {
	if post.ItemID == "" || word == "" || !strings.HasSuffix(post.Text, word) {
		return false
	}
	u, err := url.Parse(resolved)
	if err != nil || u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != domain && host != "www."+domain {
		return false
	}
	for _, media := range []string{"photo", "video"} {
		if strings.HasSuffix(resolved, "/status/"+post.ItemID+"/"+media+"/1") {
			return true
		}
	}
	return false
}
