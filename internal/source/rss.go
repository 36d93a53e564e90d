package source

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/mmcdole/gofeed"
)

const (
	rssSourceName   = "rss"
	rssFetchTimeout = 30 * time.Second
	rssUserAgent    = "Mozilla/5.0 (compatible; tweetpan/1.0)"
	rssMaxRetries   = 3
	rssUserToken    = "{user}"

	// Prefixes RSS bridges such as Nitter put in front of reposts and replies.
	rssRepostPrefix = "RT by @"
	rssReplyPrefix  = "R to @"
)

var (
	anchorRe     = regexp.MustCompile(`(?is)<a\s[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`[ \t]{2,}`)
	statusIDRe   = regexp.MustCompile(`/status(?:es)?/(\d+)`)
)

// RSSSource fetches account timelines from an RSS bridge, one feed per account.
type RSSSource struct {
	urlTemplate string
	client      *http.Client
	retryDelay  time.Duration
}

// NewRSS creates an RSS source. urlTemplate must contain {user}, e.g.
// "https://nitter.example/{user}/rss".
func NewRSS(urlTemplate string) (*RSSSource, error) {
	if !strings.Contains(urlTemplate, rssUserToken) {
		return nil, errors.New("rss: feed url template must contain {user}")
	}
	return &RSSSource{
		urlTemplate: urlTemplate,
		client: &http.Client{
			Timeout:   rssFetchTimeout,
			Transport: &rssTransport{base: http.DefaultTransport},
		},
		retryDelay: time.Second,
	}, nil
}

func (rs *RSSSource) Name() string {
	return rssSourceName
}

func (rs *RSSSource) Fetch(ctx context.Context, sourceID string, opts FetchOptions) ([]Post, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(sourceID), "@")
	if handle == "" {
		return nil, errors.New("rss: source id is required")
	}
	feedURL := strings.ReplaceAll(rs.urlTemplate, rssUserToken, url.PathEscape(handle))

	feed, err := rs.fetchWithRetry(ctx, feedURL)
	if err != nil {
		return nil, fmt.Errorf("rss: %s: %w", handle, err)
	}
	return postsFromFeed(feed, handle, opts), nil
}

// rssTransport injects a User-Agent header into every request.
type rssTransport struct {
	base http.RoundTripper
}

func (t *rssTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", rssUserAgent)
	return t.base.RoundTrip(req)
}

func (rs *RSSSource) fetchWithRetry(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	policy := retrypolicy.NewBuilder[*gofeed.Feed]().
		WithBackoff(rs.retryDelay, 4*rs.retryDelay).
		WithMaxRetries(rssMaxRetries - 1).
		HandleIf(func(_ *gofeed.Feed, err error) bool {
			return isRetryableFeedError(err)
		}).
		Build()

	return failsafe.With(policy).WithContext(ctx).Get(func() (*gofeed.Feed, error) {
		fctx, cancel := context.WithTimeout(ctx, rssFetchTimeout)
		defer cancel()

		fp := gofeed.NewParser()
		fp.Client = rs.client
		return fp.ParseURLWithContext(feedURL, fctx)
	})
}

func isRetryableFeedError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var he gofeed.HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	return isRetryableError(err)
}

func postsFromFeed(feed *gofeed.Feed, handle string, opts FetchOptions) []Post {
	var posts []Post
	for _, item := range feed.Items {
		createdAt := itemPublishedTime(item)
		if createdAt.IsZero() {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if opts.ExcludeReposts && strings.HasPrefix(title, rssRepostPrefix) {
			continue
		}
		if opts.ExcludeReplies && strings.HasPrefix(title, rssReplyPrefix) {
			continue
		}

		posts = append(posts, Post{
			CreatedAt: createdAt,
			Text:      itemText(item),
			SourceID:  handle,
			ItemID:    itemID(item),
		})
	}

	sortNewestFirst(posts)
	if opts.MaxItems > 0 && len(posts) > opts.MaxItems {
		posts = posts[:opts.MaxItems]
	}
	return posts
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func itemID(item *gofeed.Item) string {
	for _, candidate := range []string{item.Link, item.GUID} {
		if m := statusIDRe.FindStringSubmatch(candidate); m != nil {
			return m[1]
		}
	}
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// itemText prefers the description, which keeps the links bridges rewrite out of
// the title, and falls back to the title.
func itemText(item *gofeed.Item) string {
	text := stripHTML(item.Description)
	if text == "" {
		text = strings.TrimSpace(item.Title)
	}
	return text
}

// stripHTML flattens a description to text. Anchors pointing at http(s) URLs are
// replaced by their target so shortened links survive for resolution.
func stripHTML(s string) string {
	s = anchorRe.ReplaceAllStringFunc(s, func(a string) string {
		m := anchorRe.FindStringSubmatch(a)
		href := html.UnescapeString(m[1])
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			return href
		}
		return m[2]
	})
	s = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n").Replace(s)
	s = htmlTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
