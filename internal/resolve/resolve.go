// Package resolve follows shortened links to their final destination.
package resolve

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/tweetpan/internal/logging"
	"github.com/ppiankov/tweetpan/internal/metrics"
)

const (
	// MaxHops bounds every redirect chain.
	MaxHops = 10

	defaultTimeout = 10 * time.Second
	userAgent      = "tweetpan/1.0"
)

// IsHTTPLink reports whether s starts with an http or https scheme.
func IsHTTPLink(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Cache remembers fully resolved links between runs.
type Cache interface {
	Lookup(ctx context.Context, link string) (string, bool)
	Remember(ctx context.Context, link, final string)
}

// Options configures a Resolver.
type Options struct {
	Timeout  time.Duration // per request
	Insecure bool          // skip TLS certificate verification
	Cache    Cache         // optional
}

// Resolver follows redirect chains with HEAD requests. It is safe for
// concurrent use.
type Resolver struct {
	client *http.Client
	log    logging.Logger
	cache  Cache
}

// New creates a Resolver. A nil logger discards output.
func New(opts Options, log logging.Logger) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if log == nil {
		log = logging.Discard()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &Resolver{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log:   log,
		cache: opts.Cache,
	}
}

// Resolve returns the final destination of link, or the last URL reached when
// the chain breaks. text and link are only used to describe failures. It
// never fails: errors are logged and the best URL known so far is returned.
func (r *Resolver) Resolve(ctx context.Context, link, text string) string {
	if !IsHTTPLink(link) {
		return link
	}
	if r.cache != nil {
		if final, ok := r.cache.Lookup(ctx, link); ok {
			metrics.LinksResolved.WithLabelValues("cached").Inc()
			return final
		}
	}

	final, hops, err := r.follow(ctx, link)
	metrics.ResolveHops.Observe(float64(hops))

	switch {
	case err == nil:
		metrics.LinksResolved.WithLabelValues("ok").Inc()
		if r.cache != nil {
			r.cache.Remember(ctx, link, final)
		}
	case isTimeout(err):
		metrics.LinksResolved.WithLabelValues("timeout").Inc()
		r.log.WithFields(logging.Fields{
			"word": link,
			"url":  final,
		}).Debug("link resolution timed out")
	default:
		metrics.LinksResolved.WithLabelValues("error").Inc()
		r.log.WithError(err).WithFields(logging.Fields{
			"text": text,
			"word": link,
			"url":  final,
		}).Warn("link resolution failed")
	}
	return final
}

// follow walks the chain and returns the last URL reached and the number of
// hops taken.
func (r *Resolver) follow(ctx context.Context, link string) (string, int, error) {
	current := link
	for hop := 0; hop < MaxHops; hop++ {
		next, err := r.location(ctx, current)
		if err != nil {
			return current, hop, err
		}
		if next == "" {
			return current, hop, nil
		}
		current = next
	}
	return current, MaxHops, nil
}

// location issues one HEAD request and returns the redirect target, or ""
// when the response carries no absolute http(s) Location.
func (r *Resolver) location(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	loc := resp.Header.Get("Location")
	if !IsHTTPLink(loc) {
		return "", nil
	}
	return loc, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
