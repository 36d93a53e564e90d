// Package pipeline turns fetched posts into topic reports and dispatches them.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/tweetpan/internal/dedup"
	"github.com/ppiankov/tweetpan/internal/digest"
	"github.com/ppiankov/tweetpan/internal/filter"
	"github.com/ppiankov/tweetpan/internal/logging"
	"github.com/ppiankov/tweetpan/internal/metrics"
	"github.com/ppiankov/tweetpan/internal/normalize"
	"github.com/ppiankov/tweetpan/internal/source"
)

const defaultWorkers = 4

// Options controls how reports are built.
type Options struct {
	MaxItems       int
	Horizon        time.Duration
	ExcludeReplies bool
	ExcludeReposts bool
	Domain         string // platform host for the media permalink check
	Workers        int    // concurrent normalizations per source
	Render         digest.Options
}

// SourceError reports which source made a topic fail.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// Builder builds topic reports from a fetcher and a link resolver. It is safe
// for concurrent use when its collaborators are.
type Builder struct {
	fetcher source.Fetcher
	linker  normalize.Linker
	log     logging.Logger
	opts    Options
}

// NewBuilder creates a Builder.
func NewBuilder(fetcher source.Fetcher, linker normalize.Linker, log logging.Logger, opts Options) *Builder {
	if log == nil {
		log = logging.Discard()
	}
	if opts.Horizon <= 0 {
		opts.Horizon = filter.DefaultHorizon
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.Render.MaxItems == 0 {
		opts.Render.MaxItems = opts.MaxItems
	}
	return &Builder{fetcher: fetcher, linker: linker, log: log, opts: opts}
}

// BuildReport renders the report of one topic. ok is false when there is
// nothing worth sending.
func (b *Builder) BuildReport(ctx context.Context, topic string, sources []string, cfg filter.Config, now time.Time) (string, bool, error) {
	report, err := b.Collect(ctx, topic, sources, cfg, now)
	if err != nil {
		return "", false, err
	}
	text, ok := digest.Render(report, b.opts.Render)
	return text, ok, nil
}

// Collect processes every source of a topic in order. A fetch failure aborts
// the topic and is returned as a *SourceError; the partial report holds the
// sources finished before it.
func (b *Builder) Collect(ctx context.Context, topic string, sources []string, cfg filter.Config, now time.Time) (*digest.Report, error) {
	cutoff := filter.Cutoff(now, b.opts.Horizon)
	n := normalize.New(b.linker, filter.Compile(cfg), b.opts.Domain, cutoff)

	report := &digest.Report{Topic: topic}
	for _, src := range sources {
		sr, err := b.collectSource(ctx, topic, src, n, cutoff)
		if err != nil {
			return report, &SourceError{Source: src, Err: err}
		}
		report.Add(sr)
	}
	return report, nil
}

func (b *Builder) collectSource(ctx context.Context, topic, src string, n *normalize.Normalizer, cutoff time.Time) (digest.SourceReport, error) {
	log := b.log.WithFields(logging.Fields{"topic": topic, "source": src})
	log.Debug("fetching timeline")

	posts, err := b.fetcher.Fetch(ctx, src, source.FetchOptions{
		MaxItems:       b.opts.MaxItems,
		ExcludeReplies: b.opts.ExcludeReplies,
		ExcludeReposts: b.opts.ExcludeReposts,
	})
	if err != nil {
		return digest.SourceReport{}, err
	}
	metrics.PostsFetched.WithLabelValues(topic).Add(float64(len(posts)))

	// every post is checked; feed order is not trusted for an early stop
	window := make([]source.Post, 0, len(posts))
	for _, p := range posts {
		if p.CreatedAt.Before(cutoff) {
			metrics.PostsDiscarded.WithLabelValues("window").Inc()
			continue
		}
		window = append(window, p)
	}

	texts := b.normalizeAll(ctx, n, window)

	set := dedup.NewSet()
	sr := digest.SourceReport{Source: src, Fetched: len(posts)}
	for i, p := range window {
		if set.Add(texts[i]) {
			sr.Add(p.CreatedAt, texts[i])
		}
	}
	sr.Unique = set.Uniques()
	sr.Duplicates = set.Duplicates()
	metrics.UniquePosts.Add(float64(sr.Unique))
	metrics.DuplicatePosts.Add(float64(sr.Duplicates))

	log.WithFields(logging.Fields{
		"fetched":    sr.Fetched,
		"in_window":  len(window),
		"unique":     sr.Unique,
		"duplicates": sr.Duplicates,
	}).Info("source processed")
	return sr, nil
}

// normalizeAll normalizes posts concurrently; results keep feed order.
func (b *Builder) normalizeAll(ctx context.Context, n *normalize.Normalizer, posts []source.Post) []string {
	texts := make([]string, len(posts))
	var g errgroup.Group
	g.SetLimit(b.opts.Workers)
	for i, p := range posts {
		g.Go(func() error {
			texts[i] = n.Normalize(ctx, p)
			return nil
		})
	}
	_ = g.Wait()
	return texts
}
