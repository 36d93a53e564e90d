// Package metrics holds the Prometheus instruments updated during a run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PostsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetpan_posts_fetched_total",
		Help: "Posts returned by the fetcher, per topic",
	}, []string{"topic"})

	PostsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetpan_posts_discarded_total",
		Help: "Posts dropped before deduplication (out of window, banned phrase, empty)",
	}, []string{"reason"})

	UniquePosts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tweetpan_posts_unique_total",
		Help: "Posts accepted as unique within their source",
	})

	DuplicatePosts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tweetpan_posts_duplicate_total",
		Help: "Posts rejected as duplicates within their source",
	})

	MediaLinksSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tweetpan_media_links_suppressed_total",
		Help: "Embedded media permalinks dropped from post text",
	})

	LinksResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetpan_links_resolved_total",
		Help: "Link resolutions by outcome (ok, cached, timeout, error)",
	}, []string{"outcome"})

	ResolveHops = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tweetpan_resolve_hops",
		Help:    "Redirect hops followed per resolved link",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
	})

	TopicsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tweetpan_topics_total",
		Help: "Topics processed by outcome (sent, empty, failed)",
	}, []string{"outcome"})
)

// WriteTextfile dumps the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
