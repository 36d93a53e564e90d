// Package digest aggregates per-source results and renders topic reports.
package digest

import (
	"io"
	"slices"
	"strings"
	"time"
)

// Generator names the tool in report footers.
const Generator = "tweetpan"

// Entry is one retained post.
type Entry struct {
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// SourceReport holds the unique posts of one source, in feed order.
type SourceReport struct {
	Source     string
	Entries    []Entry
	Unique     int
	Duplicates int
	Fetched    int // posts returned by the fetcher
}

// Add appends a retained post.
func (s *SourceReport) Add(ts time.Time, text string) {
	s.Entries = append(s.Entries, Entry{Time: ts, Text: text})
}

// Total returns the number of posts that reached deduplication.
func (s *SourceReport) Total() int {
	return s.Unique + s.Duplicates
}

// Report is the aggregated result of one topic.
type Report struct {
	Topic   string
	Sources []SourceReport
}

// Add stores a finalized source report.
func (r *Report) Add(s SourceReport) {
	r.Sources = append(r.Sources, s)
}

// Active returns the sources with at least one unique post, sorted by name.
func (r *Report) Active() []SourceReport {
	var active []SourceReport
	for _, s := range r.Sources {
		if s.Unique > 0 && len(s.Entries) > 0 {
			active = append(active, s)
		}
	}
	slices.SortFunc(active, func(a, b SourceReport) int {
		return strings.Compare(a.Source, b.Source)
	})
	return active
}

// HasContent reports whether any source produced a unique post.
func (r *Report) HasContent() bool {
	return len(r.Active()) > 0
}

// Options controls rendering.
type Options struct {
	ProfileURL string         // profile link template containing {user}
	Location   *time.Location // time zone of timestamps; nil means UTC
	MaxItems   int            // fetch page size, for the truncation note
}

// Formatter writes a rendered report to w.
type Formatter interface {
	Format(w io.Writer, r *Report, opts Options) error
}

// Render returns the plain-text report. ok is false when no source has
// anything to report; the caller then skips dispatch.
func Render(r *Report, opts Options) (text string, ok bool) {
	if r == nil || !r.HasContent() {
		return "", false
	}
	var b strings.Builder
	if err := NewText().Format(&b, r, opts); err != nil {
		return "", false
	}
	return b.String(), true
}

func (o Options) profileURL(user string) string {
	if o.ProfileURL == "" {
		return ""
	}
	return strings.ReplaceAll(o.ProfileURL, "{user}", user)
}

func (o Options) timestamp(t time.Time) string {
	loc := o.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.ANSIC)
}

func (o Options) truncated(s SourceReport) bool {
	return o.MaxItems > 0 && s.Fetched >= o.MaxItems
}
