package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/tweetpan/internal/digest"
	"github.com/ppiankov/tweetpan/internal/dispatch"
	"github.com/ppiankov/tweetpan/internal/filter"
	"github.com/ppiankov/tweetpan/internal/logging"
	"github.com/ppiankov/tweetpan/internal/metrics"
	"github.com/ppiankov/tweetpan/internal/store"
)

// Topic is a named group of sources sharing one filter and one delivery target.
type Topic struct {
	Name    string
	Sources []string
	Filter  filter.Config
	From    string
	To      []string
	Subject string
}

// TopicResult is the outcome of one topic.
type TopicResult struct {
	Topic      string
	Sent       bool // false for empty reports and failures
	Unique     int
	Duplicates int
	Err        error
}

// Recorder persists per-source run history.
type Recorder interface {
	RecordSourceRun(ctx context.Context, run store.SourceRun) error
}

// Runner processes topics in parallel, isolating failures per topic.
type Runner struct {
	builder    *Builder
	dispatcher dispatch.Dispatcher
	recorder   Recorder
	formatter  digest.Formatter
	log        logging.Logger
	now        func() time.Time
}

// NewRunner creates a Runner. recorder may be nil.
func NewRunner(builder *Builder, dispatcher dispatch.Dispatcher, recorder Recorder, log logging.Logger) *Runner {
	if log == nil {
		log = logging.Discard()
	}
	return &Runner{
		builder:    builder,
		dispatcher: dispatcher,
		recorder:   recorder,
		log:        log,
		now:        time.Now,
	}
}

// WithFormatter renders message bodies with f instead of the plain-text form.
func (r *Runner) WithFormatter(f digest.Formatter) *Runner {
	r.formatter = f
	return r
}

// Run processes every topic and waits for all of them. A failing topic never
// cancels the others. The returned error summarizes failed topics.
func (r *Runner) Run(ctx context.Context, topics []Topic) ([]TopicResult, error) {
	now := r.now()
	results := make([]TopicResult, len(topics))

	var g errgroup.Group
	for i, t := range topics {
		g.Go(func() error {
			results[i] = r.runTopic(ctx, t, now)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for _, res := range results {
		if res.Err != nil {
			failed = append(failed, res.Topic)
		}
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("%d of %d topics failed: %s", len(failed), len(topics), strings.Join(failed, ", "))
	}
	return results, nil
}

func (r *Runner) runTopic(ctx context.Context, t Topic, now time.Time) (res TopicResult) {
	res.Topic = t.Name
	log := r.log.WithField("topic", t.Name)

	defer func() {
		if p := recover(); p != nil {
			res.Sent = false
			res.Err = fmt.Errorf("panic: %v", p)
			log.WithFields(logging.Fields{
				"panic": fmt.Sprint(p),
				"stack": string(debug.Stack()),
			}).Error("topic panicked")
		}
		outcome := "empty"
		switch {
		case res.Err != nil:
			outcome = "failed"
		case res.Sent:
			outcome = "sent"
		}
		metrics.TopicsProcessed.WithLabelValues(outcome).Inc()
	}()

	report, err := r.builder.Collect(ctx, t.Name, t.Sources, t.Filter, now)
	r.record(ctx, t.Name, report, err, now)
	for _, s := range report.Sources {
		res.Unique += s.Unique
		res.Duplicates += s.Duplicates
	}
	if err != nil {
		res.Err = fmt.Errorf("topic %s: %w", t.Name, err)
		log.WithError(err).Error("topic failed")
		return res
	}

	body, ok, err := r.render(report)
	if err != nil {
		res.Err = fmt.Errorf("topic %s: render: %w", t.Name, err)
		log.WithError(err).Error("topic failed")
		return res
	}
	if !ok {
		log.Info("nothing to report")
		return res
	}

	msg := dispatch.Message{
		Topic:   t.Name,
		From:    t.From,
		To:      t.To,
		Subject: t.Subject,
		Body:    body,
		Date:    now,
	}
	if err := r.dispatcher.Send(ctx, msg); err != nil {
		res.Err = fmt.Errorf("topic %s: send: %w", t.Name, err)
		log.WithError(err).WithField("to", strings.Join(t.To, ",")).Error("dispatch failed")
		return res
	}

	res.Sent = true
	log.WithFields(logging.Fields{
		"unique":     res.Unique,
		"duplicates": res.Duplicates,
	}).Info("report sent")
	return res
}

func (r *Runner) render(report *digest.Report) (string, bool, error) {
	if r.formatter == nil {
		text, ok := digest.Render(report, r.builder.opts.Render)
		return text, ok, nil
	}
	if !report.HasContent() {
		return "", false, nil
	}
	var b strings.Builder
	if err := r.formatter.Format(&b, report, r.builder.opts.Render); err != nil {
		return "", false, err
	}
	return b.String(), true, nil
}

// record stores the outcome of every processed source and of the source that
// failed. Storage errors are logged only.
func (r *Runner) record(ctx context.Context, topic string, report *digest.Report, err error, now time.Time) {
	if r.recorder == nil {
		return
	}
	runs := make([]store.SourceRun, 0, len(report.Sources)+1)
	for _, s := range report.Sources {
		runs = append(runs, store.SourceRun{
			Topic:      topic,
			Source:     s.Source,
			RunAt:      now,
			Fetched:    s.Fetched,
			Unique:     s.Unique,
			Duplicates: s.Duplicates,
		})
	}
	var se *SourceError
	if errors.As(err, &se) {
		runs = append(runs, store.SourceRun{Topic: topic, Source: se.Source, RunAt: now, Err: se.Err.Error()})
	}

	for _, run := range runs {
		if rerr := r.recorder.RecordSourceRun(ctx, run); rerr != nil {
			r.log.WithError(rerr).WithFields(logging.Fields{
				"topic":  topic,
				"source": run.Source,
			}).Warn("failed to record source run")
		}
	}
}
