package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tweetpan/internal/config"
	"github.com/ppiankov/tweetpan/internal/digest"
	"github.com/ppiankov/tweetpan/internal/dispatch"
	"github.com/ppiankov/tweetpan/internal/logging"
	"github.com/ppiankov/tweetpan/internal/metrics"
	"github.com/ppiankov/tweetpan/internal/pipeline"
	"github.com/ppiankov/tweetpan/internal/resolve"
	"github.com/ppiankov/tweetpan/internal/source"
	"github.com/ppiankov/tweetpan/internal/store"
)

var (
	runDryRun bool
	runTopics []string
	runFormat string
	runEvery  string
)

// runOnceAction is swapped in tests.
var runOnceAction = runOnce

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build and mail one digest per topic",
	RunE:  runAction,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print messages to stdout instead of mailing them")
	runCmd.Flags().StringSliceVar(&runTopics, "topic", nil, "process only these topics (repeatable)")
	runCmd.Flags().StringVar(&runFormat, "format", "text", "message body format: text, json, markdown")
	runCmd.Flags().StringVar(&runEvery, "every", "", "repeat at this interval until interrupted (e.g. 24h)")
}

func runAction(cmd *cobra.Command, _ []string) error {
	every, err := parseRunEvery(runEvery)
	if err != nil {
		return err
	}
	if every == 0 {
		return runOnceAction(cmd)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)
	return runWatch(ctx, every, func() error {
		return runOnceAction(cmd)
	})
}

func parseRunEvery(value string) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse --every: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--every must be positive, got %s", value)
	}
	return d, nil
}

// runWatch calls runOnce immediately and then on every tick until ctx ends.
// A failed run is reported and the loop continues.
func runWatch(ctx context.Context, every time.Duration, runOnce func() error) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := runOnce(); err != nil {
			fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runOnce(cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

	topics, err := selectTopics(cfg, runTopics)
	if err != nil {
		return err
	}
	if !runDryRun {
		if gaps := config.Check(cfg); len(gaps) > 0 {
			return fmt.Errorf("configuration incomplete: %s (run 'tweetpan validate')", strings.Join(gaps, "; "))
		}
	}

	formatter, err := bodyFormatter(runFormat)
	if err != nil {
		return err
	}

	fetcher, err := newFetcher(cfg)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	if pruned, err := db.PruneOld(ctx, cfg.Storage.RetainDays); err != nil {
		log.WithError(err).Warn("prune store")
	} else if pruned > 0 {
		log.WithField("rows", pruned).Debug("pruned store")
	}

	resolver := resolve.New(resolverOptions(cfg, db, log), log)
	builder := pipeline.NewBuilder(fetcher, resolver, log, pipeline.Options{
		MaxItems:       cfg.Fetcher.MaxItems,
		Horizon:        cfg.Digest.Since.Duration,
		ExcludeReplies: !cfg.Fetcher.IncludeReplies,
		ExcludeReposts: !cfg.Fetcher.IncludeReposts,
		Domain:         cfg.Platform.Domain,
		Workers:        cfg.Resolver.Workers,
		Render: digest.Options{
			ProfileURL: cfg.Platform.ProfileURL,
			Location:   cfg.Location(),
			MaxItems:   cfg.Fetcher.MaxItems,
		},
	})

	var (
		dispatcher dispatch.Dispatcher
		recorder   pipeline.Recorder
	)
	if runDryRun {
		dispatcher = dispatch.NewWriter(os.Stdout)
	} else {
		dispatcher = dispatch.NewSMTP(dispatch.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			User:     cfg.Mail.User,
			Password: cfg.Mail.Password,
		})
		recorder = db
	}

	runner := pipeline.NewRunner(builder, dispatcher, recorder, log)
	if formatter != nil {
		runner.WithFormatter(formatter)
	}

	log.WithFields(logging.Fields{
		"topics":  len(topics),
		"fetcher": fetcher.Name(),
		"dry_run": runDryRun,
	}).Info("run started")

	results, runErr := runner.Run(ctx, topicsToRun(cfg, topics))

	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.WithError(err).Warn("write metrics textfile")
		}
	}

	if !runDryRun {
		printRunSummary(results)
	}
	return runErr
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

// selectTopics returns the configured topics, restricted to names when given.
func selectTopics(cfg *config.Config, names []string) ([]config.TopicConfig, error) {
	if len(names) == 0 {
		return cfg.Topics, nil
	}
	var out []config.TopicConfig
	var unknown []string
	for _, name := range names {
		t, ok := cfg.Topic(strings.TrimSpace(name))
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if !slices.ContainsFunc(out, func(o config.TopicConfig) bool { return o.Name == t.Name }) {
			out = append(out, t)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown topic: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

func topicsToRun(cfg *config.Config, topics []config.TopicConfig) []pipeline.Topic {
	out := make([]pipeline.Topic, 0, len(topics))
	for _, t := range topics {
		out = append(out, pipeline.Topic{
			Name:    t.Name,
			Sources: t.Users,
			Filter:  t.Filter,
			From:    cfg.Mail.From,
			To:      t.MailTo,
			Subject: t.Subject,
		})
	}
	return out
}

func bodyFormatter(format string) (digest.Formatter, error) {
	switch format {
	case "text", "":
		return nil, nil
	case "json":
		return digest.NewJSON(), nil
	case "markdown":
		return digest.NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want text, json, or markdown)", format)
	}
}

func newFetcher(cfg *config.Config) (source.Fetcher, error) {
	switch cfg.Fetcher.Kind {
	case config.FetcherRSS:
		rs, err := source.NewRSS(cfg.Fetcher.RSS.URLTemplate)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case config.FetcherAPI:
		api, err := source.NewAPI(cfg.Fetcher.API.BaseURL, cfg.Fetcher.API.Token, cfg.Fetcher.API.RequestsPerSecond)
		if err != nil {
			return nil, err
		}
		return api, nil
	default:
		return nil, errors.New("unknown fetcher " + cfg.Fetcher.Kind)
	}
}

func resolverOptions(cfg *config.Config, db *store.Store, log logging.Logger) resolve.Options {
	opts := resolve.Options{
		Timeout:  cfg.Resolver.Timeout.Duration,
		Insecure: !cfg.Resolver.VerifyTLS,
	}
	if !cfg.Resolver.NoCache {
		opts.Cache = db.LinkCache(cfg.Resolver.CacheTTL.Duration, log)
	}
	return opts
}

func printRunSummary(results []pipeline.TopicResult) {
	var sent, empty, failed int
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
		case res.Sent:
			sent++
		default:
			empty++
		}
	}
	fmt.Printf("Processed %d topics: %d sent, %d empty, %d failed\n", len(results), sent, empty, failed)
}
