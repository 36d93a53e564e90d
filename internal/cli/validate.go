package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tweetpan/internal/config"
	"github.com/ppiankov/tweetpan/internal/source"
	"github.com/ppiankov/tweetpan/internal/store"
)

var validateProbe bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and, with --probe, every followed account",
	RunE:  validateAction,
}

func init() {
	validateCmd.Flags().BoolVar(&validateProbe, "probe", false, "fetch one post per account to confirm it exists")
}

func validateAction(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	ok := true

	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config directory %s", configDir)

	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	users := 0
	for _, t := range cfg.Topics {
		users += len(t.Users)
	}
	printCheck(true, "config.yaml (%d topics, %d accounts, %s fetcher)", len(cfg.Topics), users, cfg.Fetcher.Kind)

	for _, gap := range config.Check(cfg) {
		printCheck(false, "%s", gap)
		ok = false
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(false, "database: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		printCheck(true, "database %s", cfg.Storage.Path)
	}

	fetcher, err := newFetcher(cfg)
	if err != nil {
		printCheck(false, "fetcher: %v", err)
		ok = false
	} else if validateProbe {
		if !probeAccounts(ctx, fetcher, cfg) {
			ok = false
		}
	}

	if db != nil {
		checkSourceHealth(ctx, db)
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// probeAccounts fetches a single post of every distinct account.
func probeAccounts(ctx context.Context, fetcher source.Fetcher, cfg *config.Config) bool {
	ok := true
	seen := make(map[string]bool)
	opts := source.FetchOptions{MaxItems: 1}
	for _, t := range cfg.Topics {
		for _, user := range t.Users {
			if seen[user] {
				continue
			}
			seen[user] = true

			_, err := fetcher.Fetch(ctx, user, opts)
			switch {
			case err == nil:
				printCheck(true, "account %s", user)
			case errors.Is(err, source.ErrNotFound):
				printCheck(false, "account %s doesn't exist (topic %s)", user, t.Name)
				ok = false
			default:
				printCheck(false, "account %s: %v", user, err)
				ok = false
			}
		}
	}
	return ok
}

func checkSourceHealth(ctx context.Context, db *store.Store) {
	now := time.Now()
	stats, err := db.GetSourceStats(ctx, now.AddDate(0, 0, -30))
	if err != nil || len(stats) == 0 {
		return
	}

	fmt.Println()
	for _, s := range stats {
		if s.Failures > 0 {
			printInfo("failing: %s/%s failed %d of %d runs", s.Topic, s.Source, s.Failures, s.Runs)
		}
		if isStale(s, now) {
			printInfo("stale: %s/%s has had no new posts for %d+ days", s.Topic, s.Source, staleDays)
		}
		if s.Unique+s.Duplicates >= 10 && s.DuplicateRatio() > 0.8 {
			printInfo("repetitive: %s/%s, %.0f%% of posts are duplicates", s.Topic, s.Source, s.DuplicateRatio()*100)
		}
	}
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
