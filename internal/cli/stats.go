package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tweetpan/internal/config"
	"github.com/ppiankov/tweetpan/internal/store"
)

var (
	statsSince  string
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-account run history",
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsSince, "since", "30d", "time window (e.g. 7d, 48h)")
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json")
}

const staleDays = 7

func statsAction(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	sinceDur, err := parseDuration(statsSince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}

	stats, err := db.GetSourceStats(commandContext(cmd), time.Now().Add(-sinceDur))
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	if len(stats) == 0 {
		if statsFormat == "json" {
			fmt.Fprintln(os.Stdout, `{"sources":[],"totals":{}}`)
			return nil
		}
		fmt.Fprintln(os.Stdout, "No runs recorded. Run 'tweetpan run' first.")
		return nil
	}

	switch statsFormat {
	case "json":
		return printStatsJSON(os.Stdout, stats)
	case "terminal", "":
		printStats(os.Stdout, stats, sinceDur)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", statsFormat)
	}
}

type jsonStatsOutput struct {
	Sources []jsonSourceStats `json:"sources"`
	Totals  jsonTotals        `json:"totals"`
}

type jsonSourceStats struct {
	Topic       string  `json:"topic"`
	Source      string  `json:"source"`
	Runs        int     `json:"runs"`
	Fetched     int     `json:"fetched"`
	Unique      int     `json:"unique"`
	Duplicates  int     `json:"duplicates"`
	Failures    int     `json:"failures"`
	DupRatio    float64 `json:"duplicate_pct"`
	LastRun     string  `json:"last_run"`
	LastContent string  `json:"last_content,omitempty"`
	Stale       bool    `json:"stale"`
}

type jsonTotals struct {
	Runs       int `json:"runs"`
	Fetched    int `json:"fetched"`
	Unique     int `json:"unique"`
	Duplicates int `json:"duplicates"`
	Failures   int `json:"failures"`
}

func printStatsJSON(w io.Writer, stats []store.SourceStats) error {
	now := time.Now()
	out := jsonStatsOutput{Sources: make([]jsonSourceStats, 0, len(stats))}

	for _, s := range stats {
		entry := jsonSourceStats{
			Topic:      s.Topic,
			Source:     s.Source,
			Runs:       s.Runs,
			Fetched:    s.Fetched,
			Unique:     s.Unique,
			Duplicates: s.Duplicates,
			Failures:   s.Failures,
			DupRatio:   s.DuplicateRatio() * 100,
			LastRun:    s.LastRun.UTC().Format(time.RFC3339),
			Stale:      isStale(s, now),
		}
		if !s.LastContent.IsZero() {
			entry.LastContent = s.LastContent.UTC().Format(time.RFC3339)
		}
		out.Sources = append(out.Sources, entry)

		out.Totals.Runs += s.Runs
		out.Totals.Fetched += s.Fetched
		out.Totals.Unique += s.Unique
		out.Totals.Duplicates += s.Duplicates
		out.Totals.Failures += s.Failures
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStats(w io.Writer, stats []store.SourceStats, since time.Duration) {
	now := time.Now()

	var totalUnique, totalDup, totalFetched int
	topics := make(map[string]bool)
	for _, s := range stats {
		totalUnique += s.Unique
		totalDup += s.Duplicates
		totalFetched += s.Fetched
		topics[s.Topic] = true
	}

	fmt.Fprintf(w, "tweetpan stats: %s, %d accounts in %d topics, %d posts fetched\n\n",
		formatStatsDuration(since), len(stats), len(topics), totalFetched)

	// Most repetitive accounts first.
	sorted := make([]store.SourceStats, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DuplicateRatio() > sorted[j].DuplicateRatio()
	})

	fmt.Fprintln(w, "--- Accounts ---")
	fmt.Fprintln(w)

	maxName := 7 // "Account"
	for _, s := range sorted {
		if n := len(statsName(s)); n > maxName {
			maxName = n
		}
	}
	if maxName > 40 {
		maxName = 40
	}

	fmt.Fprintf(w, "  %-*s  %4s  %7s  %6s  %5s  %8s  %4s\n", maxName, "Account", "Runs", "Fetched", "Unique", "Dups", "Dup Rate", "Fail")
	for _, s := range sorted {
		name := statsName(s)
		if len(name) > maxName {
			name = name[:maxName-1] + "~"
		}
		fmt.Fprintf(w, "  %-*s  %4d  %7d  %6d  %5d  %7.0f%%  %4d\n",
			maxName, name, s.Runs, s.Fetched, s.Unique, s.Duplicates, s.DuplicateRatio()*100, s.Failures)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "--- Totals ---")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Unique:      %5d  (%.1f%%)\n", totalUnique, pct(totalUnique, totalUnique+totalDup))
	fmt.Fprintf(w, "  Duplicates:  %5d  (%.1f%%)\n", totalDup, pct(totalDup, totalUnique+totalDup))
	fmt.Fprintln(w)

	var stale []store.SourceStats
	for _, s := range stats {
		if isStale(s, now) {
			stale = append(stale, s)
		}
	}
	if len(stale) > 0 {
		fmt.Fprintf(w, "--- Stale Accounts (no new posts in %d+ days) ---\n\n", staleDays)
		for _, s := range stale {
			if s.LastContent.IsZero() {
				fmt.Fprintf(w, "  %s: nothing new in %d runs\n", statsName(s), s.Runs)
				continue
			}
			daysAgo := int(now.Sub(s.LastContent).Hours() / 24)
			fmt.Fprintf(w, "  %s: last new post %d days ago\n", statsName(s), daysAgo)
		}
		fmt.Fprintln(w)
	}
}

func statsName(s store.SourceStats) string {
	return s.Topic + "/" + s.Source
}

// isStale reports whether an account stopped producing unique posts. Accounts
// that never produced one count as stale after staleDays runs.
func isStale(s store.SourceStats, now time.Time) bool {
	if s.LastContent.IsZero() {
		return s.Runs >= staleDays
	}
	return s.LastContent.Before(now.AddDate(0, 0, -staleDays))
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func formatStatsDuration(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}
