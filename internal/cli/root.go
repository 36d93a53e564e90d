// Package cli provides the command-line interface for tweetpan.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:           "tweetpan",
	Short:         "Mail deduplicated digests of followed accounts",
	Long:          "tweetpan fetches recent posts of followed accounts per topic, resolves shortened links, drops duplicates and banned content, and mails one plain-text digest per topic.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("tweetpan %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir(), "config directory (env TWEETPAN_CONFIG)")
	rootCmd.AddCommand(versionCmd, initCmd, runCmd, validateCmd, statsCmd)
}

func defaultConfigDir() string {
	if dir := os.Getenv("TWEETPAN_CONFIG"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tweetpan"
	}
	return filepath.Join(home, ".tweetpan")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
