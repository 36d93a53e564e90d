package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tweetpan/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig), 0o644)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	envPath := filepath.Join(configDir, config.DefaultEnvFile)
	wrote, err = writeIfNotExists(envPath, []byte(exampleEnv), 0o600)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# tweetpan configuration

fetcher:
  kind: api              # api or rss
  max_items: 100
  include_replies: false
  include_reposts: false
  api:
    token_env: TWEETPAN_BEARER_TOKEN
    requests_per_second: 1
  rss:
    url_template: ""     # e.g. https://nitter.example/{user}/rss

platform:
  domain: twitter.com
  profile_url: https://www.twitter.com/{user}

resolver:
  timeout: 10s
  verify_tls: false
  workers: 4
  cache_ttl: 168h

mail:
  from: tweetpan@localhost
  host: localhost
  port: 25
  # user: tweetpan
  # password_env: TWEETPAN_SMTP_PASSWORD

digest:
  since: 24h
  timezone: UTC

storage:
  path: .tweetpan/tweetpan.db
  retain_days: 30

log:
  level: info
  format: text

metrics:
  textfile: ""

topics:
  - name: golang
    users: [golang]
    mailto: you@example.com
    subject: "Go digest"
    filter:
      strip_phrase: ""
      banned_phrases: []
      strip_query_string: false
`

const exampleEnv = `# Secrets read by tweetpan. Variables already set in the environment win.
TWEETPAN_BEARER_TOKEN=
`
