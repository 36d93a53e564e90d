package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTestYAML(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write test yaml: %v", err)
	}
	return path
}

const minimalYAML = `
topics:
  - name: golang
    users: [golang]
    mailto: me@example.com
    subject: Go news
`

// --- Load tests ---

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_BEARER", "tok-123")
	t.Setenv("TEST_SMTP_PASS", "hunter2")

	writeTestYAML(t, dir, DefaultConfigFile, `
fetcher:
  kind: api
  max_items: 50
  include_replies: true
  api:
    base_url: https://api.example.com
    token_env: TEST_BEARER
    requests_per_second: 2.5
platform:
  domain: x.com
  profile_url: https://x.com/{user}
resolver:
  timeout: 5s
  verify_tls: true
  workers: 8
  cache_ttl: 48h
mail:
  from: digest@example.com
  host: smtp.example.com
  port: 587
  user: digest
  password_env: TEST_SMTP_PASS
digest:
  timezone: "America/New_York"
  since: 12h
storage:
  path: custom.db
  retain_days: 60
log:
  level: debug
  format: json
metrics:
  textfile: /var/lib/node_exporter/tweetpan.prom
topics:
  - name: security
    users: [alice, bob]
    mailto:
      - sec@example.com
      - ops@example.com
    subject: Security digest
    filter:
      strip_phrase: "(via @feed)"
      banned_phrases: ["giveaway", "promo"]
      strip_query_string: true
  - name: golang
    users: golang
    mailto: me@example.com
    subject: Go news
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Fetcher
	if cfg.Fetcher.MaxItems != 50 {
		t.Errorf("max_items = %d, want 50", cfg.Fetcher.MaxItems)
	}
	if !cfg.Fetcher.IncludeReplies || cfg.Fetcher.IncludeReposts {
		t.Errorf("include replies/reposts = %v/%v, want true/false", cfg.Fetcher.IncludeReplies, cfg.Fetcher.IncludeReposts)
	}
	if cfg.Fetcher.API.Token != "tok-123" {
		t.Errorf("api token = %q, want tok-123", cfg.Fetcher.API.Token)
	}
	if cfg.Fetcher.API.RequestsPerSecond != 2.5 {
		t.Errorf("requests_per_second = %v, want 2.5", cfg.Fetcher.API.RequestsPerSecond)
	}

	// Platform and resolver
	if cfg.Platform.Domain != "x.com" {
		t.Errorf("domain = %q, want x.com", cfg.Platform.Domain)
	}
	if cfg.Resolver.Timeout.Duration != 5*time.Second {
		t.Errorf("resolver timeout = %v, want 5s", cfg.Resolver.Timeout.Duration)
	}
	if !cfg.Resolver.VerifyTLS {
		t.Error("verify_tls = false, want true")
	}
	if cfg.Resolver.Workers != 8 {
		t.Errorf("workers = %d, want 8", cfg.Resolver.Workers)
	}
	if cfg.Resolver.CacheTTL.Duration != 48*time.Hour {
		t.Errorf("cache_ttl = %v, want 48h", cfg.Resolver.CacheTTL.Duration)
	}

	// Mail
	if cfg.Mail.Password != "hunter2" {
		t.Errorf("mail password = %q, want hunter2", cfg.Mail.Password)
	}
	if cfg.Mail.Port != 587 {
		t.Errorf("mail port = %d, want 587", cfg.Mail.Port)
	}

	// Digest, storage, log
	if cfg.Digest.Since.Duration != 12*time.Hour {
		t.Errorf("since = %v, want 12h", cfg.Digest.Since.Duration)
	}
	if cfg.Location().String() != "America/New_York" {
		t.Errorf("location = %v", cfg.Location())
	}
	if cfg.Storage.RetainDays != 60 {
		t.Errorf("retain_days = %d, want 60", cfg.Storage.RetainDays)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log format = %q, want json", cfg.Log.Format)
	}

	// Topics are sorted by name.
	if len(cfg.Topics) != 2 || cfg.Topics[0].Name != "golang" || cfg.Topics[1].Name != "security" {
		t.Fatalf("topics = %+v, want golang then security", cfg.Topics)
	}
	sec := cfg.Topics[1]
	if strings.Join(sec.MailTo, ",") != "sec@example.com,ops@example.com" {
		t.Errorf("mailto = %v", sec.MailTo)
	}
	if sec.Filter.StripPhrase != "(via @feed)" {
		t.Errorf("strip_phrase = %q", sec.Filter.StripPhrase)
	}
	if len(sec.Filter.BannedPhrases) != 2 || !sec.Filter.StripQueryString {
		t.Errorf("filter = %+v", sec.Filter)
	}
	if strings.Join(cfg.Topics[0].Users, ",") != "golang" {
		t.Errorf("users = %v, want [golang]", cfg.Topics[0].Users)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, minimalYAML)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Fetcher.Kind != DefaultFetcher {
		t.Errorf("fetcher.kind = %q, want %q", cfg.Fetcher.Kind, DefaultFetcher)
	}
	if cfg.Fetcher.MaxItems != DefaultMaxItems {
		t.Errorf("max_items = %d, want %d", cfg.Fetcher.MaxItems, DefaultMaxItems)
	}
	if cfg.Fetcher.API.TokenEnv != DefaultTokenEnv {
		t.Errorf("token_env = %q, want %q", cfg.Fetcher.API.TokenEnv, DefaultTokenEnv)
	}
	if cfg.Platform.Domain != DefaultDomain {
		t.Errorf("domain = %q, want %q", cfg.Platform.Domain, DefaultDomain)
	}
	if cfg.Platform.ProfileURL != DefaultProfileURL {
		t.Errorf("profile_url = %q, want %q", cfg.Platform.ProfileURL, DefaultProfileURL)
	}
	if cfg.Resolver.Timeout.Duration != DefaultResolveTimeout {
		t.Errorf("resolver timeout = %v, want %v", cfg.Resolver.Timeout.Duration, DefaultResolveTimeout)
	}
	if cfg.Resolver.VerifyTLS {
		t.Error("verify_tls = true, want false by default")
	}
	if cfg.Mail.Host != DefaultSMTPHost || cfg.Mail.Port != DefaultSMTPPort {
		t.Errorf("mail = %s:%d, want %s:%d", cfg.Mail.Host, cfg.Mail.Port, DefaultSMTPHost, DefaultSMTPPort)
	}
	if cfg.Digest.Since.Duration != DefaultSince {
		t.Errorf("since = %v, want %v", cfg.Digest.Since.Duration, DefaultSince)
	}
	if cfg.Digest.Timezone != DefaultTimezone {
		t.Errorf("timezone = %q, want %q", cfg.Digest.Timezone, DefaultTimezone)
	}
	if cfg.Storage.Path != DefaultStoragePath {
		t.Errorf("storage.path = %q, want %q", cfg.Storage.Path, DefaultStoragePath)
	}
	if cfg.Storage.RetainDays != DefaultRetainDays {
		t.Errorf("retain_days = %d, want %d", cfg.Storage.RetainDays, DefaultRetainDays)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("log = %s/%s, want %s/%s", cfg.Log.Level, cfg.Log.Format, DefaultLogLevel, DefaultLogFormat)
	}
}

func TestLoad_CommaSeparatedLists(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
topics:
  - name: golang
    users: "golang, rob_pike ,,"
    mailto: "a@example.com,b@example.com"
    subject: Go
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	topic, ok := cfg.Topic("golang")
	if !ok {
		t.Fatal("topic golang not found")
	}
	if got := strings.Join(topic.Users, "|"); got != "golang|rob_pike" {
		t.Errorf("users = %q, want golang|rob_pike", got)
	}
	if got := strings.Join(topic.MailTo, "|"); got != "a@example.com|b@example.com" {
		t.Errorf("mailto = %q", got)
	}
	if _, ok := cfg.Topic("missing"); ok {
		t.Error("Topic(missing) should not be found")
	}
}

func TestLoad_ListRejectsMapping(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
topics:
  - name: golang
    users:
      a: b
`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for mapping in users")
	}
}

func TestLoad_NoTopics(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
mail:
  from: me@example.com
`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for no topics")
	}
	if want := "at least one topic must be configured"; !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want containing %q", err, want)
	}
}

func TestLoad_DuplicateTopic(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
topics:
  - name: golang
  - name: " golang "
`)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for duplicate topic")
	}
	if !strings.Contains(err.Error(), "duplicate topic") {
		t.Errorf("error = %q", err)
	}
}

func TestLoad_UnnamedTopic(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
topics:
  - users: [golang]
`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for topic without name")
	}
}

func TestLoad_RSSFetcher(t *testing.T) {
	t.Run("valid template", func(t *testing.T) {
		dir := t.TempDir()
		writeTestYAML(t, dir, DefaultConfigFile, `
fetcher:
  kind: rss
  rss:
    url_template: https://nitter.example/{user}/rss
`+minimalYAML)
		cfg, err := Load(dir)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if cfg.Fetcher.Kind != FetcherRSS {
			t.Errorf("kind = %q, want rss", cfg.Fetcher.Kind)
		}
	})

	t.Run("missing placeholder", func(t *testing.T) {
		dir := t.TempDir()
		writeTestYAML(t, dir, DefaultConfigFile, `
fetcher:
  kind: rss
  rss:
    url_template: https://nitter.example/rss
`+minimalYAML)
		_, err := Load(dir)
		if err == nil {
			t.Fatal("expected error for template without {user}")
		}
		if !strings.Contains(err.Error(), "{user}") {
			t.Errorf("error = %q", err)
		}
	})
}

func TestLoad_UnknownFetcher(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
fetcher:
  kind: scraper
`+minimalYAML)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for unknown fetcher")
	}
	if !strings.Contains(err.Error(), "scraper") {
		t.Errorf("error = %q, want fetcher name", err)
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
digest:
  timezone: "Mars/Olympus"
`+minimalYAML)

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for invalid timezone")
	}
	if !strings.Contains(err.Error(), "timezone") {
		t.Errorf("error = %q, want timezone mention", err)
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
log:
  format: xml
`+minimalYAML)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid log format")
	}
}

func TestLoad_DurationParsing(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
digest:
  since: 72h
`+minimalYAML)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Digest.Since.Duration != 72*time.Hour {
		t.Errorf("since = %v, want 72h", cfg.Digest.Since.Duration)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
digest:
  since: yesterday
`+minimalYAML)

	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if !strings.Contains(err.Error(), "read config") {
		t.Errorf("error = %q", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, "topics: [[[")

	_, err := Load(dir)
	if err == nil {
		t.Fatal("expected error for invalid yaml")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Errorf("error = %q", err)
	}
}

func TestLoad_EmptyDir(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	const key = "TWEETPAN_TEST_DOTENV_TOKEN"
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultEnvFile, key+"=from-dotenv\n")
	writeTestYAML(t, dir, DefaultConfigFile, `
fetcher:
  api:
    token_env: `+key+`
`+minimalYAML)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fetcher.API.Token != "from-dotenv" {
		t.Errorf("token = %q, want from-dotenv", cfg.Fetcher.API.Token)
	}
}

func TestLoad_ProcessEnvWinsOverDotEnv(t *testing.T) {
	const key = "TWEETPAN_TEST_ENV_PRIORITY"
	t.Setenv(key, "from-process")

	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultEnvFile, key+"=from-dotenv\n")
	writeTestYAML(t, dir, DefaultConfigFile, `
fetcher:
  api:
    token_env: `+key+`
`+minimalYAML)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fetcher.API.Token != "from-process" {
		t.Errorf("token = %q, want from-process", cfg.Fetcher.API.Token)
	}
}

func TestLoad_EnvVarMissing(t *testing.T) {
	dir := t.TempDir()
	writeTestYAML(t, dir, DefaultConfigFile, `
fetcher:
  api:
    token_env: TWEETPAN_TEST_UNSET_VAR
`+minimalYAML)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load should succeed with missing env var: %v", err)
	}
	if cfg.Fetcher.API.Token != "" {
		t.Errorf("token = %q, want empty", cfg.Fetcher.API.Token)
	}
}

// --- Check tests ---

func TestCheck_Complete(t *testing.T) {
	cfg := &Config{
		Fetcher: FetcherConfig{Kind: FetcherAPI, API: APIConfig{TokenEnv: DefaultTokenEnv, Token: "tok"}},
		Mail:    MailConfig{From: "digest@example.com"},
		Topics: []TopicConfig{
			{Name: "golang", Users: List{"golang"}, MailTo: List{"me@example.com"}, Subject: "Go"},
		},
	}
	if gaps := Check(cfg); len(gaps) != 0 {
		t.Errorf("gaps = %v, want none", gaps)
	}
}

func TestCheck_ReportsGaps(t *testing.T) {
	cfg := &Config{
		Fetcher: FetcherConfig{Kind: FetcherAPI, API: APIConfig{TokenEnv: "MY_TOKEN"}},
		Mail:    MailConfig{User: "digest"},
		Topics: []TopicConfig{
			{Name: "empty"},
			{Name: "golang", Users: List{"golang"}, MailTo: List{"me@example.com"}, Subject: "Go"},
		},
	}

	gaps := Check(cfg)
	want := []string{
		"mail.from is missing",
		"fetcher.api: bearer token env MY_TOKEN is empty",
		"mail: user is set but password is empty",
		"empty doesn't have users",
		"empty doesn't have mailto",
		"empty doesn't have subject",
	}
	if len(gaps) != len(want) {
		t.Fatalf("gaps = %v, want %v", gaps, want)
	}
	for i := range want {
		if gaps[i] != want[i] {
			t.Errorf("gaps[%d] = %q, want %q", i, gaps[i], want[i])
		}
	}
}

func TestCheck_RSSNeedsNoToken(t *testing.T) {
	cfg := &Config{
		Fetcher: FetcherConfig{Kind: FetcherRSS},
		Mail:    MailConfig{From: "digest@example.com"},
		Topics: []TopicConfig{
			{Name: "golang", Users: List{"golang"}, MailTo: List{"me@example.com"}, Subject: "Go"},
		},
	}
	if gaps := Check(cfg); len(gaps) != 0 {
		t.Errorf("gaps = %v, want none", gaps)
	}
}
