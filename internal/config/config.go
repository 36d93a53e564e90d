package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/tweetpan/internal/filter"
)

const (
	DefaultConfigFile     = "config.yaml"
	DefaultEnvFile        = ".env"
	DefaultStoragePath    = ".tweetpan/tweetpan.db"
	DefaultRetainDays     = 30
	DefaultMaxItems       = 100
	DefaultSince          = 24 * time.Hour
	DefaultTimezone       = "UTC"
	DefaultFetcher        = FetcherAPI
	DefaultDomain         = "twitter.com"
	DefaultProfileURL     = "https://www.twitter.com/{user}"
	DefaultResolveTimeout = 10 * time.Second
	DefaultResolveWorkers = 4
	DefaultCacheTTL       = 7 * 24 * time.Hour
	DefaultSMTPHost       = "localhost"
	DefaultSMTPPort       = 25
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultTokenEnv       = "TWEETPAN_BEARER_TOKEN"

	FetcherAPI = "api"
	FetcherRSS = "rss"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// List accepts either a YAML sequence or a comma-separated string.
type List []string

func (l *List) UnmarshalYAML(value *yaml.Node) error {
	var items []string
	switch value.Kind {
	case yaml.SequenceNode:
		if err := value.Decode(&items); err != nil {
			return err
		}
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		items = strings.Split(s, ",")
	default:
		return fmt.Errorf("line %d: expected a list or a comma-separated string", value.Line)
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*l = out
	return nil
}

type Config struct {
	Fetcher  FetcherConfig  `yaml:"fetcher"`
	Platform PlatformConfig `yaml:"platform"`
	Resolver ResolverConfig `yaml:"resolver"`
	Mail     MailConfig     `yaml:"mail"`
	Digest   DigestConfig   `yaml:"digest"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Topics   []TopicConfig  `yaml:"topics"`
}

type FetcherConfig struct {
	Kind           string    `yaml:"kind"`
	MaxItems       int       `yaml:"max_items"`
	IncludeReplies bool      `yaml:"include_replies"`
	IncludeReposts bool      `yaml:"include_reposts"`
	API            APIConfig `yaml:"api"`
	RSS            RSSConfig `yaml:"rss"`
}

type APIConfig struct {
	BaseURL           string  `yaml:"base_url"`
	TokenEnv          string  `yaml:"token_env"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Resolved from env var at load time.
	Token string `yaml:"-"`
}

type RSSConfig struct {
	URLTemplate string `yaml:"url_template"`
}

type PlatformConfig struct {
	Domain     string `yaml:"domain"`
	ProfileURL string `yaml:"profile_url"`
}

type ResolverConfig struct {
	Timeout   Duration `yaml:"timeout"`
	VerifyTLS bool     `yaml:"verify_tls"`
	Workers   int      `yaml:"workers"`
	CacheTTL  Duration `yaml:"cache_ttl"`
	NoCache   bool     `yaml:"no_cache"`
}

type MailConfig struct {
	From        string `yaml:"from"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`

	// Resolved from env var at load time.
	Password string `yaml:"-"`
}

type DigestConfig struct {
	Timezone string   `yaml:"timezone"`
	Since    Duration `yaml:"since"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

type TopicConfig struct {
	Name    string        `yaml:"name"`
	Users   List          `yaml:"users"`
	MailTo  List          `yaml:"mailto"`
	Subject string        `yaml:"subject"`
	Filter  filter.Config `yaml:"filter"`
}

// Load reads .env and config.yaml from dir, applies defaults, resolves env
// vars, and validates. Variables already set in the process win over .env.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	envPath := filepath.Join(dir, DefaultEnvFile)
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("read %s: %w", DefaultEnvFile, err)
		}
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	slices.SortStableFunc(cfg.Topics, func(a, b TopicConfig) int {
		return strings.Compare(a.Name, b.Name)
	})
	return &cfg, nil
}

// Location returns the digest time zone. Load has already validated it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Digest.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Topic returns the topic with the given name.
func (c *Config) Topic(name string) (TopicConfig, bool) {
	for _, t := range c.Topics {
		if t.Name == name {
			return t, true
		}
	}
	return TopicConfig{}, false
}

func applyDefaults(cfg *Config) {
	if cfg.Fetcher.Kind == "" {
		cfg.Fetcher.Kind = DefaultFetcher
	}
	if cfg.Fetcher.MaxItems == 0 {
		cfg.Fetcher.MaxItems = DefaultMaxItems
	}
	if cfg.Fetcher.API.TokenEnv == "" {
		cfg.Fetcher.API.TokenEnv = DefaultTokenEnv
	}
	if cfg.Platform.Domain == "" {
		cfg.Platform.Domain = DefaultDomain
	}
	if cfg.Platform.ProfileURL == "" {
		cfg.Platform.ProfileURL = DefaultProfileURL
	}
	if cfg.Resolver.Timeout.Duration == 0 {
		cfg.Resolver.Timeout.Duration = DefaultResolveTimeout
	}
	if cfg.Resolver.Workers == 0 {
		cfg.Resolver.Workers = DefaultResolveWorkers
	}
	if cfg.Resolver.CacheTTL.Duration == 0 {
		cfg.Resolver.CacheTTL.Duration = DefaultCacheTTL
	}
	if cfg.Mail.Host == "" {
		cfg.Mail.Host = DefaultSMTPHost
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = DefaultSMTPPort
	}
	if cfg.Digest.Since.Duration == 0 {
		cfg.Digest.Since.Duration = DefaultSince
	}
	if cfg.Digest.Timezone == "" {
		cfg.Digest.Timezone = DefaultTimezone
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Fetcher.API.TokenEnv != "" {
		cfg.Fetcher.API.Token = os.Getenv(cfg.Fetcher.API.TokenEnv)
	}
	if cfg.Mail.PasswordEnv != "" {
		cfg.Mail.Password = os.Getenv(cfg.Mail.PasswordEnv)
	}
}

func validate(cfg *Config) error {
	switch cfg.Fetcher.Kind {
	case FetcherAPI:
	case FetcherRSS:
		if !strings.Contains(cfg.Fetcher.RSS.URLTemplate, "{user}") {
			return errors.New("fetcher.rss.url_template: must contain {user}")
		}
	default:
		return fmt.Errorf("fetcher.kind: unknown fetcher %q (want api or rss)", cfg.Fetcher.Kind)
	}

	if cfg.Fetcher.MaxItems < 0 {
		return fmt.Errorf("fetcher.max_items: must be positive, got %d", cfg.Fetcher.MaxItems)
	}
	if cfg.Resolver.Workers < 0 {
		return fmt.Errorf("resolver.workers: must be positive, got %d", cfg.Resolver.Workers)
	}
	if cfg.Digest.Since.Duration < 0 {
		return errors.New("digest.since: must be positive")
	}

	if _, err := time.LoadLocation(cfg.Digest.Timezone); err != nil {
		return fmt.Errorf("digest.timezone: %w", err)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}

	if len(cfg.Topics) == 0 {
		return errors.New("topics: at least one topic must be configured")
	}
	seen := make(map[string]bool, len(cfg.Topics))
	for i, t := range cfg.Topics {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("topics[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("topics[%d]: duplicate topic %q", i, name)
		}
		seen[name] = true
		cfg.Topics[i].Name = name
	}

	return nil
}
