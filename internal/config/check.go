package config

import "fmt"

// Check lists configuration gaps that do not prevent loading but make a
// topic undeliverable. An empty result means the configuration is complete.
func Check(cfg *Config) []string {
	var gaps []string

	if cfg.Mail.From == "" {
		gaps = append(gaps, "mail.from is missing")
	}
	if cfg.Fetcher.Kind == FetcherAPI && cfg.Fetcher.API.Token == "" {
		gaps = append(gaps, fmt.Sprintf("fetcher.api: bearer token env %s is empty", cfg.Fetcher.API.TokenEnv))
	}
	if cfg.Mail.User != "" && cfg.Mail.Password == "" {
		gaps = append(gaps, "mail: user is set but password is empty")
	}

	for _, t := range cfg.Topics {
		if len(t.Users) == 0 {
			gaps = append(gaps, fmt.Sprintf("%s doesn't have users", t.Name))
		}
		if len(t.MailTo) == 0 {
			gaps = append(gaps, fmt.Sprintf("%s doesn't have mailto", t.Name))
		}
		if t.Subject == "" {
			gaps = append(gaps, fmt.Sprintf("%s doesn't have subject", t.Name))
		}
	}
	return gaps
}
