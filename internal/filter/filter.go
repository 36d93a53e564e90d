package filter

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/unicode/norm"
)

// Config holds the per-topic text filtering options.
type Config struct {
	StripPhrase      string   `yaml:"strip_phrase" json:"strip_phrase,omitempty"`
	BannedPhrases    []string `yaml:"banned_phrases" json:"banned_phrases,omitempty"`
	StripQueryString bool     `yaml:"strip_query_string" json:"strip_query_string"`
}

// Filter is a compiled Config. It is read-only after Compile and safe for
// concurrent use.
type Filter struct {
	stripPhrase      string
	stripQueryString bool
	banned           []string
	matcher          *ahocorasick.Matcher
}

// Compile prepares cfg for matching. Banned phrases go through Sanitize so
// they compare equal to sanitized post text; empty phrases are ignored.
func Compile(cfg Config) *Filter {
	f := &Filter{
		stripPhrase:      Sanitize(cfg.StripPhrase),
		stripQueryString: cfg.StripQueryString,
	}
	seen := make(map[string]bool, len(cfg.BannedPhrases))
	for _, p := range cfg.BannedPhrases {
		p = Sanitize(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		f.banned = append(f.banned, p)
	}
	if len(f.banned) > 0 {
		patterns := make([][]byte, len(f.banned))
		for i, p := range f.banned {
			patterns[i] = []byte(p)
		}
		f.matcher = ahocorasick.NewMatcher(patterns)
	}
	return f
}

// Sanitize applies NFKC normalization and turns every newline into a space.
func Sanitize(text string) string {
	return strings.ReplaceAll(norm.NFKC.String(text), "\n", " ")
}

// Strip removes every occurrence of the configured strip phrase.
func (f *Filter) Strip(text string) string {
	if f.stripPhrase == "" {
		return text
	}
	return strings.ReplaceAll(text, f.stripPhrase, "")
}

// Banned reports whether text contains any banned phrase.
func (f *Filter) Banned(text string) bool {
	if f.matcher == nil || text == "" {
		return false
	}
	return f.matcher.Contains([]byte(text))
}

// BannedPhrase returns the first banned phrase found in text, for logging.
func (f *Filter) BannedPhrase(text string) (string, bool) {
	if f.matcher == nil || text == "" {
		return "", false
	}
	hits := f.matcher.Match([]byte(text))
	if len(hits) == 0 {
		return "", false
	}
	return f.banned[hits[0]], true
}

// StripQuery cuts link at its first '?' when query stripping is enabled.
func (f *Filter) StripQuery(link string) string {
	if !f.stripQueryString {
		return link
	}
	if i := strings.IndexByte(link, '?'); i >= 0 {
		return link[:i]
	}
	return link
}
