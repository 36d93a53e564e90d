// Package dedup detects repeated post texts within one source for one run.
package dedup

import "strings"

// Canonical returns the key used for uniqueness checks: text with surrounding
// whitespace trimmed and at most one trailing '.' removed.
func Canonical(text string) string {
	return strings.TrimSuffix(strings.TrimSpace(text), ".")
}

// Set is the uniqueness set of one source. It is not safe for concurrent use
// and must not be shared across sources.
type Set struct {
	seen       map[string]struct{}
	uniques    int
	duplicates int
}

// NewSet returns an empty Set.
func NewSet() *Set {
	return &Set{seen: make(map[string]struct{})}
}

// Add records text and reports whether it is new. Texts with an empty
// canonical key return false and are counted as neither unique nor duplicate.
func (s *Set) Add(text string) bool {
	key := Canonical(text)
	if key == "" {
		return false
	}
	if _, ok := s.seen[key]; ok {
		s.duplicates++
		return false
	}
	s.seen[key] = struct{}{}
	s.uniques++
	return true
}

// Uniques returns how many distinct keys were accepted.
func (s *Set) Uniques() int { return s.uniques }

// Duplicates returns how many texts repeated an accepted key.
func (s *Set) Duplicates() int { return s.duplicates }
