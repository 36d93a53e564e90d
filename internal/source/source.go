package source

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when the requested account does not exist.
var ErrNotFound = errors.New("account not found")

// Post represents a single item published by a followed account.
type Post struct {
	CreatedAt time.Time // publication timestamp
	Text      string    // raw post text
	SourceID  string    // account handle
	ItemID    string    // platform-specific post ID, used by the media permalink check
}

// FetchOptions controls what a Fetcher returns for one account.
type FetchOptions struct {
	MaxItems       int
	ExcludeReplies bool
	ExcludeReposts bool
}

// Fetcher returns the recent posts of one account, newest first.
type Fetcher interface {
	// Name returns the fetcher identifier (e.g. "api").
	Name() string

	// Fetch returns at most opts.MaxItems posts for sourceID.
	Fetch(ctx context.Context, sourceID string, opts FetchOptions) ([]Post, error)
}

// sortNewestFirst orders posts by CreatedAt descending, keeping feed order for ties.
func sortNewestFirst(posts []Post) {
	slices.SortStableFunc(posts, func(a, b Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
