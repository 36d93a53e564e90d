package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"golang.org/x/time/rate"
)

const (
	apiSourceName     = "api"
	apiDefaultBaseURL = "https://api.twitter.com"
	apiTimeout        = 30 * time.Second
	apiUserAgent      = "tweetpan/1.0"
	apiMaxRetries     = 3
	apiMinResults     = 5
	apiMaxResults     = 100
)

// APISource fetches user timelines from a v2-style timeline API:
// a username lookup followed by the user's posts.
type APISource struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *rate.Limiter

	// retry backoff bounds; tests shrink these
	retryDelay    time.Duration
	retryMaxDelay time.Duration
}

// NewAPI creates a timeline API source. requestsPerSecond <= 0 disables pacing.
func NewAPI(baseURL, token string, requestsPerSecond float64) (*APISource, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("api: bearer token is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = apiDefaultBaseURL
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &APISource{
		baseURL:       strings.TrimRight(baseURL, "/"),
		token:         token,
		client:        &http.Client{Timeout: apiTimeout},
		limiter:       rate.NewLimiter(limit, 1),
		retryDelay:    time.Second,
		retryMaxDelay: 8 * time.Second,
	}, nil
}

func (a *APISource) Name() string {
	return apiSourceName
}

func (a *APISource) Fetch(ctx context.Context, sourceID string, opts FetchOptions) ([]Post, error) {
	handle := strings.TrimPrefix(strings.TrimSpace(sourceID), "@")
	if handle == "" {
		return nil, errors.New("api: source id is required")
	}

	userID, err := a.lookupUser(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("api: lookup %s: %w", handle, err)
	}

	posts, err := a.userPosts(ctx, handle, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("api: timeline %s: %w", handle, err)
	}
	return posts, nil
}

func (a *APISource) lookupUser(ctx context.Context, handle string) (string, error) {
	var resp apiUserResponse
	if err := a.getJSON(ctx, "/2/users/by/username/"+url.PathEscape(handle), nil, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		if len(resp.Errors) > 0 {
			return "", fmt.Errorf("%w: %s", ErrNotFound, resp.Errors[0].Detail)
		}
		return "", ErrNotFound
	}
	return resp.Data.ID, nil
}

func (a *APISource) userPosts(ctx context.Context, handle, userID string, opts FetchOptions) ([]Post, error) {
	query := url.Values{}
	query.Set("max_results", strconv.Itoa(clampResults(opts.MaxItems)))
	query.Set("tweet.fields", "created_at")
	var exclude []string
	if opts.ExcludeReplies {
		exclude = append(exclude, "replies")
	}
	if opts.ExcludeReposts {
		exclude = append(exclude, "retweets")
	}
	if len(exclude) > 0 {
		query.Set("exclude", strings.Join(exclude, ","))
	}

	var resp apiTimelineResponse
	if err := a.getJSON(ctx, "/2/users/"+url.PathEscape(userID)+"/tweets", query, &resp); err != nil {
		return nil, err
	}

	return postsFromTimeline(resp, handle, opts.MaxItems)
}

func postsFromTimeline(resp apiTimelineResponse, handle string, maxItems int) ([]Post, error) {
	posts := make([]Post, 0, len(resp.Data))
	for _, item := range resp.Data {
		createdAt, err := time.Parse(time.RFC3339, item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("post %s: invalid created_at %q: %w", item.ID, item.CreatedAt, err)
		}
		posts = append(posts, Post{
			CreatedAt: createdAt,
			Text:      item.Text,
			SourceID:  handle,
			ItemID:    item.ID,
		})
	}
	sortNewestFirst(posts)
	if maxItems > 0 && len(posts) > maxItems {
		posts = posts[:maxItems]
	}
	return posts, nil
}

func clampResults(n int) int {
	if n < apiMinResults {
		return apiMinResults
	}
	if n > apiMaxResults {
		return apiMaxResults
	}
	return n
}

// statusError is returned for non-200 responses.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("status %d", e.code)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func (a *APISource) executor() failsafe.Executor[*http.Response] {
	policy := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(a.retryDelay, a.retryMaxDelay).
		WithMaxRetries(apiMaxRetries - 1).
		HandleIf(func(_ *http.Response, err error) bool {
			return isRetryableError(err)
		}).
		Build()
	return failsafe.With(policy)
}

func (a *APISource) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := a.executor().WithContext(ctx).Get(func() (*http.Response, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+a.token)
		req.Header.Set("User-Agent", apiUserAgent)

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusNotFound {
				return nil, ErrNotFound
			}
			return nil, &statusError{code: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

type apiUserResponse struct {
	Data struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"data"`
	Errors []apiError `json:"errors"`
}

type apiTimelineResponse struct {
	Data []apiPost `json:"data"`
	Meta struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

type apiPost struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}
