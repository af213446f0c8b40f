package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/bookmeta/internal/db"
)

// ResponseStore is the subset of *db.DB used by CachedFetcher.
type ResponseStore interface {
	ShouldSkipURL(ctx context.Context, rawURL string) (bool, string, error)
	GetFreshResponse(ctx context.Context, rawURL string, maxAge time.Duration) (*db.CachedResponse, error)
	UpsertResponse(ctx context.Context, r *db.CachedResponse) error
	RecordFailedFetch(ctx context.Context, rawURL string, httpStatus int, errorMsg string) error
}

// CachedFetcher wraps a Getter with database-backed response caching.
type CachedFetcher struct {
	next      Getter
	store     ResponseStore
	cacheTTL  time.Duration
	skipCache bool // For testing or forcing fresh fetches
	logger    *slog.Logger
}

// CachedFetcherConfig holds configuration for the cached fetcher.
type CachedFetcherConfig struct {
	CacheTTL  time.Duration
	SkipCache bool
	Logger    *slog.Logger
}

// DefaultCachedFetcherConfig returns sensible defaults.
func DefaultCachedFetcherConfig() *CachedFetcherConfig {
	return &CachedFetcherConfig{
		CacheTTL:  db.DefaultResponseCacheTTL,
		SkipCache: false,
	}
}

// NewCachedFetcher creates a new cached fetcher. A nil store disables caching.
func NewCachedFetcher(next Getter, store ResponseStore, config *CachedFetcherConfig) *CachedFetcher {
	if config == nil {
		config = DefaultCachedFetcherConfig()
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = db.DefaultResponseCacheTTL
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedFetcher{
		next:      next,
		store:     store,
		cacheTTL:  config.CacheTTL,
		skipCache: config.SkipCache,
		logger:    logger,
	}
}

// Get returns a fresh cached body when one exists; otherwise it fetches through the
// wrapped Getter. Only permanent failures (404, 410, 451) are recorded, so a timeout
// or access-denied response never hides a URL from the next call. Store errors are
// logged and the fetch goes to the network.
func (f *CachedFetcher) Get(ctx context.Context, urlStr string, timeout time.Duration) ([]byte, error) {
	if f.skipCache || f.store == nil {
		return f.next.Get(ctx, urlStr, timeout)
	}

	// Step 1: Skip URLs that failed permanently
	shouldSkip, reason, err := f.store.ShouldSkipURL(ctx, urlStr)
	if err != nil {
		f.logger.Warn("response cache unavailable, fetching directly", "url", urlStr, "error", err)
		return f.next.Get(ctx, urlStr, timeout)
	}
	if shouldSkip {
		return nil, &Error{
			URL:       urlStr,
			Transport: "cache",
			Kind:      KindStatus,
			Message:   fmt.Sprintf("URL skipped: %s", reason),
		}
	}

	// Step 2: Try to get a fresh cached response
	cached, err := f.store.GetFreshResponse(ctx, urlStr, f.cacheTTL)
	if err != nil {
		f.logger.Warn("response cache lookup failed, fetching directly", "url", urlStr, "error", err)
		return f.next.Get(ctx, urlStr, timeout)
	}
	if cached != nil {
		f.logger.Debug("cache hit", "url", urlStr)
		return cached.Body, nil
	}

	// Step 3: Fetch fresh content
	body, err := f.next.Get(ctx, urlStr, timeout)
	if err != nil {
		if status, ok := permanentStatus(err); ok {
			if recErr := f.store.RecordFailedFetch(ctx, urlStr, status, err.Error()); recErr != nil {
				f.logger.Warn("failed to record fetch failure", "url", urlStr, "error", recErr)
			}
		}
		return nil, err
	}

	// Step 4: Store in cache; a storage failure does not fail the fetch
	status := 200
	resp := &db.CachedResponse{URL: urlStr, Body: body, HTTPStatus: &status}
	if err := f.store.UpsertResponse(ctx, resp); err != nil {
		f.logger.Warn("failed to cache response", "url", urlStr, "error", err)
	}
	return body, nil
}

// permanentStatus returns the HTTP status of err when it is a permanent failure.
func permanentStatus(err error) (int, bool) {
	var fetchErr *Error
	if !errors.As(err, &fetchErr) || fetchErr.Kind != KindStatus {
		return 0, false
	}
	return fetchErr.StatusCode, db.IsPermanentHTTPStatus(fetchErr.StatusCode)
}
