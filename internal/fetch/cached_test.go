package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/bookmeta/internal/db"
)

type fakeGetter struct {
	body  []byte
	err   error
	calls int
}

func (g *fakeGetter) Get(_ context.Context, _ string, _ time.Duration) ([]byte, error) {
	g.calls++
	return g.body, g.err
}

type fakeStore struct {
	skip       bool
	skipReason string
	fresh      *db.CachedResponse
	upserted   []*db.CachedResponse
	failures   []int
	upsertErr  error
	lookupErr  error
	freshErr   error
}

func (s *fakeStore) ShouldSkipURL(_ context.Context, _ string) (bool, string, error) {
	return s.skip, s.skipReason, s.lookupErr
}

func (s *fakeStore) GetFreshResponse(_ context.Context, _ string, _ time.Duration) (*db.CachedResponse, error) {
	return s.fresh, s.freshErr
}

func (s *fakeStore) UpsertResponse(_ context.Context, r *db.CachedResponse) error {
	s.upserted = append(s.upserted, r)
	return s.upsertErr
}

func (s *fakeStore) RecordFailedFetch(_ context.Context, _ string, status int, _ string) error {
	s.failures = append(s.failures, status)
	return nil
}

func TestDefaultCachedFetcherConfig(t *testing.T) {
	config := DefaultCachedFetcherConfig()
	require.NotNil(t, config)
	assert.Equal(t, db.DefaultResponseCacheTTL, config.CacheTTL)
	assert.False(t, config.SkipCache)
}

func TestNewCachedFetcher_NilConfig(t *testing.T) {
	fetcher := NewCachedFetcher(&fakeGetter{}, nil, nil)
	require.NotNil(t, fetcher)
	assert.Equal(t, db.DefaultResponseCacheTTL, fetcher.cacheTTL)
}

func TestCachedFetcher_NoStorePassesThrough(t *testing.T) {
	next := &fakeGetter{body: []byte("live")}
	fetcher := NewCachedFetcher(next, nil, nil)

	body, err := fetcher.Get(context.Background(), "https://example.com", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "live", string(body))
	assert.Equal(t, 1, next.calls)
}

func TestCachedFetcher_FreshHit(t *testing.T) {
	next := &fakeGetter{body: []byte("live")}
	store := &fakeStore{fresh: &db.CachedResponse{Body: []byte("cached")}}
	fetcher := NewCachedFetcher(next, store, nil)

	body, err := fetcher.Get(context.Background(), "https://example.com", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "cached", string(body))
	assert.Zero(t, next.calls)
}

func TestCachedFetcher_MissStoresResponse(t *testing.T) {
	next := &fakeGetter{body: []byte("live")}
	store := &fakeStore{}
	fetcher := NewCachedFetcher(next, store, nil)

	body, err := fetcher.Get(context.Background(), "https://example.com/a", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "live", string(body))
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "https://example.com/a", store.upserted[0].URL)
	assert.Equal(t, []byte("live"), store.upserted[0].Body)
}

func TestCachedFetcher_UpsertFailureDoesNotFailFetch(t *testing.T) {
	next := &fakeGetter{body: []byte("live")}
	store := &fakeStore{upsertErr: errors.New("disk full")}
	fetcher := NewCachedFetcher(next, store, nil)

	body, err := fetcher.Get(context.Background(), "https://example.com", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "live", string(body))
}

func TestCachedFetcher_PermanentFailureIsRecorded(t *testing.T) {
	next := &fakeGetter{err: &Error{Kind: KindStatus, StatusCode: 404}}
	store := &fakeStore{}
	fetcher := NewCachedFetcher(next, store, nil)

	_, err := fetcher.Get(context.Background(), "https://example.com", time.Second)
	require.Error(t, err)
	assert.Equal(t, []int{404}, store.failures)
	assert.Empty(t, store.upserted)
}

func TestCachedFetcher_TransientFailureIsNotRecorded(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"timeout", &Error{Kind: KindTimeout}},
		{"access denied", &Error{Kind: KindAccessDenied, StatusCode: 403}},
		{"network", &Error{Kind: KindNetwork}},
		{"server error", &Error{Kind: KindStatus, StatusCode: 503}},
		{"too many requests", &Error{Kind: KindStatus, StatusCode: 429}},
		{"untyped", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			fetcher := NewCachedFetcher(&fakeGetter{err: tt.err}, store, nil)

			_, err := fetcher.Get(context.Background(), "https://example.com", time.Second)
			require.Error(t, err)
			assert.Empty(t, store.failures)
		})
	}
}

// memStore keeps rows in memory and applies the same skip rule as the database.
type memStore struct {
	rows map[string]*db.CachedResponse
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]*db.CachedResponse)}
}

func (s *memStore) ShouldSkipURL(_ context.Context, rawURL string) (bool, string, error) {
	r, ok := s.rows[rawURL]
	if !ok {
		return false, "", nil
	}
	skip, reason := r.SkipReason()
	return skip, reason, nil
}

func (s *memStore) GetFreshResponse(_ context.Context, rawURL string, maxAge time.Duration) (*db.CachedResponse, error) {
	r, ok := s.rows[rawURL]
	if !ok || r.FetchStatus != db.FetchStatusSuccess || !r.IsFresh(maxAge) {
		return nil, nil
	}
	return r, nil
}

func (s *memStore) UpsertResponse(_ context.Context, r *db.CachedResponse) error {
	r.FetchStatus = db.FetchStatusSuccess
	r.FetchedAt = time.Now()
	s.rows[r.URL] = r
	return nil
}

func (s *memStore) RecordFailedFetch(_ context.Context, rawURL string, status int, msg string) error {
	retryAfter := time.Now().Add(time.Hour)
	s.rows[rawURL] = &db.CachedResponse{
		URL:                rawURL,
		FetchStatus:        db.FetchStatusFromHTTP(status),
		ErrorMessage:       &msg,
		IsPermanentFailure: db.IsPermanentHTTPStatus(status),
		RetryAfter:         &retryAfter,
	}
	return nil
}

// sequenceGetter returns errs[i] on call i, then body once errs runs out.
type sequenceGetter struct {
	body  []byte
	errs  []error
	calls int
}

func (g *sequenceGetter) Get(_ context.Context, _ string, _ time.Duration) ([]byte, error) {
	g.calls++
	if g.calls <= len(g.errs) {
		return nil, g.errs[g.calls-1]
	}
	return g.body, nil
}

func TestCachedFetcher_TransientFailureDoesNotBlockNextCall(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"timeout", &Error{Kind: KindTimeout, Message: "timed out"}},
		{"access denied", &Error{Kind: KindAccessDenied, StatusCode: 403, Message: "HTTP status 403"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "https://api.test/search_ahead?keyword=Dracula%20Bram%20Stoker"
			next := &sequenceGetter{body: []byte(`{"data":[]}`), errs: []error{tt.err}}
			fetcher := NewCachedFetcher(next, newMemStore(), nil)

			_, err := fetcher.Get(context.Background(), url, time.Second)
			require.Error(t, err)

			body, err := fetcher.Get(context.Background(), url, time.Second)
			require.NoError(t, err)
			assert.Equal(t, `{"data":[]}`, string(body))
			assert.Equal(t, 2, next.calls, "second call must reach the network")
		})
	}
}

func TestCachedFetcher_PermanentFailureIsSkippedNextTime(t *testing.T) {
	url := "https://api.test/products/404"
	next := &sequenceGetter{body: []byte("{}"), errs: []error{&Error{Kind: KindStatus, StatusCode: 404, Message: "HTTP status 404"}}}
	fetcher := NewCachedFetcher(next, newMemStore(), nil)

	_, err := fetcher.Get(context.Background(), url, time.Second)
	require.Error(t, err)

	_, err = fetcher.Get(context.Background(), url, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL skipped")
	assert.Equal(t, 1, next.calls)
}

func TestCachedFetcher_SkippedURL(t *testing.T) {
	next := &fakeGetter{body: []byte("live")}
	store := &fakeStore{skip: true, skipReason: "HTTP status 410"}
	fetcher := NewCachedFetcher(next, store, nil)

	_, err := fetcher.Get(context.Background(), "https://example.com", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP status 410")
	assert.Zero(t, next.calls)
}

func TestCachedFetcher_SkipCacheBypassesStore(t *testing.T) {
	next := &fakeGetter{body: []byte("live")}
	store := &fakeStore{fresh: &db.CachedResponse{Body: []byte("cached")}}
	fetcher := NewCachedFetcher(next, store, &CachedFetcherConfig{SkipCache: true})

	body, err := fetcher.Get(context.Background(), "https://example.com", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "live", string(body))
}

func TestCachedFetcher_StoreLookupErrorFallsThrough(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{"skip check", &fakeStore{lookupErr: errors.New("connection refused")}},
		{"fresh lookup", &fakeStore{freshErr: errors.New("connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &fakeGetter{body: []byte("live")}
			fetcher := NewCachedFetcher(next, tt.store, nil)

			body, err := fetcher.Get(context.Background(), "https://example.com", time.Second)
			require.NoError(t, err)
			assert.Equal(t, "live", string(body))
			assert.Equal(t, 1, next.calls)
		})
	}
}
