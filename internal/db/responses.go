package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetResponseByURL retrieves a cached response by URL
func (db *DB) GetResponseByURL(ctx context.Context, rawURL string) (*CachedResponse, error) {
	var r CachedResponse
	err := db.pool.QueryRow(ctx,
		`SELECT id, url, body, content_hash, http_status, fetch_status, error_message,
		        is_permanent_failure, retry_count, retry_after,
		        fetched_at, expires_at, last_accessed_at, created_at, updated_at
		 FROM catalog_responses WHERE url = $1`,
		rawURL,
	).Scan(&r.ID, &r.URL, &r.Body, &r.ContentHash, &r.HTTPStatus, &r.FetchStatus, &r.ErrorMessage,
		&r.IsPermanentFailure, &r.RetryCount, &r.RetryAfter,
		&r.FetchedAt, &r.ExpiresAt, &r.LastAccessedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached response: %w", err)
	}
	return &r, nil
}

// GetFreshResponse retrieves a response only if it is successful and younger than maxAge
func (db *DB) GetFreshResponse(ctx context.Context, rawURL string, maxAge time.Duration) (*CachedResponse, error) {
	r, err := db.GetResponseByURL(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if r == nil || r.FetchStatus != FetchStatusSuccess || !r.IsFresh(maxAge) || r.IsExpired() {
		return nil, nil
	}

	_ = db.TouchResponse(ctx, r.ID)

	return r, nil
}

// ShouldSkipURL checks if a URL should be skipped due to a recorded permanent failure
func (db *DB) ShouldSkipURL(ctx context.Context, rawURL string) (bool, string, error) {
	r, err := db.GetResponseByURL(ctx, rawURL)
	if err != nil {
		return false, "", err
	}
	if r == nil {
		return false, "", nil
	}
	skip, reason := r.SkipReason()
	return skip, reason, nil
}

// UpsertResponse stores a successful response, clearing any failure state
func (db *DB) UpsertResponse(ctx context.Context, r *CachedResponse) error {
	hash := HashContent(r.Body)

	expiresAt := r.ExpiresAt
	if expiresAt == nil {
		t := time.Now().Add(DefaultResponseCacheTTL)
		expiresAt = &t
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}

	err := db.pool.QueryRow(ctx,
		`INSERT INTO catalog_responses (id, url, body, content_hash, http_status, fetch_status,
		                                is_permanent_failure, retry_count, fetched_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, 0, NOW(), $7)
		 ON CONFLICT (url) DO UPDATE SET
		     body = $3,
		     content_hash = $4,
		     http_status = $5,
		     fetch_status = $6,
		     error_message = NULL,
		     is_permanent_failure = FALSE,
		     retry_count = 0,
		     retry_after = NULL,
		     fetched_at = NOW(),
		     expires_at = $7,
		     updated_at = NOW()
		 RETURNING id, fetched_at, created_at, updated_at`,
		r.ID, r.URL, r.Body, hash, r.HTTPStatus, FetchStatusSuccess, expiresAt,
	).Scan(&r.ID, &r.FetchedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cached response: %w", err)
	}
	r.ContentHash = &hash
	r.ExpiresAt = expiresAt
	r.FetchStatus = FetchStatusSuccess
	return nil
}

// RecordFailedFetch records a failed fetch attempt. Only permanent statuses mark the URL
// as skipped; retry_after is bookkeeping for transient ones.
func (db *DB) RecordFailedFetch(ctx context.Context, rawURL string, httpStatus int, errorMsg string) error {
	fetchStatus := FetchStatusFromHTTP(httpStatus)
	if httpStatus == 0 {
		fetchStatus = FetchStatusError
	}
	isPermanent := IsPermanentHTTPStatus(httpStatus)

	// retry_after = 1 min * 5^retry_count, capped at 2 hours; NULL for permanent failures
	_, err := db.pool.Exec(ctx,
		`INSERT INTO catalog_responses (id, url, http_status, fetch_status, error_message,
		                                is_permanent_failure, retry_count, retry_after, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 1,
		         CASE WHEN $6 THEN NULL ELSE NOW() + INTERVAL '1 minute' END,
		         NOW())
		 ON CONFLICT (url) DO UPDATE SET
		     http_status = $3,
		     fetch_status = $4,
		     error_message = $5,
		     is_permanent_failure = $6 OR catalog_responses.is_permanent_failure,
		     retry_count = catalog_responses.retry_count + 1,
		     retry_after = CASE
		         WHEN $6 OR catalog_responses.is_permanent_failure THEN NULL
		         ELSE NOW() + LEAST(
		             INTERVAL '1 minute' * POWER(5, LEAST(catalog_responses.retry_count, 3)),
		             INTERVAL '2 hours'
		         )
		     END,
		     fetched_at = NOW(),
		     updated_at = NOW()`,
		uuid.New(), rawURL, httpStatus, fetchStatus, errorMsg, isPermanent,
	)
	if err != nil {
		return fmt.Errorf("failed to record failed fetch: %w", err)
	}
	return nil
}

// TouchResponse updates the last_accessed_at timestamp
func (db *DB) TouchResponse(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE catalog_responses SET last_accessed_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to touch cached response: %w", err)
	}
	return nil
}

// InvalidateResponse expires a cached response so the next request fetches it again
func (db *DB) InvalidateResponse(ctx context.Context, rawURL string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE catalog_responses SET expires_at = NOW() - INTERVAL '1 hour', updated_at = NOW() WHERE url = $1`,
		rawURL,
	)
	if err != nil {
		return fmt.Errorf("failed to invalidate cached response: %w", err)
	}
	return nil
}

// DeleteExpiredResponses removes responses past their expires_at, and failure
// records whose backoff has lapsed
func (db *DB) DeleteExpiredResponses(ctx context.Context) (int64, error) {
	result, err := db.pool.Exec(ctx,
		`DELETE FROM catalog_responses
		 WHERE expires_at < NOW()
		    OR (fetch_status <> 'success' AND NOT is_permanent_failure AND retry_after < NOW())`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired responses: %w", err)
	}
	return result.RowsAffected(), nil
}
