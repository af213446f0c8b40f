package db

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// CachedResponse is a stored catalog response, or the record of a failed attempt.
type CachedResponse struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	Body        []byte    `json:"-"`
	ContentHash *string   `json:"content_hash,omitempty"`
	HTTPStatus  *int      `json:"http_status,omitempty"`
	// Error tracking
	FetchStatus        string     `json:"fetch_status"` // 'success', 'error', 'not_found', 'timeout', 'blocked'
	ErrorMessage       *string    `json:"error_message,omitempty"`
	IsPermanentFailure bool       `json:"is_permanent_failure"`
	RetryCount         int        `json:"retry_count"`
	RetryAfter         *time.Time `json:"retry_after,omitempty"`
	// Timestamps
	FetchedAt      time.Time  `json:"fetched_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	LastAccessedAt time.Time  `json:"last_accessed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FetchStatus constants for cached responses
const (
	FetchStatusSuccess  = "success"   // Response fetched successfully
	FetchStatusError    = "error"     // Generic error (may retry)
	FetchStatusNotFound = "not_found" // 404/410 - permanent failure
	FetchStatusTimeout  = "timeout"   // Request timed out (may retry)
	FetchStatusBlocked  = "blocked"   // 403/429 - blocked by server
)

// DefaultResponseCacheTTL is how long a successful response is served from cache.
// Catalog entries change rarely, but covers and descriptions do get corrected.
const DefaultResponseCacheTTL = 24 * time.Hour

// IsPermanentHTTPStatus returns true for status codes that indicate permanent failure
func IsPermanentHTTPStatus(status int) bool {
	switch status {
	case 404, 410, 451: // Not Found, Gone, Unavailable for Legal Reasons
		return true
	default:
		return false
	}
}

// FetchStatusFromHTTP determines fetch status from HTTP status code
func FetchStatusFromHTTP(status int) string {
	switch {
	case status >= 200 && status < 300:
		return FetchStatusSuccess
	case status == 404 || status == 410:
		return FetchStatusNotFound
	case status == 403 || status == 429:
		return FetchStatusBlocked
	default:
		return FetchStatusError
	}
}

// HashContent computes SHA-256 hash of content for change detection
func HashContent(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// IsExpired returns true if the cached response has expired
func (r *CachedResponse) IsExpired() bool {
	if r.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*r.ExpiresAt)
}

// IsFresh returns true if the response was fetched within maxAge
func (r *CachedResponse) IsFresh(maxAge time.Duration) bool {
	return time.Since(r.FetchedAt) < maxAge
}

// SkipReason reports whether a fetch of this URL should be skipped, and why.
// Only permanent failures are skipped; a transient failure never hides a URL
// from the next attempt.
func (r *CachedResponse) SkipReason() (bool, string) {
	if !r.IsPermanentFailure {
		return false, ""
	}
	reason := "permanent failure"
	if r.ErrorMessage != nil {
		reason = *r.ErrorMessage
	}
	return true, reason
}
