// Package fetch provides the transports used to reach the remote catalog and the
// Fetcher that chooses between them.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 30 * time.Second

// ClearanceCookie is the cookie name carrying the anti-bot bypass credential.
const ClearanceCookie = "cf_clearance"

// maxBodyBytes caps how much of a response body is read into memory.
const maxBodyBytes = 32 << 20

// Kind classifies a transport failure.
type Kind string

const (
	// KindAccessDenied means the request was blocked by anti-bot defenses (HTTP 403 or a challenge page).
	KindAccessDenied Kind = "access_denied"
	// KindStatus is any other non-success HTTP status.
	KindStatus Kind = "status"
	// KindNetwork is a connection or protocol failure.
	KindNetwork Kind = "network"
	// KindProcess is a failure of the external client process.
	KindProcess Kind = "process"
	// KindTimeout means the request exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindInvalidURL means the URL could not be used.
	KindInvalidURL Kind = "invalid_url"
)

// Error represents an error during URL fetching.
type Error struct {
	URL        string
	Transport  string
	Kind       Kind
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s (%s): %s: %v", e.URL, e.Transport, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s (%s): %s", e.URL, e.Transport, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// AccessDenied reports whether the failure was an anti-bot block.
func (e *Error) AccessDenied() bool {
	return e.Kind == KindAccessDenied
}

// IsAccessDenied reports whether err carries an access-denied *Error.
func IsAccessDenied(err error) bool {
	var fetchErr *Error
	return errors.As(err, &fetchErr) && fetchErr.AccessDenied()
}

// Request is a single GET against the catalog.
type Request struct {
	URL        string
	Credential string
	Timeout    time.Duration
}

// Transport performs one HTTP GET. Implementations must return *Error on failure.
type Transport interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Getter is what downstream components call for network I/O.
type Getter interface {
	Get(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// Browser signature presented by the session transport.
const (
	SessionUserAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	SessionAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	SessionAcceptLanguage = "en-US,en;q=0.5"
	SessionReferer        = "https://www.google.com/"
)

// SessionTransport issues requests through a persistent, cookie-aware HTTP client.
// Redirects are followed by the client.
type SessionTransport struct {
	client *http.Client
}

// NewSessionTransport creates a session transport with its own cookie jar.
func NewSessionTransport() *SessionTransport {
	jar, _ := cookiejar.New(nil)
	return &SessionTransport{
		client: &http.Client{Jar: jar},
	}
}

// NewSessionTransportWithClient wraps an existing client, e.g. one built by httptest.
func NewSessionTransportWithClient(client *http.Client) *SessionTransport {
	return &SessionTransport{client: client}
}

// Name returns the transport identifier.
func (t *SessionTransport) Name() string {
	return "session"
}

// Fetch retrieves the body at req.URL.
func (t *SessionTransport) Fetch(ctx context.Context, req Request) ([]byte, error) {
	parsedURL, err := url.Parse(req.URL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			URL:       req.URL,
			Transport: t.Name(),
			Kind:      KindInvalidURL,
			Message:   "invalid URL",
			Cause:     err,
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &Error{
			URL:       req.URL,
			Transport: t.Name(),
			Kind:      KindInvalidURL,
			Message:   "failed to create request",
			Cause:     err,
		}
	}

	httpReq.Header.Set("User-Agent", SessionUserAgent)
	httpReq.Header.Set("Accept", SessionAccept)
	httpReq.Header.Set("Accept-Language", SessionAcceptLanguage)
	httpReq.Header.Set("Referer", SessionReferer)
	if req.Credential != "" {
		httpReq.AddCookie(&http.Cookie{Name: ClearanceCookie, Value: req.Credential})
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, &Error{
			URL:       req.URL,
			Transport: t.Name(),
			Kind:      kind,
			Message:   "HTTP request failed",
			Cause:     err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &Error{
			URL:        req.URL,
			Transport:  t.Name(),
			Kind:       KindNetwork,
			StatusCode: resp.StatusCode,
			Message:    "failed to read response body",
			Cause:      err,
		}
	}

	if err := classifyResponse(req.URL, t.Name(), resp.StatusCode, resp.Header.Get("Content-Type"), body); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyResponse turns a completed exchange into an *Error when it is not usable.
// Both HTTP-speaking transports share it so their access-denied boundary is identical.
func classifyResponse(rawURL, transport string, status int, contentType string, body []byte) error {
	if status == http.StatusForbidden {
		return &Error{
			URL:        rawURL,
			Transport:  transport,
			Kind:       KindAccessDenied,
			StatusCode: status,
			Message:    fmt.Sprintf("HTTP status %d", status),
		}
	}
	if IsChallengePage(contentType, body) {
		return &Error{
			URL:        rawURL,
			Transport:  transport,
			Kind:       KindAccessDenied,
			StatusCode: status,
			Message:    "anti-bot challenge page",
		}
	}
	if status < 200 || status >= 300 {
		return &Error{
			URL:        rawURL,
			Transport:  transport,
			Kind:       KindStatus,
			StatusCode: status,
			Message:    fmt.Sprintf("HTTP status %d", status),
		}
	}
	return nil
}
