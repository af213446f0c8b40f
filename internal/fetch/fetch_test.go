package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTransport_Success(t *testing.T) {
	var gotHeaders http.Header
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		if c, err := r.Cookie(ClearanceCookie); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	transport := NewSessionTransport()
	body, err := transport.Fetch(context.Background(), Request{URL: server.URL, Credential: "abc123", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":[]}`, string(body))

	assert.Equal(t, SessionUserAgent, gotHeaders.Get("User-Agent"))
	assert.Equal(t, SessionAccept, gotHeaders.Get("Accept"))
	assert.Equal(t, SessionAcceptLanguage, gotHeaders.Get("Accept-Language"))
	assert.Equal(t, SessionReferer, gotHeaders.Get("Referer"))
	assert.Equal(t, "abc123", gotCookie)
}

func TestSessionTransport_NoCredentialNoCookie(t *testing.T) {
	var hasCookie bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie(ClearanceCookie)
		hasCookie = err == nil
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewSessionTransport().Fetch(context.Background(), Request{URL: server.URL})
	require.NoError(t, err)
	assert.False(t, hasCookie)
}

func TestSessionTransport_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	body, err := NewSessionTransport().Fetch(context.Background(), Request{URL: server.URL + "/old"})
	require.NoError(t, err)
	assert.Equal(t, "moved", string(body))
}

func TestSessionTransport_InvalidURL(t *testing.T) {
	_, err := NewSessionTransport().Fetch(context.Background(), Request{URL: "not-a-valid-url"})
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindInvalidURL, fetchErr.Kind)
	assert.Contains(t, err.Error(), "invalid URL")
}

func TestSessionTransport_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := NewSessionTransport().Fetch(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, IsAccessDenied(err))

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
	assert.Equal(t, "session", fetchErr.Transport)
}

func TestSessionTransport_ChallengePageIsAccessDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=UTF-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`<html><head><title>Just a moment...</title></head><body></body></html>`))
	}))
	defer server.Close()

	_, err := NewSessionTransport().Fetch(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.True(t, IsAccessDenied(err))
}

func TestSessionTransport_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewSessionTransport().Fetch(context.Background(), Request{URL: server.URL})
	require.Error(t, err)
	assert.False(t, IsAccessDenied(err))

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindStatus, fetchErr.Kind)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Contains(t, err.Error(), "404")
}

func TestSessionTransport_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	_, err := NewSessionTransport().Fetch(context.Background(), Request{URL: server.URL, Timeout: 50 * time.Millisecond})
	require.Error(t, err)

	var fetchErr *Error
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, KindTimeout, fetchErr.Kind)
}

func TestError_Unwrap(t *testing.T) {
	cause := context.DeadlineExceeded
	err := &Error{URL: "http://x", Transport: "session", Kind: KindTimeout, Message: "HTTP request failed", Cause: cause}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "http://x")
	assert.Contains(t, err.Error(), "session")
}

func TestIsAccessDenied(t *testing.T) {
	assert.False(t, IsAccessDenied(nil))
	assert.False(t, IsAccessDenied(assert.AnError))
	assert.False(t, IsAccessDenied(&Error{Kind: KindStatus, StatusCode: 500}))
	assert.True(t, IsAccessDenied(&Error{Kind: KindAccessDenied, StatusCode: 403}))
}
