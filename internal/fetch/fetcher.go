package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Mode selects how the Fetcher uses its transports.
type Mode string

const (
	// ModeFallback tries the primary transport and retries once on the fallback when access is denied.
	ModeFallback Mode = "fallback"
	// ModeSession uses the primary transport only.
	ModeSession Mode = "session"
	// ModeProcess sends every request straight to the fallback transport.
	ModeProcess Mode = "process"
)

// ParseMode validates a mode name. The empty string means ModeFallback.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFallback:
		return ModeFallback, nil
	case ModeSession, ModeProcess:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown fetch mode %q", s)
	}
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Primary    Transport
	Fallback   Transport
	Credential string
	Mode       Mode
	// RequestsPerSecond paces outbound requests; zero disables pacing.
	RequestsPerSecond float64
	Logger            *slog.Logger
}

// Fetcher retrieves URLs through a primary transport, switching to the fallback
// transport exactly once when the primary is denied access.
type Fetcher struct {
	primary    Transport
	fallback   Transport
	credential string
	mode       Mode
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher. Primary defaults to a SessionTransport and
// Fallback to a ProcessTransport using curl.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		primary:    cfg.Primary,
		fallback:   cfg.Fallback,
		credential: cfg.Credential,
		mode:       cfg.Mode,
		logger:     cfg.Logger,
	}
	if f.primary == nil {
		f.primary = NewSessionTransport()
	}
	if f.fallback == nil {
		f.fallback = NewProcessTransport("", nil)
	}
	if f.mode == "" {
		f.mode = ModeFallback
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return f
}

// Get retrieves url. A non-positive timeout means DefaultTimeout.
//
// Cancellation of ctx is honored while waiting for the pacing limiter but does not
// interrupt a transport call already in flight; the timeout bounds each call instead.
func (f *Fetcher) Get(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	req := Request{URL: url, Credential: f.credential, Timeout: timeout}

	if f.mode == ModeProcess {
		return f.call(ctx, f.fallback, req)
	}

	body, err := f.call(ctx, f.primary, req)
	if err == nil {
		return body, nil
	}
	if f.mode == ModeSession || !IsAccessDenied(err) {
		return nil, err
	}

	f.logger.Info("access denied, retrying with fallback transport",
		"url", url,
		"primary", f.primary.Name(),
		"fallback", f.fallback.Name())
	return f.call(ctx, f.fallback, req)
}

func (f *Fetcher) call(ctx context.Context, t Transport, req Request) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for request slot: %w", err)
		}
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), req.Timeout)
	defer cancel()

	start := time.Now()
	body, err := t.Fetch(callCtx, req)
	f.logger.Debug("fetch",
		"transport", t.Name(),
		"url", req.URL,
		"bytes", len(body),
		"duration", time.Since(start),
		"error", err)
	return body, err
}
