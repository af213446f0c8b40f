// Package fetch - browser.go provides a headless browser transport.
package fetch

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserTransport fetches a URL by navigating a headless Chrome to it and reading
// the main document's response body from the DevTools network domain.
// Requires Chrome/Chromium to be installed on the system.
type BrowserTransport struct {
	// ExecPath overrides the browser binary; empty uses chromedp's lookup.
	ExecPath string
}

// NewBrowserTransport creates a browser transport.
func NewBrowserTransport(execPath string) *BrowserTransport {
	return &BrowserTransport{ExecPath: execPath}
}

// Name returns the transport identifier.
func (t *BrowserTransport) Name() string {
	return "browser"
}

// Fetch navigates to req.URL and returns the raw response body.
func (t *BrowserTransport) Fetch(ctx context.Context, req Request) ([]byte, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(SessionUserAgent),
	)
	if t.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(t.ExecPath))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var (
		mu          sync.Mutex
		requestID   network.RequestID
		status      int64
		contentType string
	)
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		requestID = e.RequestID
		status = e.Response.Status
		contentType = e.Response.MimeType
	})

	var body []byte
	actions := []chromedp.Action{network.Enable()}
	if req.Credential != "" {
		actions = append(actions, network.SetCookies([]*network.CookieParam{{
			Name:  ClearanceCookie,
			Value: req.Credential,
			URL:   req.URL,
		}}))
	}
	actions = append(actions,
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": SessionAcceptLanguage,
			"Referer":         SessionReferer,
		}),
		chromedp.Navigate(req.URL),
		chromedp.ActionFunc(func(ctx context.Context) error {
			mu.Lock()
			id := requestID
			mu.Unlock()
			var err error
			body, err = network.GetResponseBody(id).Do(ctx)
			return err
		}),
	)

	if err := chromedp.Run(browserCtx, actions...); err != nil {
		kind := KindNetwork
		if browserCtx.Err() == context.DeadlineExceeded {
			kind = KindTimeout
		}
		return nil, &Error{
			URL:       req.URL,
			Transport: t.Name(),
			Kind:      kind,
			Message:   "browser navigation failed",
			Cause:     err,
		}
	}

	mu.Lock()
	code, mime := int(status), contentType
	mu.Unlock()
	if err := classifyResponse(req.URL, t.Name(), code, mime, body); err != nil {
		return nil, err
	}
	return body, nil
}
