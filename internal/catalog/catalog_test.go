package catalog

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jonathan/bookmeta/internal/fetch"
)

// scriptedGetter serves canned bodies by URL and records every request.
type scriptedGetter struct {
	responses map[string][]byte
	errs      map[string]error
	requests  []string
	onGet     func(n int)
}

func newScriptedGetter() *scriptedGetter {
	return &scriptedGetter{responses: map[string][]byte{}, errs: map[string]error{}}
}

func (g *scriptedGetter) Get(_ context.Context, rawURL string, _ time.Duration) ([]byte, error) {
	g.requests = append(g.requests, rawURL)
	if g.onGet != nil {
		g.onGet(len(g.requests))
	}
	if err, ok := g.errs[rawURL]; ok {
		return nil, err
	}
	if body, ok := g.responses[rawURL]; ok {
		return body, nil
	}
	return []byte(`{"data":[]}`), nil
}

// keywords returns the search keywords requested so far.
func (g *scriptedGetter) keywords() []string {
	var out []string
	for _, raw := range g.requests {
		u, err := url.Parse(raw)
		if err != nil || !strings.Contains(u.Path, "search_ahead") {
			continue
		}
		out = append(out, u.Query().Get("keyword"))
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errNetwork = &fetch.Error{URL: "x", Transport: "session", Kind: fetch.KindNetwork, Message: "connection reset"}
