package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonathan/bookmeta/internal/catalog"
	"github.com/jonathan/bookmeta/internal/fetch"
	"github.com/jonathan/bookmeta/internal/source"
)

// getBinaryPath returns the path to the bookmeta binary for CLI tests
func getBinaryPath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping CLI tests in short mode")
	}

	binaryPath := filepath.Join("..", "..", "bin", "bookmeta")
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skipf("Binary not found at %s, build it first with 'go build -o bin/bookmeta ./cmd/bookmeta'", binaryPath)
	}
	return binaryPath
}

var (
	testEndpoints = catalog.Endpoints{
		SearchURL: "https://catalog.test/api/search_ahead",
		DetailURL: "https://catalog.test/api/products",
		ImageURL:  "https://images.catalog.test",
		SiteID:    catalog.DefaultSiteID,
		GroupID:   catalog.DefaultGroupID,
	}
	testCover = []byte{0xff, 0xd8, 0xff, 0xe0, 'J', 'F', 'I', 'F'}
)

func productJSON(name, author, image string) []byte {
	return []byte(`{"data":{"attributes":{"description":{"name":"` + name + `"},"authors":["` + author + `"],"image":"` + image + `"}}}`)
}

// stubCatalog is a fetch.Getter serving canned responses. Unknown search URLs
// return an empty result set; anything else unknown is an upstream 404.
type stubCatalog struct {
	mu        sync.Mutex
	responses map[string][]byte
	inFlight  int
	maxFlight int
	delay     time.Duration
}

func newStubCatalog() *stubCatalog {
	c := &stubCatalog{responses: map[string][]byte{}}
	c.addBook("Dracula", "Bram Stoker", "240640", "8957/240640.jpg")
	c.addBook("Carmilla", "Sheridan Le Fanu", "100200", "")
	return c
}

func (c *stubCatalog) addBook(title, author, id, image string) {
	c.responses[testEndpoints.SearchQueryURL(title+" "+author)] = []byte(
		`{"data":[{"attributes":{"entityId":"` + id + `","name":"` + title + `"}}]}`)
	c.responses[testEndpoints.ProductURL(id)] = productJSON(title, author, image)
	if image != "" {
		c.responses[testEndpoints.CoverURL(image)] = testCover
	}
}

func (c *stubCatalog) Get(_ context.Context, url string, _ time.Duration) ([]byte, error) {
	c.mu.Lock()
	c.inFlight++
	c.maxFlight = max(c.maxFlight, c.inFlight)
	body, ok := c.responses[url]
	delay := c.delay
	c.mu.Unlock()

	time.Sleep(delay)

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()

	if ok {
		return body, nil
	}
	if strings.HasPrefix(url, testEndpoints.SearchURL) {
		return []byte(`{"data":[]}`), nil
	}
	return nil, &fetch.Error{URL: url, Transport: "stub", Kind: fetch.KindStatus, StatusCode: http.StatusNotFound}
}

func newStubSource(getter fetch.Getter) *source.Source {
	return source.New(source.Config{
		Getter:    getter,
		Endpoints: testEndpoints,
		Timeout:   time.Second,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}
