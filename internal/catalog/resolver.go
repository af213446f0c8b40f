package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/bookmeta/internal/fetch"
	"github.com/jonathan/bookmeta/internal/query"
)

// Resolver turns a title and author list into a catalog id by trying search
// candidates from most to least specific.
type Resolver struct {
	getter     fetch.Getter
	endpoints  Endpoints
	blockTerms []string
	logger     *slog.Logger
}

// NewResolver creates a resolver. A nil blockTerms means DefaultBlockTerms;
// pass an empty slice to disable filtering.
func NewResolver(getter fetch.Getter, endpoints Endpoints, blockTerms []string, logger *slog.Logger) *Resolver {
	if blockTerms == nil {
		blockTerms = DefaultBlockTerms
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{getter: getter, endpoints: endpoints, blockTerms: blockTerms, logger: logger}
}

// Search runs one search round trip and returns the matches left after block-term filtering.
func (r *Resolver) Search(ctx context.Context, keyword string, timeout time.Duration) ([]Match, error) {
	searchURL := r.endpoints.SearchQueryURL(keyword)
	r.logger.Info("searching catalog", "query", keyword, "url", searchURL)

	body, err := r.getter.Get(ctx, searchURL, timeout)
	if err != nil {
		return nil, err
	}

	matches, err := ParseSearch(body)
	if err != nil {
		return nil, &ParseError{Endpoint: "search", URL: searchURL, Cause: err}
	}
	return FilterBlocked(matches, r.blockTerms), nil
}

// Resolve returns the first match of the first candidate query that has any.
//
// It returns ErrNoMatch when the title is blank or no candidate matches. A failure
// on any candidate but the last is logged and treated as no match; a failure on the
// last candidate is returned. ctx is checked between round trips only.
func (r *Resolver) Resolve(ctx context.Context, title string, authors []string, timeout time.Duration) (Match, error) {
	candidates := query.BuildCandidates(title, authors)
	if len(candidates) == 0 {
		r.logger.Info("no search query could be built", "title", title)
		return Match{}, ErrNoMatch
	}

	for i, candidate := range candidates {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				return Match{}, fmt.Errorf("resolution aborted: %w", err)
			}
		}

		last := i == len(candidates)-1
		matches, err := r.Search(ctx, candidate, timeout)
		if err != nil {
			if last {
				return Match{}, fmt.Errorf("search %q failed: %w", candidate, err)
			}
			r.logger.Warn("search stage failed, trying next candidate",
				"stage", i+1,
				"query", candidate,
				"error", err)
			continue
		}

		if len(matches) > 0 {
			r.logger.Info("found match", "stage", i+1, "name", matches[0].Name, "id", matches[0].ID)
			return matches[0], nil
		}
		r.logger.Info("no results for candidate", "stage", i+1, "query", candidate)
	}

	r.logger.Info("no results found after all attempts", "title", title)
	return Match{}, ErrNoMatch
}
