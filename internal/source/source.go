// Package source is the host-facing entry point: it declares what the catalog can
// provide and runs identify and cover lookups in per-book sessions.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/bookmeta/internal/catalog"
	"github.com/jonathan/bookmeta/internal/fetch"
	"github.com/jonathan/bookmeta/internal/types"
)

// Capability names.
const (
	CapabilityIdentify = "identify"
	CapabilityCover    = "cover"
)

// Capabilities declares the operations and record fields a source supports.
type Capabilities struct {
	Capabilities  []string `json:"capabilities"`
	TouchedFields []string `json:"touched_fields"`
}

// Supports reports whether name is a declared capability.
func (c Capabilities) Supports(name string) bool {
	for _, capability := range c.Capabilities {
		if capability == name {
			return true
		}
	}
	return false
}

// DefaultCapabilities returns the catalog's declared capabilities.
func DefaultCapabilities() Capabilities {
	return Capabilities{
		Capabilities: []string{CapabilityIdentify, CapabilityCover},
		TouchedFields: []string{
			"title", "authors", "tags", "pubdate", "comments", "publisher",
			"identifier:" + types.IdentifierKey, "series", "rating",
		},
	}
}

// RecordSink receives records produced by Identify.
type RecordSink interface {
	PutRecord(record *types.MetadataRecord)
}

// CoverSink receives image bytes produced by DownloadCover.
type CoverSink interface {
	PutCover(data []byte)
}

// RecordSinkFunc adapts a function to RecordSink.
type RecordSinkFunc func(record *types.MetadataRecord)

// PutRecord implements RecordSink.
func (f RecordSinkFunc) PutRecord(record *types.MetadataRecord) { f(record) }

// CoverSinkFunc adapts a function to CoverSink.
type CoverSinkFunc func(data []byte)

// PutCover implements CoverSink.
func (f CoverSinkFunc) PutCover(data []byte) { f(data) }

// Config configures a Source.
type Config struct {
	Getter     fetch.Getter
	Endpoints  catalog.Endpoints
	BlockTerms []string
	// Timeout applies when a call passes a non-positive timeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Source is a configured catalog. It holds no per-lookup state and is safe for
// concurrent use; each lookup runs in its own Session.
type Source struct {
	getter       fetch.Getter
	endpoints    catalog.Endpoints
	blockTerms   []string
	timeout      time.Duration
	logger       *slog.Logger
	capabilities Capabilities
}

// New creates a Source. Zero endpoints mean catalog.DefaultEndpoints.
func New(cfg Config) *Source {
	s := &Source{
		getter:       cfg.Getter,
		endpoints:    cfg.Endpoints,
		blockTerms:   cfg.BlockTerms,
		timeout:      cfg.Timeout,
		logger:       cfg.Logger,
		capabilities: DefaultCapabilities(),
	}
	if s.endpoints == (catalog.Endpoints{}) {
		s.endpoints = catalog.DefaultEndpoints()
	}
	if s.timeout <= 0 {
		s.timeout = fetch.DefaultTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Capabilities returns the declared capabilities.
func (s *Source) Capabilities() Capabilities {
	return s.capabilities
}

// NewSession starts a lookup session with its own cover cache.
func (s *Source) NewSession() *Session {
	id := uuid.New()
	logger := s.logger.With("session", id.String())
	covers := catalog.NewCoverCache()
	return &Session{
		ID:       id,
		source:   s,
		covers:   covers,
		resolver: catalog.NewResolver(s.getter, s.endpoints, s.blockTerms, logger),
		mapper:   catalog.NewMapper(s.getter, s.endpoints, covers, logger),
		logger:   logger,
	}
}

// Session is one "identify a book" operation. Cover URLs discovered by Identify
// or Lookup are visible to DownloadCover on the same session only.
type Session struct {
	ID       uuid.UUID
	source   *Source
	covers   *catalog.CoverCache
	resolver *catalog.Resolver
	mapper   *catalog.Mapper
	logger   *slog.Logger
}

func (s *Session) timeoutOrDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return s.source.timeout
	}
	return timeout
}

// Lookup resolves req to a record. A catalog id in req skips the search cascade.
// Returns catalog.ErrNoMatch when nothing was found.
func (s *Session) Lookup(ctx context.Context, req types.IdentifyRequest, timeout time.Duration) (*types.MetadataRecord, error) {
	timeout = s.timeoutOrDefault(timeout)

	id := req.CatalogID()
	if id == "" {
		match, err := s.resolver.Resolve(ctx, req.Title, req.Authors, timeout)
		if err != nil {
			return nil, err
		}
		id = match.ID

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("lookup aborted before fetching details: %w", err)
		}
	}

	record, err := s.mapper.MapDetail(ctx, id, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch details for %s: %w", id, err)
	}
	return record, nil
}

// Identify looks up req and delivers at most one record to sink. Failures are
// logged, never returned; the result reports whether a record was delivered.
func (s *Session) Identify(ctx context.Context, req types.IdentifyRequest, timeout time.Duration, sink RecordSink) bool {
	record, err := s.Lookup(ctx, req, timeout)
	switch {
	case errors.Is(err, catalog.ErrNoMatch):
		s.logger.Info("no catalog match", "title", req.Title)
		return false
	case err != nil:
		s.logger.Error("identify failed", "title", req.Title, "id", req.CatalogID(), "error", err)
		return false
	}

	sink.PutRecord(record)
	return true
}

// CoverURL returns the cover URL cached in this session for the catalog id in identifiers.
func (s *Session) CoverURL(identifiers map[string]string) (string, bool) {
	id := identifiers[types.IdentifierKey]
	if id == "" {
		return "", false
	}
	return s.covers.Get(id)
}

// FetchCover downloads the cover cached for identifiers.
func (s *Session) FetchCover(ctx context.Context, identifiers map[string]string, timeout time.Duration) ([]byte, error) {
	coverURL, ok := s.CoverURL(identifiers)
	if !ok {
		return nil, ErrNoCover
	}

	s.logger.Info("downloading cover", "url", coverURL)
	data, err := s.source.getter.Get(ctx, coverURL, s.timeoutOrDefault(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to download cover from %s: %w", coverURL, err)
	}
	return data, nil
}

// DownloadCover fetches the cover discovered earlier in this session and delivers the
// bytes to sink. Failures are logged, never returned; the result reports whether
// bytes were delivered.
func (s *Session) DownloadCover(ctx context.Context, identifiers map[string]string, timeout time.Duration, sink CoverSink) bool {
	data, err := s.FetchCover(ctx, identifiers, timeout)
	switch {
	case errors.Is(err, ErrNoCover):
		s.logger.Info("no cached cover found", "id", identifiers[types.IdentifierKey])
		return false
	case err != nil:
		s.logger.Error("cover download failed", "error", err)
		return false
	}

	sink.PutCover(data)
	return true
}

// ErrNoCover is returned when no cover URL was discovered for the requested id.
var ErrNoCover = errors.New("no cached cover")
