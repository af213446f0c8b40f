package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonathan/bookmeta/internal/fetch"
	"github.com/jonathan/bookmeta/internal/types"
)

// SourceName identifies records produced by this catalog.
const SourceName = "DriveThruFiction Metadata"

// Mapper fetches product details and turns them into metadata records.
type Mapper struct {
	getter    fetch.Getter
	endpoints Endpoints
	covers    *CoverCache
	logger    *slog.Logger
}

// NewMapper creates a mapper that registers discovered cover URLs in covers.
func NewMapper(getter fetch.Getter, endpoints Endpoints, covers *CoverCache, logger *slog.Logger) *Mapper {
	if logger == nil {
		logger = slog.Default()
	}
	if covers == nil {
		covers = NewCoverCache()
	}
	return &Mapper{getter: getter, endpoints: endpoints, covers: covers, logger: logger}
}

// MapDetail fetches the product with catalog id and maps it to a record.
//
// Transport failures are returned as *fetch.Error. A body that is not a detail
// envelope yields *MappingError wrapping *ParseError. Missing optional fields
// never fail the mapping.
func (m *Mapper) MapDetail(ctx context.Context, id string, timeout time.Duration) (*types.MetadataRecord, error) {
	detailURL := m.endpoints.ProductURL(id)
	m.logger.Info("fetching details", "id", id, "url", detailURL)

	body, err := m.getter.Get(ctx, detailURL, timeout)
	if err != nil {
		return nil, err
	}

	env, err := ParseDetail(body)
	if err != nil {
		return nil, &MappingError{
			ID:    id,
			Cause: &ParseError{Endpoint: "detail", URL: detailURL, Cause: err},
		}
	}

	return m.mapEnvelope(id, env), nil
}

func (m *Mapper) mapEnvelope(id string, env *DetailEnvelope) *types.MetadataRecord {
	attrs := env.Data.Attributes

	record := types.NewMetadataRecord(id, attrs.Title(), attrs.AuthorNames())
	record.Source = SourceName
	record.Description = attrs.Comments()
	record.Publisher = env.Publisher()

	if t, ok := parseDate(attrs.DateAvailable); ok {
		record.PublishedAt = &t
	} else if attrs.DateAvailable != "" {
		m.logger.Debug("ignoring unparseable availability date", "id", id, "value", attrs.DateAvailable)
	}

	if attrs.Image != "" {
		coverURL := m.endpoints.CoverURL(attrs.Image)
		m.covers.Put(id, coverURL)
		record.CoverURL = coverURL
	}

	return record
}
