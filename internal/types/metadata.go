// Package types provides type definitions for the records exchanged between the resolver and its hosts.
package types

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Sentinels used when the catalog omits a required field.
const (
	UnknownTitle  = "Unknown"
	UnknownAuthor = "Unknown"
)

// ErrEmptyRequest is returned when a request has neither a catalog id nor a title.
var ErrEmptyRequest = errors.New("either a catalog id or a title is required")

// IdentifierKey is the identifier namespace for catalog ids.
const IdentifierKey = "drivethrufiction"

// MetadataRecord is the canonical book metadata produced from one catalog entry.
type MetadataRecord struct {
	Title       string            `json:"title" validate:"required"`
	Authors     []string          `json:"authors" validate:"required,min=1,dive,required"`
	Identifier  string            `json:"identifier" validate:"required"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
	Description string            `json:"description,omitempty"`
	Publisher   string            `json:"publisher,omitempty"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
	CoverURL    string            `json:"cover_url,omitempty" validate:"omitempty,url"`
	Source      string            `json:"source,omitempty"`
}

// NewMetadataRecord creates a record for catalog id with title and authors defaulted to sentinels.
func NewMetadataRecord(id, title string, authors []string) *MetadataRecord {
	if title == "" {
		title = UnknownTitle
	}
	if len(authors) == 0 {
		authors = []string{UnknownAuthor}
	}
	return &MetadataRecord{
		Title:       title,
		Authors:     authors,
		Identifier:  id,
		Identifiers: map[string]string{IdentifierKey: id},
	}
}

// Validate validates the MetadataRecord using the validator.
func (r *MetadataRecord) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// IdentifyRequest is what a host supplies to look up a book.
// A catalog id in Identifiers takes precedence over Title and Authors.
type IdentifyRequest struct {
	Title       string            `json:"title,omitempty"`
	Authors     []string          `json:"authors,omitempty" validate:"omitempty,dive,required"`
	Identifiers map[string]string `json:"identifiers,omitempty"`
}

// CatalogID returns the catalog id carried by the request, if any.
func (r *IdentifyRequest) CatalogID() string {
	if r == nil || r.Identifiers == nil {
		return ""
	}
	return r.Identifiers[IdentifierKey]
}

// Validate validates the IdentifyRequest using the validator, and requires either
// a catalog id or a non-blank title.
func (r *IdentifyRequest) Validate() error {
	validate := validator.New()
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.CatalogID() == "" && strings.TrimSpace(r.Title) == "" {
		return ErrEmptyRequest
	}
	return nil
}
