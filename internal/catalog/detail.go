package catalog

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/jonathan/bookmeta/internal/schemas"
)

// PublisherType is the type tag of publisher entities in the included list.
const PublisherType = "Publisher"

// DetailEnvelope is a product detail response.
type DetailEnvelope struct {
	Data     DetailData       `json:"data"`
	Included []IncludedEntity `json:"included"`
}

// DetailData is the primary entity of a detail response.
type DetailData struct {
	Attributes DetailAttributes `json:"attributes"`
}

// DetailAttributes holds the product fields used for mapping.
type DetailAttributes struct {
	Name          string             `json:"name"`
	Description   *DetailDescription `json:"description"`
	Authors       []Author           `json:"authors"`
	DateAvailable string             `json:"dateAvailable"`
	Image         string             `json:"image"`
	PublisherID   json.RawMessage    `json:"publisherId,omitempty"`
}

// DetailDescription carries the display title and long description.
type DetailDescription struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// IncludedEntity is a related entity from the side list.
type IncludedEntity struct {
	Type       string `json:"type"`
	Attributes struct {
		Name string `json:"name"`
	} `json:"attributes"`
}

// Author is a product author, sent either as a bare string or as {"name": ...}.
// A null entry decodes as blank.
type Author string

func (a *Author) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Author(strings.TrimSpace(s))
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*a = Author(strings.TrimSpace(obj.Name))
	return nil
}

// ParseDetail checks body against the envelope schema and decodes it.
func ParseDetail(body []byte) (*DetailEnvelope, error) {
	if err := schemas.Validate(schemas.ProductDetail, body); err != nil {
		return nil, err
	}

	var env DetailEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Title returns the description name, then the top-level name, then "".
func (a DetailAttributes) Title() string {
	if a.Description != nil {
		if name := strings.TrimSpace(a.Description.Name); name != "" {
			return name
		}
	}
	return strings.TrimSpace(a.Name)
}

// AuthorNames returns the non-blank author names in order.
func (a DetailAttributes) AuthorNames() []string {
	var names []string
	for _, author := range a.Authors {
		if author != "" {
			names = append(names, string(author))
		}
	}
	return names
}

// Comments returns the long description, if any.
func (a DetailAttributes) Comments() string {
	if a.Description == nil {
		return ""
	}
	return a.Description.Description
}

// Publisher returns the name of the first included entity tagged as a publisher.
func (e *DetailEnvelope) Publisher() string {
	for _, inc := range e.Included {
		if inc.Type == PublisherType && inc.Attributes.Name != "" {
			return inc.Attributes.Name
		}
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDate parses an availability timestamp. ok is false when no layout matches.
func parseDate(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
