package catalog

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jonathan/bookmeta/internal/schemas"
)

// Match is one entry from a search response.
type Match struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// entityID accepts the catalog's numeric ids as well as string ids.
type entityID string

func (id *entityID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = entityID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = entityID(n.String())
	return nil
}

type searchResponse struct {
	Data []struct {
		Attributes *struct {
			EntityID entityID `json:"entityId"`
			Name     string   `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
}

// ParseSearch decodes a search response into matches in endpoint order.
// Entries without an id or name are skipped; an absent data list means no matches.
func ParseSearch(body []byte) ([]Match, error) {
	if err := schemas.Validate(schemas.SearchResponse, body); err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Data))
	for _, item := range resp.Data {
		if item.Attributes == nil {
			continue
		}
		id := string(item.Attributes.EntityID)
		name := item.Attributes.Name
		if id == "" || id == "0" || name == "" {
			continue
		}
		matches = append(matches, Match{ID: id, Name: name})
	}
	return matches, nil
}

// FilterBlocked drops matches whose name contains any block term, ignoring case.
// Order is preserved.
func FilterBlocked(matches []Match, blockTerms []string) []Match {
	if len(blockTerms) == 0 {
		return matches
	}

	kept := make([]Match, 0, len(matches))
	for _, m := range matches {
		if !containsAny(strings.ToLower(m.Name), blockTerms) {
			kept = append(kept, m)
		}
	}
	return kept
}

func containsAny(name string, terms []string) bool {
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(name, term) {
			return true
		}
	}
	return false
}
