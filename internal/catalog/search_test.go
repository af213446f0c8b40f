package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearch(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []Match
	}{
		{
			name: "numeric and string ids in order",
			body: `{"data":[{"attributes":{"entityId":240640,"name":"Dracula"}},{"attributes":{"entityId":"17","name":"Carmilla"}}]}`,
			expected: []Match{
				{ID: "240640", Name: "Dracula"},
				{ID: "17", Name: "Carmilla"},
			},
		},
		{
			name:     "entries missing id or name are skipped",
			body:     `{"data":[{"attributes":{"name":"No Id"}},{"attributes":{"entityId":3}},{"attributes":null},{},{"attributes":{"entityId":0,"name":"Zero"}},{"attributes":{"entityId":4,"name":"Kept"}}]}`,
			expected: []Match{{ID: "4", Name: "Kept"}},
		},
		{
			name:     "absent data",
			body:     `{"meta":{}}`,
			expected: []Match{},
		},
		{
			name:     "null data",
			body:     `{"data":null}`,
			expected: []Match{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches, err := ParseSearch([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, matches)
		})
	}
}

func TestParseSearch_Malformed(t *testing.T) {
	for _, body := range []string{`not json`, `[]`, `{"data":{"attributes":{}}}`} {
		_, err := ParseSearch([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestFilterBlocked(t *testing.T) {
	matches := []Match{
		{ID: "1", Name: "Grimoire - Fantasy Grounds Edition"},
		{ID: "2", Name: "Grimoire"},
		{ID: "3", Name: "FANTASY GROUNDS: Grimoire"},
		{ID: "4", Name: "Grimoire II"},
	}

	kept := FilterBlocked(matches, DefaultBlockTerms)
	assert.Equal(t, []Match{{ID: "2", Name: "Grimoire"}, {ID: "4", Name: "Grimoire II"}}, kept)

	assert.Equal(t, matches, FilterBlocked(matches, nil))
	assert.Equal(t, matches, FilterBlocked(matches, []string{"  "}))
}
