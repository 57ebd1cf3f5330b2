package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifestFull(t *testing.T) {
	data := []byte(`{
		"title": "Will the farmers market open on Saturday?",
		"description": "Resolves on the city announcement.",
		"deadline": "2025-12-25T12:00:00Z",
		"resolution_type": "LLM_WEB_GENERIC",
		"config": {
			"search_query": "farmers market saturday opening",
			"validation_rules": "YES if the city confirms opening",
			"required_domains": "city.gov, news.example.com"
		}
	}`)

	m, err := ParseManifest(data, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "Will the farmers market open on Saturday?", m.Title)
	assert.Equal(t, []string{"city.gov", "news.example.com"}, m.Config.Domains())
}

func TestParseManifestCompact(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m, err := ParseManifest([]byte(`{"q":"Rain in Lisbon today?","loc":"Lisbon","t":"LLM"}`), now)
	require.NoError(t, err)

	assert.Equal(t, "Rain in Lisbon today?", m.Title)
	assert.Equal(t, "Market for: Rain in Lisbon today? in Lisbon", m.Description)
	assert.Equal(t, "2025-06-02T00:00:00Z", m.Deadline)
	assert.Equal(t, ResolutionTypeWebGeneric, m.ResolutionType)
	assert.Equal(t, "Rain in Lisbon today? Lisbon", m.Config.SearchQuery)
	assert.Contains(t, m.Config.ValidationRules, `"Rain in Lisbon today?"`)
}

func TestParseManifestRejects(t *testing.T) {
	cases := map[string]string{
		"not json":        `nope`,
		"wrong type":      `{"title":"x","resolution_type":"MANUAL","config":{"search_query":"q","validation_rules":"r"}}`,
		"missing query":   `{"title":"x","resolution_type":"LLM_WEB_GENERIC","config":{"validation_rules":"r"}}`,
		"bad deadline":    `{"title":"x","deadline":"tomorrow","resolution_type":"LLM_WEB_GENERIC","config":{"search_query":"q","validation_rules":"r"}}`,
		"empty compact q": `{"q":"","loc":"x","t":"LLM"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseManifest([]byte(body), time.Now())
			assert.ErrorIs(t, err, ErrInvalidManifest)
		})
	}
}
