package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ResolutionTypeWebGeneric is the only supported resolution type: the agent
// searches the web and asks the oracle for a verdict.
const ResolutionTypeWebGeneric = "LLM_WEB_GENERIC"

// ManifestConfig tells the resolution agent how to look for evidence.
type ManifestConfig struct {
	SearchQuery     string `json:"search_query"`
	ValidationRules string `json:"validation_rules"`
	RequiredDomains string `json:"required_domains,omitempty"`
}

// Manifest is the off-chain description of how a market resolves.
type Manifest struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Deadline       string         `json:"deadline"`
	ResolutionType string         `json:"resolution_type"`
	Config         ManifestConfig `json:"config"`
}

// CompactManifest is the short form that fits inside a market record.
type CompactManifest struct {
	Question string `json:"q"`
	Location string `json:"loc"`
	Type     string `json:"t"`
}

// Validate checks the required fields of a full manifest.
func (m Manifest) Validate() error {
	switch {
	case m.Title == "":
		return fmt.Errorf("%w: missing title", ErrInvalidManifest)
	case m.ResolutionType != ResolutionTypeWebGeneric:
		return fmt.Errorf("%w: unsupported resolution_type %q", ErrInvalidManifest, m.ResolutionType)
	case m.Config.SearchQuery == "":
		return fmt.Errorf("%w: missing config.search_query", ErrInvalidManifest)
	case m.Config.ValidationRules == "":
		return fmt.Errorf("%w: missing config.validation_rules", ErrInvalidManifest)
	}
	if m.Deadline != "" {
		if _, err := time.Parse(time.RFC3339, m.Deadline); err != nil {
			return fmt.Errorf("%w: deadline: %v", ErrInvalidManifest, err)
		}
	}
	return nil
}

// Domains returns the comma-separated RequiredDomains as a slice.
func (c ManifestConfig) Domains() []string {
	var out []string
	for _, d := range strings.Split(c.RequiredDomains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Expand converts a compact manifest to the full form. The deadline defaults
// to 24h after now.
func (c CompactManifest) Expand(now time.Time) Manifest {
	return Manifest{
		Title:          c.Question,
		Description:    fmt.Sprintf("Market for: %s in %s", c.Question, c.Location),
		Deadline:       now.Add(24 * time.Hour).UTC().Format(time.RFC3339),
		ResolutionType: ResolutionTypeWebGeneric,
		Config: ManifestConfig{
			SearchQuery:     strings.TrimSpace(c.Question + " " + c.Location),
			ValidationRules: fmt.Sprintf("Resolve YES if credible sources confirm %q is true. Resolve NO otherwise.", c.Question),
		},
	}
}

// ParseManifest decodes either manifest format. Compact manifests are
// expanded relative to now.
func ParseManifest(data []byte, now time.Time) (Manifest, error) {
	var peek map[string]json.RawMessage
	if err := json.Unmarshal(data, &peek); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if _, full := peek["resolution_type"]; !full {
		if _, compact := peek["q"]; compact {
			var c CompactManifest
			if err := json.Unmarshal(data, &c); err != nil {
				return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
			}
			if c.Question == "" {
				return Manifest{}, fmt.Errorf("%w: compact manifest missing q", ErrInvalidManifest)
			}
			return c.Expand(now), nil
		}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
