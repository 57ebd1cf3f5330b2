// Package oracle is an HTTP client for the verdict service the resolution
// agent consults. The service searches the web for a market's question and
// returns a YES/NO/UNSURE verdict with a confidence score.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/hyperlocal/internal/domain"
)

// Verdict outcomes.
const (
	OutcomeYes    = "YES"
	OutcomeNo     = "NO"
	OutcomeUnsure = "UNSURE"
)

// maxResponseSize caps the verdict body read from the oracle.
const maxResponseSize = 1 << 20

// Verdict is the oracle's answer for one market.
type Verdict struct {
	Outcome     string  `json:"outcome"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
	EvidenceURL string  `json:"evidence_url,omitempty"`
}

// Side maps the verdict onto a market outcome. UNSURE maps to OutcomeNone.
func (v Verdict) Side() domain.Outcome {
	switch v.Outcome {
	case OutcomeYes:
		return domain.OutcomeYes
	case OutcomeNo:
		return domain.OutcomeNo
	default:
		return domain.OutcomeNone
	}
}

// Client queries the oracle endpoint.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an oracle client. A non-positive timeout selects 60s.
func NewClient(url, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:    url,
		apiKey: strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// verdictRequest is the body posted to the oracle.
type verdictRequest struct {
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Deadline        string   `json:"deadline,omitempty"`
	SearchQuery     string   `json:"search_query"`
	ValidationRules string   `json:"validation_rules"`
	RequiredDomains []string `json:"required_domains,omitempty"`
}

// verdictResponse accepts either a structured verdict or a free-text model
// answer carrying the verdict as JSON.
type verdictResponse struct {
	Verdict
	Text string `json:"text"`
}

// Evaluate asks the oracle to judge the manifest's question.
func (c *Client) Evaluate(ctx context.Context, m domain.Manifest) (Verdict, error) {
	reqBody := verdictRequest{
		Title:           m.Title,
		Description:     m.Description,
		Deadline:        m.Deadline,
		SearchQuery:     m.Config.SearchQuery,
		ValidationRules: m.Config.ValidationRules,
		RequiredDomains: m.Config.Domains(),
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return Verdict{}, fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return Verdict{}, fmt.Errorf("oracle: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("oracle: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Verdict{}, fmt.Errorf("oracle: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("oracle: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return ParseVerdict(body)
}

// ParseVerdict decodes an oracle response. A `text` field is parsed as JSON
// after stripping markdown code fences. Unknown outcomes become UNSURE and
// confidence is clamped to [0,1].
func ParseVerdict(body []byte) (Verdict, error) {
	var resp verdictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Verdict{}, fmt.Errorf("oracle: decode response: %w", err)
	}
	v := resp.Verdict
	if v.Outcome == "" && resp.Text != "" {
		if err := json.Unmarshal([]byte(stripFences(resp.Text)), &v); err != nil {
			return Verdict{}, fmt.Errorf("oracle: decode text verdict: %w", err)
		}
	}
	return normalize(v), nil
}

func normalize(v Verdict) Verdict {
	v.Outcome = strings.ToUpper(strings.TrimSpace(v.Outcome))
	switch v.Outcome {
	case OutcomeYes, OutcomeNo:
	default:
		v.Outcome = OutcomeUnsure
	}
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	v.EvidenceURL = strings.TrimSpace(v.EvidenceURL)
	return v
}

// stripFences removes a surrounding ```json ... ``` block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
