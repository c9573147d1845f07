package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/shikibetsu/pkg/utils"
)

// HTTPScorer calls a remote zero-shot classification endpoint using the
// Hugging Face inference payload shape.
type HTTPScorer struct {
	endpoint string
	apiKey   string
	language Language
	client   *http.Client
}

type zeroShotRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters zeroShotParameters `json:"parameters"`
}

type zeroShotParameters struct {
	CandidateLabels    []string `json:"candidate_labels"`
	HypothesisTemplate string   `json:"hypothesis_template"`
	MultiLabel         bool     `json:"multi_label"`
}

type zeroShotResponse struct {
	Sequence string    `json:"sequence"`
	Labels   []string  `json:"labels"`
	Scores   []float64 `json:"scores"`
	Error    string    `json:"error,omitempty"`
}

// NewHTTPScorer creates a scorer for endpoint. apiKey may be empty.
func NewHTTPScorer(endpoint, apiKey string, lang Language, timeout time.Duration) (*HTTPScorer, error) {
	if endpoint == "" {
		return nil, errors.New("classifier endpoint is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPScorer{
		endpoint: endpoint,
		apiKey:   apiKey,
		language: lang,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Score sends text and labels in one request.
func (s *HTTPScorer) Score(ctx context.Context, text string, labels []string) (map[string]float64, error) {
	if err := checkInput(text, labels); err != nil {
		return nil, err
	}
	body, err := json.Marshal(zeroShotRequest{
		Inputs: text,
		Parameters: zeroShotParameters{
			CandidateLabels: labels,
			// The endpoint expects Python-style "{}" placeholders.
			HypothesisTemplate: s.language.Hypothesis("{}"),
			MultiLabel:         true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, utils.Truncate(string(raw), 200))
	}

	parsed, err := parseZeroShot(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("classifier error: %s", parsed.Error)
	}
	if len(parsed.Labels) != len(parsed.Scores) {
		return nil, fmt.Errorf("classifier returned %d labels and %d scores", len(parsed.Labels), len(parsed.Scores))
	}
	out := make(map[string]float64, len(labels))
	for _, l := range labels {
		out[l] = 0
	}
	for i, l := range parsed.Labels {
		if _, ok := out[l]; ok {
			out[l] = parsed.Scores[i]
		}
	}
	return out, nil
}

// parseZeroShot accepts a single object or a one-element array.
func parseZeroShot(raw []byte) (*zeroShotResponse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []zeroShotResponse
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if len(list) == 0 {
			return nil, errors.New("classifier returned no results")
		}
		return &list[0], nil
	}
	var single zeroShotResponse
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &single, nil
}

// Close releases idle connections.
func (s *HTTPScorer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
