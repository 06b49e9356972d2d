package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/wordday/internal/config"
	"github.com/wordday/internal/domain"
)

// Client calls the external semantic-similarity provider. Every request
// is bounded by the configured timeout so a slow provider cannot stall
// theme evaluation.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a similarity provider client
func NewClient(cfg *config.SimilarityConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type scoreRequest struct {
	TermA string `json:"term_a"`
	TermB string `json:"term_b"`
}

type scoreResponse struct {
	Similarity float64 `json:"similarity"`
}

// Score returns the provider's similarity between a guess and a theme
// tag, in [0,1]. Any transport, status, or decoding problem is reported
// as a dependency failure; the caller decides how to degrade.
func (c *Client) Score(ctx context.Context, guess, tag string) (float64, error) {
	body, err := json.Marshal(scoreRequest{TermA: guess, TermB: tag})
	if err != nil {
		return 0, fmt.Errorf("%w: encoding request: %v", domain.ErrSimilarityFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/similarity", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: building request: %v", domain.ErrSimilarityFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: calling provider: %v", domain.ErrSimilarityFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("%w: provider returned status %d", domain.ErrSimilarityFailure, resp.StatusCode)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decoding response: %v", domain.ErrSimilarityFailure, err)
	}
	if out.Similarity < 0 || out.Similarity > 1 {
		return 0, fmt.Errorf("%w: similarity %f out of range", domain.ErrSimilarityFailure, out.Similarity)
	}
	return out.Similarity, nil
}
