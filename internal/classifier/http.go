package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledgersieve/ledgersieve/internal/common"
)

const systemPrompt = "You are a financial transaction classifier. " +
	"Respond only in the exact line format requested."

// HTTPConfig configures the HTTP classifier client.
type HTTPConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// HTTPClient implements Client against a messages-style completion API.
type HTTPClient struct {
	httpClient *http.Client
	cfg        HTTPConfig
}

// NewHTTPClient creates an HTTP classifier client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: classifier endpoint is required", common.ErrInvalidConfig)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 300
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &HTTPClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Classify sends one transaction to the classifier and parses its answer.
// Transport and server errors are returned as-is for the caller's retry
// policy; unparseable answers surface as MalformedResponseError.
func (c *HTTPClient) Classify(ctx context.Context, req Request) (*Outcome, error) {
	requestBody := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
		"system":      systemPrompt,
		"messages": []map[string]string{
			{"role": "user", "content": BuildPrompt(req)},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, strings.NewReader(string(jsonBody)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, common.ErrRateLimit
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier API error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &MalformedResponseError{Detail: fmt.Sprintf("invalid JSON envelope: %v", err)}
	}
	if len(parsed.Content) == 0 {
		return nil, &MalformedResponseError{Detail: "empty content"}
	}

	return ParseOutcome(parsed.Content[0].Text)
}

var _ Client = (*HTTPClient)(nil)
