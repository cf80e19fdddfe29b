package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Config contains translation client configuration.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	Timeout    time.Duration
	SourceLang string
	TargetLang string
}

func (c *Config) validate() error {
	if c.SourceLang == "" || c.TargetLang == "" {
		return fmt.Errorf("source and target languages are required")
	}
	if c.SourceLang == c.TargetLang {
		return fmt.Errorf("source and target languages are both %q", c.SourceLang)
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return nil
}

// HTTPClient translates text via a self-hosted JSON translation API.
// Request: {"text": ..., "source": ..., "target": ...}
// Response: {"text": ...}
type HTTPClient struct {
	config     Config
	httpClient *http.Client
}

// NewHTTPClient creates a JSON-over-HTTP translation client.
func NewHTTPClient(config Config) (*HTTPClient, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &HTTPClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

type translateRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type translateResponse struct {
	Text string `json:"text"`
}

// Translate converts text from the source to the target language.
func (c *HTTPClient) Translate(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(translateRequest{
		Text:   text,
		Source: c.config.SourceLang,
		Target: c.config.TargetLang,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	var out translateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	return strings.TrimSpace(out.Text), nil
}

// SourceLang returns the language translated from.
func (c *HTTPClient) SourceLang() string { return c.config.SourceLang }

// TargetLang returns the language translated to.
func (c *HTTPClient) TargetLang() string { return c.config.TargetLang }
