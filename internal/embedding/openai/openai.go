package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// DefaultMaxInputRunes is where over-long inputs are cut before the request.
// Truncation happens at a fixed rune boundary so the same text always produces
// the same request body, keeping the determinism contract intact.
const DefaultMaxInputRunes = 8192

// Client is an OpenAI-compatible embeddings client.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	maxInputRunes int
	dimension     int
	client        *http.Client
	maxRetries    int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL       string
	APIKeyEnv     string
	Model         string
	Timeout       time.Duration
	MaxInputRunes int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	maxRunes := cfg.MaxInputRunes
	if maxRunes <= 0 {
		maxRunes = DefaultMaxInputRunes
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		apiKey:        key,
		model:         cfg.Model,
		maxInputRunes: maxRunes,
		client:        &http.Client{Timeout: t},
		maxRetries:    5,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai/" + c.model }

// Prepare probes the model with a short input so Dimension is known before
// the first corpus embed.
func (c *Client) Prepare(ctx context.Context, corpus []string) error {
	if c.dimension != 0 {
		return nil
	}
	_, err := c.Embed(ctx, "dimension probe")
	return err
}

// Dimension returns the dimensionality of the produced embedding vectors.
// Valid after Prepare or the first successful Embed.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text. Inputs longer than
// the configured rune budget are truncated at the budget, never rejected.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if runes := []rune(text); len(runes) > c.maxInputRunes {
		text = string(runes[:c.maxInputRunes])
	}
	type reqBody struct {
		Input string `json:"input"`
		Model string `json:"model"`
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		data, _ := json.Marshal(reqBody{Input: text, Model: c.model})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt < c.maxRetries {
				if err := sleep(ctx, retryDelay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			if attempt < c.maxRetries {
				if err := sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("embeddings request failed: %s", resp.Status)
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("embeddings request failed: %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			if attempt < c.maxRetries {
				if err := sleep(ctx, retryDelay(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}
		var out struct {
			Data []struct {
				Embedding []float32 `json:"embedding"`
			} `json:"data"`
		}
		if err := json.Unmarshal(payload, &out); err == nil && len(out.Data) > 0 && len(out.Data[0].Embedding) > 0 {
			v := out.Data[0].Embedding
			if c.dimension == 0 {
				c.dimension = len(v)
			}
			return v, nil
		}
		// Ollama-native shape: { "embedding": [...] }
		var native struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(payload, &native); err == nil && len(native.Embedding) > 0 {
			v := native.Embedding
			if c.dimension == 0 {
				c.dimension = len(v)
			}
			return v, nil
		}
		if attempt < c.maxRetries {
			if err := sleep(ctx, retryDelay(attempt)); err != nil {
				return nil, err
			}
			continue
		}
		return nil, errors.New("no embedding returned")
	}
	return nil, errors.New("no embedding returned")
}

// sleep waits for the backoff delay, returning early when the context is
// canceled so a shutting-down build does not stall on the retry ladder.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
