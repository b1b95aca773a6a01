// Package openai implements answer synthesis against an OpenAI-compatible
// chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"memberqa/internal/domain"
)

const systemPrompt = `You are a helpful assistant that answers questions based on member messages.

RULES:
1. Answer based ONLY on the information in the messages
2. Be CONCISE - one or two sentences maximum
3. If information is not available, say ONLY: "I don't have that information"
4. For dates: provide the exact date/time mentioned
5. For counts: provide just the number
6. For lists: provide comma-separated items
7. Do NOT add explanations or caveats unless necessary
8. Extract ONLY the specific information asked for`

// Client sends question+context prompts to the model and returns its answer
// verbatim. It never post-processes or validates the model's grounding.
type Client struct {
	baseURL        string
	apiKey         string
	model          string
	maxTokens      int
	retryOnTimeout bool
	client         *http.Client
}

type Config struct {
	BaseURL        string
	APIKeyEnv      string
	Model          string
	Timeout        time.Duration
	MaxTokens      int
	RetryOnTimeout bool
}

func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("generator base URL required")
	}
	if cfg.Model == "" {
		return nil, errors.New("generator model required")
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         key,
		model:          cfg.Model,
		maxTokens:      maxTokens,
		retryOnTimeout: cfg.RetryOnTimeout,
		client:         &http.Client{Timeout: t},
	}, nil
}

// Synthesize asks the model to answer the question from the context block.
// Failures surface as a SynthesisError classified as timeout, quota, or
// malformed, with the underlying cause attached. A timeout is retried at most
// once when configured; nothing else is retried.
func (c *Client) Synthesize(ctx context.Context, question, contextBlock string) (string, error) {
	answer, err := c.complete(ctx, question, contextBlock)
	if err == nil {
		return answer, nil
	}
	var synErr *domain.SynthesisError
	if c.retryOnTimeout && errors.As(err, &synErr) && synErr.Kind == domain.SynthesisTimeout && ctx.Err() == nil {
		return c.complete(ctx, question, contextBlock)
	}
	return "", err
}

func (c *Client) complete(ctx context.Context, question, contextBlock string) (string, error) {
	userPrompt := fmt.Sprintf("Based on these member messages:\n\n%s\n\nQuestion: %s\n\nProvide a direct answer based only on the information above.", contextBlock, question)
	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0,
		"max_tokens":  c.maxTokens,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", &domain.SynthesisError{Kind: domain.SynthesisMalformed, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", &domain.SynthesisError{Kind: domain.SynthesisMalformed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", &domain.SynthesisError{Kind: domain.SynthesisTimeout, Err: err}
		}
		return "", &domain.SynthesisError{Kind: domain.SynthesisMalformed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusPaymentRequired {
		payload, _ := io.ReadAll(resp.Body)
		return "", &domain.SynthesisError{
			Kind: domain.SynthesisQuota,
			Err:  fmt.Errorf("chat completions %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return "", &domain.SynthesisError{
			Kind: domain.SynthesisMalformed,
			Err:  fmt.Errorf("chat completions %s: %s", resp.Status, strings.TrimSpace(string(payload))),
		}
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.SynthesisError{Kind: domain.SynthesisMalformed, Err: err}
	}
	if len(out.Choices) == 0 {
		return "", &domain.SynthesisError{Kind: domain.SynthesisMalformed, Err: errors.New("no choices in response")}
	}
	answer := strings.TrimSpace(out.Choices[0].Message.Content)
	if answer == "" {
		return "", &domain.SynthesisError{Kind: domain.SynthesisMalformed, Err: errors.New("empty answer in response")}
	}
	return answer, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
