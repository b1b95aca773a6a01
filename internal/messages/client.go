// Package messages provides read-only access to the upstream member-messages
// API and an in-memory corpus cache in front of it.
package messages

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"memberqa/internal/domain"
)

// Client fetches the message corpus from the upstream REST API, paging with
// skip/limit until the reported total is reached.
type Client struct {
	baseURL   string
	pageLimit int
	client    *http.Client
}

type Config struct {
	BaseURL   string
	PageLimit int
	Timeout   time.Duration
}

func NewClient(cfg Config) *Client {
	limit := cfg.PageLimit
	if limit <= 0 {
		limit = 500
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		pageLimit: limit,
		client:    &http.Client{Timeout: timeout},
	}
}

// FetchAll retrieves the complete corpus.
func (c *Client) FetchAll(ctx context.Context) ([]domain.Message, error) {
	var all []domain.Message
	skip := 0
	for {
		page, total, err := c.fetchPage(ctx, skip)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(all) >= total || len(page) == 0 {
			return all, nil
		}
		skip += len(page)
	}
}

func (c *Client) fetchPage(ctx context.Context, skip int) ([]domain.Message, int, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(c.pageLimit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/messages/?"+q.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "memberqa/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch messages: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, 0, fmt.Errorf("fetch messages: %s", resp.Status)
	}
	var out struct {
		Items []domain.Message `json:"items"`
		Total int              `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, 0, fmt.Errorf("decode messages: %w", err)
	}
	return out.Items, out.Total, nil
}
