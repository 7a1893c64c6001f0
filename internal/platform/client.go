package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// Client implements Searcher over a platform's REST search API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a REST client for one platform. The base URL is
// the platform root, e.g. "https://intel.example.com".
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{},
		logger:  logger,
	}
}

// Search requests one page of the given collection.
func (c *Client) Search(ctx context.Context, q Query, page int) (*Page, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("size", strconv.Itoa(q.PageSize))
	if q.Distinct {
		params.Set("distinct", "true")
	}
	endpoint := fmt.Sprintf("%s/api/v1/search/%s?%s", c.baseURL, url.PathEscape(q.Endpoint), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("searching %s page %d: %w", q.Endpoint, page, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("searching %s page %d: status %d: %s", q.Endpoint, page, resp.StatusCode, string(body))
	}

	var envelope Page
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding %s page %d: %w", q.Endpoint, page, err)
	}
	return &envelope, nil
}
