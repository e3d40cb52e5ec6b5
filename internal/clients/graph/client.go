// Package graph provides a Microsoft Graph client that exposes two
// SharePoint lists (identities and caches) through the record-store
// interfaces. It is the production backend; the local BadgerHold stores
// cover development and tests.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/geoscout/geoscout/internal/common"
)

const (
	DefaultBaseURL   = "https://graph.microsoft.com/v1.0"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second
)

// Client wraps the Graph list-items API for one SharePoint site.
type Client struct {
	baseURL        string
	siteID         string
	identityListID string
	cacheListID    string
	httpClient     *http.Client
	logger         *common.Logger
	limiter        *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client. Used by tests to point the
// client at a stub server without real credentials.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Graph client authenticating with the client-credentials
// flow against the given tenant.
func NewClient(cfg *common.GraphConfig, opts ...ClientOption) *Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	httpClient := cc.Client(context.Background())
	httpClient.Timeout = cfg.GetTimeout()

	c := &Client{
		baseURL:        DefaultBaseURL,
		siteID:         cfg.SiteID,
		identityListID: cfg.IdentityListID,
		cacheListID:    cfg.CacheListID,
		httpClient:     httpClient,
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:         common.NewSilentLogger(),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents a Graph API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Graph API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// listItem is the wire shape of a Graph list item with expanded fields.
type listItem struct {
	ID     string          `json:"id"`
	Fields json.RawMessage `json:"fields"`
}

type listItemPage struct {
	Value []listItem `json:"value"`
}

// do performs a rate-limited request with a JSON body and decodes the
// response into result (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Title is not an indexed column in either list
	req.Header.Set("Prefer", "HonorNonIndexedQueriesWarningMayFailRandomly")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("path", path).
			Msg("Graph request failed")
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(data),
			Endpoint:   path,
		}
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) itemsPath(listID string) string {
	return fmt.Sprintf("/sites/%s/lists/%s/items", c.siteID, listID)
}

// getItemByTitle fetches the single list item whose Title equals title.
// Returns (nil, nil) when no item matches.
func (c *Client) getItemByTitle(ctx context.Context, listID, selectFields, title string) (*listItem, error) {
	query := url.Values{}
	query.Set("expand", "fields(select="+selectFields+")")
	query.Set("$select", "id,fields")
	query.Set("$filter", fmt.Sprintf("fields/Title eq '%s'", title))

	var page listItemPage
	path := c.itemsPath(listID) + "?" + query.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	if len(page.Value) == 0 {
		return nil, nil
	}
	return &page.Value[0], nil
}
