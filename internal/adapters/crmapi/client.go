// Package crmapi is the HTTP client for the external CRM API.
package crmapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jbctechsolutions/listingsync/internal/application/ports"
	"github.com/jbctechsolutions/listingsync/internal/domain/record"
	"github.com/jbctechsolutions/listingsync/internal/infrastructure/config"
)

// Client implements ports.ExternalAPI over HTTP with a static bearer token.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
}

var _ ports.ExternalAPI = (*Client)(nil)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL for the client
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithToken sets the bearer token sent with every request
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new CRM API client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: "listingsync",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig creates a client from the api config section. The
// token is read from the environment variable the config names.
func NewClientFromConfig(cfg config.APIConfig) (*Client, error) {
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.TokenEnv)
	}
	opts := []ClientOption{WithBaseURL(cfg.BaseURL), WithToken(token)}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, WithUserAgent(cfg.UserAgent))
	}
	return NewClient(opts...), nil
}

// GetRecords returns one page of records. Filters are sent as filter[key].
func (c *Client) GetRecords(ctx context.Context, entity record.EntityType, filter ports.Filter, page, perPage int) (ports.Page, error) {
	endpoint, err := endpointFor(entity)
	if err != nil {
		return ports.Page{}, err
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))
	for k, v := range filter {
		q.Set("filter["+k+"]", v)
	}

	body, err := c.do(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return ports.Page{}, err
	}
	if !gjson.ValidBytes(body) {
		return ports.Page{}, fmt.Errorf("decoding response: invalid JSON")
	}
	return parsePage(body, page, perPage), nil
}

func parsePage(body []byte, page, perPage int) ports.Page {
	var out ports.Page
	results := gjson.GetBytes(body, pathResults)
	if !results.Exists() {
		results = gjson.GetBytes(body, pathData)
	}
	results.ForEach(func(_, v gjson.Result) bool {
		if v.IsObject() {
			out.Results = append(out.Results, record.External(v.Raw))
		}
		return true
	})

	p := ports.Pagination{
		Page:       intOr(gjson.GetBytes(body, pathPage), page),
		PerPage:    intOr(gjson.GetBytes(body, pathPerPage), perPage),
		Total:      intOr(gjson.GetBytes(body, pathTotal), len(out.Results)),
		TotalPages: intOr(gjson.GetBytes(body, pathTotalPages), 1),
	}
	if next := gjson.GetBytes(body, pathNextPage); next.Exists() {
		p.NextPage = int(next.Int())
	} else if p.Page < p.TotalPages {
		p.NextPage = p.Page + 1
	}
	out.Pagination = p
	return out
}

func intOr(r gjson.Result, fallback int) int {
	if !r.Exists() || r.Type == gjson.Null {
		return fallback
	}
	return int(r.Int())
}

// UpdateRecord sends payload for an existing record. A 2xx answer means the
// API accepted it; a 4xx answer is a refusal explained by the error.
func (c *Client) UpdateRecord(ctx context.Context, entity record.EntityType, externalID string, payload record.External) (bool, error) {
	endpoint, err := endpointFor(entity)
	if err != nil {
		return false, err
	}
	if _, err := c.do(ctx, http.MethodPut, endpoint+"/"+url.PathEscape(externalID), payload); err != nil {
		return false, err
	}
	return true, nil
}

// SearchLocations looks up locations by free text.
func (c *Client) SearchLocations(ctx context.Context, query string, perPage int) ([]ports.LocationSummary, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("perPage", strconv.Itoa(perPage))

	body, err := c.do(ctx, http.MethodGet, EndpointLocations+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	results := gjson.GetBytes(body, pathData)
	if !results.Exists() {
		results = gjson.GetBytes(body, pathResults)
	}
	var out []ports.LocationSummary
	results.ForEach(func(_, v gjson.Result) bool {
		out = append(out, ports.LocationSummary{
			ID:   v.Get("id").String(),
			Name: localized(v.Get("name")),
			Path: localized(v.Get("path")),
			Type: v.Get("type").String(),
		})
		return true
	})
	return out, nil
}

// localized returns the English text of a string or {en, ar} value.
func localized(r gjson.Result) string {
	if r.IsObject() {
		return r.Get("en").String()
	}
	return r.String()
}

func endpointFor(entity record.EntityType) (string, error) {
	endpoint, ok := entityEndpoints[entity]
	if !ok {
		return "", fmt.Errorf("no API endpoint for entity %q", entity)
	}
	return endpoint, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.parseError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return data, nil
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// parseError extracts error information from a failed response
func (c *Client) parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &StatusError{StatusCode: resp.StatusCode, Message: "failed to read error body"}
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || (errResp.Detail == "" && errResp.Title == "" && len(errResp.Errors) == 0) {
		return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	msg := errResp.Detail
	if msg == "" {
		msg = errResp.Title
	}
	for _, fe := range errResp.Errors {
		part := fe.Field + ": " + fe.Detail
		if msg == "" {
			msg = part
		} else {
			msg += "; " + part
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
