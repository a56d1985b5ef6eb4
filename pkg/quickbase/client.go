// Package quickbase is a minimal client for the QuickBase records REST
// API (v1), covering the query and write operations the sync needs.
package quickbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the QuickBase REST API.
const defaultBaseURL = "https://api.quickbase.com/v1"

// Client defines the QuickBase operations used by the sync.
type Client interface {
	QueryRecords(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	WriteRecords(ctx context.Context, req WriteRequest) (*WriteResponse, error)
}

// QueryRequest is the body for POST /records/query.
type QueryRequest struct {
	From   string `json:"from"`
	Where  string `json:"where,omitempty"`
	Select []int  `json:"select,omitempty"`
}

// QueryResponse is the response from POST /records/query. Each record maps
// a field id (as a decimal string) to its wrapped value.
type QueryResponse struct {
	Data []map[string]FieldValue `json:"data"`
}

// FieldValue is QuickBase's value envelope.
type FieldValue struct {
	Value any `json:"value"`
}

// WriteRequest is the body for POST /records. Each row maps a field id to
// a wrapped value; a row carrying the table's record-id field updates that
// record, a row without it creates a new one.
type WriteRequest struct {
	To   string               `json:"to"`
	Data []map[int]FieldValue `json:"data"`
}

// WriteResponse is the response from POST /records.
type WriteResponse struct {
	Metadata WriteMetadata `json:"metadata"`
}

// WriteMetadata reports what the write did per record.
type WriteMetadata struct {
	CreatedRecordIDs []int               `json:"createdRecordIds"`
	UpdatedRecordIDs []int               `json:"updatedRecordIds"`
	LineErrors       map[string][]string `json:"lineErrors,omitempty"`
}

// APIError is returned when QuickBase responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quickbase: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second. Zero disables the
// limiter.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	realm   string
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a QuickBase client for one realm. realm is the
// hostname ("example.quickbase.com"), token a user token scoped to the
// destination table.
func NewClient(realm, token string, opts ...Option) Client {
	c := &httpClient{
		realm:   realm,
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) QueryRecords(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.post(ctx, "/records/query", req, &resp); err != nil {
		return nil, eris.Wrap(err, "quickbase: query records")
	}
	return &resp, nil
}

func (c *httpClient) WriteRecords(ctx context.Context, req WriteRequest) (*WriteResponse, error) {
	var resp WriteResponse
	if err := c.post(ctx, "/records", req, &resp); err != nil {
		return nil, eris.Wrap(err, "quickbase: write records")
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit wait")
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("QB-Realm-Hostname", c.realm)
	req.Header.Set("Authorization", "QB-USER-TOKEN "+c.token)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return eris.Wrap(err, "decode response")
		}
	}
	return nil
}
