// Package enerflo is a read-only client for the Enerflo platform APIs:
// the v1 REST surface for customer lookups and the v2 GraphQL surface for
// deal detail. The sync only ever reads from Enerflo.
package enerflo

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

const (
	defaultV1BaseURL = "https://api.enerflo.io/v1"
	defaultV2BaseURL = "https://api.enerflo.io/v2/graphql"
)

// Client defines the Enerflo read operations the enrichment pass uses.
type Client interface {
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	GetDeal(ctx context.Context, dealID string) (*Deal, error)
}

// APIError is returned when Enerflo responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("enerflo: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithV1BaseURL overrides the v1 REST base URL.
func WithV1BaseURL(url string) Option {
	return func(c *httpClient) {
		c.v1BaseURL = url
	}
}

// WithV2BaseURL overrides the v2 GraphQL endpoint.
func WithV2BaseURL(url string) Option {
	return func(c *httpClient) {
		c.v2BaseURL = url
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
	apiKey    string
	orgID     string
	v1BaseURL string
	v2BaseURL string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates an Enerflo client. orgID is sent as the x-org header
// on GraphQL calls.
func NewClient(apiKey, orgID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:    apiKey,
		orgID:     orgID,
		v1BaseURL: defaultV1BaseURL,
		v2BaseURL: defaultV2BaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// GetCustomer fetches one customer via the v1 REST API. A 404 returns
// (nil, nil): a missing customer is an expected condition, not a failure.
func (c *httpClient) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "enerflo: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.v1BaseURL+"/customers/"+customerID, nil)
	if err != nil {
		return nil, eris.Wrap(err, "enerflo: create customer request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var customer Customer
	found, err := c.do(req, &customer)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("enerflo: get customer %s", customerID))
	}
	if !found {
		return nil, nil
	}
	return &customer, nil
}

// dealQuery asks for everything the enrichment patch can use in one round
// trip.
const dealQuery = `query GetDeal($dealId: ID!) {
  deal(id: $dealId) {
    id
    status
    submittedAt
    createdAt
    updatedAt
    salesRep { id name email }
    salesTeam { id name }
    leadOwner { id name }
    welcomeCall { id completed date duration recordingUrl agent outcome questions answers }
    notes { id content author createdAt category }
    financing { approved submitted signedDocs type productName productId lenderName status termMonths paymentStructure downPaymentMethod }
    siteSurvey { scheduled selection }
    additionalWork { needed types }
    contract { generated approvalEnabled noDocumentsToSign }
    shading { concerns }
    newMoveIn
    readyToSubmit
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type dealResponse struct {
	Data struct {
		Deal *Deal `json:"deal"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

// GetDeal fetches deal detail via the v2 GraphQL API. An unknown deal
// returns (nil, nil).
func (c *httpClient) GetDeal(ctx context.Context, dealID string) (*Deal, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "enerflo: rate limit wait")
	}

	buf, err := json.Marshal(graphqlRequest{
		Query:     dealQuery,
		Variables: map[string]any{"dealId": dealID},
	})
	if err != nil {
		return nil, eris.Wrap(err, "enerflo: marshal deal query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.v2BaseURL, bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "enerflo: create deal request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("x-org", c.orgID)
	req.Header.Set("Content-Type", "application/json")

	var resp dealResponse
	found, err := c.do(req, &resp)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("enerflo: get deal %s", dealID))
	}
	if !found {
		return nil, nil
	}
	if len(resp.Errors) > 0 {
		return nil, eris.Errorf("enerflo: graphql error for deal %s: %s", dealID, resp.Errors[0].Message)
	}
	return resp.Data.Deal, nil
}

// do executes req and decodes the body into out. The boolean is false for
// a 404 so callers can treat "not found" as absence.
func (c *httpClient) do(req *http.Request, out any) (bool, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return false, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, eris.Wrap(err, "decode response")
	}
	return true, nil
}
