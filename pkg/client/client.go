// Package client provides a Go client for the contraship read API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a contraship API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new contraship client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Deployment is a deployment record as served by the API
type Deployment struct {
	ContractName         string    `json:"contractName"`
	ChainID              int64     `json:"chainId"`
	Network              string    `json:"network,omitempty"`
	Address              string    `json:"address"`
	ConstructorArgs      []any     `json:"constructorArgs"`
	TxHash               string    `json:"txHash,omitempty"`
	Status               string    `json:"status"`
	BlockNumber          int64     `json:"blockNumber,omitempty"`
	Verified             bool      `json:"verified"`
	VerificationAttempts int       `json:"verificationAttempts"`
	Mock                 bool      `json:"mock,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Network is a registered network
type Network struct {
	ChainID        int64             `json:"chainId"`
	Name           string            `json:"name"`
	Development    bool              `json:"development"`
	Confirmations  uint64            `json:"confirmations"`
	KnownAddresses map[string]string `json:"knownAddresses,omitempty"`
	ExplorerAPIURL string            `json:"explorerApiUrl,omitempty"`
}

// ListOptions filters ListDeployments. Zero values mean no filter.
type ListOptions struct {
	ChainID      int64
	Status       string
	Verified     *bool
	IncludeMocks bool
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

// ListDeployments lists deployment records
func (c *Client) ListDeployments(ctx context.Context, opts ListOptions) ([]Deployment, error) {
	q := url.Values{}
	if opts.ChainID != 0 {
		q.Set("chain_id", strconv.FormatInt(opts.ChainID, 10))
	}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.Verified != nil {
		q.Set("verified", strconv.FormatBool(*opts.Verified))
	}
	if opts.IncludeMocks {
		q.Set("include_mocks", "true")
	}

	path := "/api/v1/deployments/"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Data []Deployment `json:"data"`
	}
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// GetDeployment gets the record of a contract on a chain
func (c *Client) GetDeployment(ctx context.Context, chainID int64, contract string) (*Deployment, error) {
	var resp Deployment
	path := fmt.Sprintf("/api/v1/deployments/%d/%s", chainID, url.PathEscape(contract))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetMockDeployment gets the mock deployed for dependency on a development network
func (c *Client) GetMockDeployment(ctx context.Context, chainID int64, dependency string) (*Deployment, error) {
	var resp Deployment
	path := fmt.Sprintf("/api/v1/deployments/%d/mock/%s", chainID, url.PathEscape(dependency))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListNetworks lists the networks the server knows
func (c *Client) ListNetworks(ctx context.Context) ([]Network, error) {
	var resp struct {
		Data []Network `json:"data"`
	}
	if err := c.get(ctx, "/api/v1/networks/", &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

func parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
