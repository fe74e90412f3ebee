// Package explorer submits contract source verification to Etherscan-compatible block explorers.
package explorer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrInvalidRequest is returned for requests the explorer can never accept.
// Retrying them is pointless.
var ErrInvalidRequest = errors.New("invalid verification request")

// Status is the outcome of a verification submission
type Status string

const (
	StatusVerified        Status = "verified"
	StatusAlreadyVerified Status = "already_verified"
	StatusRateLimited     Status = "rate_limited"
	StatusNotIndexed      Status = "not_indexed" // bytecode not seen by the explorer yet
	StatusFailed          Status = "failed"
)

// Request describes one contract to verify
type Request struct {
	APIURL          string
	ChainID         int64
	Address         string
	ContractName    string // "contracts/FundMe.sol:FundMe"
	CompilerVersion string // "v0.8.8+commit.dddeac2f"
	SourceCode      []byte // standard JSON input
	ConstructorArgs []byte // ABI-encoded
}

// Result is the explorer's verdict
type Result struct {
	Status  Status
	Message string
}

// Client talks to the Etherscan contract verification API
type Client struct {
	apiKey       string
	httpClient   *http.Client
	limiter      *rate.Limiter
	pollInterval time.Duration
	maxPolls     int
	logger       *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRateLimit throttles outgoing requests. Free Etherscan keys allow 5 requests per second.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(client *Client) {
		if requestsPerSecond <= 0 {
			client.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		client.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// WithPolling sets how often and how many times a pending verification is checked
func WithPolling(interval time.Duration, maxPolls int) Option {
	return func(client *Client) {
		client.pollInterval = interval
		client.maxPolls = maxPolls
	}
}

// New creates a new explorer client
func New(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter:      rate.NewLimiter(rate.Limit(4), 1),
		pollInterval: 5 * time.Second,
		maxPolls:     24,
		logger:       logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// response is the envelope every Etherscan endpoint returns
type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (r *response) resultString() string {
	var s string
	if err := json.Unmarshal(r.Result, &s); err == nil {
		return s
	}
	return string(r.Result)
}

// Submit sends the source for verification and waits for the verdict. Transport
// failures and exhausted polling come back as errors and may be retried.
func (c *Client) Submit(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	form := url.Values{}
	form.Set("apikey", c.apiKey)
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("chainid", strconv.FormatInt(req.ChainID, 10))
	form.Set("contractaddress", req.Address)
	form.Set("sourceCode", string(req.SourceCode))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("contractname", req.ContractName)
	form.Set("compilerversion", req.CompilerVersion)
	// Etherscan spells this parameter with the typo
	form.Set("constructorArguements", hex.EncodeToString(req.ConstructorArgs))

	resp, err := c.call(ctx, http.MethodPost, req.APIURL, form)
	if err != nil {
		return Result{}, err
	}

	msg := resp.resultString()
	if resp.Status != "1" {
		res := classify(msg)
		c.logger.Debug("verification rejected", "address", req.Address, "status", res.Status, "message", msg)
		return res, nil
	}

	c.logger.Debug("verification submitted", "address", req.Address, "guid", msg)
	return c.poll(ctx, req, msg)
}

func (c *Client) poll(ctx context.Context, req Request, guid string) (Result, error) {
	query := url.Values{}
	query.Set("apikey", c.apiKey)
	query.Set("module", "contract")
	query.Set("action", "checkverifystatus")
	query.Set("chainid", strconv.FormatInt(req.ChainID, 10))
	query.Set("guid", guid)

	for i := 0; i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		resp, err := c.call(ctx, http.MethodGet, req.APIURL, query)
		if err != nil {
			return Result{}, err
		}

		msg := resp.resultString()
		if isPending(msg) {
			continue
		}
		res := classify(msg)
		if res.Status == StatusRateLimited {
			continue
		}
		if resp.Status == "1" && res.Status == StatusFailed {
			// "Pass - Verified" and other success wording
			res = Result{Status: StatusVerified, Message: msg}
		}
		return res, nil
	}

	return Result{}, fmt.Errorf("verification %s still pending after %d checks", guid, c.maxPolls)
}

func (c *Client) call(ctx context.Context, method, apiURL string, params url.Values) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var httpReq *http.Request
	var err error
	if method == http.MethodPost {
		httpReq, err = http.NewRequestWithContext(ctx, method, apiURL, strings.NewReader(params.Encode()))
		if err == nil {
			httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, apiURL+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return &response{Status: "0", Result: json.RawMessage(`"Max rate limit reached"`)}, nil
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("explorer returned HTTP %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrInvalidRequest, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding explorer response: %w", err)
	}
	return &out, nil
}

func validateRequest(req Request) error {
	switch {
	case req.APIURL == "":
		return fmt.Errorf("%w: no explorer API URL for chain %d", ErrInvalidRequest, req.ChainID)
	case req.Address == "":
		return fmt.Errorf("%w: address is required", ErrInvalidRequest)
	case len(req.SourceCode) == 0:
		return fmt.Errorf("%w: source code is required", ErrInvalidRequest)
	case req.CompilerVersion == "":
		return fmt.Errorf("%w: compiler version is required", ErrInvalidRequest)
	}
	return nil
}

func isPending(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "pending")
}

func classify(msg string) Result {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "already verified"):
		return Result{Status: StatusAlreadyVerified, Message: msg}
	case strings.Contains(lower, "rate limit"):
		return Result{Status: StatusRateLimited, Message: msg}
	case strings.Contains(lower, "unable to locate contractcode"),
		strings.Contains(lower, "does not have bytecode"):
		return Result{Status: StatusNotIndexed, Message: msg}
	case strings.HasPrefix(lower, "pass"):
		return Result{Status: StatusVerified, Message: msg}
	}
	return Result{Status: StatusFailed, Message: msg}
}
