package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRequest(apiURL string) Request {
	return Request{
		APIURL:          apiURL,
		ChainID:         4,
		Address:         "0x1111111111111111111111111111111111111111",
		ContractName:    "contracts/FundMe.sol:FundMe",
		CompilerVersion: "v0.8.8+commit.dddeac2f",
		SourceCode:      []byte(`{"language":"Solidity"}`),
		ConstructorArgs: []byte{0xab, 0xcd},
	}
}

func newTestClient() *Client {
	return New("test-key", testLogger(), WithPolling(time.Millisecond, 5), WithRateLimit(0))
}

func writeJSON(w http.ResponseWriter, status, result string) {
	json.NewEncoder(w).Encode(map[string]string{"status": status, "message": "OK", "result": result})
}

func TestClient_SubmitVerified(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			assert.NoError(t, r.ParseForm())
			assert.Equal(t, "verifysourcecode", r.PostForm.Get("action"))
			assert.Equal(t, "test-key", r.PostForm.Get("apikey"))
			assert.Equal(t, "0x1111111111111111111111111111111111111111", r.PostForm.Get("contractaddress"))
			assert.Equal(t, "contracts/FundMe.sol:FundMe", r.PostForm.Get("contractname"))
			assert.Equal(t, "abcd", r.PostForm.Get("constructorArguements"))
			assert.Equal(t, "solidity-standard-json-input", r.PostForm.Get("codeformat"))
			writeJSON(w, "1", "guid-123")
		case http.MethodGet:
			assert.Equal(t, "checkverifystatus", r.URL.Query().Get("action"))
			assert.Equal(t, "guid-123", r.URL.Query().Get("guid"))
			if polls.Add(1) < 3 {
				writeJSON(w, "0", "Pending in queue")
				return
			}
			writeJSON(w, "1", "Pass - Verified")
		}
	}))
	defer server.Close()

	res, err := newTestClient().Submit(context.Background(), testRequest(server.URL))
	require.NoError(t, err)
	assert.Equal(t, StatusVerified, res.Status)
	assert.Equal(t, int32(3), polls.Load())
}

func TestClient_SubmitOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		submitCode string
		submitMsg  string
		pollMsg    string
		want       Status
	}{
		{"already verified on submit", "0", "Contract source code already verified", "", StatusAlreadyVerified},
		{"rate limited on submit", "0", "Max rate limit reached", "", StatusRateLimited},
		{"rejected on submit", "0", "Invalid constructor arguments", "", StatusFailed},
		{"not indexed on submit", "0", "Unable to locate ContractCode at 0x1234567890abcdef1234567890abcdef12345678", "", StatusNotIndexed},
		{"already verified on poll", "1", "guid", "Already Verified", StatusAlreadyVerified},
		{"failed on poll", "1", "guid", "Fail - Unable to verify", StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPost {
					writeJSON(w, tt.submitCode, tt.submitMsg)
					return
				}
				writeJSON(w, "0", tt.pollMsg)
			}))
			defer server.Close()

			res, err := newTestClient().Submit(context.Background(), testRequest(server.URL))
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestClient_TransportErrors(t *testing.T) {
	t.Run("server error is retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestClient().Submit(context.Background(), testRequest(server.URL))
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrInvalidRequest))
	})

	t.Run("too many requests maps to rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		res, err := newTestClient().Submit(context.Background(), testRequest(server.URL))
		require.NoError(t, err)
		assert.Equal(t, StatusRateLimited, res.Status)
	})

	t.Run("client error is permanent", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "forbidden", http.StatusForbidden)
		}))
		defer server.Close()

		_, err := newTestClient().Submit(context.Background(), testRequest(server.URL))
		assert.True(t, errors.Is(err, ErrInvalidRequest))
	})

	t.Run("polling gives up", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeJSON(w, "1", "guid")
				return
			}
			writeJSON(w, "0", "Pending in queue")
		}))
		defer server.Close()

		_, err := newTestClient().Submit(context.Background(), testRequest(server.URL))
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrInvalidRequest))
	})
}

func TestClient_InvalidRequest(t *testing.T) {
	c := newTestClient()

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"no api url", func(r *Request) { r.APIURL = "" }},
		{"no address", func(r *Request) { r.Address = "" }},
		{"no source", func(r *Request) { r.SourceCode = nil }},
		{"no compiler", func(r *Request) { r.CompilerVersion = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testRequest("http://127.0.0.1:1")
			tt.mutate(&req)
			_, err := c.Submit(context.Background(), req)
			assert.True(t, errors.Is(err, ErrInvalidRequest))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, StatusVerified, classify("Pass - Verified").Status)
	assert.Equal(t, StatusAlreadyVerified, classify("Already Verified").Status)
	assert.Equal(t, StatusRateLimited, classify("Max rate limit reached, please use API Key for higher rate limit").Status)
	assert.Equal(t, StatusFailed, classify("Fail - Unable to verify").Status)
	assert.Equal(t, StatusNotIndexed, classify("Unable to locate ContractCode at 0x8A753747A1Fa494EC906cE90E9f37563A8AF630e").Status)
	assert.Equal(t, StatusNotIndexed, classify("Contract source code not verified: address does not have bytecode").Status)
}
