// Package pricing is the HTTP client for the routing/pricing engine. The
// engine returns quotes, routes and prepared transaction payloads; several
// of its endpoints report failures in the response body with a 200 status,
// so every call checks both the transport status and the payload error.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrNoRoute is returned when the engine finds no viable route for the
// requested pair and amount.
var ErrNoRoute = errors.New("no route available")

const defaultTimeout = 15 * time.Second

// Client talks to the routing/pricing API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a pricing client. The timeout covers the whole request;
// an exceeded timeout surfaces as a plain error, identical to any other
// failed fetch.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		log:     log.With().Str("component", "pricing").Logger(),
	}
}

// QuoteRequest is the request shape of the quote endpoint.
type QuoteRequest struct {
	ChainID     uint64 `json:"chainId"`
	PoolID      string `json:"poolId,omitempty"`
	FromToken   string `json:"fromToken"`
	ToToken     string `json:"toToken"`
	FromAmount  string `json:"fromAmount,omitempty"`
	ToAmount    string `json:"toAmount,omitempty"`
	IsFrom      bool   `json:"isFrom"`
	Signer      string `json:"signer,omitempty"`
	MaxSlippage string `json:"maxSlippage"`
}

// Hop is one pool hop of a quoted route.
type Hop struct {
	PoolID   string `json:"poolId"`
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
}

// TxPayload is a prepared transaction the wallet can submit as-is.
type TxPayload struct {
	To    string `json:"to"`
	Data  string `json:"data"` // hex encoded
	Value string `json:"value"`
}

// QuoteResponse is the response shape of the quote endpoint. Error is set
// instead of a non-2xx status on several engine-side failures.
type QuoteResponse struct {
	FromAmount   string     `json:"fromAmount"`
	ToAmount     string     `json:"toAmount"`
	ExpectedRate string     `json:"expectedRate"` // naive to-per-from rate before execution effects
	PriceImpact  string     `json:"priceImpact"`  // percent
	Route        []Hop      `json:"route"`
	Tx           *TxPayload `json:"tx,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// GetQuote asks the engine for the expected output, route and payload for a
// pair and amount. A zero-length route resolves to ErrNoRoute, never to an
// empty success.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	var resp QuoteResponse
	if err := c.post(ctx, "/v1/quote", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("quote rejected: %s", resp.Error)
	}
	if len(resp.Route) == 0 {
		return nil, ErrNoRoute
	}
	return &resp, nil
}

// USDRates fetches the USD rate for each token address. Missing tokens are
// absent from the result, not zero.
func (c *Client) USDRates(ctx context.Context, chainID uint64, tokens []string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("chainId", fmt.Sprintf("%d", chainID))
	q.Set("tokens", strings.Join(tokens, ","))

	var resp struct {
		Rates map[string]string `json:"rates"`
		Error string            `json:"error,omitempty"`
	}
	if err := c.get(ctx, "/v1/usd_rates?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("usd rates rejected: %s", resp.Error)
	}

	rates := make(map[string]decimal.Decimal, len(resp.Rates))
	for token, raw := range resp.Rates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			c.log.Warn().Str("token", token).Str("rate", raw).Msg("unparseable usd rate, skipping")
			continue
		}
		rates[strings.ToLower(token)] = rate
	}
	return rates, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pricing API unreachable: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("pricing request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Try to extract the actual error message from the body.
		bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr == nil && len(bodyBytes) > 0 {
			var errorResp map[string]any
			if jsonErr := json.Unmarshal(bodyBytes, &errorResp); jsonErr == nil {
				if message, ok := errorResp["message"].(string); ok {
					return fmt.Errorf("API error (status %d): %s", resp.StatusCode, message)
				}
				if message, ok := errorResp["error"].(string); ok {
					return fmt.Errorf("API error (status %d): %s", resp.StatusCode, message)
				}
			}
			return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(bodyBytes))
		}
		return fmt.Errorf("API returned status code %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
