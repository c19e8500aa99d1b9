package coincap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"coincap-trade-sim/internal/config"
	"coincap-trade-sim/internal/market"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://rest.coincap.io/v3"
	DefaultTimeout = 10 * time.Second
)

// QuoteClient fetches single asset prices.
type QuoteClient interface {
	Fetch(ctx context.Context, asset market.Asset) (market.Sample, error)
}

// FetchFailure describes why a quote could not be obtained. It is the only error type Fetch returns.
type FetchFailure struct {
	Asset  market.Asset
	Reason string
	Err    error
}

func (f *FetchFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", f.Asset, f.Reason, f.Err)
	}
	return fmt.Sprintf("fetch %s: %s", f.Asset, f.Reason)
}

func (f *FetchFailure) Unwrap() error { return f.Err }

// Client is a client for the CoinCap REST API.
// It implements the QuoteClient interface.
type Client struct {
	client     *resty.Client
	apiKey     string
	logger     *zap.Logger
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
}

// ensure Client implements the interface
var _ QuoteClient = (*Client)(nil)

// NewClient creates a new CoinCap client.
func NewClient(cfg *config.CoinCap, logger *zap.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if cfg.ApiKey == "" {
		logger.Warn("No CoinCap API key configured, requests are unauthenticated")
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	return &Client{
		client:     resty.New().SetBaseURL(baseURL),
		apiKey:     cfg.ApiKey,
		logger:     logger,
		limiter:    rate.NewLimiter(limit, burst),
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Second,
		now:        time.Now,
	}
}

// assetResponse is the body of GET /assets/{slug}.
type assetResponse struct {
	Data struct {
		ID       string `json:"id"`
		Symbol   string `json:"symbol"`
		PriceUsd string `json:"priceUsd"`
	} `json:"data"`
	Timestamp int64 `json:"timestamp"`
}

// Fetch returns the current USD price of asset. Every failure is reported as *FetchFailure.
func (c *Client) Fetch(ctx context.Context, asset market.Asset) (market.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := c.client.R().
		SetContext(ctx).
		SetPathParam("slug", string(asset)).
		SetHeader("Accept", "application/json").
		ForceContentType("application/json").
		SetResult(&assetResponse{})
	if c.apiKey != "" {
		req.SetAuthToken(c.apiKey)
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/assets/{slug}", req)
	if err != nil {
		return market.Sample{}, &FetchFailure{Asset: asset, Reason: "request failed", Err: err}
	}

	body, ok := resp.Result().(*assetResponse)
	if !ok || body == nil || body.Data.PriceUsd == "" {
		return market.Sample{}, &FetchFailure{Asset: asset, Reason: "malformed payload: missing priceUsd"}
	}
	price, err := decimal.NewFromString(body.Data.PriceUsd)
	if err != nil {
		return market.Sample{}, &FetchFailure{Asset: asset, Reason: "malformed payload: priceUsd is not a decimal", Err: err}
	}
	sample, err := market.NewSample(asset, price, c.now())
	if err != nil {
		return market.Sample{}, &FetchFailure{Asset: asset, Reason: "malformed payload", Err: err}
	}
	return sample, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	attempts := c.maxRetries + 1

	for i := 0; i < attempts; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
			return nil, err
		case resp != nil && resp.StatusCode() != 0 && !resp.IsError():
			// 2xx with a body that could not be decoded.
			return nil, fmt.Errorf("malformed payload: %w", err)
		case resp != nil && resp.StatusCode() != 0:
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			if !shouldRetry {
				return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
			err = fmt.Errorf("status %s", resp.Status())
		default:
			// Network or other client-side errors
			shouldRetry = true
		}

		if i == attempts-1 {
			break
		}
		if retryAfter == 0 {
			// Exponential backoff: 1x, 2x, 4x
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.backoff
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, err)
}
