package coincap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"coincap-trade-sim/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	c := &Client{
		client:     resty.New().SetBaseURL(server.URL),
		apiKey:     "test_api_key",
		logger:     zap.NewNop(),
		limiter:    rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		timeout:    2 * time.Second,
		maxRetries: 1,
		backoff:    10 * time.Millisecond,
		now:        time.Now,
	}
	return c, server
}

func TestFetch(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/assets/bitcoin", r.URL.Path)
			assert.Equal(t, "Bearer test_api_key", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"id":"bitcoin","symbol":"BTC","priceUsd":"50000.123456"},"timestamp":1}`))
		})
		c, server := setupTestServer(handler)
		defer server.Close()

		s, err := c.Fetch(context.Background(), "bitcoin")
		require.NoError(t, err)
		assert.Equal(t, "bitcoin", s.Asset.String())
		assert.True(t, s.Value.Equal(decimal.RequireFromString("50000.123456")))
		assert.False(t, s.ObservedAt.IsZero())
	})

	t.Run("NotFoundIsNotRetried", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
		})
		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.Fetch(context.Background(), "bitcoin")
		var failure *FetchFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "bitcoin", failure.Asset.String())
		assert.Contains(t, err.Error(), "404")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("ServerErrorIsRetried", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"priceUsd":"3000"}}`))
		})
		c, server := setupTestServer(handler)
		defer server.Close()

		s, err := c.Fetch(context.Background(), "ethereum")
		require.NoError(t, err)
		assert.True(t, s.Value.Equal(decimal.NewFromInt(3000)))
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("RetriesExhausted", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.Fetch(context.Background(), "ethereum")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "request failed after 2 attempts")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("MalformedPayloads", func(t *testing.T) {
		bodies := map[string]string{
			"not json":      `<html>oops</html>`,
			"missing price": `{"data":{"id":"bitcoin"}}`,
			"not a number":  `{"data":{"priceUsd":"abc"}}`,
			"zero price":    `{"data":{"priceUsd":"0"}}`,
			"negative":      `{"data":{"priceUsd":"-1.5"}}`,
		}
		for name, body := range bodies {
			t.Run(name, func(t *testing.T) {
				handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte(body))
				})
				c, server := setupTestServer(handler)
				defer server.Close()

				_, err := c.Fetch(context.Background(), "bitcoin")
				var failure *FetchFailure
				assert.ErrorAs(t, err, &failure)
			})
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-time.After(time.Second):
			case <-r.Context().Done():
			}
		})
		c, server := setupTestServer(handler)
		defer server.Close()
		c.timeout = 50 * time.Millisecond

		start := time.Now()
		_, err := c.Fetch(context.Background(), "bitcoin")
		var failure *FetchFailure
		assert.ErrorAs(t, err, &failure)
		assert.Less(t, time.Since(start), 900*time.Millisecond)
	})
}

func TestNewClient(t *testing.T) {
	cfg := &config.CoinCap{ApiKey: "k", RateLimit: 5, RateLimitBurst: 2}
	c := NewClient(cfg, zap.NewNop())
	assert.NotNil(t, c)
	assert.Equal(t, "k", c.apiKey)
	assert.Equal(t, DefaultTimeout, c.timeout)
	assert.Equal(t, DefaultBaseURL, c.client.BaseURL)
}
