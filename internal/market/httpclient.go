package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/quilan1/ffxiv-market-query/internal/metrics"
)

// BreakerClient implements HTTPGet against a real HTTP client, wrapped
// in a circuit breaker per fetch kind. The breaker trips after a run of
// consecutive failures and short-circuits new attempts for a cooldown
// window; this acts across requests and time, on top of (not instead
// of) the Worker's own bounded per-fetch retry loop.
type BreakerClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient builds a BreakerClient named for diagnostics (e.g.
// "universalis-listing", "universalis-history").
func NewBreakerClient(name string, timeout time.Duration) *BreakerClient {
	gauge := metrics.CircuitBreakerState.WithLabelValues(name)
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			gauge.Set(float64(to))
		},
	}
	return &BreakerClient{
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Get satisfies HTTPGet.
func (c *BreakerClient) Get(ctx context.Context, url string) (string, error) {
	v, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("universalis: unexpected status %d", resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return string(body), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
