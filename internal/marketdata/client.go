package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"dexpaper-trading-bot/config"
)

// feedGuard serialises a feed's requests behind its rate budget and trips
// a breaker after consecutive failures so a dead feed stops burning cycle
// time.
type feedGuard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newFeedGuard(name string, rps float64) *feedGuard {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &feedGuard{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *feedGuard) do(ctx context.Context, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("%w: %s breaker open", ErrFeedUnavailable, g.breaker.Name())
	}
	return err
}

// newHTTPClient builds the shared resty client: timeout plus a bounded
// retry budget for transport errors, 429s and 5xx answers.
func newHTTPClient(baseURL string, cfg config.MarketDataConfig) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
}

func checkResponse(resp *resty.Response) error {
	if resp.StatusCode() == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d", ErrFeedUnavailable, resp.StatusCode())
	}
	return nil
}

// parseFloat reads the string-encoded numbers the pool feed emits.
// Empty strings and nulls come back as 0.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseFloatPtr(s *string) float64 {
	if s == nil {
		return 0
	}
	return parseFloat(*s)
}
