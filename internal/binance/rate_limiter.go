package binance

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultMaxWeight is the Binance Futures request weight budget per minute.
const DefaultMaxWeight = 2400

// ErrRateLimitBanned is returned when the IP ban outlasts the caller's context.
var ErrRateLimitBanned = errors.New("rate limit: IP banned by Binance")

// Endpoint weights for Binance Futures API
var endpointWeights = map[string]int{
	"/fapi/v2/positionRisk": 5,
	"/fapi/v1/leverage":     1,

	"/fapi/v1/order":         1,
	"/fapi/v1/openOrders":    1,
	"/fapi/v1/allOpenOrders": 1,

	"/fapi/v1/algoOrder":      1,
	"/fapi/v1/openAlgoOrders": 1,
	"/fapi/v1/algoOpenOrders": 1,

	"/fapi/v1/ticker/price": 1,
	"/fapi/v1/klines":       5,
	"/fapi/v1/exchangeInfo": 1,
}

// RateLimiter spreads request weight over the minute window and blocks while
// Binance has the IP banned.
type RateLimiter struct {
	mu sync.RWMutex

	limiter   *rate.Limiter
	maxWeight int
	logger    zerolog.Logger

	banUntil          time.Time
	consecutiveErrors int
}

// NewRateLimiter creates a limiter allowing maxWeight per minute.
func NewRateLimiter(maxWeight int) *RateLimiter {
	if maxWeight <= 0 {
		maxWeight = DefaultMaxWeight
	}
	perSecond := rate.Limit(float64(maxWeight) / 60)
	return &RateLimiter{
		limiter:   rate.NewLimiter(perSecond, maxWeight/10),
		maxWeight: maxWeight,
		logger:    zerolog.Nop(),
	}
}

// SetLogger attaches a logger for ban and usage warnings.
func (r *RateLimiter) SetLogger(l zerolog.Logger) {
	r.mu.Lock()
	r.logger = l.With().Str("component", "rate-limiter").Logger()
	r.mu.Unlock()
}

// Wait blocks until the endpoint's weight is available.
func (r *RateLimiter) Wait(ctx context.Context, endpoint string) error {
	r.mu.RLock()
	banUntil := r.banUntil
	r.mu.RUnlock()

	if wait := time.Until(banUntil); wait > 0 {
		if deadline, ok := ctx.Deadline(); ok && deadline.Before(banUntil) {
			return fmt.Errorf("%w until %s", ErrRateLimitBanned, banUntil.Format("15:04:05"))
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	return r.limiter.WaitN(ctx, endpointWeight(endpoint))
}

// RecordRateLimitError opens the ban window. banUntil is zero when Binance
// did not say how long; the window then grows with consecutive errors.
func (r *RateLimiter) RecordRateLimitError(banUntil time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.consecutiveErrors++
	if banUntil.IsZero() {
		backoff := time.Duration(1<<uint(r.consecutiveErrors-1)) * time.Second
		if backoff > 2*time.Minute {
			backoff = 2 * time.Minute
		}
		banUntil = time.Now().Add(backoff)
	}
	if banUntil.After(r.banUntil) {
		r.banUntil = banUntil
	}

	r.logger.Warn().
		Time("ban_until", r.banUntil).
		Int("consecutive_errors", r.consecutiveErrors).
		Msg("Rate limited by Binance, pausing requests")
}

// UpdateFromHeaders records the weight Binance reports as used this minute.
func (r *RateLimiter) UpdateFromHeaders(usedWeight1m int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consecutiveErrors > 0 && time.Now().After(r.banUntil) {
		r.consecutiveErrors = 0
	}

	usagePct := float64(usedWeight1m) / float64(r.maxWeight) * 100
	if usagePct > 80 {
		r.logger.Warn().
			Int("used_weight", usedWeight1m).
			Int("max_weight", r.maxWeight).
			Float64("usage_pct", usagePct).
			Msg("Request weight near limit")
	}
}

// BannedUntil returns the end of the current ban window, zero if none.
func (r *RateLimiter) BannedUntil() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if time.Now().After(r.banUntil) {
		return time.Time{}
	}
	return r.banUntil
}

func endpointWeight(endpoint string) int {
	if weight, ok := endpointWeights[endpoint]; ok {
		return weight
	}
	return 1
}

var banUntilPattern = regexp.MustCompile(`banned until (\d{13})`)

// ParseBanUntil extracts the ban expiry from a Binance -1003 message such as
// "Way too many requests; IP banned until 1766824120342."
func ParseBanUntil(msg string) time.Time {
	m := banUntilPattern.FindStringSubmatch(msg)
	if m == nil {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}
	}
	until := time.UnixMilli(ms)
	// Ignore stale or absurd values.
	if until.Before(time.Now()) || until.After(time.Now().Add(24*time.Hour)) {
		return time.Time{}
	}
	return until
}
