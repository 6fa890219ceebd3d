package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// FuturesBaseURL is the production Binance Futures API URL
	FuturesBaseURL = "https://fapi.binance.com"
	// FuturesTestnetURL is the testnet Binance Futures API URL
	FuturesTestnetURL = "https://testnet.binancefuture.com"
)

// Retry configuration for API calls
const (
	defaultMaxRetries = 3
	baseRetryDelay    = 500 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
	recvWindow        = "10000"
)

// FuturesClientImpl implements the FuturesClient interface over the REST API
type FuturesClientImpl struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	maxRetries uint64
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures a FuturesClientImpl
type Option func(*FuturesClientImpl)

// WithBaseURL points the client at another host (testnet, httptest server).
func WithBaseURL(u string) Option {
	return func(c *FuturesClientImpl) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *FuturesClientImpl) { c.httpClient = hc }
}

// WithRateLimiter shares a limiter between clients.
func WithRateLimiter(l *RateLimiter) Option {
	return func(c *FuturesClientImpl) { c.limiter = l }
}

// WithMaxRetries sets how many times a retryable request is re-sent.
func WithMaxRetries(n uint64) Option {
	return func(c *FuturesClientImpl) { c.maxRetries = n }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *FuturesClientImpl) { c.logger = l.With().Str("component", "binance").Logger() }
}

// NewFuturesClient creates a new FuturesClient instance
func NewFuturesClient(apiKey, secretKey string, testnet bool, opts ...Option) *FuturesClientImpl {
	baseURL := FuturesBaseURL
	if testnet {
		baseURL = FuturesTestnetURL
	}

	// Trim any whitespace from keys - critical for signature generation
	c := &FuturesClientImpl{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    NewRateLimiter(DefaultMaxWeight),
		maxRetries: defaultMaxRetries,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ==================== HTTP HELPERS ====================

// sign creates a signature for the given query string
func (c *FuturesClientImpl) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// signParams encodes params with a fresh timestamp and appends the signature
func (c *FuturesClientImpl) signParams(params url.Values) string {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = v
	}
	signed.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	signed.Set("recvWindow", recvWindow)
	query := signed.Encode()
	return query + "&signature=" + c.sign(query)
}

func (c *FuturesClientImpl) publicGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, params, false)
}

func (c *FuturesClientImpl) signedGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, endpoint, params, true)
}

func (c *FuturesClientImpl) signedPost(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, endpoint, params, true)
}

func (c *FuturesClientImpl) signedDelete(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, endpoint, params, true)
}

// do sends one logical request. Reads retry on any transient failure; writes
// retry only when Binance refused them before acting (rate limit, -1001).
func (c *FuturesClientImpl) do(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = baseRetryDelay
	policy.MaxInterval = maxRetryDelay
	policy.MaxElapsedTime = 0

	attempt := 0
	op := func() ([]byte, error) {
		attempt++
		body, err := c.send(ctx, method, endpoint, params, signed)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil || !shouldRetry(method, err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().
			Err(err).
			Str("method", method).
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Dur("retry_in", wait).
			Msg("Binance request failed, retrying")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)
	return backoff.RetryNotifyWithData(op, b, notify)
}

func (c *FuturesClientImpl) send(ctx context.Context, method, endpoint string, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx, endpoint); err != nil {
		return nil, err
	}

	query := params.Encode()
	if signed {
		query = c.signParams(params)
	}
	reqURL := c.baseURL + endpoint
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: err}
	}

	if used := resp.Header.Get("X-MBX-USED-WEIGHT-1M"); used != "" {
		if weight, err := strconv.Atoi(used); err == nil {
			c.limiter.UpdateFromHeaders(weight)
		}
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := parseAPIError(resp.StatusCode, body)
		if apiErr.IsRateLimited() {
			c.limiter.RecordRateLimitError(ParseBanUntil(apiErr.Msg))
		}
		return nil, apiErr
	}
	return body, nil
}

// transportError marks failures below HTTP (dial, reset, timeout).
type transportError struct{ err error }

func (e *transportError) Error() string { return "binance transport: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func shouldRetry(method string, err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		// Transport failures on writes are ambiguous: the order may be live.
		var tErr *transportError
		return errors.As(err, &tErr) && method == http.MethodGet
	}
	if method == http.MethodGet {
		return apiErr.Retryable()
	}
	// -1001 on a write means the execution status is unknown.
	return apiErr.IsRateLimited()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	default:
		return 0
	}
}
