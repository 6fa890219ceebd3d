package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Binance futures error codes the bot reacts to.
const (
	CodeDisconnected        = -1001
	CodeTooManyRequests     = -1003
	CodeTooManyOrders       = -1015
	CodeServiceShuttingDown = -1016
	CodeTimestampOutside    = -1021
	CodeCancelRejected      = -2011 // Unknown order sent
	CodeNoSuchOrder         = -2013 // Order does not exist
)

// APIError is a non-2xx response from the Binance API.
type APIError struct {
	Status int    `json:"-"`
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance API error (http %d, code %d): %s", e.Status, e.Code, e.Msg)
}

// parseAPIError builds an APIError from a response body; bodies that are not
// Binance error JSON keep the raw text as the message.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Msg == "" {
		apiErr.Msg = string(body)
	}
	return apiErr
}

// Retryable reports whether the request may succeed if sent again.
func (e *APIError) Retryable() bool {
	if e.Status == http.StatusTooManyRequests || e.Status >= 500 {
		return true
	}
	switch e.Code {
	case CodeDisconnected, CodeTooManyRequests, CodeTooManyOrders, CodeServiceShuttingDown, CodeTimestampOutside:
		return true
	}
	return false
}

// IsRateLimited reports whether the response means the IP is being throttled or banned.
func (e *APIError) IsRateLimited() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusTeapot || e.Code == CodeTooManyRequests
}

// ErrorCode extracts the Binance error code from err, or 0.
func ErrorCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
