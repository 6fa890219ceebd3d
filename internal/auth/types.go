package auth

import "time"

// RoleOperator is the only role the API knows about. An operator may inspect
// the bot and force-close the active position.
const RoleOperator = "operator"

// Config holds token settings
type Config struct {
	Secret              string
	AccessTokenDuration time.Duration
	Issuer              string
}

// Error types for authentication
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Common authentication errors
var (
	ErrInvalidToken = AuthError{Code: "INVALID_TOKEN", Message: "invalid or expired token"}
	ErrTokenExpired = AuthError{Code: "TOKEN_EXPIRED", Message: "token has expired"}
	ErrUnauthorized = AuthError{Code: "UNAUTHORIZED", Message: "unauthorized access"}
	ErrForbidden    = AuthError{Code: "FORBIDDEN", Message: "access forbidden"}
	ErrWeakSecret   = AuthError{Code: "WEAK_SECRET", Message: "jwt secret must be at least 32 bytes"}
)
