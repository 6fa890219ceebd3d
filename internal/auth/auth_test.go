package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func newManager(t *testing.T) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(Config{Secret: secret, AccessTokenDuration: time.Hour})
	require.NoError(t, err)
	return m
}

func TestNewJWTManagerRejectsShortSecret(t *testing.T) {
	_, err := NewJWTManager(Config{Secret: "short"})
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestIssueAndValidate(t *testing.T) {
	m := newManager(t)
	token, exp, err := m.IssueToken("alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, RoleOperator, claims.Role)
}

func TestValidateRejects(t *testing.T) {
	m := newManager(t)
	token, _, err := m.IssueToken("alice")
	require.NoError(t, err)

	other, err := NewJWTManager(Config{Secret: secret + "x"})
	require.NoError(t, err)
	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = newManager(t).ValidateAccessToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	valid, _, err := m.IssueToken("ops")
	require.NoError(t, err)

	viewer := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    defaultIssuer,
			Audience:  []string{audience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	viewerToken, err := viewer.SignedString([]byte(secret))
	require.NoError(t, err)

	r := gin.New()
	r.GET("/guarded", Middleware(m), func(c *gin.Context) {
		c.String(http.StatusOK, GetSubject(c))
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"garbage", "Bearer abc", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"wrong role", "Bearer " + viewerToken, http.StatusForbidden, "operator role required"},
		{"valid", "Bearer " + valid, http.StatusOK, "ops"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}
