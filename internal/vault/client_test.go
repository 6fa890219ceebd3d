package vault

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "root",
		MountPath:  "secret",
		SecretPath: "trading-bot/api-keys",
	}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestGetAPIKeyReadsAndCaches(t *testing.T) {
	var reads atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		reads.Add(1)
		assert.Equal(t, "/v1/secret/data/trading-bot/api-keys/main/binance_testnet", r.URL.Path)
		assert.Equal(t, "root", r.Header.Get("X-Vault-Token"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data": map[string]interface{}{
					"api_key":    "k",
					"secret_key": "s",
					"is_testnet": true,
				},
			},
		})
	})

	for i := 0; i < 2; i++ {
		key, err := c.GetAPIKey(context.Background(), "main", "binance", true)
		require.NoError(t, err)
		assert.Equal(t, "k", key.APIKey)
		assert.Equal(t, "s", key.SecretKey)
		assert.Equal(t, "binance", key.Exchange)
		assert.True(t, key.IsTestnet)
	}
	assert.EqualValues(t, 1, reads.Load())

	c.ClearCache()
	_, err := c.GetAPIKey(context.Background(), "main", "binance", true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, reads.Load())
}

func TestGetAPIKeyMissingOrIncomplete(t *testing.T) {
	missing := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[]}`))
	})
	_, err := missing.GetAPIKey(context.Background(), "main", "binance", false)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	partial := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"data":{"api_key":"k"}}}`))
	})
	_, err = partial.GetAPIKey(context.Background(), "main", "binance", false)
	assert.ErrorIs(t, err, ErrIncompleteKeys)
}

func TestStoreAPIKey(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, []string{http.MethodPut, http.MethodPost}, r.Method)
		assert.Equal(t, "/v1/secret/data/trading-bot/api-keys/main/binance_mainnet", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.StoreAPIKey(context.Background(), "main", APIKeyData{APIKey: "k", SecretKey: "s", Exchange: "binance"})
	require.NoError(t, err)
	assert.Equal(t, "k", body["data"].(map[string]interface{})["api_key"])

	key, err := c.GetAPIKey(context.Background(), "main", "binance", false)
	require.NoError(t, err, "served from cache after store")
	assert.Equal(t, "s", key.SecretKey)
}

func TestDisabledClient(t *testing.T) {
	c, err := NewClient(Config{}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
	assert.NoError(t, c.Health(context.Background()))

	_, err = c.GetAPIKey(context.Background(), "main", "binance", false)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.ErrorIs(t, c.StoreAPIKey(context.Background(), "main", APIKeyData{}), ErrDisabled)
}
