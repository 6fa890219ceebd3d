package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-trailing-bot/internal/vault"
)

type fakeCredentials struct {
	data    *vault.APIKeyData
	err     error
	account string
	testnet bool
}

func (f *fakeCredentials) GetAPIKey(_ context.Context, account, exchange string, isTestnet bool) (*vault.APIKeyData, error) {
	f.account, f.testnet = account, isTestnet
	return f.data, f.err
}

func TestFactoryUsesConfigKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "cfg-key", r.Header.Get("X-MBX-APIKEY"))
		fmt.Fprint(w, `[]`)
	}))
	t.Cleanup(srv.Close)

	src := &fakeCredentials{err: errors.New("must not be called")}
	f := NewClientFactory(FactoryConfig{APIKey: "cfg-key", SecretKey: "cfg-secret", BaseURL: srv.URL},
		WithCredentialSource(src, "main"))

	client, err := f.FuturesClient(context.Background())
	require.NoError(t, err)
	_, err = client.GetPositionRisk(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, src.account)
}

func TestFactoryFallsBackToVault(t *testing.T) {
	src := &fakeCredentials{data: &vault.APIKeyData{APIKey: "v-key", SecretKey: "v-secret"}}
	f := NewClientFactory(FactoryConfig{TestNet: true}, WithCredentialSource(src, "desk"))

	client, err := f.FuturesClient(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v-key", client.apiKey)
	assert.Equal(t, FuturesTestnetURL, client.baseURL)
	assert.Equal(t, "desk", src.account)
	assert.True(t, src.testnet)
}

func TestFactoryMissingCredentials(t *testing.T) {
	_, err := NewClientFactory(FactoryConfig{APIKey: "only-key"}).FuturesClient(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)

	src := &fakeCredentials{err: vault.ErrKeyNotFound}
	_, err = NewClientFactory(FactoryConfig{}, WithCredentialSource(src, "main")).FuturesClient(context.Background())
	assert.ErrorIs(t, err, vault.ErrKeyNotFound)

	src = &fakeCredentials{data: &vault.APIKeyData{APIKey: "k"}}
	_, err = NewClientFactory(FactoryConfig{}, WithCredentialSource(src, "main")).FuturesClient(context.Background())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
