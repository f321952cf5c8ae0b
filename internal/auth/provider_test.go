package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryProvider_Lifecycle(t *testing.T) {
	p := NewMemoryProvider()
	ctx := context.Background()

	assert.False(t, p.Valid())
	_, err := p.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	p.SetTokens("acc", "ref", time.Minute)
	assert.True(t, p.Valid())
	tok, err := p.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acc", tok)
	assert.Equal(t, "ref", p.RefreshToken())

	p.Clear()
	assert.False(t, p.Valid())
	_, err = p.Token(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestMemoryProvider_Expiry(t *testing.T) {
	p := NewMemoryProvider()
	p.SetTokens("acc", "ref", -time.Second) // already expired

	assert.False(t, p.Valid())
	_, err := p.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestRefreshingProvider_RefreshesExpiredToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		assert.Equal(t, "Bearer ref-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "acc-2"})
	}))
	defer srv.Close()

	inner := NewMemoryProvider()
	inner.SetTokens("acc-1", "ref-1", -time.Second)
	p := NewRefreshingProvider(inner, srv.URL, nil)

	assert.True(t, p.Valid(), "a held refresh token counts as a credential")

	tok, err := p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acc-2", tok)
	assert.Equal(t, int32(1), calls.Load())

	// The refreshed token is now held; no second round trip.
	tok, err = p.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acc-2", tok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRefreshingProvider_RejectedRefreshClearsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	inner := NewMemoryProvider()
	inner.SetTokens("acc-1", "ref-1", -time.Second)
	p := NewRefreshingProvider(inner, srv.URL, nil)

	_, err := p.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Empty(t, inner.RefreshToken())
	assert.False(t, p.Valid())
}

func TestRefreshingProvider_NoRefreshToken(t *testing.T) {
	p := NewRefreshingProvider(NewMemoryProvider(), "http://unused", nil)

	assert.False(t, p.Valid())
	_, err := p.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}
