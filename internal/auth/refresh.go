package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

const defaultAccessTTL = 30 * time.Minute

// RefreshingProvider wraps a MemoryProvider and exchanges the refresh token
// for a new access token when the held one has expired. Concurrent callers
// collapse into a single refresh request.
type RefreshingProvider struct {
	inner   *MemoryProvider
	baseURL string
	client  *http.Client
	sfg     singleflight.Group
}

func NewRefreshingProvider(inner *MemoryProvider, baseURL string, client *http.Client) *RefreshingProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RefreshingProvider{
		inner:   inner,
		baseURL: baseURL,
		client:  client,
	}
}

func (p *RefreshingProvider) Token(ctx context.Context) (string, error) {
	if token, err := p.inner.Token(ctx); err == nil {
		return token, nil
	}

	refresh := p.inner.RefreshToken()
	if refresh == "" {
		return "", ErrNoToken
	}

	v, err, _ := p.sfg.Do("refresh", func() (interface{}, error) {
		// Another caller may have refreshed while we waited for the flight.
		if token, err := p.inner.Token(ctx); err == nil {
			return token, nil
		}
		return p.refresh(ctx, refresh)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Valid treats a held refresh token as a usable credential: the next Token
// call can turn it into an access token.
func (p *RefreshingProvider) Valid() bool {
	return p.inner.Valid() || p.inner.RefreshToken() != ""
}

func (p *RefreshingProvider) refresh(ctx context.Context, refreshToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/auth/refresh", nil)
	if err != nil {
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+refreshToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// A rejected refresh token is unrecoverable: drop the pair so the
		// user is prompted to log in again.
		p.inner.Clear()
		return "", ErrNoToken
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return "", ErrNoToken
	}

	p.inner.SetTokens(body.AccessToken, refreshToken, defaultAccessTTL)
	return body.AccessToken, nil
}
