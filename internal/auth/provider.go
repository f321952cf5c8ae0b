package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoToken means no usable access token is available right now. The engine
// reacts by deferring the sync, not by failing it.
var ErrNoToken = errors.New("no access token")

// TokenProvider supplies the bearer credential for marketplace calls.
type TokenProvider interface {
	// Token returns the current access token or ErrNoToken.
	Token(ctx context.Context) (string, error)
	// Valid reports whether a non-expired credential is currently held.
	Valid() bool
}

// StaticProvider returns a fixed token. Test helper.
type StaticProvider string

func (p StaticProvider) Token(context.Context) (string, error) {
	if p == "" {
		return "", ErrNoToken
	}
	return string(p), nil
}

func (p StaticProvider) Valid() bool { return p != "" }

// MemoryProvider holds the access/refresh token pair handed over by the
// login flow. Expiry is tracked locally; an expired access token counts as
// absent.
type MemoryProvider struct {
	mu      sync.RWMutex
	access  string
	refresh string
	expiry  time.Time
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{}
}

// SetTokens installs a fresh token pair. ttl is the access token lifetime.
func (p *MemoryProvider) SetTokens(access, refresh string, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.access = access
	p.refresh = refresh
	p.expiry = time.Now().Add(ttl)
}

// Clear drops both tokens, e.g. on logout.
func (p *MemoryProvider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.access = ""
	p.refresh = ""
	p.expiry = time.Time{}
}

func (p *MemoryProvider) Token(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.access == "" || time.Now().After(p.expiry) {
		return "", ErrNoToken
	}
	return p.access, nil
}

func (p *MemoryProvider) Valid() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.access != "" && time.Now().Before(p.expiry)
}

// RefreshToken returns the held refresh token, if any.
func (p *MemoryProvider) RefreshToken() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.refresh
}
