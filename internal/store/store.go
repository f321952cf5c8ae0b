package store

import (
	"context"
	"errors"

	"github.com/mshop/cart-agent/internal/domain"
)

// Store persists the cart snapshot under a single fixed key. The snapshot is
// the whole ordered line list; partial updates do not exist at this layer.
type Store interface {
	Load(ctx context.Context) ([]domain.CartLine, error)
	Save(ctx context.Context, lines []domain.CartLine) error
	Clear(ctx context.Context) error
}

var (
	// ErrNotFound means no snapshot has been saved yet.
	ErrNotFound = errors.New("cart snapshot not found")
	// ErrCorrupt means a snapshot exists but cannot be decoded. The engine
	// treats this as an empty cart after logging.
	ErrCorrupt = errors.New("cart snapshot corrupt")
)

// ChangeEvent is published on every Save and Clear so other local contexts
// sharing the same store can mirror the change. Origin identifies the writing
// process; subscribers skip events carrying their own origin. An empty Lines
// slice means the snapshot was cleared.
type ChangeEvent struct {
	Origin string            `json:"origin"`
	Lines  []domain.CartLine `json:"lines,omitempty"`
}
