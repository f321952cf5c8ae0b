package watcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mshop/cart-agent/internal/domain"
	"github.com/mshop/cart-agent/internal/store"
)

type recordingCart struct {
	mu       sync.Mutex
	replaced [][]domain.CartLine
}

func (c *recordingCart) Replace(lines []domain.CartLine) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaced = append(c.replaced, lines)
}

func (c *recordingCart) snapshots() [][]domain.CartLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]domain.CartLine, len(c.replaced))
	copy(out, c.replaced)
	return out
}

func TestApply_ForeignOriginReplacesCart(t *testing.T) {
	cart := &recordingCart{}
	w := New(nil, "cart:events:u1", "origin-me", cart)

	lines := []domain.CartLine{{ProductID: 1, Quantity: 2}}
	payload, err := json.Marshal(store.ChangeEvent{Origin: "origin-other", Lines: lines})
	require.NoError(t, err)

	w.apply(payload)

	snaps := cart.snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, lines, snaps[0])
}

func TestApply_OwnOriginIsSkipped(t *testing.T) {
	cart := &recordingCart{}
	w := New(nil, "cart:events:u1", "origin-me", cart)

	payload, err := json.Marshal(store.ChangeEvent{
		Origin: "origin-me",
		Lines:  []domain.CartLine{{ProductID: 1, Quantity: 2}},
	})
	require.NoError(t, err)

	w.apply(payload)
	assert.Empty(t, cart.snapshots(), "own writes must not loop back")
}

func TestApply_EmptyEventClearsCart(t *testing.T) {
	cart := &recordingCart{}
	w := New(nil, "cart:events:u1", "origin-me", cart)

	payload, err := json.Marshal(store.ChangeEvent{Origin: "origin-other"})
	require.NoError(t, err)

	w.apply(payload)

	snaps := cart.snapshots()
	require.Len(t, snaps, 1)
	assert.Empty(t, snaps[0])
}

func TestApply_MalformedEventIsDropped(t *testing.T) {
	cart := &recordingCart{}
	w := New(nil, "cart:events:u1", "origin-me", cart)

	w.apply([]byte(`{"origin":`))
	assert.Empty(t, cart.snapshots())
}

func TestRun_MirrorsStoreWritesFromOtherContext(t *testing.T) {
	mr := miniredis.RunT(t)

	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer clientA.Close()
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer clientB.Close()

	// Two contexts share the same owner key with distinct origins.
	storeB := store.NewRedisStore(clientB, "u1", "origin-b")

	cart := &recordingCart{}
	w := New(clientA, storeB.Channel(), "origin-a", cart)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	lines := []domain.CartLine{{ProductID: 1, DisplayName: "Galaxy S25", Quantity: 2}}
	require.Eventually(t, func() bool {
		// Re-publish until the subscription is live; pub/sub has no replay.
		require.NoError(t, storeB.Save(ctx, lines))
		return len(cart.snapshots()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	snaps := cart.snapshots()
	assert.Equal(t, lines, snaps[len(snaps)-1])
}
