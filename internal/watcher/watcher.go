package watcher

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/mshop/cart-agent/internal/domain"
	"github.com/mshop/cart-agent/internal/store"
)

// CartApplier receives snapshots written by other local contexts.
type CartApplier interface {
	Replace(lines []domain.CartLine)
}

// Watcher subscribes to the store's change channel and mirrors writes made
// by other contexts into the in-memory cart. Events carrying this process's
// own origin are skipped, so local writes never loop back. Last writer wins;
// no conflict resolution happens here.
type Watcher struct {
	client  *redis.Client
	channel string
	origin  string
	cart    CartApplier
}

func New(client *redis.Client, channel, origin string, cart CartApplier) *Watcher {
	return &Watcher{
		client:  client,
		channel: channel,
		origin:  origin,
		cart:    cart,
	}
}

// Run consumes change events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	sub := w.client.Subscribe(ctx, w.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.apply([]byte(msg.Payload))
		}
	}
}

func (w *Watcher) apply(payload []byte) {
	var ev store.ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Printf("cart watcher: dropping malformed change event: %v", err)
		return
	}
	if ev.Origin == w.origin {
		return
	}
	// An event without lines means the snapshot was cleared elsewhere.
	w.cart.Replace(ev.Lines)
}
