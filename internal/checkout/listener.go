package checkout

import (
	"context"
	"encoding/json"
	"log"

	"github.com/segmentio/kafka-go"
)

// CartDropper removes purchased lines from the local cart.
type CartDropper interface {
	DropLines(ctx context.Context, productIDs []int64)
}

// orderEvent is the order-completed message published by the marketplace.
type orderEvent struct {
	AccountID   int64   `json:"account_id"`
	SaleItemIDs []int64 `json:"sale_item_ids"`
}

// Listener consumes order-completed events and drops the purchased lines
// from the cart. The marketplace already removed them from the remote cart
// when the order was placed, so the drop is local only.
type Listener struct {
	reader    *kafka.Reader
	cart      CartDropper
	accountID int64
}

func NewListener(cart CartDropper, accountID int64, topic string, brokers ...string) *Listener {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "cart-agent-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return &Listener{reader: reader, cart: cart, accountID: accountID}
}

func (l *Listener) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("order listener: reading message failed: %v", err)
			}
			continue
		}
		l.process(ctx, m.Value)
	}
}

func (l *Listener) Close() {
	if err := l.reader.Close(); err != nil {
		log.Printf("order listener: closing reader failed: %v", err)
	}
}

func (l *Listener) process(ctx context.Context, payload []byte) {
	var ev orderEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Printf("order listener: dropping malformed event: %v", err)
		return
	}
	if ev.AccountID != l.accountID || len(ev.SaleItemIDs) == 0 {
		return
	}
	l.cart.DropLines(ctx, ev.SaleItemIDs)
}
