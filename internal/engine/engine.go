package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mshop/cart-agent/internal/auth"
	"github.com/mshop/cart-agent/internal/domain"
	"github.com/mshop/cart-agent/internal/remote"
	"github.com/mshop/cart-agent/internal/store"
)

// Warning reports that a requested quantity was clamped to the inventory
// ceiling. It is returned to the caller instead of being presented directly;
// the UI layer decides how to surface it.
type Warning struct {
	ProductID int64 `json:"productId"`
	Requested int   `json:"requested"`
	Allowed   int   `json:"allowed"`
}

// Config tunes the deferred-retry backoffs. Zero values pick the defaults.
type Config struct {
	// RetryDelay is the backoff used when a sync is deferred because no
	// credential is available yet.
	RetryDelay time.Duration
	// AuthRetryDelay is the slightly longer backoff used when a sync pass
	// hit credential rejections mid-flight.
	AuthRetryDelay time.Duration
}

const (
	defaultRetryDelay     = 3 * time.Second
	defaultAuthRetryDelay = 5 * time.Second
)

// Engine owns the in-memory cart. It is the single instance the whole
// application shares; construct it once and inject it. All mutations persist
// to the local store before returning. Remote interaction is best-effort:
// failures are logged (or deferred, for credential failures) and never undo
// the local change.
type Engine struct {
	mu    sync.Mutex
	lines []domain.CartLine

	store  store.Store
	remote remote.Client
	tokens auth.TokenProvider

	syncing atomic.Bool
	retry   *retryScheduler
	loadSF  singleflight.Group

	retryDelay     time.Duration
	authRetryDelay time.Duration
}

func New(st store.Store, rc remote.Client, tokens auth.TokenProvider, cfg Config) *Engine {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.AuthRetryDelay <= 0 {
		cfg.AuthRetryDelay = defaultAuthRetryDelay
	}
	return &Engine{
		store:          st,
		remote:         rc,
		tokens:         tokens,
		retry:          newRetryScheduler(),
		retryDelay:     cfg.RetryDelay,
		authRetryDelay: cfg.AuthRetryDelay,
	}
}

// Load hydrates the cart from the local store. Concurrent callers collapse
// into a single store read. A corrupt snapshot resets the cart to empty.
func (e *Engine) Load(ctx context.Context) error {
	_, err, _ := e.loadSF.Do("load", func() (interface{}, error) {
		lines, err := e.store.Load(ctx)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				lines = nil
			} else if errors.Is(err, store.ErrCorrupt) {
				log.Printf("cart snapshot unreadable, starting empty: %v", err)
				lines = nil
			} else {
				return nil, err
			}
		}
		e.mu.Lock()
		e.lines = lines
		e.mu.Unlock()
		return nil, nil
	})
	return err
}

// Lines returns a copy of the current cart in order.
func (e *Engine) Lines() []domain.CartLine {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.CartLine, len(e.lines))
	copy(out, e.lines)
	return out
}

// Totals computes the derived aggregates over the current cart.
func (e *Engine) Totals() domain.Totals {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.Aggregate(e.lines)
}

// AddLine merges quantity into an existing line for the product or appends a
// new one, clamped to the product's available stock. With an account present
// the change is pushed to the marketplace: an update for an already-synced
// line, a create for a new one (the returned remote id is captured; a failed
// create leaves the line local-only until the next sync).
func (e *Engine) AddLine(ctx context.Context, p domain.Product, quantity int, accountID int64, note string) *Warning {
	e.mu.Lock()
	if idx := e.findLocked(p.ID); idx >= 0 {
		line := &e.lines[idx]
		requested := line.Quantity + quantity
		newQuantity, clamped := domain.ClampQuantity(requested, p.Available)
		line.Quantity = newQuantity
		if note != "" {
			line.Note = note
		}
		var warn *Warning
		if clamped {
			warn = &Warning{ProductID: p.ID, Requested: requested, Allowed: newQuantity}
		}
		remoteID := line.RemoteID
		req := e.updateRequestLocked(idx, accountID)
		e.persistLocked(ctx)
		e.mu.Unlock()

		if accountID != 0 && remoteID != nil {
			e.pushUpdate(ctx, p.ID, *remoteID, req)
		}
		return warn
	}
	e.mu.Unlock()

	newQuantity, clamped := domain.ClampQuantity(quantity, p.Available)
	var warn *Warning
	if clamped {
		warn = &Warning{ProductID: p.ID, Requested: quantity, Allowed: newQuantity}
	}

	// Create remotely first so the remote id lands on the appended line.
	var remoteID *int64
	if accountID != 0 {
		created, err := e.remote.Create(ctx, remote.LineRequest{
			AccountID:  accountID,
			SaleItemID: p.ID,
			Quantity:   newQuantity,
			Note:       note,
		})
		switch {
		case err == nil:
			remoteID = &created.ID
		case remote.IsAuth(err):
			// Stays local-only; the next sync re-creates it.
		default:
			log.Printf("remote create for product %d failed: %v", p.ID, err)
		}
	}

	line := p.Line(newQuantity)
	line.Note = note
	line.RemoteID = remoteID

	e.mu.Lock()
	// A concurrent add may have appended the product while the create was
	// in flight; merge instead of duplicating the line.
	if idx := e.findLocked(p.ID); idx >= 0 {
		existing := &e.lines[idx]
		merged, _ := domain.ClampQuantity(existing.Quantity+newQuantity, p.Available)
		existing.Quantity = merged
		if existing.RemoteID == nil {
			existing.RemoteID = remoteID
		}
	} else {
		e.lines = append(e.lines, line)
	}
	e.persistLocked(ctx)
	e.mu.Unlock()
	return warn
}

// RemoveLine drops the product's line. Absent lines are a no-op. The remote
// counterpart is deleted best-effort.
func (e *Engine) RemoveLine(ctx context.Context, productID, accountID int64) {
	e.mu.Lock()
	idx := e.findLocked(productID)
	if idx < 0 {
		e.mu.Unlock()
		return
	}
	remoteID := e.lines[idx].RemoteID
	e.lines = append(e.lines[:idx], e.lines[idx+1:]...)
	e.persistLocked(ctx)
	e.mu.Unlock()

	if accountID != 0 && remoteID != nil {
		if err := e.remote.Delete(ctx, *remoteID, accountID); err != nil && !remote.IsAuth(err) {
			log.Printf("remote delete for product %d failed: %v", productID, err)
		}
	}
}

// SetQuantity sets the line's quantity, clamped to its inventory ceiling.
// A non-positive quantity removes the line.
func (e *Engine) SetQuantity(ctx context.Context, productID int64, quantity int, accountID int64) *Warning {
	if quantity <= 0 {
		e.RemoveLine(ctx, productID, accountID)
		return nil
	}

	e.mu.Lock()
	idx := e.findLocked(productID)
	if idx < 0 {
		e.mu.Unlock()
		return nil
	}
	line := &e.lines[idx]
	newQuantity, clamped := domain.ClampQuantity(quantity, line.MaxQuantity)
	line.Quantity = newQuantity
	var warn *Warning
	if clamped {
		warn = &Warning{ProductID: productID, Requested: quantity, Allowed: newQuantity}
	}
	remoteID := line.RemoteID
	req := e.updateRequestLocked(idx, accountID)
	e.persistLocked(ctx)
	e.mu.Unlock()

	if accountID != 0 && remoteID != nil {
		e.pushUpdate(ctx, productID, *remoteID, req)
	}
	return warn
}

// SetNote replaces the line's free-text note and pushes it remotely
// best-effort.
func (e *Engine) SetNote(ctx context.Context, productID int64, note string, accountID int64) {
	e.mu.Lock()
	idx := e.findLocked(productID)
	if idx < 0 {
		e.mu.Unlock()
		return
	}
	e.lines[idx].Note = note
	remoteID := e.lines[idx].RemoteID
	req := e.updateRequestLocked(idx, accountID)
	e.persistLocked(ctx)
	e.mu.Unlock()

	if accountID != 0 && remoteID != nil {
		e.pushUpdate(ctx, productID, *remoteID, req)
	}
}

// ToggleSelected flips the partial-checkout flag. Local only.
func (e *Engine) ToggleSelected(ctx context.Context, productID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.findLocked(productID)
	if idx < 0 {
		return
	}
	e.lines[idx].Selected = !e.lines[idx].Selected
	e.persistLocked(ctx)
}

// Clear empties the cart and erases the persisted snapshot. The remote cart
// is left untouched so a later sync can restore it.
func (e *Engine) Clear(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = nil
	if err := e.store.Clear(ctx); err != nil {
		log.Printf("failed to clear cart snapshot: %v", err)
	}
}

// ClearSelected removes all selected lines. Local only.
func (e *Engine) ClearSelected(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.lines[:0]
	for _, l := range e.lines {
		if !l.Selected {
			kept = append(kept, l)
		}
	}
	e.lines = kept
	e.persistLocked(ctx)
}

// DropLines removes the given products without touching the remote cart.
// Used when an order completion reports lines as purchased.
func (e *Engine) DropLines(ctx context.Context, productIDs []int64) {
	drop := make(map[int64]bool, len(productIDs))
	for _, id := range productIDs {
		drop[id] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.lines[:0]
	for _, l := range e.lines {
		if !drop[l.ProductID] {
			kept = append(kept, l)
		}
	}
	e.lines = kept
	e.persistLocked(ctx)
}

// Replace swaps the in-memory cart for a snapshot written by another local
// context. It does not persist: the snapshot is already in the store, and
// re-saving would echo the change event back.
func (e *Engine) Replace(lines []domain.CartLine) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lines = lines
}

// Close stops any armed retry timer.
func (e *Engine) Close() {
	e.retry.Stop()
}

// pushUpdate pushes a line change to the marketplace. A credential rejection
// invalidates the cached remote id so the next sync re-creates the line;
// other failures are logged and dropped.
func (e *Engine) pushUpdate(ctx context.Context, productID, remoteID int64, req remote.LineRequest) {
	_, err := e.remote.Update(ctx, remoteID, req)
	if err == nil {
		return
	}
	if remote.IsAuth(err) {
		e.mu.Lock()
		if idx := e.findLocked(productID); idx >= 0 {
			e.lines[idx].RemoteID = nil
			e.persistLocked(ctx)
		}
		e.mu.Unlock()
		return
	}
	log.Printf("remote update for product %d failed: %v", productID, err)
}

func (e *Engine) updateRequestLocked(idx int, accountID int64) remote.LineRequest {
	l := e.lines[idx]
	return remote.LineRequest{
		AccountID:  accountID,
		SaleItemID: l.ProductID,
		Quantity:   l.Quantity,
		Note:       l.Note,
	}
}

func (e *Engine) findLocked(productID int64) int {
	for i := range e.lines {
		if e.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// persistLocked writes the snapshot synchronously. A failed write is logged,
// not propagated: memory stays the availability-first source of truth.
func (e *Engine) persistLocked(ctx context.Context) {
	if err := e.store.Save(ctx, e.lines); err != nil {
		log.Printf("failed to persist cart snapshot: %v", err)
	}
}
