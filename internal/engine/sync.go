package engine

import (
	"context"
	"log"

	"github.com/mshop/cart-agent/internal/domain"
	"github.com/mshop/cart-agent/internal/remote"
)

// Sync reconciles the local cart with the marketplace cart for the account.
// Local-only lines are pushed, remote-only lines are pulled, and a quantity
// conflict keeps the higher of the two values (the remote side is updated to
// match). Only one pass runs at a time; a call made while another pass is in
// flight returns immediately without queueing.
//
// Credential failures never surface as pass errors: they arm a single
// deferred retry instead. Any other per-line failure is logged and the pass
// completes with partial results.
func (e *Engine) Sync(ctx context.Context, accountID int64) error {
	if accountID == 0 {
		return nil
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer e.syncing.Store(false)

	if !e.tokens.Valid() {
		if e.retry.Arm(e.retryDelay, e.retryFn(accountID)) {
			log.Printf("cart sync deferred: waiting for credentials")
		}
		return nil
	}

	remoteLines, err := e.remote.List(ctx, accountID)
	if err != nil {
		if remote.IsAuth(err) {
			e.retry.Arm(e.authRetryDelay, e.retryFn(accountID))
			return nil
		}
		log.Printf("cart sync: listing remote cart failed: %v", err)
		return err
	}

	local := e.Lines()
	remoteByProduct := make(map[int64]remote.Line, len(remoteLines))
	for _, r := range remoteLines {
		remoteByProduct[r.SaleItemID] = r
	}

	merged := make([]domain.CartLine, 0, len(local)+len(remoteLines))
	authFailed := false

	for _, l := range local {
		r, ok := remoteByProduct[l.ProductID]
		if !ok {
			created, err := e.remote.Create(ctx, remote.LineRequest{
				AccountID:  accountID,
				SaleItemID: l.ProductID,
				Quantity:   l.Quantity,
				Note:       l.Note,
			})
			switch {
			case err == nil:
				l.RemoteID = &created.ID
			case remote.IsAuth(err):
				authFailed = true
				l.RemoteID = nil
			default:
				log.Printf("cart sync: pushing product %d failed: %v", l.ProductID, err)
				l.RemoteID = nil
			}
			merged = append(merged, l)
			continue
		}
		delete(remoteByProduct, l.ProductID)

		m := lineFromRemote(r)
		copyDisplayFields(&m, l)

		if l.Quantity > m.Quantity {
			m.Quantity = l.Quantity
			_, err := e.remote.Update(ctx, r.ID, remote.LineRequest{
				AccountID:  accountID,
				SaleItemID: l.ProductID,
				Quantity:   l.Quantity,
				Note:       m.Note,
			})
			switch {
			case err == nil:
			case remote.IsAuth(err):
				authFailed = true
			default:
				log.Printf("cart sync: updating product %d failed: %v", l.ProductID, err)
			}
		}
		merged = append(merged, m)
	}

	// Remote-only lines are pulled in the order the marketplace returned
	// them, after the locally known ones.
	for _, r := range remoteLines {
		if _, ok := remoteByProduct[r.SaleItemID]; ok {
			merged = append(merged, lineFromRemote(r))
		}
	}

	e.mu.Lock()
	e.lines = merged
	e.persistLocked(ctx)
	e.mu.Unlock()

	if authFailed {
		e.retry.Arm(e.authRetryDelay, e.retryFn(accountID))
	}
	return nil
}

// retryFn captures the account for a deferred re-sync. The fired retry runs
// a full pass; if everything has been reconciled in the meantime it simply
// finds nothing to push.
func (e *Engine) retryFn(accountID int64) func() {
	return func() {
		if err := e.Sync(context.Background(), accountID); err != nil {
			log.Printf("deferred cart sync failed: %v", err)
		}
	}
}

// lineFromRemote converts a marketplace cart line to the local shape. The
// display-only product snapshot fields stay empty; they exist only locally.
func lineFromRemote(r remote.Line) domain.CartLine {
	id := r.ID
	return domain.CartLine{
		ProductID:   r.SaleItemID,
		RemoteID:    &id,
		DisplayName: r.ItemDescription,
		UnitPrice:   r.PriceEach,
		Quantity:    r.Quantity,
		MaxQuantity: r.AvailableQuantity,
		SellerName:  r.SellerName,
		Note:        r.Note,
	}
}

// copyDisplayFields carries the local-only enrichments onto a remote-sourced
// line, field by field. Everything else on the merged line comes from the
// marketplace.
func copyDisplayFields(dst *domain.CartLine, src domain.CartLine) {
	dst.Selected = src.Selected
	dst.SellerID = src.SellerID
	dst.ImageURL = src.ImageURL
	dst.BrandName = src.BrandName
	dst.Color = src.Color
	dst.StorageGB = src.StorageGB
	dst.RAMGB = src.RAMGB
	dst.ScreenSizeInch = src.ScreenSizeInch
}
