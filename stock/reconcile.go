/*
reconcile.go - Stock Reconciliation Engine

PURPOSE:
  Derives an item's aggregates, every entry's running-balance snapshot and
  every serial unit's availability by replaying the item's ledger from
  scratch. This is the single writer of TotalStock, AllocatedQuantity,
  LastModified, StockAfter and AllocatedAfter.

ALGORITHM:
  entries := non-undone entries by (OccurredAt, ID)
  total, allocated := 0, 0
  for each entry:
      IN:        total += quantity
      OUT:       total -= quantity
      ALLOCATED: allocated += allocated_quantity unless converted
      clamp both at 0
      entry.StockAfter, entry.AllocatedAfter = total, allocated

  Serial availability starts "all available" and follows the same order:
  IN marks its codes available, OUT and ALLOCATED mark them unavailable.

WHY FULL REPLAY:
  A backdated entry changes the snapshot of every later entry. Recomputing
  from scratch keeps snapshots and aggregates consistent for any insertion
  order.

SOFT-DELETE POLICY:
  After each pass, an item with TotalStock <= 0 that is older than the
  grace period and not already deleted is flagged IsDeleted. A pass never
  clears the flag; RestoreItem does.
*/
package stock

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// REPLAY - Pure computation
// =============================================================================

// ReplayResult is the outcome of replaying one item's ledger.
type ReplayResult struct {
	Totals       Totals
	Snapshots    []Snapshot      // one per non-undone entry, replay order
	Availability map[string]bool // serial code -> available
}

// Replay computes totals, snapshots and serial availability. It does not
// mutate its inputs.
func Replay(entries []Entry, units []SerialUnit) ReplayResult {
	ordered := make([]Entry, 0, len(entries))
	for _, en := range entries {
		if !en.Undone() {
			ordered = append(ordered, en)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].OccurredAt.Equal(ordered[j].OccurredAt) {
			return ordered[i].OccurredAt.Before(ordered[j].OccurredAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	avail := make(map[string]bool, len(units))
	for _, u := range units {
		avail[u.Code] = true
	}
	setAvail := func(codes []string, v bool) {
		for _, c := range codes {
			if _, ok := avail[c]; ok {
				avail[c] = v
			}
		}
	}

	res := ReplayResult{Snapshots: make([]Snapshot, 0, len(ordered)), Availability: avail}
	total, allocated := 0, 0
	for _, en := range ordered {
		switch en.Type {
		case EntryIn:
			total += en.Quantity
			setAvail(en.Serials, true)
		case EntryOut:
			total -= en.Quantity
			setAvail(en.Serials, false)
		case EntryAllocated:
			if !en.Converted() {
				allocated += en.AllocatedQuantity
			}
			setAvail(en.Serials, false)
		}
		total = max(total, 0)
		allocated = max(allocated, 0)
		res.Snapshots = append(res.Snapshots, Snapshot{EntryID: en.ID, StockAfter: total, AllocatedAfter: allocated})
	}
	res.Totals = Totals{TotalStock: total, AllocatedQuantity: allocated}
	return res
}

// =============================================================================
// SOFT-DELETE POLICY
// =============================================================================

// SoftDeletePolicy flags depleted items as deleted.
type SoftDeletePolicy struct {
	Grace time.Duration
}

// Apply sets IsDeleted when the policy triggers and reports whether it did.
func (p SoftDeletePolicy) Apply(item *Item, now time.Time) bool {
	if item.IsDeleted || item.TotalStock > 0 {
		return false
	}
	if now.Sub(item.CreatedAt) < p.Grace {
		return false
	}
	item.IsDeleted = true
	return true
}

// =============================================================================
// RECONCILE - Persisting pass
// =============================================================================

type reconciliation struct {
	Item    Item
	Totals  Totals
	Deleted bool // soft-deleted by this pass
}

// reconcile replays the item inside tx and persists every derived field.
func (e *Engine) reconcile(ctx context.Context, tx Store, itemID ItemID) (reconciliation, error) {
	item, err := tx.GetItem(ctx, itemID)
	if err != nil {
		return reconciliation{}, err
	}
	if item == nil {
		return reconciliation{}, itemNotFound(itemID)
	}
	entries, err := tx.Entries(ctx, itemID)
	if err != nil {
		return reconciliation{}, err
	}
	units, err := tx.Serials(ctx, itemID)
	if err != nil {
		return reconciliation{}, err
	}

	res := Replay(entries, units)

	if err := tx.SaveSnapshots(ctx, res.Snapshots); err != nil {
		return reconciliation{}, err
	}
	var nowAvail, nowUnavail []string
	for _, u := range units {
		want := res.Availability[u.Code]
		if want == u.Available {
			continue
		}
		if want {
			nowAvail = append(nowAvail, u.Code)
		} else {
			nowUnavail = append(nowUnavail, u.Code)
		}
	}
	registry := NewSerialRegistry(tx)
	if err := registry.MarkAvailable(ctx, itemID, nowAvail); err != nil {
		return reconciliation{}, err
	}
	if err := registry.MarkUnavailable(ctx, itemID, nowUnavail); err != nil {
		return reconciliation{}, err
	}

	now := e.Now()
	item.TotalStock = res.Totals.TotalStock
	item.AllocatedQuantity = res.Totals.AllocatedQuantity
	item.LastModified = now
	deleted := SoftDeletePolicy{Grace: e.Grace}.Apply(item, now)
	if err := tx.SaveItem(ctx, *item); err != nil {
		return reconciliation{}, err
	}

	if otx, ok := tx.(*observedTx); ok {
		otx.reconciled = append(otx.reconciled, reconciled{itemID, res.Totals, len(res.Snapshots), deleted})
	}
	return reconciliation{Item: *item, Totals: res.Totals, Deleted: deleted}, nil
}

// Reconcile replays one item's ledger and persists the result.
func (e *Engine) Reconcile(ctx context.Context, itemID ItemID) (Totals, error) {
	var totals Totals
	err := e.mutate(ctx, "reconcile", itemID, func(tx Store) error {
		rec, err := e.reconcile(ctx, tx, itemID)
		totals = rec.Totals
		return err
	})
	return totals, err
}
