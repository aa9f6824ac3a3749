/*
reversal.go - Undo of a ledger entry

PURPOSE:
  Voids an entry without deleting it. The serial transition depends on the
  entry type, the entry is flagged undone, and the item is reconciled.

EFFECTS BY TYPE:
  IN:         serial units introduced by the entry are deleted; codes
              another active IN of the item also names are kept and
              left to the replay
  OUT:        its serials become available again
  OUT from a conversion:
              the source ALLOCATED entry goes back to active and the
              serials stay unavailable (reserved again)
  ALLOCATED:  nothing direct; the replay frees serials no longer reserved

GUARDS:
  - Undone entries cannot be undone again (ErrAlreadyUndone)
  - Converted ALLOCATED entries cannot be undone (ErrConvertedEntry);
    undo the OUT produced by the conversion first
*/
package stock

import (
	"context"
	"fmt"
)

// Undo voids an entry and reconciles its item.
func (e *Engine) Undo(ctx context.Context, entryID EntryID, actor string) (Result, error) {
	itemID, err := e.entryItem(ctx, entryID)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = e.mutate(ctx, "undo", itemID, func(tx Store) error {
		entry, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if entry == nil {
			return entryNotFound(entryID)
		}
		switch {
		case entry.Undone():
			return ErrAlreadyUndone
		case entry.Converted():
			return ErrConvertedEntry
		}

		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return itemNotFound(itemID)
		}

		registry := NewSerialRegistry(tx)
		switch entry.Type {
		case EntryIn:
			codes, err := introducedOnlyBy(ctx, tx, *entry)
			if err != nil {
				return err
			}
			if err := registry.Remove(ctx, itemID, codes); err != nil {
				return err
			}
		case EntryOut:
			if entry.ConvertedFrom != nil {
				if err := reopenAllocation(ctx, tx, *entry.ConvertedFrom); err != nil {
					return err
				}
				if err := registry.MarkUnavailable(ctx, itemID, entry.Serials); err != nil {
					return err
				}
			} else if err := registry.MarkAvailable(ctx, itemID, entry.Serials); err != nil {
				return err
			}
		}

		if err := tx.SetEntryStatus(ctx, entryID, StatusUndone); err != nil {
			return err
		}
		rec, err := e.reconcile(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if err := e.audit(ctx, tx, AuditEntry{
			ItemID:        itemID,
			Actor:         actor,
			Action:        AuditUndo,
			Quantity:      entry.Amount(),
			PreviousStock: item.TotalStock,
			NewStock:      rec.Totals.TotalStock,
			Remarks:       fmt.Sprintf("undo %s entry %s", entry.Type, entry.ID),
		}); err != nil {
			return err
		}

		stored, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		res = Result{Entry: *stored, Totals: rec.Totals, Deleted: rec.Deleted}
		return nil
	})
	return res, err
}

// introducedOnlyBy returns the codes of an IN entry that no other active IN
// of the same item names. A returned unit re-received by a second IN keeps
// its row when only the return is undone.
func introducedOnlyBy(ctx context.Context, tx Store, in Entry) ([]string, error) {
	if len(in.Serials) == 0 {
		return nil, nil
	}
	entries, err := tx.Entries(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	named := make(map[string]bool)
	for _, other := range entries {
		if other.ID == in.ID || other.Type != EntryIn || other.Undone() {
			continue
		}
		for _, code := range other.Serials {
			named[code] = true
		}
	}
	var codes []string
	for _, code := range in.Serials {
		if !named[code] {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

// reopenAllocation flips a converted ALLOCATED entry back to active.
func reopenAllocation(ctx context.Context, tx Store, id EntryID) error {
	src, err := tx.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if src == nil || !src.Converted() {
		return nil
	}
	return tx.SetEntryStatus(ctx, id, StatusActive)
}

// entryItem resolves the owning item outside the item lock. ItemID never
// changes, so the lookup is safe to reuse once the lock is held.
func (e *Engine) entryItem(ctx context.Context, id EntryID) (ItemID, error) {
	entry, err := e.Store.GetEntry(ctx, id)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, entryNotFound(id)
	}
	return entry.ItemID, nil
}
