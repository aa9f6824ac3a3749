/*
conversion.go - Conversion of an allocation into a dispatch

PURPOSE:
  Turns a reservation into a real OUT movement without rewriting history.
  The ALLOCATED entry stays in the ledger flagged converted; a new OUT
  entry dated at conversion time carries its quantity and serials.

GUARDS:
  - Only ALLOCATED entries convert (ErrNotAllocation)
  - Undone or already converted sources are refused
    (ErrAlreadyUndone, ErrAlreadyConverted)
  - The OUT must fit current stock (ErrInsufficientStock)

SERIALS:
  Serials stay unavailable; they move from reserved to dispatched.

SEE ALSO:
  - reversal.go: undoing the OUT reopens the allocation
  - reconcile.go: converted allocations are excluded from the replay
*/
package stock

import (
	"context"
	"fmt"
)

// Convert turns an active ALLOCATED entry into a real OUT movement.
//
// A new OUT entry dated now carries the allocated quantity, the same serials
// and a back-reference to the source. The source is flagged converted, so
// the replay stops counting its reservation and counts the OUT instead.
func (e *Engine) Convert(ctx context.Context, entryID EntryID, actor string) (Result, error) {
	itemID, err := e.entryItem(ctx, entryID)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = e.mutate(ctx, "convert", itemID, func(tx Store) error {
		src, err := tx.GetEntry(ctx, entryID)
		if err != nil {
			return err
		}
		if src == nil {
			return entryNotFound(entryID)
		}
		switch {
		case src.Type != EntryAllocated:
			return ErrNotAllocation
		case src.Undone():
			return ErrAlreadyUndone
		case src.Converted():
			return ErrAlreadyConverted
		}

		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return itemNotFound(itemID)
		}
		qty := src.AllocatedQuantity
		if qty > item.TotalStock {
			return &InsufficientStockError{Available: item.TotalStock, Requested: qty}
		}

		now := e.Now()
		srcID := src.ID
		meta := src.Metadata
		meta.Remarks = fmt.Sprintf("converted from allocation %s", src.ID)
		out := Entry{
			ID:            EntryID(e.IDs.NextID()),
			ItemID:        itemID,
			OccurredAt:    now,
			Type:          EntryOut,
			Quantity:      qty,
			Serials:       append([]string(nil), src.Serials...),
			Metadata:      meta,
			Actor:         actor,
			CreatedAt:     now,
			ConvertedFrom: &srcID,
			Status:        StatusActive,
		}
		if err := tx.AppendEntry(ctx, out); err != nil {
			return fmt.Errorf("append entry: %w", err)
		}
		if err := tx.SetEntryStatus(ctx, src.ID, StatusConverted); err != nil {
			return err
		}
		if err := NewSerialRegistry(tx).MarkUnavailable(ctx, itemID, out.Serials); err != nil {
			return err
		}

		rec, err := e.reconcile(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if err := e.audit(ctx, tx, AuditEntry{
			ItemID:        itemID,
			Actor:         actor,
			Action:        AuditConvert,
			Quantity:      qty,
			PreviousStock: item.TotalStock,
			NewStock:      rec.Totals.TotalStock,
			Remarks:       meta.Remarks,
		}); err != nil {
			return err
		}

		stored, err := tx.GetEntry(ctx, src.ID)
		if err != nil {
			return err
		}
		created, err := tx.GetEntry(ctx, out.ID)
		if err != nil {
			return err
		}
		res = Result{Entry: *stored, Created: created, Totals: rec.Totals, Deleted: rec.Deleted}
		return nil
	})
	return res, err
}
