/*
ledger.go - Transaction Ledger: validated submission of stock movements

PURPOSE:
  Submit is the only way a new movement enters the ledger. It validates the
  candidate, appends it, applies the serial transition for its type and
  hands off to the reconciliation pass. The ledger never computes totals
  itself.

VALIDATION ORDER (first failure wins, nothing is persisted):
  1. No negative quantities
  2. Exactly one of In, Out, Allocated is positive
  3. OccurredAt within the backdating window (calendar days, engine location)
  4. Serial count equals quantity when serials are given
  5. Item exists
  6. Serialized item requires serials
  7. OUT does not exceed current stock

SERIAL TRANSITIONS:
  IN        -> EnsureAvailable per code
  OUT       -> MarkUnavailable
  ALLOCATED -> MarkUnavailable

SEE ALSO:
  - serials.go: payload normalization
  - reconcile.go: the replay that follows every submission
*/
package stock

import (
	"context"
	"fmt"
	"time"
)

// Submission is a candidate movement.
type Submission struct {
	ItemID     ItemID
	OccurredAt time.Time
	In         int
	Out        int
	Allocated  int
	Serials    SerialPayload
	Metadata   Metadata
	Actor      string
}

// classify resolves the entry type and amount from the three quantity fields.
func (s Submission) classify() (EntryType, int, error) {
	if s.In < 0 || s.Out < 0 || s.Allocated < 0 {
		return "", 0, ErrNegativeQuantity
	}
	var (
		typ    EntryType
		amount int
		count  int
	)
	if s.In > 0 {
		typ, amount, count = EntryIn, s.In, count+1
	}
	if s.Out > 0 {
		typ, amount, count = EntryOut, s.Out, count+1
	}
	if s.Allocated > 0 {
		typ, amount, count = EntryAllocated, s.Allocated, count+1
	}
	switch count {
	case 0:
		return "", 0, ErrNoQuantity
	case 1:
		return typ, amount, nil
	default:
		return "", 0, ErrMutualExclusivity
	}
}

// CheckWindow reports whether at falls within the trailing backdating window
// of now, compared as calendar dates.
func (e *Engine) CheckWindow(at time.Time) error {
	loc := e.location()
	today := truncateDay(e.Now().In(loc))
	day := truncateDay(at.In(loc))
	earliest := today.AddDate(0, 0, -e.Window)
	if day.Before(earliest) || day.After(today) {
		return &OutOfWindowError{At: at, Earliest: earliest, Latest: today, Days: e.Window}
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Submit validates and records one movement, then reconciles the item.
func (e *Engine) Submit(ctx context.Context, s Submission) (Result, error) {
	typ, amount, err := s.classify()
	if err != nil {
		return Result{}, err
	}
	if err := e.CheckWindow(s.OccurredAt); err != nil {
		return Result{}, err
	}
	codes := s.Serials.Codes()
	if len(codes) > 0 && len(codes) != amount {
		return Result{}, &SerialCountMismatchError{Quantity: amount, Serials: len(codes)}
	}

	var res Result
	err = e.mutate(ctx, "submit", s.ItemID, func(tx Store) error {
		item, err := tx.GetItem(ctx, s.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return itemNotFound(s.ItemID)
		}

		if len(codes) == 0 {
			units, err := tx.Serials(ctx, s.ItemID)
			if err != nil {
				return err
			}
			if len(units) > 0 {
				return ErrMissingSerials
			}
		}
		if typ == EntryOut && amount > item.TotalStock {
			return &InsufficientStockError{Available: item.TotalStock, Requested: amount}
		}

		now := e.Now()
		entry := Entry{
			ID:         EntryID(e.IDs.NextID()),
			ItemID:     s.ItemID,
			OccurredAt: s.OccurredAt,
			Type:       typ,
			Serials:    codes,
			Metadata:   s.Metadata,
			Actor:      s.Actor,
			CreatedAt:  now,
			Status:     StatusActive,
		}
		if typ == EntryAllocated {
			entry.AllocatedQuantity = amount
		} else {
			entry.Quantity = amount
		}
		if err := tx.AppendEntry(ctx, entry); err != nil {
			return fmt.Errorf("append entry: %w", err)
		}

		registry := NewSerialRegistry(tx)
		if typ == EntryIn {
			for _, code := range codes {
				if err := registry.EnsureAvailable(ctx, s.ItemID, code); err != nil {
					return err
				}
			}
		} else if err := registry.MarkUnavailable(ctx, s.ItemID, codes); err != nil {
			return err
		}

		rec, err := e.reconcile(ctx, tx, s.ItemID)
		if err != nil {
			return err
		}
		if err := e.audit(ctx, tx, AuditEntry{
			ItemID:        s.ItemID,
			Actor:         s.Actor,
			Action:        submitAction(typ),
			Quantity:      amount,
			PreviousStock: item.TotalStock,
			NewStock:      rec.Totals.TotalStock,
			Remarks:       s.Metadata.Remarks,
		}); err != nil {
			return err
		}

		stored, err := tx.GetEntry(ctx, entry.ID)
		if err != nil {
			return err
		}
		res = Result{Entry: *stored, Totals: rec.Totals, Deleted: rec.Deleted}
		return nil
	})
	return res, err
}

func submitAction(t EntryType) AuditAction {
	switch t {
	case EntryIn:
		return AuditIn
	case EntryOut:
		return AuditOut
	default:
		return AuditAllocate
	}
}
