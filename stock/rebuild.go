/*
rebuild.go - Drift detection and full rebuild

PURPOSE:
  Verify replays an item's ledger without writing and reports where the
  persisted aggregates, entry snapshots or serial flags disagree with a
  fresh replay. RebuildAll reconciles every item that drifted.

  Drift should never occur through the engine. It appears after manual
  database edits, imports, or a bug; rebuild is the repair tool.

USAGE:
  report, err := engine.RebuildAll(ctx, "ops")
  for _, d := range report.Repaired { ... }

SEE ALSO:
  - cmd/rebuild: CLI wrapper
  - api/scheduler.go: periodic verification
*/
package stock

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Drift describes one item's disagreement with its replay.
type Drift struct {
	ItemID        ItemID
	ItemName      string
	Stored        Totals
	Replayed      Totals
	SnapshotDrift []EntryID // entries whose stored snapshot differs
	SerialDrift   []string  // serial codes whose availability differs
}

func (d Drift) HasDrift() bool {
	return d.Stored != d.Replayed || len(d.SnapshotDrift) > 0 || len(d.SerialDrift) > 0
}

// RebuildReport summarises a RebuildAll run.
type RebuildReport struct {
	Checked  int
	Repaired []Drift
}

// Verify compares persisted state with a fresh replay. It writes nothing.
func (e *Engine) Verify(ctx context.Context, itemID ItemID) (Drift, error) {
	item, err := e.GetItem(ctx, itemID)
	if err != nil {
		return Drift{}, err
	}
	entries, err := e.Store.Entries(ctx, itemID)
	if err != nil {
		return Drift{}, err
	}
	units, err := e.Store.Serials(ctx, itemID)
	if err != nil {
		return Drift{}, err
	}
	return diff(item, entries, units, Replay(entries, units)), nil
}

func diff(item Item, entries []Entry, units []SerialUnit, res ReplayResult) Drift {
	d := Drift{
		ItemID:   item.ID,
		ItemName: item.Name,
		Stored:   Totals{TotalStock: item.TotalStock, AllocatedQuantity: item.AllocatedQuantity},
		Replayed: res.Totals,
	}
	byID := make(map[EntryID]Entry, len(entries))
	for _, en := range entries {
		byID[en.ID] = en
	}
	for _, s := range res.Snapshots {
		en := byID[s.EntryID]
		if en.StockAfter != s.StockAfter || en.AllocatedAfter != s.AllocatedAfter {
			d.SnapshotDrift = append(d.SnapshotDrift, s.EntryID)
		}
	}
	for _, u := range units {
		if res.Availability[u.Code] != u.Available {
			d.SerialDrift = append(d.SerialDrift, u.Code)
		}
	}
	return d
}

// RebuildAll verifies every item, deleted ones included, and reconciles those
// that drifted. Each repair is audited as a rebuild.
func (e *Engine) RebuildAll(ctx context.Context, actor string) (RebuildReport, error) {
	items, err := e.Store.ListItems(ctx, ItemFilter{IncludeDeleted: true})
	if err != nil {
		return RebuildReport{}, err
	}
	report := RebuildReport{Repaired: []Drift{}}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		d, err := e.Verify(ctx, item.ID)
		if err != nil {
			return report, fmt.Errorf("verify item %s: %w", item.ID, err)
		}
		report.Checked++
		if !d.HasDrift() {
			continue
		}
		e.logger().Warn("ledger drift detected",
			zap.Stringer("item_id", item.ID),
			zap.Int("stored_stock", d.Stored.TotalStock),
			zap.Int("replayed_stock", d.Replayed.TotalStock),
			zap.Int("snapshot_drift", len(d.SnapshotDrift)),
			zap.Int("serial_drift", len(d.SerialDrift)))

		err = e.mutate(ctx, "rebuild", item.ID, func(tx Store) error {
			rec, err := e.reconcile(ctx, tx, item.ID)
			if err != nil {
				return err
			}
			return e.audit(ctx, tx, AuditEntry{
				ItemID:        item.ID,
				Actor:         actor,
				Action:        AuditRebuild,
				PreviousStock: d.Stored.TotalStock,
				NewStock:      rec.Totals.TotalStock,
				Remarks:       fmt.Sprintf("rebuild: %d snapshots, %d serials corrected", len(d.SnapshotDrift), len(d.SerialDrift)),
			})
		})
		if err != nil {
			return report, fmt.Errorf("rebuild item %s: %w", item.ID, err)
		}
		report.Repaired = append(report.Repaired, d)
	}
	return report, nil
}
