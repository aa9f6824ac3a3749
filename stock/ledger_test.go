package stock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/stock"
)

var accessPoints = []string{"AP-1", "AP-2", "AP-3", "AP-4", "AP-5"}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestScenario_SerializedReceipt(t *testing.T) {
	// GIVEN: A new item
	// WHEN: Receiving 5 units with 5 serials
	// THEN: Stock is 5 and every unit is available
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Access Point")

		res := f.in(item.ID, 5, accessPoints...)

		assert.Equal(t, stock.Totals{TotalStock: 5}, res.Totals)
		assert.Equal(t, 5, res.Entry.StockAfter)
		assert.Equal(t, accessPoints, res.Entry.Serials)
		assert.Equal(t, 5, f.item(item.ID).TotalStock)

		avail := f.availability(item.ID)
		require.Len(t, avail, 5)
		for _, code := range accessPoints {
			assert.True(t, avail[code], code)
		}
		f.requireConsistent(item.ID)
	})
}

func TestScenario_PartialDispatch(t *testing.T) {
	// GIVEN: 5 serialized units in stock
	// WHEN: Dispatching 2 named units
	// THEN: Stock is 3, the 2 units are unavailable, the rest unchanged
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Access Point")
		f.in(item.ID, 5, accessPoints...)

		res := f.out(item.ID, 2, "AP-1", "AP-2")

		assert.Equal(t, 3, res.Totals.TotalStock)
		assert.Equal(t, 3, res.Entry.StockAfter)
		avail := f.availability(item.ID)
		assert.False(t, avail["AP-1"])
		assert.False(t, avail["AP-2"])
		assert.True(t, avail["AP-3"])
		assert.True(t, avail["AP-4"])
		assert.True(t, avail["AP-5"])
		f.requireConsistent(item.ID)
	})
}

func TestScenario_UndoDispatch(t *testing.T) {
	// GIVEN: 2 of 5 serialized units dispatched
	// WHEN: Undoing the dispatch
	// THEN: Stock returns to 5 and both units are available again
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Access Point")
		f.in(item.ID, 5, accessPoints...)
		dispatch := f.out(item.ID, 2, "AP-1", "AP-2")

		res, err := f.engine.Undo(f.ctx, dispatch.Entry.ID, "tester")
		require.NoError(t, err)

		assert.Equal(t, 5, res.Totals.TotalStock)
		assert.True(t, res.Entry.Undone())
		for code, ok := range f.availability(item.ID) {
			assert.True(t, ok, code)
		}

		// Undone entries stay in history
		history, err := f.engine.History(f.ctx, item.ID)
		require.NoError(t, err)
		assert.Len(t, history, 2)
		f.requireConsistent(item.ID)
	})
}

func TestScenario_DepletionSoftDeletes(t *testing.T) {
	// GIVEN: An item older than the soft-delete grace period
	// WHEN: Receiving 2 and dispatching both
	// THEN: Stock is 0 and the item is flagged deleted
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.agedItem("Patch Cord")
		f.in(item.ID, 2, "S1", "S2")

		res := f.out(item.ID, 2, "S1", "S2")

		assert.Equal(t, 0, res.Totals.TotalStock)
		assert.True(t, res.Deleted)
		assert.True(t, f.item(item.ID).IsDeleted)

		active, err := f.engine.ListItems(f.ctx, stock.ItemFilter{})
		require.NoError(t, err)
		assert.Empty(t, active)

		all, err := f.engine.ListItems(f.ctx, stock.ItemFilter{IncludeDeleted: true})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestScenario_AllocationConvert(t *testing.T) {
	// GIVEN: 5 serialized units, 2 of them allocated
	// WHEN: Converting the allocation
	// THEN: Allocation drops to 0, stock to 3, one OUT references the source
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Access Point")
		f.in(item.ID, 5, accessPoints...)
		alloc := f.allocate(item.ID, 2, "AP-4", "AP-5")
		assert.Equal(t, stock.Totals{TotalStock: 5, AllocatedQuantity: 2}, alloc.Totals)
		assert.False(t, f.availability(item.ID)["AP-4"])

		f.clock.Advance(time.Hour)
		res, err := f.engine.Convert(f.ctx, alloc.Entry.ID, "tester")
		require.NoError(t, err)

		assert.Equal(t, stock.Totals{TotalStock: 3, AllocatedQuantity: 0}, res.Totals)
		assert.True(t, res.Entry.Converted())
		require.NotNil(t, res.Created)
		assert.Equal(t, stock.EntryOut, res.Created.Type)
		assert.Equal(t, 2, res.Created.Quantity)
		assert.Equal(t, []string{"AP-4", "AP-5"}, res.Created.Serials)
		require.NotNil(t, res.Created.ConvertedFrom)
		assert.Equal(t, alloc.Entry.ID, *res.Created.ConvertedFrom)
		assert.True(t, res.Created.OccurredAt.Equal(f.clock.Now()))

		avail := f.availability(item.ID)
		assert.False(t, avail["AP-4"])
		assert.False(t, avail["AP-5"])
		assert.True(t, avail["AP-1"])

		history, err := f.engine.History(f.ctx, item.ID)
		require.NoError(t, err)
		outs := 0
		for _, e := range history {
			if e.Type == stock.EntryOut {
				outs++
			}
		}
		assert.Equal(t, 1, outs)
		f.requireConsistent(item.ID)
	})
}

func TestScenario_BackdatedReplay(t *testing.T) {
	// GIVEN: IN 10 then OUT 4, both settled
	// WHEN: An IN 3 dated before both is submitted
	// THEN: Every snapshot reflects chronological order, not insertion order
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("UTP Cable")
		first := f.in(item.ID, 10)
		f.clock.Advance(time.Hour)
		second := f.out(item.ID, 4)
		assert.Equal(t, 10, first.Entry.StockAfter)
		assert.Equal(t, 6, second.Entry.StockAfter)

		backdated := f.submit(stock.Submission{ItemID: item.ID, In: 3, OccurredAt: t0.Add(-24 * time.Hour)})

		assert.Equal(t, 9, backdated.Totals.TotalStock)
		assert.Equal(t, 3, backdated.Entry.StockAfter)
		assert.Equal(t, 13, f.entry(first.Entry.ID).StockAfter)
		assert.Equal(t, 9, f.entry(second.Entry.ID).StockAfter)

		history, err := f.engine.History(f.ctx, item.ID)
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, backdated.Entry.ID, history[0].ID)
		assert.Equal(t, first.Entry.ID, history[1].ID)
		assert.Equal(t, second.Entry.ID, history[2].ID)
		f.requireConsistent(item.ID)
	})
}

// =============================================================================
// SUBMISSION VALIDATION
// =============================================================================

func TestSubmit_Validation_NothingPersisted(t *testing.T) {
	tests := []struct {
		name string
		sub  stock.Submission
		want error
	}{
		{"negative", stock.Submission{In: 2, Out: -1}, stock.ErrNegativeQuantity},
		{"no quantity", stock.Submission{}, stock.ErrNoQuantity},
		{"in and out", stock.Submission{In: 1, Out: 1}, stock.ErrMutualExclusivity},
		{"out and allocated", stock.Submission{Out: 1, Allocated: 1}, stock.ErrMutualExclusivity},
		{"serial count", stock.Submission{In: 3, Serials: stock.Serials("A", "B")}, stock.ErrSerialCountMismatch},
		{"serial count out", stock.Submission{Out: 3, Serials: stock.Serials("A", "B")}, stock.ErrSerialCountMismatch},
		{"serial count allocated", stock.Submission{Allocated: 3, Serials: stock.Serials("A", "B")}, stock.ErrSerialCountMismatch},
		{"blank serials dropped", stock.Submission{In: 2, Serials: stock.Serials("  ", "X1", "")}, stock.ErrSerialCountMismatch},
		{"too old", stock.Submission{In: 1, OccurredAt: t0.AddDate(0, 0, -6)}, stock.ErrOutOfWindow},
		{"future day", stock.Submission{In: 1, OccurredAt: t0.AddDate(0, 0, 1)}, stock.ErrOutOfWindow},
	}

	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Widget")
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				sub := tt.sub
				sub.ItemID = item.ID
				if sub.OccurredAt.IsZero() {
					sub.OccurredAt = t0
				}
				_, err := f.engine.Submit(f.ctx, sub)
				assert.ErrorIs(t, err, tt.want)
				assert.True(t, stock.IsClientError(err))
			})
		}

		history, err := f.engine.History(f.ctx, item.ID)
		require.NoError(t, err)
		assert.Empty(t, history)
		assert.Equal(t, 0, f.item(item.ID).TotalStock)
	})
}

func TestSubmit_SerialCountMismatch_Details(t *testing.T) {
	f := newFixture(t, backends[0].open(t))
	item := f.createItem("Widget")

	_, err := f.engine.Submit(f.ctx, stock.Submission{ItemID: item.ID, OccurredAt: t0, In: 3, Serials: stock.SerialText("A, B")})

	var mismatch *stock.SerialCountMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Quantity)
	assert.Equal(t, 2, mismatch.Serials)
}

func TestSubmit_WindowBoundary(t *testing.T) {
	// Exactly Window days back is accepted, one more is not
	f := newFixture(t, backends[0].open(t))
	item := f.createItem("Widget")

	f.submit(stock.Submission{ItemID: item.ID, In: 1, OccurredAt: time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)})

	_, err := f.engine.Submit(f.ctx, stock.Submission{
		ItemID:     item.ID,
		In:         1,
		OccurredAt: time.Date(2026, time.March, 4, 23, 59, 0, 0, time.UTC),
	})
	var oow *stock.OutOfWindowError
	require.ErrorAs(t, err, &oow)
	assert.Equal(t, 5, oow.Days)
	assert.Contains(t, err.Error(), "within the last 5 days")
}

func TestSubmit_WindowUsesEngineLocation(t *testing.T) {
	// GIVEN: now is 04:00 on March 11 in UTC+8 (20:00 March 10 UTC)
	// WHEN: An entry falls on March 5 in UTC+8 but on March 5 in UTC too
	// THEN: Only the UTC+8 engine rejects it, since its window starts March 6
	at := time.Date(2026, time.March, 5, 15, 0, 0, 0, time.UTC) // 23:00 March 5 in UTC+8

	utc := newFixture(t, backends[0].open(t))
	utc.clock.now = time.Date(2026, time.March, 10, 20, 0, 0, 0, time.UTC)
	assert.NoError(t, utc.engine.CheckWindow(at))

	local := newFixture(t, backends[0].open(t))
	local.clock.now = utc.clock.now
	local.engine.Location = time.FixedZone("UTC+8", 8*3600)
	assert.ErrorIs(t, local.engine.CheckWindow(at), stock.ErrOutOfWindow)
}

func TestSubmit_UnknownItem(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		_, err := f.engine.Submit(f.ctx, stock.Submission{ItemID: 999, In: 1, OccurredAt: t0})
		assert.True(t, stock.IsNotFound(err))
		var nf *stock.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "item", nf.Kind)
	})
}

func TestSubmit_SerializedItemRequiresSerials(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Access Point")
		f.in(item.ID, 2, "AP-1", "AP-2")

		_, err := f.engine.Submit(f.ctx, stock.Submission{ItemID: item.ID, Out: 1, OccurredAt: t0})
		assert.ErrorIs(t, err, stock.ErrMissingSerials)
	})
}

func TestSubmit_InsufficientStock(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Widget")
		f.in(item.ID, 2)

		_, err := f.engine.Submit(f.ctx, stock.Submission{ItemID: item.ID, Out: 3, OccurredAt: t0})

		var ise *stock.InsufficientStockError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, 2, ise.Available)
		assert.Equal(t, 3, ise.Requested)
		assert.Equal(t, 2, f.item(item.ID).TotalStock)
	})
}

func TestSubmit_NormalizesCommaSeparatedSerials(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Widget")

		res := f.submit(stock.Submission{ItemID: item.ID, In: 2, Serials: stock.SerialText(" A, B ,A,, ")})

		assert.Equal(t, []string{"A", "B"}, res.Entry.Serials)
		codes, err := f.engine.EntrySerials(f.ctx, res.Entry.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, codes)
	})
}

func TestSubmit_MetadataAndAudit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Widget")
		f.submit(stock.Submission{
			ItemID:   item.ID,
			In:       4,
			Metadata: stock.Metadata{Location: "Rack 3", SupplierPO: "PO-S-1", Remarks: "first delivery"},
			Actor:    "alice",
		})
		f.clock.Advance(time.Minute)
		res := f.submit(stock.Submission{ItemID: item.ID, Out: 1, Actor: "bob"})
		assert.Equal(t, "bob", res.Entry.Actor)

		trail, err := f.engine.Audit(f.ctx, item.ID)
		require.NoError(t, err)
		require.Len(t, trail, 3)
		assert.Equal(t, stock.AuditOut, trail[0].Action)
		assert.Equal(t, 4, trail[0].PreviousStock)
		assert.Equal(t, 3, trail[0].NewStock)
		assert.Equal(t, stock.AuditIn, trail[1].Action)
		assert.Equal(t, "alice", trail[1].Actor)
		assert.Equal(t, "first delivery", trail[1].Remarks)
		assert.Equal(t, stock.AuditAdd, trail[2].Action)

		history, err := f.engine.History(f.ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, stock.Metadata{Location: "Rack 3", SupplierPO: "PO-S-1", Remarks: "first delivery"}, history[0].Metadata)
	})
}

func TestSubmit_ClampsAtZero(t *testing.T) {
	// GIVEN: IN 5 at 10:00
	// WHEN: An OUT 3 dated 08:00 the same day is recorded
	// THEN: The OUT replays first and clamps at 0; the total ends at 5
	forEachBackend(t, func(t *testing.T, f *fixture) {
		item := f.createItem("Widget")
		f.clock.Advance(time.Hour)
		f.in(item.ID, 5)

		out := f.submit(stock.Submission{ItemID: item.ID, Out: 3, OccurredAt: t0.Add(-time.Hour)})

		assert.Equal(t, 0, out.Entry.StockAfter)
		assert.Equal(t, 5, out.Totals.TotalStock)
		f.requireConsistent(item.ID)
	})
}
