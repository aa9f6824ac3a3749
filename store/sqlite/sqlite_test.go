package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/stock"
	"github.com/warp/stock-ledger/store/sqlite"
)

var t0 = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedItem(t *testing.T, s stock.Store, id stock.ItemID, name string) {
	t.Helper()
	require.NoError(t, s.CreateItem(context.Background(), stock.Item{
		ID: id, Name: name, Unit: stock.UnitPieces, CreatedAt: t0, LastModified: t0,
	}))
}

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: An item with one active entry
	// WHEN: A transaction writes to every table and then fails
	// THEN: The database is unchanged
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Widget")
	require.NoError(t, s.AppendEntry(ctx, stock.Entry{
		ID: 10, ItemID: 1, Type: stock.EntryIn, Quantity: 1, OccurredAt: t0, Status: stock.StatusActive,
	}))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx stock.Store) error {
		require.NoError(t, tx.AppendEntry(ctx, stock.Entry{
			ID: 11, ItemID: 1, Type: stock.EntryIn, Quantity: 2, OccurredAt: t0, Status: stock.StatusActive,
		}))
		require.NoError(t, tx.EnsureSerial(ctx, stock.SerialUnit{ItemID: 1, Code: "S1", Available: true}))
		require.NoError(t, tx.SetEntryStatus(ctx, 10, stock.StatusUndone))
		require.NoError(t, tx.AppendAudit(ctx, stock.AuditEntry{ID: "a1", ItemID: 1, Action: stock.AuditIn, Timestamp: t0}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := s.Entries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, stock.StatusActive, entries[0].Status)
	units, err := s.Serials(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, units)
	trail, err := s.AuditEntries(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestSQLite_WithTx_Commits(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Widget")

	err := s.WithTx(ctx, func(tx stock.Store) error {
		item, err := tx.GetItem(ctx, 1)
		if err != nil {
			return err
		}
		item.TotalStock = 7
		return tx.SaveItem(ctx, *item)
	})
	require.NoError(t, err)

	item, err := s.GetItem(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 7, item.TotalStock)
}

func TestSQLite_EntryRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Access Point")

	manila := time.FixedZone("UTC+8", 8*60*60)
	src := stock.EntryID(5)
	want := stock.Entry{
		ID:                6,
		ItemID:            1,
		Type:              stock.EntryOut,
		Quantity:          2,
		Serials:           []string{"AP-1", "AP-2"},
		OccurredAt:        time.Date(2026, time.March, 9, 23, 30, 0, 123456789, manila),
		CreatedAt:         t0,
		Actor:             "alice",
		ConvertedFrom:     &src,
		Status:            stock.StatusActive,
		Metadata:          stock.Metadata{Location: "Rack 3", SupplierPO: "SPO-1", ClientPO: "CPO-9", DRNumber: "DR-42", Remarks: "rush"},
		StockAfter:        3,
		AllocatedAfter:    1,
		AllocatedQuantity: 0,
	}
	require.NoError(t, s.AppendEntry(ctx, stock.Entry{ID: 5, ItemID: 1, Type: stock.EntryAllocated, AllocatedQuantity: 2, OccurredAt: t0, Status: stock.StatusConverted}))
	require.NoError(t, s.AppendEntry(ctx, want))

	got, err := s.GetEntry(ctx, 6)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, want.OccurredAt.Equal(got.OccurredAt), "timestamps keep nanoseconds across zones")
	assert.Equal(t, time.UTC, got.OccurredAt.Location())
	assert.Equal(t, want.Serials, got.Serials)
	assert.Equal(t, want.Metadata, got.Metadata)
	require.NotNil(t, got.ConvertedFrom)
	assert.Equal(t, src, *got.ConvertedFrom)
	assert.Equal(t, 3, got.StockAfter)

	missing, err := s.GetEntry(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_Entries_ReplayOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Widget")

	for _, e := range []stock.Entry{
		{ID: 3, OccurredAt: t0},
		{ID: 1, OccurredAt: t0.Add(time.Hour)},
		{ID: 2, OccurredAt: t0},
		{ID: 4, OccurredAt: t0.Add(-time.Hour)},
	} {
		e.ItemID = 1
		e.Type = stock.EntryIn
		e.Quantity = 1
		e.Status = stock.StatusActive
		require.NoError(t, s.AppendEntry(ctx, e))
	}

	entries, err := s.Entries(ctx, 1)
	require.NoError(t, err)
	var ids []stock.EntryID
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []stock.EntryID{4, 2, 3, 1}, ids)
}

func TestSQLite_SaveSnapshots(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Widget")
	require.NoError(t, s.AppendEntry(ctx, stock.Entry{ID: 1, ItemID: 1, Type: stock.EntryIn, Quantity: 4, OccurredAt: t0, Status: stock.StatusActive}))

	require.NoError(t, s.SaveSnapshots(ctx, []stock.Snapshot{{EntryID: 1, StockAfter: 4, AllocatedAfter: 1}}))

	e, err := s.GetEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, e.StockAfter)
	assert.Equal(t, 1, e.AllocatedAfter)
}

func TestSQLite_SetEntryStatus_Unknown(t *testing.T) {
	s := newStore(t)
	err := s.SetEntryStatus(context.Background(), 404, stock.StatusUndone)
	assert.Error(t, err)
}

func TestSQLite_Serials(t *testing.T) {
	// GIVEN: Two units for one item
	// WHEN: Reserving one, re-inserting it and deleting it
	// THEN: Inserts never overwrite and codes are scoped per item
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Access Point")
	seedItem(t, s, 2, "Switch")

	require.NoError(t, s.EnsureSerial(ctx, stock.SerialUnit{ItemID: 1, Code: "B", Available: true}))
	require.NoError(t, s.EnsureSerial(ctx, stock.SerialUnit{ItemID: 1, Code: "A", Available: true}))
	require.NoError(t, s.EnsureSerial(ctx, stock.SerialUnit{ItemID: 2, Code: "B", Available: true}))
	require.NoError(t, s.SetSerialAvailability(ctx, 1, []string{"B", "unknown"}, false))
	require.NoError(t, s.EnsureSerial(ctx, stock.SerialUnit{ItemID: 1, Code: "B", Available: true}))

	units, err := s.Serials(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []stock.SerialUnit{
		{ItemID: 1, Code: "B", Available: false},
		{ItemID: 1, Code: "A", Available: true},
	}, units)

	other, err := s.Serials(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []stock.SerialUnit{{ItemID: 2, Code: "B", Available: true}}, other)

	require.NoError(t, s.DeleteSerials(ctx, 1, []string{"B"}))
	require.NoError(t, s.DeleteSerials(ctx, 1, nil))
	units, err = s.Serials(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, units, 1)
}

func TestSQLite_ListItems(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Access Point")
	seedItem(t, s, 2, "Patch Cord")
	gone, err := s.GetItem(ctx, 2)
	require.NoError(t, err)
	gone.IsDeleted = true
	require.NoError(t, s.SaveItem(ctx, *gone))

	active, err := s.ListItems(ctx, stock.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Access Point", active[0].Name)

	all, err := s.ListItems(ctx, stock.ItemFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := s.ListItems(ctx, stock.ItemFilter{IncludeDeleted: true, Search: "PATCH"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.True(t, found[0].IsDeleted)
}

func TestSQLite_FindEntries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Access Point")
	seedItem(t, s, 2, "Patch Cord")

	for _, e := range []stock.Entry{
		{ID: 1, ItemID: 1, Type: stock.EntryOut, Quantity: 1, OccurredAt: t0, Metadata: stock.Metadata{DRNumber: "DR-1", ClientPO: "CPO-A"}},
		{ID: 2, ItemID: 2, Type: stock.EntryOut, Quantity: 3, OccurredAt: t0.Add(time.Hour), Metadata: stock.Metadata{DRNumber: "DR-1", ClientPO: "CPO-B"}},
		{ID: 3, ItemID: 1, Type: stock.EntryAllocated, AllocatedQuantity: 1, OccurredAt: t0, Metadata: stock.Metadata{DRNumber: "DR-1", ClientPO: "CPO-A"}},
		{ID: 4, ItemID: 2, Type: stock.EntryIn, Quantity: 5, OccurredAt: t0, Metadata: stock.Metadata{SupplierPO: "spo-77"}},
		{ID: 5, ItemID: 2, Type: stock.EntryIn, Quantity: 5, OccurredAt: t0, Metadata: stock.Metadata{SupplierPO: "SPO-78"}, Status: stock.StatusUndone},
	} {
		if e.Status == "" {
			e.Status = stock.StatusActive
		}
		require.NoError(t, s.AppendEntry(ctx, e))
	}

	t.Run("delivery receipt newest first", func(t *testing.T) {
		views, err := s.FindEntries(ctx, stock.EntryFilter{DRNumber: "DR-1", ExcludeTypes: []stock.EntryType{stock.EntryAllocated}})
		require.NoError(t, err)
		require.Len(t, views, 2)
		assert.Equal(t, stock.EntryID(2), views[0].ID)
		assert.Equal(t, "Patch Cord", views[0].ItemName)
		assert.Equal(t, stock.UnitPieces, views[0].ItemUnit)
		assert.Equal(t, stock.EntryID(1), views[1].ID)
	})

	t.Run("client po filter", func(t *testing.T) {
		views, err := s.FindEntries(ctx, stock.EntryFilter{DRNumber: "DR-1", ClientPO: "CPO-A"})
		require.NoError(t, err)
		assert.Len(t, views, 2)
	})

	t.Run("po search is case-insensitive and skips undone", func(t *testing.T) {
		views, err := s.FindEntries(ctx, stock.EntryFilter{POContains: "SPO-7", ExcludeUndone: true})
		require.NoError(t, err)
		require.Len(t, views, 1)
		assert.Equal(t, stock.EntryID(4), views[0].ID)
	})
}

func TestSQLite_AuditNewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Widget")

	require.NoError(t, s.AppendAudit(ctx, stock.AuditEntry{ID: "a1", ItemID: 1, Action: stock.AuditAdd, Timestamp: t0}))
	require.NoError(t, s.AppendAudit(ctx, stock.AuditEntry{ID: "a2", ItemID: 1, Action: stock.AuditIn, Quantity: 4, NewStock: 4, Timestamp: t0}))

	trail, err := s.AuditEntries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "a2", trail[0].ID)
	assert.Equal(t, stock.AuditIn, trail[0].Action)
	assert.Equal(t, 4, trail[0].NewStock)
	assert.Equal(t, "a1", trail[1].ID)
}

func TestSQLite_ResetAndPing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	seedItem(t, s, 1, "Widget")
	require.NoError(t, s.AppendEntry(ctx, stock.Entry{ID: 1, ItemID: 1, Type: stock.EntryIn, Quantity: 1, OccurredAt: t0, Status: stock.StatusActive}))

	require.NoError(t, s.Reset(ctx))

	item, err := s.GetItem(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, item)
	entries, err := s.Entries(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NoError(t, s.Ping(ctx))
}
