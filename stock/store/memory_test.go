package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/stock"
	"github.com/warp/stock-ledger/stock/store"
)

var t0 = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

func seedItem(t *testing.T, s stock.Store, id stock.ItemID) {
	require.NoError(t, s.CreateItem(context.Background(), stock.Item{
		ID: id, Name: "Widget", Unit: stock.UnitPieces, CreatedAt: t0, LastModified: t0,
	}))
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: An item with one entry
	// WHEN: A transaction appends an entry, flips serials, then fails
	// THEN: None of its writes are visible
	m := store.NewMemory()
	ctx := context.Background()
	seedItem(t, m, 1)
	require.NoError(t, m.AppendEntry(ctx, stock.Entry{ID: 10, ItemID: 1, Type: stock.EntryIn, Quantity: 1, OccurredAt: t0}))

	boom := errors.New("boom")
	err := m.WithTx(ctx, func(tx stock.Store) error {
		require.NoError(t, tx.AppendEntry(ctx, stock.Entry{ID: 11, ItemID: 1, Type: stock.EntryIn, Quantity: 2, OccurredAt: t0}))
		require.NoError(t, tx.EnsureSerial(ctx, stock.SerialUnit{ItemID: 1, Code: "S1", Available: true}))
		require.NoError(t, tx.SetEntryStatus(ctx, 10, stock.StatusUndone))
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := m.Entries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Undone())
	units, err := m.Serials(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestMemory_Entries_ReplayOrder(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedItem(t, m, 1)

	for _, e := range []stock.Entry{
		{ID: 3, OccurredAt: t0},
		{ID: 1, OccurredAt: t0.Add(time.Hour)},
		{ID: 2, OccurredAt: t0},
		{ID: 4, OccurredAt: t0.Add(-time.Hour)},
	} {
		e.ItemID = 1
		e.Type = stock.EntryIn
		e.Quantity = 1
		require.NoError(t, m.AppendEntry(ctx, e))
	}

	entries, err := m.Entries(ctx, 1)
	require.NoError(t, err)
	var ids []stock.EntryID
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []stock.EntryID{4, 2, 3, 1}, ids)
}

func TestMemory_Serials(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedItem(t, m, 1)

	require.NoError(t, m.EnsureSerial(ctx, stock.SerialUnit{ItemID: 1, Code: "B", Available: true}))
	require.NoError(t, m.EnsureSerial(ctx, stock.SerialUnit{ItemID: 1, Code: "A", Available: true}))
	require.NoError(t, m.SetSerialAvailability(ctx, 1, []string{"B", "unknown"}, false))
	// Existing units are left untouched
	require.NoError(t, m.EnsureSerial(ctx, stock.SerialUnit{ItemID: 1, Code: "B", Available: true}))

	units, err := m.Serials(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []stock.SerialUnit{
		{ItemID: 1, Code: "B", Available: false},
		{ItemID: 1, Code: "A", Available: true},
	}, units)

	require.NoError(t, m.DeleteSerials(ctx, 1, []string{"B"}))
	units, err = m.Serials(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, units, 1)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedItem(t, m, 1)
	require.NoError(t, m.AppendEntry(ctx, stock.Entry{ID: 1, ItemID: 1, Type: stock.EntryIn, Quantity: 1, Serials: []string{"A"}, OccurredAt: t0}))

	e, err := m.GetEntry(ctx, 1)
	require.NoError(t, err)
	e.Serials[0] = "mutated"

	again, err := m.GetEntry(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, again.Serials)
}

func TestMemory_Reset(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	seedItem(t, m, 1)

	require.NoError(t, m.Reset(ctx))

	item, err := m.GetItem(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, item)
}
