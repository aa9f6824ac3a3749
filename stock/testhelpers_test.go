package stock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/stock"
	"github.com/warp/stock-ledger/stock/store"
	"github.com/warp/stock-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// t0 is the fixed "now" every engine test starts from.
var t0 = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type backend struct {
	name string
	open func(t *testing.T) stock.TxStore
}

var backends = []backend{
	{"memory", func(t *testing.T) stock.TxStore { return store.NewMemory() }},
	{"sqlite", func(t *testing.T) stock.TxStore {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}},
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	engine *stock.Engine
	store  stock.TxStore
	clock  *testClock
}

func newFixture(t *testing.T, st stock.TxStore) *fixture {
	clock := &testClock{now: t0}
	e := stock.NewEngine(st)
	e.IDs = stock.NewSequenceIDs(1)
	e.Now = clock.Now
	return &fixture{t: t, ctx: context.Background(), engine: e, store: st, clock: clock}
}

// forEachBackend runs fn against a fresh engine per storage backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, newFixture(t, b.open(t)))
		})
	}
}

func (f *fixture) createItem(name string) stock.Item {
	item, err := f.engine.CreateItem(f.ctx, stock.ItemDetails{Name: name, Unit: stock.UnitPieces}, "tester")
	require.NoError(f.t, err)
	return item
}

// agedItem creates an item and moves the clock past the soft-delete grace.
func (f *fixture) agedItem(name string) stock.Item {
	item := f.createItem(name)
	f.clock.Advance(2 * time.Minute)
	return item
}

func (f *fixture) submit(s stock.Submission) stock.Result {
	if s.OccurredAt.IsZero() {
		s.OccurredAt = f.clock.Now()
	}
	if s.Actor == "" {
		s.Actor = "tester"
	}
	res, err := f.engine.Submit(f.ctx, s)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) in(id stock.ItemID, qty int, codes ...string) stock.Result {
	return f.submit(stock.Submission{ItemID: id, In: qty, Serials: stock.Serials(codes...)})
}

func (f *fixture) out(id stock.ItemID, qty int, codes ...string) stock.Result {
	return f.submit(stock.Submission{ItemID: id, Out: qty, Serials: stock.Serials(codes...)})
}

func (f *fixture) allocate(id stock.ItemID, qty int, codes ...string) stock.Result {
	return f.submit(stock.Submission{ItemID: id, Allocated: qty, Serials: stock.Serials(codes...)})
}

func (f *fixture) item(id stock.ItemID) stock.Item {
	item, err := f.engine.GetItem(f.ctx, id)
	require.NoError(f.t, err)
	return item
}

func (f *fixture) entry(id stock.EntryID) stock.Entry {
	entry, err := f.engine.GetEntry(f.ctx, id)
	require.NoError(f.t, err)
	return entry
}

// availability maps serial code to its available flag.
func (f *fixture) availability(id stock.ItemID) map[string]bool {
	units, err := f.engine.Serials(f.ctx, id, false)
	require.NoError(f.t, err)
	out := make(map[string]bool, len(units))
	for _, u := range units {
		out[u.Code] = u.Available
	}
	return out
}

// requireConsistent asserts persisted state equals a fresh replay.
func (f *fixture) requireConsistent(id stock.ItemID) {
	d, err := f.engine.Verify(f.ctx, id)
	require.NoError(f.t, err)
	require.False(f.t, d.HasDrift(), "drift: %+v", d)
}
