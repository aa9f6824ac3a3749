package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/stock"
	"github.com/warp/stock-ledger/stock/store"
)

func driftedEngine(t *testing.T) (*stock.Engine, stock.ItemID) {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	engine := stock.NewEngine(mem)
	engine.IDs = stock.NewSequenceIDs(1)
	engine.Now = func() time.Time { return t0 }

	item, err := engine.CreateItem(ctx, stock.ItemDetails{Name: "Widget", Unit: stock.UnitPieces}, "tester")
	require.NoError(t, err)
	_, err = engine.Submit(ctx, stock.Submission{ItemID: item.ID, In: 4, OccurredAt: t0})
	require.NoError(t, err)

	stored, err := mem.GetItem(ctx, item.ID)
	require.NoError(t, err)
	stored.TotalStock = 1
	require.NoError(t, mem.SaveItem(ctx, *stored))
	return engine, item.ID
}

func TestRebuildScheduler_RunNow(t *testing.T) {
	// GIVEN: An item whose stored total disagrees with its ledger
	// WHEN: A scheduled pass runs
	// THEN: The drift is repaired and reported, and the next pass is clean
	engine, id := driftedEngine(t)
	rs := NewRebuildScheduler(engine, nil)

	report, err := rs.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Checked)
	require.Len(t, report.Repaired, 1)
	assert.Equal(t, 1, report.Repaired[0].Stored.TotalStock)
	assert.Equal(t, 4, report.Repaired[0].Replayed.TotalStock)

	item, err := engine.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 4, item.TotalStock)

	trail, err := engine.Audit(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, stock.AuditRebuild, trail[0].Action)
	assert.Equal(t, schedulerActor, trail[0].Actor)

	report, err = rs.RunNow(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Repaired)
	assert.WithinDuration(t, time.Now().Add(rs.CheckInterval), rs.GetNextRunTime(), 5*time.Second)
}

// unlistable fails the item listing every pass starts with.
type unlistable struct {
	stock.TxStore
}

func (unlistable) ListItems(context.Context, stock.ItemFilter) ([]stock.Item, error) {
	return nil, errors.New("database is locked")
}

func TestRebuildScheduler_RunNow_Failure(t *testing.T) {
	// GIVEN: A successful pass followed by a pass whose store fails
	// WHEN: Running the failing pass
	// THEN: The error is returned and reported, the last good report is kept
	engine, _ := driftedEngine(t)
	rs := NewRebuildScheduler(engine, nil)
	_, err := rs.RunNow(context.Background())
	require.NoError(t, err)

	engine.Store = unlistable{engine.Store}
	_, err = rs.RunNow(context.Background())

	require.EqualError(t, err, "database is locked")
	assert.Equal(t, 1, rs.LastReport().Checked)
	st := rs.Status()
	assert.EqualError(t, st.LastErr, "database is locked")
	assert.False(t, st.Running)
	assert.True(t, st.NextRun.IsZero())
}

func TestRebuildScheduler_StartStop(t *testing.T) {
	engine, id := driftedEngine(t)
	rs := NewRebuildScheduler(engine, nil)
	rs.CheckInterval = time.Hour

	rs.Start()
	rs.Start() // second start is a no-op
	require.Eventually(t, func() bool {
		return rs.LastReport().Checked == 1
	}, 2*time.Second, 10*time.Millisecond, "a pass runs immediately on start")
	rs.Stop()
	rs.Stop()

	item, err := engine.GetItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 4, item.TotalStock)
}

func TestRebuildScheduler_Disabled(t *testing.T) {
	engine, _ := driftedEngine(t)

	for _, rs := range []*RebuildScheduler{
		{Engine: engine, Log: NewRebuildScheduler(engine, nil).Log, CheckInterval: time.Hour, Enabled: false},
		{Engine: engine, Log: NewRebuildScheduler(engine, nil).Log, CheckInterval: 0, Enabled: true},
	} {
		rs.Start()
		rs.Stop()
		assert.Zero(t, rs.LastReport().Checked)
		assert.False(t, rs.Status().Enabled)
		assert.WithinDuration(t, time.Now(), rs.GetNextRunTime(), 5*time.Second)
	}
}

func TestRebuildStatusEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	s.headers["X-Role"] = string(RoleAdmin)

	rec := s.do(http.MethodGet, "/api/admin/rebuild/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, SchedulerStatusDTO{}, decodeBody[SchedulerStatusDTO](t, rec), "no scheduler wired")

	rs := NewRebuildScheduler(s.handler.Engine, nil)
	rs.CheckInterval = time.Hour
	s.handler.Scheduler = rs
	rs.Start()
	require.Eventually(t, func() bool {
		return !rs.Status().LastRun.IsZero()
	}, 2*time.Second, 10*time.Millisecond)
	defer rs.Stop()

	rec = s.do(http.MethodGet, "/api/admin/rebuild/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody[SchedulerStatusDTO](t, rec)
	assert.True(t, st.Enabled)
	assert.True(t, st.Running)
	assert.Equal(t, "1h0m0s", st.Interval)
	require.NotNil(t, st.LastRun)
	require.NotNil(t, st.NextRun)
	assert.Equal(t, time.Hour, st.NextRun.Sub(*st.LastRun))
	require.NotNil(t, st.LastReport)
	assert.Empty(t, st.LastError)

	s.headers["X-Role"] = string(RoleInventory)
	requireCode(t, s.do(http.MethodGet, "/api/admin/rebuild/status", nil), http.StatusForbidden, "forbidden")
}
