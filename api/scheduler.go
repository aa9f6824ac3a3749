/*
scheduler.go - Periodic ledger verification

PURPOSE:
  Periodically replays every item's ledger and repairs stored aggregates,
  snapshots or serial flags that drifted from the replay (for instance
  after a manual database edit or an interrupted migration).

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on start
  - Each pass calls stock.Engine.RebuildAll, which only writes items
    that actually drifted
  - Keeps the report and error of the last pass for
    GET /api/admin/rebuild/status

CONFIGURATION:
  - CheckInterval: How often to check (REBUILD_INTERVAL, default: 1 hour)
  - Enabled: Whether scheduler is active (false when the interval is 0)

USAGE:
  scheduler := NewRebuildScheduler(engine, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Rebuild endpoint (manual pass)
  - stock/rebuild.go: Verify and RebuildAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/stock-ledger/stock"
)

// schedulerActor is recorded in the audit trail for scheduled repairs.
const schedulerActor = "system:scheduler"

// RebuildScheduler verifies every item on an interval.
type RebuildScheduler struct {
	Engine        *stock.Engine
	Log           *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun    time.Time
	lastReport stock.RebuildReport
	lastErr    error
}

// NewRebuildScheduler creates a new scheduler.
func NewRebuildScheduler(engine *stock.Engine, log *zap.Logger) *RebuildScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RebuildScheduler{
		Engine:        engine,
		Log:           log.Named("scheduler"),
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *RebuildScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.CheckInterval <= 0 {
		rs.Log.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.wg.Add(1)

	go rs.run(ctx, rs.ticker.C, rs.stop)

	rs.Log.Info("started", zap.Duration("interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (rs *RebuildScheduler) Stop() {
	rs.mu.Lock()
	if rs.ticker == nil {
		rs.mu.Unlock()
		return
	}
	rs.ticker.Stop()
	rs.cancel()
	close(rs.stop)
	rs.ticker = nil
	rs.mu.Unlock()

	rs.wg.Wait()
	rs.Log.Info("stopped")
}

func (rs *RebuildScheduler) run(ctx context.Context, ticks <-chan time.Time, stop <-chan struct{}) {
	defer rs.wg.Done()

	// Run immediately on start
	rs.checkAndRepair(ctx)

	for {
		select {
		case <-ticks:
			rs.checkAndRepair(ctx)
		case <-stop:
			return
		}
	}
}

func (rs *RebuildScheduler) checkAndRepair(ctx context.Context) (stock.RebuildReport, error) {
	start := time.Now()
	report, err := rs.Engine.RebuildAll(ctx, schedulerActor)

	rs.mu.Lock()
	rs.lastRun = start
	rs.lastErr = err
	if err == nil {
		rs.lastReport = report
	}
	rs.mu.Unlock()

	switch {
	case err != nil:
		rs.Log.Error("rebuild pass failed", zap.Int("checked", report.Checked), zap.Error(err))
	case len(report.Repaired) > 0:
		rs.Log.Warn("rebuild pass repaired drift",
			zap.Int("checked", report.Checked),
			zap.Int("repaired", len(report.Repaired)),
			zap.Duration("elapsed", time.Since(start)))
	default:
		rs.Log.Debug("rebuild pass clean", zap.Int("checked", report.Checked), zap.Duration("elapsed", time.Since(start)))
	}
	return report, err
}

// RunNow triggers an immediate pass. On failure the partial report is
// returned with the error and LastReport keeps the previous pass.
func (rs *RebuildScheduler) RunNow(ctx context.Context) (stock.RebuildReport, error) {
	return rs.checkAndRepair(ctx)
}

// LastReport returns the report of the most recent successful pass.
func (rs *RebuildScheduler) LastReport() stock.RebuildReport {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastReport
}

// GetNextRunTime returns when the next scheduled check will occur.
func (rs *RebuildScheduler) GetNextRunTime() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.nextRunLocked()
}

func (rs *RebuildScheduler) nextRunLocked() time.Time {
	if rs.lastRun.IsZero() {
		return time.Now()
	}
	return rs.lastRun.Add(rs.CheckInterval)
}

// SchedulerStatus is a point-in-time view of the scheduler.
type SchedulerStatus struct {
	Enabled    bool
	Running    bool
	Interval   time.Duration
	LastRun    time.Time // zero before the first pass
	NextRun    time.Time // zero unless running
	LastReport stock.RebuildReport
	LastErr    error
}

// Status reports whether passes are scheduled and how the last one went.
func (rs *RebuildScheduler) Status() SchedulerStatus {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	st := SchedulerStatus{
		Enabled:    rs.Enabled && rs.CheckInterval > 0,
		Running:    rs.ticker != nil,
		Interval:   rs.CheckInterval,
		LastRun:    rs.lastRun,
		LastReport: rs.lastReport,
		LastErr:    rs.lastErr,
	}
	if st.Running {
		st.NextRun = rs.nextRunLocked()
	}
	return st
}
