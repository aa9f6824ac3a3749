/*
engine.go - Engine wiring: store, locking, clock, ids, logging

PURPOSE:
  Engine is the entry point for every stock operation. It owns the
  collaborators the ledger, reconciliation, reversal and conversion paths
  share, and the mutate() envelope every write goes through:

    lock item -> WithTx(fn) -> observe -> release

  Reconciliation results are buffered on the transaction and reported to
  the Observer only after the commit.

CONCURRENCY:
  All mutations for one item are serialized by Locker. The default
  LocalLocker is per-process; store/locker provides a Redis-backed one
  for multi-instance deployments. Reads never take the item lock.

SEE ALSO:
  - ledger.go, reversal.go, conversion.go: the mutations
  - reconcile.go: the replay every mutation ends with
*/
package stock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultWindowDays = 5
	DefaultGrace      = 60 * time.Second
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Locker serializes mutations of one item. release must be called once.
type Locker interface {
	Lock(ctx context.Context, itemID ItemID) (release func(), err error)
}

// IDGenerator issues item and entry ids. Ids must increase with time so that
// id order matches insertion order.
type IDGenerator interface {
	NextID() int64
}

// Observer receives operation outcomes. metrics.Collector implements it.
type Observer interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
	ObserveReconcile(itemID ItemID, totals Totals, entries int, deleted bool)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, error, time.Duration) {}
func (nopObserver) ObserveReconcile(ItemID, Totals, int, bool)    {}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store    TxStore
	Locker   Locker
	IDs      IDGenerator
	Now      func() time.Time
	Window   int           // backdating window in calendar days
	Grace    time.Duration // items younger than this are never soft-deleted
	Location *time.Location
	Log      *zap.Logger
	Observer Observer
}

// NewEngine returns an engine with in-process defaults. Callers override
// fields before first use.
func NewEngine(store TxStore) *Engine {
	return &Engine{
		Store:    store,
		Locker:   NewLocalLocker(),
		IDs:      NewSequenceIDs(time.Now().UnixNano()),
		Now:      time.Now,
		Window:   DefaultWindowDays,
		Grace:    DefaultGrace,
		Location: time.UTC,
		Log:      zap.NewNop(),
		Observer: nopObserver{},
	}
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e *Engine) observer() Observer {
	if e.Observer == nil {
		return nopObserver{}
	}
	return e.Observer
}

func (e *Engine) location() *time.Location {
	if e.Location == nil {
		return time.UTC
	}
	return e.Location
}

// mutate runs fn atomically under the item lock.
func (e *Engine) mutate(ctx context.Context, op string, itemID ItemID, fn func(tx Store) error) error {
	start := time.Now()
	release, err := e.Locker.Lock(ctx, itemID)
	if err != nil {
		e.observer().ObserveOperation(op, err, time.Since(start))
		return err
	}
	defer release()

	var committed []reconciled
	err = e.Store.WithTx(ctx, func(tx Store) error {
		otx := &observedTx{Store: tx}
		if err := fn(otx); err != nil {
			return err
		}
		committed = otx.reconciled
		return nil
	})
	e.observer().ObserveOperation(op, err, time.Since(start))
	if err == nil {
		for _, r := range committed {
			e.observer().ObserveReconcile(r.itemID, r.totals, r.entries, r.deleted)
			if r.deleted {
				e.logger().Info("item soft-deleted at zero stock", zap.Stringer("item_id", r.itemID))
			}
		}
	}

	log := e.logger().With(zap.String("op", op), zap.Stringer("item_id", itemID))
	switch {
	case err == nil:
		log.Debug("stock mutation committed", zap.Duration("elapsed", time.Since(start)))
	case IsClientError(err) || IsConflict(err) || IsNotFound(err):
		log.Info("stock mutation rejected", zap.Error(err))
	default:
		log.Error("stock mutation failed", zap.Error(err))
	}
	return err
}

// =============================================================================
// LOCAL LOCKER
// =============================================================================

// LocalLocker is an in-process per-item lock that honours ctx cancellation.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[ItemID]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[ItemID]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, itemID ItemID) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[itemID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[itemID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}
}

// =============================================================================
// SEQUENCE IDS
// =============================================================================

// SequenceIDs hands out consecutive ids. Tests seed it with 1.
type SequenceIDs struct {
	next atomic.Int64
}

func NewSequenceIDs(start int64) *SequenceIDs {
	s := &SequenceIDs{}
	s.next.Store(start)
	return s
}

func (s *SequenceIDs) NextID() int64 {
	return s.next.Add(1) - 1
}

// observedTx is the Store handed to a mutation. It collects the
// reconciliations of that mutation until the transaction commits.
type observedTx struct {
	Store
	reconciled []reconciled
}

type reconciled struct {
	itemID  ItemID
	totals  Totals
	entries int
	deleted bool
}
