/*
store.go - Persistence interfaces for the stock engine

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  never talks SQL; it asks a Store for items, entries, serial units and
  audit rows, and wraps every mutation in TxStore.WithTx.

KEY INTERFACES:
  ItemStore:   Items and their derived aggregates
  LedgerStore: Ledger entries, lifecycle status and per-entry snapshots
  SerialStore: Serial unit rows
  AuditLog:    Append-only audit trail
  TxStore:     All of the above plus atomic WithTx

WRITE CONTRACT:
  Entry type, quantities, serials, timestamp and metadata are written once
  by AppendEntry. Only SetEntryStatus and SaveSnapshots modify an entry
  afterwards. There is no entry delete.

ORDERING:
  Entries() returns an item's entries by OccurredAt ascending, ties broken
  by ID ascending. Reconciliation depends on this order.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - stock/store/memory.go: In-memory for tests and demos

SEE ALSO:
  - reconcile.go: The only caller of SaveSnapshots and SaveItem aggregates
*/
package stock

import "context"

// =============================================================================
// STORE - Persistence interfaces
// =============================================================================

type ItemStore interface {
	CreateItem(ctx context.Context, item Item) error

	// GetItem returns nil, nil when the item does not exist.
	GetItem(ctx context.Context, id ItemID) (*Item, error)

	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)

	// SaveItem overwrites every column of an existing item.
	SaveItem(ctx context.Context, item Item) error
}

type LedgerStore interface {
	AppendEntry(ctx context.Context, entry Entry) error

	// GetEntry returns nil, nil when the entry does not exist.
	GetEntry(ctx context.Context, id EntryID) (*Entry, error)

	// Entries returns every entry of an item, undone ones included,
	// ordered by OccurredAt then ID.
	Entries(ctx context.Context, itemID ItemID) ([]Entry, error)

	SetEntryStatus(ctx context.Context, id EntryID, status Status) error

	SaveSnapshots(ctx context.Context, snapshots []Snapshot) error

	// FindEntries searches across items, newest OccurredAt first.
	FindEntries(ctx context.Context, filter EntryFilter) ([]EntryView, error)
}

type SerialStore interface {
	// Serials returns an item's units in insertion order.
	Serials(ctx context.Context, itemID ItemID) ([]SerialUnit, error)

	// EnsureSerial inserts the unit unless (ItemID, Code) already exists.
	EnsureSerial(ctx context.Context, unit SerialUnit) error

	// SetSerialAvailability updates matching units; unknown codes are ignored.
	SetSerialAvailability(ctx context.Context, itemID ItemID, codes []string, available bool) error

	DeleteSerials(ctx context.Context, itemID ItemID, codes []string) error
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error

	// AuditEntries returns an item's audit trail, newest first.
	AuditEntries(ctx context.Context, itemID ItemID) ([]AuditEntry, error)
}

// Store is everything the engine reads and writes.
type Store interface {
	ItemStore
	LedgerStore
	SerialStore
	AuditLog
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Reset removes all data. Used by demo scenarios.
	Reset(ctx context.Context) error
}

// Snapshot is the running balance written onto one entry by a replay.
type Snapshot struct {
	EntryID        EntryID
	StockAfter     int
	AllocatedAfter int
}
