/*
Package sqlite provides a SQLite-backed implementation of stock.TxStore.

PURPOSE:
  Persists items, ledger entries, serial units and the audit trail using
  SQLite through database/sql and mattn/go-sqlite3.

KEY TABLES:
  items:          Catalogue rows plus derived aggregates
  ledger_entries: Ledger (write-once columns plus status and snapshots)
  serial_units:   One row per (item, serial code)
  audit_log:      Append-only audit trail
  assets:         Assets and tools with their current holder (assets.go)
  asset_changes:  Hand-over history of assets (assets.go)

WRITE CONTRACT:
  ledger_entries rows are never deleted. Only status, stock_after and
  allocated_after are updated after insert.

INDEXES:
  - idx_entries_item_order: replay order (hot path)
  - idx_entries_dr:         delivery receipt lookup
  - serial_units UNIQUE(item_id, code)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so an
  in-memory database is shared by every caller. Queries run through a
  querier that is either the *sql.DB or the open *sql.Tx; nothing inside
  WithTx takes the mutex again.

TIME FORMAT:
  Timestamps are stored as fixed-width UTC strings so that lexical order in
  ORDER BY equals chronological order.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := stock.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/stock-ledger/stock"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements stock.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

var _ stock.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: queries{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL,
		part_no TEXT NOT NULL DEFAULT '',
		image_ref TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		total_stock INTEGER NOT NULL DEFAULT 0 CHECK (total_stock >= 0),
		allocated_quantity INTEGER NOT NULL DEFAULT 0 CHECK (allocated_quantity >= 0),
		last_modified TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	-- Ledger: type, quantities, serials, timestamp and metadata are write-once
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id INTEGER PRIMARY KEY,
		item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		occurred_at TEXT NOT NULL,
		entry_type TEXT NOT NULL CHECK (entry_type IN ('IN', 'OUT', 'ALLOCATED')),
		quantity INTEGER NOT NULL DEFAULT 0,
		allocated_quantity INTEGER NOT NULL DEFAULT 0,
		serials TEXT NOT NULL DEFAULT '[]',
		location TEXT NOT NULL DEFAULT '',
		supplier_po TEXT NOT NULL DEFAULT '',
		client_po TEXT NOT NULL DEFAULT '',
		dr_number TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		converted_from INTEGER REFERENCES ledger_entries(id),
		status TEXT NOT NULL DEFAULT 'active',
		stock_after INTEGER NOT NULL DEFAULT 0,
		allocated_after INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_entries_item_order
		ON ledger_entries(item_id, occurred_at, id);
	CREATE INDEX IF NOT EXISTS idx_entries_dr
		ON ledger_entries(dr_number) WHERE dr_number != '';

	CREATE TABLE IF NOT EXISTS serial_units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		code TEXT NOT NULL,
		available INTEGER NOT NULL DEFAULT 1,
		UNIQUE(item_id, code)
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		item_id INTEGER NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		previous_stock INTEGER NOT NULL DEFAULT 0,
		new_stock INTEGER NOT NULL DEFAULT 0,
		remarks TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_item ON audit_log(item_id, seq);

	CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		date_added TEXT NOT NULL,
		warranty_date TEXT,
		image_ref TEXT NOT NULL DEFAULT '',
		assigned_user TEXT NOT NULL DEFAULT '',
		assigned_by TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	-- Hand-over history: only the undone columns change after insert
	CREATE TABLE IF NOT EXISTS asset_changes (
		id INTEGER PRIMARY KEY,
		asset_id INTEGER NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
		change_type TEXT NOT NULL CHECK (change_type IN ('ASSIGNED', 'RETURNED')),
		previous_user TEXT NOT NULL DEFAULT '',
		assigned_to TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		occurred_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		undone INTEGER NOT NULL DEFAULT 0,
		undone_by TEXT NOT NULL DEFAULT '',
		undone_at TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_asset_changes_order
		ON asset_changes(asset_id, occurred_at, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED ENTRY POINTS (stock.Store interface)
// =============================================================================

func (s *Store) CreateItem(ctx context.Context, item stock.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateItem(ctx, item)
}

func (s *Store) GetItem(ctx context.Context, id stock.ItemID) (*stock.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetItem(ctx, id)
}

func (s *Store) ListItems(ctx context.Context, filter stock.ItemFilter) ([]stock.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListItems(ctx, filter)
}

func (s *Store) SaveItem(ctx context.Context, item stock.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveItem(ctx, item)
}

func (s *Store) AppendEntry(ctx context.Context, entry stock.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.AppendEntry(ctx, entry)
}

func (s *Store) GetEntry(ctx context.Context, id stock.EntryID) (*stock.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetEntry(ctx, id)
}

func (s *Store) Entries(ctx context.Context, itemID stock.ItemID) ([]stock.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.Entries(ctx, itemID)
}

func (s *Store) SetEntryStatus(ctx context.Context, id stock.EntryID, status stock.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetEntryStatus(ctx, id, status)
}

func (s *Store) SaveSnapshots(ctx context.Context, snapshots []stock.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SaveSnapshots(ctx, snapshots)
}

func (s *Store) FindEntries(ctx context.Context, filter stock.EntryFilter) ([]stock.EntryView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.FindEntries(ctx, filter)
}

func (s *Store) Serials(ctx context.Context, itemID stock.ItemID) ([]stock.SerialUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.Serials(ctx, itemID)
}

func (s *Store) EnsureSerial(ctx context.Context, unit stock.SerialUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.EnsureSerial(ctx, unit)
}

func (s *Store) SetSerialAvailability(ctx context.Context, itemID stock.ItemID, codes []string, available bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.SetSerialAvailability(ctx, itemID, codes, available)
}

func (s *Store) DeleteSerials(ctx context.Context, itemID stock.ItemID, codes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DeleteSerials(ctx, itemID, codes)
}

func (s *Store) AppendAudit(ctx context.Context, entry stock.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.AppendAudit(ctx, entry)
}

func (s *Store) AuditEntries(ctx context.Context, itemID stock.ItemID) ([]stock.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.AuditEntries(ctx, itemID)
}

// =============================================================================
// TRANSACTIONAL STORE (stock.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store stock.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"audit_log", "serial_units", "ledger_entries", "items"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES - run against *sql.DB or *sql.Tx, never lock
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db querier
}

// ----- items -----

const itemColumns = `id, name, description, unit, part_no, image_ref, created_by, created_at,
	total_stock, allocated_quantity, last_modified, is_deleted`

func (q queries) CreateItem(ctx context.Context, item stock.Item) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(item.ID), item.Name, item.Description, string(item.Unit), item.PartNo, item.ImageRef,
		item.CreatedBy, formatTime(item.CreatedAt), item.TotalStock, item.AllocatedQuantity,
		formatTime(item.LastModified), item.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

func (q queries) GetItem(ctx context.Context, id stock.ItemID) (*stock.Item, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query item: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	item, err := scanItem(rows)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (q queries) ListItems(ctx context.Context, filter stock.ItemFilter) ([]stock.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE 1 = 1`
	var args []any
	if !filter.IncludeDeleted {
		query += ` AND is_deleted = 0`
	}
	if filter.Search != "" {
		query += ` AND (instr(LOWER(name), ?) > 0 OR instr(LOWER(description), ?) > 0 OR instr(LOWER(part_no), ?) > 0)`
		s := strings.ToLower(filter.Search)
		args = append(args, s, s, s)
	}
	query += ` ORDER BY id ASC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []stock.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q queries) SaveItem(ctx context.Context, item stock.Item) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE items SET name = ?, description = ?, unit = ?, part_no = ?, image_ref = ?,
			total_stock = ?, allocated_quantity = ?, last_modified = ?, is_deleted = ?
		WHERE id = ?`,
		item.Name, item.Description, string(item.Unit), item.PartNo, item.ImageRef,
		item.TotalStock, item.AllocatedQuantity, formatTime(item.LastModified), item.IsDeleted,
		int64(item.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return expectOne(res, "item", int64(item.ID))
}

func scanItem(rows *sql.Rows) (stock.Item, error) {
	var (
		item         stock.Item
		id           int64
		unit         string
		createdAt    string
		lastModified string
	)
	err := rows.Scan(&id, &item.Name, &item.Description, &unit, &item.PartNo, &item.ImageRef,
		&item.CreatedBy, &createdAt, &item.TotalStock, &item.AllocatedQuantity, &lastModified, &item.IsDeleted)
	if err != nil {
		return item, fmt.Errorf("failed to scan item: %w", err)
	}
	item.ID = stock.ItemID(id)
	item.Unit = stock.Unit(unit)
	item.CreatedAt = parseTime(createdAt)
	item.LastModified = parseTime(lastModified)
	return item, nil
}

// ----- ledger -----

const entryColumns = `e.id, e.item_id, e.occurred_at, e.entry_type, e.quantity, e.allocated_quantity,
	e.serials, e.location, e.supplier_po, e.client_po, e.dr_number, e.remarks, e.actor,
	e.created_at, e.converted_from, e.status, e.stock_after, e.allocated_after`

func (q queries) AppendEntry(ctx context.Context, entry stock.Entry) error {
	serials, err := json.Marshal(nonNil(entry.Serials))
	if err != nil {
		return err
	}
	var convertedFrom sql.NullInt64
	if entry.ConvertedFrom != nil {
		convertedFrom = sql.NullInt64{Int64: int64(*entry.ConvertedFrom), Valid: true}
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, item_id, occurred_at, entry_type, quantity, allocated_quantity, serials,
		 location, supplier_po, client_po, dr_number, remarks, actor, created_at,
		 converted_from, status, stock_after, allocated_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(entry.ID), int64(entry.ItemID), formatTime(entry.OccurredAt), string(entry.Type),
		entry.Quantity, entry.AllocatedQuantity, string(serials),
		entry.Metadata.Location, entry.Metadata.SupplierPO, entry.Metadata.ClientPO,
		entry.Metadata.DRNumber, entry.Metadata.Remarks, entry.Actor, formatTime(entry.CreatedAt),
		convertedFrom, string(entry.Status), entry.StockAfter, entry.AllocatedAfter,
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (q queries) GetEntry(ctx context.Context, id stock.EntryID) (*stock.Entry, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries e WHERE e.id = ?`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	entry, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (q queries) Entries(ctx context.Context, itemID stock.ItemID) ([]stock.Entry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM ledger_entries e
		WHERE e.item_id = ?
		ORDER BY e.occurred_at ASC, e.id ASC`, int64(itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := []stock.Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (q queries) SetEntryStatus(ctx context.Context, id stock.EntryID, status stock.Status) error {
	res, err := q.db.ExecContext(ctx, `UPDATE ledger_entries SET status = ? WHERE id = ?`, string(status), int64(id))
	if err != nil {
		return fmt.Errorf("failed to update entry status: %w", err)
	}
	return expectOne(res, "entry", int64(id))
}

func (q queries) SaveSnapshots(ctx context.Context, snapshots []stock.Snapshot) error {
	for _, s := range snapshots {
		_, err := q.db.ExecContext(ctx,
			`UPDATE ledger_entries SET stock_after = ?, allocated_after = ? WHERE id = ?`,
			s.StockAfter, s.AllocatedAfter, int64(s.EntryID))
		if err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	return nil
}

func (q queries) FindEntries(ctx context.Context, filter stock.EntryFilter) ([]stock.EntryView, error) {
	query := `
		SELECT ` + entryColumns + `, i.name, i.description, i.unit
		FROM ledger_entries e
		JOIN items i ON i.id = e.item_id
		WHERE 1 = 1`
	var args []any
	if filter.DRNumber != "" {
		query += ` AND e.dr_number = ?`
		args = append(args, filter.DRNumber)
	}
	if filter.ClientPO != "" {
		query += ` AND e.client_po = ?`
		args = append(args, filter.ClientPO)
	}
	if filter.POContains != "" {
		po := strings.ToLower(filter.POContains)
		query += ` AND (instr(LOWER(e.supplier_po), ?) > 0 OR instr(LOWER(e.client_po), ?) > 0)`
		args = append(args, po, po)
	}
	if filter.ExcludeUndone {
		query += ` AND e.status != ?`
		args = append(args, string(stock.StatusUndone))
	}
	for _, t := range filter.ExcludeTypes {
		query += ` AND e.entry_type != ?`
		args = append(args, string(t))
	}
	query += ` ORDER BY e.occurred_at DESC, e.id DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	views := []stock.EntryView{}
	for rows.Next() {
		var (
			v    stock.EntryView
			unit string
		)
		entry, err := scanEntry(rows, &v.ItemName, &v.ItemDescription, &unit)
		if err != nil {
			return nil, err
		}
		v.Entry = entry
		v.ItemUnit = stock.Unit(unit)
		views = append(views, v)
	}
	return views, rows.Err()
}

func scanEntry(rows *sql.Rows, extra ...any) (stock.Entry, error) {
	var (
		entry         stock.Entry
		id, itemID    int64
		occurredAt    string
		entryType     string
		serials       string
		createdAt     string
		convertedFrom sql.NullInt64
		status        string
	)
	dest := []any{
		&id, &itemID, &occurredAt, &entryType, &entry.Quantity, &entry.AllocatedQuantity,
		&serials, &entry.Metadata.Location, &entry.Metadata.SupplierPO, &entry.Metadata.ClientPO,
		&entry.Metadata.DRNumber, &entry.Metadata.Remarks, &entry.Actor,
		&createdAt, &convertedFrom, &status, &entry.StockAfter, &entry.AllocatedAfter,
	}
	if err := rows.Scan(append(dest, extra...)...); err != nil {
		return entry, fmt.Errorf("failed to scan entry: %w", err)
	}
	entry.ID = stock.EntryID(id)
	entry.ItemID = stock.ItemID(itemID)
	entry.OccurredAt = parseTime(occurredAt)
	entry.Type = stock.EntryType(entryType)
	entry.Serials = stock.ParseSerialCodes(serials)
	entry.CreatedAt = parseTime(createdAt)
	entry.Status = stock.Status(status)
	if convertedFrom.Valid {
		src := stock.EntryID(convertedFrom.Int64)
		entry.ConvertedFrom = &src
	}
	return entry, nil
}

// ----- serials -----

func (q queries) Serials(ctx context.Context, itemID stock.ItemID) ([]stock.SerialUnit, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT code, available FROM serial_units WHERE item_id = ? ORDER BY id ASC`, int64(itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to query serials: %w", err)
	}
	defer rows.Close()

	units := []stock.SerialUnit{}
	for rows.Next() {
		u := stock.SerialUnit{ItemID: itemID}
		if err := rows.Scan(&u.Code, &u.Available); err != nil {
			return nil, fmt.Errorf("failed to scan serial: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (q queries) EnsureSerial(ctx context.Context, unit stock.SerialUnit) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO serial_units (item_id, code, available) VALUES (?, ?, ?)`,
		int64(unit.ItemID), unit.Code, unit.Available)
	if err != nil {
		return fmt.Errorf("failed to insert serial: %w", err)
	}
	return nil
}

func (q queries) SetSerialAvailability(ctx context.Context, itemID stock.ItemID, codes []string, available bool) error {
	if len(codes) == 0 {
		return nil
	}
	in, args := inClause(codes)
	args = append([]any{available, int64(itemID)}, args...)
	_, err := q.db.ExecContext(ctx,
		`UPDATE serial_units SET available = ? WHERE item_id = ? AND code IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to update serials: %w", err)
	}
	return nil
}

func (q queries) DeleteSerials(ctx context.Context, itemID stock.ItemID, codes []string) error {
	if len(codes) == 0 {
		return nil
	}
	in, args := inClause(codes)
	args = append([]any{int64(itemID)}, args...)
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM serial_units WHERE item_id = ? AND code IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete serials: %w", err)
	}
	return nil
}

// ----- audit -----

func (q queries) AppendAudit(ctx context.Context, entry stock.AuditEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_log
		(id, item_id, actor, action, quantity, previous_stock, new_stock, remarks, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, int64(entry.ItemID), entry.Actor, string(entry.Action), entry.Quantity,
		entry.PreviousStock, entry.NewStock, entry.Remarks, formatTime(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (q queries) AuditEntries(ctx context.Context, itemID stock.ItemID) ([]stock.AuditEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, item_id, actor, action, quantity, previous_stock, new_stock, remarks, timestamp
		FROM audit_log
		WHERE item_id = ?
		ORDER BY seq DESC`, int64(itemID))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := []stock.AuditEntry{}
	for rows.Next() {
		var (
			a       stock.AuditEntry
			item    int64
			action  string
			stamped string
		)
		if err := rows.Scan(&a.ID, &item, &a.Actor, &action, &a.Quantity,
			&a.PreviousStock, &a.NewStock, &a.Remarks, &stamped); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		a.ItemID = stock.ItemID(item)
		a.Action = stock.AuditAction(action)
		a.Timestamp = parseTime(stamped)
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func inClause(codes []string) (string, []any) {
	args := make([]any, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(codes)), ","), args
}

func expectOne(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d does not exist", kind, id)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
