package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warp/stock-ledger/assets"
)

// Assets implements assets.TxStore on the same database and lock as the
// stock tables.
type Assets struct {
	s *Store
}

var _ assets.TxStore = (*Assets)(nil)

// Assets returns the asset view of the store.
func (s *Store) Assets() *Assets {
	return &Assets{s: s}
}

// =============================================================================
// LOCKED ENTRY POINTS (assets.Store interface)
// =============================================================================

func (a *Assets) CreateAsset(ctx context.Context, asset assets.Asset) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.q.CreateAsset(ctx, asset)
}

func (a *Assets) GetAsset(ctx context.Context, id assets.AssetID) (*assets.Asset, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return a.s.q.GetAsset(ctx, id)
}

func (a *Assets) ListAssets(ctx context.Context, filter assets.AssetFilter) ([]assets.Asset, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return a.s.q.ListAssets(ctx, filter)
}

func (a *Assets) SaveAsset(ctx context.Context, asset assets.Asset) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.q.SaveAsset(ctx, asset)
}

func (a *Assets) AppendChange(ctx context.Context, change assets.Change) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.q.AppendChange(ctx, change)
}

func (a *Assets) GetChange(ctx context.Context, id assets.ChangeID) (*assets.Change, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return a.s.q.GetChange(ctx, id)
}

func (a *Assets) Changes(ctx context.Context, assetID assets.AssetID) ([]assets.Change, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	return a.s.q.Changes(ctx, assetID)
}

func (a *Assets) MarkChangeUndone(ctx context.Context, id assets.ChangeID, by string, at time.Time) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return a.s.q.MarkChangeUndone(ctx, id, by, at)
}

// WithTx executes a function within a database transaction.
func (a *Assets) WithTx(ctx context.Context, fn func(store assets.Store) error) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	sqlTx, err := a.s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset clears assets and their history.
func (a *Assets) Reset(ctx context.Context) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	for _, table := range []string{"asset_changes", "assets"} {
		if _, err := a.s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

const assetColumns = `id, name, description, date_added, warranty_date, image_ref,
	assigned_user, assigned_by, remarks, created_at, updated_at, is_deleted`

func (q queries) CreateAsset(ctx context.Context, asset assets.Asset) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO assets (`+assetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(asset.ID), asset.Name, asset.Description, formatTime(asset.DateAdded),
		formatDate(asset.WarrantyDate), asset.ImageRef, asset.AssignedUser, asset.AssignedBy,
		asset.Remarks, formatTime(asset.CreatedAt), formatTime(asset.UpdatedAt), asset.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

func (q queries) GetAsset(ctx context.Context, id assets.AssetID) (*assets.Asset, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query asset: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	asset, err := scanAsset(rows)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (q queries) ListAssets(ctx context.Context, filter assets.AssetFilter) ([]assets.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE 1 = 1`
	var args []any
	if !filter.IncludeDeleted {
		query += ` AND is_deleted = 0`
	}
	if filter.Search != "" {
		query += ` AND (instr(LOWER(name), ?) > 0 OR instr(LOWER(description), ?) > 0
			OR instr(LOWER(assigned_user), ?) > 0 OR instr(LOWER(assigned_by), ?) > 0)`
		s := strings.ToLower(filter.Search)
		args = append(args, s, s, s, s)
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	out := []assets.Asset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, asset)
	}
	return out, rows.Err()
}

func (q queries) SaveAsset(ctx context.Context, asset assets.Asset) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE assets SET name = ?, description = ?, date_added = ?, warranty_date = ?, image_ref = ?,
			assigned_user = ?, assigned_by = ?, remarks = ?, updated_at = ?, is_deleted = ?
		WHERE id = ?`,
		asset.Name, asset.Description, formatTime(asset.DateAdded), formatDate(asset.WarrantyDate),
		asset.ImageRef, asset.AssignedUser, asset.AssignedBy, asset.Remarks,
		formatTime(asset.UpdatedAt), asset.IsDeleted, int64(asset.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	return expectOne(res, "asset", int64(asset.ID))
}

func scanAsset(rows *sql.Rows) (assets.Asset, error) {
	var (
		a                    assets.Asset
		id                   int64
		dateAdded            string
		warranty             sql.NullString
		createdAt, updatedAt string
	)
	err := rows.Scan(&id, &a.Name, &a.Description, &dateAdded, &warranty, &a.ImageRef,
		&a.AssignedUser, &a.AssignedBy, &a.Remarks, &createdAt, &updatedAt, &a.IsDeleted)
	if err != nil {
		return a, fmt.Errorf("failed to scan asset: %w", err)
	}
	a.ID = assets.AssetID(id)
	a.DateAdded = parseTime(dateAdded)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	if warranty.Valid {
		if d, err := time.Parse(assets.DateLayout, warranty.String); err == nil {
			a.WarrantyDate = &d
		}
	}
	return a, nil
}

// ----- changes -----

const changeColumns = `id, asset_id, change_type, previous_user, assigned_to, remarks, actor,
	occurred_at, recorded_at, undone, undone_by, undone_at`

func (q queries) AppendChange(ctx context.Context, c assets.Change) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO asset_changes (`+changeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(c.ID), int64(c.AssetID), string(c.Type), c.PreviousUser, c.AssignedTo, c.Remarks,
		c.Actor, formatTime(c.OccurredAt), formatTime(c.RecordedAt), c.Undone, c.UndoneBy,
		formatOptionalTime(c.UndoneAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append asset change: %w", err)
	}
	return nil
}

func (q queries) GetChange(ctx context.Context, id assets.ChangeID) (*assets.Change, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+changeColumns+` FROM asset_changes WHERE id = ?`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to query asset change: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	c, err := scanChange(rows)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q queries) Changes(ctx context.Context, assetID assets.AssetID) ([]assets.Change, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+changeColumns+`
		FROM asset_changes
		WHERE asset_id = ?
		ORDER BY occurred_at DESC, id DESC`, int64(assetID))
	if err != nil {
		return nil, fmt.Errorf("failed to query asset changes: %w", err)
	}
	defer rows.Close()

	out := []assets.Change{}
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q queries) MarkChangeUndone(ctx context.Context, id assets.ChangeID, by string, at time.Time) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE asset_changes SET undone = 1, undone_by = ?, undone_at = ? WHERE id = ?`,
		by, formatTime(at), int64(id))
	if err != nil {
		return fmt.Errorf("failed to undo asset change: %w", err)
	}
	return expectOne(res, "asset change", int64(id))
}

func scanChange(rows *sql.Rows) (assets.Change, error) {
	var (
		c                      assets.Change
		id, assetID            int64
		typ                    string
		occurredAt, recordedAt string
		undoneAt               string
	)
	err := rows.Scan(&id, &assetID, &typ, &c.PreviousUser, &c.AssignedTo, &c.Remarks, &c.Actor,
		&occurredAt, &recordedAt, &c.Undone, &c.UndoneBy, &undoneAt)
	if err != nil {
		return c, fmt.Errorf("failed to scan asset change: %w", err)
	}
	c.ID = assets.ChangeID(id)
	c.AssetID = assets.AssetID(assetID)
	c.Type = assets.ChangeType(typ)
	c.OccurredAt = parseTime(occurredAt)
	c.RecordedAt = parseTime(recordedAt)
	if undoneAt != "" {
		c.UndoneAt = parseTime(undoneAt)
	}
	return c, nil
}

func formatDate(d *time.Time) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Format(assets.DateLayout), Valid: true}
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return formatTime(t)
}
