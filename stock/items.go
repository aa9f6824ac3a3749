package stock

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// ITEM CATALOGUE
// =============================================================================
// Only descriptive fields are settable here. Aggregates belong to reconcile.

func (d ItemDetails) validate() (ItemDetails, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return d, fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if d.Unit == "" {
		d.Unit = UnitPieces
	}
	if !d.Unit.Valid() {
		return d, fmt.Errorf("%w: unknown unit %q", ErrInvalidItem, d.Unit)
	}
	return d, nil
}

// CreateItem registers a new item at zero stock.
func (e *Engine) CreateItem(ctx context.Context, details ItemDetails, actor string) (Item, error) {
	details, err := details.validate()
	if err != nil {
		return Item{}, err
	}
	now := e.Now()
	item := Item{
		ID:           ItemID(e.IDs.NextID()),
		CreatedBy:    actor,
		CreatedAt:    now,
		LastModified: now,
	}
	item.apply(details)

	err = e.mutate(ctx, "create_item", item.ID, func(tx Store) error {
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		return e.audit(ctx, tx, AuditEntry{
			ItemID:  item.ID,
			Actor:   actor,
			Action:  AuditAdd,
			Remarks: fmt.Sprintf("created item %s", item.Name),
		})
	})
	return item, err
}

// UpdateItem replaces an item's descriptive fields.
func (e *Engine) UpdateItem(ctx context.Context, id ItemID, details ItemDetails) (Item, error) {
	details, err := details.validate()
	if err != nil {
		return Item{}, err
	}
	var out Item
	err = e.mutate(ctx, "update_item", id, func(tx Store) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return itemNotFound(id)
		}
		item.apply(details)
		out = *item
		return tx.SaveItem(ctx, *item)
	})
	return out, err
}

// RestoreItem clears the soft-delete flag. Reconciliation never does this.
func (e *Engine) RestoreItem(ctx context.Context, id ItemID, actor string) (Item, error) {
	var out Item
	err := e.mutate(ctx, "restore_item", id, func(tx Store) error {
		item, err := tx.GetItem(ctx, id)
		if err != nil {
			return err
		}
		if item == nil {
			return itemNotFound(id)
		}
		if !item.IsDeleted {
			out = *item
			return nil
		}
		item.IsDeleted = false
		if err := tx.SaveItem(ctx, *item); err != nil {
			return err
		}
		out = *item
		return e.audit(ctx, tx, AuditEntry{
			ItemID:        id,
			Actor:         actor,
			Action:        AuditRestore,
			PreviousStock: item.TotalStock,
			NewStock:      item.TotalStock,
		})
	})
	return out, err
}
