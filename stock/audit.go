package stock

import (
	"context"

	"github.com/google/uuid"
)

// audit appends one audit row. Callers fill the domain fields; id and
// timestamp are stamped here.
func (e *Engine) audit(ctx context.Context, tx Store, entry AuditEntry) error {
	entry.ID = uuid.NewString()
	entry.Timestamp = e.Now()
	return tx.AppendAudit(ctx, entry)
}

// Audit returns an item's audit trail, newest first.
func (e *Engine) Audit(ctx context.Context, itemID ItemID) ([]AuditEntry, error) {
	if _, err := e.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Store.AuditEntries(ctx, itemID)
}
