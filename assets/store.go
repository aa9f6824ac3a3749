package assets

import (
	"context"
	"time"
)

// Store persists assets and their change history. Changes are never
// deleted; only the undone columns are updated after insert.
type Store interface {
	CreateAsset(ctx context.Context, asset Asset) error

	// GetAsset returns nil, nil when the asset does not exist.
	GetAsset(ctx context.Context, id AssetID) (*Asset, error)

	// ListAssets returns assets most recently updated first.
	ListAssets(ctx context.Context, filter AssetFilter) ([]Asset, error)

	SaveAsset(ctx context.Context, asset Asset) error

	AppendChange(ctx context.Context, change Change) error

	// GetChange returns nil, nil when the change does not exist.
	GetChange(ctx context.Context, id ChangeID) (*Change, error)

	// Changes returns an asset's history, newest OccurredAt first, ties
	// broken by ID descending.
	Changes(ctx context.Context, assetID AssetID) ([]Change, error)

	MarkChangeUndone(ctx context.Context, id ChangeID, by string, at time.Time) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Reset removes all assets and changes. Used by demo scenarios.
	Reset(ctx context.Context) error
}
