/*
service.go - Asset registration and hand-over history

PURPOSE:
  Service is the entry point for every asset operation. Each mutation runs
  in one store transaction: the change row is appended and the cached holder
  on the asset row is updated together, so they never disagree.

OPERATIONS:
  Add:     Register an unassigned asset
  Assign:  Hand the asset to a user (ASSIGNED change)
  Return:  Take it back (RETURNED change)
  Undo:    Void the latest active change and restore its previous holder
  Delete:  Soft delete; history stays readable

RULES:
  - Assigning to the current holder is rejected (ErrNoChange)
  - Returning an unassigned asset is rejected (ErrNotAssigned)
  - Deleted assets cannot change hands (ErrAssetDeleted)
  - Only the most recently recorded active change can be undone
    (ErrNotLatest); earlier ones are undone in reverse order
  - Hand-over dates may be backdated but not in the future

SEE ALSO:
  - stock/engine.go: same mutate envelope for ledger writes
  - store/sqlite/assets.go, assets/store/memory.go: implementations
*/
package assets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/stock-ledger/stock"
)

type Service struct {
	Store    TxStore
	IDs      stock.IDGenerator
	Now      func() time.Time
	Log      *zap.Logger
	Observer stock.Observer
}

// NewService returns a service with in-process defaults. Callers override
// fields before first use.
func NewService(store TxStore) *Service {
	return &Service{
		Store: store,
		IDs:   stock.NewSequenceIDs(time.Now().UnixNano()),
		Now:   time.Now,
		Log:   zap.NewNop(),
	}
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// mutate runs fn in one transaction and reports the outcome.
func (s *Service) mutate(ctx context.Context, op string, assetID AssetID, fn func(tx Store) error) error {
	start := time.Now()
	err := s.Store.WithTx(ctx, fn)
	if s.Observer != nil {
		s.Observer.ObserveOperation(op, err, time.Since(start))
	}

	log := s.logger().With(zap.String("op", op), zap.Stringer("asset_id", assetID))
	switch {
	case err == nil:
		log.Debug("asset mutation committed", zap.Duration("elapsed", time.Since(start)))
	case IsRejection(err):
		log.Info("asset mutation rejected", zap.Error(err))
	default:
		log.Error("asset mutation failed", zap.Error(err))
	}
	return err
}

// IsRejection reports errors caused by the request rather than the system.
func IsRejection(err error) bool {
	return stock.IsNotFound(err) || stock.IsConflict(err) ||
		errorsIs(err, ErrInvalidAsset, ErrNoChange, ErrNotAssigned, ErrAssetDeleted, ErrNotLatest)
}

// =============================================================================
// CATALOGUE
// =============================================================================

// Add registers a new, unassigned asset.
func (s *Service) Add(ctx context.Context, d AssetDetails, actor string) (Asset, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	switch {
	case d.Name == "":
		return Asset{}, fmt.Errorf("%w: name is required", ErrInvalidAsset)
	case d.Description == "":
		return Asset{}, fmt.Errorf("%w: description is required", ErrInvalidAsset)
	}

	now := s.Now()
	asset := Asset{
		ID:           AssetID(s.IDs.NextID()),
		Name:         d.Name,
		Description:  d.Description,
		DateAdded:    d.DateAdded,
		WarrantyDate: calendarDate(d.WarrantyDate),
		ImageRef:     d.ImageRef,
		AssignedBy:   actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if asset.DateAdded.IsZero() {
		asset.DateAdded = now
	}
	err := s.mutate(ctx, "asset_add", asset.ID, func(tx Store) error {
		return tx.CreateAsset(ctx, asset)
	})
	return asset, err
}

func (s *Service) Get(ctx context.Context, id AssetID) (Asset, error) {
	asset, err := s.Store.GetAsset(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	if asset == nil {
		return Asset{}, assetNotFound(id)
	}
	return *asset, nil
}

func (s *Service) List(ctx context.Context, filter AssetFilter) ([]Asset, error) {
	return s.Store.ListAssets(ctx, filter)
}

// History returns an asset's changes, newest first, undone ones included.
func (s *Service) History(ctx context.Context, id AssetID) ([]Change, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.Changes(ctx, id)
}

// Delete soft-deletes an asset. Deleting twice is a no-op.
func (s *Service) Delete(ctx context.Context, id AssetID, actor string) (Asset, error) {
	var out Asset
	err := s.mutate(ctx, "asset_delete", id, func(tx Store) error {
		asset, err := tx.GetAsset(ctx, id)
		if err != nil {
			return err
		}
		if asset == nil {
			return assetNotFound(id)
		}
		if !asset.IsDeleted {
			asset.IsDeleted = true
			asset.UpdatedAt = s.Now()
			if err := tx.SaveAsset(ctx, *asset); err != nil {
				return err
			}
			s.logger().Info("asset deleted", zap.Stringer("asset_id", id), zap.String("actor", actor))
		}
		out = *asset
		return nil
	})
	return out, err
}

// Reset removes every asset. Used by demo scenarios.
func (s *Service) Reset(ctx context.Context) error {
	return s.Store.Reset(ctx)
}

// =============================================================================
// HAND-OVERS
// =============================================================================

// Assign hands the asset to a.AssignedTo.
func (s *Service) Assign(ctx context.Context, id AssetID, a Assignment, actor string) (Change, error) {
	to := strings.TrimSpace(a.AssignedTo)
	if to == "" {
		return Change{}, fmt.Errorf("%w: assignee is required", ErrInvalidAsset)
	}
	var out Change
	err := s.mutate(ctx, "asset_assign", id, func(tx Store) error {
		asset, err := liveAsset(ctx, tx, id)
		if err != nil {
			return err
		}
		if asset.AssignedUser == to {
			return ErrNoChange
		}
		out, err = s.handOver(ctx, tx, asset, ChangeAssigned, to, a, actor)
		return err
	})
	return out, err
}

// Return takes the asset back from its holder.
func (s *Service) Return(ctx context.Context, id AssetID, a Assignment, actor string) (Change, error) {
	var out Change
	err := s.mutate(ctx, "asset_return", id, func(tx Store) error {
		asset, err := liveAsset(ctx, tx, id)
		if err != nil {
			return err
		}
		if !asset.Assigned() {
			return ErrNotAssigned
		}
		out, err = s.handOver(ctx, tx, asset, ChangeReturned, "", a, actor)
		return err
	})
	return out, err
}

func (s *Service) handOver(ctx context.Context, tx Store, asset *Asset, typ ChangeType, to string, a Assignment, actor string) (Change, error) {
	now := s.Now()
	at := a.OccurredAt
	if at.IsZero() {
		at = now
	}
	if at.After(now) {
		return Change{}, fmt.Errorf("%w: hand-over date %s is in the future", ErrInvalidAsset, at.Format(DateLayout))
	}
	change := Change{
		ID:           ChangeID(s.IDs.NextID()),
		AssetID:      asset.ID,
		Type:         typ,
		PreviousUser: asset.AssignedUser,
		AssignedTo:   to,
		Remarks:      strings.TrimSpace(a.Remarks),
		Actor:        actor,
		OccurredAt:   at,
		RecordedAt:   now,
	}
	if err := tx.AppendChange(ctx, change); err != nil {
		return Change{}, err
	}
	asset.AssignedUser = to
	asset.AssignedBy = actor
	asset.Remarks = change.Remarks
	asset.UpdatedAt = now
	if err := tx.SaveAsset(ctx, *asset); err != nil {
		return Change{}, err
	}
	return change, nil
}

// Undo voids the latest active change of its asset and restores the
// previous holder.
func (s *Service) Undo(ctx context.Context, id ChangeID, actor string) (Asset, error) {
	change, err := s.Store.GetChange(ctx, id)
	if err != nil {
		return Asset{}, err
	}
	if change == nil {
		return Asset{}, changeNotFound(id)
	}

	var out Asset
	err = s.mutate(ctx, "asset_undo", change.AssetID, func(tx Store) error {
		change, err := tx.GetChange(ctx, id)
		if err != nil {
			return err
		}
		if change == nil {
			return changeNotFound(id)
		}
		if change.Undone {
			return stock.ErrAlreadyUndone
		}
		asset, err := liveAsset(ctx, tx, change.AssetID)
		if err != nil {
			return err
		}
		history, err := tx.Changes(ctx, change.AssetID)
		if err != nil {
			return err
		}
		for _, c := range history {
			if !c.Undone && c.ID > change.ID {
				return ErrNotLatest
			}
		}

		now := s.Now()
		if err := tx.MarkChangeUndone(ctx, id, actor, now); err != nil {
			return err
		}
		asset.AssignedUser = change.PreviousUser
		asset.AssignedBy = actor
		asset.Remarks = fmt.Sprintf("undo %s change %s", change.Type, change.ID)
		asset.UpdatedAt = now
		if err := tx.SaveAsset(ctx, *asset); err != nil {
			return err
		}
		out = *asset
		return nil
	})
	return out, err
}

// liveAsset loads an asset that may still change hands.
func liveAsset(ctx context.Context, tx Store, id AssetID) (*Asset, error) {
	asset, err := tx.GetAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, assetNotFound(id)
	}
	if asset.IsDeleted {
		return nil, ErrAssetDeleted
	}
	return asset, nil
}

func calendarDate(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
