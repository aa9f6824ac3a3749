package assets

import (
	"errors"

	"github.com/warp/stock-ledger/stock"
)

var (
	// ErrInvalidAsset is returned when asset details fail validation.
	ErrInvalidAsset = errors.New("invalid asset details")

	// ErrNoChange is returned when assigning an asset to its current holder.
	ErrNoChange = errors.New("asset is already assigned to this user")

	// ErrNotAssigned is returned when returning an unassigned asset.
	ErrNotAssigned = errors.New("asset is not assigned")

	// ErrAssetDeleted is returned when handing over a deleted asset.
	ErrAssetDeleted = errors.New("asset is deleted")

	// ErrNotLatest is returned when undoing a change that a later active
	// change builds on.
	ErrNotLatest = errors.New("only the latest change of an asset can be undone")
)

func assetNotFound(id AssetID) error {
	return &stock.NotFoundError{Kind: "asset", ID: int64(id)}
}

func changeNotFound(id ChangeID) error {
	return &stock.NotFoundError{Kind: "asset change", ID: int64(id)}
}

func errorsIs(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}
