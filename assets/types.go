/*
types.go - Assets and tools with an assignment history

PURPOSE:
  Tracks company equipment (tools, laptops, test sets) that is handed to
  people rather than consumed. An asset is either unassigned or held by one
  user. Every hand-over is a Change row; the asset row only caches the
  current holder.

KEY TYPES:
  Asset:       One piece of equipment and its current holder
  Change:      One ASSIGNED or RETURNED event, undoable
  AssetFilter: Search options for List

SEE ALSO:
  - service.go: Add, Assign, Return, Undo, Delete
  - store.go: Persistence interfaces
*/
package assets

import (
	"strconv"
	"time"
)

type AssetID int64
type ChangeID int64

func (id AssetID) String() string  { return strconv.FormatInt(int64(id), 10) }
func (id ChangeID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseAssetID parses the decimal string form of an AssetID.
func ParseAssetID(s string) (AssetID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return AssetID(v), err
}

// ParseChangeID parses the decimal string form of a ChangeID.
func ParseChangeID(s string) (ChangeID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return ChangeID(v), err
}

// DateLayout is the wire and storage form of calendar dates.
const DateLayout = "2006-01-02"

// =============================================================================
// ASSET
// =============================================================================

type Asset struct {
	ID           AssetID
	Name         string
	Description  string
	DateAdded    time.Time
	WarrantyDate *time.Time // calendar date, nil when unknown
	ImageRef     string
	AssignedUser string // empty when unassigned
	AssignedBy   string
	Remarks      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IsDeleted    bool
}

func (a Asset) Assigned() bool { return a.AssignedUser != "" }

// WarrantyActive reports whether the warranty runs through today's date
// in loc.
func (a Asset) WarrantyActive(now time.Time, loc *time.Location) bool {
	if a.WarrantyDate == nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc).Format(DateLayout)
	return a.WarrantyDate.Format(DateLayout) >= today
}

// AssetDetails are the caller-settable fields of a new asset.
type AssetDetails struct {
	Name         string
	Description  string
	DateAdded    time.Time // zero means now
	WarrantyDate *time.Time
	ImageRef     string
}

// AssetFilter narrows List.
type AssetFilter struct {
	IncludeDeleted bool
	Search         string // case-insensitive match on name, description, holder or assigner
}

// =============================================================================
// CHANGE
// =============================================================================

type ChangeType string

const (
	ChangeAssigned ChangeType = "ASSIGNED"
	ChangeReturned ChangeType = "RETURNED"
)

// Change is one hand-over. PreviousUser and AssignedTo are empty for
// "unassigned".
type Change struct {
	ID           ChangeID
	AssetID      AssetID
	Type         ChangeType
	PreviousUser string
	AssignedTo   string
	Remarks      string
	Actor        string
	OccurredAt   time.Time // when the hand-over happened, caller supplied
	RecordedAt   time.Time
	Undone       bool
	UndoneBy     string
	UndoneAt     time.Time
}

// Assignment is a request to hand an asset to a user.
type Assignment struct {
	AssignedTo string
	Remarks    string
	OccurredAt time.Time // zero means now
}
