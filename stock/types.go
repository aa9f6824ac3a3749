/*
Package stock provides the stock ledger and reconciliation engine.

PURPOSE:
  This package owns everything that affects stock math for an inventory item:
  the ledger of typed stock movements (IN, OUT, ALLOCATED), the serial units
  of serialized items, the full-replay reconciliation that derives aggregate
  and per-entry figures, undo and allocate-to-out conversion, and the audit
  trail written after every reconciliation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Item: An inventory-tracked good with derived TotalStock/AllocatedQuantity
  - SerialUnit: One individually tracked unit of an item
  - Entry: One ledger record of a stock-affecting event
  - Status: Explicit entry lifecycle (active, undone, converted)
  - AuditEntry: Human-readable record of a reconciliation outcome

DESIGN PRINCIPLES:
  1. Single source of truth: aggregates are only ever written by Reconcile
  2. Void, never delete: undone entries stay in the ledger for history
  3. Full replay: every mutation replays the item's ledger from scratch
  4. Atomic: every mutation runs inside one store transaction under an item lock

USAGE:
  engine := stock.NewEngine(store)
  res, err := engine.Submit(ctx, stock.Submission{
      ItemID:     item.ID,
      OccurredAt: time.Now(),
      In:         5,
      Serials:    stock.Serials("S1", "S2", "S3", "S4", "S5"),
      Actor:      "jdoe",
  })

SEE ALSO:
  - ledger.go: Submission validation and Submit
  - reconcile.go: Replay algorithm and soft-delete policy
  - reversal.go, conversion.go: Undo and Convert
*/
package stock

import (
	"strconv"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID int64
type EntryID int64

func (id ItemID) String() string  { return strconv.FormatInt(int64(id), 10) }
func (id EntryID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseItemID parses the decimal string form of an ItemID.
func ParseItemID(s string) (ItemID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return ItemID(v), err
}

// ParseEntryID parses the decimal string form of an EntryID.
func ParseEntryID(s string) (EntryID, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return EntryID(v), err
}

// =============================================================================
// ITEM
// =============================================================================

type Unit string

const (
	UnitPieces  Unit = "pcs"
	UnitRolls   Unit = "rolls"
	UnitMeters  Unit = "meters"
	UnitGallons Unit = "gallons"
	UnitLiters  Unit = "litters"
	UnitBottles Unit = "bottles"
	UnitCans    Unit = "cans"
)

// Units lists every accepted unit of measure.
var Units = []Unit{UnitPieces, UnitRolls, UnitMeters, UnitGallons, UnitLiters, UnitBottles, UnitCans}

func (u Unit) Valid() bool {
	for _, known := range Units {
		if u == known {
			return true
		}
	}
	return false
}

// Item is an inventory-tracked good.
//
// TotalStock, AllocatedQuantity and LastModified are derived: they hold the
// result of the last reconciliation pass and are never set by callers.
type Item struct {
	ID          ItemID
	Name        string
	Description string
	Unit        Unit
	PartNo      string
	ImageRef    string
	CreatedBy   string
	CreatedAt   time.Time

	TotalStock        int
	AllocatedQuantity int
	LastModified      time.Time
	IsDeleted         bool
}

// ItemDetails are the caller-settable descriptive fields of an item.
type ItemDetails struct {
	Name        string
	Description string
	Unit        Unit
	PartNo      string
	ImageRef    string
}

func (it *Item) apply(d ItemDetails) {
	it.Name = d.Name
	it.Description = d.Description
	it.Unit = d.Unit
	it.PartNo = d.PartNo
	it.ImageRef = d.ImageRef
}

// ItemFilter narrows ListItems.
type ItemFilter struct {
	IncludeDeleted bool
	Search         string // case-insensitive match on name, description or part number
}

// =============================================================================
// SERIAL UNIT
// =============================================================================

// SerialUnit is one serialized unit of one item. (ItemID, Code) is unique.
type SerialUnit struct {
	ItemID    ItemID
	Code      string
	Available bool
}

// =============================================================================
// LEDGER ENTRY
// =============================================================================

type EntryType string

const (
	EntryIn        EntryType = "IN"
	EntryOut       EntryType = "OUT"
	EntryAllocated EntryType = "ALLOCATED"
)

func (t EntryType) Valid() bool {
	return t == EntryIn || t == EntryOut || t == EntryAllocated
}

// Status is the lifecycle of a ledger entry.
//
//	IN, OUT:    active -> undone
//	ALLOCATED:  active -> undone
//	            active -> converted (-> active again when its OUT is undone)
//
// A converted entry cannot be undone directly; undo the OUT it produced.
type Status string

const (
	StatusActive    Status = "active"
	StatusUndone    Status = "undone"
	StatusConverted Status = "converted"
)

// Metadata is the free-text context recorded with an entry.
type Metadata struct {
	Location   string
	SupplierPO string
	ClientPO   string
	DRNumber   string
	Remarks    string
}

// Entry is one record of a stock-affecting event.
//
// Type, Quantity, AllocatedQuantity, Serials, OccurredAt and Metadata never
// change after creation. Status and the two snapshot fields are written only
// by the reconciliation, reversal and conversion paths.
type Entry struct {
	ID                EntryID
	ItemID            ItemID
	OccurredAt        time.Time
	Type              EntryType
	Quantity          int // IN, OUT
	AllocatedQuantity int // ALLOCATED
	Serials           []string
	Metadata          Metadata
	Actor             string
	CreatedAt         time.Time

	// ConvertedFrom references the ALLOCATED entry an OUT was produced from.
	ConvertedFrom *EntryID

	Status         Status
	StockAfter     int
	AllocatedAfter int
}

// Amount returns the quantity the entry moves, whichever field carries it.
func (e Entry) Amount() int {
	if e.Type == EntryAllocated {
		return e.AllocatedQuantity
	}
	return e.Quantity
}

func (e Entry) Undone() bool    { return e.Status == StatusUndone }
func (e Entry) Converted() bool { return e.Status == StatusConverted }

// Reserving reports whether the entry still holds a reservation.
func (e Entry) Reserving() bool {
	return e.Type == EntryAllocated && e.Status == StatusActive
}

// EntryFilter selects entries across items for read-only lookups.
type EntryFilter struct {
	DRNumber      string
	ClientPO      string
	POContains    string // matches supplier or client PO, case-insensitive
	ExcludeTypes  []EntryType
	ExcludeUndone bool
}

// EntryView is an entry joined with the item fields needed for display.
type EntryView struct {
	Entry
	ItemName        string
	ItemDescription string
	ItemUnit        Unit
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

type AuditAction string

const (
	AuditAdd      AuditAction = "add"
	AuditIn       AuditAction = "in"
	AuditOut      AuditAction = "out"
	AuditAllocate AuditAction = "allocate"
	AuditUndo     AuditAction = "undo"
	AuditConvert  AuditAction = "convert"
	AuditRestore  AuditAction = "restore"
	AuditRebuild  AuditAction = "rebuild"
)

// AuditEntry records who did what and how stock moved. Write-once.
type AuditEntry struct {
	ID            string
	ItemID        ItemID
	Actor         string
	Action        AuditAction
	Quantity      int
	PreviousStock int
	NewStock      int
	Remarks       string
	Timestamp     time.Time
}

// =============================================================================
// RESULTS
// =============================================================================

// Totals are the aggregate figures produced by a reconciliation pass.
type Totals struct {
	TotalStock        int
	AllocatedQuantity int
}

// Result is returned by every ledger mutation.
type Result struct {
	Entry   Entry
	Created *Entry // OUT entry created by Convert
	Totals  Totals
	Deleted bool // item soft-deleted by this pass
}
