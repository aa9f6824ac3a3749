/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

IDS:
  Item and entry ids are snowflakes and exceed JavaScript's safe integer
  range, so they are rendered as strings.

QUANTITIES:
  Quantities arrive as JSON numbers or numeric strings and are parsed with
  shopspring/decimal. Fractions are rejected; stock is counted in whole
  units of the item's unit of measure.

VALIDATION:
  Request types carry go-playground/validator tags; handlers call
  h.Validate.Struct before touching the engine.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/stock-ledger/stock"
)

const dateTimeLayout = time.RFC3339

// =============================================================================
// ITEMS
// =============================================================================

type ItemDTO struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	Unit              string `json:"unit"`
	PartNo            string `json:"part_no,omitempty"`
	ImageRef          string `json:"image_ref,omitempty"`
	CreatedBy         string `json:"created_by,omitempty"`
	CreatedAt         string `json:"created_at"`
	TotalStock        int    `json:"total_stock"`
	AllocatedQuantity int    `json:"allocated_quantity"`
	LastModified      string `json:"date_last_modified"`
	IsDeleted         bool   `json:"is_deleted"`
}

type CreateItemRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Unit        string `json:"unit" validate:"omitempty,oneof=pcs rolls meters gallons litters bottles cans"`
	PartNo      string `json:"part_no" validate:"max=100"`
	ImageRef    string `json:"image_ref" validate:"max=500"`
}

// UpdateItemRequest changes only the fields present in the body.
type UpdateItemRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Unit        *string `json:"unit" validate:"omitempty,oneof=pcs rolls meters gallons litters bottles cans"`
	PartNo      *string `json:"part_no" validate:"omitempty,max=100"`
	ImageRef    *string `json:"image_ref" validate:"omitempty,max=500"`
}

func (r UpdateItemRequest) merge(item stock.Item) stock.ItemDetails {
	d := stock.ItemDetails{
		Name:        item.Name,
		Description: item.Description,
		Unit:        item.Unit,
		PartNo:      item.PartNo,
		ImageRef:    item.ImageRef,
	}
	if r.Name != nil {
		d.Name = *r.Name
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	if r.Unit != nil {
		d.Unit = stock.Unit(*r.Unit)
	}
	if r.PartNo != nil {
		d.PartNo = *r.PartNo
	}
	if r.ImageRef != nil {
		d.ImageRef = *r.ImageRef
	}
	return d
}

func toItemDTO(it stock.Item) ItemDTO {
	return ItemDTO{
		ID:                it.ID.String(),
		Name:              it.Name,
		Description:       it.Description,
		Unit:              string(it.Unit),
		PartNo:            it.PartNo,
		ImageRef:          it.ImageRef,
		CreatedBy:         it.CreatedBy,
		CreatedAt:         it.CreatedAt.Format(dateTimeLayout),
		TotalStock:        it.TotalStock,
		AllocatedQuantity: it.AllocatedQuantity,
		LastModified:      it.LastModified.Format(dateTimeLayout),
		IsDeleted:         it.IsDeleted,
	}
}

func toItemDTOs(items []stock.Item) []ItemDTO {
	out := make([]ItemDTO, len(items))
	for i, it := range items {
		out[i] = toItemDTO(it)
	}
	return out
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

// SubmitEntryRequest is one candidate movement. Exactly one of In, Out and
// Allocated must be positive.
type SubmitEntryRequest struct {
	Date       string              `json:"date" validate:"required"`
	In         decimal.Decimal     `json:"in"`
	Out        decimal.Decimal     `json:"out"`
	Allocated  decimal.Decimal     `json:"allocated"`
	Serials    stock.SerialPayload `json:"serial_numbers"`
	Location   string              `json:"location" validate:"max=200"`
	SupplierPO string              `json:"po_supplier" validate:"max=100"`
	ClientPO   string              `json:"po_client" validate:"max=100"`
	DRNumber   string              `json:"dr_no" validate:"max=100"`
	Remarks    string              `json:"remarks" validate:"max=1000"`
}

// toSubmission converts the request; loc interprets dates without a zone.
func (r SubmitEntryRequest) toSubmission(itemID stock.ItemID, actor string, loc *time.Location) (stock.Submission, error) {
	at, err := parseEntryDate(r.Date, loc)
	if err != nil {
		return stock.Submission{}, err
	}
	in, err := wholeQuantity("in", r.In)
	if err != nil {
		return stock.Submission{}, err
	}
	out, err := wholeQuantity("out", r.Out)
	if err != nil {
		return stock.Submission{}, err
	}
	allocated, err := wholeQuantity("allocated", r.Allocated)
	if err != nil {
		return stock.Submission{}, err
	}
	return stock.Submission{
		ItemID:     itemID,
		OccurredAt: at,
		In:         in,
		Out:        out,
		Allocated:  allocated,
		Serials:    r.Serials,
		Metadata: stock.Metadata{
			Location:   strings.TrimSpace(r.Location),
			SupplierPO: strings.TrimSpace(r.SupplierPO),
			ClientPO:   strings.TrimSpace(r.ClientPO),
			DRNumber:   strings.TrimSpace(r.DRNumber),
			Remarks:    strings.TrimSpace(r.Remarks),
		},
		Actor: actor,
	}, nil
}

// Accepted entry date formats, tried in order. Zone-less forms are read in
// the configured location.
var entryDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseEntryDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range entryDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func wholeQuantity(field string, d decimal.Decimal) (int, error) {
	if !d.IsInteger() {
		return 0, fmt.Errorf("%s must be a whole number, got %s", field, d.String())
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) || d.LessThan(decimal.NewFromInt(math.MinInt32)) {
		return 0, fmt.Errorf("%s is out of range", field)
	}
	return int(d.IntPart()), nil
}

type EntryDTO struct {
	ID                string   `json:"id"`
	ItemID            string   `json:"item_id"`
	Date              string   `json:"date"`
	Type              string   `json:"transaction_type"`
	Quantity          int      `json:"quantity"`
	AllocatedQuantity int      `json:"allocated_quantity"`
	Serials           []string `json:"serial_numbers"`
	Location          string   `json:"location,omitempty"`
	SupplierPO        string   `json:"po_supplier,omitempty"`
	ClientPO          string   `json:"po_client,omitempty"`
	DRNumber          string   `json:"dr_no,omitempty"`
	Remarks           string   `json:"remarks,omitempty"`
	Actor             string   `json:"updated_by,omitempty"`
	CreatedAt         string   `json:"created_at"`
	ConvertedFrom     *string  `json:"converted_from,omitempty"`
	Status            string   `json:"status"`
	Undone            bool     `json:"undone"`
	IsConverted       bool     `json:"is_converted"`
	StockAfter        int      `json:"stock_after_transaction"`
	AllocatedAfter    int      `json:"allocated_after_transaction"`
}

func toEntryDTO(e stock.Entry) EntryDTO {
	dto := EntryDTO{
		ID:                e.ID.String(),
		ItemID:            e.ItemID.String(),
		Date:              e.OccurredAt.Format(dateTimeLayout),
		Type:              string(e.Type),
		Quantity:          e.Quantity,
		AllocatedQuantity: e.AllocatedQuantity,
		Serials:           e.Serials,
		Location:          e.Metadata.Location,
		SupplierPO:        e.Metadata.SupplierPO,
		ClientPO:          e.Metadata.ClientPO,
		DRNumber:          e.Metadata.DRNumber,
		Remarks:           e.Metadata.Remarks,
		Actor:             e.Actor,
		CreatedAt:         e.CreatedAt.Format(dateTimeLayout),
		Status:            string(e.Status),
		Undone:            e.Undone(),
		IsConverted:       e.Converted(),
		StockAfter:        e.StockAfter,
		AllocatedAfter:    e.AllocatedAfter,
	}
	if dto.Serials == nil {
		dto.Serials = []string{}
	}
	if e.ConvertedFrom != nil {
		src := e.ConvertedFrom.String()
		dto.ConvertedFrom = &src
	}
	return dto
}

func toEntryDTOs(entries []stock.Entry) []EntryDTO {
	out := make([]EntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toEntryDTO(e)
	}
	return out
}

// ReceiptLineDTO is an entry with the item fields needed for display.
type ReceiptLineDTO struct {
	EntryDTO
	ItemName        string `json:"item_name"`
	ItemDescription string `json:"item_description"`
	ItemUnit        string `json:"item_unit"`
}

func toReceiptLines(views []stock.EntryView) []ReceiptLineDTO {
	out := make([]ReceiptLineDTO, len(views))
	for i, v := range views {
		out[i] = ReceiptLineDTO{
			EntryDTO:        toEntryDTO(v.Entry),
			ItemName:        v.ItemName,
			ItemDescription: v.ItemDescription,
			ItemUnit:        string(v.ItemUnit),
		}
	}
	return out
}

// ResultDTO is returned by submit, undo and convert.
type ResultDTO struct {
	Entry             EntryDTO  `json:"entry"`
	Created           *EntryDTO `json:"created,omitempty"`
	TotalStock        int       `json:"total_stock"`
	AllocatedQuantity int       `json:"allocated_quantity"`
	ItemDeleted       bool      `json:"item_deleted"`
}

func toResultDTO(res stock.Result) ResultDTO {
	dto := ResultDTO{
		Entry:             toEntryDTO(res.Entry),
		TotalStock:        res.Totals.TotalStock,
		AllocatedQuantity: res.Totals.AllocatedQuantity,
		ItemDeleted:       res.Deleted,
	}
	if res.Created != nil {
		created := toEntryDTO(*res.Created)
		dto.Created = &created
	}
	return dto
}

// =============================================================================
// SERIALS, AUDIT, DASHBOARD
// =============================================================================

type SerialDTO struct {
	Code      string `json:"serial_number"`
	Available bool   `json:"is_available"`
}

func toSerialDTOs(units []stock.SerialUnit) []SerialDTO {
	out := make([]SerialDTO, len(units))
	for i, u := range units {
		out[i] = SerialDTO{Code: u.Code, Available: u.Available}
	}
	return out
}

type AuditDTO struct {
	ID            string `json:"id"`
	ItemID        string `json:"item_id"`
	Actor         string `json:"user"`
	Action        string `json:"action"`
	Quantity      int    `json:"quantity"`
	PreviousStock int    `json:"previous_stock"`
	NewStock      int    `json:"new_stock"`
	Remarks       string `json:"remarks,omitempty"`
	Timestamp     string `json:"timestamp"`
}

func toAuditDTOs(entries []stock.AuditEntry) []AuditDTO {
	out := make([]AuditDTO, len(entries))
	for i, a := range entries {
		out[i] = AuditDTO{
			ID:            a.ID,
			ItemID:        a.ItemID.String(),
			Actor:         a.Actor,
			Action:        string(a.Action),
			Quantity:      a.Quantity,
			PreviousStock: a.PreviousStock,
			NewStock:      a.NewStock,
			Remarks:       a.Remarks,
			Timestamp:     a.Timestamp.Format(dateTimeLayout),
		}
	}
	return out
}

type SummaryDTO struct {
	Items          int             `json:"items"`
	DeletedItems   int             `json:"deleted_items"`
	ZeroStockItems int             `json:"zero_stock_items"`
	TotalUnits     int             `json:"total_units"`
	AllocatedUnits int             `json:"allocated_units"`
	AllocationRate decimal.Decimal `json:"allocation_rate"`
}

type DriftDTO struct {
	ItemID            string   `json:"item_id"`
	ItemName          string   `json:"item_name"`
	StoredStock       int      `json:"stored_stock"`
	ReplayedStock     int      `json:"replayed_stock"`
	StoredAllocated   int      `json:"stored_allocated"`
	ReplayedAllocated int      `json:"replayed_allocated"`
	SnapshotDrift     []string `json:"snapshot_drift"`
	SerialDrift       []string `json:"serial_drift"`
}

type RebuildReportDTO struct {
	Checked  int        `json:"checked"`
	Repaired []DriftDTO `json:"repaired"`
}

// SchedulerStatusDTO describes the periodic rebuild pass.
type SchedulerStatusDTO struct {
	Enabled    bool              `json:"enabled"`
	Running    bool              `json:"running"`
	Interval   string            `json:"interval,omitempty"`
	LastRun    *time.Time        `json:"last_run"`
	NextRun    *time.Time        `json:"next_run"`
	LastError  string            `json:"last_error,omitempty"`
	LastReport *RebuildReportDTO `json:"last_report"`
}

func toSchedulerStatusDTO(st SchedulerStatus) SchedulerStatusDTO {
	dto := SchedulerStatusDTO{Enabled: st.Enabled, Running: st.Running}
	if st.Interval > 0 {
		dto.Interval = st.Interval.String()
	}
	if !st.LastRun.IsZero() {
		last := st.LastRun.UTC()
		dto.LastRun = &last
		report := toRebuildReportDTO(st.LastReport)
		dto.LastReport = &report
	}
	if !st.NextRun.IsZero() {
		next := st.NextRun.UTC()
		dto.NextRun = &next
	}
	if st.LastErr != nil {
		dto.LastError = st.LastErr.Error()
	}
	return dto
}

func toRebuildReportDTO(r stock.RebuildReport) RebuildReportDTO {
	dto := RebuildReportDTO{Checked: r.Checked, Repaired: make([]DriftDTO, len(r.Repaired))}
	for i, d := range r.Repaired {
		ids := make([]string, len(d.SnapshotDrift))
		for j, id := range d.SnapshotDrift {
			ids[j] = id.String()
		}
		serials := d.SerialDrift
		if serials == nil {
			serials = []string{}
		}
		dto.Repaired[i] = DriftDTO{
			ItemID:            d.ItemID.String(),
			ItemName:          d.ItemName,
			StoredStock:       d.Stored.TotalStock,
			ReplayedStock:     d.Replayed.TotalStock,
			StoredAllocated:   d.Stored.AllocatedQuantity,
			ReplayedAllocated: d.Replayed.AllocatedQuantity,
			SnapshotDrift:     ids,
			SerialDrift:       serials,
		}
	}
	return dto
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ScenarioResultDTO struct {
	Scenario ScenarioDTO `json:"scenario"`
	Items    []ItemDTO   `json:"items"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
