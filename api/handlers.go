/*
handlers.go - HTTP API handlers for the stock ledger

PURPOSE:
  Exposes the stock engine via REST API. Handles HTTP request/response,
  JSON serialization, validation, and delegates to stock.Engine.

ENDPOINTS:
  Items:
    GET    /api/items                   List items (?include_deleted, ?q)
    POST   /api/items                   Create item
    GET    /api/items/{id}              Item with current totals
    PATCH  /api/items/{id}              Update descriptive fields
    POST   /api/items/{id}/restore      Clear soft-delete flag

  Ledger:
    GET    /api/items/{id}/entries      History in replay order
    POST   /api/items/{id}/entries      Submit a movement
    POST   /api/entries/{id}/undo       Undo an entry
    POST   /api/entries/{id}/convert    Convert ALLOCATED to OUT
    GET    /api/entries/{id}/serials    Serials of one entry

  Lookups:
    GET    /api/items/{id}/serials      Serial units (?available=true)
    GET    /api/items/{id}/audit        Audit trail
    GET    /api/receipts/{dr}           Delivery receipt (?po_client)
    GET    /api/search/po?q=            PO search
    GET    /api/dashboard               Catalogue summary

  Admin:
    POST   /api/admin/rebuild           Verify and repair every item

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Item or entry not found
  - 409: Lifecycle conflict (already undone/converted)
  - 503: Item lock not obtained, retry
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - auth.go: Caller identity and role gates
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/assets"
	"github.com/warp/stock-ledger/logger"
	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *stock.Engine
	Validate *validator.Validate
	Log      *zap.Logger

	// Pinger reports storage health; optional.
	Pinger Pinger

	// Scheduler is reported by the rebuild status endpoint; optional.
	Scheduler *RebuildScheduler

	// Assets serves /api/assets; the routes are not mounted when nil.
	Assets *assets.Service

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *stock.Engine, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Engine:   engine,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Log:      log,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Pinger != nil {
		if err := h.Pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   h.now().Format(dateTimeLayout),
	})
}

// =============================================================================
// ITEM HANDLERS
// =============================================================================

// ListItems returns active items, or all with ?include_deleted=true.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted"))
	items, err := h.Engine.ListItems(r.Context(), stock.ItemFilter{
		IncludeDeleted: includeDeleted,
		Search:         r.URL.Query().Get("q"),
	})
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(items))
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.Engine.CreateItem(r.Context(), stock.ItemDetails{
		Name:        req.Name,
		Description: req.Description,
		Unit:        stock.Unit(req.Unit),
		PartNo:      req.PartNo,
		ImageRef:    req.ImageRef,
	}, PrincipalFrom(r.Context()).Username)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	item, err := h.Engine.GetItem(r.Context(), id)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	current, err := h.Engine.GetItem(r.Context(), id)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	item, err := h.Engine.UpdateItem(r.Context(), id, req.merge(current))
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

func (h *Handler) RestoreItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	item, err := h.Engine.RestoreItem(r.Context(), id, PrincipalFrom(r.Context()).Username)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemDTO(item))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// History returns every entry of the item in replay order.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	entries, err := h.Engine.History(r.Context(), id)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// SubmitEntry records one movement.
// POST /api/items/{id}/entries
func (h *Handler) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	var req SubmitEntryRequest
	if !h.decode(w, r, &req) {
		return
	}
	sub, err := req.toSubmission(id, PrincipalFrom(r.Context()).Username, h.Engine.Location)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "Invalid request body", "invalid_request", err)
		return
	}
	res, err := h.Engine.Submit(r.Context(), sub)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResultDTO(res))
}

func (h *Handler) UndoEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.Undo(r.Context(), id, PrincipalFrom(r.Context()).Username)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(res))
}

func (h *Handler) ConvertEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.Convert(r.Context(), id, PrincipalFrom(r.Context()).Username)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResultDTO(res))
}

func (h *Handler) EntrySerials(w http.ResponseWriter, r *http.Request) {
	id, ok := entryIDParam(w, r)
	if !ok {
		return
	}
	codes, err := h.Engine.EntrySerials(r.Context(), id)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"serial_numbers": codes})
}

// =============================================================================
// LOOKUP HANDLERS
// =============================================================================

func (h *Handler) ItemSerials(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	onlyAvailable, _ := strconv.ParseBool(r.URL.Query().Get("available"))
	units, err := h.Engine.Serials(r.Context(), id, onlyAvailable)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSerialDTOs(units))
}

func (h *Handler) ItemAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	entries, err := h.Engine.Audit(r.Context(), id)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTOs(entries))
}

// DeliveryReceipt lists movements recorded under a DR number.
// GET /api/receipts/{dr}?po_client=
func (h *Handler) DeliveryReceipt(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Engine.DeliveryReceipt(r.Context(), chi.URLParam(r, "dr"), r.URL.Query().Get("po_client"))
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptLines(lines))
}

func (h *Handler) SearchPO(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Engine.SearchByPO(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptLines(lines))
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.Summary(r.Context())
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryDTO{
		Items:          s.Items,
		DeletedItems:   s.DeletedItems,
		ZeroStockItems: s.ZeroStockItems,
		TotalUnits:     s.TotalUnits,
		AllocatedUnits: s.AllocatedUnits,
		AllocationRate: s.AllocationRate,
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Rebuild replays every item and repairs drift.
// POST /api/admin/rebuild
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.RebuildAll(r.Context(), PrincipalFrom(r.Context()).Username)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRebuildReportDTO(report))
}

// RebuildStatus reports the periodic verification pass.
// GET /api/admin/rebuild/status
func (h *Handler) RebuildStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusDTO{})
		return
	}
	writeJSON(w, http.StatusOK, toSchedulerStatusDTO(h.Scheduler.Status()))
}

// =============================================================================
// HELPERS
// =============================================================================

func itemIDParam(w http.ResponseWriter, r *http.Request) (stock.ItemID, bool) {
	id, err := stock.ParseItemID(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "Invalid item id", "invalid_id", err)
		return 0, false
	}
	return id, true
}

func entryIDParam(w http.ResponseWriter, r *http.Request) (stock.EntryID, bool) {
	id, err := stock.ParseEntryID(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "Invalid entry id", "invalid_id", err)
		return 0, false
	}
	return id, true
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "Invalid request body", "invalid_request", err)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "Validation failed", "validation_failed", err)
		return false
	}
	return true
}

// errorCodes maps engine errors to stable API codes, most specific first.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{stock.ErrNotFound, http.StatusNotFound, "not_found"},
	{stock.ErrLockTimeout, http.StatusServiceUnavailable, "item_busy"},
	{stock.ErrAlreadyUndone, http.StatusConflict, "already_undone"},
	{stock.ErrAlreadyConverted, http.StatusConflict, "already_converted"},
	{stock.ErrConvertedEntry, http.StatusConflict, "converted_entry"},
	{stock.ErrMutualExclusivity, http.StatusBadRequest, "mutual_exclusivity"},
	{stock.ErrNoQuantity, http.StatusBadRequest, "no_quantity"},
	{stock.ErrNegativeQuantity, http.StatusBadRequest, "negative_quantity"},
	{stock.ErrSerialCountMismatch, http.StatusBadRequest, "serial_count_mismatch"},
	{stock.ErrMissingSerials, http.StatusBadRequest, "missing_serials"},
	{stock.ErrInsufficientStock, http.StatusBadRequest, "insufficient_stock"},
	{stock.ErrOutOfWindow, http.StatusBadRequest, "out_of_window"},
	{stock.ErrNotAllocation, http.StatusBadRequest, "not_allocation"},
	{stock.ErrInvalidItem, http.StatusBadRequest, "invalid_item"},
	{assets.ErrInvalidAsset, http.StatusBadRequest, "invalid_asset"},
	{assets.ErrNoChange, http.StatusConflict, "no_change"},
	{assets.ErrNotAssigned, http.StatusConflict, "not_assigned"},
	{assets.ErrAssetDeleted, http.StatusConflict, "asset_deleted"},
	{assets.ErrNotLatest, http.StatusConflict, "not_latest"},
}

func (h *Handler) writeStockError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			writeJSON(w, m.status, ErrorResponse{Error: err.Error(), Code: m.code})
			return
		}
	}
	logger.FromContext(r.Context()).Error("request failed", zap.Error(err))
	writeErrorCode(w, http.StatusInternalServerError, "Internal error", "internal", err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeErrorCode(w, status, message, "", err)
}

func writeErrorCode(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// now is the engine clock, for handlers that stamp responses.
func (h *Handler) now() time.Time {
	if h.Engine.Now != nil {
		return h.Engine.Now()
	}
	return time.Now()
}
