/*
assets.go - HTTP handlers for assets and tools

ROUTES (mounted when Handler.Assets is set):
  GET    /api/assets                      List (q, include_deleted)
  POST   /api/assets                      Register (stock writers)
  GET    /api/assets/{id}                 One asset
  GET    /api/assets/{id}/history         Hand-over history, newest first
  POST   /api/assets/{id}/assign          Hand to a user (stock writers)
  POST   /api/assets/{id}/return          Take back (stock writers)
  POST   /api/assets/changes/{id}/undo    Void the latest change (stock writers)
  DELETE /api/assets/{id}                 Soft delete (superadmin)

SEE ALSO:
  - assets/service.go: rules behind every route
*/
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/stock-ledger/assets"
)

// =============================================================================
// DTOs
// =============================================================================

type CreateAssetRequest struct {
	Name         string     `json:"name" validate:"required,max=255"`
	Description  string     `json:"description" validate:"required,max=2000"`
	DateAdded    *time.Time `json:"date_added"`
	WarrantyDate string     `json:"warranty_date" validate:"omitempty,datetime=2006-01-02"`
	ImageRef     string     `json:"image_ref" validate:"max=500"`
}

type HandOverRequest struct {
	AssignedTo string     `json:"assigned_to" validate:"max=255"`
	Remarks    string     `json:"remarks" validate:"max=2000"`
	OccurredAt *time.Time `json:"transaction_date"`
}

type AssetDTO struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	DateAdded      time.Time `json:"date_added"`
	WarrantyDate   *string   `json:"warranty_date"`
	WarrantyActive bool      `json:"warranty_active"`
	ImageRef       string    `json:"image_ref,omitempty"`
	AssignedUser   *string   `json:"assigned_user"`
	AssignedBy     string    `json:"assigned_by"`
	Remarks        string    `json:"remarks,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
	IsDeleted      bool      `json:"is_deleted"`
}

type AssetChangeDTO struct {
	ID           string     `json:"id"`
	AssetID      string     `json:"asset_id"`
	ChangeType   string     `json:"change_type"`
	PreviousUser *string    `json:"previous_user"`
	AssignedTo   *string    `json:"assigned_to"`
	Remarks      string     `json:"remarks,omitempty"`
	UpdatedBy    string     `json:"updated_by"`
	Date         time.Time  `json:"transaction_date"`
	Undone       bool       `json:"undone"`
	UndoneBy     string     `json:"undone_by,omitempty"`
	UndoneAt     *time.Time `json:"undone_at,omitempty"`
}

func (h *Handler) toAssetDTO(a assets.Asset) AssetDTO {
	dto := AssetDTO{
		ID:             a.ID.String(),
		Name:           a.Name,
		Description:    a.Description,
		DateAdded:      a.DateAdded.UTC(),
		WarrantyActive: a.WarrantyActive(h.now(), h.Engine.Location),
		ImageRef:       a.ImageRef,
		AssignedUser:   optional(a.AssignedUser),
		AssignedBy:     a.AssignedBy,
		Remarks:        a.Remarks,
		UpdatedAt:      a.UpdatedAt.UTC(),
		IsDeleted:      a.IsDeleted,
	}
	if a.WarrantyDate != nil {
		d := a.WarrantyDate.Format(assets.DateLayout)
		dto.WarrantyDate = &d
	}
	return dto
}

func toAssetChangeDTO(c assets.Change) AssetChangeDTO {
	dto := AssetChangeDTO{
		ID:           c.ID.String(),
		AssetID:      c.AssetID.String(),
		ChangeType:   string(c.Type),
		PreviousUser: optional(c.PreviousUser),
		AssignedTo:   optional(c.AssignedTo),
		Remarks:      c.Remarks,
		UpdatedBy:    c.Actor,
		Date:         c.OccurredAt.UTC(),
		Undone:       c.Undone,
		UndoneBy:     c.UndoneBy,
	}
	if !c.UndoneAt.IsZero() {
		at := c.UndoneAt.UTC()
		dto.UndoneAt = &at
	}
	return dto
}

// optional renders "" as JSON null.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted"))
	list, err := h.Assets.List(r.Context(), assets.AssetFilter{
		IncludeDeleted: includeDeleted,
		Search:         r.URL.Query().Get("q"),
	})
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	out := make([]AssetDTO, len(list))
	for i, a := range list {
		out[i] = h.toAssetDTO(a)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if !h.decode(w, r, &req) {
		return
	}
	details := assets.AssetDetails{Name: req.Name, Description: req.Description, ImageRef: req.ImageRef}
	if req.DateAdded != nil {
		details.DateAdded = *req.DateAdded
	}
	if req.WarrantyDate != "" {
		d, _ := time.Parse(assets.DateLayout, req.WarrantyDate) // format checked by validator
		details.WarrantyDate = &d
	}
	a, err := h.Assets.Add(r.Context(), details, PrincipalFrom(r.Context()).Username)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toAssetDTO(a))
}

func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(w, r)
	if !ok {
		return
	}
	a, err := h.Assets.Get(r.Context(), id)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAssetDTO(a))
}

func (h *Handler) AssetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(w, r)
	if !ok {
		return
	}
	history, err := h.Assets.History(r.Context(), id)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	out := make([]AssetChangeDTO, len(history))
	for i, c := range history {
		out[i] = toAssetChangeDTO(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) AssignAsset(w http.ResponseWriter, r *http.Request) {
	h.handOver(w, r, h.Assets.Assign)
}

func (h *Handler) ReturnAsset(w http.ResponseWriter, r *http.Request) {
	h.handOver(w, r, h.Assets.Return)
}

type handOverFunc func(ctx context.Context, id assets.AssetID, a assets.Assignment, actor string) (assets.Change, error)

func (h *Handler) handOver(w http.ResponseWriter, r *http.Request, fn handOverFunc) {
	id, ok := assetIDParam(w, r)
	if !ok {
		return
	}
	var req HandOverRequest
	if !h.decode(w, r, &req) {
		return
	}
	a := assets.Assignment{AssignedTo: req.AssignedTo, Remarks: req.Remarks}
	if req.OccurredAt != nil {
		a.OccurredAt = *req.OccurredAt
	}
	change, err := fn(r.Context(), id, a, PrincipalFrom(r.Context()).Username)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetChangeDTO(change))
}

func (h *Handler) UndoAssetChange(w http.ResponseWriter, r *http.Request) {
	id, err := assets.ParseChangeID(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "Invalid change id", "invalid_id", err)
		return
	}
	a, err := h.Assets.Undo(r.Context(), id, PrincipalFrom(r.Context()).Username)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAssetDTO(a))
}

func (h *Handler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	id, ok := assetIDParam(w, r)
	if !ok {
		return
	}
	a, err := h.Assets.Delete(r.Context(), id, PrincipalFrom(r.Context()).Username)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toAssetDTO(a))
}

func assetIDParam(w http.ResponseWriter, r *http.Request) (assets.AssetID, bool) {
	id, err := assets.ParseAssetID(chi.URLParam(r, "id"))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "Invalid asset id", "invalid_id", err)
		return 0, false
	}
	return id, true
}
