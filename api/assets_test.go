package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *testServer) createAsset(name string) AssetDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/assets", map[string]any{
		"name":          name,
		"description":   "field equipment",
		"warranty_date": "2027-01-31",
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[AssetDTO](s.t, rec)
}

func (s *testServer) handOver(assetID, action string, body map[string]any) AssetChangeDTO {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/assets/"+assetID+"/"+action, body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[AssetChangeDTO](s.t, rec)
}

func TestAssets_AssignUndoReturn(t *testing.T) {
	// GIVEN: A new asset
	// WHEN: It is assigned twice, the last assignment undone, then returned
	// THEN: The holder follows each step and the history keeps every change
	s := newTestServer(t, nil)
	asset := s.createAsset("OTDR")
	assert.Nil(t, asset.AssignedUser)
	assert.Equal(t, "alice", asset.AssignedBy)
	require.NotNil(t, asset.WarrantyDate)
	assert.Equal(t, "2027-01-31", *asset.WarrantyDate)
	assert.True(t, asset.WarrantyActive)

	first := s.handOver(asset.ID, "assign", map[string]any{"assigned_to": "ann", "remarks": "site survey"})
	assert.Equal(t, "ASSIGNED", first.ChangeType)
	assert.Nil(t, first.PreviousUser)
	require.NotNil(t, first.AssignedTo)
	assert.Equal(t, "ann", *first.AssignedTo)

	requireCode(t, s.do(http.MethodPost, "/api/assets/"+asset.ID+"/assign", map[string]any{"assigned_to": "ann"}), http.StatusConflict, "no_change")

	second := s.handOver(asset.ID, "assign", map[string]any{"assigned_to": "ben"})
	requireCode(t, s.do(http.MethodPost, "/api/assets/changes/"+first.ID+"/undo", nil), http.StatusConflict, "not_latest")

	rec := s.do(http.MethodPost, "/api/assets/changes/"+second.ID+"/undo", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	undone := decodeBody[AssetDTO](t, rec)
	require.NotNil(t, undone.AssignedUser)
	assert.Equal(t, "ann", *undone.AssignedUser)
	requireCode(t, s.do(http.MethodPost, "/api/assets/changes/"+second.ID+"/undo", nil), http.StatusConflict, "already_undone")

	ret := s.handOver(asset.ID, "return", map[string]any{"transaction_date": "2026-03-09T17:00:00Z"})
	assert.Equal(t, "RETURNED", ret.ChangeType)
	assert.Equal(t, "2026-03-09T17:00:00Z", ret.Date.Format("2006-01-02T15:04:05Z07:00"))
	requireCode(t, s.do(http.MethodPost, "/api/assets/"+asset.ID+"/return", map[string]any{}), http.StatusConflict, "not_assigned")

	rec = s.do(http.MethodGet, "/api/assets/"+asset.ID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]AssetChangeDTO](t, rec)
	require.Len(t, history, 3)
	assert.Equal(t, second.ID, history[0].ID)
	assert.True(t, history[0].Undone)
	assert.Equal(t, "alice", history[0].UndoneBy)
	assert.Equal(t, first.ID, history[1].ID)
	assert.Equal(t, ret.ID, history[2].ID, "backdated return sorts by its date")

	rec = s.do(http.MethodGet, "/api/assets/"+asset.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[AssetDTO](t, rec).AssignedUser)
}

func TestAssets_ListAndDelete(t *testing.T) {
	s := newTestServer(t, nil)
	drill := s.createAsset("Drill")
	ladder := s.createAsset("Ladder")
	s.handOver(ladder.ID, "assign", map[string]any{"assigned_to": "Bea Cruz"})

	rec := s.do(http.MethodGet, "/api/assets?q=bea", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	found := decodeBody[[]AssetDTO](t, rec)
	require.Len(t, found, 1)
	assert.Equal(t, ladder.ID, found[0].ID)

	requireCode(t, s.do(http.MethodDelete, "/api/assets/"+drill.ID, nil), http.StatusForbidden, "forbidden")
	s.headers["X-Role"] = string(RoleSuperAdmin)
	rec = s.do(http.MethodDelete, "/api/assets/"+drill.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[AssetDTO](t, rec).IsDeleted)

	rec = s.do(http.MethodGet, "/api/assets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]AssetDTO](t, rec), 1)
	rec = s.do(http.MethodGet, "/api/assets?include_deleted=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]AssetDTO](t, rec), 2)

	requireCode(t, s.do(http.MethodPost, "/api/assets/"+drill.ID+"/assign", map[string]any{"assigned_to": "ann"}), http.StatusConflict, "asset_deleted")
}

func TestAssets_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	asset := s.createAsset("Laptop")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing description", http.MethodPost, "/api/assets", map[string]any{"name": "Drill"}, http.StatusBadRequest, "validation_failed"},
		{"bad warranty date", http.MethodPost, "/api/assets", map[string]any{"name": "Drill", "description": "x", "warranty_date": "31/01/2027"}, http.StatusBadRequest, "validation_failed"},
		{"blank assignee", http.MethodPost, "/api/assets/" + asset.ID + "/assign", map[string]any{"assigned_to": " "}, http.StatusBadRequest, "invalid_asset"},
		{"future hand-over", http.MethodPost, "/api/assets/" + asset.ID + "/assign", map[string]any{"assigned_to": "ann", "transaction_date": "2026-03-11T09:00:00Z"}, http.StatusBadRequest, "invalid_asset"},
		{"bad id", http.MethodGet, "/api/assets/abc", nil, http.StatusBadRequest, "invalid_id"},
		{"unknown asset", http.MethodGet, "/api/assets/42/history", nil, http.StatusNotFound, "not_found"},
		{"unknown change", http.MethodPost, "/api/assets/changes/42/undo", nil, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, s.do(tt.method, tt.path, tt.body), tt.status, tt.code)
		})
	}
}

func TestAssets_ViewerReadOnly(t *testing.T) {
	s := newTestServer(t, nil)
	asset := s.createAsset("Laptop")

	s.headers["X-Role"] = string(RoleViewer)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/assets/"+asset.ID, nil).Code)
	requireCode(t, s.do(http.MethodPost, "/api/assets/"+asset.ID+"/assign", map[string]any{"assigned_to": "ann"}), http.StatusForbidden, "forbidden")
}

func TestAssets_ResetDatabaseClearsAssets(t *testing.T) {
	s := newTestServer(t, nil)
	s.createAsset("Laptop")

	s.headers["X-Role"] = string(RoleAdmin)
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/api/scenarios/reset", nil).Code)

	rec := s.do(http.MethodGet, "/api/assets?include_deleted=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]AssetDTO](t, rec))
}
