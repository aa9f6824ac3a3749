/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a small
	catalogue and ledger demonstrating one engine behaviour each.

AVAILABLE SCENARIOS:

	serialized-receipt:  IN 5 serialized units, all available
	partial-dispatch:    ...then OUT 2 of them under a DR number
	undo-dispatch:       ...then undo the OUT, serials return
	depletion:           IN 2 then OUT 2, item auto soft-deletes
	allocation-convert:  ALLOCATED 2 converted into an OUT
	backdated-receipt:   backdated IN rewrites later snapshots

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Run the loader against a copy of the engine whose clock starts one
    hour ago and advances a few minutes per reading, so creation grace
    periods elapse and entries get distinct timestamps
 3. Return every item touched, including soft-deleted ones

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "allocation-convert"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: shared handler helpers
  - stock/ledger.go: Submit
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "serialized-receipt",
		Name:        "Serialized Receipt",
		Description: "Receive 5 access points with serial numbers; all units available",
	},
	{
		ID:          "partial-dispatch",
		Name:        "Partial Dispatch",
		Description: "Receive 5 serialized units, then dispatch 2 under a delivery receipt",
	},
	{
		ID:          "undo-dispatch",
		Name:        "Undo Dispatch",
		Description: "Dispatch 2 serialized units, then undo it; stock and serials return",
	},
	{
		ID:          "depletion",
		Name:        "Depletion",
		Description: "Receive 2 and dispatch 2; the item is soft-deleted at zero stock",
	},
	{
		ID:          "allocation-convert",
		Name:        "Allocation Convert",
		Description: "Allocate 2 of 5 units, then convert the allocation into a dispatch",
	},
	{
		ID:          "backdated-receipt",
		Name:        "Backdated Receipt",
		Description: "A receipt dated yesterday rewrites the snapshots of later entries",
	},
}

type scenarioLoader func(ctx context.Context, s *scenarioRun) error

var scenarioLoaders = map[string]scenarioLoader{
	"serialized-receipt": loadSerializedReceipt,
	"partial-dispatch":   loadPartialDispatch,
	"undo-dispatch":      loadUndoDispatch,
	"depletion":          loadDepletion,
	"allocation-convert": loadAllocationConvert,
	"backdated-receipt":  loadBackdatedReceipt,
}

func findScenario(id string) (ScenarioDTO, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return ScenarioDTO{}, false
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, _ := findScenario(current)
	writeJSON(w, http.StatusOK, s)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	scenario, ok := findScenario(req.ScenarioID)
	if !ok {
		writeErrorCode(w, http.StatusBadRequest, "Unknown scenario", "unknown_scenario", nil)
		return
	}

	items, err := h.loadScenario(r.Context(), scenario.ID, PrincipalFrom(r.Context()).Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, ScenarioResultDTO{Scenario: scenario, Items: toItemDTOs(items)})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Engine.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if h.Assets != nil {
		if err := h.Assets.Reset(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset assets", err)
			return
		}
	}
	h.currentScenario = ""
	h.Log.Info("database reset", zap.String("actor", PrincipalFrom(r.Context()).Username))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) loadScenario(ctx context.Context, id, actor string) ([]stock.Item, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Engine.Store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	run := newScenarioRun(h.Engine, actor)
	if err := scenarioLoaders[id](ctx, run); err != nil {
		return nil, err
	}
	h.currentScenario = id
	h.Log.Info("scenario loaded", zap.String("scenario", id), zap.Int("items", len(run.items)))

	items := make([]stock.Item, 0, len(run.items))
	for _, itemID := range run.items {
		item, err := h.Engine.GetItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// =============================================================================
// SCENARIO RUN
// =============================================================================

const scenarioClockStep = 2 * time.Minute

// scenarioClock starts at a fixed instant and advances by step on each reading.
type scenarioClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *scenarioClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

// scenarioRun drives an engine copy and remembers the items it created.
type scenarioRun struct {
	engine *stock.Engine
	clock  *scenarioClock
	actor  string
	items  []stock.ItemID
}

func newScenarioRun(e *stock.Engine, actor string) *scenarioRun {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	clock := &scenarioClock{t: now().Add(-time.Hour), step: scenarioClockStep}
	engine := *e
	engine.Now = clock.Now
	return &scenarioRun{engine: &engine, clock: clock, actor: actor}
}

func (s *scenarioRun) createItem(ctx context.Context, name, description string) (stock.ItemID, error) {
	item, err := s.engine.CreateItem(ctx, stock.ItemDetails{
		Name:        name,
		Description: description,
		Unit:        stock.UnitPieces,
	}, s.actor)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", name, err)
	}
	s.items = append(s.items, item.ID)
	return item.ID, nil
}

// submit records a movement dated at the current clock reading plus offset.
func (s *scenarioRun) submit(ctx context.Context, sub stock.Submission, offset time.Duration) (stock.Result, error) {
	sub.OccurredAt = s.clock.Now().Add(offset)
	sub.Actor = s.actor
	res, err := s.engine.Submit(ctx, sub)
	if err != nil {
		return stock.Result{}, fmt.Errorf("submit to item %s: %w", sub.ItemID, err)
	}
	return res, nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

var accessPointSerials = []string{"AP-0001", "AP-0002", "AP-0003", "AP-0004", "AP-0005"}

func receiveAccessPoints(ctx context.Context, s *scenarioRun) (stock.ItemID, error) {
	id, err := s.createItem(ctx, "Access Point AP-500", "Ceiling mount wireless access point")
	if err != nil {
		return 0, err
	}
	_, err = s.submit(ctx, stock.Submission{
		ItemID:   id,
		In:       5,
		Serials:  stock.Serials(accessPointSerials...),
		Metadata: stock.Metadata{Location: "Warehouse A", SupplierPO: "PO-S-1001", Remarks: "initial receipt"},
	}, 0)
	return id, err
}

func dispatchAccessPoints(ctx context.Context, s *scenarioRun, id stock.ItemID) (stock.Result, error) {
	return s.submit(ctx, stock.Submission{
		ItemID:  id,
		Out:     2,
		Serials: stock.Serials(accessPointSerials[:2]...),
		Metadata: stock.Metadata{
			Location: "Client site",
			ClientPO: "PO-C-2001",
			DRNumber: "DR-3001",
		},
	}, 0)
}

func loadSerializedReceipt(ctx context.Context, s *scenarioRun) error {
	_, err := receiveAccessPoints(ctx, s)
	return err
}

func loadPartialDispatch(ctx context.Context, s *scenarioRun) error {
	id, err := receiveAccessPoints(ctx, s)
	if err != nil {
		return err
	}
	_, err = dispatchAccessPoints(ctx, s, id)
	return err
}

func loadUndoDispatch(ctx context.Context, s *scenarioRun) error {
	id, err := receiveAccessPoints(ctx, s)
	if err != nil {
		return err
	}
	res, err := dispatchAccessPoints(ctx, s, id)
	if err != nil {
		return err
	}
	_, err = s.engine.Undo(ctx, res.Entry.ID, s.actor)
	return err
}

func loadDepletion(ctx context.Context, s *scenarioRun) error {
	id, err := s.createItem(ctx, "Fiber Patch Cord", "LC-LC duplex, 3m")
	if err != nil {
		return err
	}
	if _, err := s.submit(ctx, stock.Submission{
		ItemID:  id,
		In:      2,
		Serials: stock.Serials("S1", "S2"),
	}, 0); err != nil {
		return err
	}
	_, err = s.submit(ctx, stock.Submission{
		ItemID:   id,
		Out:      2,
		Serials:  stock.Serials("S1", "S2"),
		Metadata: stock.Metadata{DRNumber: "DR-3002", ClientPO: "PO-C-2002"},
	}, 0)
	return err
}

func loadAllocationConvert(ctx context.Context, s *scenarioRun) error {
	id, err := receiveAccessPoints(ctx, s)
	if err != nil {
		return err
	}
	res, err := s.submit(ctx, stock.Submission{
		ItemID:    id,
		Allocated: 2,
		Serials:   stock.Serials(accessPointSerials[3:]...),
		Metadata:  stock.Metadata{ClientPO: "PO-C-2003", Remarks: "reserved for project rollout"},
	}, 0)
	if err != nil {
		return err
	}
	_, err = s.engine.Convert(ctx, res.Entry.ID, s.actor)
	return err
}

func loadBackdatedReceipt(ctx context.Context, s *scenarioRun) error {
	id, err := s.createItem(ctx, "UTP Cable Cat6", "305m box")
	if err != nil {
		return err
	}
	if _, err := s.submit(ctx, stock.Submission{ItemID: id, In: 10}, 0); err != nil {
		return err
	}
	if _, err := s.submit(ctx, stock.Submission{ItemID: id, Out: 4, Metadata: stock.Metadata{DRNumber: "DR-3003"}}, 0); err != nil {
		return err
	}
	_, err = s.submit(ctx, stock.Submission{
		ItemID:   id,
		In:       3,
		Metadata: stock.Metadata{Remarks: "late paperwork for yesterday's delivery"},
	}, -24*time.Hour)
	return err
}
