// Package store provides in-memory stock.TxStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warp/stock-ledger/stock"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	data *memData
}

type memData struct {
	items     map[stock.ItemID]stock.Item
	itemOrder []stock.ItemID
	entries   map[stock.EntryID]stock.Entry
	byItem    map[stock.ItemID][]stock.EntryID // sorted by (OccurredAt, ID)
	serials   map[stock.ItemID][]stock.SerialUnit
	audit     []stock.AuditEntry
}

func newMemData() *memData {
	return &memData{
		items:   make(map[stock.ItemID]stock.Item),
		entries: make(map[stock.EntryID]stock.Entry),
		byItem:  make(map[stock.ItemID][]stock.EntryID),
		serials: make(map[stock.ItemID][]stock.SerialUnit),
	}
}

func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

var _ stock.TxStore = (*Memory)(nil)

// =============================================================================
// LOCKED ENTRY POINTS
// =============================================================================

func (m *Memory) CreateItem(ctx context.Context, item stock.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateItem(ctx, item)
}

func (m *Memory) GetItem(ctx context.Context, id stock.ItemID) (*stock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetItem(ctx, id)
}

func (m *Memory) ListItems(ctx context.Context, filter stock.ItemFilter) ([]stock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListItems(ctx, filter)
}

func (m *Memory) SaveItem(ctx context.Context, item stock.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveItem(ctx, item)
}

func (m *Memory) AppendEntry(ctx context.Context, entry stock.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.AppendEntry(ctx, entry)
}

func (m *Memory) GetEntry(ctx context.Context, id stock.EntryID) (*stock.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetEntry(ctx, id)
}

func (m *Memory) Entries(ctx context.Context, itemID stock.ItemID) ([]stock.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Entries(ctx, itemID)
}

func (m *Memory) SetEntryStatus(ctx context.Context, id stock.EntryID, status stock.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetEntryStatus(ctx, id, status)
}

func (m *Memory) SaveSnapshots(ctx context.Context, snapshots []stock.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveSnapshots(ctx, snapshots)
}

func (m *Memory) FindEntries(ctx context.Context, filter stock.EntryFilter) ([]stock.EntryView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.FindEntries(ctx, filter)
}

func (m *Memory) Serials(ctx context.Context, itemID stock.ItemID) ([]stock.SerialUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Serials(ctx, itemID)
}

func (m *Memory) EnsureSerial(ctx context.Context, unit stock.SerialUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.EnsureSerial(ctx, unit)
}

func (m *Memory) SetSerialAvailability(ctx context.Context, itemID stock.ItemID, codes []string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SetSerialAvailability(ctx, itemID, codes, available)
}

func (m *Memory) DeleteSerials(ctx context.Context, itemID stock.ItemID, codes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.DeleteSerials(ctx, itemID, codes)
}

func (m *Memory) AppendAudit(ctx context.Context, entry stock.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.AppendAudit(ctx, entry)
}

func (m *Memory) AuditEntries(ctx context.Context, itemID stock.ItemID) ([]stock.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.AuditEntries(ctx, itemID)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(stock.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.data.clone()
	if err := fn(m.data); err != nil {
		m.data = snapshot
		return err
	}
	return nil
}

func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = newMemData()
	return nil
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.items {
		c.items[k] = v
	}
	c.itemOrder = append([]stock.ItemID(nil), d.itemOrder...)
	for k, v := range d.entries {
		c.entries[k] = v
	}
	for k, v := range d.byItem {
		c.byItem[k] = append([]stock.EntryID(nil), v...)
	}
	for k, v := range d.serials {
		c.serials[k] = append([]stock.SerialUnit(nil), v...)
	}
	c.audit = append([]stock.AuditEntry(nil), d.audit...)
	return c
}

// =============================================================================
// UNLOCKED IMPLEMENTATION - memData satisfies stock.Store directly
// =============================================================================

func (d *memData) CreateItem(_ context.Context, item stock.Item) error {
	if _, ok := d.items[item.ID]; ok {
		return fmt.Errorf("item %s already exists", item.ID)
	}
	d.items[item.ID] = item
	d.itemOrder = append(d.itemOrder, item.ID)
	return nil
}

func (d *memData) GetItem(_ context.Context, id stock.ItemID) (*stock.Item, error) {
	item, ok := d.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (d *memData) ListItems(_ context.Context, filter stock.ItemFilter) ([]stock.Item, error) {
	search := strings.ToLower(filter.Search)
	out := []stock.Item{}
	for _, id := range d.itemOrder {
		item := d.items[id]
		if item.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(item.Name), search) &&
			!strings.Contains(strings.ToLower(item.Description), search) &&
			!strings.Contains(strings.ToLower(item.PartNo), search) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (d *memData) SaveItem(_ context.Context, item stock.Item) error {
	if _, ok := d.items[item.ID]; !ok {
		return fmt.Errorf("item %s does not exist", item.ID)
	}
	d.items[item.ID] = item
	return nil
}

func (d *memData) AppendEntry(_ context.Context, entry stock.Entry) error {
	if _, ok := d.entries[entry.ID]; ok {
		return fmt.Errorf("entry %s already exists", entry.ID)
	}
	entry.Serials = append([]string(nil), entry.Serials...)
	d.entries[entry.ID] = entry

	ids := d.byItem[entry.ItemID]
	// Binary search for insertion point
	i := sort.Search(len(ids), func(i int) bool {
		other := d.entries[ids[i]]
		if !other.OccurredAt.Equal(entry.OccurredAt) {
			return other.OccurredAt.After(entry.OccurredAt)
		}
		return other.ID > entry.ID
	})
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = entry.ID
	d.byItem[entry.ItemID] = ids
	return nil
}

func (d *memData) GetEntry(_ context.Context, id stock.EntryID) (*stock.Entry, error) {
	entry, ok := d.entries[id]
	if !ok {
		return nil, nil
	}
	entry = cloneEntry(entry)
	return &entry, nil
}

func (d *memData) Entries(_ context.Context, itemID stock.ItemID) ([]stock.Entry, error) {
	ids := d.byItem[itemID]
	out := make([]stock.Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneEntry(d.entries[id]))
	}
	return out, nil
}

func (d *memData) SetEntryStatus(_ context.Context, id stock.EntryID, status stock.Status) error {
	entry, ok := d.entries[id]
	if !ok {
		return fmt.Errorf("entry %s does not exist", id)
	}
	entry.Status = status
	d.entries[id] = entry
	return nil
}

func (d *memData) SaveSnapshots(_ context.Context, snapshots []stock.Snapshot) error {
	for _, s := range snapshots {
		entry, ok := d.entries[s.EntryID]
		if !ok {
			return fmt.Errorf("entry %s does not exist", s.EntryID)
		}
		entry.StockAfter = s.StockAfter
		entry.AllocatedAfter = s.AllocatedAfter
		d.entries[s.EntryID] = entry
	}
	return nil
}

func (d *memData) FindEntries(_ context.Context, filter stock.EntryFilter) ([]stock.EntryView, error) {
	po := strings.ToLower(filter.POContains)
	out := []stock.EntryView{}
	for _, entry := range d.entries {
		if !matchEntry(entry, filter, po) {
			continue
		}
		item := d.items[entry.ItemID]
		out = append(out, stock.EntryView{
			Entry:           cloneEntry(entry),
			ItemName:        item.Name,
			ItemDescription: item.Description,
			ItemUnit:        item.Unit,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func matchEntry(e stock.Entry, f stock.EntryFilter, po string) bool {
	if f.DRNumber != "" && e.Metadata.DRNumber != f.DRNumber {
		return false
	}
	if f.ClientPO != "" && e.Metadata.ClientPO != f.ClientPO {
		return false
	}
	if po != "" &&
		!strings.Contains(strings.ToLower(e.Metadata.SupplierPO), po) &&
		!strings.Contains(strings.ToLower(e.Metadata.ClientPO), po) {
		return false
	}
	if f.ExcludeUndone && e.Undone() {
		return false
	}
	for _, t := range f.ExcludeTypes {
		if e.Type == t {
			return false
		}
	}
	return true
}

func (d *memData) Serials(_ context.Context, itemID stock.ItemID) ([]stock.SerialUnit, error) {
	return append([]stock.SerialUnit{}, d.serials[itemID]...), nil
}

func (d *memData) EnsureSerial(_ context.Context, unit stock.SerialUnit) error {
	for _, u := range d.serials[unit.ItemID] {
		if u.Code == unit.Code {
			return nil
		}
	}
	d.serials[unit.ItemID] = append(d.serials[unit.ItemID], unit)
	return nil
}

func (d *memData) SetSerialAvailability(_ context.Context, itemID stock.ItemID, codes []string, available bool) error {
	set := codeSet(codes)
	units := d.serials[itemID]
	for i := range units {
		if set[units[i].Code] {
			units[i].Available = available
		}
	}
	return nil
}

func (d *memData) DeleteSerials(_ context.Context, itemID stock.ItemID, codes []string) error {
	set := codeSet(codes)
	kept := d.serials[itemID][:0:0]
	for _, u := range d.serials[itemID] {
		if !set[u.Code] {
			kept = append(kept, u)
		}
	}
	d.serials[itemID] = kept
	return nil
}

func (d *memData) AppendAudit(_ context.Context, entry stock.AuditEntry) error {
	d.audit = append(d.audit, entry)
	return nil
}

func (d *memData) AuditEntries(_ context.Context, itemID stock.ItemID) ([]stock.AuditEntry, error) {
	out := []stock.AuditEntry{}
	for i := len(d.audit) - 1; i >= 0; i-- {
		if d.audit[i].ItemID == itemID {
			out = append(out, d.audit[i])
		}
	}
	return out, nil
}

func cloneEntry(e stock.Entry) stock.Entry {
	e.Serials = append([]string{}, e.Serials...)
	if e.ConvertedFrom != nil {
		id := *e.ConvertedFrom
		e.ConvertedFrom = &id
	}
	return e
}

func codeSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}
