// Package store provides an in-memory assets.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/stock-ledger/assets"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu   sync.RWMutex
	data *memData
}

type memData struct {
	assets  map[assets.AssetID]assets.Asset
	changes map[assets.ChangeID]assets.Change
	byAsset map[assets.AssetID][]assets.ChangeID
}

func newMemData() *memData {
	return &memData{
		assets:  make(map[assets.AssetID]assets.Asset),
		changes: make(map[assets.ChangeID]assets.Change),
		byAsset: make(map[assets.AssetID][]assets.ChangeID),
	}
}

func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

var _ assets.TxStore = (*Memory)(nil)

func (m *Memory) CreateAsset(ctx context.Context, asset assets.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateAsset(ctx, asset)
}

func (m *Memory) GetAsset(ctx context.Context, id assets.AssetID) (*assets.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetAsset(ctx, id)
}

func (m *Memory) ListAssets(ctx context.Context, filter assets.AssetFilter) ([]assets.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.ListAssets(ctx, filter)
}

func (m *Memory) SaveAsset(ctx context.Context, asset assets.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.SaveAsset(ctx, asset)
}

func (m *Memory) AppendChange(ctx context.Context, change assets.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.AppendChange(ctx, change)
}

func (m *Memory) GetChange(ctx context.Context, id assets.ChangeID) (*assets.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.GetChange(ctx, id)
}

func (m *Memory) Changes(ctx context.Context, assetID assets.AssetID) ([]assets.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data.Changes(ctx, assetID)
}

func (m *Memory) MarkChangeUndone(ctx context.Context, id assets.ChangeID, by string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.MarkChangeUndone(ctx, id, by, at)
}

// WithTx runs fn against the live data and restores a snapshot on error.
func (m *Memory) WithTx(_ context.Context, fn func(assets.Store) error) error {
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
	for k, v := range d.assets {
		c.assets[k] = v
	}
	for k, v := range d.changes {
		c.changes[k] = v
	}
	for k, v := range d.byAsset {
		c.byAsset[k] = append([]assets.ChangeID(nil), v...)
	}
	return c
}

// =============================================================================
// UNLOCKED IMPLEMENTATION - memData satisfies assets.Store directly
// =============================================================================

func (d *memData) CreateAsset(_ context.Context, asset assets.Asset) error {
	if _, ok := d.assets[asset.ID]; ok {
		return fmt.Errorf("asset %s already exists", asset.ID)
	}
	d.assets[asset.ID] = copyAsset(asset)
	return nil
}

func (d *memData) GetAsset(_ context.Context, id assets.AssetID) (*assets.Asset, error) {
	asset, ok := d.assets[id]
	if !ok {
		return nil, nil
	}
	asset = copyAsset(asset)
	return &asset, nil
}

func (d *memData) ListAssets(_ context.Context, filter assets.AssetFilter) ([]assets.Asset, error) {
	search := strings.ToLower(filter.Search)
	out := []assets.Asset{}
	for _, a := range d.assets {
		if a.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.Name), search) &&
			!strings.Contains(strings.ToLower(a.Description), search) &&
			!strings.Contains(strings.ToLower(a.AssignedUser), search) &&
			!strings.Contains(strings.ToLower(a.AssignedBy), search) {
			continue
		}
		out = append(out, copyAsset(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (d *memData) SaveAsset(_ context.Context, asset assets.Asset) error {
	if _, ok := d.assets[asset.ID]; !ok {
		return fmt.Errorf("asset %s does not exist", asset.ID)
	}
	d.assets[asset.ID] = copyAsset(asset)
	return nil
}

func (d *memData) AppendChange(_ context.Context, change assets.Change) error {
	if _, ok := d.changes[change.ID]; ok {
		return fmt.Errorf("asset change %s already exists", change.ID)
	}
	if _, ok := d.assets[change.AssetID]; !ok {
		return fmt.Errorf("asset %s does not exist", change.AssetID)
	}
	d.changes[change.ID] = change
	d.byAsset[change.AssetID] = append(d.byAsset[change.AssetID], change.ID)
	return nil
}

func (d *memData) GetChange(_ context.Context, id assets.ChangeID) (*assets.Change, error) {
	change, ok := d.changes[id]
	if !ok {
		return nil, nil
	}
	return &change, nil
}

func (d *memData) Changes(_ context.Context, assetID assets.AssetID) ([]assets.Change, error) {
	out := make([]assets.Change, 0, len(d.byAsset[assetID]))
	for _, id := range d.byAsset[assetID] {
		out = append(out, d.changes[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.After(out[j].OccurredAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (d *memData) MarkChangeUndone(_ context.Context, id assets.ChangeID, by string, at time.Time) error {
	change, ok := d.changes[id]
	if !ok {
		return fmt.Errorf("asset change %s does not exist", id)
	}
	change.Undone = true
	change.UndoneBy = by
	change.UndoneAt = at
	d.changes[id] = change
	return nil
}

func copyAsset(a assets.Asset) assets.Asset {
	if a.WarrantyDate != nil {
		w := *a.WarrantyDate
		a.WarrantyDate = &w
	}
	return a
}
