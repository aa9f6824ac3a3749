package stock

import (
	"context"
	"strings"
)

// =============================================================================
// READ-ONLY QUERIES
// =============================================================================
// Reads do not take the item lock. Each store call is atomic on its own.

// GetItem returns the item or a NotFoundError.
func (e *Engine) GetItem(ctx context.Context, id ItemID) (Item, error) {
	item, err := e.Store.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if item == nil {
		return Item{}, itemNotFound(id)
	}
	return *item, nil
}

func (e *Engine) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return e.Store.ListItems(ctx, filter)
}

// History returns every entry of an item in replay order, undone included.
func (e *Engine) History(ctx context.Context, itemID ItemID) ([]Entry, error) {
	if _, err := e.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Store.Entries(ctx, itemID)
}

// GetEntry returns the entry or a NotFoundError.
func (e *Engine) GetEntry(ctx context.Context, id EntryID) (Entry, error) {
	entry, err := e.Store.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if entry == nil {
		return Entry{}, entryNotFound(id)
	}
	return *entry, nil
}

// EntrySerials returns the resolved serial codes of one entry.
func (e *Engine) EntrySerials(ctx context.Context, id EntryID) ([]string, error) {
	entry, err := e.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.Serials == nil {
		return []string{}, nil
	}
	return entry.Serials, nil
}

// Serials returns an item's serial units, optionally only available ones.
func (e *Engine) Serials(ctx context.Context, itemID ItemID, onlyAvailable bool) ([]SerialUnit, error) {
	if _, err := e.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	units, err := e.Store.Serials(ctx, itemID)
	if err != nil || !onlyAvailable {
		return units, err
	}
	out := units[:0:0]
	for _, u := range units {
		if u.Available {
			out = append(out, u)
		}
	}
	return out, nil
}

// DeliveryReceipt lists the movements recorded under a DR number, newest
// first. Reservations and undone entries are not part of a receipt.
func (e *Engine) DeliveryReceipt(ctx context.Context, drNumber, clientPO string) ([]EntryView, error) {
	drNumber = strings.TrimSpace(drNumber)
	if drNumber == "" {
		return []EntryView{}, nil
	}
	return e.Store.FindEntries(ctx, EntryFilter{
		DRNumber:      drNumber,
		ClientPO:      strings.TrimSpace(clientPO),
		ExcludeTypes:  []EntryType{EntryAllocated},
		ExcludeUndone: true,
	})
}

// SearchByPO matches supplier or client PO numbers, case-insensitive.
func (e *Engine) SearchByPO(ctx context.Context, query string) ([]EntryView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []EntryView{}, nil
	}
	return e.Store.FindEntries(ctx, EntryFilter{POContains: query})
}
