package stock

import (
	"context"

	"github.com/shopspring/decimal"
)

// Summary is the dashboard view over the whole catalogue.
type Summary struct {
	Items          int // active items
	DeletedItems   int
	ZeroStockItems int // active items at zero stock
	TotalUnits     int
	AllocatedUnits int
	AllocationRate decimal.Decimal // AllocatedUnits / TotalUnits, 4 places
}

func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	items, err := e.Store.ListItems(ctx, ItemFilter{IncludeDeleted: true})
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	for _, it := range items {
		if it.IsDeleted {
			s.DeletedItems++
			continue
		}
		s.Items++
		if it.TotalStock == 0 {
			s.ZeroStockItems++
		}
		s.TotalUnits += it.TotalStock
		s.AllocatedUnits += it.AllocatedQuantity
	}
	s.AllocationRate = AllocationRate(s.AllocatedUnits, s.TotalUnits)
	return s, nil
}

// AllocationRate returns allocated/total rounded to 4 places, zero when
// nothing is in stock.
func AllocationRate(allocated, total int) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(allocated)).DivRound(decimal.NewFromInt(int64(total)), 4)
}
