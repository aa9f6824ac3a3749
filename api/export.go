package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/stock"
)

const historySheet = "History"

var historyHeadings = []string{
	"Date", "Type", "Quantity", "Allocated", "Serial Numbers", "Location",
	"PO Supplier", "PO Client", "DR No", "Remarks", "Updated By", "Status",
	"Stock After", "Allocated After",
}

// ExportHistory streams the item's history as an xlsx workbook.
// GET /api/items/{id}/entries/export
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := itemIDParam(w, r)
	if !ok {
		return
	}
	item, err := h.Engine.GetItem(r.Context(), id)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}
	entries, err := h.Engine.History(r.Context(), id)
	if err != nil {
		h.writeStockError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=item-%s-history.xlsx", item.ID))
	if err := writeHistoryWorkbook(w, item, entries); err != nil {
		h.Log.Error("history export failed", zap.String("item_id", item.ID.String()), zap.Error(err))
	}
}

// writeHistoryWorkbook renders one row per entry under a header row.
func writeHistoryWorkbook(out io.Writer, item stock.Item, entries []stock.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(historySheet, "A1", &[]any{item.Name, item.Description, string(item.Unit)}); err != nil {
		return err
	}
	headings := make([]any, len(historyHeadings))
	for i, v := range historyHeadings {
		headings[i] = v
	}
	if err := f.SetSheetRow(historySheet, "A2", &headings); err != nil {
		return err
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		row := []any{
			e.OccurredAt.Format(dateTimeLayout),
			string(e.Type),
			e.Quantity,
			e.AllocatedQuantity,
			strings.Join(e.Serials, ", "),
			e.Metadata.Location,
			e.Metadata.SupplierPO,
			e.Metadata.ClientPO,
			e.Metadata.DRNumber,
			e.Metadata.Remarks,
			e.Actor,
			string(e.Status),
			e.StockAfter,
			e.AllocatedAfter,
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return err
		}
	}
	return f.Write(out)
}
