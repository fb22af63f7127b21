package extraction

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
)

const (
	receiptsSheet = "Receipts"
	itemsSheet    = "Items"
)

var (
	receiptsHeader = []any{"ID", "Filename", "Date", "Vendor", "Currency", "Items", "Tax", "Total", "Uploaded At"}
	itemsHeader    = []any{"Receipt ID", "Vendor", "Item", "Qty", "Unit Cost", "Line Total"}
)

// Export writes an XLSX workbook of the user's extracted receipts: one row
// per receipt and one row per line item.
func (s *Service) Export(ctx context.Context, userID string, w io.Writer) (int, error) {
	recs, err := s.store.List(ctx, userID)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", receiptsSheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return 0, fmt.Errorf("create items sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, fmt.Errorf("create header style: %w", err)
	}
	for sheet, header := range map[string][]any{receiptsSheet: receiptsHeader, itemsSheet: itemsHeader} {
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return 0, fmt.Errorf("write %s header: %w", sheet, err)
		}
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return 0, fmt.Errorf("style %s header: %w", sheet, err)
		}
	}
	_ = f.SetColWidth(receiptsSheet, "A", "A", 38)
	_ = f.SetColWidth(itemsSheet, "A", "A", 38)
	_ = f.SetColWidth(itemsSheet, "C", "C", 30)

	receiptRow, itemRow, exported := 2, 2, 0
	for _, rec := range recs {
		if rec.Status != model.StatusExtracted {
			continue
		}
		if err := setRow(f, receiptsSheet, receiptRow, receiptRowValues(rec)); err != nil {
			return 0, err
		}
		receiptRow++
		exported++

		for _, it := range rec.Items {
			row := []any{rec.ID, deref(rec.VendorName), it.Name, it.Quantity, it.Cost, float64(it.Quantity) * it.Cost}
			if err := setRow(f, itemsSheet, itemRow, row); err != nil {
				return 0, err
			}
			itemRow++
		}
	}

	if err := f.Write(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	s.log.Info("extraction.exported", "user_id", userID, "receipts", exported)
	return exported, nil
}

func receiptRowValues(rec *model.Extraction) []any {
	return []any{
		rec.ID,
		rec.Filename,
		deref(rec.Date),
		deref(rec.VendorName),
		deref(rec.Currency),
		len(rec.Items),
		derefNumber(rec.Tax),
		derefNumber(rec.Total),
		rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefNumber(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
