package reports

import (
	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the media type of spreadsheet exports.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WriteXLSX renders a single sheet with a heading row.
func WriteXLSX(sheet string, headings []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	header := make([]any, len(headings))
	for i, h := range headings {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lowStockRows(items []LowStockItem) [][]any {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		category := ""
		if it.Category != nil {
			category = *it.Category
		}
		rows = append(rows, []any{it.Code, it.Name, category, it.Quantity, it.MinQuantity, string(it.Status)})
	}
	return rows
}

func topProductRows(items []TopProduct) [][]any {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{it.Name, it.QuantitySold, it.Revenue.InexactFloat64(), it.Profit.InexactFloat64()})
	}
	return rows
}
