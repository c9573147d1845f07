package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// extractExcel reads column A as text and column B as label on every sheet.
// Rows without a label take the sheet name, so a workbook can hold one sheet per intent.
func extractExcel(content []byte) ([]models.ExampleInput, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	var out []models.ExampleInput
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for i, row := range rows {
			if blank(row) || (i == 0 && isHeader(row)) {
				continue
			}
			in := models.ExampleInput{Text: row[0], Label: sheet}
			if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
				in.Label = row[1]
			}
			out = append(out, in)
		}
	}
	return out, nil
}
