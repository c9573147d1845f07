package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// extractDelimited reads "text<sep>label" records. A leading "text, label" header is skipped.
func extractDelimited(content []byte, sep rune) ([]models.ExampleInput, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = sep
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var out []models.ExampleInput
	for first := true; ; first = false {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse seed rows: %w", err)
		}
		if blank(row) || (first && isHeader(row)) {
			continue
		}
		if len(row) < 2 {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: expected text and label columns", models.ErrInvalidArgument, line)
		}
		out = append(out, models.ExampleInput{Text: row[0], Label: row[1]})
	}
	return out, nil
}
