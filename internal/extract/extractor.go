// Package extract reads labeled examples from seed files.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// Extensions lists the seed formats Extract understands.
var Extensions = []string{".yaml", ".yml", ".json", ".xlsx", ".tsv", ".csv"}

// Extractor reads examples from seed files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the seed file at path and returns its examples in file order.
// Every example is validated; the first invalid one fails the whole file.
func (e *Extractor) Extract(path string) ([]models.ExampleInput, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	examples, err := e.ExtractBytes(content, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return examples, nil
}

// ExtractBytes parses content based on the given extension.
// ext should include the leading dot (e.g. ".yaml").
func (e *Extractor) ExtractBytes(content []byte, ext string) ([]models.ExampleInput, error) {
	var (
		examples []models.ExampleInput
		err      error
	)
	switch ext {
	case ".yaml", ".yml", ".json":
		examples, err = extractYAML(content)
	case ".xlsx":
		examples, err = extractExcel(content)
	case ".tsv", ".txt":
		examples, err = extractDelimited(content, '\t')
	case ".csv":
		examples, err = extractDelimited(content, ',')
	default:
		return nil, fmt.Errorf("%w: unsupported seed format %q", models.ErrInvalidArgument, ext)
	}
	if err != nil {
		return nil, err
	}
	for i := range examples {
		if err := examples[i].Validate(); err != nil {
			return nil, fmt.Errorf("example %d: %w", i+1, err)
		}
	}
	return examples, nil
}

// Supported reports whether path has a seed file extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return ext == ".txt"
}

// isHeader reports whether a row is a "text, label" header.
func isHeader(row []string) bool {
	return len(row) >= 2 &&
		strings.EqualFold(strings.TrimSpace(row[0]), "text") &&
		strings.EqualFold(strings.TrimSpace(row[1]), "label")
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
