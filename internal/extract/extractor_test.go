package extract

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/shikibetsu/internal/models"
)

var weatherRestaurant = []models.ExampleInput{
	{Text: "Tell me today's weather", Label: "weather"},
	{Text: "Tell me good restaurant.", Label: "restaurant"},
}

func TestExtractBytes_yaml(t *testing.T) {
	e := NewExtractor()
	content := []byte(`
examples:
  - text: "Tell me today's weather"
    label: weather
intents:
  - label: restaurant
    examples:
      - "Tell me good restaurant."
`)
	got, err := e.ExtractBytes(content, ".yaml")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !reflect.DeepEqual(got, weatherRestaurant) {
		t.Errorf("got %+v", got)
	}
}

func TestExtractBytes_json(t *testing.T) {
	e := NewExtractor()
	content := []byte(`{"examples":[{"text":"Tell me today's weather","label":"weather"},{"text":"Tell me good restaurant.","label":"restaurant"}]}`)
	got, err := e.ExtractBytes(content, ".json")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !reflect.DeepEqual(got, weatherRestaurant) {
		t.Errorf("got %+v", got)
	}
}

func TestExtractBytes_tsv(t *testing.T) {
	e := NewExtractor()
	content := []byte("text\tlabel\nTell me today's weather\tweather\n\n# comment\nTell me good restaurant.\t restaurant \n")
	got, err := e.ExtractBytes(content, ".tsv")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !reflect.DeepEqual(got, weatherRestaurant) {
		t.Errorf("got %+v", got)
	}
}

func TestExtractBytes_csvMissingLabel(t *testing.T) {
	e := NewExtractor()
	_, err := e.ExtractBytes([]byte("hello,greet\njust text\n"), ".csv")
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	_, err = e.ExtractBytes([]byte("hello,\n"), ".csv")
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("empty label: expected ErrInvalidArgument, got %v", err)
	}
}

func TestExtractBytes_excel(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetCellValue("Sheet1", "A1", "text")
	f.SetCellValue("Sheet1", "B1", "label")
	f.SetCellValue("Sheet1", "A2", "Tell me today's weather")
	f.SetCellValue("Sheet1", "B2", "weather")
	if _, err := f.NewSheet("restaurant"); err != nil {
		t.Fatal(err)
	}
	f.SetCellValue("restaurant", "A1", "Tell me good restaurant.")
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	e := NewExtractor()
	got, err := e.ExtractBytes(buf.Bytes(), ".xlsx")
	if err != nil {
		t.Fatalf("ExtractBytes: %v", err)
	}
	if !reflect.DeepEqual(got, weatherRestaurant) {
		t.Errorf("got %+v", got)
	}
}

func TestExtract_file(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yml")
	if err := os.WriteFile(path, []byte("examples:\n  - {text: hi, label: greet}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := NewExtractor().Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0].Text != "hi" || got[0].Label != "greet" {
		t.Errorf("got %+v", got)
	}
}

func TestExtract_nonexistent(t *testing.T) {
	if _, err := NewExtractor().Extract("/nonexistent/path/seed.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestExtractBytes_unknownExtension(t *testing.T) {
	_, err := NewExtractor().ExtractBytes([]byte("raw"), ".pdf")
	if !errors.Is(err, models.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestExpandAndMatch(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "nested/b.tsv", "nested/deep/c.csv", "nested/notes.md"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0600); err != nil {
			t.Fatal(err)
		}
	}
	pattern := filepath.Join(dir, "**", "*")
	got, err := Expand([]string{pattern, filepath.Join(dir, "a.yaml")})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "nested", "b.tsv"),
		filepath.Join(dir, "nested", "deep", "c.csv"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand = %v, want %v", got, want)
	}
	if _, err := Expand([]string{filepath.Join(dir, "missing.yaml")}); err == nil {
		t.Error("expected error for missing plain path")
	}

	if !Match([]string{filepath.Join(dir, "**", "*.tsv")}, filepath.Join(dir, "nested", "b.tsv")) {
		t.Error("Match should accept nested tsv")
	}
	if Match([]string{filepath.Join(dir, "*.tsv")}, filepath.Join(dir, "nested", "b.tsv")) {
		t.Error("single star should not cross directories")
	}
}
