package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/server"
)

func detailDecision() *models.Decision {
	return &models.Decision{
		Label: "weather",
		Retriever: &models.Recognition{
			Label:  "weather",
			Winner: "weather",
			Neighbors: []models.Neighbor{
				{Similarity: 0.75, Label: "weather", Text: "Tell me today's weather"},
				{Similarity: 0.5, Label: "restaurant", Text: "Tell me good restaurant."},
			},
			Scores: map[string]float64{"weather": 0.75, "restaurant": 0.5},
		},
		Classifier: map[string]float64{"weather": 0.9, "restaurant": 0.1},
		Scores: []models.LabelScore{
			{Label: "weather", Score: 1.65},
			{Label: "restaurant", Score: 0.6},
		},
	}
}

func TestWriteDecision_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDecision(&buf, detailDecision(), OutputJSON); err != nil {
		t.Fatalf("WriteDecision(json): %v", err)
	}
	var decoded models.Decision
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.Label != "weather" || len(decoded.Scores) != 2 {
		t.Errorf("decoded: %+v", decoded)
	}
}

func TestWriteDecision_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDecision(&buf, detailDecision(), OutputText); err != nil {
		t.Fatalf("WriteDecision(text): %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Intent: weather", "Retriever: weather", "Tell me today's weather", "Classifier:", "0.90000  weather", "1.65000  weather"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Index(out, "0.90000  weather") > strings.Index(out, "0.10000  restaurant") {
		t.Errorf("classifier scores not sorted:\n%s", out)
	}
}

func TestWriteDecision_TextFallback(t *testing.T) {
	d := &models.Decision{
		Label:     models.FallbackLabel,
		Retriever: &models.Recognition{Label: models.FallbackLabel, Winner: "weather", Fallback: true},
	}
	var buf bytes.Buffer
	if err := WriteDecision(&buf, d, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Intent: fallback") || !strings.Contains(buf.String(), "below threshold") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestWriteExamples(t *testing.T) {
	examples := []server.ExampleView{
		{ID: "a", Text: "Tell me today's weather", Label: "weather"},
		{ID: "b", Text: strings.Repeat("long ", 40), Label: "chatter"},
	}
	var buf bytes.Buffer
	if err := WriteExamples(&buf, examples, 5, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Showing 2 of 5 examples") || !strings.Contains(out, "...") {
		t.Errorf("unexpected output:\n%s", out)
	}

	buf.Reset()
	if err := WriteExamples(&buf, examples, 5, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Examples []server.ExampleView `json:"examples"`
		Total    int                  `json:"total"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Total != 5 || len(decoded.Examples) != 2 || decoded.Examples[0].ID != "a" {
		t.Errorf("decoded: %+v", decoded)
	}
}

func TestWriteStatus_Text(t *testing.T) {
	st := &server.StatusResponse{Mode: "both", Size: 20, Labels: []string{"weather", "restaurant"}, NList: 2, IndexType: "ivf", DiskUsageBytes: 2048, DatasetBytes: 1536, IndexBytes: 512}
	var buf bytes.Buffer
	if err := WriteStatus(&buf, st, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Examples:    20", "weather, restaurant", "ivf, nlist 2", "2.0 KiB (dataset 1.5 KiB, snapshot 512 B)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"json": OutputJSON, " JSON ": OutputJSON, "text": OutputText, "": OutputText, "yaml": OutputText} {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
