// Package cli provides output helpers for the shikibetsu commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/internal/server"
	"github.com/hyperjump/shikibetsu/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const textWidth = 72

// ParseFormat returns the output format for s. Anything but "json" is text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteDecision writes a recognition decision to w in the given format.
func WriteDecision(w io.Writer, d *models.Decision, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, d)
	}
	fmt.Fprintf(w, "Intent: %s\n", d.Label)
	if d.Retriever != nil {
		rec := d.Retriever
		fmt.Fprintf(w, "\nRetriever: %s", rec.Winner)
		if rec.Fallback {
			fmt.Fprint(w, " (below threshold, fallback)")
		}
		fmt.Fprintln(w)
		for i, n := range rec.Neighbors {
			fmt.Fprintf(w, "  %d. %.4f  %-16s %s\n", i+1, n.Similarity, n.Label, utils.Truncate(n.Text, textWidth))
		}
	}
	if len(d.Classifier) > 0 {
		fmt.Fprintln(w, "\nClassifier:")
		for _, ls := range sortedScores(d.Classifier) {
			fmt.Fprintf(w, "  %.5f  %s\n", ls.Score, ls.Label)
		}
	}
	if len(d.Scores) > 0 {
		fmt.Fprintln(w, "\nScores:")
		for _, ls := range d.Scores {
			fmt.Fprintf(w, "  %.5f  %s\n", ls.Score, ls.Label)
		}
	}
	return nil
}

// sortedScores orders a score map by score, then label.
func sortedScores(scores map[string]float64) []models.LabelScore {
	out := make([]models.LabelScore, 0, len(scores))
	for l, s := range scores {
		out = append(out, models.LabelScore{Label: l, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// WriteExamples writes examples to w. total is the store size, shown in text mode.
func WriteExamples(w io.Writer, examples []server.ExampleView, total int, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"examples": examples, "total": total})
	}
	fmt.Fprintf(w, "Showing %d of %d examples\n\n", len(examples), total)
	for _, ex := range examples {
		fmt.Fprintf(w, "%-16s %s\n", ex.Label, utils.Truncate(ex.Text, textWidth))
	}
	return nil
}

// WriteStatus writes the store status to w.
func WriteStatus(w io.Writer, st *server.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Mode:        %s\n", st.Mode)
	fmt.Fprintf(w, "Examples:    %d\n", st.Size)
	fmt.Fprintf(w, "Labels:      %d", len(st.Labels))
	if len(st.Labels) > 0 {
		fmt.Fprintf(w, " (%s)", utils.Truncate(strings.Join(st.Labels, ", "), textWidth))
	}
	fmt.Fprintln(w)
	if st.IndexType != "" {
		fmt.Fprintf(w, "Index:       %s, nlist %d\n", st.IndexType, st.NList)
	}
	if st.Dimensions > 0 {
		fmt.Fprintf(w, "Dimensions:  %d\n", st.Dimensions)
	}
	fmt.Fprintf(w, "Disk usage:  %s (dataset %s, snapshot %s)\n",
		FormatBytes(st.DiskUsageBytes), FormatBytes(st.DatasetBytes), FormatBytes(st.IndexBytes))
	if st.DatasetPath != "" {
		fmt.Fprintf(w, "Dataset:     %s\n", st.DatasetPath)
	}
	if st.IndexPath != "" {
		fmt.Fprintf(w, "Snapshot:    %s\n", st.IndexPath)
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
