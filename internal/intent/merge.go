package intent

import (
	"sort"

	"github.com/hyperjump/shikibetsu/internal/models"
	"github.com/hyperjump/shikibetsu/pkg/utils"
)

// scorePlaces is the rounding applied to reported scores.
const scorePlaces = 5

// Merge sums per-label scores across sources and returns them best first.
// Equal scores are ordered by label.
func Merge(sources ...map[string]float64) []models.LabelScore {
	sum := make(map[string]float64)
	for _, src := range sources {
		for label, s := range src {
			sum[label] += s
		}
	}
	out := make([]models.LabelScore, 0, len(sum))
	for label, s := range sum {
		out = append(out, models.LabelScore{Label: label, Score: utils.Round(s, scorePlaces)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func roundScores(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for label, s := range scores {
		out[label] = utils.Round(s, scorePlaces)
	}
	return out
}
