package retriever

import "github.com/hyperjump/shikibetsu/internal/models"

// vote aggregates neighbours per label and returns the winner with the per-label scores.
// Soft voting sums similarities, hard voting counts neighbours. Ties go to the label
// encountered first, and neighbours arrive best first.
func vote(neighbors []models.Neighbor, voting models.Voting) (string, map[string]float64) {
	scores := make(map[string]float64)
	var order []string
	for _, n := range neighbors {
		if _, ok := scores[n.Label]; !ok {
			order = append(order, n.Label)
		}
		if voting == models.VotingHard {
			scores[n.Label]++
		} else {
			scores[n.Label] += n.Similarity
		}
	}
	var winner string
	best := 0.0
	for i, label := range order {
		if i == 0 || scores[label] > best {
			winner, best = label, scores[label]
		}
	}
	return winner, scores
}
