package models

import (
	"fmt"
	"strings"
)

// FallbackLabel is the decision returned when no confident intent match exists.
const FallbackLabel = "fallback"

// Voting selects how neighbour labels are aggregated.
type Voting string

const (
	// VotingSoft sums neighbour similarities per label.
	VotingSoft Voting = "soft"
	// VotingHard counts neighbours per label.
	VotingHard Voting = "hard"
)

// ParseVoting returns the voting mode for s. Empty means soft.
func ParseVoting(s string) (Voting, error) {
	switch Voting(strings.ToLower(strings.TrimSpace(s))) {
	case VotingSoft, "":
		return VotingSoft, nil
	case VotingHard:
		return VotingHard, nil
	default:
		return "", fmt.Errorf("%w: voting must be soft or hard, got %q", ErrInvalidArgument, s)
	}
}

// Neighbor is one nearest example returned by the retriever.
type Neighbor struct {
	Similarity float64 `json:"similarity"`
	Label      string  `json:"label"`
	Text       string  `json:"text"`
}

// LabelScore is one entry of an ordered per-label score list.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Recognition is the retriever's answer for one query.
// Label is FallbackLabel when Fallback is set; Winner always holds the aggregation winner.
type Recognition struct {
	Label     string             `json:"label"`
	Winner    string             `json:"winner"`
	Fallback  bool               `json:"fallback"`
	Neighbors []Neighbor         `json:"neighbors"`
	Scores    map[string]float64 `json:"scores"`
}

// Decision is the pipeline's answer for one query.
// Scores is only populated in detail mode.
type Decision struct {
	Label      string             `json:"label"`
	Scores     []LabelScore       `json:"scores,omitempty"`
	Retriever  *Recognition       `json:"retriever,omitempty"`
	Classifier map[string]float64 `json:"classifier,omitempty"`
}
