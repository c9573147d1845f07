package intent

import (
	"fmt"
	"strings"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// Mode selects which signals the pipeline consults.
type Mode string

const (
	// ModeClassifier scores caller-supplied candidates with the zero-shot scorer only.
	ModeClassifier Mode = "classifier"
	// ModeRetriever votes over stored examples only.
	ModeRetriever Mode = "retriever"
	// ModeBoth requires both signals to agree.
	ModeBoth Mode = "both"
)

// ParseMode resolves a mode name or its short alias (clf, rtv). Empty means both.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classifier", "clf":
		return ModeClassifier, nil
	case "retriever", "rtv":
		return ModeRetriever, nil
	case "both", "":
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("%w: mode must be classifier (clf), retriever (rtv) or both, got %q", models.ErrInvalidArgument, s)
	}
}

func (m Mode) usesRetriever() bool { return m != ModeClassifier }

func (m Mode) usesClassifier() bool { return m != ModeRetriever }
