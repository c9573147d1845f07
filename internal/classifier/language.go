package classifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/shikibetsu/internal/models"
)

// Language describes how the classifier handles one language: the hypothesis
// sentence wrapped around a label and the default NLI model.
type Language struct {
	Code string
	// Template holds one %s for the label.
	Template string
	Model    string
	// Entailment is the column of the model's logits that means "entailment".
	Entailment int
}

// Hypothesis returns the NLI hypothesis for label.
func (l Language) Hypothesis(label string) string {
	return fmt.Sprintf(l.Template, label)
}

var languages = map[string]Language{
	"en": {Code: "en", Template: "This sentence is about %s.", Model: "hyunwoongko/roberta-base-en-mnli", Entailment: 1},
	"ko": {Code: "ko", Template: "이 문장은 %s에 관한 것이다.", Model: "hyunwoongko/brainbert-base-ko-kornli", Entailment: 2},
	"ja": {Code: "ja", Template: "この文は、%sに関するものである。", Model: "hyunwoongko/jaberta-base-ja-xnli", Entailment: 0},
	"zh": {Code: "zh", Template: "这句话是关于%s的。", Model: "hyunwoongko/zhberta-base-zh-xnli", Entailment: 0},
}

var languageAliases = map[string]string{
	"english":  "en",
	"eng":      "en",
	"korean":   "ko",
	"kor":      "ko",
	"japanese": "ja",
	"jp":       "ja",
	"chinese":  "zh",
	"cn":       "zh",
}

// ParseLanguage resolves a language code or alias. Unsupported languages are ErrInvalidArgument.
func ParseLanguage(s string) (Language, error) {
	code := strings.ToLower(strings.TrimSpace(s))
	if alias, ok := languageAliases[code]; ok {
		code = alias
	}
	lang, ok := languages[code]
	if !ok {
		return Language{}, fmt.Errorf("%w: unsupported language %q (supported: %s)",
			models.ErrInvalidArgument, s, strings.Join(Languages(), ", "))
	}
	return lang, nil
}

// Languages returns the supported language codes, sorted.
func Languages() []string {
	out := make([]string, 0, len(languages))
	for code := range languages {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
