package indexer

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// invisible runes that survive spreadsheet and editor exports.
var invisible = strings.NewReplacer(
	"\uFEFF", "",
	"\u200B", "",
	"\u200C", "",
	"\u200D", "",
	"\u2060", "",
)

// Preprocess brings imported example text into a canonical form: NFKC,
// no byte-order marks or zero-width characters, single spaces.
func Preprocess(text string) string {
	text = invisible.Replace(norm.NFKC.String(text))
	return strings.Join(strings.Fields(text), " ")
}
