package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var labelFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldLabel normalises a supplier or movement label for entry storage:
// diacritics are stripped (French/Tunisian supplier names arrive in mixed
// encodings from the extraction layer) and whitespace is collapsed.
func foldLabel(label string) string {
	folded, _, err := transform.String(labelFolder, label)
	if err != nil {
		folded = label
	}
	return strings.Join(strings.Fields(folded), " ")
}
