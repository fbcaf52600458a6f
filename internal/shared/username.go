package shared

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeUsername trims surrounding space and converts the name to NFC so
// visually identical spellings map to the same account.
func NormalizeUsername(username string) string {
	return norm.NFC.String(strings.TrimSpace(username))
}
