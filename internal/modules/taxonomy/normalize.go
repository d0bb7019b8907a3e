package taxonomy

import (
	"strings"

	types "github.com/yungbote/docsearch-backend/internal/domain"
)

// Normalize is the comparison form of terms, synonyms and queries. It is the
// same form term ids are derived from.
func Normalize(s string) string {
	return types.NormalizeTerm(s)
}

func Words(s string) []string {
	return types.TermWords(s)
}

// containsPhrase reports whether needle occurs in haystack on word
// boundaries. Both must already be normalized.
func containsPhrase(haystack, needle string) bool {
	if needle == "" || haystack == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

func runeLen(s string) int {
	return len([]rune(s))
}
