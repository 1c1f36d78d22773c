// Package strcase converts Go identifiers to snake_case keys.
package strcase

import (
	"strings"
	"unicode"
)

// ToLowerSnake splits s at case boundaries and joins the lowercased words with
// underscores. A run of capitals stays one word, so TTLMinutes becomes
// ttl_minutes.
func ToLowerSnake(s string) string {
	runes := []rune(s)
	words := make([]string, 0, 4)

	start := 0
	for i := 1; i < len(runes); i++ {
		if boundary(runes, i) {
			words = append(words, strings.ToLower(string(runes[start:i])))
			start = i
		}
	}
	if start < len(runes) {
		words = append(words, strings.ToLower(string(runes[start:])))
	}

	return strings.Join(words, "_")
}

func boundary(r []rune, i int) bool {
	if !unicode.IsUpper(r[i]) {
		return false
	}

	prev := r[i-1]
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	return unicode.IsUpper(prev) && i+1 < len(r) && unicode.IsLower(r[i+1])
}
