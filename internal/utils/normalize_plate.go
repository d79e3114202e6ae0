package utils

import (
	"regexp"
	"strings"
	"unicode"

	"lpr-service/internal/domain/lpr"
)

// 2-3 digits, one Hangul syllable, 4 digits.
var platePattern = regexp.MustCompile(`[0-9]{2,3}[가-힣][0-9]{4}`)

func NormalizePlate(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// MatchPlate normalizes raw and returns the first substring that matches the
// plate grammar. Later matches in the same string are ignored.
func MatchPlate(raw string) (string, bool) {
	match := platePattern.FindString(NormalizePlate(raw))
	if match == "" {
		return "", false
	}
	return match, true
}

// JoinTokens concatenates recognizer output verbatim, without separators.
func JoinTokens(tokens []lpr.Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}
