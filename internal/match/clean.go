// Package match scores human-edited proxy node names against each other so a
// renamed node in a subscription can still be found by its old name.
package match

import (
	"strings"
	"unicode"
)

// CleanName lower-cases name, drops emoji and flag glyphs, turns bracket
// punctuation into spaces and collapses whitespace.
//
//	CleanName("🇭🇰 HK [Premium]") == "hk premium"
func CleanName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case isEmoji(r):
			continue
		case isBracket(r):
			b.WriteByte(' ')
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators (flags)
		return true
	case r >= 0x1F300 && r <= 0x1FFFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r == 0xFE0F, r == 0x200D, r == 0x20E3:
		return true
	}
	return false
}

func isBracket(r rune) bool {
	switch r {
	case '[', ']', '(', ')', '{', '}', '<', '>',
		'【', '】', '（', '）', '「', '」', '『', '』', '〔', '〕':
		return true
	}
	return false
}
