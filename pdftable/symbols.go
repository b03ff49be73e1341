package pdftable

import (
	"regexp"
	"strings"
)

// SymbolClass tags the list-marker family a cell line starts with. The
// class, not the literal marker, drives hierarchy levelling: two lines
// opened by "1." and "2." share a level, while "가)" under them nests.
type SymbolClass int

const (
	SymbolNone SymbolClass = iota
	SymbolAlphaNum             // "TP 1", "NO 12"
	SymbolParenNumber          // "(1)"
	SymbolNumberParen          // "1)"
	SymbolNumberDot            // "1."
	SymbolBracket              // "[주의]"
	SymbolKoreanParen          // "가)"
	SymbolCircled              // "①", "㉮"
	SymbolArrow                // "→", "▶"
	SymbolShape                // "■", "○", "★"
	SymbolDash                 // "-", "•"
)

// Symbol is a recognised list marker at the start of a line.
type Symbol struct {
	Text  string
	Class SymbolClass
}

type symbolPattern struct {
	re    *regexp.Regexp
	class SymbolClass
}

// symbolPatterns is checked in order; the first match wins, so the more
// specific shapes come before the generic bullets.
var symbolPatterns = []symbolPattern{
	{regexp.MustCompile(`^([A-Z]{1,3}\s?\d{1,3})[.)]?\s+`), SymbolAlphaNum},
	{regexp.MustCompile(`^(\(\d{1,3}\))\s*`), SymbolParenNumber},
	{regexp.MustCompile(`^(\d{1,3}\))\s*`), SymbolNumberParen},
	{regexp.MustCompile(`^(\d{1,3}\.)(?:\s+|$)`), SymbolNumberDot},
	{regexp.MustCompile(`^(\[[^\]]{1,20}\])\s*`), SymbolBracket},
	{regexp.MustCompile(`^([가-힣]\))\s*`), SymbolKoreanParen},
	{regexp.MustCompile(`^([①-⑳㉮-㉻])\s*`), SymbolCircled},
	{regexp.MustCompile(`^([→⇒▶►]+)\s*`), SymbolArrow},
	{regexp.MustCompile(`^([■□●○◦★☆◆◇▲△▽▼])\s*`), SymbolShape},
	{regexp.MustCompile(`^([-*•⦁∙·‣▪・])\s*`), SymbolDash},
}

// MatchSymbol reports the marker opening the line, if any.
func MatchSymbol(line string) (Symbol, bool) {
	line = strings.TrimLeft(line, " \t")
	for _, p := range symbolPatterns {
		if m := p.re.FindStringSubmatch(line); m != nil {
			return Symbol{Text: m[1], Class: p.class}, true
		}
	}
	return Symbol{}, false
}
