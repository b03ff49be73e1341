package pdftable

import (
	"strings"
	"unicode"
)

// Kind classifies the internal structure of a cell matrix; the formatter
// picks its rendering strategy from it.
type Kind int

const (
	// KindSimple: one value per cell, no intra-cell newlines.
	KindSimple Kind = iota
	// KindHierarchicalMultiline: first-column cells hold several lines
	// opened by list markers, values hang off the hierarchy.
	KindHierarchicalMultiline
	// KindGroupedValues: a value-only row precedes the labelled row it
	// belongs to and must be re-paired.
	KindGroupedValues
	// KindMixed: multi-line cells without a recognisable hierarchy.
	KindMixed
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindHierarchicalMultiline:
		return "hierarchical_multiline"
	case KindGroupedValues:
		return "grouped_values"
	case KindMixed:
		return "mixed"
	}
	return "unknown"
}

// Classify inspects the cell matrix and picks the structure kind.
func Classify(cells [][]string) Kind {
	multiline := false
	hierarchical := false
	for _, row := range cells {
		for ci, cell := range row {
			if !strings.Contains(cell, "\n") {
				continue
			}
			multiline = true
			if ci == 0 && hasSymbolLines(cell) {
				hierarchical = true
			}
		}
	}
	if grouped(cells) {
		return KindGroupedValues
	}
	if hierarchical {
		return KindHierarchicalMultiline
	}
	if multiline {
		return KindMixed
	}
	return KindSimple
}

// hasSymbolLines reports whether at least one line of the cell is opened
// by a known list marker.
func hasSymbolLines(cell string) bool {
	for _, l := range splitCell(cell) {
		if _, ok := MatchSymbol(l); ok {
			return true
		}
	}
	return false
}

// grouped detects the value-only-then-label misalignment: a row whose
// first cell is empty but carries values, immediately followed by a row
// whose first cell starts with a list marker.
func grouped(cells [][]string) bool {
	for i := 0; i+1 < len(cells); i++ {
		row := cells[i]
		if len(row) < 2 || row[0] != "" {
			continue
		}
		hasValue := false
		for _, c := range row[1:] {
			if c != "" {
				hasValue = true
				break
			}
		}
		if !hasValue {
			continue
		}
		next := cells[i+1]
		if len(next) > 0 && next[0] != "" {
			if _, ok := MatchSymbol(firstLine(next[0])); ok {
				return true
			}
		}
	}
	return false
}

// headerKeywords is the fallback signal when row statistics are
// inconclusive.
var headerKeywords = []string{
	"구분", "항목", "내용", "비고", "번호", "명칭", "규격", "수량", "단위",
	"no", "item", "name", "description", "remark", "qty", "unit", "type",
}

// HasHeader decides whether the first row is a header. It compares the
// first row against the body rows on five structural metrics; when the
// first row stands out more than the body rows differ among themselves by
// over 0.3 on any metric, it is a header. Otherwise a keyword scan of the
// first row decides.
func HasHeader(cells [][]string) bool {
	if len(cells) < 2 {
		return false
	}
	first := rowProfile(cells[0])
	body := make([]profile, 0, len(cells)-1)
	for _, r := range cells[1:] {
		body = append(body, rowProfile(r))
	}

	for m := 0; m < numMetrics; m++ {
		var firstDiff float64
		for _, b := range body {
			firstDiff += metricDiff(m, first, b)
		}
		firstDiff /= float64(len(body))

		var bodyDiff float64
		if len(body) > 1 {
			n := 0
			for i := 0; i+1 < len(body); i++ {
				bodyDiff += metricDiff(m, body[i], body[i+1])
				n++
			}
			bodyDiff /= float64(n)
		}
		if firstDiff-bodyDiff > 0.3 {
			return true
		}
	}

	for _, cell := range cells[0] {
		lc := strings.ToLower(strings.TrimSpace(cell))
		for _, kw := range headerKeywords {
			if lc == kw {
				return true
			}
		}
	}
	return false
}

const numMetrics = 5

type cellType int

const (
	ctEmpty cellType = iota
	ctNumeric
	ctText
	ctMixed
)

type charClass int

const (
	ccOther charClass = iota
	ccCJK
	ccLatin
	ccDigit
)

// profile is the structural fingerprint of one row.
type profile struct {
	types   []cellType
	avgLen  float64
	empty   []bool
	special float64 // fraction of cells containing punctuation/symbols
	classes []charClass
}

func rowProfile(row []string) profile {
	p := profile{
		types:   make([]cellType, len(row)),
		empty:   make([]bool, len(row)),
		classes: make([]charClass, len(row)),
	}
	var lenSum float64
	specials := 0
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		p.types[i] = typeOf(cell)
		p.empty[i] = cell == ""
		p.classes[i] = dominantClass(cell)
		lenSum += float64(len([]rune(cell)))
		if strings.ContainsAny(cell, "()[]%:/+-±~") {
			specials++
		}
	}
	if len(row) > 0 {
		p.avgLen = lenSum / float64(len(row))
		p.special = float64(specials) / float64(len(row))
	}
	return p
}

func typeOf(cell string) cellType {
	if cell == "" {
		return ctEmpty
	}
	digits, letters := 0, 0
	for _, r := range cell {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}
	switch {
	case digits > 0 && letters == 0:
		return ctNumeric
	case digits > 0 && letters > 0:
		return ctMixed
	default:
		return ctText
	}
}

func dominantClass(cell string) charClass {
	var cjk, latin, digit, other int
	for _, r := range cell {
		switch {
		case unicode.Is(unicode.Hangul, r) || unicode.Is(unicode.Han, r):
			cjk++
		case r < 128 && unicode.IsLetter(r):
			latin++
		case unicode.IsDigit(r):
			digit++
		default:
			other++
		}
	}
	best, cls := other, ccOther
	if cjk > best {
		best, cls = cjk, ccCJK
	}
	if latin > best {
		best, cls = latin, ccLatin
	}
	if digit > best {
		cls = ccDigit
	}
	return cls
}

// metricDiff returns a [0,1] dissimilarity between two row profiles on
// the given metric.
func metricDiff(metric int, a, b profile) float64 {
	switch metric {
	case 0: // cell types
		return positionDiff(len(a.types), len(b.types), func(i int) bool { return a.types[i] != b.types[i] })
	case 1: // average length
		max := a.avgLen
		if b.avgLen > max {
			max = b.avgLen
		}
		if max == 0 {
			return 0
		}
		d := a.avgLen - b.avgLen
		if d < 0 {
			d = -d
		}
		return d / max
	case 2: // empty positions
		return positionDiff(len(a.empty), len(b.empty), func(i int) bool { return a.empty[i] != b.empty[i] })
	case 3: // special characters
		d := a.special - b.special
		if d < 0 {
			d = -d
		}
		return d
	case 4: // character classes
		return positionDiff(len(a.classes), len(b.classes), func(i int) bool { return a.classes[i] != b.classes[i] })
	}
	return 0
}

func positionDiff(la, lb int, differs func(i int) bool) float64 {
	n := la
	if lb < n {
		n = lb
	}
	if n == 0 {
		return 0
	}
	diff := 0
	for i := 0; i < n; i++ {
		if differs(i) {
			diff++
		}
	}
	if la != lb {
		diff += la + lb - 2*n
	}
	total := la
	if lb > total {
		total = lb
	}
	return float64(diff) / float64(total)
}

func splitCell(cell string) []string {
	var out []string
	for _, l := range strings.Split(cell, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func firstLine(cell string) string {
	if i := strings.IndexByte(cell, '\n'); i >= 0 {
		return strings.TrimSpace(cell[:i])
	}
	return strings.TrimSpace(cell)
}
