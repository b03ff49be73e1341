package pdfsplit

import (
	"regexp"
	"strconv"
	"strings"
)

// HeadingKind distinguishes the three heading families the splitter
// understands.
type HeadingKind int

const (
	// KindNumeric is a dotted section number: "1.2", "3.4.1.2".
	KindNumeric HeadingKind = iota
	// KindChapter is a Korean chapter heading: "제 3 장 ...".
	KindChapter
	// KindAppendix is an appendix heading: "첨부 2 ...".
	KindAppendix
)

// HeadingMatch is one heading occurrence in the assembled document text.
type HeadingMatch struct {
	Raw    string // full heading line
	Title  string // text after the number
	Number string // canonical number: "1.2.3", "제3장", "첨부2"
	Path   []int  // numeric path; chapters and appendices carry [N]
	Kind   HeadingKind
	Pos    int // byte offset into the document text
	End    int // byte offset just past the heading line
	// Recurs marks a heading whose Number appears again later in the
	// document, which usually means this occurrence is a table of
	// contents entry.
	Recurs bool
}

var (
	chapterRe  = regexp.MustCompile(`(?m)^제\s*(\d{1,3})\s*장\s*(.*)$`)
	appendixRe = regexp.MustCompile(`(?m)^첨부\s*(\d{1,3})\s*(.*)$`)
	// The title must start with a non-digit so tabular number rows like
	// "10.5 12.3" are not mistaken for headings.
	numericRe = regexp.MustCompile(`(?m)^(\d{1,2}(?:\.\d{1,2}){1,3})\.?[ \t]+([^\s\d][^\n]*)$`)

	tableStartRe = regexp.MustCompile(`\[표 \d+ - 페이지 \d+ 시작\]`)
	tableEndRe   = regexp.MustCompile(`\[표 \d+ - 페이지 \d+ 끝\]`)
)

// excludedTitle is a known recurring body phrase that looks like a
// numeric heading title but never is one.
const excludedTitle = "Radio Navigation and Landing Aids"

// FindHeadings scans the document text for headings in document order.
// Matches inside table marker regions are dropped, and each match is
// annotated with whether its number recurs later.
func FindHeadings(doc string) []HeadingMatch {
	spans := tableSpans(doc)
	var out []HeadingMatch

	collect := func(re *regexp.Regexp, kind HeadingKind) {
		for _, m := range re.FindAllStringSubmatchIndex(doc, -1) {
			pos, end := m[0], m[1]
			if insideSpan(spans, pos) {
				continue
			}
			raw := doc[pos:end]
			numStr := doc[m[2]:m[3]]
			title := ""
			if m[4] >= 0 {
				title = strings.TrimSpace(doc[m[4]:m[5]])
			}
			h := HeadingMatch{Raw: strings.TrimSpace(raw), Title: title, Kind: kind, Pos: pos, End: end}
			switch kind {
			case KindNumeric:
				if strings.HasPrefix(title, excludedTitle) {
					continue
				}
				h.Number = numStr
				h.Path = parsePath(numStr)
			case KindChapter:
				n, _ := strconv.Atoi(numStr)
				h.Number = "제" + numStr + "장"
				h.Path = []int{n}
			case KindAppendix:
				n, _ := strconv.Atoi(numStr)
				h.Number = "첨부" + numStr
				h.Path = []int{n}
			}
			out = append(out, h)
		}
	}

	collect(chapterRe, KindChapter)
	collect(appendixRe, KindAppendix)
	collect(numericRe, KindNumeric)

	sortByPos(out)
	markRecurring(out)
	return out
}

func parsePath(num string) []int {
	parts := strings.Split(num, ".")
	path := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil
		}
		path = append(path, n)
	}
	return path
}

// tableSpans returns the [start, end) byte ranges of table marker regions.
// An unpaired start marker extends its span to the end of the text.
func tableSpans(doc string) [][2]int {
	starts := tableStartRe.FindAllStringIndex(doc, -1)
	ends := tableEndRe.FindAllStringIndex(doc, -1)
	var spans [][2]int
	ei := 0
	for _, s := range starts {
		for ei < len(ends) && ends[ei][1] <= s[0] {
			ei++
		}
		if ei < len(ends) {
			spans = append(spans, [2]int{s[0], ends[ei][1]})
			ei++
		} else {
			spans = append(spans, [2]int{s[0], len(doc)})
		}
	}
	return spans
}

func insideSpan(spans [][2]int, pos int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

func sortByPos(hs []HeadingMatch) {
	// Insertion sort: the three regex passes each emit ordered matches,
	// so the merged slice is nearly sorted.
	for i := 1; i < len(hs); i++ {
		for j := i; j > 0 && hs[j].Pos < hs[j-1].Pos; j-- {
			hs[j], hs[j-1] = hs[j-1], hs[j]
		}
	}
}

func markRecurring(hs []HeadingMatch) {
	last := make(map[string]int)
	for i, h := range hs {
		last[h.Number] = i
	}
	for i := range hs {
		if last[hs[i].Number] > i {
			hs[i].Recurs = true
		}
	}
}
