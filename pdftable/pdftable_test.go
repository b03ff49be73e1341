package pdftable

import (
	"strings"
	"testing"

	"github.com/chamlab/docvec/pdflayout"
)

// WHAT: the canonical 2x3 limits table renders start marker, data lines,
// end marker in document order with header-derived keys.
// WHY: the section splitter and the retrieval layer both depend on this
// exact marker framing.
func TestFormatSimpleWithHeader(t *testing.T) {
	cells := [][]string{
		{"항목", "하한치", "상한치"},
		{"주파수", "10", "20"},
	}
	got, err := Format(cells, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	start := strings.Index(got, "[표 1 - 페이지 1 시작]")
	mid := strings.Index(got, "하한치: 10")
	end := strings.Index(got, "[표 1 - 페이지 1 끝]")
	if start < 0 || mid < 0 || end < 0 {
		t.Fatalf("missing marker or data line in:\n%s", got)
	}
	if !(start < mid && mid < end) {
		t.Fatalf("marker/data order wrong in:\n%s", got)
	}
	for _, want := range []string{"레코드 1:", "항목: 주파수", "상한치: 20"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestFormatWithoutHeaderUsesPositionalKeys(t *testing.T) {
	cells := [][]string{
		{"가나다라마", "15"},
		{"바사아자차", "30"},
	}
	got, err := Format(cells, 2, 7)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"[표 2 - 페이지 7 시작]", "레코드 2:", "항목1: 바사아자차", "항목2: 30"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestFormatEmptyTable(t *testing.T) {
	if _, err := Format([][]string{{"", ""}, {"  ", ""}}, 1, 1); err == nil {
		t.Fatal("expected ErrEmptyTable")
	}
}

// WHAT: every non-empty cell line appears exactly once in the formatted
// block.
// WHY: the formatter must neither drop nor duplicate table content when
// it replaces the region in the page text.
func TestFormatRoundTrip(t *testing.T) {
	tables := [][][]string{
		{
			{"구분", "내용", "비고"},
			{"점검주기", "6개월", "권고"},
			{"교체주기", "24개월", "필수"},
		},
		{
			{"1. 외관 점검\n가) 케이블 상태\n나) 커넥터 조임", "양호"},
			{"2. 기능 점검\n가) 출력 전압\n나) 주파수 편차", "측정값 기록\n한계 초과시 교체"},
		},
	}
	for ti, cells := range tables {
		got, err := Format(cells, ti+1, 1)
		if err != nil {
			t.Fatalf("table %d: %v", ti, err)
		}
		header := HasHeader(cells)
		for ri, row := range cells {
			for _, cell := range row {
				for _, line := range strings.Split(cell, "\n") {
					line = strings.TrimSpace(line)
					if line == "" {
						continue
					}
					n := strings.Count(got, line)
					if ri == 0 && header {
						// Header cells become per-record keys, so they
						// repeat once per data row.
						if n < 1 {
							t.Errorf("table %d: header cell %q missing:\n%s", ti, line, got)
						}
						continue
					}
					if n != 1 {
						t.Errorf("table %d: cell line %q appears %d times:\n%s", ti, line, n, got)
					}
				}
			}
		}
	}
}

func TestFormatHierarchicalLevels(t *testing.T) {
	cells := [][]string{
		{"점검 항목", "결과"},
		{"1. 송신부\n가) 출력\n나) 변조도\n2. 수신부", "정상"},
	}
	got, err := Format(cells, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	// Marker classes drive nesting: "가)" sits one level under "1.", and
	// "2." returns to the recorded level of "1.".
	for _, want := range []string{
		"\n  1. 송신부\n",
		"\n    가) 출력\n",
		"\n    나) 변조도\n",
		"\n  2. 수신부\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	// The single-entry value column is common to the record.
	if !strings.Contains(got, "결과: 정상") {
		t.Errorf("common value not attached:\n%s", got)
	}
}

func TestFormatHierarchicalDistributesValues(t *testing.T) {
	cells := [][]string{
		{"항목", "측정치"},
		{"1. 전압\n2. 전류", "12.6\n3.4"},
	}
	got, err := Format(cells, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	v1 := strings.Index(got, "측정치: 12.6")
	v2 := strings.Index(got, "측정치: 3.4")
	i1 := strings.Index(got, "1. 전압")
	i2 := strings.Index(got, "2. 전류")
	if v1 < 0 || v2 < 0 {
		t.Fatalf("distributed values missing:\n%s", got)
	}
	if !(i1 < v1 && v1 < i2 && i2 < v2) {
		t.Errorf("values not interleaved with their leaf items:\n%s", got)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		cells [][]string
		want  Kind
	}{
		{"simple", [][]string{{"a", "b"}, {"c", "d"}}, KindSimple},
		{"hierarchical", [][]string{{"1. one\n가) sub", "v"}}, KindHierarchicalMultiline},
		{"mixed", [][]string{{"plain", "line one\nline two"}}, KindMixed},
		{"grouped", [][]string{{"", "stray"}, {"1. label", "v"}}, KindGroupedValues},
	}
	for _, tt := range tests {
		if got := Classify(tt.cells); got != tt.want {
			t.Errorf("%s: Classify = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestRepairGrouped(t *testing.T) {
	cells := [][]string{
		{"", "유실값"},
		{"1. 항목", "본값"},
	}
	got, err := Format(cells, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	// The stray value re-pairs ahead of the labelled row's own value.
	a := strings.Index(got, "유실값")
	b := strings.Index(got, "본값")
	if a < 0 || b < 0 || a > b {
		t.Errorf("grouped values not re-paired in order:\n%s", got)
	}
	if strings.Count(got, "레코드") != 1 {
		t.Errorf("re-pairing should leave a single record:\n%s", got)
	}
}

func TestHasHeader(t *testing.T) {
	tests := []struct {
		name  string
		cells [][]string
		want  bool
	}{
		{"text header over numeric body", [][]string{
			{"항목", "하한치", "상한치"},
			{"주파수", "10", "20"},
		}, true},
		{"uniform numeric rows", [][]string{
			{"1", "2", "3"},
			{"4", "5", "6"},
			{"7", "8", "9"},
		}, false},
		{"keyword fallback", [][]string{
			{"구분", "비고"},
			{"가나", "다라"},
			{"마바", "사아"},
		}, true},
		{"single row", [][]string{{"a", "b"}}, false},
	}
	for _, tt := range tests {
		if got := HasHeader(tt.cells); got != tt.want {
			t.Errorf("%s: HasHeader = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMatchSymbol(t *testing.T) {
	tests := []struct {
		line  string
		class SymbolClass
		ok    bool
	}{
		{"1. 외관 점검", SymbolNumberDot, true},
		{"1) 외관", SymbolNumberParen, true},
		{"(3) 세부", SymbolParenNumber, true},
		{"가) 케이블", SymbolKoreanParen, true},
		{"① 첫째", SymbolCircled, true},
		{"TP 1 측정점", SymbolAlphaNum, true},
		{"[주의] 고전압", SymbolBracket, true},
		{"- 항목", SymbolDash, true},
		{"■ 체크", SymbolShape, true},
		{"일반 텍스트", 0, false},
		{"1.1 절 번호는 마커가 아님", 0, false},
	}
	for _, tt := range tests {
		sym, ok := MatchSymbol(tt.line)
		if ok != tt.ok {
			t.Errorf("MatchSymbol(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if ok && sym.Class != tt.class {
			t.Errorf("MatchSymbol(%q) class = %v, want %v", tt.line, sym.Class, tt.class)
		}
	}
}

// WHAT: a grid of aligned segments is detected as one table with the
// expected cell matrix; prose is not.
// WHY: detection runs on every page, so false positives would corrupt
// ordinary paragraphs.
func TestExtractDetectsGrid(t *testing.T) {
	page := pdflayout.Page{Index: 1, Width: 600, Height: 800}
	var chars []pdflayout.Char
	rows := [][]string{
		{"항목", "하한치", "상한치"},
		{"주파수", "10", "20"},
	}
	for ri, row := range rows {
		top := 100 + float64(ri)*20
		xs := []float64{50, 220, 390}
		for ci, cell := range row {
			chars = append(chars, segChars(cell, xs[ci], top)...)
		}
	}
	page.Chars = chars

	blocks, next := Extract(page, chars, 1, Config{})
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if next != 2 {
		t.Errorf("next index = %d, want 2", next)
	}
	b := blocks[0]
	if len(b.Cells) != 2 || len(b.Cells[0]) != 3 {
		t.Fatalf("cell matrix %v, want 2x3", b.Cells)
	}
	if b.Cells[1][1] != "10" {
		t.Errorf("cell[1][1] = %q, want 10", b.Cells[1][1])
	}
	if !strings.Contains(b.Text, "[표 1 - 페이지 1 시작]") {
		t.Errorf("block text missing start marker:\n%s", b.Text)
	}
}

func TestExtractIgnoresProse(t *testing.T) {
	page := pdflayout.Page{Index: 2, Width: 600, Height: 800}
	var chars []pdflayout.Char
	lines := []string{
		"이 절차는 장비의 정기 점검 절차를 기술한다",
		"점검 전 반드시 전원을 차단하고 접지를 확인한다",
		"모든 측정은 교정된 계측기로 수행한다",
	}
	for i, l := range lines {
		chars = append(chars, segChars(l, 50, 100+float64(i)*20)...)
	}
	page.Chars = chars

	blocks, next := Extract(page, chars, 5, Config{})
	if len(blocks) != 0 {
		t.Fatalf("prose detected as table: %v", blocks)
	}
	if next != 5 {
		t.Errorf("next index = %d, want unchanged 5", next)
	}
}

// segChars lays the string out one Char per rune with touching boxes, so
// it reads back as a single segment.
func segChars(text string, x, top float64) []pdflayout.Char {
	var out []pdflayout.Char
	for _, r := range text {
		w := 6.0
		if r == ' ' {
			// Narrow gap keeps words inside one segment.
			x += 2
			continue
		}
		out = append(out, pdflayout.Char{
			Text: string(r), X0: x, X1: x + w,
			Top: top, Bottom: top + 10, Width: w, Height: 10,
		})
		x += w
	}
	return out
}
