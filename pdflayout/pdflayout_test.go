package pdflayout

import (
	"testing"
)

// WHAT: verifies line assembly ordering and word-gap spacing.
// WHY: every downstream heuristic (margins, headings, tables) consumes
// these lines; wrong spacing corrupts heading regexes.
func TestBuildLines(t *testing.T) {
	chars := []Char{
		mkChar("b", 20, 100, 8, 10),
		mkChar("a", 10, 100, 8, 10), // out of order on purpose
		mkChar("c", 40, 100, 8, 10), // gap 12pt > 0.3*8 → space
		mkChar("d", 10, 120, 8, 10), // separate line
	}
	lines := BuildLines(chars, 3.0)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Text != "ab c" {
		t.Errorf("line 0 text = %q, want %q", lines[0].Text, "ab c")
	}
	if lines[1].Text != "d" {
		t.Errorf("line 1 text = %q, want %q", lines[1].Text, "d")
	}
}

func TestBuildLinesToleranceGroupsSlopedBaseline(t *testing.T) {
	// Tops 100, 101.5, 103: each within 3pt of the running average.
	chars := []Char{
		mkChar("a", 10, 100, 8, 10),
		mkChar("b", 20, 101.5, 8, 10),
		mkChar("c", 30, 103, 8, 10),
	}
	lines := BuildLines(chars, 3.0)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
}

func TestBuildLinesEmpty(t *testing.T) {
	if got := BuildLines(nil, 3.0); got != nil {
		t.Fatalf("BuildLines(nil) = %v, want nil", got)
	}
}

func TestCrop(t *testing.T) {
	pg := Page{Index: 1, Width: 600, Height: 800, Chars: []Char{
		mkChar("h", 10, 20, 8, 10),  // header band
		mkChar("x", 10, 400, 8, 10), // body
		mkChar("f", 10, 770, 8, 10), // footer band
	}}
	got := pg.Crop(0.1, 0.1)
	if len(got) != 1 || got[0].Text != "x" {
		t.Fatalf("Crop kept %v, want only body char", got)
	}
}

// bodySentences are pairwise dissimilar so body text can never cluster as
// a repeating header or footer in fixtures.
var bodySentences = []string{
	"torque the fastener to specification",
	"inspect hydraulic reservoir level",
	"replace the pitot static drain valve",
	"verify continuity across the connector",
	"lubricate the actuator bearing race",
	"record all measured impedance values",
	"check antenna cable insulation next",
	"calibrate the transponder output now",
	"drain condensate from the filter bowl",
	"remove access panel and stow screws",
}

// fixturePage builds an 800pt-tall page with optional header and footer
// lines plus six distinct body lines.
func fixturePage(index int, header, footer string) Page {
	pg := Page{Index: index, Width: 600, Height: 800}
	if header != "" {
		pg.Chars = append(pg.Chars, lineChars(header, 100, 30, 10)...)
	}
	for l := 0; l < 6; l++ {
		s := bodySentences[(index-1+l*3)%len(bodySentences)]
		pg.Chars = append(pg.Chars, lineChars(s, 50, 200+float64(l)*40, 10)...)
	}
	if footer != "" {
		pg.Chars = append(pg.Chars, lineChars(footer, 200, 760, 10)...)
	}
	return pg
}

// WHAT: a header line repeating on every page must be detected and cut.
// WHY: uncut headers pollute every section and defeat heading matching.
func TestDetectMarginsRepeatingHeader(t *testing.T) {
	var pages []Page
	for i := 1; i <= 10; i++ {
		pages = append(pages, fixturePage(i, "MAINTENANCE MANUAL", ""))
	}
	prof := DetectMargins(pages, MarginConfig{})
	if !prof.TopDetected {
		t.Fatal("expected top margin detection")
	}
	// Cut must cover the header line (bottom 40) plus padding.
	if prof.TopRatio*800 < 40 {
		t.Errorf("top cut %.1fpt does not cover header", prof.TopRatio*800)
	}
	if prof.TopRatio > 0.3 {
		t.Errorf("top ratio %.3f exceeds cap", prof.TopRatio)
	}
	if prof.BottomDetected {
		t.Error("no footer present, bottom should fall back to default")
	}
	if prof.BottomRatio != 0.1 {
		t.Errorf("bottom ratio = %.3f, want default 0.1", prof.BottomRatio)
	}
}

func TestDetectMarginsFooterWithPageNumbers(t *testing.T) {
	// "Page 1 of 12" … "Page 9 of 12": similar above 0.85 to the cluster
	// seed, so they group as one footer despite the changing digit.
	var pages []Page
	for i := 1; i <= 9; i++ {
		num := string(rune('0' + i))
		pages = append(pages, fixturePage(i, "", "- Page "+num+" of 12 -"))
	}
	prof := DetectMargins(pages, MarginConfig{})
	if !prof.BottomDetected {
		t.Fatal("expected bottom margin detection")
	}
	if prof.BottomRatio*800 < 40 {
		t.Errorf("bottom cut %.1fpt does not reach footer", prof.BottomRatio*800)
	}
}

// WHAT: re-detection on cropped pages finds nothing and returns defaults.
// WHY: the crop must converge; a second pass must not eat body text.
func TestDetectMarginsIdempotentAfterCrop(t *testing.T) {
	var pages []Page
	for i := 1; i <= 10; i++ {
		pages = append(pages, fixturePage(i, "MAINTENANCE MANUAL", ""))
	}
	prof := DetectMargins(pages, MarginConfig{})
	if !prof.TopDetected {
		t.Fatal("expected detection on first pass")
	}

	cropped := make([]Page, len(pages))
	for i, pg := range pages {
		cropped[i] = Page{Index: pg.Index, Width: pg.Width, Height: pg.Height,
			Chars: pg.Crop(prof.TopRatio, prof.BottomRatio)}
	}
	again := DetectMargins(cropped, MarginConfig{})
	if again.TopDetected {
		t.Error("second pass still detects a header after cropping")
	}
	if again.TopRatio != 0.1 || again.BottomRatio != 0.1 {
		t.Errorf("second pass ratios = %.3f/%.3f, want defaults", again.TopRatio, again.BottomRatio)
	}
}

func TestDetectMarginsNoRepeats(t *testing.T) {
	var pages []Page
	texts := []string{
		"completely different first line",
		"another unrelated opening",
		"third heading entirely",
		"fourth page starts otherwise",
	}
	for i, txt := range texts {
		pages = append(pages, Page{Index: i + 1, Width: 600, Height: 800,
			Chars: lineChars(txt, 50, 30, 10)})
	}
	prof := DetectMargins(pages, MarginConfig{})
	if prof.TopDetected || prof.BottomDetected {
		t.Fatal("no repeating element, nothing should be detected")
	}
}

func TestDetectMarginsEmptyInput(t *testing.T) {
	prof := DetectMargins(nil, MarginConfig{})
	if prof.TopRatio != 0.1 || prof.BottomRatio != 0.1 {
		t.Fatalf("empty input ratios = %v, want static defaults", prof)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"identical", "identical", 1, 1},
		{"", "anything", 0, 0},
		{"Page 3 of 10", "Page 7 of 10", 0.9, 1},
		{"header text", "totally other", 0, 0.4},
		{"유지보수교범 제1권", "유지보수교범 제2권", 0.85, 1},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("Similarity(%q, %q) = %.3f, want in [%.2f, %.2f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

// mkChar builds a Char at (x, top) with the given width and height.
func mkChar(s string, x, top, w, h float64) Char {
	return Char{Text: s, X0: x, X1: x + w, Top: top, Bottom: top + h, Width: w, Height: h}
}

// lineChars lays out one Char per rune on a single baseline.
func lineChars(text string, x, top, h float64) []Char {
	var out []Char
	for _, r := range text {
		out = append(out, mkChar(string(r), x, top, h*0.6, h))
		x += h * 0.6
	}
	return out
}
