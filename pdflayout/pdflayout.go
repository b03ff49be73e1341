// Package pdflayout parses PDF pages into positioned characters and
// reconstructs the physical layout: line grouping, word spacing, and
// repeating header/footer detection.
//
// Coordinates are top-based: Top = 0 is the top edge of the page, matching
// how the downstream heuristics reason about headers (small Top) and
// footers (Top near page height). The underlying PDF model is bottom-based,
// so positions are flipped during load.
//
// Usage:
//
//	pages, err := pdflayout.Load("manual.pdf")
//	if err != nil { ... }
//	prof := pdflayout.DetectMargins(pages, pdflayout.MarginConfig{})
//	lines := pdflayout.BuildLines(pages[0].Crop(prof.TopRatio, prof.BottomRatio), 3.0)
package pdflayout

import (
	"fmt"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// Char is a single positioned glyph run on a page.
type Char struct {
	Text   string
	X0, X1 float64
	// Top and Bottom measure down from the top edge of the page.
	Top, Bottom   float64
	Width, Height float64
}

// Page holds the immutable character inventory of one PDF page.
type Page struct {
	Index         int // 1-based
	Width, Height float64
	Chars         []Char
}

// Line is a horizontal group of characters with assembled text.
type Line struct {
	Top, Bottom float64
	Text        string
	Chars       []Char
}

// A4 portrait in points, used when a page carries no usable MediaBox.
const (
	defaultPageWidth  = 595.28
	defaultPageHeight = 841.89
)

// Load parses every page of the PDF at path into positioned characters.
// Pages that fail to parse are returned empty rather than aborting the
// document; a document that cannot be opened at all is a fatal error.
func Load(path string) ([]Page, error) {
	f, r, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdflayout: open %s: %w", path, err)
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, Page{Index: i, Width: defaultPageWidth, Height: defaultPageHeight})
			continue
		}
		w, h := pageSize(p)
		pg := Page{Index: i, Width: w, Height: h}
		content := p.Content()
		pg.Chars = make([]Char, 0, len(content.Text))
		for _, t := range content.Text {
			if t.S == "" {
				continue
			}
			height := t.FontSize
			if height <= 0 {
				height = 10
			}
			// Flip bottom-based Y to top-based.
			bottom := h - t.Y
			pg.Chars = append(pg.Chars, Char{
				Text:   t.S,
				X0:     t.X,
				X1:     t.X + t.W,
				Top:    bottom - height,
				Bottom: bottom,
				Width:  t.W,
				Height: height,
			})
		}
		pages = append(pages, pg)
	}
	return pages, nil
}

func pageSize(p pdflib.Page) (w, h float64) {
	mb := p.V.Key("MediaBox")
	if mb.IsNull() || mb.Len() < 4 {
		return defaultPageWidth, defaultPageHeight
	}
	x0 := mb.Index(0).Float64()
	y0 := mb.Index(1).Float64()
	x1 := mb.Index(2).Float64()
	y1 := mb.Index(3).Float64()
	w = x1 - x0
	h = y1 - y0
	if w <= 0 || h <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return w, h
}

// Crop returns the page's characters whose vertical center falls inside the
// band [topRatio*H, (1-bottomRatio)*H]. The page itself is not modified.
func (p Page) Crop(topRatio, bottomRatio float64) []Char {
	lo := topRatio * p.Height
	hi := (1 - bottomRatio) * p.Height
	out := make([]Char, 0, len(p.Chars))
	for _, c := range p.Chars {
		mid := (c.Top + c.Bottom) / 2
		if mid >= lo && mid <= hi {
			out = append(out, c)
		}
	}
	return out
}

// AvgCharHeight returns the mean glyph height of the page, or 0 for an
// empty page.
func (p Page) AvgCharHeight() float64 {
	if len(p.Chars) == 0 {
		return 0
	}
	var sum float64
	for _, c := range p.Chars {
		sum += c.Height
	}
	return sum / float64(len(p.Chars))
}

// BuildLines groups characters into lines. Characters whose Top values are
// within tolerance of the line's running average belong to the same line.
// Within a line characters are ordered by X0 and a space is inserted where
// the horizontal gap exceeds 30% of the preceding character's width.
func BuildLines(chars []Char, tolerance float64) []Line {
	if len(chars) == 0 {
		return nil
	}
	sorted := make([]Char, len(chars))
	copy(sorted, chars)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Top != sorted[j].Top {
			return sorted[i].Top < sorted[j].Top
		}
		return sorted[i].X0 < sorted[j].X0
	})

	var lines []Line
	var cur []Char
	curTop := sorted[0].Top
	flush := func() {
		if len(cur) == 0 {
			return
		}
		lines = append(lines, assembleLine(cur))
		cur = nil
	}
	for _, c := range sorted {
		if len(cur) > 0 && c.Top-curTop > tolerance {
			flush()
			curTop = c.Top
		} else if len(cur) > 0 {
			// Running average keeps slightly sloped baselines together.
			curTop = (curTop*float64(len(cur)) + c.Top) / float64(len(cur)+1)
		} else {
			curTop = c.Top
		}
		cur = append(cur, c)
	}
	flush()
	return lines
}

func assembleLine(chars []Char) Line {
	sort.SliceStable(chars, func(i, j int) bool { return chars[i].X0 < chars[j].X0 })
	var b strings.Builder
	top, bottom := chars[0].Top, chars[0].Bottom
	for i, c := range chars {
		if i > 0 {
			prev := chars[i-1]
			gapRef := prev.Width
			if gapRef <= 0 {
				gapRef = prev.Height * 0.5
			}
			if c.X0-prev.X1 > gapRef*0.3 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(c.Text)
		if c.Top < top {
			top = c.Top
		}
		if c.Bottom > bottom {
			bottom = c.Bottom
		}
	}
	return Line{Top: top, Bottom: bottom, Text: strings.TrimSpace(b.String()), Chars: chars}
}

// LineText returns the assembled text of each line, skipping empties.
func LineText(lines []Line) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Text != "" {
			out = append(out, l.Text)
		}
	}
	return out
}
