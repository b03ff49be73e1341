// Package pdftable finds table regions on a PDF page from character
// geometry alone, recovers per-cell text, classifies the table structure,
// and renders each table as an indented text block between page-scoped
// markers:
//
//	[표 3 - 페이지 12 시작]
//	레코드 1:
//	  항목: 주파수
//	  하한치: 10
//	[표 3 - 페이지 12 끝]
//
// The markers later let the section splitter treat table content as opaque
// regions, and the formatter guarantees cell text appears exactly once.
//
// Detection is alignment-based: runs of consecutive lines whose word
// segments share left edges form a grid. There are no ruling lines in the
// character model, so bordered and borderless tables are treated alike.
package pdftable

import (
	"fmt"
	"log/slog"

	"github.com/chamlab/docvec/pdflayout"
)

// Rect is an axis-aligned region in top-based page coordinates.
type Rect struct {
	X0, Top, X1, Bottom float64
}

// Contains reports whether the center of c falls inside r.
func (r Rect) Contains(c pdflayout.Char) bool {
	mx := (c.X0 + c.X1) / 2
	my := (c.Top + c.Bottom) / 2
	return mx >= r.X0 && mx <= r.X1 && my >= r.Top && my <= r.Bottom
}

// Block is one extracted table: its region, cell matrix, and the rendered
// text including start/end markers.
type Block struct {
	Rect
	PageIndex int // 1-based page number
	Index     int // 1-based table number within the document
	Cells     [][]string
	Text      string
}

// Config tunes detection. The zero value is usable.
type Config struct {
	// MinRows and MinCols are the smallest grid accepted as a table.
	// Defaults: 2 and 2.
	MinRows int
	MinCols int

	// AlignTolerance is the horizontal slack, in points, within which two
	// segment left edges count as the same column. Default: 5.
	AlignTolerance float64

	// GapFactor scales the average character width to decide where a line
	// splits into cell segments. Default: 3.
	GapFactor float64

	// LineTolerance groups characters into lines. Default: 3.
	LineTolerance float64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MinRows == 0 {
		c.MinRows = 2
	}
	if c.MinCols == 0 {
		c.MinCols = 2
	}
	if c.AlignTolerance == 0 {
		c.AlignTolerance = 5
	}
	if c.GapFactor == 0 {
		c.GapFactor = 3
	}
	if c.LineTolerance == 0 {
		c.LineTolerance = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extract detects and formats every table on the page. nextIndex is the
// 1-based number the first table on this page receives; the returned next
// value carries the counter to the following page. A table that fails to
// format is skipped and logged, leaving its characters to the plain-text
// flow.
func Extract(page pdflayout.Page, chars []pdflayout.Char, nextIndex int, cfg Config) (blocks []Block, next int) {
	cfg.defaults()
	next = nextIndex
	for _, region := range detectRegions(chars, cfg) {
		cells, ok := buildCells(region)
		if !ok {
			cfg.Logger.Warn("table region rejected during cell recovery",
				"page", page.Index, "x0", region.rect.X0, "top", region.rect.Top)
			continue
		}
		b := Block{
			Rect:      region.rect,
			PageIndex: page.Index,
			Index:     next,
			Cells:     cells,
		}
		text, err := Format(cells, b.Index, b.PageIndex)
		if err != nil {
			cfg.Logger.Warn("table formatting failed, leaving region as plain text",
				"page", page.Index, "table", next, "err", err)
			continue
		}
		b.Text = text
		blocks = append(blocks, b)
		next++
	}
	return blocks, next
}

// StartMarker and EndMarker render the page-scoped table delimiters.
func StartMarker(index, page int) string {
	return fmt.Sprintf("[표 %d - 페이지 %d 시작]", index, page)
}

func EndMarker(index, page int) string {
	return fmt.Sprintf("[표 %d - 페이지 %d 끝]", index, page)
}
