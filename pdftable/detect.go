package pdftable

import (
	"sort"
	"strings"

	"github.com/chamlab/docvec/pdflayout"
)

// segment is a horizontal run of characters within one text line,
// separated from its neighbours by a gap wide enough to mean "next cell".
type segment struct {
	x0, x1      float64
	top, bottom float64
	text        string
}

type segLine struct {
	top, bottom float64
	segs        []segment
}

// region is a detected table: its bounding rect, column left edges, and
// the member lines in reading order.
type region struct {
	rect  Rect
	cols  []float64
	lines []segLine
	tol   float64
}

// detectRegions finds runs of consecutive lines whose segments align into
// at least MinCols columns over at least MinRows lines.
func detectRegions(chars []pdflayout.Char, cfg Config) []region {
	lines := segmentLines(chars, cfg)
	var regions []region
	i := 0
	for i < len(lines) {
		if len(lines[i].segs) < cfg.MinCols {
			i++
			continue
		}
		run, end := growRun(lines, i, cfg)
		if run != nil {
			regions = append(regions, *run)
			i = end
			continue
		}
		i++
	}
	return regions
}

// segmentLines groups characters into lines and splits each line into cell
// segments wherever the horizontal gap exceeds GapFactor times the line's
// average character width.
func segmentLines(chars []pdflayout.Char, cfg Config) []segLine {
	var out []segLine
	for _, l := range pdflayout.BuildLines(chars, cfg.LineTolerance) {
		if len(l.Chars) == 0 {
			continue
		}
		var avgW float64
		for _, c := range l.Chars {
			avgW += c.Width
		}
		avgW /= float64(len(l.Chars))
		if avgW <= 0 {
			avgW = 5
		}
		gap := cfg.GapFactor * avgW

		sl := segLine{top: l.Top, bottom: l.Bottom}
		var cur []pdflayout.Char
		flush := func() {
			if len(cur) == 0 {
				return
			}
			sl.segs = append(sl.segs, buildSegment(cur))
			cur = nil
		}
		for idx, c := range l.Chars {
			if idx > 0 && c.X0-l.Chars[idx-1].X1 > gap {
				flush()
			}
			cur = append(cur, c)
		}
		flush()
		if len(sl.segs) > 0 {
			out = append(out, sl)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].top < out[j].top })
	return out
}

func buildSegment(chars []pdflayout.Char) segment {
	s := segment{x0: chars[0].X0, x1: chars[0].X1, top: chars[0].Top, bottom: chars[0].Bottom}
	var b strings.Builder
	for i, c := range chars {
		if i > 0 {
			prev := chars[i-1]
			ref := prev.Width
			if ref <= 0 {
				ref = prev.Height * 0.5
			}
			if c.X0-prev.X1 > ref*0.3 {
				b.WriteByte(' ')
			}
		}
		b.WriteString(c.Text)
		if c.X1 > s.x1 {
			s.x1 = c.X1
		}
		if c.Top < s.top {
			s.top = c.Top
		}
		if c.Bottom > s.bottom {
			s.bottom = c.Bottom
		}
	}
	s.text = strings.TrimSpace(b.String())
	return s
}

// growRun extends a candidate table downward from lines[start] for as long
// as each line's segments keep aligning with the accumulated column set.
// It returns the accepted region and the index after its last line, or nil
// when the run never reaches MinRows aligned lines.
func growRun(lines []segLine, start int, cfg Config) (*region, int) {
	cols := make([]float64, 0, len(lines[start].segs))
	for _, s := range lines[start].segs {
		cols = append(cols, s.x0)
	}
	member := []segLine{lines[start]}
	aligned := 1

	end := start + 1
	for end < len(lines) {
		l := lines[end]
		// A vertical jump larger than three line heights ends the table.
		prev := member[len(member)-1]
		if l.top-prev.bottom > 3*(prev.bottom-prev.top) {
			break
		}
		matched, newCols := matchColumns(l, cols, cfg)
		if !matched {
			break
		}
		cols = newCols
		member = append(member, l)
		if countAligned(l, cols, cfg.AlignTolerance) >= cfg.MinCols {
			aligned++
		}
		end++
	}

	if aligned < cfg.MinRows || len(cols) < cfg.MinCols {
		return nil, 0
	}
	sort.Float64s(cols)
	r := &region{cols: cols, lines: member, tol: cfg.AlignTolerance}
	r.rect = boundsOf(member)
	return r, end
}

// matchColumns accepts a line when every one of its segments sits on an
// existing column, or when it is itself column-rich and shares at least
// half its segments with the known columns (then the new edges join the
// column set).
func matchColumns(l segLine, cols []float64, cfg Config) (bool, []float64) {
	hits := countAligned(l, cols, cfg.AlignTolerance)
	if hits == len(l.segs) {
		return true, cols
	}
	if len(l.segs) >= cfg.MinCols && hits*2 >= len(l.segs) {
		out := append([]float64(nil), cols...)
		for _, s := range l.segs {
			if nearestColumn(cols, s.x0, cfg.AlignTolerance) < 0 {
				out = append(out, s.x0)
			}
		}
		return true, out
	}
	return false, nil
}

func countAligned(l segLine, cols []float64, tol float64) int {
	n := 0
	for _, s := range l.segs {
		if nearestColumn(cols, s.x0, tol) >= 0 {
			n++
		}
	}
	return n
}

// nearestColumn returns the index of the column within tol of x, or -1.
func nearestColumn(cols []float64, x, tol float64) int {
	best, bestDist := -1, tol
	for i, c := range cols {
		d := c - x
		if d < 0 {
			d = -d
		}
		if d <= bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func boundsOf(lines []segLine) Rect {
	r := Rect{X0: lines[0].segs[0].x0, Top: lines[0].top, X1: lines[0].segs[0].x1, Bottom: lines[0].bottom}
	for _, l := range lines {
		if l.top < r.Top {
			r.Top = l.top
		}
		if l.bottom > r.Bottom {
			r.Bottom = l.bottom
		}
		for _, s := range l.segs {
			if s.x0 < r.X0 {
				r.X0 = s.x0
			}
			if s.x1 > r.X1 {
				r.X1 = s.x1
			}
		}
	}
	return r
}

// buildCells turns a region into a row-major cell matrix. A line opens a
// new logical row when it populates at least half of the columns; sparser
// lines continue the previous row, so multi-line cells keep their internal
// newlines.
func buildCells(r region) ([][]string, bool) {
	if len(r.cols) == 0 || len(r.lines) == 0 {
		return nil, false
	}
	ncols := len(r.cols)
	var rows [][]string
	var cur []string

	for _, l := range r.lines {
		full := len(l.segs)*2 >= ncols
		if cur == nil || full {
			if cur != nil {
				rows = append(rows, cur)
			}
			cur = make([]string, ncols)
		}
		for _, s := range l.segs {
			ci := nearestColumn(r.cols, s.x0, r.tol)
			if ci < 0 {
				// Off-grid segment: fold into the nearest column anyway so
				// no text is lost.
				ci = nearestColumn(r.cols, s.x0, 1e9)
			}
			if cur[ci] == "" {
				cur[ci] = s.text
			} else {
				cur[ci] += "\n" + s.text
			}
		}
	}
	if cur != nil {
		rows = append(rows, cur)
	}

	if len(rows) == 0 {
		return nil, false
	}
	return rows, true
}
