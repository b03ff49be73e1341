package pdftable

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyTable is returned when a cell matrix carries no text at all.
var ErrEmptyTable = errors.New("pdftable: empty table")

// Format renders a cell matrix as the marker-delimited text block that
// replaces the table region in the page text. Every non-empty cell value
// appears exactly once in the output.
func Format(cells [][]string, index, page int) (string, error) {
	cells = dropEmptyRows(cells)
	if len(cells) == 0 {
		return "", ErrEmptyTable
	}

	if Classify(cells) == KindGroupedValues {
		cells = repairGrouped(cells)
	}
	kind := Classify(cells)

	keys, data := headerAndData(cells)

	var b strings.Builder
	b.WriteString(StartMarker(index, page))
	b.WriteByte('\n')
	for ri, row := range data {
		fmt.Fprintf(&b, "레코드 %d:\n", ri+1)
		if kind == KindHierarchicalMultiline && len(row) > 0 && hasSymbolLines(row[0]) {
			writeHierarchicalRow(&b, keys, row)
		} else {
			writeFlatRow(&b, keys, row)
		}
	}
	b.WriteString(EndMarker(index, page))
	return b.String(), nil
}

func dropEmptyRows(cells [][]string) [][]string {
	var out [][]string
	for _, row := range cells {
		empty := true
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if !empty {
			out = append(out, row)
		}
	}
	return out
}

// headerAndData resolves column keys: the detected header row when there
// is one, positional 항목N names otherwise.
func headerAndData(cells [][]string) (keys []string, data [][]string) {
	width := 0
	for _, r := range cells {
		if len(r) > width {
			width = len(r)
		}
	}
	if HasHeader(cells) {
		keys = make([]string, width)
		for i := 0; i < width; i++ {
			if i < len(cells[0]) {
				keys[i] = strings.Join(splitCell(cells[0][i]), " ")
			}
		}
		for i, k := range keys {
			if k == "" {
				keys[i] = fmt.Sprintf("항목%d", i+1)
			}
		}
		return keys, cells[1:]
	}
	keys = make([]string, width)
	for i := range keys {
		keys[i] = fmt.Sprintf("항목%d", i+1)
	}
	return keys, cells
}

// repairGrouped merges each value-only row into the labelled row that
// follows it, prepending the stray values so reading order survives.
func repairGrouped(cells [][]string) [][]string {
	var out [][]string
	for i := 0; i < len(cells); i++ {
		row := cells[i]
		if i+1 < len(cells) && valueOnly(row) {
			next := cells[i+1]
			if len(next) > 0 && next[0] != "" {
				merged := make([]string, len(next))
				copy(merged, next)
				for c := 1; c < len(row) && c < len(merged); c++ {
					if row[c] == "" {
						continue
					}
					if merged[c] == "" {
						merged[c] = row[c]
					} else {
						merged[c] = row[c] + "\n" + merged[c]
					}
				}
				out = append(out, merged)
				i++
				continue
			}
		}
		out = append(out, row)
	}
	return out
}

func valueOnly(row []string) bool {
	if len(row) < 2 || row[0] != "" {
		return false
	}
	for _, c := range row[1:] {
		if c != "" {
			return true
		}
	}
	return false
}

// writeFlatRow emits key: value lines, expanding multi-line values into
// dashed sub-items.
func writeFlatRow(b *strings.Builder, keys []string, row []string) {
	for ci, cell := range row {
		lines := splitCell(cell)
		if len(lines) == 0 {
			continue
		}
		key := keys[ci]
		if len(lines) == 1 {
			fmt.Fprintf(b, "  %s: %s\n", key, lines[0])
			continue
		}
		fmt.Fprintf(b, "  %s:\n", key)
		for _, l := range lines {
			fmt.Fprintf(b, "    - %s\n", l)
		}
	}
}

// hierItem is one levelled line of a hierarchical first-column cell.
type hierItem struct {
	text  string
	level int
}

// levelLines assigns nesting levels: the first line anchors level 0, a
// marker class seen before reuses its recorded level, a new marker class
// nests one below the previous line, and unmarked lines hang one below
// the previous line as plain text.
func levelLines(lines []string) []hierItem {
	levels := make(map[SymbolClass]int)
	items := make([]hierItem, 0, len(lines))
	prev := 0
	for i, l := range lines {
		sym, ok := MatchSymbol(l)
		var lv int
		switch {
		case i == 0:
			lv = 0
			if ok {
				levels[sym.Class] = 0
			}
		case ok:
			if known, seen := levels[sym.Class]; seen {
				lv = known
			} else {
				lv = prev + 1
				levels[sym.Class] = lv
			}
		default:
			lv = prev + 1
		}
		items = append(items, hierItem{text: l, level: lv})
		prev = lv
	}
	return items
}

// writeHierarchicalRow renders the levelled first-column hierarchy, then
// hangs the value columns off it: a single-entry column applies to the
// whole record and lands under level 0; a multi-entry column distributes
// its entries across the leaf items in order.
func writeHierarchicalRow(b *strings.Builder, keys []string, row []string) {
	items := levelLines(splitCell(row[0]))

	leaves := leafIndices(items)
	type attachment struct {
		key, value string
	}
	perLeaf := make(map[int][]attachment)
	var common []attachment
	var overflow []attachment

	for ci := 1; ci < len(row); ci++ {
		entries := splitCell(row[ci])
		switch {
		case len(entries) == 0:
		case len(entries) == 1:
			common = append(common, attachment{keys[ci], entries[0]})
		default:
			for ei, e := range entries {
				if ei < len(leaves) {
					li := leaves[ei]
					perLeaf[li] = append(perLeaf[li], attachment{keys[ci], e})
				} else {
					overflow = append(overflow, attachment{keys[ci], e})
				}
			}
		}
	}

	for ii, it := range items {
		fmt.Fprintf(b, "%s%s\n", indent(it.level+1), it.text)
		if ii == 0 {
			for _, a := range common {
				fmt.Fprintf(b, "%s%s: %s\n", indent(2), a.key, a.value)
			}
		}
		for _, a := range perLeaf[ii] {
			fmt.Fprintf(b, "%s%s: %s\n", indent(it.level+2), a.key, a.value)
		}
	}
	for _, a := range overflow {
		fmt.Fprintf(b, "%s%s: %s\n", indent(2), a.key, a.value)
	}
}

func leafIndices(items []hierItem) []int {
	var out []int
	for i := range items {
		leaf := true
		if i+1 < len(items) && items[i+1].level > items[i].level {
			leaf = false
		}
		if leaf {
			out = append(out, i)
		}
	}
	return out
}

func indent(level int) string {
	return strings.Repeat("  ", level)
}
