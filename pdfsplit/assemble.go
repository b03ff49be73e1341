// Package pdfsplit reassembles cropped page text around extracted table
// blocks and splits the resulting document into retrieval sections, either
// along the heading hierarchy or as fixed token windows.
package pdfsplit

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/chamlab/docvec/pdflayout"
	"github.com/chamlab/docvec/pdftable"
)

// AssembledPage is one page's final text: cropped plain lines and table
// blocks interleaved in reading order, image URLs appended at the end.
type AssembledPage struct {
	PageIndex int
	Text      string
}

// AssembleConfig tunes page assembly. The zero value is usable.
type AssembleConfig struct {
	// LineTolerance groups characters into lines. Default: 3.
	LineTolerance float64
	Logger        *slog.Logger
}

func (c *AssembleConfig) defaults() {
	if c.LineTolerance == 0 {
		c.LineTolerance = 3
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// AssemblePage renders one page: crop by the margin profile, drop the
// characters owned by table regions, group the rest into lines, and merge
// lines with table blocks by vertical position. A crop that removes all
// text falls back to the uncropped page so no page ever vanishes.
func AssemblePage(page pdflayout.Page, prof pdflayout.MarginProfile, tables []pdftable.Block, imageURLs []string, cfg AssembleConfig) AssembledPage {
	cfg.defaults()

	chars := page.Crop(prof.TopRatio, prof.BottomRatio)
	if len(chars) == 0 && len(page.Chars) > 0 {
		cfg.Logger.Warn("margin crop removed all text, using full page",
			"page", page.Index, "top", prof.TopRatio, "bottom", prof.BottomRatio)
		chars = page.Chars
	}

	plain := chars[:0:0]
	for _, c := range chars {
		owned := false
		for _, t := range tables {
			if t.Contains(c) {
				owned = true
				break
			}
		}
		if !owned {
			plain = append(plain, c)
		}
	}

	type item struct {
		top  float64
		text string
	}
	var items []item
	for _, l := range pdflayout.BuildLines(plain, cfg.LineTolerance) {
		if l.Text != "" {
			items = append(items, item{top: l.Top, text: l.Text})
		}
	}
	for _, t := range tables {
		items = append(items, item{top: t.Top, text: t.Text})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].top < items[j].top })

	parts := make([]string, 0, len(items)+len(imageURLs))
	for _, it := range items {
		parts = append(parts, it.text)
	}
	parts = append(parts, imageURLs...)

	return AssembledPage{PageIndex: page.Index, Text: strings.Join(parts, "\n")}
}

// JoinPages concatenates assembled pages into one document string and
// returns the byte offset where each page starts. The offsets let heading
// positions map back to page numbers.
func JoinPages(pages []AssembledPage) (doc string, starts []int) {
	var b strings.Builder
	starts = make([]int, len(pages))
	for i, p := range pages {
		if i > 0 {
			b.WriteByte('\n')
		}
		starts[i] = b.Len()
		b.WriteString(p.Text)
	}
	return b.String(), starts
}

// pageAt maps a byte offset in the joined document to the 1-based page
// number it falls on.
func pageAt(pages []AssembledPage, starts []int, pos int) int {
	for i := len(starts) - 1; i >= 0; i-- {
		if pos >= starts[i] {
			return pages[i].PageIndex
		}
	}
	if len(pages) > 0 {
		return pages[0].PageIndex
	}
	return 1
}
