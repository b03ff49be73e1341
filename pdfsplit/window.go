package pdfsplit

import (
	"fmt"

	"github.com/chamlab/docvec/tokenize"
)

// WindowConfig tunes the token-window fallback splitter.
type WindowConfig struct {
	Codec tokenize.Codec
	// WindowSize is the token count per chunk. Default: 700.
	WindowSize int
	// Overlap is how many tokens consecutive chunks share. Default: 100.
	Overlap int
}

func (c *WindowConfig) defaults() error {
	if c.Codec == nil {
		return fmt.Errorf("pdfsplit: window splitter needs a codec")
	}
	if c.WindowSize == 0 {
		c.WindowSize = 700
	}
	if c.Overlap == 0 {
		c.Overlap = 100
	}
	if c.Overlap >= c.WindowSize {
		return fmt.Errorf("pdfsplit: overlap %d must be smaller than window %d", c.Overlap, c.WindowSize)
	}
	return nil
}

type pageSpan struct {
	start, end int // token offsets
	page       int // 1-based page number
}

// SplitWindows chops the document into fixed-size token windows with
// overlap. Windows cover the entire token stream: each one starts exactly
// WindowSize-Overlap tokens after the previous, and the final window ends
// at the last token. Each chunk records the page its first token came
// from.
func SplitWindows(pages []AssembledPage, cfg WindowConfig) ([]Section, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}

	var all []int
	var spans []pageSpan
	for _, p := range pages {
		ids, err := cfg.Codec.Encode(p.Text)
		if err != nil {
			return nil, fmt.Errorf("pdfsplit: encode page %d: %w", p.PageIndex, err)
		}
		spans = append(spans, pageSpan{start: len(all), end: len(all) + len(ids), page: p.PageIndex})
		all = append(all, ids...)
	}
	if len(all) == 0 {
		return nil, nil
	}

	stride := cfg.WindowSize - cfg.Overlap
	var out []Section
	for start := 0; start < len(all); start += stride {
		end := start + cfg.WindowSize
		if end > len(all) {
			end = len(all)
		}
		text, err := cfg.Codec.Decode(all[start:end])
		if err != nil {
			return nil, fmt.Errorf("pdfsplit: decode window at %d: %w", start, err)
		}
		n := len(out) + 1
		out = append(out, Section{
			Title:     fmt.Sprintf("Chunk %d", n),
			SectionID: fmt.Sprintf("chunk-%d", n),
			Content:   text,
			StartPage: pageForToken(spans, start),
		})
		if end == len(all) {
			break
		}
	}
	return out, nil
}

func pageForToken(spans []pageSpan, tok int) int {
	for _, s := range spans {
		if tok >= s.start && tok < s.end {
			return s.page
		}
	}
	if len(spans) > 0 {
		return spans[len(spans)-1].page
	}
	return 1
}
