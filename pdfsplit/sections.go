package pdfsplit

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strconv"
	"strings"
)

// Section is one retrieval unit of the document.
type Section struct {
	// Title is the heading line that opened the section, or a synthetic
	// title for token windows.
	Title string
	// SectionID is the canonical heading number: "1.2.3", "제1장", "첨부2".
	SectionID string
	// Content is the fully rendered section text, breadcrumb header
	// included.
	Content   string
	StartPage int
	// Ancestors holds the heading lines above this one in the hierarchy,
	// outermost first.
	Ancestors []string
}

// SectionConfig tunes heading-based splitting.
type SectionConfig struct {
	// DocTitle appears at the top of every section's breadcrumb header.
	DocTitle string
	Logger   *slog.Logger
}

func (c *SectionConfig) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// SplitSections splits assembled pages along the document's heading
// hierarchy. Out-of-order headings merge into the previous section with
// content-hash dedup, duplicates are dropped, and appendix numbering gaps
// are logged but tolerated. It returns nil when no heading sequence is
// found, which tells the caller to fall back to token windows.
func SplitSections(pages []AssembledPage, cfg SectionConfig) []Section {
	cfg.defaults()
	doc, starts := JoinPages(pages)
	headings := FindHeadings(doc)
	if len(headings) == 0 {
		return nil
	}

	type build struct {
		h       HeadingMatch
		content strings.Builder
	}
	var builds []*build
	var state State
	mergedHash := make(map[string]bool)

	for i, h := range headings {
		next := len(doc)
		if i+1 < len(headings) {
			next = headings[i+1].Pos
		}
		var action Action
		state, action = Transition(state, h)

		switch action {
		case ActionAccept:
			if state.AppendixGap {
				cfg.Logger.Warn("appendix numbering gap", "number", h.Number)
			}
			b := &build{h: h}
			b.content.WriteString(doc[h.End:next])
			builds = append(builds, b)
		case ActionMerge:
			piece := strings.TrimSpace(doc[h.Pos:next])
			sum := sha256.Sum256([]byte(piece))
			key := hex.EncodeToString(sum[:])
			if mergedHash[key] {
				cfg.Logger.Debug("skipping already-merged region", "number", h.Number)
				continue
			}
			mergedHash[key] = true
			if len(builds) > 0 {
				last := builds[len(builds)-1]
				last.content.WriteByte('\n')
				last.content.WriteString(piece)
				cfg.Logger.Debug("merged out-of-order heading into previous section",
					"number", h.Number, "into", last.h.Number)
			}
		case ActionRejectDuplicate:
			cfg.Logger.Debug("duplicate heading rejected", "number", h.Number)
			fallthrough
		case ActionIgnore:
			if len(builds) > 0 {
				last := builds[len(builds)-1]
				last.content.WriteByte('\n')
				last.content.WriteString(doc[h.Pos:next])
			}
		}
	}

	if len(builds) == 0 {
		return nil
	}

	titles := make(map[string]string) // canonical number → heading line
	chapters := make(map[int]string)  // chapter number → heading line
	for _, b := range builds {
		titles[b.h.Number] = b.h.Raw
		if b.h.Kind == KindChapter {
			chapters[b.h.Path[0]] = b.h.Raw
		}
	}

	var out []Section
	for _, b := range builds {
		content := strings.TrimSpace(b.content.String())
		if content == "" && b.h.Kind == KindNumeric && len(b.h.Path) >= 3 {
			cfg.Logger.Debug("dropping empty deep section", "number", b.h.Number)
			continue
		}
		anc := ancestorsOf(b.h, titles, chapters)
		out = append(out, Section{
			Title:     b.h.Raw,
			SectionID: b.h.Number,
			Content:   renderSection(cfg.DocTitle, anc, b.h.Raw, JoinLines(content)),
			StartPage: pageAt(pages, starts, b.h.Pos),
			Ancestors: anc,
		})
	}
	return out
}

// ancestorsOf resolves the heading lines above h: its chapter, then each
// numeric prefix that was itself accepted.
func ancestorsOf(h HeadingMatch, titles map[string]string, chapters map[int]string) []string {
	if h.Kind != KindNumeric {
		return nil
	}
	var anc []string
	if t, ok := chapters[h.Path[0]]; ok {
		anc = append(anc, t)
	}
	for depth := 2; depth < len(h.Path); depth++ {
		key := joinPath(h.Path[:depth])
		if t, ok := titles[key]; ok {
			anc = append(anc, t)
		}
	}
	return anc
}

func joinPath(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}

// renderSection prepends the breadcrumb tree header to joined content.
func renderSection(docTitle string, ancestors []string, heading, content string) string {
	var b strings.Builder
	b.WriteString("📄 ")
	b.WriteString(docTitle)
	b.WriteByte('\n')
	for i, a := range ancestors {
		b.WriteString(strings.Repeat("  ", i))
		b.WriteString("▷ ")
		b.WriteString(a)
		b.WriteByte('\n')
	}
	b.WriteString(strings.Repeat("  ", len(ancestors)))
	b.WriteString("▶ ")
	b.WriteString(heading)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("─", 50))
	b.WriteByte('\n')
	b.WriteString(content)
	return b.String()
}
