// Package office extracts text from DOCX, PPTX and HWPX documents and
// splits it into sections for indexing.
//
// Unlike PDF processing there is no page geometry to analyze: DOCX and
// PPTX yield a flat list of text lines that either split on numbered
// headings or fall back to token windows, while HWPX carries explicit
// page breaks and splits per page.
package office

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/chamlab/docvec/pdfsplit"
)

// lineHeadingRe matches numbered headings at the start of a line,
// e.g. "1.1.1 개요" or "2.3 점검 절차".
var lineHeadingRe = regexp.MustCompile(`^(\d{1,2}(?:\.\d{1,2}){0,3})\s+.+`)

// SplitLineSections splits flat text lines into sections on numbered
// headings. Collection starts at the first "1.1.1" heading; headings that
// are not the strict successor of the previous one are merged into the
// preceding section instead of opening a new one, with duplicate content
// dropped. Returns nil when no sections were found.
func SplitLineSections(lines []string) []pdfsplit.Section {
	var sections []pdfsplit.Section
	var last []int
	collect := false
	seen := map[string]bool{}
	merged := map[string]bool{}

	var title string
	var current []string

	flush := func() {
		if title == "" || len(current) == 0 {
			return
		}
		sections = append(sections, pdfsplit.Section{
			Title:     title,
			SectionID: strings.Fields(title)[0],
			Content:   strings.Join(current, "\n"),
		})
	}

	for _, line := range lines {
		m := lineHeadingRe.FindStringSubmatch(line)
		if m == nil {
			if collect {
				current = append(current, line)
			}
			continue
		}
		number := m[1]
		path := parseLineNumber(number)

		if !collect {
			if number == "1.1.1" {
				collect = true
				last = path
				title = line
				current = []string{line}
			}
			continue
		}

		if !lineStrictlyNext(last, path) {
			if seen[number] {
				continue
			}
			h := hashLines(current)
			if merged[h] {
				continue
			}
			if len(sections) > 0 {
				sections[len(sections)-1].Content += "\n\n" + strings.Join(current, "\n")
				merged[h] = true
				seen[number] = true
			}
			continue
		}

		flush()
		title = line
		current = []string{line}
		last = path
		seen[number] = true
	}
	flush()

	return sections
}

func parseLineNumber(number string) []int {
	parts := strings.Split(number, ".")
	path := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		path = append(path, n)
	}
	return path
}

func lineStrictlyNext(prev, cur []int) bool {
	if len(prev) == 0 {
		return len(cur) == 3 && cur[0] == 1 && cur[1] == 1 && cur[2] == 1
	}
	if len(cur) == len(prev) {
		return prefixEq(cur[:len(cur)-1], prev[:len(prev)-1]) && cur[len(cur)-1] == prev[len(prev)-1]+1
	}
	if len(cur) == len(prev)+1 {
		return prefixEq(cur[:len(cur)-1], prev) && cur[len(cur)-1] == 1
	}
	n := len(prev)
	if len(cur) < n {
		n = len(cur)
	}
	for i := 0; i < n; i++ {
		if cur[i] == prev[i] {
			continue
		}
		if cur[i] == prev[i]+1 {
			for _, c := range cur[i+1:] {
				if c != 1 {
					return false
				}
			}
			return true
		}
		return false
	}
	return false
}

func prefixEq(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func hashLines(lines []string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(strings.Join(lines, "\n"))))
	return hex.EncodeToString(sum[:])
}

// PageSections turns assembled pages into one section per page, titled
// "Page N". Used for HWPX where page breaks are explicit in the markup.
func PageSections(pages []pdfsplit.AssembledPage) []pdfsplit.Section {
	var sections []pdfsplit.Section
	for _, p := range pages {
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}
		n := strconv.Itoa(p.PageIndex)
		sections = append(sections, pdfsplit.Section{
			Title:     "Page " + n,
			SectionID: "page-" + n,
			Content:   text,
			StartPage: p.PageIndex,
		})
	}
	return sections
}
