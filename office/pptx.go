package office

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// ExtractPPTX returns the text lines of every slide in slide order. Each
// paragraph inside a shape's text body becomes one line; empty lines are
// dropped.
func ExtractPPTX(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	type slide struct {
		n    int
		file *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slideNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{n: n, file: f})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	var lines []string
	for _, s := range slides {
		slideLines, err := slideText(s.file)
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.n, err)
		}
		lines = append(lines, slideLines...)
	}
	return lines, nil
}

// slideText pulls the paragraph texts out of one slide's DrawingML. A
// paragraph is an <a:p> element; its text is the concatenation of the
// <a:t> runs inside it.
func slideText(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var lines []string
	var para strings.Builder
	inPara := false
	inText := false

	for {
		tok, err := dec.Token()
		if err != nil {
			break // io.EOF or malformed tail; keep what we have
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inPara = true
				para.Reset()
			case "t":
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if line := strings.TrimSpace(para.String()); line != "" {
					lines = append(lines, line)
				}
				inPara = false
			case "t":
				inText = false
			}
		case xml.CharData:
			if inPara && inText {
				para.Write(t)
			}
		}
	}
	return lines, nil
}
