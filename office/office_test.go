package office

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chamlab/docvec/pdfsplit"
)

func TestSplitLineSections(t *testing.T) {
	lines := []string{
		"목차",
		"1.1.1 개요",
		"이 장비는 항행안전시설이다.",
		"1.1.2 적용 범위",
		"전 공항에 적용한다.",
		"1.2 구성",
		"송신기와 수신기로 구성된다.",
	}

	sections := SplitLineSections(lines)
	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(sections))
	}
	if sections[0].SectionID != "1.1.1" {
		t.Errorf("first section id %q", sections[0].SectionID)
	}
	if !strings.Contains(sections[0].Content, "항행안전시설") {
		t.Errorf("first section content missing body: %q", sections[0].Content)
	}
	if sections[2].Title != "1.2 구성" {
		t.Errorf("last section title %q", sections[2].Title)
	}
}

func TestSplitLineSectionsMergesOutOfOrder(t *testing.T) {
	lines := []string{
		"1.1.1 개요",
		"본문 하나",
		"1.1.2 다음 절",
		"본문 둘",
		"1.1.9 건너뛴 절", // not the strict successor
		"떠돌이 본문",
		"1.1.3 정상 절",
		"본문 셋",
	}

	sections := SplitLineSections(lines)
	if len(sections) != 3 {
		t.Fatalf("got %d sections, want 3", len(sections))
	}
	// The out-of-order heading is dropped and the text collected so far is
	// folded back into the previous finished section.
	if !strings.Contains(sections[0].Content, "본문 둘") {
		t.Errorf("pending text not merged into previous section: %q", sections[0].Content)
	}
	for _, sec := range sections {
		if strings.Contains(sec.Content, "1.1.9") {
			t.Errorf("skipped heading survived in %q", sec.Title)
		}
	}
	// Text after the skipped heading stays with the section in progress.
	if !strings.Contains(sections[1].Content, "떠돌이 본문") {
		t.Errorf("trailing text lost: %q", sections[1].Content)
	}
	if sections[2].SectionID != "1.1.3" {
		t.Errorf("last section id %q", sections[2].SectionID)
	}
}

func TestSplitLineSectionsRequiresStart(t *testing.T) {
	lines := []string{
		"2.1 어중간한 시작",
		"본문",
		"2.2 다음",
	}
	if sections := SplitLineSections(lines); sections != nil {
		t.Fatalf("expected nil without a 1.1.1 start, got %v", sections)
	}
}

func TestLineStrictlyNext(t *testing.T) {
	cases := []struct {
		prev, cur []int
		want      bool
	}{
		{nil, []int{1, 1, 1}, true},
		{nil, []int{1, 1}, false},
		{[]int{1, 1, 1}, []int{1, 1, 2}, true},
		{[]int{1, 1, 2}, []int{1, 2}, true},
		// Equal-length paths only advance in the last component.
		{[]int{1, 1, 2}, []int{1, 2, 1}, false},
		{[]int{1, 1, 2}, []int{2, 1, 1}, false},
		{[]int{1, 1, 2}, []int{1, 1, 2, 1}, true},
		{[]int{1, 1, 2}, []int{1, 1, 4}, false},
		{[]int{1, 1, 2}, []int{2, 1, 3}, false},
	}
	for _, c := range cases {
		if got := lineStrictlyNext(c.prev, c.cur); got != c.want {
			t.Errorf("lineStrictlyNext(%v, %v) = %v, want %v", c.prev, c.cur, got, c.want)
		}
	}
}

func writeZip(t *testing.T, name string, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for n, data := range entries {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

const slideXMLTmpl = `<?xml version="1.0"?>
<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"
       xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main">
  <p:cSld><p:spTree><p:sp><p:txBody>
    <a:p><a:r><a:t>TITLE</a:t></a:r></a:p>
    <a:p><a:r><a:t>BODY</a:t></a:r><a:r><a:t>-TAIL</a:t></a:r></a:p>
  </p:txBody></p:sp></p:spTree></p:cSld>
</p:sld>`

func TestExtractPPTX(t *testing.T) {
	slide := func(title, body string) []byte {
		s := strings.ReplaceAll(slideXMLTmpl, "TITLE", title)
		return []byte(strings.ReplaceAll(s, "BODY", body))
	}
	path := writeZip(t, "deck.pptx", map[string][]byte{
		"ppt/slides/slide1.xml":  slide("첫 슬라이드", "첫 본문"),
		"ppt/slides/slide2.xml":  slide("둘째 슬라이드", "둘째 본문"),
		"ppt/slides/slide10.xml": slide("열째 슬라이드", "열째 본문"),
		"ppt/presentation.xml":   []byte("<p:presentation/>"),
	})

	lines, err := ExtractPPTX(path)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"첫 슬라이드", "첫 본문-TAIL",
		"둘째 슬라이드", "둘째 본문-TAIL",
		"열째 슬라이드", "열째 본문-TAIL",
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines %v, want %d", len(lines), lines, len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

const hwpxSectionXML = `<?xml version="1.0"?>
<hs:sec xmlns:hs="http://www.hancom.co.kr/hwpml/2011/section"
        xmlns:hp="http://www.hancom.co.kr/hwpml/2011/paragraph"
        xmlns:hc="http://www.hancom.co.kr/hwpml/2011/core">
  <hp:secDef/>
  <hs:header>
    <hp:p><hp:run><hp:t>머리글은 빠져야 한다</hp:t></hp:run></hp:p>
  </hs:header>
  <hp:p><hp:run><hp:t>첫 페이지 본문</hp:t></hp:run></hp:p>
  <hp:p><hp:run><hp:pic><hc:img binaryItemIDRef="image1"/></hp:pic></hp:run></hp:p>
  <hp:p pageBreak="1"><hp:run><hp:t>둘째 페이지 본문</hp:t></hp:run></hp:p>
</hs:sec>`

func TestExtractHWPX(t *testing.T) {
	imgDir := t.TempDir()
	path := writeZip(t, "doc.hwpx", map[string][]byte{
		"Contents/section0.xml": []byte(hwpxSectionXML),
		"BinData/image1.png":    []byte("png-bytes"),
		"BinData/skip.ole":      []byte("not-an-image"),
	})

	pages, err := ExtractHWPX(path, HWPXConfig{
		DocID:    "d1",
		ImageDir: imgDir,
		BaseURL:  "http://localhost:8001",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("got %d pages, want 2: %+v", len(pages), pages)
	}
	if pages[0].PageIndex != 1 || pages[1].PageIndex != 2 {
		t.Fatalf("page indexes %d, %d", pages[0].PageIndex, pages[1].PageIndex)
	}
	if strings.Contains(pages[0].Text, "머리글") {
		t.Error("header text leaked into page body")
	}
	if !strings.Contains(pages[0].Text, "첫 페이지 본문") {
		t.Errorf("page 1 text %q", pages[0].Text)
	}
	if !strings.Contains(pages[0].Text, `<img src="http://localhost:8001/images/d1_image1.png"`) {
		t.Errorf("image tag missing from page 1: %q", pages[0].Text)
	}
	if !strings.Contains(pages[1].Text, "둘째 페이지 본문") {
		t.Errorf("page 2 text %q", pages[1].Text)
	}

	if _, err := os.Stat(filepath.Join(imgDir, "d1_image1.png")); err != nil {
		t.Errorf("stored image missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(imgDir, "d1_skip.ole")); err == nil {
		t.Error("non-image BinData entry was copied")
	}
}

func TestExtractHWPXNoSections(t *testing.T) {
	path := writeZip(t, "bad.hwpx", map[string][]byte{
		"mimetype": []byte("application/hwp+zip"),
	})
	if _, err := ExtractHWPX(path, HWPXConfig{}); err == nil {
		t.Fatal("expected error for archive without sections")
	}
}

func TestPageSections(t *testing.T) {
	pages := []pdfsplit.AssembledPage{
		{PageIndex: 1, Text: "첫 페이지"},
		{PageIndex: 2, Text: "   "},
		{PageIndex: 3, Text: "셋째 페이지"},
	}
	sections := PageSections(pages)
	if len(sections) != 2 {
		t.Fatalf("got %d sections, want 2 (blank page dropped)", len(sections))
	}
	if sections[0].Title != "Page 1" || sections[0].SectionID != "page-1" {
		t.Errorf("section 0 = %+v", sections[0])
	}
	if sections[1].StartPage != 3 {
		t.Errorf("section 1 start page %d", sections[1].StartPage)
	}
}
