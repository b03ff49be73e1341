package office

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/chamlab/docvec/pdfsplit"
)

var (
	sectionNameRe = regexp.MustCompile(`section(\d+)\.xml$`)
	hwpxImageExts = map[string]bool{
		".jpg": true, ".jpeg": true, ".bmp": true, ".png": true,
		".gif": true, ".wmf": true, ".emf": true,
	}
)

// HWPXConfig controls HWPX extraction.
type HWPXConfig struct {
	// DocID prefixes stored image names so different documents don't collide.
	DocID string
	// ImageDir is where embedded images are copied. Empty disables image
	// extraction; references then render without a URL and are dropped.
	ImageDir string
	// BaseURL is the public prefix for image URLs, e.g. "http://host:8001".
	BaseURL string
	Logger  *slog.Logger
}

// ExtractHWPX parses an HWPX file into per-page text. Paragraphs inside
// headers, footers and control structures are skipped; embedded images are
// copied out and referenced inline as <img> tags. Page numbers come from
// section definitions and explicit page-break paragraphs.
func ExtractHWPX(path string, cfg HWPXConfig) ([]pdfsplit.AssembledPage, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open hwpx: %w", err)
	}
	defer zr.Close()

	images := extractBinData(&zr.Reader, cfg)

	type section struct {
		n    int
		file *zip.File
	}
	var sections []section
	for _, f := range zr.File {
		m := sectionNameRe.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		sections = append(sections, section{n: n, file: f})
	}
	sort.Slice(sections, func(i, j int) bool { return sections[i].n < sections[j].n })
	if len(sections) == 0 {
		return nil, fmt.Errorf("no section files in %s", filepath.Base(path))
	}

	byPage := map[int][]string{}
	page := 1
	sawSecDef := false
	for _, s := range sections {
		if err := parseSection(s.file, images, &page, &sawSecDef, byPage); err != nil {
			return nil, fmt.Errorf("section %d: %w", s.n, err)
		}
	}

	nums := make([]int, 0, len(byPage))
	for n := range byPage {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	pages := make([]pdfsplit.AssembledPage, 0, len(nums))
	for _, n := range nums {
		pages = append(pages, pdfsplit.AssembledPage{
			PageIndex: n,
			Text:      strings.Join(byPage[n], "\n"),
		})
	}
	return pages, nil
}

// extractBinData copies embedded images to cfg.ImageDir and returns a map
// from the BinData item name (without extension) to its public URL.
func extractBinData(zr *zip.Reader, cfg HWPXConfig) map[string]string {
	urls := map[string]string{}
	if cfg.ImageDir == "" {
		return urls
	}
	if err := os.MkdirAll(cfg.ImageDir, 0o755); err != nil {
		cfg.Logger.Warn("hwpx: image dir unavailable", "dir", cfg.ImageDir, "error", err)
		return urls
	}

	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "BinData/") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(f.Name))
		if !hwpxImageExts[ext] {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(f.Name), filepath.Ext(f.Name))
		name := base + ext
		if cfg.DocID != "" {
			name = cfg.DocID + "_" + name
		}
		if err := copyZipFile(f, filepath.Join(cfg.ImageDir, name)); err != nil {
			cfg.Logger.Warn("hwpx: image copy failed", "entry", f.Name, "error", err)
			continue
		}
		urls[base] = cfg.BaseURL + "/images/" + name
	}
	return urls
}

func copyZipFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// parseSection streams one section's XML, appending paragraph texts to
// byPage keyed by page number.
func parseSection(f *zip.File, images map[string]string, page *int, sawSecDef *bool, byPage map[int][]string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var para strings.Builder
	hidden := 0 // depth inside header/footer/ctrl subtrees
	picDepth := 0
	inPara := false
	inText := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "header", "footer", "ctrl":
				hidden++
			case "secDef":
				if *sawSecDef {
					*page++
				}
				*sawSecDef = true
			case "p":
				if hidden > 0 {
					break
				}
				if attrValue(t, "pageBreak") == "1" {
					*page++
				}
				inPara = true
				para.Reset()
			case "pic":
				picDepth++
			case "img":
				if inPara && hidden == 0 {
					if url, ok := images[attrValue(t, "binaryItemIDRef")]; ok {
						fmt.Fprintf(&para, `<img src="%s" style="max-width:100%%;">`, url)
					}
				}
			case "t":
				inText = inPara && hidden == 0 && picDepth == 0
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "header", "footer", "ctrl":
				if hidden > 0 {
					hidden--
				}
			case "pic":
				if picDepth > 0 {
					picDepth--
				}
			case "t":
				inText = false
			case "p":
				if inPara {
					if text := strings.TrimSpace(para.String()); text != "" {
						byPage[*page] = append(byPage[*page], text)
					}
					inPara = false
				}
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	return nil
}

func attrValue(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
