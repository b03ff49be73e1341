// Package pdfimage pulls embedded images out of a PDF, filters out the
// trivial ones (page backgrounds, separator lines, scan borders), and
// stores the keepers as PNG files addressable over HTTP.
//
// Every stored image gets a short content-derived ID; the returned records
// carry the public URL that page assembly appends to the page text.
package pdfimage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Record is one stored page image.
type Record struct {
	RefID      int // index of the image on its page
	PageIndex  int // 1-based
	StoredPath string
	URL        string
}

// Config tunes extraction. StoreDir is required; the zero value of the
// remaining fields is usable.
type Config struct {
	// StoreDir is where PNG files are written.
	StoreDir string
	// BaseURL prefixes the public URL of each stored image.
	BaseURL string
	// MinDim rejects images narrower or shorter than this. Default: 10.
	MinDim int
	// UniformLimit rejects images whose sampled pixels are almost all
	// white or all black. Default: 0.95.
	UniformLimit float64
	Logger       *slog.Logger
}

func (c *Config) defaults() error {
	if c.StoreDir == "" {
		return errors.New("pdfimage: StoreDir is required")
	}
	if c.MinDim == 0 {
		c.MinDim = 10
	}
	if c.UniformLimit == 0 {
		c.UniformLimit = 0.95
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Extractor stores validated PDF images on disk.
type Extractor struct {
	cfg Config
}

// New validates the config and returns an Extractor.
func New(cfg Config) (*Extractor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("pdfimage: create store dir: %w", err)
	}
	return &Extractor{cfg: cfg}, nil
}

// ExtractDoc walks every page of the PDF and stores its non-trivial
// images. The result maps 1-based page numbers to records. Individual
// image failures are logged and skipped; only failing to read the
// document is an error.
func (e *Extractor) ExtractDoc(path, docID string) (map[int][]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pdfimage: open %s: %w", path, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.Cmd = model.EXTRACTIMAGES
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("pdfimage: read %s: %w", path, err)
	}

	out := make(map[int][]Record)
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		imgs, err := pdfcpu.ExtractPageImages(ctx, pageNr, false)
		if err != nil {
			e.cfg.Logger.Warn("image extraction failed for page", "page", pageNr, "err", err)
			continue
		}
		idx := 0
		for _, img := range imgs {
			rec, err := e.store(img.Reader, docID, pageNr, idx)
			if err != nil {
				if !errors.Is(err, errTrivial) {
					e.cfg.Logger.Warn("skipping page image", "page", pageNr, "index", idx, "err", err)
				}
				idx++
				continue
			}
			out[pageNr] = append(out[pageNr], rec)
			idx++
		}
	}
	return out, nil
}

var errTrivial = errors.New("pdfimage: trivial image")

// store decodes, validates, normalises, and writes one image.
func (e *Extractor) store(r io.Reader, docID string, pageNr, idx int) (Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Record{}, fmt.Errorf("read image stream: %w", err)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Record{}, fmt.Errorf("decode: %w", err)
	}
	if err := e.validate(src); err != nil {
		return Record{}, err
	}

	id := shortID(docID, pageNr, idx)
	name := id + ".png"
	full := filepath.Join(e.cfg.StoreDir, name)

	var buf bytes.Buffer
	if err := png.Encode(&buf, Normalize(src)); err != nil {
		return Record{}, fmt.Errorf("encode png: %w", err)
	}
	if err := os.WriteFile(full, buf.Bytes(), 0o644); err != nil {
		return Record{}, fmt.Errorf("write %s: %w", full, err)
	}
	return Record{
		RefID:      idx,
		PageIndex:  pageNr,
		StoredPath: full,
		URL:        e.cfg.BaseURL + "/images/" + name,
	}, nil
}

// validate rejects dimensionless, single-color, and near-uniform images.
func (e *Extractor) validate(img image.Image) error {
	b := img.Bounds()
	if b.Dx() < e.cfg.MinDim || b.Dy() < e.cfg.MinDim {
		return fmt.Errorf("%w: %dx%d below minimum", errTrivial, b.Dx(), b.Dy())
	}

	white, black, total := 0, 0, 0
	colors := make(map[uint64]struct{}, 8)
	// Sample a grid of at most 100x100 positions.
	stepX := b.Dx() / 100
	if stepX == 0 {
		stepX = 1
	}
	stepY := b.Dy() / 100
	if stepY == 0 {
		stepY = 1
	}
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			r, g, bl, _ := img.At(x, y).RGBA()
			r8, g8, b8 := r>>8, g>>8, bl>>8
			total++
			if r8 >= 250 && g8 >= 250 && b8 >= 250 {
				white++
			}
			if r8 <= 5 && g8 <= 5 && b8 <= 5 {
				black++
			}
			if len(colors) < 8 {
				colors[uint64(r8)<<16|uint64(g8)<<8|uint64(b8)] = struct{}{}
			}
		}
	}
	if total == 0 {
		return fmt.Errorf("%w: empty bounds", errTrivial)
	}
	if len(colors) == 1 {
		return fmt.Errorf("%w: single color", errTrivial)
	}
	if float64(white)/float64(total) >= e.cfg.UniformLimit {
		return fmt.Errorf("%w: %.0f%% white", errTrivial, 100*float64(white)/float64(total))
	}
	if float64(black)/float64(total) >= e.cfg.UniformLimit {
		return fmt.Errorf("%w: %.0f%% black", errTrivial, 100*float64(black)/float64(total))
	}
	return nil
}

// Normalize composites the image onto a white background in RGBA, which
// flattens transparency and non-RGB color models before PNG encoding.
func Normalize(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// shortID derives an 8-hex-char identifier from the document, page and
// image position. Deterministic so a re-upload of the same document
// overwrites its earlier files instead of orphaning them.
func shortID(docID string, pageNr, idx int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", docID, pageNr, idx)))
	return hex.EncodeToString(sum[:4])
}
