// Package ingest runs the document processing pipeline: a claimed upload
// task goes through format-specific extraction, section or token-window
// splitting, embedding and vector storage, with progress reported back to
// the task store at each stage.
//
// PDF documents are further analyzed for repeating headers/footers,
// geometric tables and embedded images before splitting. Maintenance
// manuals (first line starts with 유지보수교범) split on numbered headings;
// everything else falls back to fixed token windows.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/chamlab/docvec/embedder"
	"github.com/chamlab/docvec/idgen"
	"github.com/chamlab/docvec/office"
	"github.com/chamlab/docvec/pdfimage"
	"github.com/chamlab/docvec/pdflayout"
	"github.com/chamlab/docvec/pdfsplit"
	"github.com/chamlab/docvec/pdftable"
	"github.com/chamlab/docvec/taskstore"
	"github.com/chamlab/docvec/tokenize"
	"github.com/chamlab/docvec/vecstore"
)

// maintenancePrefix marks manuals that split on numbered section headings.
const maintenancePrefix = "유지보수교범"

var whitespaceRe = regexp.MustCompile(`\s+`)

// Config wires the pipeline's collaborators.
type Config struct {
	// ImageDir is where extracted PDF/HWPX images are stored.
	ImageDir string
	// BaseURL is the public prefix for image URLs.
	BaseURL string

	// WindowSize and Overlap control token-window splitting.
	WindowSize int // default 700
	Overlap    int // default 100

	// EmbedBatch is how many sections are embedded per request.
	EmbedBatch int // default 32
	// StoreBatch is how many documents are upserted per transaction.
	StoreBatch int // default 100

	Codec    tokenize.Codec    // required
	Embedder embedder.Embedder // required
	Store    *vecstore.Store   // required
	Tasks    *taskstore.Store  // required

	IDs    idgen.Generator
	Logger *slog.Logger
}

func (c *Config) defaults() error {
	if c.Codec == nil {
		return fmt.Errorf("ingest: Codec is required")
	}
	if c.Embedder == nil {
		return fmt.Errorf("ingest: Embedder is required")
	}
	if c.Store == nil {
		return fmt.Errorf("ingest: Store is required")
	}
	if c.Tasks == nil {
		return fmt.Errorf("ingest: Tasks is required")
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 700
	}
	if c.Overlap < 0 || c.Overlap >= c.WindowSize {
		c.Overlap = 100
	}
	if c.EmbedBatch <= 0 {
		c.EmbedBatch = 32
	}
	if c.StoreBatch <= 0 {
		c.StoreBatch = 100
	}
	if c.IDs == nil {
		c.IDs = idgen.Prefixed("doc_", idgen.NanoID(16))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Processor executes ingestion tasks end to end.
type Processor struct {
	cfg    Config
	images *pdfimage.Extractor
	logger *slog.Logger
}

// New builds a Processor. The image store directory is created if needed;
// an empty ImageDir disables image extraction.
func New(cfg Config) (*Processor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}

	var images *pdfimage.Extractor
	if cfg.ImageDir != "" {
		var err error
		images, err = pdfimage.New(pdfimage.Config{
			StoreDir: cfg.ImageDir,
			BaseURL:  cfg.BaseURL,
			Logger:   cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("image store: %w", err)
		}
	}
	return &Processor{cfg: cfg, images: images, logger: cfg.Logger}, nil
}

// Process runs the pipeline for one claimed task. A returned error marks
// the task failed (the task store handles that); on success the task is
// completed here with a summary message. The uploaded temp file is removed
// either way.
func (p *Processor) Process(ctx context.Context, task *taskstore.Task) error {
	defer p.cleanup(task.Path)

	if _, err := os.Stat(task.Path); err != nil {
		return fmt.Errorf("uploaded file missing: %w", err)
	}
	_ = p.cfg.Tasks.SetProgress(ctx, task.ID, 10, "파일 분석 중...")

	sections, totalPages, err := p.split(ctx, task)
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		return fmt.Errorf("문서에서 추출된 내용이 없습니다")
	}
	_ = p.cfg.Tasks.SetPages(ctx, task.ID, 0, totalPages)

	docs, err := p.embed(ctx, task, sections, totalPages)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("유효한 임베딩 문서가 없습니다")
	}

	_ = p.cfg.Tasks.SetProgress(ctx, task.ID, 90, "데이터베이스 저장 중...")
	if err := p.store(ctx, task, docs); err != nil {
		return err
	}

	msg := fmt.Sprintf("성공: %d개 섹션, %d페이지", len(docs), totalPages)
	if err := p.cfg.Tasks.Complete(ctx, task.ID, msg); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	p.logger.Info("ingestion finished",
		"task", task.ID, "filename", task.Filename,
		"sections", len(docs), "pages", totalPages)
	return nil
}

// split dispatches to the format-specific extraction and returns the
// sections to embed plus the page count.
func (p *Processor) split(ctx context.Context, task *taskstore.Task) ([]pdfsplit.Section, int, error) {
	switch strings.ToLower(filepath.Ext(task.Path)) {
	case ".pdf":
		return p.splitPDF(ctx, task)
	case ".hwpx":
		return p.splitHWPX(ctx, task)
	case ".docx":
		_ = p.cfg.Tasks.SetProgress(ctx, task.ID, 20, "DOCX 분석 중...")
		lines, err := office.ExtractDOCX(task.Path)
		if err != nil {
			return nil, 0, fmt.Errorf("DOCX 처리 실패: %w", err)
		}
		return p.splitLines(lines)
	case ".pptx":
		_ = p.cfg.Tasks.SetProgress(ctx, task.ID, 20, "PPTX 분석 중...")
		lines, err := office.ExtractPPTX(task.Path)
		if err != nil {
			return nil, 0, fmt.Errorf("PPTX 처리 실패: %w", err)
		}
		return p.splitLines(lines)
	default:
		return nil, 0, fmt.Errorf("지원하지 않는 파일 형식: %s", filepath.Ext(task.Path))
	}
}

// splitLines handles flat-text formats: numbered-heading sections when the
// document has them, token windows otherwise. The page count is the number
// of resulting sections since these formats carry no page geometry.
func (p *Processor) splitLines(lines []string) ([]pdfsplit.Section, int, error) {
	if sections := office.SplitLineSections(lines); len(sections) > 0 {
		return sections, len(sections), nil
	}
	page := pdfsplit.AssembledPage{PageIndex: 1, Text: strings.Join(lines, "\n")}
	sections, err := pdfsplit.SplitWindows([]pdfsplit.AssembledPage{page}, p.windowConfig())
	if err != nil {
		return nil, 0, err
	}
	return sections, len(sections), nil
}

func (p *Processor) splitHWPX(ctx context.Context, task *taskstore.Task) ([]pdfsplit.Section, int, error) {
	_ = p.cfg.Tasks.SetProgress(ctx, task.ID, 20, "HWPX 분석 중...")

	pages, err := office.ExtractHWPX(task.Path, office.HWPXConfig{
		DocID:    task.FileID,
		ImageDir: p.cfg.ImageDir,
		BaseURL:  p.cfg.BaseURL,
		Logger:   p.logger,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("HWPX 처리 실패: %w", err)
	}

	sections := office.PageSections(pages)
	total := 1
	for _, pg := range pages {
		if pg.PageIndex > total {
			total = pg.PageIndex
		}
	}
	return sections, total, nil
}

func (p *Processor) splitPDF(ctx context.Context, task *taskstore.Task) ([]pdfsplit.Section, int, error) {
	_ = p.cfg.Tasks.SetProgress(ctx, task.ID, 20, "PDF 분석 중...")

	pages, err := pdflayout.Load(task.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("PDF 처리 실패: %w", err)
	}
	total := len(pages)

	prof := pdflayout.DetectMargins(pages, pdflayout.MarginConfig{Logger: p.logger})

	var imageURLs map[int][]pdfimage.Record
	if p.images != nil {
		imageURLs, err = p.images.ExtractDoc(task.Path, task.FileID)
		if err != nil {
			// Image extraction failing should not sink the document.
			p.logger.Warn("image extraction failed", "task", task.ID, "error", err)
		}
	}

	assembled := make([]pdfsplit.AssembledPage, 0, len(pages))
	tableIndex := 1
	for i, page := range pages {
		var blocks []pdftable.Block
		blocks, tableIndex = pdftable.Extract(page, page.Crop(prof.TopRatio, prof.BottomRatio), tableIndex, pdftable.Config{Logger: p.logger})

		var urls []string
		for _, rec := range imageURLs[page.Index] {
			urls = append(urls, rec.URL)
		}

		assembled = append(assembled, pdfsplit.AssemblePage(page, prof, blocks, urls, pdfsplit.AssembleConfig{Logger: p.logger}))

		if (i+1)%10 == 0 || i+1 == len(pages) {
			progress := 20 + (i+1)*25/len(pages)
			_ = p.cfg.Tasks.SetProgress(ctx, task.ID, progress,
				fmt.Sprintf("페이지 처리 중... (%d/%d)", i+1, len(pages)))
		}
	}

	if isMaintenanceDoc(assembled) {
		sections := pdfsplit.SplitSections(assembled, pdfsplit.SectionConfig{
			DocTitle: task.Filename,
			Logger:   p.logger,
		})
		if len(sections) > 0 {
			return sections, total, nil
		}
		p.logger.Warn("heading split found no sections, falling back to token windows",
			"task", task.ID)
	}

	sections, err := pdfsplit.SplitWindows(assembled, p.windowConfig())
	if err != nil {
		return nil, 0, err
	}
	return sections, total, nil
}

func (p *Processor) windowConfig() pdfsplit.WindowConfig {
	return pdfsplit.WindowConfig{
		Codec:      p.cfg.Codec,
		WindowSize: p.cfg.WindowSize,
		Overlap:    p.cfg.Overlap,
	}
}

// isMaintenanceDoc checks the first text line of the first three pages for
// the maintenance manual marker, ignoring internal whitespace.
func isMaintenanceDoc(pages []pdfsplit.AssembledPage) bool {
	limit := 3
	if len(pages) < limit {
		limit = len(pages)
	}
	for _, page := range pages[:limit] {
		text := strings.TrimSpace(page.Text)
		if text == "" {
			continue
		}
		first, _, _ := strings.Cut(text, "\n")
		cleaned := whitespaceRe.ReplaceAllString(first, "")
		return strings.HasPrefix(cleaned, maintenancePrefix)
	}
	return false
}

// embed turns sections into store documents with vectors and metadata.
// A failed embedding batch is logged and skipped rather than failing the
// whole document.
func (p *Processor) embed(ctx context.Context, task *taskstore.Task, sections []pdfsplit.Section, totalPages int) ([]vecstore.Document, error) {
	_ = p.cfg.Tasks.SetProgress(ctx, task.ID, 50, "텍스트 임베딩 중...")

	type pending struct {
		text    string
		section pdfsplit.Section
	}
	var work []pending
	for _, sec := range sections {
		if strings.TrimSpace(sec.Content) == "" {
			continue
		}
		text := fmt.Sprintf("문서: %s\n<h2>%s</h2>\n%s", task.Filename, sec.Title, sec.Content)
		work = append(work, pending{text: text, section: sec})
	}

	var docs []vecstore.Document
	processed := 0
	for start := 0; start < len(work); start += p.cfg.EmbedBatch {
		end := start + p.cfg.EmbedBatch
		if end > len(work) {
			end = len(work)
		}
		batch := work[start:end]

		texts := make([]string, len(batch))
		for i, w := range batch {
			texts[i] = w.text
		}

		vectors, err := p.cfg.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			p.logger.Warn("embedding batch failed, skipping sections",
				"task", task.ID, "from", start, "n", len(batch), "error", err)
			processed += len(batch)
			continue
		}

		for i, w := range batch {
			if i >= len(vectors) || len(vectors[i]) == 0 {
				continue
			}
			page := w.section.StartPage
			if page <= 0 {
				page = 1
			}
			docs = append(docs, vecstore.Document{
				ID:     p.cfg.IDs(),
				Vector: vectors[i],
				Payload: map[string]any{
					"content":           w.text,
					"original_filename": task.Filename,
					"tags":              strings.Join(task.Tags, ","),
					"sosok":             task.Sosok,
					"site":              task.Site,
					"file_id":           task.FileID,
					"section_title":     w.section.Title,
					"section_id":        sectionID(w.section, len(docs)+1),
					"section_number":    len(docs) + 1,
					"page_number":       page,
					"total_pdf_pages":   totalPages,
				},
			})
		}

		processed += len(batch)
		progress := 50 + processed*40/len(work)
		_ = p.cfg.Tasks.SetProgress(ctx, task.ID, progress,
			fmt.Sprintf("임베딩 중... (%d/%d)", processed, len(work)))
		_ = p.cfg.Tasks.SetPages(ctx, task.ID, processed, totalPages)
	}
	return docs, nil
}

func sectionID(sec pdfsplit.Section, fallback int) string {
	if sec.SectionID != "" {
		return sec.SectionID
	}
	return fmt.Sprintf("%d", fallback)
}

// store replaces any earlier upload of the same file and writes the new
// documents in batches.
func (p *Processor) store(ctx context.Context, task *taskstore.Task, docs []vecstore.Document) error {
	if task.FileID != "" {
		if _, err := p.cfg.Store.DeleteByFileID(ctx, task.Sosok, task.Site, task.FileID); err != nil {
			return fmt.Errorf("remove previous upload: %w", err)
		}
	}
	for start := 0; start < len(docs); start += p.cfg.StoreBatch {
		end := start + p.cfg.StoreBatch
		if end > len(docs) {
			end = len(docs)
		}
		if err := p.cfg.Store.Upsert(ctx, docs[start:end]); err != nil {
			return fmt.Errorf("데이터베이스 저장 실패: %w", err)
		}
	}
	return nil
}

func (p *Processor) cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("temp file cleanup failed", "path", path, "error", err)
	}
}
