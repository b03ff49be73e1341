// Package api exposes the document ingestion HTTP surface: asynchronous
// uploads that return task IDs immediately, per-tenant task listings, and
// static serving of extracted images. Processing itself happens in the
// background worker; the handlers only persist files and task rows.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/chamlab/docvec/idgen"
	"github.com/chamlab/docvec/taskstore"
)

var allowedExts = map[string]bool{
	".pdf": true, ".hwpx": true, ".docx": true, ".pptx": true,
}

// Config wires the HTTP service.
type Config struct {
	// UploadDir receives uploaded files until the worker consumes them.
	UploadDir string
	// ImageDir is served read-only under /images/.
	ImageDir string
	// MaxUploadMB caps the multipart form size. Default: 200.
	MaxUploadMB int64

	Tasks *taskstore.Store // required

	IDs    idgen.Generator
	Logger *slog.Logger
}

func (c *Config) defaults() error {
	if c.Tasks == nil {
		return fmt.Errorf("api: Tasks is required")
	}
	if c.UploadDir == "" {
		c.UploadDir = "./uploads"
	}
	if c.MaxUploadMB <= 0 {
		c.MaxUploadMB = 200
	}
	if c.IDs == nil {
		c.IDs = idgen.Prefixed("task_", idgen.NanoID(8))
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Service holds the handler state.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// New builds the service and creates the upload directory.
func New(cfg Config) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	return &Service{cfg: cfg, logger: cfg.Logger}, nil
}

// Router returns the service's HTTP routes mounted on a fresh chi router.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/upload-async/", s.handleUploadAsync)
	r.Get("/tasks/", s.handleListTasks)
	r.Get("/task/{id}", s.handleGetTask)
	r.Post("/dismiss-completed-tasks", s.handleDismissCompleted)

	if s.cfg.ImageDir != "" {
		fs := http.StripPrefix("/images/", http.FileServer(http.Dir(s.cfg.ImageDir)))
		r.Get("/images/*", fs.ServeHTTP)
	}
	return r
}

// taskView is the JSON shape tasks are reported in.
type taskView struct {
	TaskID         string `json:"task_id"`
	Filename       string `json:"filename"`
	Sosok          string `json:"sosok"`
	Site           string `json:"site"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	Message        string `json:"message"`
	TotalPages     int    `json:"total_pages"`
	ProcessedPages int    `json:"processed_pages"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

func viewOf(t taskstore.Task) taskView {
	return taskView{
		TaskID:         t.ID,
		Filename:       t.Filename,
		Sosok:          t.Sosok,
		Site:           t.Site,
		Status:         t.Status,
		Progress:       t.Progress,
		Message:        t.Message,
		TotalPages:     t.TotalPages,
		ProcessedPages: t.ProcessedPages,
		CreatedAt:      t.CreatedAt.UnixMilli(),
		UpdatedAt:      t.UpdatedAt.UnixMilli(),
	}
}

// handleUploadAsync accepts one or more files and enqueues an ingestion
// task per file. Files with unsupported extensions are skipped silently so
// a mixed batch still goes through.
// POST /upload-async/  (multipart: files, tags, sosok, site)
func (s *Service) handleUploadAsync(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.cfg.MaxUploadMB << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	sosok := strings.TrimSpace(r.FormValue("sosok"))
	site := strings.TrimSpace(r.FormValue("site"))
	var tags []string
	if raw := strings.TrimSpace(r.FormValue("tags")); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}

	var taskIDs []string
	var views []taskView
	for _, fh := range files {
		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !allowedExts[ext] {
			s.logger.Warn("skipping unsupported upload", "filename", fh.Filename)
			continue
		}

		task, err := s.acceptFile(r, fh, sosok, site, tags)
		if err != nil {
			s.logger.Error("upload failed", "filename", fh.Filename, "error", err)
			continue
		}
		taskIDs = append(taskIDs, task.ID)
		views = append(views, viewOf(task))
		s.logger.Info("file uploaded and queued",
			"filename", fh.Filename, "task", task.ID, "sosok", sosok, "site", site)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":   "accepted",
		"task_ids": taskIDs,
		"tasks":    views,
		"message":  fmt.Sprintf("%d개 파일 업로드 완료. 처리 중...", len(taskIDs)),
	})
}

// acceptFile stores one uploaded file under a unique name and enqueues its
// task. The stored basename doubles as the file's stable ID so a re-upload
// of the same document can replace the previous chunks.
func (s *Service) acceptFile(r *http.Request, fh *multipart.FileHeader, sosok, site string, tags []string) (taskstore.Task, error) {
	src, err := fh.Open()
	if err != nil {
		return taskstore.Task{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	normalized := norm.NFC.String(strings.TrimSpace(fh.Filename))
	unique := uuid.New().String() + "_" + filepath.Base(normalized)
	path := filepath.Join(s.cfg.UploadDir, unique)

	dst, err := os.Create(path)
	if err != nil {
		return taskstore.Task{}, fmt.Errorf("store upload: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return taskstore.Task{}, fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return taskstore.Task{}, fmt.Errorf("close upload: %w", err)
	}

	task := taskstore.Task{
		ID:       s.cfg.IDs(),
		Filename: normalized,
		Path:     path,
		Sosok:    sosok,
		Site:     site,
		FileID:   unique,
		Tags:     tags,
		Status:   taskstore.StatusPending,
	}
	if err := s.cfg.Tasks.Enqueue(r.Context(), task); err != nil {
		os.Remove(path)
		return taskstore.Task{}, fmt.Errorf("enqueue task: %w", err)
	}
	return task, nil
}

// handleListTasks returns the tenant's visible tasks.
// GET /tasks/?sosok=...&site=...
func (s *Service) handleListTasks(w http.ResponseWriter, r *http.Request) {
	sosok := strings.TrimSpace(r.URL.Query().Get("sosok"))
	site := strings.TrimSpace(r.URL.Query().Get("site"))

	tasks, err := s.cfg.Tasks.ListByTenant(r.Context(), sosok, site)
	if err != nil {
		s.logger.Error("list tasks failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	views := make([]taskView, len(tasks))
	for i, t := range tasks {
		views[i] = viewOf(t)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

// handleGetTask returns one task by ID.
// GET /task/{id}
func (s *Service) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, ok, err := s.cfg.Tasks.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("get task failed", "task", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(*task))
}

// handleDismissCompleted hides a tenant's finished tasks from listings.
// POST /dismiss-completed-tasks  (form: sosok, site)
func (s *Service) handleDismissCompleted(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	sosok := strings.TrimSpace(r.FormValue("sosok"))
	site := strings.TrimSpace(r.FormValue("site"))

	n, err := s.cfg.Tasks.DismissFinished(r.Context(), sosok, site)
	if err != nil {
		s.logger.Error("dismiss failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"dismissed": n,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
