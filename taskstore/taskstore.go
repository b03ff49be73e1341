// Package taskstore tracks document ingestion tasks in SQLite.
//
// Each uploaded file becomes one task row. A background worker claims the
// oldest pending task, flips it to processing, and reports progress as the
// pipeline advances. Completed and failed tasks stay visible per tenant
// until dismissed, so the UI can show history.
//
// If the process dies mid-task, the row stays in processing; RequeueStale
// returns such rows to pending on the next startup.
//
// Expected schema (created automatically by EnsureTable):
//
//	CREATE TABLE IF NOT EXISTS ingest_tasks (
//	    id              TEXT PRIMARY KEY,
//	    filename        TEXT NOT NULL,
//	    path            TEXT NOT NULL,
//	    sosok           TEXT NOT NULL DEFAULT '',
//	    site            TEXT NOT NULL DEFAULT '',
//	    file_id         TEXT NOT NULL DEFAULT '',
//	    tags            TEXT NOT NULL DEFAULT '[]',
//	    status          TEXT NOT NULL DEFAULT 'pending',
//	    progress        INTEGER NOT NULL DEFAULT 0,
//	    message         TEXT NOT NULL DEFAULT '',
//	    total_pages     INTEGER NOT NULL DEFAULT 0,
//	    processed_pages INTEGER NOT NULL DEFAULT 0,
//	    dismissed       INTEGER NOT NULL DEFAULT 0,
//	    created_at      INTEGER NOT NULL,             -- milliseconds since epoch
//	    updated_at      INTEGER NOT NULL
//	);
package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Task statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Task is one ingestion job.
type Task struct {
	ID             string
	Filename       string
	Path           string
	Sosok          string
	Site           string
	FileID         string
	Tags           []string
	Status         string
	Progress       int
	Message        string
	TotalPages     int
	ProcessedPages int
	Dismissed      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Options configures store behaviour.
type Options struct {
	// PollInterval is the delay between claim attempts in the Run loop.
	// Default: 1s.
	PollInterval time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Store is the task table handle.
type Store struct {
	db   *sql.DB
	opts Options
}

// New creates a store handle. Call EnsureTable once at startup.
func New(db *sql.DB, opts Options) *Store {
	opts.defaults()
	return &Store{db: db, opts: opts}
}

// EnsureTable creates the ingest_tasks table and indexes if they don't exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS ingest_tasks (
			id              TEXT PRIMARY KEY,
			filename        TEXT NOT NULL,
			path            TEXT NOT NULL,
			sosok           TEXT NOT NULL DEFAULT '',
			site            TEXT NOT NULL DEFAULT '',
			file_id         TEXT NOT NULL DEFAULT '',
			tags            TEXT NOT NULL DEFAULT '[]',
			status          TEXT NOT NULL DEFAULT 'pending',
			progress        INTEGER NOT NULL DEFAULT 0,
			message         TEXT NOT NULL DEFAULT '',
			total_pages     INTEGER NOT NULL DEFAULT 0,
			processed_pages INTEGER NOT NULL DEFAULT 0,
			dismissed       INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ingest_tasks_status ON ingest_tasks (status, created_at);
		CREATE INDEX IF NOT EXISTS idx_ingest_tasks_tenant ON ingest_tasks (sosok, site, created_at);
	`)
	return err
}

// Enqueue inserts a new pending task. The caller provides the ID.
func (s *Store) Enqueue(ctx context.Context, t Task) error {
	if t.ID == "" {
		return fmt.Errorf("empty task ID")
	}
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ingest_tasks (id, filename, path, sosok, site, file_id, tags, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Filename, t.Path, t.Sosok, t.Site, t.FileID, string(tags), StatusPending, now, now,
	)
	return err
}

// Claim atomically picks the oldest pending task and flips it to processing.
// Returns nil, nil if none is pending.
func (s *Store) Claim(ctx context.Context) (*Task, error) {
	now := time.Now().UnixMilli()
	row := s.db.QueryRowContext(ctx, `
		UPDATE ingest_tasks
		SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM ingest_tasks
			WHERE status = ?
			ORDER BY created_at ASC
			LIMIT 1
		)
		RETURNING `+taskColumns,
		StatusProcessing, now, StatusPending,
	)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// SetProgress updates the progress percentage and status message of a task.
// Progress is clamped to [0, 100].
func (s *Store) SetProgress(ctx context.Context, id string, progress int, message string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_tasks SET progress = ?, message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		progress, message, time.Now().UnixMilli(), id, StatusProcessing,
	)
	return err
}

// SetPages records page counters for a task.
func (s *Store) SetPages(ctx context.Context, id string, processed, total int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_tasks SET processed_pages = ?, total_pages = ?, updated_at = ?
		WHERE id = ?`,
		processed, total, time.Now().UnixMilli(), id,
	)
	return err
}

// Complete marks a processing task as completed with progress 100.
// Completing an already-finished task is a no-op.
func (s *Store) Complete(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_tasks SET status = ?, progress = 100, message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusCompleted, message, time.Now().UnixMilli(), id, StatusProcessing,
	)
	return err
}

// Fail marks a processing task as failed with the given reason.
func (s *Store) Fail(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_tasks SET status = ?, message = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusFailed, message, time.Now().UnixMilli(), id, StatusProcessing,
	)
	return err
}

// Get returns a task by ID. The second return is false when no such task exists.
func (s *Store) Get(ctx context.Context, id string) (*Task, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM ingest_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// ListByTenant returns the tenant's non-dismissed tasks, newest first.
func (s *Store) ListByTenant(ctx context.Context, sosok, site string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM ingest_tasks
		WHERE sosok = ? AND site = ? AND dismissed = 0
		ORDER BY created_at DESC`,
		sosok, site,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// DismissFinished hides the tenant's completed and failed tasks from listings,
// returning how many were dismissed.
func (s *Store) DismissFinished(ctx context.Context, sosok, site string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingest_tasks SET dismissed = 1, updated_at = ?
		WHERE sosok = ? AND site = ? AND status IN (?, ?) AND dismissed = 0`,
		time.Now().UnixMilli(), sosok, site, StatusCompleted, StatusFailed,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RequeueStale returns processing tasks untouched for longer than olderThan
// to pending. Call once at startup to recover from a crashed worker.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingest_tasks SET status = ?, message = '', updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		StatusPending, time.Now().UnixMilli(), StatusProcessing, cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if n > 0 {
		s.opts.Logger.Info("taskstore: requeued stale tasks", "n", n)
	}
	return n, err
}

// PurgeOld deletes finished tasks older than olderThan.
func (s *Store) PurgeOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM ingest_tasks
		WHERE status IN (?, ?) AND updated_at < ?`,
		StatusCompleted, StatusFailed, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Handler processes a claimed task. Return nil when the task was handled
// (the handler is expected to call Complete itself); a non-nil error marks
// the task failed with the error text.
type Handler func(ctx context.Context, task *Task) error

// Run polls for pending tasks and calls handler for each, one at a time.
// It blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context, handler Handler) {
	log := s.opts.Logger
	log.Info("taskstore: worker started", "poll", s.opts.PollInterval)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("taskstore: worker stopped")
			return
		case <-ticker.C:
			s.poll(ctx, handler, log)
		}
	}
}

func (s *Store) poll(ctx context.Context, handler Handler, log *slog.Logger) {
	for {
		task, err := s.Claim(ctx)
		if err != nil {
			log.Warn("taskstore: claim failed", "error", err)
			return
		}
		if task == nil {
			return // nothing pending
		}

		log.Info("taskstore: task claimed", "id", task.ID, "filename", task.Filename)
		if err := handler(ctx, task); err != nil {
			log.Warn("taskstore: task failed", "id", task.ID, "error", err)
			_ = s.Fail(context.WithoutCancel(ctx), task.ID, err.Error())
		}
	}
}

const taskColumns = `id, filename, path, sosok, site, file_id, tags, status,
	progress, message, total_pages, processed_pages, dismissed, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var tags string
	var dismissed int
	var creAt, updAt int64
	err := row.Scan(&t.ID, &t.Filename, &t.Path, &t.Sosok, &t.Site, &t.FileID,
		&tags, &t.Status, &t.Progress, &t.Message, &t.TotalPages, &t.ProcessedPages,
		&dismissed, &creAt, &updAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	t.Dismissed = dismissed != 0
	t.CreatedAt = time.UnixMilli(creAt)
	t.UpdatedAt = time.UnixMilli(updAt)
	return &t, nil
}
