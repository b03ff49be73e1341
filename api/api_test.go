package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/chamlab/docvec/dbopen"
	"github.com/chamlab/docvec/taskstore"
)

func testService(t *testing.T) (*Service, *taskstore.Store) {
	t.Helper()
	tasks := taskstore.New(dbopen.OpenMemory(t), taskstore.Options{})
	if err := tasks.EnsureTable(context.Background()); err != nil {
		t.Fatal(err)
	}
	svc, err := New(Config{
		UploadDir: t.TempDir(),
		ImageDir:  t.TempDir(),
		Tasks:     tasks,
	})
	if err != nil {
		t.Fatal(err)
	}
	return svc, tasks
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadAsync(t *testing.T) {
	svc, tasks := testService(t)
	router := svc.Router()

	body, contentType := multipartUpload(t,
		map[string]string{"sosok": "kac", "site": "gimpo", "tags": "교범, VOR"},
		map[string][]byte{
			"유지보수교범.pdf": []byte("%PDF-1.4 fake"),
			"virus.exe":   []byte("nope"),
		})

	req := httptest.NewRequest(http.MethodPost, "/upload-async/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Status  string   `json:"status"`
		TaskIDs []string `json:"task_ids"`
		Tasks   []struct {
			TaskID   string `json:"task_id"`
			Filename string `json:"filename"`
			Status   string `json:"status"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "accepted" {
		t.Errorf("status %q", resp.Status)
	}
	// Only the PDF is accepted; the .exe is skipped.
	if len(resp.TaskIDs) != 1 {
		t.Fatalf("got %d task ids, want 1", len(resp.TaskIDs))
	}
	if resp.Tasks[0].Filename != "유지보수교범.pdf" {
		t.Errorf("filename %q", resp.Tasks[0].Filename)
	}
	if resp.Tasks[0].Status != taskstore.StatusPending {
		t.Errorf("status %q, want pending", resp.Tasks[0].Status)
	}

	// The task row points at a stored copy of the file.
	task, ok, err := tasks.Get(context.Background(), resp.TaskIDs[0])
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	data, err := os.ReadFile(task.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "%PDF-1.4 fake" {
		t.Errorf("stored content %q", data)
	}
	if task.FileID != filepath.Base(task.Path) {
		t.Errorf("file id %q does not match stored name %q", task.FileID, task.Path)
	}
	if len(task.Tags) != 2 || task.Tags[1] != "VOR" {
		t.Errorf("tags %v", task.Tags)
	}
}

func TestUploadAsyncNoFiles(t *testing.T) {
	svc, _ := testService(t)

	body, contentType := multipartUpload(t, map[string]string{"sosok": "kac"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/upload-async/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestGetTask(t *testing.T) {
	svc, tasks := testService(t)
	ctx := context.Background()

	tasks.Enqueue(ctx, taskstore.Task{ID: "t1", Filename: "a.pdf", Path: "/tmp/a", Sosok: "kac", Site: "gimpo"})

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/task/t1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var view struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.TaskID != "t1" || view.Status != taskstore.StatusPending {
		t.Errorf("view %+v", view)
	}

	rec = httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/task/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestListTasks(t *testing.T) {
	svc, tasks := testService(t)
	ctx := context.Background()

	tasks.Enqueue(ctx, taskstore.Task{ID: "t1", Filename: "a.pdf", Path: "/tmp/a", Sosok: "kac", Site: "gimpo"})
	tasks.Enqueue(ctx, taskstore.Task{ID: "t2", Filename: "b.pdf", Path: "/tmp/b", Sosok: "kac", Site: "jeju"})

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/?sosok=kac&site=gimpo", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Tasks []struct {
			TaskID string `json:"task_id"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].TaskID != "t1" {
		t.Errorf("tasks %+v", resp.Tasks)
	}
}

func TestDismissCompleted(t *testing.T) {
	svc, tasks := testService(t)
	ctx := context.Background()

	tasks.Enqueue(ctx, taskstore.Task{ID: "t1", Filename: "a.pdf", Path: "/tmp/a", Sosok: "kac", Site: "gimpo"})
	claimed, _ := tasks.Claim(ctx)
	tasks.Complete(ctx, claimed.ID, "완료")

	form := url.Values{"sosok": {"kac"}, "site": {"gimpo"}}
	req := httptest.NewRequest(http.MethodPost, "/dismiss-completed-tasks", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Dismissed int `json:"dismissed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Dismissed != 1 {
		t.Errorf("dismissed %d, want 1", resp.Dismissed)
	}

	remaining, _ := tasks.ListByTenant(ctx, "kac", "gimpo")
	if len(remaining) != 0 {
		t.Errorf("tasks still listed: %+v", remaining)
	}
}

func TestImagesServed(t *testing.T) {
	svc, _ := testService(t)

	if err := os.WriteFile(filepath.Join(svc.cfg.ImageDir, "abc123.png"), []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/abc123.png", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	data, _ := io.ReadAll(rec.Body)
	if string(data) != "png" {
		t.Errorf("body %q", data)
	}
}
