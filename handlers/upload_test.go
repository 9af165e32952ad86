package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/talentsift/talentsift/blobstore"
	"github.com/talentsift/talentsift/event"
	"github.com/talentsift/talentsift/queue"
	"github.com/talentsift/talentsift/resume"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type uploadEnv struct {
	handler *UploadHandler
	store   *resume.MemoryStore
	blobs   *blobstore.MemoryStore
	queue   *queue.MemoryQueue
}

func newUploadEnv(t *testing.T, cfg UploadConfig) *uploadEnv {
	t.Helper()
	logger := testLogger()
	env := &uploadEnv{
		store: resume.NewMemoryStore(),
		blobs: blobstore.NewMemoryStore(),
		queue: queue.NewMemoryQueue(queue.Config{
			MaxAttempts: 5,
			BackoffBase: time.Second,
			BackoffCap:  time.Minute,
		}),
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 1 << 20
	}
	env.handler = NewUploadHandler(env.store, env.blobs, env.queue,
		event.NewEmitter(logger), cfg, logger)
	return env
}

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/resumes", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadAccepted(t *testing.T) {
	env := newUploadEnv(t, UploadConfig{})

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, multipartUpload(t, "cv.txt", []byte("Jane Doe\nGo engineer")))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rr.Code, rr.Body.String())
	}

	var resp uploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == uuid.Nil {
		t.Error("response id is empty")
	}
	if resp.Status != resume.StatusUploaded {
		t.Errorf("response status = %s, want %s", resp.Status, resume.StatusUploaded)
	}

	rec, err := env.store.Get(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("record not created: %v", err)
	}
	if rec.Filename != "cv.txt" {
		t.Errorf("filename = %q", rec.Filename)
	}
	if _, err := env.blobs.Get(context.Background(), rec.RawKey); err != nil {
		t.Errorf("raw blob not stored: %v", err)
	}
	if env.queue.Pending() != 1 {
		t.Errorf("pending tasks = %d, want 1", env.queue.Pending())
	}
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
	}{
		{"unsupported extension", "cv.exe", []byte("binary")},
		{"empty file", "cv.txt", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newUploadEnv(t, UploadConfig{})
			rr := httptest.NewRecorder()
			env.handler.ServeHTTP(rr, multipartUpload(t, tt.filename, tt.content))

			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
			if env.queue.Pending() != 0 {
				t.Errorf("rejected upload enqueued a task")
			}
		})
	}
}

func TestUploadOversizeRejected(t *testing.T) {
	env := newUploadEnv(t, UploadConfig{MaxUploadBytes: 64})

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, multipartUpload(t, "cv.txt", bytes.Repeat([]byte("a"), 4096)))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestUploadDedup(t *testing.T) {
	env := newUploadEnv(t, UploadConfig{Dedup: true})
	content := []byte("Jane Doe\nGo engineer")

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, multipartUpload(t, "cv.txt", content))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("first upload status = %d", rr.Code)
	}
	var first uploadResponse
	json.Unmarshal(rr.Body.Bytes(), &first)

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, multipartUpload(t, "copy.txt", content))
	if rr.Code != http.StatusOK {
		t.Fatalf("duplicate upload status = %d, want 200", rr.Code)
	}
	var second uploadResponse
	json.Unmarshal(rr.Body.Bytes(), &second)

	if !second.Duplicate {
		t.Error("duplicate flag not set")
	}
	if second.ID != first.ID {
		t.Errorf("duplicate id = %v, want original %v", second.ID, first.ID)
	}
	if env.queue.Pending() != 1 {
		t.Errorf("pending tasks = %d, want 1 (no task for the duplicate)", env.queue.Pending())
	}
}

func TestUploadDedupDisabledCreatesTwoRecords(t *testing.T) {
	env := newUploadEnv(t, UploadConfig{})
	content := []byte("Jane Doe\nGo engineer")

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, multipartUpload(t, "cv.txt", content))
		if rr.Code != http.StatusAccepted {
			t.Fatalf("upload %d status = %d", i+1, rr.Code)
		}
	}
	if env.queue.Pending() != 2 {
		t.Errorf("pending tasks = %d, want 2", env.queue.Pending())
	}
}
