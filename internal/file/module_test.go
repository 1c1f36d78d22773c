package file

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/storage"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string]storage.ObjectInfo
}

func (m *memStorage) Close() error { return nil }

func (m *memStorage) PutObject(_ context.Context, bucket, key string, r io.Reader, opts storage.PutOptions) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	info := storage.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data)), ContentType: opts.ContentType}
	m.mu.Lock()
	m.objects[bucket+"/"+key] = info
	m.mu.Unlock()
	return info, nil
}

func (m *memStorage) StatObject(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, ok := m.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return info, nil
}

func (m *memStorage) DeleteObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *memStorage) PresignGet(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + bucket + "/" + key, nil
}

func newDependency(t *testing.T) Dependency {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte("modules:\n  file:\n    bucket: releases\n"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	grant, err := jwt.NewHS512(jwt.Config{
		Secret: []byte(strings.Repeat("g", 64)),
		TTL:    15 * time.Minute,
		Clock:  clock.New(),
		UUID:   uid.NewUUID(),
	})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return Dependency{
		Router:      router.NewRouter(router.Config{Config: cfg, UUID: uid.NewUUID()}),
		Storage:     &memStorage{objects: map[string]storage.ObjectInfo{}},
		Idempotency: idempotency.New(client),
		Grant:       grant,
		Config:      cfg,
		Validator:   v,
		UUID:        uid.NewUUID(),
		Clock:       clock.New(),
		Instrument:  instrument.NewNoop(),
	}
}

func send(t *testing.T, h http.Handler, req *http.Request) (int, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec.Code, resp
}

func uploadRequest(t *testing.T, token string, content string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestModule_UploadThenRelease(t *testing.T) {
	// Arrange
	dep := newDependency(t)
	if err := New(dep); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	token, err := dep.Grant.Generate("a@b.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	// Act
	status, up := send(t, dep.Router, uploadRequest(t, token, "release me"))

	// Assert
	if status != http.StatusOK {
		t.Fatalf("upload status = %d, body = %v", status, up)
	}
	data := up["data"].(map[string]any)
	name, _ := data["name"].(string)
	if !strings.HasSuffix(name, ".txt") || data["size"] != float64(len("release me")) {
		t.Fatalf("upload data = %v", data)
	}

	status, again := send(t, dep.Router, uploadRequest(t, token, "second"))
	if status != http.StatusConflict {
		t.Fatalf("second upload status = %d, body = %v", status, again)
	}

	other, err := dep.Grant.Generate("a@b.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/files/"+name, nil)
	req.Header.Set("Authorization", "Bearer "+other)
	status, rel := send(t, dep.Router, req)
	if status != http.StatusOK {
		t.Fatalf("release status = %d, body = %v", status, rel)
	}
	relData := rel["data"].(map[string]any)
	if relData["key"] != data["key"] || relData["content_type"] != "text/plain" {
		t.Fatalf("release data = %v", relData)
	}

	stranger, err := dep.Grant.Generate("c@d.com")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/files/"+name, nil)
	req.Header.Set("Authorization", "Bearer "+stranger)
	if status, _ := send(t, dep.Router, req); status != http.StatusNotFound {
		t.Fatalf("stranger release status = %d, want 404", status)
	}
}

func TestModule_RequiresDependencies(t *testing.T) {
	dep := newDependency(t)
	dep.Grant = nil

	if err := New(dep); err == nil {
		t.Fatalf("expected validation error for missing grant")
	}
}
