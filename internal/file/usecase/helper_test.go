package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	libJWT "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/storage"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var errBackend = errors.New("bucket unreachable at 10.0.0.7")

type object struct {
	info storage.ObjectInfo
	data []byte
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string]object
	putErr  error
	statErr error
	signErr error
	deleted []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string]object{}}
}

func (f *fakeStorage) PutObject(_ context.Context, bucket, key string, r io.Reader, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.mu.Lock()
	putErr := f.putErr
	f.mu.Unlock()
	if putErr != nil {
		return storage.ObjectInfo{}, putErr
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}

	info := storage.ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		Size:        int64(len(data)),
		ContentType: opts.ContentType,
		Metadata:    opts.Metadata,
	}

	f.mu.Lock()
	f.objects[bucket+"/"+key] = object{info: info, data: data}
	f.mu.Unlock()

	return info, nil
}

func (f *fakeStorage) StatObject(_ context.Context, bucket, key string) (storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.statErr != nil {
		return storage.ObjectInfo{}, f.statErr
	}
	obj, ok := f.objects[bucket+"/"+key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return obj.info, nil
}

func (f *fakeStorage) DeleteObject(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleted = append(f.deleted, bucket+"/"+key)
	delete(f.objects, bucket+"/"+key)
	return nil
}

func (f *fakeStorage) PresignGet(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if f.signErr != nil {
		return "", f.signErr
	}
	return "https://files.test/" + bucket + "/" + key + "?expires=" + expiry.String(), nil
}

func (f *fakeStorage) setPutErr(err error) {
	f.mu.Lock()
	f.putErr = err
	f.mu.Unlock()
}

func (f *fakeStorage) get(bucket, key string) (object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, ok := f.objects[bucket+"/"+key]
	return obj, ok
}

type fixedUUID struct{ id string }

func (f fixedUUID) Generate() string { return f.id }

const baseConfig = `
modules:
  file:
    bucket: releases
    max_size_bytes: 16
    presign_ttl_minutes: 5
    allowed_content_types: application/pdf,text/plain
`

func newUsecase(t *testing.T, fs *fakeStorage) *Usecase {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg, err := config.NewViperFromBytes("yaml", []byte(baseConfig))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}

	return New(Dependency{
		Storage:     fs,
		Idempotency: idempotency.New(client),
		Config:      cfg,
		UUID:        fixedUUID{id: "0199a000-0000-7000-8000-000000000001"},
		Clock:       clock.NewFixed(now),
		Validator:   v,
		Instrument:  instrument.NewNoop(),
	})
}

func authed(identity, grantID string) context.Context {
	return jwt.SetAuth(context.Background(), jwt.Claims{
		RegisteredClaims: libJWT.RegisteredClaims{
			ID:        grantID,
			Subject:   identity,
			ExpiresAt: libJWT.NewNumericDate(now.Add(15 * time.Minute)),
		},
		Identity: identity,
	})
}

func assertCode(t *testing.T, err error, want goerror.Code) {
	t.Helper()

	var e *goerror.Error
	if !errors.As(err, &e) {
		t.Fatalf("error = %v, want *goerror.Error", err)
	}
	if e.Code() != want {
		t.Fatalf("code = %s, want %s", e.Code(), want)
	}
}
