package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
)

//nolint:gochecknoglobals // global for fast reuse
var contentTypeExt = map[string]string{
	"application/pdf":  ".pdf",
	"application/zip":  ".zip",
	"application/json": ".json",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/webp":       ".webp",
	"text/csv":         ".csv",
	"text/plain":       ".txt",
}

var errFileTooLarge = errors.New("file exceeds max size")

type (
	UploadInput struct {
		File        io.Reader
		ContentType string
	}

	UploadOutput struct {
		Key         string
		Name        string
		Size        int64
		DownloadURL string
	}
)

// Upload stores the file of the grant holder. A grant uploads once; a failed
// upload frees the grant for another attempt.
func (s *Usecase) Upload(ctx context.Context, in UploadInput) (*UploadOutput, error) {
	ctx, span := s.startSpan(ctx, "Upload")
	defer span.End()

	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}

	if in.File == nil {
		return nil, goerror.NewInvalidInput(nil, "file", "file is required")
	}

	contentType := normalizeContentType(in.ContentType)
	if allowed := s.cfg.GetArray("modules.file.allowed_content_types"); len(allowed) > 0 &&
		!lo.Contains(allowed, contentType) {
		return nil, goerror.NewInvalidInput(nil, "file", "unsupported file content type")
	}

	ext, ok := contentTypeExt[contentType]
	if !ok {
		ext = ".bin"
	}

	name := s.uuid.Generate() + ext
	key := path.Join(ownerPrefix(clm.Identity), name)
	bucket := s.bucket()
	span.SetAttributes(attribute.String("file.key", key))

	reader := &maxBytesReader{r: in.File, max: s.maxSize()}

	var errPut error
	err := s.idemp.Exec(ctx, "file:upload:"+clm.ID, func(ctx context.Context) error {
		_, errPut = s.storage.PutObject(ctx, bucket, key, reader, storage.PutOptions{
			Size:        -1,
			ContentType: contentType,
			Metadata:    map[string]string{"grant_id": clm.ID},
		})
		return errPut
	},
		idempotency.WithReleaseOnError(),
		idempotency.WithStateTTL(s.grantRemaining(clm)),
	)
	switch {
	case errors.Is(err, idempotency.ErrAlreadyCompleted),
		errors.Is(err, idempotency.ErrAlreadyInProgress),
		errors.Is(err, idempotency.ErrAlreadyFailed):
		slog.WarnContext(ctx, "grant already used for upload", "grant_id", clm.ID)
		return nil, goerror.NewBusiness("grant already used", goerror.CodeConflict)
	case errors.Is(errPut, errFileTooLarge):
		s.discard(ctx, bucket, key)
		return nil, goerror.NewInvalidInput(errFileTooLarge)
	case errPut != nil:
		s.discard(ctx, bucket, key)
		span.RecordError(errPut)
		slog.ErrorContext(ctx, "failed to upload file", "key", key, "error", errPut)
		return nil, goerror.NewStorage(errPut)
	case err != nil:
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to track upload grant", "grant_id", clm.ID, "error", err)
		return nil, goerror.NewStorage(err)
	}

	url, err := s.storage.PresignGet(ctx, bucket, key, s.presignTTL())
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to presign file url", "key", key, "error", err)
		return nil, goerror.NewStorage(err)
	}

	return &UploadOutput{
		Key:         key,
		Name:        name,
		Size:        reader.read,
		DownloadURL: url,
	}, nil
}

func (s *Usecase) grantRemaining(clm *jwt.Claims) time.Duration {
	if d := clm.Remaining(s.clock.Now()); d > 0 {
		return d
	}
	return defaultGrantTTL
}

// discard removes a partially written object. Drivers that abort the upload
// leave nothing behind, so a missing object is fine.
func (s *Usecase) discard(ctx context.Context, bucket, key string) {
	err := s.storage.DeleteObject(context.WithoutCancel(ctx), bucket, key)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		slog.WarnContext(ctx, "failed to discard partial upload", "key", key, "error", err)
	}
}

func normalizeContentType(v string) string {
	v, _, _ = strings.Cut(v, ";")
	return strings.ToLower(strings.TrimSpace(v))
}

// maxBytesReader fails with errFileTooLarge once more than max bytes are
// read from r.
type maxBytesReader struct {
	r     io.Reader
	max   int64
	read  int64
	buf   [1]byte
	ended bool
}

func (m *maxBytesReader) Read(p []byte) (int, error) {
	if m.ended {
		return 0, errFileTooLarge
	}

	if m.read >= m.max {
		n, err := m.r.Read(m.buf[:])
		if n > 0 {
			m.ended = true
			return 0, errFileTooLarge
		}
		return 0, err
	}

	if remaining := m.max - m.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := m.r.Read(p)
	m.read += int64(n)
	return n, err
}
