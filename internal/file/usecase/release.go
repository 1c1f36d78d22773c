package usecase

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"

	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/storage"
)

type (
	ReleaseInput struct {
		Name string `validate:"required,max=128,excludesall=/\\"`
	}

	ReleaseOutput struct {
		Key         string
		Size        int64
		ContentType string
		DownloadURL string
	}
)

// Release returns a download link for a file owned by the grant's identity.
// Files of other identities look exactly like missing ones.
func (s *Usecase) Release(ctx context.Context, in ReleaseInput) (*ReleaseOutput, error) {
	ctx, span := s.startSpan(ctx, "Release")
	defer span.End()

	clm := jwt.GetAuth(ctx)
	if clm == nil {
		return nil, goerror.NewBusiness("authentication required", goerror.CodeUnauthorized)
	}

	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.Validate(in); err != nil || in.Name == "." || in.Name == ".." {
		return nil, goerror.NewInvalidFormat("invalid file name")
	}

	bucket := s.bucket()
	key := path.Join(ownerPrefix(clm.Identity), in.Name)

	info, err := s.storage.StatObject(ctx, bucket, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, goerror.NewBusiness("file not found", goerror.CodeNotFound)
	}
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to stat file", "key", key, "error", err)
		return nil, goerror.NewStorage(err)
	}

	url, err := s.storage.PresignGet(ctx, bucket, key, s.presignTTL())
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to presign file url", "key", key, "error", err)
		return nil, goerror.NewStorage(err)
	}

	return &ReleaseOutput{
		Key:         key,
		Size:        info.Size,
		ContentType: info.ContentType,
		DownloadURL: url,
	}, nil
}
