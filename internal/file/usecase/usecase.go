package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/storage"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxSize    int64 = 10 << 20
	defaultPresignTTL       = 15 * time.Minute
	defaultGrantTTL         = 15 * time.Minute
	ownerPrefixLen          = 16
)

type repoStorage interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, opts storage.PutOptions) (storage.ObjectInfo, error)
	StatObject(ctx context.Context, bucket, key string) (storage.ObjectInfo, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

type Usecase struct {
	storage   repoStorage
	idemp     idempotency.Idempotency
	cfg       config.Config
	uuid      uid.StringID
	clock     clock.Clocker
	validator validator.Validator
	ins       instrument.Instrumentation
}

type Dependency struct {
	Storage     repoStorage
	Idempotency idempotency.Idempotency
	Config      config.Config
	UUID        uid.StringID
	Clock       clock.Clocker
	Validator   validator.Validator
	Instrument  instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	return &Usecase{
		storage:   dep.Storage,
		idemp:     dep.Idempotency,
		cfg:       dep.Config,
		uuid:      dep.UUID,
		clock:     dep.Clock,
		validator: dep.Validator,
		ins:       dep.Instrument,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("file.usecase").Start(ctx, name)
}

func (s *Usecase) bucket() string {
	return strings.TrimSpace(s.cfg.GetString("modules.file.bucket"))
}

func (s *Usecase) maxSize() int64 {
	if n := s.cfg.GetInt64("modules.file.max_size_bytes"); n > 0 {
		return n
	}
	return defaultMaxSize
}

func (s *Usecase) presignTTL() time.Duration {
	if d := s.cfg.GetMinute("modules.file.presign_ttl_minutes"); d > 0 {
		return d
	}
	return defaultPresignTTL
}

// ownerPrefix keeps objects of one identity together without putting the
// address itself into object keys.
func ownerPrefix(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:ownerPrefixLen]
}
