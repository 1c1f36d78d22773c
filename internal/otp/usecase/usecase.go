package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultCodeLength      = 6
	minCodeLength          = 4
	maxCodeLength          = 10
	defaultTTL             = 10 * time.Minute
	defaultDeliveryTimeout = 10 * time.Second
	defaultStoreTimeout    = 3 * time.Second
)

type repoStore interface {
	Put(ctx context.Context, rec entity.Record) error
	Get(ctx context.Context, identity string) (*entity.Record, error)
	InvalidateIf(ctx context.Context, snapshot entity.Record) (bool, error)
	Consume(ctx context.Context, snapshot entity.Record) (bool, error)
}

type notifier interface {
	Notify(ctx context.Context, d entity.Delivery) error
}

type Usecase struct {
	store     repoStore
	notifier  notifier
	generator otp.Generator
	hmac      hash.Hash
	clock     clock.Clocker
	validator validator.Validator
	cfg       config.Config
	grant     jwt.JWT
	ins       instrument.Instrumentation

	issued   metric.Int64Counter
	verified metric.Int64Counter
}

// Dependency wires a Usecase. Notifier and Grant are optional: without a
// notifier codes are stored but never delivered, without Grant a successful
// verify carries no grant token.
type Dependency struct {
	Store      repoStore
	Notifier   notifier
	Generator  otp.Generator
	HMAC       hash.Hash
	Clock      clock.Clocker
	Validator  validator.Validator
	Config     config.Config
	Grant      jwt.JWT
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	s := &Usecase{
		store:     dep.Store,
		notifier:  dep.Notifier,
		generator: dep.Generator,
		hmac:      dep.HMAC,
		clock:     dep.Clock,
		validator: dep.Validator,
		cfg:       dep.Config,
		grant:     dep.Grant,
		ins:       dep.Instrument,
	}

	meter := s.ins.Meter("otp.usecase")

	var err error
	s.issued, err = meter.Int64Counter("otp.issued", metric.WithDescription("Number of issue attempts by result"))
	if err != nil {
		slog.Warn("failed to create otp.issued counter", "error", err)
	}
	s.verified, err = meter.Int64Counter("otp.verify", metric.WithDescription("Number of verify attempts by outcome"))
	if err != nil {
		slog.Warn("failed to create otp.verify counter", "error", err)
	}

	return s
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("otp.usecase").Start(ctx, name)
}

// codeLength falls back to the default when the configured value is outside
// the supported range.
func (s *Usecase) codeLength(ctx context.Context) int {
	n := s.cfg.GetInt("otp.code_length")
	if n == 0 {
		return defaultCodeLength
	}
	if n < minCodeLength || n > maxCodeLength {
		slog.WarnContext(ctx, "otp.code_length out of range, using default", "configured", n, "default", defaultCodeLength)
		return defaultCodeLength
	}
	return n
}

func (s *Usecase) ttl() time.Duration {
	if d := s.cfg.GetMinute("otp.ttl_minutes"); d > 0 {
		return d
	}
	return defaultTTL
}

// storeCtx bounds a single store call. Backends carry their own timeout too;
// this one also covers stores that ignore it.
func (s *Usecase) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	d := s.cfg.GetSecond("otp.store.timeout_seconds")
	if d <= 0 {
		d = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, d)
}

func (s *Usecase) deliveryTimeout() time.Duration {
	if d := s.cfg.GetSecond("otp.delivery.timeout_seconds"); d > 0 {
		return d
	}
	return defaultDeliveryTimeout
}
