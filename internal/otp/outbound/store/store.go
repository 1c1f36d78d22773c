// Package store keeps pending OTP records behind a TTL key-value contract.
//
// Every backend replaces on Put, returns goerror.ErrNotFound from Get when
// nothing is stored, treats Invalidate of an absent identity as a no-op and
// implements InvalidateIf and Consume as an atomic compare-and-delete (or
// compare-and-set) against the snapshot returned by Get. A record written by
// a newer Put never matches an older snapshot.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnsupportedScheme is returned for an endpoint no backend understands.
var ErrUnsupportedScheme = errors.New("store: unsupported endpoint scheme")

const (
	defaultTimeout   = 3 * time.Second
	defaultRetention = 24 * time.Hour
)

// Store is the contract shared by every backend.
type Store interface {
	io.Closer

	Put(ctx context.Context, rec entity.Record) error
	Get(ctx context.Context, identity string) (*entity.Record, error)
	Invalidate(ctx context.Context, identity string) error
	// InvalidateIf removes the record only while it is still the issue
	// captured in snapshot, and reports whether it did.
	InvalidateIf(ctx context.Context, snapshot entity.Record) (bool, error)
	Consume(ctx context.Context, snapshot entity.Record) (bool, error)
}

// Options are shared by every backend.
type Options struct {
	// Timeout bounds every store call.
	Timeout time.Duration
	// Retention is how long an expired record stays physically present, so
	// a late verify still reports Expired rather than NotFound.
	Retention time.Duration
	// AutoMigrate creates tables or indexes on startup.
	AutoMigrate bool
	Clock       clock.Clocker
	Instrument  instrument.Instrumentation
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Retention <= 0 {
		o.Retention = defaultRetention
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Instrument == nil {
		o.Instrument = instrument.NewNoop()
	}
	return o
}

// NewFromEndpoint picks a backend from the endpoint scheme:
// memory://, redis:// or rediss://, postgres:// or postgresql://,
// mongodb:// or mongodb+srv://.
func NewFromEndpoint(ctx context.Context, endpoint string, opts Options) (Store, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("store: parse endpoint: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemory(opts), nil
	case "redis", "rediss":
		return NewRedisFromURL(ctx, endpoint, opts)
	case "postgres", "postgresql":
		return NewPostgresFromURL(ctx, endpoint, opts)
	case "mongodb", "mongodb+srv":
		return NewMongoFromURI(ctx, endpoint, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// tracer wraps a store call with a timeout and a span named after the backend.
type tracer struct {
	backend string
	timeout time.Duration
	ins     instrument.Instrumentation
}

func (t tracer) start(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	ctx, span := t.ins.Tracer("otp.outbound.store."+t.backend).Start(ctx, op,
		trace.WithAttributes(attribute.String("db.system", t.backend)))

	return ctx, func(err error) {
		if err != nil && !errors.Is(err, goerror.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		cancel()
	}
}
