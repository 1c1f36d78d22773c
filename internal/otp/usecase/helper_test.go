package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeGenerator hands out codes in order and repeats the last one.
type fakeGenerator struct {
	mu      sync.Mutex
	codes   []string
	lengths []int
	err     error
}

func (g *fakeGenerator) Generate(length int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lengths = append(g.lengths, length)
	if g.err != nil {
		return "", g.err
	}
	code := g.codes[0]
	if len(g.codes) > 1 {
		g.codes = g.codes[1:]
	}
	return code, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	got     []entity.Delivery
	ctxErrs []error
	err     error
}

func (n *fakeNotifier) Notify(ctx context.Context, d entity.Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.got = append(n.got, d)
	n.ctxErrs = append(n.ctxErrs, ctx.Err())
	return n.err
}

// brokenStore fails every call.
type brokenStore struct{ err error }

func (b brokenStore) Put(context.Context, entity.Record) error                  { return b.err }
func (b brokenStore) Get(context.Context, string) (*entity.Record, error)       { return nil, b.err }
func (b brokenStore) InvalidateIf(context.Context, entity.Record) (bool, error) { return false, b.err }
func (b brokenStore) Consume(context.Context, entity.Record) (bool, error)      { return false, b.err }

// blockingStore holds every call until its context ends.
type blockingStore struct{}

func (blockingStore) Put(ctx context.Context, _ entity.Record) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingStore) Get(ctx context.Context, _ string) (*entity.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingStore) InvalidateIf(ctx context.Context, _ entity.Record) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func (blockingStore) Consume(ctx context.Context, _ entity.Record) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

// blockingNotifier never delivers; it returns once its context ends.
type blockingNotifier struct{}

func (blockingNotifier) Notify(ctx context.Context, _ entity.Delivery) error {
	<-ctx.Done()
	return ctx.Err()
}

// hookAfterGet runs hook once, right after the first Get it serves returns.
type hookAfterGet struct {
	repoStore
	hook func()
}

func (h *hookAfterGet) Get(ctx context.Context, identity string) (*entity.Record, error) {
	rec, err := h.repoStore.Get(ctx, identity)
	if fn := h.hook; fn != nil {
		h.hook = nil
		fn()
	}
	return rec, err
}

// cancelAfterPut cancels the caller's context once the record is written.
type cancelAfterPut struct {
	repoStore
	cancel context.CancelFunc
}

func (c cancelAfterPut) Put(ctx context.Context, rec entity.Record) error {
	err := c.repoStore.Put(ctx, rec)
	c.cancel()
	return err
}

type fakeGrant struct{ err error }

func (g fakeGrant) Generate(identity string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return "grant-for-" + identity, nil
}

func (fakeGrant) Verify(string) (jwt.Claims, error) {
	return jwt.Claims{}, jwt.ErrInvalidToken
}

type fixture struct {
	uc    *Usecase
	clock *clock.Fixed
	store *store.Memory
	gen   *fakeGenerator
	notif *fakeNotifier
}

type fixtureOption func(*Dependency)

func newFixture(t *testing.T, yaml string, codes []string, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	v, err := validator.NewV10Validator()
	if err != nil {
		t.Fatalf("validator: %v", err)
	}
	h, err := hash.NewHMACSHA256("unit-test-secret")
	if err != nil {
		t.Fatalf("hmac: %v", err)
	}

	f := &fixture{
		clock: clock.NewFixed(t0),
		gen:   &fakeGenerator{codes: codes},
		notif: &fakeNotifier{},
	}
	f.store = store.NewMemory(store.Options{Clock: f.clock})

	dep := Dependency{
		Store:      f.store,
		Notifier:   f.notif,
		Generator:  f.gen,
		HMAC:       h,
		Clock:      f.clock,
		Validator:  v,
		Config:     cfg,
		Instrument: instrument.NewNoop(),
	}
	for _, opt := range opts {
		opt(&dep)
	}
	f.uc = New(dep)
	return f
}

const baseConfig = `
otp:
  code_length: 6
  ttl_minutes: 10
`

func (f *fixture) verify(t *testing.T, identity, code string) entity.Outcome {
	t.Helper()

	out, err := f.uc.Verify(context.Background(), VerifyInput{Identity: identity, Code: code})
	if err != nil {
		t.Fatalf("Verify(%q, %q) error = %v", identity, code, err)
	}
	return out.Outcome
}

var errBackend = errors.New("dial tcp 10.1.2.3:6379: i/o timeout")
