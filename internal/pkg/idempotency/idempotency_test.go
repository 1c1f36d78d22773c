package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T) (*StateTracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client), mr
}

func TestStateTracker_Exec_RunsOnce(t *testing.T) {
	// Arrange
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	var calls int

	// Act
	err1 := tr.Exec(ctx, "k", func(context.Context) error { calls++; return nil })
	err2 := tr.Exec(ctx, "k", func(context.Context) error { calls++; return nil })

	// Assert
	if err1 != nil {
		t.Fatalf("first Exec error: %v", err1)
	}
	if !errors.Is(err2, ErrAlreadyCompleted) {
		t.Fatalf("second Exec = %v, want ErrAlreadyCompleted", err2)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestStateTracker_Exec_FailedState(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()
	boom := errors.New("boom")

	if err := tr.Exec(ctx, "k", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Exec = %v, want boom", err)
	}
	if err := tr.Exec(ctx, "k", func(context.Context) error { return nil }); !errors.Is(err, ErrAlreadyFailed) {
		t.Fatalf("Exec = %v, want ErrAlreadyFailed", err)
	}
}

func TestStateTracker_Exec_ReleaseOnError(t *testing.T) {
	tr, mr := newTestTracker(t)
	ctx := context.Background()

	err := tr.Exec(ctx, "k", func(context.Context) error { return errors.New("boom") }, WithReleaseOnError())
	if err == nil {
		t.Fatalf("expected error")
	}
	if mr.Exists("idempotency:k") {
		t.Fatalf("key should be released")
	}

	if err := tr.Exec(ctx, "k", func(context.Context) error { return nil }, WithReleaseOnError()); err != nil {
		t.Fatalf("retry Exec error: %v", err)
	}
}

func TestStateTracker_Exec_StateTTL(t *testing.T) {
	tr, mr := newTestTracker(t)
	ctx := context.Background()

	if err := tr.Exec(ctx, "k", func(context.Context) error { return nil }, WithStateTTL(time.Hour)); err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if ttl := mr.TTL("idempotency:k"); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if err := tr.Exec(ctx, "k", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Exec after expiry error: %v", err)
	}
}

func TestStateTracker_Exec_Concurrent(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	var (
		wg    sync.WaitGroup
		calls atomic.Int32
		gate  = make(chan struct{})
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-gate
			_ = tr.Exec(ctx, "k", func(context.Context) error {
				calls.Add(1)
				return nil
			})
		}()
	}
	close(gate)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestStateTracker_Acquire_InvalidState(t *testing.T) {
	tr, mr := newTestTracker(t)
	if err := mr.Set("idempotency:k", "garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	state, err := tr.Acquire(context.Background(), "k", time.Minute)

	if state != StateError || !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Acquire = %v, %v", state, err)
	}
}
