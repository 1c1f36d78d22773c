package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

// runContract checks the behaviour every backend must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	record := func(identity, digest string, created time.Time) entity.Record {
		return entity.Record{
			Identity:   identity,
			CodeDigest: digest,
			CreatedAt:  created,
			ExpiresAt:  created.Add(10 * time.Minute),
		}
	}

	t.Run("get absent", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(context.Background(), "nobody@b.com")
		if !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("Get() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("put then get", func(t *testing.T) {
		// Arrange
		s := newStore(t)
		want := record("a@b.com", "d1", now)

		// Act
		if err := s.Put(context.Background(), want); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		got, err := s.Get(context.Background(), "a@b.com")

		// Assert
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !got.SameIssue(want) || !got.ExpiresAt.Equal(want.ExpiresAt) || got.Consumed {
			t.Fatalf("Get() = %+v, want %+v", got, want)
		}
	})

	t.Run("put replaces", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(context.Background(), record("a@b.com", "old", now))
		_ = s.Put(context.Background(), record("a@b.com", "new", now.Add(time.Second)))

		got, err := s.Get(context.Background(), "a@b.com")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.CodeDigest != "new" {
			t.Fatalf("CodeDigest = %q, want new", got.CodeDigest)
		}
	})

	t.Run("invalidate is idempotent", func(t *testing.T) {
		s := newStore(t)
		if err := s.Invalidate(context.Background(), "ghost@b.com"); err != nil {
			t.Fatalf("Invalidate(absent) error = %v", err)
		}

		_ = s.Put(context.Background(), record("a@b.com", "d1", now))
		if err := s.Invalidate(context.Background(), "a@b.com"); err != nil {
			t.Fatalf("Invalidate() error = %v", err)
		}
		if _, err := s.Get(context.Background(), "a@b.com"); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("Get() after Invalidate error = %v", err)
		}
	})

	t.Run("consume once", func(t *testing.T) {
		// Arrange
		s := newStore(t)
		_ = s.Put(context.Background(), record("a@b.com", "d1", now))
		snap, err := s.Get(context.Background(), "a@b.com")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		// Act
		first, err1 := s.Consume(context.Background(), *snap)
		second, err2 := s.Consume(context.Background(), *snap)

		// Assert
		if err1 != nil || err2 != nil {
			t.Fatalf("Consume() errors = %v, %v", err1, err2)
		}
		if !first || second {
			t.Fatalf("Consume() = %v, %v; want true, false", first, second)
		}
		after, err := s.Get(context.Background(), "a@b.com")
		if err == nil && !after.Consumed {
			t.Fatalf("record still live after consume: %+v", after)
		}
		if err != nil && !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("Get() after consume error = %v", err)
		}
	})

	t.Run("stale snapshot loses to a later put", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(context.Background(), record("a@b.com", "old", now))
		stale, _ := s.Get(context.Background(), "a@b.com")
		_ = s.Put(context.Background(), record("a@b.com", "new", now.Add(time.Second)))

		ok, err := s.Consume(context.Background(), *stale)
		if err != nil || ok {
			t.Fatalf("Consume(stale) = %v, %v; want false, nil", ok, err)
		}

		fresh, _ := s.Get(context.Background(), "a@b.com")
		ok, err = s.Consume(context.Background(), *fresh)
		if err != nil || !ok {
			t.Fatalf("Consume(fresh) = %v, %v; want true, nil", ok, err)
		}
	})

	t.Run("invalidate if keeps a later put", func(t *testing.T) {
		// Arrange
		s := newStore(t)
		_ = s.Put(context.Background(), record("a@b.com", "old", now))
		stale, _ := s.Get(context.Background(), "a@b.com")
		_ = s.Put(context.Background(), record("a@b.com", "new", now.Add(time.Second)))

		// Act
		ok, err := s.InvalidateIf(context.Background(), *stale)

		// Assert
		if err != nil || ok {
			t.Fatalf("InvalidateIf(stale) = %v, %v; want false, nil", ok, err)
		}
		got, err := s.Get(context.Background(), "a@b.com")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.CodeDigest != "new" {
			t.Fatalf("CodeDigest = %q, want new", got.CodeDigest)
		}
	})

	t.Run("invalidate if removes the same issue", func(t *testing.T) {
		s := newStore(t)
		_ = s.Put(context.Background(), record("a@b.com", "d1", now))
		snap, _ := s.Get(context.Background(), "a@b.com")

		ok, err := s.InvalidateIf(context.Background(), *snap)
		if err != nil || !ok {
			t.Fatalf("InvalidateIf() = %v, %v; want true, nil", ok, err)
		}
		if _, err := s.Get(context.Background(), "a@b.com"); !errors.Is(err, goerror.ErrNotFound) {
			t.Fatalf("Get() after InvalidateIf error = %v", err)
		}

		ok, err = s.InvalidateIf(context.Background(), *snap)
		if err != nil || ok {
			t.Fatalf("InvalidateIf(absent) = %v, %v; want false, nil", ok, err)
		}
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		// Arrange
		s := newStore(t)
		_ = s.Put(context.Background(), record("race@b.com", "d1", now))
		snap, err := s.Get(context.Background(), "race@b.com")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}

		// Act
		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 16 {
			wg.Go(func() {
				if ok, err := s.Consume(context.Background(), *snap); err == nil && ok {
					wins.Add(1)
				}
			})
		}
		wg.Wait()

		// Assert
		if wins.Load() != 1 {
			t.Fatalf("winners = %d, want 1", wins.Load())
		}
	})
}
