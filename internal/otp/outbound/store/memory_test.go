package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

func TestMemory_Contract(t *testing.T) {
	runContract(t, func(*testing.T) Store {
		return NewMemory(Options{})
	})
}

func TestMemory_KeepsExpiredWithinRetention(t *testing.T) {
	// Arrange
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(t0)
	s := NewMemory(Options{Clock: clk, Retention: time.Hour})
	_ = s.Put(context.Background(), entity.Record{
		Identity:  "a@b.com",
		CreatedAt: t0,
		ExpiresAt: t0.Add(10 * time.Minute),
	})

	// Act
	clk.Advance(700 * time.Second)
	_, errInRetention := s.Get(context.Background(), "a@b.com")
	clk.Advance(time.Hour)
	_, errPurged := s.Get(context.Background(), "a@b.com")

	// Assert
	if errInRetention != nil {
		t.Fatalf("expired record should still be readable, got %v", errInRetention)
	}
	if !errors.Is(errPurged, goerror.ErrNotFound) {
		t.Fatalf("record past retention should be gone, got %v", errPurged)
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}

func TestMemory_CanceledContext(t *testing.T) {
	s := NewMemory(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, entity.Record{Identity: "a@b.com"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Put() error = %v, want context.Canceled", err)
	}
}

func TestNewFromEndpoint(t *testing.T) {
	s, err := NewFromEndpoint(context.Background(), "memory://local", Options{})
	if err != nil {
		t.Fatalf("NewFromEndpoint(memory) error = %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", s)
	}

	_, err = NewFromEndpoint(context.Background(), "cassandra://db:9042", Options{})
	if !errors.Is(err, ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}
