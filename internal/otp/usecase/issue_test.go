package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
)

func TestIssue_StoresDigestAndNotifies(t *testing.T) {
	// Arrange
	f := newFixture(t, baseConfig, []string{"483920"})

	// Act
	out, err := f.uc.Issue(context.Background(), IssueInput{Identity: "a@b.com"})

	// Assert
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if out.Code != "483920" || !out.ExpiresAt.Equal(t0.Add(10*time.Minute)) || out.ExpiresIn != 10*time.Minute {
		t.Fatalf("Issue() = %+v", out)
	}

	rec, err := f.store.Get(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("store Get() error = %v", err)
	}
	if rec.CodeDigest == "" || strings.Contains(rec.CodeDigest, "483920") {
		t.Fatalf("stored digest %q must not be the plain code", rec.CodeDigest)
	}
	if !rec.CreatedAt.Equal(t0) {
		t.Fatalf("CreatedAt = %s, want %s", rec.CreatedAt, t0)
	}

	if len(f.notif.got) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notif.got))
	}
	want := entity.Delivery{Identity: "a@b.com", Code: "483920", ExpiresAt: t0.Add(10 * time.Minute), TTL: 10 * time.Minute}
	if got := f.notif.got[0]; got != want {
		t.Fatalf("delivery = %+v, want %+v", got, want)
	}
}

func TestIssue_NormalizesIdentity(t *testing.T) {
	f := newFixture(t, baseConfig, []string{"483920"})

	if _, err := f.uc.Issue(context.Background(), IssueInput{Identity: "  A@B.Com "}); err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if got := f.verify(t, "a@b.com", "483920"); !got.Verified {
		t.Fatalf("Verify() = %s, want verified", got)
	}
}

func TestIssue_InvalidIdentity(t *testing.T) {
	tests := []struct {
		name     string
		identity string
	}{
		{name: "empty", identity: ""},
		{name: "blank", identity: "   "},
		{name: "no separator", identity: "not-an-address"},
		{name: "too long", identity: strings.Repeat("a", 250) + "@b.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			f := newFixture(t, baseConfig, []string{"483920"})

			// Act
			out, err := f.uc.Issue(context.Background(), IssueInput{Identity: tt.identity})

			// Assert
			if out != nil {
				t.Fatalf("Issue() output = %+v, want nil", out)
			}
			if !goerror.HasCode(err, goerror.CodeInvalidIdentity) {
				t.Fatalf("Issue() error = %v, want invalid identity", err)
			}
			if f.store.Len() != 0 || len(f.notif.got) != 0 {
				t.Fatalf("nothing should be stored or sent")
			}
		})
	}
}

func TestIssue_StorageFailed(t *testing.T) {
	// Arrange
	f := newFixture(t, baseConfig, []string{"483920"}, func(d *Dependency) {
		d.Store = brokenStore{err: errBackend}
	})

	// Act
	_, err := f.uc.Issue(context.Background(), IssueInput{Identity: "a@b.com"})

	// Assert
	if !goerror.HasCode(err, goerror.CodeStorageFailed) {
		t.Fatalf("Issue() error = %v, want storage failed", err)
	}
	var ge *goerror.Error
	if !errors.As(err, &ge) || strings.Contains(ge.Msg(), "10.1.2.3") {
		t.Fatalf("user message must not leak backend detail: %v", err)
	}
	if len(f.notif.got) != 0 {
		t.Fatalf("nothing should be delivered when the write fails")
	}
}

func TestIssue_DeliveryFailedKeepsRecord(t *testing.T) {
	// Arrange
	f := newFixture(t, baseConfig, []string{"483920"})
	f.notif.err = errors.New("smtp: 421 service not available")

	// Act
	_, err := f.uc.Issue(context.Background(), IssueInput{Identity: "a@b.com"})

	// Assert
	if !goerror.HasCode(err, goerror.CodeDeliveryFailed) {
		t.Fatalf("Issue() error = %v, want delivery failed", err)
	}
	if goerror.HasCode(err, goerror.CodeStorageFailed) {
		t.Fatalf("delivery and storage failures must be distinguishable")
	}
	if got := f.verify(t, "a@b.com", "483920"); !got.Verified {
		t.Fatalf("record should survive a delivery failure, got %s", got)
	}
}

func TestIssue_StoreTimeout(t *testing.T) {
	// Arrange
	f := newFixture(t, baseConfig+"  store:\n    timeout_seconds: 1\n", []string{"483920"}, func(d *Dependency) {
		d.Store = blockingStore{}
	})
	start := time.Now()

	// Act
	_, err := f.uc.Issue(context.Background(), IssueInput{Identity: "a@b.com"})

	// Assert
	if !goerror.HasCode(err, goerror.CodeStorageFailed) {
		t.Fatalf("Issue() error = %v, want storage failed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Issue() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
		t.Fatalf("Issue() took %s, want about 1s", elapsed)
	}
	if len(f.notif.got) != 0 {
		t.Fatalf("nothing should be delivered when the write times out")
	}
}

func TestIssue_DeliveryTimeoutKeepsRecord(t *testing.T) {
	// Arrange
	f := newFixture(t, baseConfig+"  delivery:\n    timeout_seconds: 1\n", []string{"483920"}, func(d *Dependency) {
		d.Notifier = blockingNotifier{}
	})
	start := time.Now()

	// Act
	_, err := f.uc.Issue(context.Background(), IssueInput{Identity: "a@b.com"})

	// Assert
	if !goerror.HasCode(err, goerror.CodeDeliveryFailed) {
		t.Fatalf("Issue() error = %v, want delivery failed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Issue() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2500*time.Millisecond {
		t.Fatalf("Issue() took %s, want about 1s", elapsed)
	}
	if got := f.verify(t, "a@b.com", "483920"); !got.Verified {
		t.Fatalf("record should survive a delivery timeout, got %s", got)
	}
}

func TestIssue_CallerCancelDoesNotAbortDelivery(t *testing.T) {
	// Arrange
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, baseConfig, []string{"483920"})
	f.uc.store = cancelAfterPut{repoStore: f.store, cancel: cancel}

	// Act
	_, err := f.uc.Issue(ctx, IssueInput{Identity: "a@b.com"})

	// Assert
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if len(f.notif.ctxErrs) != 1 || f.notif.ctxErrs[0] != nil {
		t.Fatalf("notifier context errors = %v, want [nil]", f.notif.ctxErrs)
	}
	if got := f.verify(t, "a@b.com", "483920"); !got.Verified {
		t.Fatalf("Verify() = %s, want verified", got)
	}
}

func TestIssue_WithoutNotifier(t *testing.T) {
	f := newFixture(t, baseConfig, []string{"483920"}, func(d *Dependency) {
		d.Notifier = nil
	})

	out, err := f.uc.Issue(context.Background(), IssueInput{Identity: "a@b.com"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if out.Code != "483920" {
		t.Fatalf("Code = %q", out.Code)
	}
}

func TestIssue_GeneratorFailure(t *testing.T) {
	f := newFixture(t, baseConfig, []string{"483920"})
	f.gen.err = errors.New("entropy source closed")

	_, err := f.uc.Issue(context.Background(), IssueInput{Identity: "a@b.com"})
	if !goerror.HasCode(err, goerror.CodeInternal) {
		t.Fatalf("Issue() error = %v, want internal", err)
	}
	if f.store.Len() != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestIssue_CodeLengthFromConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want int
	}{
		{name: "configured", yaml: "otp:\n  code_length: 8\n", want: 8},
		{name: "unset", yaml: "otp:\n  ttl_minutes: 10\n", want: 6},
		{name: "too short", yaml: "otp:\n  code_length: 3\n", want: 6},
		{name: "too long", yaml: "otp:\n  code_length: 11\n", want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.yaml, []string{"12345678"})

			if _, err := f.uc.Issue(context.Background(), IssueInput{Identity: "a@b.com"}); err != nil {
				t.Fatalf("Issue() error = %v", err)
			}
			if len(f.gen.lengths) != 1 || f.gen.lengths[0] != tt.want {
				t.Fatalf("generator lengths = %v, want [%d]", f.gen.lengths, tt.want)
			}
		})
	}
}

func TestIssue_DefaultTTL(t *testing.T) {
	f := newFixture(t, "otp:\n  code_length: 6\n", []string{"483920"})

	out, err := f.uc.Issue(context.Background(), IssueInput{Identity: "a@b.com"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if out.ExpiresIn != 10*time.Minute {
		t.Fatalf("ExpiresIn = %s, want 10m", out.ExpiresIn)
	}
}
