package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type (
	// VerifyInput only checks presence and length of Code; a code of the
	// wrong shape is compared like any other and fails as a mismatch.
	VerifyInput struct {
		Identity string `validate:"required,max=254"`
		Code     string `validate:"required,max=32"`
	}

	VerifyOutput struct {
		Outcome entity.Outcome
		// GrantToken is set only on success when grants are enabled.
		GrantToken string
	}
)

// Verify checks code against the pending record of identity. Verification
// failures are returned as an Outcome; the error is reserved for malformed
// input and store failures.
func (s *Usecase) Verify(ctx context.Context, in VerifyInput) (*VerifyOutput, error) {
	ctx, span := s.startSpan(ctx, "Verify")
	defer span.End()

	outcome := "error"
	defer func() {
		if s.verified != nil {
			s.verified.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
		}
	}()

	in.Identity = normalizeIdentity(in.Identity)
	if err := s.validator.Validate(in); err != nil {
		outcome = "invalid_input"
		return nil, goerror.NewInvalidFormat("identity and code are required")
	}

	failed := func(r entity.Reason) (*VerifyOutput, error) {
		out := entity.Failed(r)
		outcome = out.String()
		return &VerifyOutput{Outcome: out}, nil
	}

	sctx, cancel := s.storeCtx(ctx)
	rec, err := s.store.Get(sctx, in.Identity)
	cancel()
	if errors.Is(err, goerror.ErrNotFound) {
		return failed(entity.ReasonNotFound)
	}
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to get otp record", "identity", in.Identity, "error", err)
		return nil, goerror.NewStorage(err)
	}
	if rec.Consumed {
		return failed(entity.ReasonNotFound)
	}

	if rec.ExpiredAt(s.clock.Now()) {
		// only the expired issue goes; a code issued since Get stays
		sctx, cancel := s.storeCtx(ctx)
		_, err := s.store.InvalidateIf(sctx, *rec)
		cancel()
		if err != nil {
			slog.WarnContext(ctx, "failed to invalidate expired otp record", "identity", in.Identity, "error", err)
		}
		return failed(entity.ReasonExpired)
	}

	if !s.hmac.Verify(rec.CodeDigest, in.Code) {
		return failed(entity.ReasonMismatch)
	}

	sctx, cancel = s.storeCtx(ctx)
	ok, err := s.store.Consume(sctx, *rec)
	cancel()
	if err != nil {
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to consume otp record", "identity", in.Identity, "error", err)
		return nil, goerror.NewStorage(err)
	}
	if !ok {
		// a concurrent verify or a newer issue got there first
		return failed(entity.ReasonNotFound)
	}

	out := &VerifyOutput{Outcome: entity.Verified()}
	outcome = out.Outcome.String()

	if s.grant != nil {
		token, err := s.grant.Generate(in.Identity)
		if err != nil {
			// the code is spent either way; the caller can still see it verified
			slog.ErrorContext(ctx, "failed to generate file grant", "identity", in.Identity, "error", err)
		} else {
			out.GrantToken = token
		}
	}

	return out, nil
}
