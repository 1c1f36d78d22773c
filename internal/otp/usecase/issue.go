package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type (
	IssueInput struct {
		Identity string `validate:"required,max=254,email"`
	}

	// IssueOutput carries the fresh code back to in-process callers. It must
	// never be written to a client.
	IssueOutput struct {
		Code      string
		ExpiresAt time.Time
		ExpiresIn time.Duration
	}
)

func (s *Usecase) Issue(ctx context.Context, in IssueInput) (*IssueOutput, error) {
	ctx, span := s.startSpan(ctx, "Issue")
	defer span.End()

	result := "ok"
	defer func() {
		if s.issued != nil {
			s.issued.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
		}
	}()

	in.Identity = normalizeIdentity(in.Identity)
	if err := s.validator.Validate(in); err != nil {
		result = "invalid_identity"
		return nil, goerror.NewBusiness("invalid identity", goerror.CodeInvalidIdentity)
	}

	code, err := s.generator.Generate(s.codeLength(ctx))
	if err != nil {
		result = "error"
		slog.ErrorContext(ctx, "failed to generate otp code", "error", err)
		return nil, goerror.NewServer(err)
	}

	digest, err := s.hmac.Hash(code)
	if err != nil {
		result = "error"
		slog.ErrorContext(ctx, "failed to hash otp code", "error", err)
		return nil, goerror.NewServer(err)
	}

	ttl := s.ttl()
	now := s.clock.Now()
	rec := entity.Record{
		Identity:   in.Identity,
		CodeDigest: string(digest),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	sctx, cancel := s.storeCtx(ctx)
	err = s.store.Put(sctx, rec)
	cancel()
	if err != nil {
		result = "storage_failed"
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to store otp record", "identity", in.Identity, "error", err)
		return nil, goerror.NewStorage(err)
	}

	out := &IssueOutput{Code: code, ExpiresAt: rec.ExpiresAt, ExpiresIn: ttl}
	if s.notifier == nil {
		return out, nil
	}

	// the record is already valid; a caller going away must not abort delivery
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.deliveryTimeout())
	defer cancel()

	if err := s.notifier.Notify(nctx, entity.Delivery{
		Identity:  rec.Identity,
		Code:      code,
		ExpiresAt: rec.ExpiresAt,
		TTL:       ttl,
	}); err != nil {
		result = "delivery_failed"
		span.RecordError(err)
		slog.ErrorContext(ctx, "failed to deliver otp code", "identity", in.Identity, "error", err)
		return nil, goerror.NewDelivery(err)
	}

	return out, nil
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
