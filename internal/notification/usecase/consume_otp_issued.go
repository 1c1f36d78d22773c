package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
)

type (
	ConsumeOTPIssuedInput struct {
		EventID    int64     `validate:"required,gt=0"`
		Identity   string    `validate:"required,email"`
		Code       string    `validate:"required,digits"`
		ExpiresAt  time.Time `validate:"required"`
		TTLMinutes int       `validate:"gte=0"`
	}
)

// ConsumeOTPIssued mails the code of an otp_issued event. Invalid and expired
// events are dropped; a redelivered event is sent at most once.
func (s *Usecase) ConsumeOTPIssued(ctx context.Context, in ConsumeOTPIssuedInput) error {
	ctx, span := s.startSpan(ctx, "ConsumeOTPIssued")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.ErrorContext(ctx, "Validation failed", "event_id", in.EventID, "error", err)
		return nil
	}

	if !s.clock.Now().Before(in.ExpiresAt) {
		slog.WarnContext(ctx, "skip expired otp issued event", "event_id", in.EventID, "identity", in.Identity)
		return nil
	}

	text, html, err := s.render(map[string]any{
		"code":        in.Code,
		"ttl_minutes": in.TTLMinutes,
		"subject":     s.subject(),
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to render otp email", "event_id", in.EventID, "error", err)
		return nil
	}

	msg := mail.Message{
		From:     s.cfg.GetString("otp.sender_identity"),
		To:       []string{in.Identity},
		Subject:  s.subject(),
		TextBody: text,
		HTMLBody: html,
	}

	key := "notification:otp_issued:" + strconv.FormatInt(in.EventID, 10)
	err = s.idemp.Exec(ctx, key, func(ctx context.Context) error {
		return s.repoMail.Send(ctx, msg)
	},
		idempotency.WithReleaseOnError(),
		idempotency.WithStateTTL(in.ExpiresAt.Sub(s.clock.Now())+time.Minute),
	)
	switch {
	case errors.Is(err, idempotency.ErrAlreadyCompleted), errors.Is(err, idempotency.ErrAlreadyInProgress):
		slog.InfoContext(ctx, "otp issued event already handled", "event_id", in.EventID)
		return nil
	case err != nil:
		slog.ErrorContext(ctx, "failed to send otp email", "event_id", in.EventID, "identity", in.Identity, "error", err)
		return err
	}

	return nil
}
