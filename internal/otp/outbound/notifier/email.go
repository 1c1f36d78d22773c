package notifier

import (
	"context"
	"fmt"
	"math"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"go.opentelemetry.io/otel/codes"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "Your File Verification OTP"

// Email mails the code straight to the identity.
type Email struct {
	client  mail.Mail
	from    string
	subject string
	ins     instrument.Instrumentation
}

// NewEmail sends from the given sender address. The mail driver's default
// sender applies when from is empty.
func NewEmail(client mail.Mail, from, subject string, ins instrument.Instrumentation) *Email {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Email{client: client, from: from, subject: subject, ins: ins}
}

func (e *Email) Notify(ctx context.Context, d entity.Delivery) error {
	ctx, span := e.ins.Tracer("otp.outbound.notifier").Start(ctx, "Email.Notify")
	defer span.End()

	if err := e.client.Send(ctx, mail.Message{
		From:     e.from,
		To:       []string{d.Identity},
		Subject:  e.subject,
		TextBody: RenderText(d),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return err
	}

	return nil
}

// RenderText is the plain-text body of an OTP mail.
func RenderText(d entity.Delivery) string {
	return fmt.Sprintf("Your OTP for file verification is: %s\n\nThis OTP will expire in %d minutes.", d.Code, ttlMinutes(d))
}

// ttlMinutes rounds the remaining lifetime up to whole minutes.
func ttlMinutes(d entity.Delivery) int {
	return int(math.Ceil(d.TTL.Minutes()))
}
