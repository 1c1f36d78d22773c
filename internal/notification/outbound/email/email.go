// Package email adapts a mail driver to the notification usecase, adding a
// span and a delivery counter around every send. Message bodies never reach
// spans or logs.
package email

import (
	"context"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const scope = "notification.outbound.email"

// Mail sends notification emails through the configured driver.
type Mail struct {
	client mail.Mail
	ins    instrument.Instrumentation
	sent   metric.Int64Counter
}

func New(client mail.Mail, ins instrument.Instrumentation) *Mail {
	m := &Mail{client: client, ins: ins}

	sent, err := ins.Meter(scope).Int64Counter("notification.email.sent",
		metric.WithDescription("Number of notification emails handed to the mail driver by result"))
	if err != nil {
		slog.Warn("failed to create notification.email.sent counter", "error", err)
	} else {
		m.sent = sent
	}

	return m
}

// Send hands msg to the driver. The driver error is returned unchanged so the
// caller can decide between retry and drop.
func (m *Mail) Send(ctx context.Context, msg mail.Message) error {
	ctx, span := m.ins.Tracer(scope).Start(ctx, "Send")
	defer span.End()

	span.SetAttributes(attribute.Int("mail.recipients", len(msg.To)+len(msg.Cc)+len(msg.Bcc)))

	err := m.client.Send(ctx, msg)
	m.count(ctx, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mail send failed")
		return err
	}

	return nil
}

func (m *Mail) count(ctx context.Context, err error) {
	if m.sent == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
