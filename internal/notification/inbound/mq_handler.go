package inbound

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/shandysiswandi/otpgate/internal/notification/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
)

type MQHandler struct {
	uc   uc
	uuid uid.StringID
	ins  instrument.Instrumentation
}

// ensureCorrelationID prefers the header, then the payload, then a new id.
func (h *MQHandler) ensureCorrelationID(ctx context.Context, msg messaging.Message, fromPayload string) context.Context {
	if cID := msg.Header(event.HeaderCorrelationID); cID != "" {
		return instrument.SetCorrelationID(ctx, cID)
	}
	if fromPayload != "" {
		return instrument.SetCorrelationID(ctx, fromPayload)
	}
	return instrument.SetCorrelationID(ctx, h.uuid.Generate())
}

// OTPIssuedNotification never logs the body: it carries the plain code.
func (h *MQHandler) OTPIssuedNotification(ctx context.Context, msg messaging.Message) error {
	var payload event.OTPIssuedMessage
	perr := json.Unmarshal(msg.Body(), &payload)

	ctx = h.ensureCorrelationID(ctx, msg, payload.CorrelationID)

	ctx, span := h.ins.Tracer("notification.inbound.mq").Start(ctx, "OTPIssuedNotification")
	defer span.End()

	if perr != nil {
		slog.ErrorContext(ctx, "failed to parse message body of otp issued notification", "msg_id", msg.ID(), "error", perr)
		return nil
	}

	slog.InfoContext(ctx, "consume: otp issued notification", "msg_id", msg.ID(), "event_id", payload.EventID)

	if err := h.uc.ConsumeOTPIssued(ctx, usecase.ConsumeOTPIssuedInput{
		EventID:    payload.EventID,
		Identity:   payload.Identity,
		Code:       payload.Code,
		ExpiresAt:  payload.ExpiresAt,
		TTLMinutes: payload.TTLMinutes,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to consume otp issued", "event_id", payload.EventID, "error", err)
		return err
	}

	return nil
}
