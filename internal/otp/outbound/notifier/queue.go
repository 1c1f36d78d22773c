package notifier

import (
	"context"
	"encoding/json"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/shared/event"
	"go.opentelemetry.io/otel/codes"
)

// Queue publishes an otp_issued event; the notification worker does the
// actual sending.
type Queue struct {
	client messaging.Publisher
	uid    uid.NumberID
	ins    instrument.Instrumentation
}

func NewQueue(client messaging.Publisher, id uid.NumberID, ins instrument.Instrumentation) *Queue {
	return &Queue{client: client, uid: id, ins: ins}
}

func (q *Queue) Notify(ctx context.Context, d entity.Delivery) error {
	ctx, span := q.ins.Tracer("otp.outbound.notifier").Start(ctx, "Queue.Notify")
	defer span.End()

	cID := instrument.GetCorrelationID(ctx)
	body, err := json.Marshal(event.OTPIssuedMessage{
		EventID:       q.uid.Generate(),
		Identity:      d.Identity,
		Code:          d.Code,
		ExpiresAt:     d.ExpiresAt,
		TTLMinutes:    ttlMinutes(d),
		CorrelationID: cID,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if _, err := q.client.Publish(ctx, event.OTPIssuedDestination, messaging.OutgoingMessage{
		Body:    body,
		Key:     []byte(d.Identity),
		Headers: map[string]string{event.HeaderCorrelationID: cID},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}
