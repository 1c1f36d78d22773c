package event

import "time"

const (
	OTPIssuedDestination          string = "otp_issued"
	OTPIssuedConsumerNotification string = "otp_issued_notification"

	// HeaderCorrelationID carries the correlation id of the publishing request.
	HeaderCorrelationID string = "cID"
)

// OTPIssuedMessage asks the notification worker to deliver a fresh code.
// The payload holds the plain code, so the topic must stay internal.
type OTPIssuedMessage struct {
	EventID       int64     `json:"event_id"`
	Identity      string    `json:"identity"`
	Code          string    `json:"code"`
	ExpiresAt     time.Time `json:"expires_at"`
	TTLMinutes    int       `json:"ttl_minutes"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}
