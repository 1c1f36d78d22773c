package otp

import (
	"context"
	"errors"

	"github.com/shandysiswandi/otpgate/internal/otp/entity"
	"github.com/shandysiswandi/otpgate/internal/otp/inbound"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/notifier"
	"github.com/shandysiswandi/otpgate/internal/otp/outbound/store"
	"github.com/shandysiswandi/otpgate/internal/otp/usecase"
	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/hash"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/jwt"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/messaging"
	otpgen "github.com/shandysiswandi/otpgate/internal/pkg/otp"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
	"github.com/shandysiswandi/otpgate/internal/pkg/uid"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
)

var (
	// ErrMailRequired is returned for direct delivery without a mail client.
	ErrMailRequired = errors.New("otp: direct delivery requires a mail client")
	// ErrMessagingRequired is returned for queued delivery without a broker.
	ErrMessagingRequired = errors.New("otp: queue delivery requires a messaging client")
)

// Dependency lists what the module needs. Mail or Messaging is required
// depending on otp.delivery.mode; Grant is set only when file release is on.
type Dependency struct {
	Router     *router.Router             `validate:"required"`
	Store      store.Store                `validate:"required"`
	Generator  otpgen.Generator           `validate:"required"`
	HMAC       hash.Hash                  `validate:"required"`
	Clock      clock.Clocker              `validate:"required"`
	UID        uid.NumberID               `validate:"required"`
	Validator  validator.Validator        `validate:"required"`
	Config     config.Config              `validate:"required"`
	Instrument instrument.Instrumentation `validate:"required"`
	Mail       mail.Mail
	Messaging  messaging.Messaging
	Grant      jwt.JWT
}

type deliverer interface {
	Notify(ctx context.Context, d entity.Delivery) error
}

func New(dep Dependency) error {
	if err := dep.Validator.Validate(dep); err != nil {
		return err
	}

	n, err := newDeliverer(dep)
	if err != nil {
		return err
	}

	uc := usecase.New(usecase.Dependency{
		Store:      dep.Store,
		Notifier:   n,
		Generator:  dep.Generator,
		HMAC:       dep.HMAC,
		Clock:      dep.Clock,
		Validator:  dep.Validator,
		Config:     dep.Config,
		Grant:      dep.Grant,
		Instrument: dep.Instrument,
	})

	inbound.RegisterHTTPEndpoint(dep.Router, uc)

	return nil
}

// newDeliverer returns a nil interface for mode none.
func newDeliverer(dep Dependency) (deliverer, error) {
	mode, err := notifier.ParseMode(dep.Config.GetString("otp.delivery.mode"))
	if err != nil {
		return nil, err
	}

	switch mode {
	case notifier.ModeQueue:
		if dep.Messaging == nil {
			return nil, ErrMessagingRequired
		}
		return notifier.NewQueue(dep.Messaging, dep.UID, dep.Instrument), nil
	case notifier.ModeNone:
		return nil, nil
	default:
		if dep.Mail == nil {
			return nil, ErrMailRequired
		}
		return notifier.NewEmail(
			dep.Mail,
			dep.Config.GetString("otp.sender_identity"),
			dep.Config.GetString("otp.email.subject"),
			dep.Instrument,
		), nil
	}
}
