package app

import (
	"log/slog"
	"os"

	"github.com/shandysiswandi/otpgate/internal/file"
	"github.com/shandysiswandi/otpgate/internal/notification"
	"github.com/shandysiswandi/otpgate/internal/otp"
)

func (a *App) initModules() {
	if err := otp.New(otp.Dependency{
		Router:     a.router,
		Store:      a.otpStore,
		Generator:  a.generator,
		HMAC:       a.hmac,
		Clock:      a.clock,
		UID:        a.uid,
		Validator:  a.validator,
		Config:     a.config,
		Instrument: a.ins,
		Mail:       a.mail,
		Messaging:  a.messaging,
		Grant:      a.grant,
	}); err != nil {
		slog.Error("failed to init module otp", "error", err)
		os.Exit(1)
	}

	if a.config.GetBool("modules.notification.enabled") {
		if err := notification.New(notification.Dependency{
			Ctx:         a.ctx,
			Config:      a.config,
			Instrument:  a.ins,
			UUID:        a.uuid,
			Clock:       a.clock,
			Goroutine:   a.goroutine,
			Validator:   a.validator,
			Idempotency: a.idemp,
			Messaging:   a.messaging,
			Mail:        a.mail,
		}); err != nil {
			slog.Error("failed to init module notification", "error", err)
			os.Exit(1)
		}
	}

	if a.config.GetBool("modules.file.enabled") {
		if err := file.New(file.Dependency{
			Router:      a.router,
			Storage:     a.storage,
			Idempotency: a.idemp,
			Grant:       a.grant,
			Config:      a.config,
			Validator:   a.validator,
			UUID:        a.uuid,
			Clock:       a.clock,
			Instrument:  a.ins,
		}); err != nil {
			slog.Error("failed to init module file", "error", err)
			os.Exit(1)
		}
	}
}
