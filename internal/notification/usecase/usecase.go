package usecase

import (
	"bytes"
	"context"
	"embed"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/shandysiswandi/otpgate/internal/pkg/clock"
	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/idempotency"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"github.com/shandysiswandi/otpgate/internal/pkg/mail"
	"github.com/shandysiswandi/otpgate/internal/pkg/validator"
	"go.opentelemetry.io/otel/trace"
)

//go:embed templates/*
var templateFS embed.FS

const defaultSubject = "Your File Verification OTP"

type repoMail interface {
	Send(ctx context.Context, msg mail.Message) error
}

type Usecase struct {
	repoMail  repoMail
	idemp     idempotency.Idempotency
	cfg       config.Config
	clock     clock.Clocker
	validator validator.Validator
	ins       instrument.Instrumentation

	textTpl *texttemplate.Template
	htmlTpl *htmltemplate.Template
}

type Dependency struct {
	RepoMail    repoMail
	Idempotency idempotency.Idempotency
	Config      config.Config
	Clock       clock.Clocker
	Validator   validator.Validator
	Instrument  instrument.Instrumentation
}

// NewNotification parses the embedded templates once; a parse failure is a
// build defect and is returned so startup aborts.
func NewNotification(dep Dependency) (*Usecase, error) {
	textTpl, err := texttemplate.New("otp_issued.txt").Option("missingkey=zero").
		ParseFS(templateFS, "templates/otp_issued.txt")
	if err != nil {
		return nil, err
	}
	htmlTpl, err := htmltemplate.New("otp_issued.html").Option("missingkey=zero").
		ParseFS(templateFS, "templates/otp_issued.html")
	if err != nil {
		return nil, err
	}

	return &Usecase{
		repoMail:  dep.RepoMail,
		idemp:     dep.Idempotency,
		cfg:       dep.Config,
		clock:     dep.Clock,
		validator: dep.Validator,
		ins:       dep.Instrument,
		textTpl:   textTpl,
		htmlTpl:   htmlTpl,
	}, nil
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("notification.usecase").Start(ctx, name)
}

func (s *Usecase) subject() string {
	if v := s.cfg.GetString("otp.email.subject"); v != "" {
		return v
	}
	return defaultSubject
}

func (s *Usecase) render(data map[string]any) (text, html string, err error) {
	var tb, hb bytes.Buffer
	if err := s.textTpl.Execute(&tb, data); err != nil {
		return "", "", err
	}
	if err := s.htmlTpl.Execute(&hb, data); err != nil {
		return "", "", err
	}
	return tb.String(), hb.String(), nil
}
