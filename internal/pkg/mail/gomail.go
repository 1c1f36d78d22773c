package mail

import (
	"context"

	"gopkg.in/gomail.v2"
)

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Gomail is a Mail implementation backed by gopkg.in/gomail.v2.
type Gomail struct {
	dialer      sender
	defaultFrom string
}

// NewGomail constructs a gomail based sender. A new connection is dialed per
// message.
func NewGomail(cfg Config) (*Gomail, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, ErrSMTPHostPortRequired
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SSL {
		d.SSL = true
	}

	return &Gomail{dialer: d, defaultFrom: cfg.From}, nil
}

// Send delivers msg. Bcc recipients are passed in the envelope only.
func (g *Gomail) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from, _, err := envelope(msg, g.defaultFrom)
	if err != nil {
		return err
	}

	return g.dialer.DialAndSend(buildGomailMessage(from, msg))
}

// Close implements io.Closer for interface compatibility.
func (g *Gomail) Close() error {
	return nil
}

func buildGomailMessage(from string, msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	if len(msg.To) > 0 {
		m.SetHeader("To", msg.To...)
	}
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", msg.Cc...)
	}
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", msg.Bcc...)
	}
	m.SetHeader("Subject", msg.Subject)

	switch {
	case msg.TextBody != "" && msg.HTMLBody != "":
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	case msg.HTMLBody != "":
		m.SetBody("text/html", msg.HTMLBody)
	default:
		m.SetBody("text/plain", msg.TextBody)
	}

	return m
}
