package notify

import (
	"context"

	"gopkg.in/gomail.v2"
)

type EmailOptions struct {
	Host     string
	Port     int
	From     string
	Password string
	To       string
}

// EmailSender delivers alerts over SMTP with the images attached.
type EmailSender struct {
	opts EmailOptions
}

func NewEmailSender(opts EmailOptions) *EmailSender {
	return &EmailSender{opts: opts}
}

func (e *EmailSender) Name() string {
	return "email"
}

func (e *EmailSender) message(alert Alert) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", e.opts.From)
	m.SetHeader("To", e.opts.To)
	m.SetHeader("Subject", alert.Subject)
	m.SetBody("text/plain", alert.Body)
	for _, path := range alert.Attachments {
		m.Attach(path)
	}
	return m
}

func (e *EmailSender) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := gomail.NewDialer(e.opts.Host, e.opts.Port, e.opts.From, e.opts.Password)
	return d.DialAndSend(e.message(alert))
}
