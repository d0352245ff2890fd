// Package messaging publishes alerts and sequences to NATS.
package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/Capitan-Parrot/clever-camera/internal/notify"
)

type Options struct {
	URL           string
	Subject       string
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

type Service struct {
	conn    *nats.Conn
	subject string
}

func NewService(opts Options) (*Service, error) {
	natsOpts := []nats.Option{
		nats.Name("clever-camera"),
		nats.Timeout(opts.Timeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
	}

	conn, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, err
	}

	log.Info().Str("url", opts.URL).Msg("NATS connection established")

	return &Service{
		conn:    conn,
		subject: opts.Subject,
	}, nil
}

func (s *Service) Publish(subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return s.conn.Publish(subject, payload)
}

// Send publishes the alert as JSON on the configured subject.
func (s *Service) Send(ctx context.Context, alert notify.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Publish(s.subject, alert)
}

func (s *Service) Name() string {
	return "nats"
}

func (s *Service) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *Service) Shutdown(ctx context.Context) error {
	if s.conn != nil {
		// Try graceful drain, fallback to immediate close
		if err := s.conn.Drain(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain NATS connection gracefully, closing immediately")
			s.conn.Close()
		}
	}
	return nil
}
