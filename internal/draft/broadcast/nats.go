package broadcast

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection settings for the bus sink.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns the default bus sink configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "herodraft.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSSink publishes sequenced envelopes to the message bus so services
// outside this process (tournament pages, spectator overlays) can follow
// drafts without a socket to the gateway.
type NATSSink struct {
	nc     *nats.Conn
	prefix string
}

func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Deliver publishes the payload under <prefix>.<channel> with the channel's
// colon separator mapped to the subject hierarchy.
func (s *NATSSink) Deliver(channel string, payload []byte) error {
	subject := s.prefix + "." + strings.ReplaceAll(channel, ":", ".")
	if err := s.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSSink) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}
