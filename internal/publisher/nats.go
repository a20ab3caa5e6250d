// Package publisher delivers cycle results: the summary goes to four
// retained NATS subjects and loggable sightings go to the history store.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// ConnectOptions configures the broker connection
type ConnectOptions struct {
	URL           string
	ClientName    string
	ReconnectWait time.Duration
}

// Connect dials the broker. The client reconnects forever in the background;
// connection state changes are logged and never reach the scheduler.
func Connect(opts ConnectOptions, logger zerolog.Logger) (*nats.Conn, error) {
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}

	natsOpts := []nats.Option{
		nats.Name(opts.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(opts.ReconnectWait),
		// Start even if the broker is down; publishes fail until it is back
		nats.RetryOnFailedConnect(true),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("NATS error")
		}),
		nats.ConnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(opts.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return nc, nil
}

// jetStream is the subset of jetstream.JetStream the publisher uses
type jetStream interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

var _ jetStream = (jetstream.JetStream)(nil)

// StreamConfig returns the last-value stream holding the summary subjects.
// Keeping one message per subject makes every subject behave like a
// retained value: a new consumer with DeliverLastPerSubject sees the
// current state immediately.
func StreamConfig(name string, subjects []string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              name,
		Description:       "presence summary (last value per subject)",
		Subjects:          subjects,
		MaxMsgsPerSubject: 1,
		Discard:           jetstream.DiscardOld,
		Storage:           jetstream.FileStorage,
		Retention:         jetstream.LimitsPolicy,
	}
}

// ensureStream creates or updates the summary stream
func ensureStream(ctx context.Context, js jetStream, name string, subjects []string) error {
	if name == "" {
		return errors.New("stream name is required")
	}
	if _, err := js.CreateOrUpdateStream(ctx, StreamConfig(name, subjects)); err != nil {
		return fmt.Errorf("failed to create or update stream %s: %w", name, err)
	}
	return nil
}
