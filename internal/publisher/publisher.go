package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"presenced/internal/domain"
)

// Topics names the four summary subjects
type Topics struct {
	SpaceStatus string
	DeviceCount string
	MemberCount string
	MemberNames string
}

func (t Topics) all() []string {
	return []string{t.SpaceStatus, t.DeviceCount, t.MemberCount, t.MemberNames}
}

// Publisher sends cycle summaries to the retained subjects
type Publisher struct {
	js      jetStream
	stream  string
	topics  Topics
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	ensured bool
}

// New creates a publisher on js. The stream is created on first use so the
// process can start while the broker is unavailable.
func New(js jetstream.JetStream, stream string, topics Topics, timeout time.Duration, logger zerolog.Logger) *Publisher {
	return newPublisher(js, stream, topics, timeout, logger)
}

func newPublisher(js jetStream, stream string, topics Topics, timeout time.Duration, logger zerolog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{
		js:      js,
		stream:  stream,
		topics:  topics,
		timeout: timeout,
		logger:  logger,
	}
}

// EnsureStream creates or updates the summary stream if that has not
// succeeded yet
func (p *Publisher) EnsureStream(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ensured {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := ensureStream(ctx, p.js, p.stream, p.topics.all()); err != nil {
		return err
	}

	p.ensured = true
	p.logger.Info().Str("stream", p.stream).Strs("subjects", p.topics.all()).Msg("summary stream ready")
	return nil
}

// Publish sends the four summary values. Each subject is published
// independently; failures are logged per topic and joined in the result.
func (p *Publisher) Publish(ctx context.Context, result domain.AggregationResult) error {
	if err := p.EnsureStream(ctx); err != nil {
		// Publishing may still succeed if the stream exists already
		p.logger.Warn().Err(err).Str("stream", p.stream).Msg("could not ensure summary stream")
	}

	messages := []struct {
		topic   string
		payload string
	}{
		{p.topics.SpaceStatus, result.SpaceStatus()},
		{p.topics.DeviceCount, result.DeviceCountPayload()},
		{p.topics.MemberCount, result.MemberCountPayload()},
		{p.topics.MemberNames, result.MemberNamesPayload()},
	}

	var errs []error
	for _, msg := range messages {
		if err := p.publishOne(ctx, msg.topic, msg.payload); err != nil {
			p.logger.Error().Err(err).Str("topic", msg.topic).Msg("failed to publish summary value")
			errs = append(errs, fmt.Errorf("%s: %w", msg.topic, err))
		}
	}

	return errors.Join(errs...)
}

func (p *Publisher) publishOne(ctx context.Context, topic, payload string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ack, err := p.js.Publish(ctx, topic, []byte(payload), jetstream.WithExpectStream(p.stream))
	if err != nil {
		return err
	}

	p.logger.Debug().
		Str("topic", topic).
		Str("payload", payload).
		Uint64("seq", ack.Sequence).
		Msg("published summary value")
	return nil
}
