package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/ledger"
	"github.com/pgx404/RegretMarket/internal/observability"
)

// Subject prefixes of inbound streams.
const (
	SubjectCommands = "regret.commands"
	SubjectPrices   = "regret.prices"
	SubjectFunding  = "regret.funding"
)

// RawMessage is an inbound NATS message waiting to be applied.
type RawMessage struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after it is handled
	NakFunc   func() // Call to NAK on a transient failure (will be redelivered)
}

// SubjectConfig binds a durable consumer to a subject filter.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard consumer layout: commands, prices
// and funding each get their own stream.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: SubjectCommands + ".>", ConsumerName: "regret-commands", StreamName: "REGRET_COMMANDS"},
		{Subject: SubjectPrices + ".>", ConsumerName: "regret-prices", StreamName: "REGRET_PRICES"},
		{Subject: SubjectFunding + ".>", ConsumerName: "regret-funding", StreamName: "REGRET_FUNDING"},
	}
}

// NATSSubscriber consumes JetStream subjects into a channel drained by Run.
type NATSSubscriber struct {
	js        jetstream.JetStream
	msgChan   chan RawMessage
	consumers []jetstream.ConsumeContext
	service   *IngestService
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewNATSSubscriber(js jetstream.JetStream, service *IngestService, buffer int, metrics *observability.Metrics, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		msgChan: make(chan RawMessage, buffer),
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawMessage{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.msgChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.logger.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// Run applies queued messages in arrival order until ctx is cancelled.
func (ns *NATSSubscriber) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw := <-ns.msgChan:
			ns.Dispatch(ctx, raw)
		}
	}
}

// Dispatch handles one message and settles it. Messages the protocol
// rejected, or that cannot be parsed, are acked so they are not
// redelivered; only failures without an error code are nak'ed.
func (ns *NATSSubscriber) Dispatch(ctx context.Context, raw RawMessage) {
	kind, err := ns.handle(ctx, raw)

	result := "ok"
	switch {
	case err == nil:
	case retryable(err):
		result = "retry"
		ns.logger.Error().Err(err).Str("subject", raw.Subject).Msg("message failed, will be redelivered")
	default:
		result = "rejected"
		ns.logger.Warn().Err(err).
			Str("subject", raw.Subject).
			Str("code", errcode.From(err).String()).
			Msg("message rejected")
	}

	if ns.metrics != nil {
		ns.metrics.IngestMessages.WithLabelValues(kind, result).Inc()
	}

	if result == "retry" {
		if raw.NakFunc != nil {
			raw.NakFunc()
		}
		return
	}
	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}

func (ns *NATSSubscriber) handle(ctx context.Context, raw RawMessage) (string, error) {
	switch {
	case strings.HasPrefix(raw.Subject, SubjectPrices+"."):
		data, err := ParsePrice(raw.Data)
		if err != nil {
			return "price", err
		}
		ns.service.UpdatePrice(data)
		return "price", nil

	case strings.HasPrefix(raw.Subject, SubjectFunding+"."):
		snap, requestID, err := ParseFunding(raw.Data)
		if err != nil {
			return "funding", err
		}
		_, err = ns.service.StoreFunding(ctx, requestID, snap)
		return "funding", err

	case strings.HasPrefix(raw.Subject, SubjectCommands+"."):
		cmd, err := ParseCommand(opFromSubject(raw.Subject), raw.Data)
		if err != nil {
			return "command", err
		}
		_, err = ns.service.Execute(ctx, cmd)
		return "command", err

	default:
		return "unknown", fmt.Errorf("unrouted subject %q: %w", raw.Subject, errcode.InvalidInput)
	}
}

// retryable reports failures that carry no protocol error code: storage
// outages, timeouts, cancelled contexts.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, ledger.ErrUnbalanced) {
		return false
	}
	return errcode.From(err) == errcode.Unknown
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	for _, cfg := range DefaultSubjects() {
		stream := jetstream.StreamConfig{
			Name:      cfg.StreamName,
			Subjects:  []string{cfg.Subject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		}
		if _, err := js.CreateOrUpdateStream(ctx, stream); err != nil {
			return fmt.Errorf("create stream %s: %w", stream.Name, err)
		}
		logger.Info().Str("stream", stream.Name).Msg("ensured stream")
	}
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.logger.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("regretd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
