package ingestion

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/pgx404/RegretMarket/internal/event"
	"github.com/pgx404/RegretMarket/internal/observability"
)

const outboundStream = "REGRET_EVENTS"

// Publisher is the subset of jetstream.JetStream the outbound publisher
// needs.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// OutboundPublisher publishes committed envelopes to NATS for downstream
// consumers. Subjects follow regret.events.{event_type}.
type OutboundPublisher struct {
	js        Publisher
	inputChan <-chan event.Envelope
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// OutboundEvent is the wire form of an envelope. Hashes are hex encoded.
type OutboundEvent struct {
	Sequence  uint64          `json:"sequence"`
	RequestID string          `json:"request_id,omitempty"`
	EventType string          `json:"event_type"`
	MarketID  *string         `json:"market_id,omitempty"`
	Tick      uint64          `json:"tick"`
	Payload   json.RawMessage `json:"payload"`
	StateHash string          `json:"state_hash"`
	PrevHash  string          `json:"prev_hash"`
}

func NewOutboundPublisher(js Publisher, inputChan <-chan event.Envelope, metrics *observability.Metrics, logger zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case env, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.Publish(ctx, env); err != nil {
				// Downstream consumers can read the event log directly.
				op.logger.Warn().Err(err).Uint64("sequence", env.Sequence).Msg("outbound publish failed")
				if op.metrics != nil {
					op.metrics.PublishErrors.Inc()
				}
			}
		}
	}
}

// Publish sends one envelope. The sequence doubles as the JetStream
// message id so a retried publish is deduplicated by the server.
func (op *OutboundPublisher) Publish(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(ToOutbound(env))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = op.js.Publish(ctx, env.Subject(), data, jetstream.WithMsgID(strconv.FormatUint(env.Sequence, 10)))
	return err
}

func ToOutbound(env event.Envelope) OutboundEvent {
	return OutboundEvent{
		Sequence:  env.Sequence,
		RequestID: env.RequestID,
		EventType: env.EventType.String(),
		MarketID:  env.MarketID,
		Tick:      env.Tick,
		Payload:   env.Payload,
		StateHash: hex.EncodeToString(env.StateHash[:]),
		PrevHash:  hex.EncodeToString(env.PrevHash[:]),
	}
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       outboundStream,
		Subjects:   []string{"regret.events.>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 2 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	logger.Info().Str("stream", outboundStream).Msg("ensured outbound stream")
	return nil
}
