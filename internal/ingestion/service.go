package ingestion

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pgx404/RegretMarket/internal/core"
	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/observability"
	"github.com/pgx404/RegretMarket/internal/oracle"
	"github.com/pgx404/RegretMarket/internal/state"
)

// IngestService applies parsed commands, prices and funding snapshots. It
// is shared by the NATS subscriber and the gRPC surface.
type IngestService struct {
	processor *core.Processor
	feed      *oracle.MemoryFeed
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewIngestService(p *core.Processor, feed *oracle.MemoryFeed, metrics *observability.Metrics, logger zerolog.Logger) *IngestService {
	return &IngestService{processor: p, feed: feed, metrics: metrics, logger: logger}
}

// Execute runs cmd against the processor and returns the operation's result.
func (s *IngestService) Execute(ctx context.Context, cmd Command) (any, error) {
	p, id := s.processor, cmd.RequestID

	switch req := cmd.Params.(type) {
	case core.InitializeRequest:
		return p.InitializeConfig(ctx, id, req)
	case core.UpdateConfigRequest:
		return p.UpdateConfig(ctx, id, req)
	case core.PauseRequest:
		return nil, p.SetPaused(ctx, id, req)
	case PoolParams:
		if cmd.Op == OpFundPool {
			return p.FundPool(ctx, id, req.TokenMint)
		}
		return p.CreatePool(ctx, id, req.TokenMint)
	case core.OpenMarketRequest:
		return p.OpenMarket(ctx, id, req)
	case core.UpdateMarketRequest:
		return p.UpdateMarket(ctx, id, req)
	case core.TraderRequest:
		if cmd.Op == OpClaimVirtualBalance {
			return p.ClaimVirtualBalance(ctx, id, req)
		}
		return p.RegisterTrader(ctx, id, req)
	case core.OpenRequest:
		pos, out, err := p.OpenPosition(ctx, id, req)
		return positionResult(pos, out, err)
	case core.CloseRequest:
		pos, out, err := p.ClosePosition(ctx, id, req)
		return positionResult(pos, out, err)
	case core.RebalanceRequest:
		pos, out, err := p.RebalancePosition(ctx, id, req)
		return positionResult(pos, out, err)
	case core.PositionRef:
		switch cmd.Op {
		case OpAccrueFunding:
			pos, out, err := p.AccrueFunding(ctx, id, req)
			return positionResult(pos, out, err)
		case OpLiquidatePosition:
			pos, out, err := p.LiquidatePosition(ctx, id, req)
			return positionResult(pos, out, err)
		default:
			pos, out, err := p.RebalanceOrLiquidate(ctx, id, req)
			return positionResult(pos, out, err)
		}
	case state.FundingSnapshot:
		return s.StoreFunding(ctx, id, req)
	default:
		return nil, fmt.Errorf("unsupported command %q: %w", cmd.Op, errcode.InvalidInput)
	}
}

// PositionResult is the reply to a position operation.
type PositionResult struct {
	Position state.Position `json:"position"`
	Outcome  any            `json:"outcome"`
}

func positionResult(pos state.Position, out any, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return PositionResult{Position: pos, Outcome: out}, nil
}

// UpdatePrice stores a price observation. Out-of-order observations are
// dropped and reported as not applied.
func (s *IngestService) UpdatePrice(data oracle.PriceData) bool {
	applied := s.feed.Update(data)
	if s.metrics != nil {
		result := "applied"
		if !applied {
			result = "dropped"
		}
		s.metrics.PriceUpdates.WithLabelValues(data.FeedID, result).Inc()
	}
	if !applied {
		s.logger.Debug().
			Str("feed", data.FeedID).
			Time("publish_time", data.PublishTime).
			Msg("dropped out-of-order price")
	}
	return applied
}

// StoreFunding records a funding epoch. Replayed epochs report false.
func (s *IngestService) StoreFunding(ctx context.Context, requestID string, snap state.FundingSnapshot) (bool, error) {
	return s.processor.StoreFundingSnapshot(ctx, requestID, snap)
}
