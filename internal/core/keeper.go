package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/persistence"
	"github.com/pgx404/RegretMarket/internal/state"
)

// Keeper periodically runs RebalanceOrLiquidate over every open position.
type Keeper struct {
	processor *Processor
	interval  time.Duration
	logger    zerolog.Logger
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked    int
	Rebalanced int
	Liquidated int
	Failed     int
}

func NewKeeper(p *Processor, interval time.Duration, logger zerolog.Logger) *Keeper {
	return &Keeper{processor: p, interval: interval, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := k.Sweep(ctx)
			if err != nil {
				k.logger.Error().Err(err).Msg("sweep failed")
				continue
			}
			if res.Rebalanced > 0 || res.Liquidated > 0 || res.Failed > 0 {
				k.logger.Info().
					Int("checked", res.Checked).
					Int("rebalanced", res.Rebalanced).
					Int("liquidated", res.Liquidated).
					Int("failed", res.Failed).
					Msg("sweep")
			}
		}
	}
}

// Sweep checks every open position once. A market whose price cannot be
// read, or that is paused, is skipped for this sweep.
func (k *Keeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	var markets []state.Market
	open := make(map[string][]PositionRef)
	err := k.processor.store.View(ctx, func(tx persistence.Tx) error {
		var err error
		markets, err = persistence.ListMarkets(tx)
		if err != nil {
			return err
		}
		for _, m := range markets {
			positions, err := persistence.ListPositions(tx, m.Pair)
			if err != nil {
				return err
			}
			for _, pos := range positions {
				if pos.IsOpen() {
					open[m.Pair] = append(open[m.Pair], PositionRef{Owner: pos.Owner, Pair: pos.Pair, PositionID: pos.PositionID})
				}
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	if m := k.processor.metrics; m != nil {
		m.KeeperSweeps.Inc()
	}

	for _, m := range markets {
		if m.IsPaused {
			continue
		}
		for _, ref := range open[m.Pair] {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			res.Checked++

			_, out, err := k.processor.RebalanceOrLiquidate(ctx, "", ref)
			if err != nil {
				res.Failed++
				if skipMarket(err) {
					k.logger.Warn().Err(err).Str("market", m.Pair).Msg("skipping market this sweep")
					break
				}
				continue
			}
			switch out.Action {
			case state.KeeperActionLiquidate:
				res.Liquidated++
			case state.KeeperActionRebalance:
				res.Rebalanced++
			}
		}
	}
	return res, nil
}

// skipMarket reports errors that will fail every position of the market.
func skipMarket(err error) bool {
	switch errcode.From(err).Category() {
	case errcode.CategoryOracle:
		return true
	}
	return errors.Is(err, errcode.ProgramPaused)
}
