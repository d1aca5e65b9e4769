package core

import (
	"context"

	"github.com/google/uuid"

	"github.com/pgx404/RegretMarket/internal/event"
	"github.com/pgx404/RegretMarket/internal/persistence"
	"github.com/pgx404/RegretMarket/internal/state"
)

func (p *Processor) OpenPosition(ctx context.Context, requestID string, req OpenRequest) (state.Position, OpenOutcome, error) {
	var b Book
	var res OpenOutcome
	err := p.run(ctx, "open_position", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		var cur Book
		var err error
		if cur.Config, err = persistence.LoadConfig(tx); err != nil {
			return err
		}
		if cur.Market, err = persistence.LoadMarket(tx, req.Pair); err != nil {
			return err
		}
		if cur.Vault, err = persistence.LoadVault(tx, req.TokenMint); err != nil {
			return err
		}
		if cur.Trader, err = persistence.LoadTrader(tx, req.Owner); err != nil {
			return err
		}
		if cur.Balance, err = persistence.LoadBalance(tx, req.Owner, req.TokenMint); err != nil {
			return err
		}

		price, err := p.price(ctx, &cur.Market)
		if err != nil {
			return err
		}
		b, res, err = p.engine.OpenPosition(cur, req, price, tick)
		if err != nil {
			return err
		}
		if err := p.checkConserved("open_position", &cur, &b); err != nil {
			return err
		}

		if err := tx.Create(b.Position.Key(), b.Position); err != nil {
			return err
		}
		if err := saveBook(tx, &b); err != nil {
			return err
		}

		pos := &b.Position
		out.add(&event.PositionOpened{
			PositionRef: refOf(pos),
			TokenMint:   pos.TokenMint,
			IsLong:      pos.IsLong,
			Price:       price,
			ActualSize:  pos.ActualSize,
			Collateral:  pos.Collateral,
			LeverageBps: pos.Leverage,
			Value:       pos.PositionValue,
			TargetPrice: pos.CurrentTargetPrice,
			Borrowed:    res.Borrowed,
			Fee:         res.Charge.Split.Fee,
			ProtocolFee: res.Charge.Split.ProtocolFee,
			LPFee:       res.Charge.Split.LPFee,
		})
		out.records = b.records()
		return nil
	})
	if err != nil {
		return state.Position{}, OpenOutcome{}, err
	}

	if p.metrics != nil {
		p.observeFees(b.Market.Pair, res.Charge.Split.ProtocolFee, res.Charge.Split.LPFee)
		p.metrics.OpenPositions.WithLabelValues(b.Market.Pair).Set(float64(b.Market.TotalActivePositions))
	}
	return b.Position, res, nil
}

// CloseRequest is an owner's request to close a position.
type CloseRequest struct {
	PositionRef
	Signer uuid.UUID `json:"signer"`
}

func (p *Processor) ClosePosition(ctx context.Context, requestID string, req CloseRequest) (state.Position, CloseOutcome, error) {
	var b Book
	var res CloseOutcome
	err := p.run(ctx, "close_position", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		cur, err := loadBook(tx, req.PositionRef)
		if err != nil {
			return err
		}
		price, err := p.price(ctx, &cur.Market)
		if err != nil {
			return err
		}
		b, res, err = p.engine.ClosePosition(cur, req.Signer, price, tick)
		if err != nil {
			return err
		}
		if err := p.checkConserved("close_position", &cur, &b); err != nil {
			return err
		}
		if err := saveBook(tx, &b); err != nil {
			return err
		}

		addFunding(out, &b, res.Funding)
		s := &res.Settlement
		out.add(&event.PositionClosed{
			PositionRef:    refOf(&b.Position),
			Price:          price,
			NetPnL:         s.PnL.SignedNetPnL(),
			FundingPaid:    b.Position.CumulativeFundingPaid,
			Fee:            s.Split.Fee,
			AmountReturned: s.AmountToReturn,
			PoolGain:       s.PoolGain,
			PoolLoss:       s.PoolLoss,
			Deficit:        s.Deficit,
		})
		out.records = b.records()
		return nil
	})
	if err != nil {
		return state.Position{}, CloseOutcome{}, err
	}

	if p.metrics != nil {
		p.observeFunding(b.Market.Pair, res.Funding)
		p.observeFees(b.Market.Pair, res.Settlement.Split.ProtocolFee, res.Settlement.Split.LPFee)
		p.metrics.OpenPositions.WithLabelValues(b.Market.Pair).Set(float64(b.Market.TotalActivePositions))
	}
	return b.Position, res, nil
}

// AccrueFunding settles funding up to the current tick. Anyone may call it.
func (p *Processor) AccrueFunding(ctx context.Context, requestID string, ref PositionRef) (state.Position, FundingOutcome, error) {
	var b Book
	var res FundingOutcome
	err := p.run(ctx, "accrue_funding", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		cur, err := loadBook(tx, ref)
		if err != nil {
			return err
		}
		price, err := p.price(ctx, &cur.Market)
		if err != nil {
			return err
		}
		b, res, err = p.engine.AccrueFunding(cur, price, tick)
		if err != nil {
			return err
		}
		if !res.Accrued {
			return nil
		}
		if err := tx.Put(b.Position.Key(), b.Position); err != nil {
			return err
		}
		addFunding(out, &b, res)
		out.records = []Canonical{&b.Position}
		return nil
	})
	if err != nil {
		return state.Position{}, FundingOutcome{}, err
	}

	if p.metrics != nil {
		p.observeFunding(b.Market.Pair, res)
	}
	return b.Position, res, nil
}

// RebalanceRequest is an owner's request to roll a position whose target
// has been crossed into a new cycle.
type RebalanceRequest struct {
	PositionRef
	Signer uuid.UUID `json:"signer"`
}

func (p *Processor) RebalancePosition(ctx context.Context, requestID string, req RebalanceRequest) (state.Position, RebalanceOutcome, error) {
	var b Book
	var res RebalanceOutcome
	err := p.run(ctx, "rebalance_position", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		cur, err := loadBook(tx, req.PositionRef)
		if err != nil {
			return err
		}
		price, err := p.price(ctx, &cur.Market)
		if err != nil {
			return err
		}
		b, res, err = p.engine.RebalancePosition(cur, req.Signer, price, tick)
		if err != nil {
			return err
		}
		if err := p.checkConserved("rebalance_position", &cur, &b); err != nil {
			return err
		}
		return stageRebalance(tx, out, &b, &res, price)
	})
	if err != nil {
		return state.Position{}, RebalanceOutcome{}, err
	}

	if p.metrics != nil {
		p.observeRebalance(&b, &res)
	}
	return b.Position, res, nil
}

// LiquidatePosition force-closes an unhealthy position. Anyone may call it.
func (p *Processor) LiquidatePosition(ctx context.Context, requestID string, ref PositionRef) (state.Position, LiquidationOutcome, error) {
	var b Book
	var res LiquidationOutcome
	err := p.run(ctx, "liquidate_position", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		cur, err := loadBook(tx, ref)
		if err != nil {
			return err
		}
		price, err := p.price(ctx, &cur.Market)
		if err != nil {
			return err
		}
		b, res, err = p.engine.LiquidatePosition(cur, price, tick)
		if err != nil {
			return err
		}
		if err := p.checkConserved("liquidate_position", &cur, &b); err != nil {
			return err
		}
		return stageLiquidation(tx, out, &b, &res, price)
	})
	if err != nil {
		return state.Position{}, LiquidationOutcome{}, err
	}

	if p.metrics != nil {
		p.observeLiquidation(&b, &res)
	}
	return b.Position, res, nil
}

// RebalanceOrLiquidate is the keeper entry point: liquidate if unhealthy,
// otherwise rebalance if the target was crossed, otherwise only accrue
// funding.
func (p *Processor) RebalanceOrLiquidate(ctx context.Context, requestID string, ref PositionRef) (state.Position, KeeperOutcome, error) {
	var b Book
	var res KeeperOutcome
	err := p.run(ctx, "rebalance_or_liquidate", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		cur, err := loadBook(tx, ref)
		if err != nil {
			return err
		}
		price, err := p.price(ctx, &cur.Market)
		if err != nil {
			return err
		}
		b, res, err = p.engine.RebalanceOrLiquidate(cur, price, tick)
		if err != nil {
			return err
		}
		if err := p.checkConserved("rebalance_or_liquidate", &cur, &b); err != nil {
			return err
		}

		switch {
		case res.Liquidation != nil:
			return stageLiquidation(tx, out, &b, res.Liquidation, price)
		case res.Rebalance != nil:
			return stageRebalance(tx, out, &b, res.Rebalance, price)
		default:
			if !res.Funding.Accrued {
				return nil
			}
			if err := tx.Put(b.Position.Key(), b.Position); err != nil {
				return err
			}
			addFunding(out, &b, res.Funding)
			out.records = []Canonical{&b.Position}
			return nil
		}
	})
	if err != nil {
		return state.Position{}, KeeperOutcome{}, err
	}

	if p.metrics != nil {
		p.metrics.KeeperActions.WithLabelValues(res.Action.String()).Inc()
		p.metrics.HealthRatio.WithLabelValues(b.Market.Pair).Observe(float64(res.HealthBps))
		switch {
		case res.Liquidation != nil:
			p.observeLiquidation(&b, res.Liquidation)
		case res.Rebalance != nil:
			p.observeRebalance(&b, res.Rebalance)
		default:
			p.observeFunding(b.Market.Pair, res.Funding)
		}
	}
	return b.Position, res, nil
}

// --- Staging helpers ---

func refOf(pos *state.Position) event.PositionRef {
	return event.PositionRef{Owner: pos.Owner, Pair: pos.Pair, PositionID: pos.PositionID}
}

func addFunding(out *staged, b *Book, f FundingOutcome) {
	if !f.Accrued {
		return
	}
	out.add(&event.FundingAccrued{
		PositionRef:           refOf(&b.Position),
		RateBps:               f.RateBps,
		Amount:                f.Payment.Amount,
		IsPayment:             f.Payment.IsPayment,
		FromTick:              f.FromTick,
		ToTick:                f.ToTick,
		CumulativeFundingPaid: b.Position.CumulativeFundingPaid,
	})
}

func stageRebalance(tx persistence.Tx, out *staged, b *Book, res *RebalanceOutcome, price uint64) error {
	if err := saveBook(tx, b); err != nil {
		return err
	}
	addFunding(out, b, res.Funding)
	if res.Rebalanced {
		r := &res.Result
		out.add(&event.PositionRebalanced{
			PositionRef:       refOf(&b.Position),
			Price:             price,
			NewActualSize:     r.NewActualSize,
			NewTargetPrice:    r.NewTargetPrice,
			NewLeverageBps:    r.NewLeverageBps,
			NewValue:          r.NewPositionValue,
			ProfitRealized:    r.ProfitRealized,
			TraderPayout:      r.TraderPayout(),
			ExcessToInsurance: r.ExcessToInsurance,
			RebalanceCount:    b.Position.RebalanceCount,
		})
	}
	out.records = b.records()
	return nil
}

func stageLiquidation(tx persistence.Tx, out *staged, b *Book, res *LiquidationOutcome, price uint64) error {
	if err := saveBook(tx, b); err != nil {
		return err
	}
	addFunding(out, b, res.Funding)
	s := &res.Settlement
	out.add(&event.PositionLiquidated{
		PositionRef:        refOf(&b.Position),
		LiquidationID:      uuid.New(),
		Price:              price,
		HealthBps:          s.HealthBps,
		NetPnL:             s.PnL.SignedNetPnL(),
		Fee:                s.Split.Fee,
		Reward:             s.Reward,
		AmountReturned:     s.AmountToReturn,
		Deficit:            s.Deficit,
		CoveredByInsurance: s.CoveredByInsurance,
		BadDebt:            s.BadDebt,
	})
	out.records = b.records()
	return nil
}

// --- Metrics ---

func (p *Processor) observeFees(pair string, protocol, lp uint64) {
	p.metrics.FeesAccrued.WithLabelValues(pair, "protocol").Add(float64(protocol))
	p.metrics.FeesAccrued.WithLabelValues(pair, "lp").Add(float64(lp))
}

func (p *Processor) observeFunding(pair string, f FundingOutcome) {
	if !f.Accrued {
		return
	}
	dir := "received"
	if f.Payment.IsPayment {
		dir = "paid"
	}
	p.metrics.FundingAccrued.WithLabelValues(pair, dir).Add(float64(f.Payment.Amount))
}

func (p *Processor) observeRebalance(b *Book, res *RebalanceOutcome) {
	p.observeFunding(b.Market.Pair, res.Funding)
	if res.Rebalanced {
		p.metrics.Rebalances.WithLabelValues(b.Market.Pair).Inc()
		p.metrics.InsuranceReserve.WithLabelValues(b.Vault.TokenMint).Set(float64(b.Vault.InsuranceReserve))
	}
}

func (p *Processor) observeLiquidation(b *Book, res *LiquidationOutcome) {
	p.observeFunding(b.Market.Pair, res.Funding)
	s := &res.Settlement
	p.observeFees(b.Market.Pair, s.Split.ProtocolFee, s.Split.LPFee)

	outcome := "clean"
	switch {
	case s.BadDebt > 0:
		outcome = "bad_debt"
		p.metrics.BadDebt.WithLabelValues(b.Market.Pair).Add(float64(s.BadDebt))
	case s.CoveredByInsurance > 0:
		outcome = "insured"
	}
	p.metrics.Liquidations.WithLabelValues(b.Market.Pair, outcome).Inc()
	p.metrics.OpenPositions.WithLabelValues(b.Market.Pair).Set(float64(b.Market.TotalActivePositions))
	p.metrics.InsuranceReserve.WithLabelValues(b.Vault.TokenMint).Set(float64(b.Vault.InsuranceReserve))
}
