package core

import (
	"github.com/google/uuid"

	"github.com/pgx404/RegretMarket/internal/errcode"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/risk"
	"github.com/pgx404/RegretMarket/internal/settlement"
	"github.com/pgx404/RegretMarket/internal/state"
)

// Book is the set of records a position operation reads and writes. It is
// always passed by value; operations return the updated copy.
type Book struct {
	Config   state.Config
	Market   state.Market
	Vault    state.Vault
	Trader   state.Trader
	Balance  state.TraderBalance
	Position state.Position
}

func (b *Book) checkPaused() error {
	if b.Config.IsPaused || b.Market.IsPaused || b.Vault.IsPaused {
		return errcode.ProgramPaused
	}
	return nil
}

// checkAccounts rejects a trader, balance and vault that do not belong
// together.
func (b *Book) checkAccounts() error {
	if b.Balance.Owner != b.Trader.Owner || b.Balance.TokenMint != b.Vault.TokenMint {
		return errcode.InvalidInput
	}
	return nil
}

// checkPosition additionally ties the position to the rest of the book.
func (b *Book) checkPosition() error {
	if err := b.checkAccounts(); err != nil {
		return err
	}
	p := &b.Position
	if p.Owner != b.Trader.Owner || p.Pair != b.Market.Pair || p.TokenMint != b.Vault.TokenMint {
		return errcode.InvalidInput
	}
	return nil
}

// OpenRequest is a trader's request to open a position.
type OpenRequest struct {
	Owner             uuid.UUID `json:"owner"`
	TokenMint         string    `json:"token_mint"`
	Pair              string    `json:"pair"`
	PositionID        uint64    `json:"position_id"`
	IsLong            bool      `json:"is_long"`
	DesiredEntryPrice uint64    `json:"desired_entry_price"`
	DesiredSize       uint64    `json:"desired_size"`
	Collateral        uint64    `json:"collateral"`
}

// OpenOutcome reports what OpenPosition charged and lent.
type OpenOutcome struct {
	Charge   settlement.OpeningCharge `json:"charge"`
	Sizing   risk.PositionParams      `json:"sizing"`
	Borrowed uint64                   `json:"borrowed"`
}

// FundingOutcome reports one funding accrual. Accrued is false when the
// tick was at or behind the position's watermark.
type FundingOutcome struct {
	RateBps  int64                 `json:"rate_bps"`
	Payment  fpmath.FundingPayment `json:"payment"`
	FromTick uint64                `json:"from_tick"`
	ToTick   uint64                `json:"to_tick"`
	Accrued  bool                  `json:"accrued"`
}

// CloseOutcome reports a voluntary close.
type CloseOutcome struct {
	Funding    FundingOutcome             `json:"funding"`
	Settlement settlement.CloseSettlement `json:"settlement"`
}

// RebalanceOutcome reports a rebalance attempt. Rebalanced is false when
// the target was not crossed; funding is accrued either way.
type RebalanceOutcome struct {
	Funding    FundingOutcome       `json:"funding"`
	Result     risk.RebalanceResult `json:"result"`
	Rebalanced bool                 `json:"rebalanced"`
}

// LiquidationOutcome reports a forced close.
type LiquidationOutcome struct {
	Funding    FundingOutcome                   `json:"funding"`
	Settlement settlement.LiquidationSettlement `json:"settlement"`
}

// KeeperOutcome reports what RebalanceOrLiquidate did.
type KeeperOutcome struct {
	Action      state.KeeperAction  `json:"action"`
	HealthBps   uint64              `json:"health_bps"`
	Funding     FundingOutcome      `json:"funding"`
	Rebalance   *RebalanceOutcome   `json:"rebalance,omitempty"`
	Liquidation *LiquidationOutcome `json:"liquidation,omitempty"`
}

// OpenPosition validates, sizes and opens a position at price.
// b.Position is ignored on input and holds the new position on success.
func (e *Engine) OpenPosition(b Book, req OpenRequest, price, tick uint64) (Book, OpenOutcome, error) {
	if err := b.checkPaused(); err != nil {
		return Book{}, OpenOutcome{}, err
	}
	if req.PositionID != b.Trader.PositionCount {
		return Book{}, OpenOutcome{}, errcode.InvalidPositionId
	}
	if req.Owner != b.Trader.Owner || req.TokenMint != b.Vault.TokenMint || req.Pair != b.Market.Pair {
		return Book{}, OpenOutcome{}, errcode.InvalidInput
	}
	if err := b.checkAccounts(); err != nil {
		return Book{}, OpenOutcome{}, err
	}

	if err := risk.ValidateCollateral(req.Collateral); err != nil {
		return Book{}, OpenOutcome{}, err
	}
	if err := risk.ValidatePositionSize(req.DesiredSize); err != nil {
		return Book{}, OpenOutcome{}, err
	}
	if err := risk.ValidatePrice(req.DesiredEntryPrice); err != nil {
		return Book{}, OpenOutcome{}, err
	}

	if b.Balance.AvailableBalance() < req.Collateral {
		return Book{}, OpenOutcome{}, errcode.NotEnoughBalance
	}

	if err := risk.ValidatePrice(price); err != nil {
		return Book{}, OpenOutcome{}, err
	}

	charge, err := settlement.ComputeOpeningCharge(req.Collateral, &b.Config)
	if err != nil {
		return Book{}, OpenOutcome{}, err
	}

	target, err := risk.InitialTargetPrice(price, req.IsLong)
	if err != nil {
		return Book{}, OpenOutcome{}, err
	}
	params, err := risk.CalculatePosition(
		req.IsLong,
		req.DesiredEntryPrice,
		req.DesiredSize,
		price,
		target,
		charge.EffectiveCollateral,
		b.Market.Decimals,
	)
	if err != nil {
		return Book{}, OpenOutcome{}, err
	}

	if err := risk.ValidatePositionValue(params.PositionValue); err != nil {
		return Book{}, OpenOutcome{}, err
	}
	if err := risk.ValidatePositionSize(params.ActualSize); err != nil {
		return Book{}, OpenOutcome{}, err
	}
	if params.LeverageBps > b.Config.MaxLeverage {
		return Book{}, OpenOutcome{}, errcode.ExcessiveLeverage
	}

	borrowing, err := settlement.BorrowedAmount(params.PositionValue, charge.EffectiveCollateral)
	if err != nil {
		return Book{}, OpenOutcome{}, err
	}
	if err := settlement.CheckLiquidity(&b.Vault, borrowing); err != nil {
		return Book{}, OpenOutcome{}, err
	}

	if err := settlement.ApplyOpen(charge, borrowing, &b.Vault, &b.Balance); err != nil {
		return Book{}, OpenOutcome{}, err
	}

	positionCount, err := fpmath.CheckedAdd(b.Trader.PositionCount, 1)
	if err != nil {
		return Book{}, OpenOutcome{}, err
	}
	active, err := fpmath.CheckedAdd(b.Trader.ActivePosition, 1)
	if err != nil {
		return Book{}, OpenOutcome{}, err
	}
	marketActive, err := fpmath.CheckedAdd(b.Market.TotalActivePositions, 1)
	if err != nil {
		return Book{}, OpenOutcome{}, err
	}
	b.Trader.PositionCount = positionCount
	b.Trader.ActivePosition = active
	b.Market.TotalActivePositions = marketActive

	b.Position = state.Position{
		Owner:              req.Owner,
		PositionID:         req.PositionID,
		IsLong:             req.IsLong,
		Pair:               req.Pair,
		TokenMint:          req.TokenMint,
		EnteredAt:          tick,
		LastFundingSlot:    tick,
		DesiredEntryPrice:  req.DesiredEntryPrice,
		DesiredSize:        req.DesiredSize,
		CurrentTargetPrice: params.TargetPrice,
		Collateral:         charge.EffectiveCollateral,
		ActualSize:         params.ActualSize,
		ActualEnteredPrice: price,
		CurrentPrice:       price,
		PositionValue:      params.PositionValue,
		Leverage:           params.LeverageBps,
		Status:             state.PositionStatusOpen,
		LastUpdated:        tick,
	}

	return b, OpenOutcome{Charge: charge, Sizing: params, Borrowed: borrowing}, nil
}

// ClosePosition settles an open position at price. Only the owner may close.
func (e *Engine) ClosePosition(b Book, signer uuid.UUID, price, tick uint64) (Book, CloseOutcome, error) {
	if !b.Position.IsOpen() {
		return Book{}, CloseOutcome{}, errcode.PositionAlreadyClosed
	}
	if err := b.checkPaused(); err != nil {
		return Book{}, CloseOutcome{}, err
	}
	if signer != b.Position.Owner {
		return Book{}, CloseOutcome{}, errcode.Unauthorized
	}
	if err := b.checkPosition(); err != nil {
		return Book{}, CloseOutcome{}, err
	}
	if tick == 0 {
		return Book{}, CloseOutcome{}, errcode.InvalidInput
	}
	if err := risk.ValidatePrice(price); err != nil {
		return Book{}, CloseOutcome{}, err
	}

	funding, err := e.accrue(&b, price, tick)
	if err != nil {
		return Book{}, CloseOutcome{}, err
	}

	s, err := settlement.ComputeClose(&b.Position, price, &b.Config, b.Market.Decimals)
	if err != nil {
		return Book{}, CloseOutcome{}, err
	}
	if err := settlement.ApplyClose(s, &b.Position, &b.Vault, &b.Balance); err != nil {
		return Book{}, CloseOutcome{}, err
	}
	if err := retire(&b, state.PositionStatusClosed, price, tick); err != nil {
		return Book{}, CloseOutcome{}, err
	}

	return b, CloseOutcome{Funding: funding, Settlement: s}, nil
}

// AccrueFunding brings the position's funding up to tick at the market's
// current rate. Replaying a tick is a no-op.
func (e *Engine) AccrueFunding(b Book, price, tick uint64) (Book, FundingOutcome, error) {
	if !b.Position.IsOpen() {
		return Book{}, FundingOutcome{}, errcode.PositionAlreadyClosed
	}
	if err := b.checkPaused(); err != nil {
		return Book{}, FundingOutcome{}, err
	}
	if b.Position.Pair != b.Market.Pair {
		return Book{}, FundingOutcome{}, errcode.InvalidInput
	}
	if err := risk.ValidatePrice(price); err != nil {
		return Book{}, FundingOutcome{}, err
	}

	out, err := e.accrue(&b, price, tick)
	if err != nil {
		return Book{}, FundingOutcome{}, err
	}
	return b, out, nil
}

// RebalancePosition moves the owner's position into its next cycle once
// price has crossed the current target.
func (e *Engine) RebalancePosition(b Book, signer uuid.UUID, price, tick uint64) (Book, RebalanceOutcome, error) {
	if signer != b.Position.Owner {
		return Book{}, RebalanceOutcome{}, errcode.Unauthorized
	}
	return e.rebalance(b, price, tick)
}

func (e *Engine) rebalance(b Book, price, tick uint64) (Book, RebalanceOutcome, error) {
	if !b.Position.IsOpen() {
		return Book{}, RebalanceOutcome{}, errcode.PositionAlreadyClosed
	}
	if err := b.checkPaused(); err != nil {
		return Book{}, RebalanceOutcome{}, err
	}
	if err := b.checkPosition(); err != nil {
		return Book{}, RebalanceOutcome{}, err
	}
	if err := risk.ValidatePrice(price); err != nil {
		return Book{}, RebalanceOutcome{}, err
	}

	funding, err := e.accrue(&b, price, tick)
	if err != nil {
		return Book{}, RebalanceOutcome{}, err
	}

	r, err := risk.CalculateRebalance(&b.Position, price, b.Config.RebalanceTarget, b.Market.Decimals)
	if err != nil {
		return Book{}, RebalanceOutcome{}, err
	}
	if !r.ShouldRebalance {
		return b, RebalanceOutcome{Funding: funding, Result: r}, nil
	}

	if err := settlement.ApplyRebalance(r, price, tick, &b.Config, &b.Position, &b.Vault, &b.Balance); err != nil {
		return Book{}, RebalanceOutcome{}, err
	}
	return b, RebalanceOutcome{Funding: funding, Result: r, Rebalanced: true}, nil
}

// LiquidatePosition force-closes a position whose health is below 100%.
// Anyone may call it.
func (e *Engine) LiquidatePosition(b Book, price, tick uint64) (Book, LiquidationOutcome, error) {
	if !b.Position.IsOpen() {
		return Book{}, LiquidationOutcome{}, errcode.PositionAlreadyClosed
	}
	if err := b.checkPaused(); err != nil {
		return Book{}, LiquidationOutcome{}, err
	}
	if err := b.checkPosition(); err != nil {
		return Book{}, LiquidationOutcome{}, err
	}
	if tick == 0 {
		return Book{}, LiquidationOutcome{}, errcode.InvalidInput
	}
	if err := risk.ValidatePrice(price); err != nil {
		return Book{}, LiquidationOutcome{}, err
	}

	funding, err := e.accrue(&b, price, tick)
	if err != nil {
		return Book{}, LiquidationOutcome{}, err
	}

	health, err := risk.CalculateHealthRatio(&b.Position, price, &b.Config, b.Market.Decimals)
	if err != nil {
		return Book{}, LiquidationOutcome{}, err
	}
	if health >= state.HealthLiquidationThreshold {
		return Book{}, LiquidationOutcome{}, errcode.PositionNotLiquidatable
	}

	s, err := settlement.ComputeLiquidation(&b.Position, &b.Vault, price, health, &b.Config, b.Market.Decimals, e.insurance)
	if err != nil {
		return Book{}, LiquidationOutcome{}, err
	}
	if err := settlement.ApplyLiquidation(s, &b.Position, &b.Vault, &b.Balance); err != nil {
		return Book{}, LiquidationOutcome{}, err
	}
	if err := retire(&b, state.PositionStatusLiquidated, price, tick); err != nil {
		return Book{}, LiquidationOutcome{}, err
	}

	return b, LiquidationOutcome{Funding: funding, Settlement: s}, nil
}

// RebalanceOrLiquidate is the keeper entry point: liquidate below 100%
// health, otherwise rebalance if the target was crossed, otherwise only
// accrue funding.
func (e *Engine) RebalanceOrLiquidate(b Book, price, tick uint64) (Book, KeeperOutcome, error) {
	if !b.Position.IsOpen() {
		return Book{}, KeeperOutcome{}, errcode.PositionAlreadyClosed
	}
	if err := b.checkPaused(); err != nil {
		return Book{}, KeeperOutcome{}, err
	}
	if err := risk.ValidatePrice(price); err != nil {
		return Book{}, KeeperOutcome{}, err
	}

	probe := b
	funding, err := e.accrue(&probe, price, tick)
	if err != nil {
		return Book{}, KeeperOutcome{}, err
	}
	health, err := risk.CalculateHealthRatio(&probe.Position, price, &probe.Config, probe.Market.Decimals)
	if err != nil {
		return Book{}, KeeperOutcome{}, err
	}

	out := KeeperOutcome{
		Action:    state.DecideKeeperAction(health, probe.Position.TargetReached(price)),
		HealthBps: health,
		Funding:   funding,
	}

	switch out.Action {
	case state.KeeperActionLiquidate:
		next, liq, err := e.LiquidatePosition(b, price, tick)
		if err != nil {
			return Book{}, KeeperOutcome{}, err
		}
		out.Liquidation = &liq
		return next, out, nil

	case state.KeeperActionRebalance:
		next, reb, err := e.rebalance(b, price, tick)
		if err != nil {
			return Book{}, KeeperOutcome{}, err
		}
		out.Rebalance = &reb
		return next, out, nil

	default:
		if err := probe.checkPosition(); err != nil {
			return Book{}, KeeperOutcome{}, err
		}
		return probe, out, nil
	}
}

// accrue runs the position's funding up to tick at the market's current
// rate.
func (e *Engine) accrue(b *Book, price, tick uint64) (FundingOutcome, error) {
	rate := e.funding.CurrentRate(b.Position.Pair)
	from := b.Position.LastFundingSlot

	payment, err := b.Position.UpdateFunding(tick, price, rate, b.Market.Decimals)
	if err != nil {
		return FundingOutcome{}, err
	}

	out := FundingOutcome{
		RateBps:  rate,
		Payment:  payment,
		FromTick: from,
		ToTick:   b.Position.LastFundingSlot,
		Accrued:  tick > from,
	}
	if out.Accrued {
		b.Position.CurrentPrice = price
		b.Position.LastUpdated = tick
	}
	return out, nil
}

// retire marks a settled position and decrements the active counters.
func retire(b *Book, status state.PositionStatus, price, tick uint64) error {
	if !b.Position.Status.CanTransitionTo(status) {
		return errcode.PositionAlreadyClosed
	}
	active, err := fpmath.CheckedSub(b.Trader.ActivePosition, 1)
	if err != nil {
		return err
	}
	marketActive, err := fpmath.CheckedSub(b.Market.TotalActivePositions, 1)
	if err != nil {
		return err
	}

	b.Trader.ActivePosition = active
	b.Market.TotalActivePositions = marketActive
	b.Position.ClosedAt = tick
	b.Position.Status = status
	b.Position.CurrentPrice = price
	b.Position.LastUpdated = tick
	return nil
}
