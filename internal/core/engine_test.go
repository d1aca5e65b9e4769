package core_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/pgx404/RegretMarket/internal/core"
	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/ledger"
	"github.com/pgx404/RegretMarket/internal/state"
)

// --- Test helpers ---

const usd uint64 = 1_000_000

var (
	adminID  = uuid.MustParse("0000000a-0000-0000-0000-000000000001")
	traderID = uuid.MustParse("0000000b-0000-0000-0000-000000000002")
)

func newEngine() *core.Engine {
	return core.NewEngine(state.NewFundingManager(state.DefaultFundingRateBps))
}

// newBook bootstraps config, a USDC pool, the BTC-USD market and one
// registered trader the way the lifecycle operations would.
func newBook(t *testing.T, e *core.Engine) core.Book {
	t.Helper()

	cfg, err := e.InitializeConfig(false, adminID, state.DefaultConfigParams, 1)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	vault, err := e.CreatePool(cfg, "USDC")
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	market, err := e.OpenMarket(cfg, "BTC-USD", 8, "btc-usd-feed")
	if err != nil {
		t.Fatalf("open market: %v", err)
	}
	trader, balance, err := e.RegisterTrader(cfg, vault, traderID)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return core.Book{
		Config:  cfg,
		Market:  market,
		Vault:   vault,
		Trader:  trader,
		Balance: balance,
	}
}

// 0.05 BTC wished for at $45,000 and bought at $50,000: the engine sizes
// 0.1 BTC so the profit at the $55,000 target matches.
func longRequest() core.OpenRequest {
	return core.OpenRequest{
		Owner:             traderID,
		TokenMint:         "USDC",
		Pair:              "BTC-USD",
		PositionID:        0,
		IsLong:            true,
		DesiredEntryPrice: 45_000 * usd,
		DesiredSize:       5_000_000,
		Collateral:        1_000 * usd,
	}
}

func mustOpen(t *testing.T, e *core.Engine, b core.Book, tick uint64) core.Book {
	t.Helper()
	next, _, err := e.OpenPosition(b, longRequest(), 50_000*usd, tick)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return next
}

// ============================================================================
// Test: Lifecycle
// ============================================================================

func TestInitializeConfig_OnlyOnce(t *testing.T) {
	e := newEngine()
	_, err := e.InitializeConfig(true, adminID, state.DefaultConfigParams, 1)
	if !errors.Is(err, errcode.ProgramAlreadyStarted) {
		t.Errorf("got %v, want ProgramAlreadyStarted", err)
	}
}

func TestUpdateConfig(t *testing.T) {
	e := newEngine()
	b := newBook(t, e)

	p := state.DefaultConfigParams
	p.ClosingFee = 25

	if _, err := e.UpdateConfig(b.Config, traderID, p, 2); !errors.Is(err, errcode.Unauthorized) {
		t.Errorf("non-admin: got %v, want Unauthorized", err)
	}

	bad := p
	bad.ProtocolFeeShare = 10_001
	if _, err := e.UpdateConfig(b.Config, adminID, bad, 2); !errors.Is(err, errcode.InvalidInput) {
		t.Errorf("bad params: got %v, want InvalidInput", err)
	}

	cfg, err := e.UpdateConfig(b.Config, adminID, p, 2)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if cfg.ClosingFee != 25 || cfg.LastUpdated != 2 {
		t.Errorf("got closing fee %d at %d", cfg.ClosingFee, cfg.LastUpdated)
	}
}

func TestVirtualBalanceAndPoolFunding(t *testing.T) {
	e := newEngine()
	b := newBook(t, e)

	if b.Balance.Balance != state.InitialVirtualBalance {
		t.Errorf("registered balance: got %d", b.Balance.Balance)
	}
	bal, err := e.ClaimVirtualBalance(b.Config, b.Balance)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if bal.Balance != state.InitialVirtualBalance+state.VirtualBalanceClaim {
		t.Errorf("claimed balance: got %d", bal.Balance)
	}

	v, err := e.FundPool(b.Config, b.Vault)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if v.LPDeposit != state.InitialPoolDeposit+state.PoolFundingAmount {
		t.Errorf("lp deposit: got %d", v.LPDeposit)
	}
}

func TestLifecycle_PausedConfigRejects(t *testing.T) {
	e := newEngine()
	b := newBook(t, e)
	cfg, err := e.SetConfigPaused(b.Config, adminID, true, 3)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}

	if _, _, err := e.RegisterTrader(cfg, b.Vault, uuid.New()); !errors.Is(err, errcode.ProgramPaused) {
		t.Errorf("register: got %v", err)
	}
	if _, err := e.ClaimVirtualBalance(cfg, b.Balance); !errors.Is(err, errcode.ProgramPaused) {
		t.Errorf("claim: got %v", err)
	}
	if _, err := e.FundPool(cfg, b.Vault); !errors.Is(err, errcode.ProgramPaused) {
		t.Errorf("fund: got %v", err)
	}
	if _, err := e.OpenMarket(cfg, "ETH-USD", 8, "eth"); !errors.Is(err, errcode.ProgramPaused) {
		t.Errorf("open market: got %v", err)
	}
}

func TestNames_RejectKeySeparator(t *testing.T) {
	e := newEngine()
	cfg, _ := e.InitializeConfig(false, adminID, state.DefaultConfigParams, 1)

	if _, err := e.CreatePool(cfg, "US:DC"); !errors.Is(err, errcode.InvalidInput) {
		t.Errorf("pool: got %v, want InvalidInput", err)
	}
	if _, err := e.OpenMarket(cfg, "BTC:USD", 8, "btc"); !errors.Is(err, errcode.InvalidInput) {
		t.Errorf("market: got %v, want InvalidInput", err)
	}
	if _, err := e.OpenMarket(cfg, "", 8, "btc"); !errors.Is(err, errcode.InvalidInput) {
		t.Errorf("empty market: got %v, want InvalidInput", err)
	}
}

func TestNames_BoundedLength(t *testing.T) {
	e := newEngine()
	cfg, _ := e.InitializeConfig(false, adminID, state.DefaultConfigParams, 1)

	mints := []struct {
		mint string
		want error
	}{
		{strings.Repeat("M", state.MaxTokenMintLen), nil},
		{strings.Repeat("M", state.MaxTokenMintLen+1), errcode.InvalidInput},
	}
	for _, tt := range mints {
		if _, err := e.CreatePool(cfg, tt.mint); !errors.Is(err, tt.want) {
			t.Errorf("mint of %d bytes: got %v, want %v", len(tt.mint), err, tt.want)
		}
	}

	markets := []struct {
		pair, feed string
		want       error
	}{
		{strings.Repeat("P", state.MaxPairLen), "btc", nil},
		{strings.Repeat("P", 300), "btc", errcode.InvalidInput},
		{"BTC-USD", strings.Repeat("f", state.MaxFeedIDLen+1), errcode.InvalidInput},
	}
	for _, tt := range markets {
		if _, err := e.OpenMarket(cfg, tt.pair, 8, tt.feed); !errors.Is(err, tt.want) {
			t.Errorf("pair %d bytes, feed %d bytes: got %v, want %v", len(tt.pair), len(tt.feed), err, tt.want)
		}
	}
}

func TestUpdateMarket(t *testing.T) {
	e := newEngine()
	b := newBook(t, e)
	feed := "btc-usd-feed-v2"

	if _, err := e.UpdateMarket(b.Config, b.Market, traderID, &feed); !errors.Is(err, errcode.Unauthorized) {
		t.Errorf("non-admin: got %v", err)
	}

	m, err := e.UpdateMarket(b.Config, b.Market, adminID, &feed)
	if err != nil || m.FeedID != feed {
		t.Errorf("update: got %q (%v)", m.FeedID, err)
	}

	unchanged, err := e.UpdateMarket(b.Config, b.Market, adminID, nil)
	if err != nil || unchanged.FeedID != b.Market.FeedID {
		t.Errorf("nil feed: got %q (%v)", unchanged.FeedID, err)
	}

	paused, _ := e.SetMarketPaused(b.Config, b.Market, adminID, true)
	if _, err := e.UpdateMarket(b.Config, paused, adminID, &feed); !errors.Is(err, errcode.ProgramPaused) {
		t.Errorf("paused market: got %v", err)
	}
}

// ============================================================================
// Test: OpenPosition
// ============================================================================

func TestOpenPosition(t *testing.T) {
	e := newEngine()
	b := newBook(t, e)

	got, out, err := e.OpenPosition(b, longRequest(), 50_000*usd, 100)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	pos := got.Position
	if pos.ActualSize != 10_000_000 {
		t.Errorf("size: got %d, want 10000000", pos.ActualSize)
	}
	if pos.CurrentTargetPrice != 55_000*usd {
		t.Errorf("target: got %d", pos.CurrentTargetPrice)
	}
	if pos.PositionValue != 5_000*usd {
		t.Errorf("value: got %d", pos.PositionValue)
	}
	if pos.Collateral != 999*usd {
		t.Errorf("collateral: got %d", pos.Collateral)
	}
	if pos.Leverage != 50_050 {
		t.Errorf("leverage: got %d, want 50050", pos.Leverage)
	}
	if pos.EnteredAt != 100 || pos.LastFundingSlot != 100 || pos.ClosedAt != 0 {
		t.Errorf("ticks: entered %d funding %d closed %d", pos.EnteredAt, pos.LastFundingSlot, pos.ClosedAt)
	}
	if pos.ActualEnteredPrice != 50_000*usd || pos.CurrentPrice != 50_000*usd {
		t.Errorf("prices: %d %d", pos.ActualEnteredPrice, pos.CurrentPrice)
	}

	if got.Trader.PositionCount != 1 || got.Trader.ActivePosition != 1 || got.Market.TotalActivePositions != 1 {
		t.Errorf("counters: %+v %+v", got.Trader, got.Market)
	}
	if got.Balance.Balance != 99_999*usd || got.Balance.LockedBalance != 999*usd {
		t.Errorf("balance: %+v", got.Balance)
	}
	if got.Vault.TotalBorrowed != 4_001*usd || got.Vault.TraderCollateral != 999*usd {
		t.Errorf("vault: borrowed %d collateral %d", got.Vault.TotalBorrowed, got.Vault.TraderCollateral)
	}
	if got.Vault.AccumulatedFees != 200_000 || got.Vault.AccumulatedLPFees != 800_000 {
		t.Errorf("fees: protocol %d lp %d", got.Vault.AccumulatedFees, got.Vault.AccumulatedLPFees)
	}
	if out.Borrowed != 4_001*usd {
		t.Errorf("outcome borrowed: got %d", out.Borrowed)
	}
}

// 1 BTC wished for at $49,000, bought at $50,000 with $1,000: target
// $55,000, 1.2 BTC worth $60,000 is 60x, far over the 10x cap.
func TestOpenPosition_ExcessiveLeverage(t *testing.T) {
	e := newEngine()
	b := newBook(t, e)
	before := b

	req := longRequest()
	req.DesiredEntryPrice = 49_000 * usd
	req.DesiredSize = 100_000_000

	_, _, err := e.OpenPosition(b, req, 50_000*usd, 100)
	if !errors.Is(err, errcode.ExcessiveLeverage) {
		t.Fatalf("got %v, want ExcessiveLeverage", err)
	}
	if b != before {
		t.Error("rejected open mutated the caller's records")
	}
}

func TestOpenPosition_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *core.Book, req *core.OpenRequest)
		price uint64
		want  error
	}{
		{"config paused", func(b *core.Book, _ *core.OpenRequest) { b.Config.IsPaused = true }, 50_000 * usd, errcode.ProgramPaused},
		{"market paused", func(b *core.Book, _ *core.OpenRequest) { b.Market.IsPaused = true }, 50_000 * usd, errcode.ProgramPaused},
		{"vault paused", func(b *core.Book, _ *core.OpenRequest) { b.Vault.IsPaused = true }, 50_000 * usd, errcode.ProgramPaused},
		{"skipped position id", func(_ *core.Book, r *core.OpenRequest) { r.PositionID = 1 }, 50_000 * usd, errcode.InvalidPositionId},
		{"collateral too low", func(_ *core.Book, r *core.OpenRequest) { r.Collateral = 9 * usd }, 50_000 * usd, errcode.CollateralTooLow},
		{"zero size", func(_ *core.Book, r *core.OpenRequest) { r.DesiredSize = 0 }, 50_000 * usd, errcode.InvalidPositionSize},
		{"zero entry", func(_ *core.Book, r *core.OpenRequest) { r.DesiredEntryPrice = 0 }, 50_000 * usd, errcode.InvalidPrice},
		{"not enough balance", func(_ *core.Book, r *core.OpenRequest) { r.Collateral = 200_000 * usd }, 50_000 * usd, errcode.NotEnoughBalance},
		{"zero oracle price", func(*core.Book, *core.OpenRequest) {}, 0, errcode.InvalidPrice},
		{"long below entry", func(*core.Book, *core.OpenRequest) {}, 44_000 * usd, errcode.InvalidPriceForLong},
		{"no liquidity", func(b *core.Book, _ *core.OpenRequest) { b.Vault.TotalBorrowed = b.Vault.LPDeposit }, 50_000 * usd, errcode.InsufficientLiquidity},
		{"wrong owner", func(_ *core.Book, r *core.OpenRequest) { r.Owner = uuid.New() }, 50_000 * usd, errcode.InvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()
			b := newBook(t, e)
			req := longRequest()
			tt.setup(&b, &req)

			_, _, err := e.OpenPosition(b, req, tt.price, 100)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

// ============================================================================
// Test: ClosePosition
// ============================================================================

func TestClosePosition_RoundTrip(t *testing.T) {
	e := newEngine()
	b := mustOpen(t, e, newBook(t, e), 100)

	got, out, err := e.ClosePosition(b, traderID, 50_000*usd, 100)
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	// collateral - 0.1% of the $5,000 position
	if out.Settlement.AmountToReturn != 994*usd {
		t.Errorf("returned: got %d, want %d", out.Settlement.AmountToReturn, 994*usd)
	}
	if got.Balance.Balance != 99_994*usd || got.Balance.LockedBalance != 0 {
		t.Errorf("balance: %+v", got.Balance)
	}
	if got.Vault.TotalBorrowed != 0 || got.Vault.TraderCollateral != 0 {
		t.Errorf("vault not released: %+v", got.Vault)
	}
	if got.Position.ClosedAt != 100 || got.Position.Status != state.PositionStatusClosed {
		t.Errorf("position: closed %d status %s", got.Position.ClosedAt, got.Position.Status)
	}
	if got.Trader.ActivePosition != 0 || got.Market.TotalActivePositions != 0 || got.Trader.PositionCount != 1 {
		t.Errorf("counters: %+v %+v", got.Trader, got.Market)
	}

	if _, _, err := e.ClosePosition(got, traderID, 50_000*usd, 101); !errors.Is(err, errcode.PositionAlreadyClosed) {
		t.Errorf("second close: got %v", err)
	}
}

func TestClosePosition_OnlyOwner(t *testing.T) {
	e := newEngine()
	b := mustOpen(t, e, newBook(t, e), 100)

	if _, _, err := e.ClosePosition(b, adminID, 50_000*usd, 101); !errors.Is(err, errcode.Unauthorized) {
		t.Errorf("got %v, want Unauthorized", err)
	}
}

func TestClosePosition_AccruesFundingFirst(t *testing.T) {
	e := newEngine()
	b := mustOpen(t, e, newBook(t, e), 100)

	got, out, err := e.ClosePosition(b, traderID, 50_000*usd, 100+72_000)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// one 8h period at 10 bps on $5,000
	if out.Funding.Payment.Amount != 5*usd || !out.Funding.Accrued {
		t.Errorf("funding: %+v", out.Funding)
	}
	if got.Position.CumulativeFundingPaid != 5*usd {
		t.Errorf("cumulative: got %d", got.Position.CumulativeFundingPaid)
	}
	// Flat price: net PnL is gross - funding saturated at zero, so only
	// the $5 fee comes off.
	if out.Settlement.AmountToReturn != 994*usd {
		t.Errorf("returned: got %d, want %d", out.Settlement.AmountToReturn, 994*usd)
	}
}

func TestClosePosition_FundingAddsToLoss(t *testing.T) {
	e := newEngine()
	b := mustOpen(t, e, newBook(t, e), 100)

	got, out, err := e.ClosePosition(b, traderID, 49_000*usd, 100+72_000)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	// 10 bps on the $4,900 notional at the close price
	if out.Funding.Payment.Amount != 4_900_000 {
		t.Errorf("funding: got %d, want %d", out.Funding.Payment.Amount, 4_900_000)
	}
	// $999 - ($100 loss + $4.90 funding) - $5 fee
	if out.Settlement.AmountToReturn != 889_100_000 {
		t.Errorf("returned: got %d, want %d", out.Settlement.AmountToReturn, 889_100_000)
	}
	if got.Balance.Balance != 99_000*usd+889_100_000 {
		t.Errorf("balance: got %d", got.Balance.Balance)
	}
}

// ============================================================================
// Test: AccrueFunding
// ============================================================================

func TestAccrueFunding_Idempotent(t *testing.T) {
	e := newEngine()
	b := mustOpen(t, e, newBook(t, e), 100)

	once, out, err := e.AccrueFunding(b, 50_000*usd, 100+72_000)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if !out.Accrued || once.Position.CumulativeFundingPaid != 5*usd {
		t.Fatalf("first accrual: %+v cumulative %d", out, once.Position.CumulativeFundingPaid)
	}

	twice, out, err := e.AccrueFunding(once, 50_000*usd, 100+72_000)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if out.Accrued || twice.Position != once.Position {
		t.Errorf("replayed tick changed the position: %+v", out)
	}

	back, _, err := e.AccrueFunding(once, 50_000*usd, 500)
	if err != nil {
		t.Fatalf("earlier tick: %v", err)
	}
	if back.Position.LastFundingSlot != 100+72_000 {
		t.Errorf("watermark moved back to %d", back.Position.LastFundingSlot)
	}
}

func TestAccrueFunding_UsesStoredRate(t *testing.T) {
	fm := state.NewFundingManager(state.DefaultFundingRateBps)
	if _, err := fm.StoreFundingSnapshot(state.FundingSnapshot{Pair: "BTC-USD", EpochID: 0, RateBps: -20, Tick: 1}); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	e := core.NewEngine(fm)
	b := mustOpen(t, e, newBook(t, e), 100)
	b.Position.CumulativeFundingPaid = 25 * usd

	got, out, err := e.AccrueFunding(b, 50_000*usd, 100+72_000)
	if err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if out.RateBps != -20 || out.Payment.IsPayment {
		t.Errorf("rate: %+v", out)
	}
	if got.Position.CumulativeFundingPaid != 15*usd {
		t.Errorf("cumulative: got %d, want %d", got.Position.CumulativeFundingPaid, 15*usd)
	}
}

// ============================================================================
// Test: Liquidation and keeper
// ============================================================================

func TestLiquidatePosition(t *testing.T) {
	e := newEngine()
	b := mustOpen(t, e, newBook(t, e), 100)

	if _, _, err := e.LiquidatePosition(b, 50_000*usd, 100); !errors.Is(err, errcode.PositionNotLiquidatable) {
		t.Fatalf("healthy: got %v", err)
	}

	got, out, err := e.LiquidatePosition(b, 41_000*usd, 100)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	s := out.Settlement
	if s.HealthBps >= state.HealthLiquidationThreshold {
		t.Errorf("health: got %d", s.HealthBps)
	}
	// $999 - $900 loss - $5 fee = $94; 5% of collateral goes to the reward.
	if s.Reward != 49_950_000 {
		t.Errorf("reward: got %d", s.Reward)
	}
	if got.Balance.Balance != 99_000*usd+44_050_000 {
		t.Errorf("balance: got %d", got.Balance.Balance)
	}
	if got.Vault.AccumulatedLiquidationRewards != 49_950_000 {
		t.Errorf("rewards: got %d", got.Vault.AccumulatedLiquidationRewards)
	}
	if got.Position.Status != state.PositionStatusLiquidated || got.Position.ClosedAt != 100 {
		t.Errorf("position: %s at %d", got.Position.Status, got.Position.ClosedAt)
	}
	if got.Market.TotalActivePositions != 0 || got.Trader.ActivePosition != 0 {
		t.Errorf("counters: %+v %+v", got.Market, got.Trader)
	}
}

func TestRebalanceOrLiquidate(t *testing.T) {
	tests := []struct {
		name  string
		price uint64
		want  state.KeeperAction
	}{
		{"healthy and short of target", 52_000 * usd, state.KeeperActionNone},
		{"target crossed", 55_000 * usd, state.KeeperActionRebalance},
		{"undercollateralized", 41_000 * usd, state.KeeperActionLiquidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine()
			b := mustOpen(t, e, newBook(t, e), 100)

			got, out, err := e.RebalanceOrLiquidate(b, tt.price, 200)
			if err != nil {
				t.Fatalf("keeper: %v", err)
			}
			if out.Action != tt.want {
				t.Fatalf("action: got %s, want %s", out.Action, tt.want)
			}

			switch tt.want {
			case state.KeeperActionNone:
				if !got.Position.IsOpen() || got.Position.LastFundingSlot != 200 {
					t.Errorf("funding not accrued: %+v", got.Position)
				}
			case state.KeeperActionRebalance:
				if out.Rebalance == nil || !out.Rebalance.Rebalanced {
					t.Fatalf("rebalance outcome: %+v", out.Rebalance)
				}
				if got.Position.RebalanceCount != 1 || got.Position.ActualEnteredPrice != 55_000*usd {
					t.Errorf("position: %+v", got.Position)
				}
				if got.Position.CurrentTargetPrice != 60_500*usd {
					t.Errorf("new target: got %d", got.Position.CurrentTargetPrice)
				}
				if got.Balance.Balance != b.Balance.Balance+out.Rebalance.Result.TraderPayout() {
					t.Errorf("payout not credited: %d", got.Balance.Balance)
				}
			case state.KeeperActionLiquidate:
				if out.Liquidation == nil || got.Position.Status != state.PositionStatusLiquidated {
					t.Errorf("not liquidated: %+v", got.Position)
				}
			}
		})
	}
}

func TestRebalancePosition_OnlyOwner(t *testing.T) {
	e := newEngine()
	b := mustOpen(t, e, newBook(t, e), 100)

	if _, _, err := e.RebalancePosition(b, adminID, 55_000*usd, 200); !errors.Is(err, errcode.Unauthorized) {
		t.Errorf("got %v, want Unauthorized", err)
	}
	got, out, err := e.RebalancePosition(b, traderID, 52_000*usd, 200)
	if err != nil {
		t.Fatalf("rebalance: %v", err)
	}
	if out.Rebalanced || got.Position.RebalanceCount != 0 {
		t.Errorf("rebalanced below target: %+v", out)
	}
}

// ============================================================================
// Test: Conservation
// ============================================================================

func TestPositionOps_ConserveMoney(t *testing.T) {
	holdings := func(b *core.Book) ledger.Holdings { return ledger.HoldingsOf(&b.Vault, &b.Balance) }

	e := newEngine()
	start := newBook(t, e)
	open := mustOpen(t, e, start, 100)
	if _, err := ledger.Diff("open_position", holdings(&start), holdings(&open)); err != nil {
		t.Fatalf("open: %v", err)
	}

	closes := []struct {
		name  string
		price uint64
	}{
		{"flat", 50_000 * usd},
		{"profit", 54_000 * usd},
		{"loss", 47_000 * usd},
	}
	for _, tt := range closes {
		t.Run("close "+tt.name, func(t *testing.T) {
			got, _, err := e.ClosePosition(open, traderID, tt.price, 100)
			if err != nil {
				t.Fatalf("close: %v", err)
			}
			batch, err := ledger.Diff("close_position", holdings(&open), holdings(&got))
			if err != nil {
				t.Fatalf("diff: %v", err)
			}
			if len(batch.Journals) == 0 {
				t.Error("close should move money")
			}
		})
	}

	t.Run("liquidate", func(t *testing.T) {
		got, _, err := e.LiquidatePosition(open, 41_000*usd, 100)
		if err != nil {
			t.Fatalf("liquidate: %v", err)
		}
		if _, err := ledger.Diff("liquidate_position", holdings(&open), holdings(&got)); err != nil {
			t.Errorf("diff: %v", err)
		}
	})
}
