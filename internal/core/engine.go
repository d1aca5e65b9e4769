package core

import (
	"strings"

	"github.com/google/uuid"

	"github.com/pgx404/RegretMarket/internal/errcode"
	fpmath "github.com/pgx404/RegretMarket/internal/math"
	"github.com/pgx404/RegretMarket/internal/state"
)

// Engine runs protocol operations over records passed by value. It never
// reads storage, the oracle or the clock: the caller supplies records,
// the normalized price and the tick, and commits what comes back only when
// the error is nil. A failed operation therefore never leaves a partial
// mutation behind.
type Engine struct {
	funding   *state.FundingManager
	insurance *state.InsuranceFund
}

// NewEngine creates an engine reading funding rates from funding.
func NewEngine(funding *state.FundingManager) *Engine {
	if funding == nil {
		funding = state.NewFundingManager(state.DefaultFundingRateBps)
	}
	return &Engine{
		funding:   funding,
		insurance: state.NewInsuranceFund(),
	}
}

// Funding returns the engine's funding rate source.
func (e *Engine) Funding() *state.FundingManager {
	return e.funding
}

// --- Config ---

// InitializeConfig creates the singleton Config. exists reports whether a
// Config record is already stored.
func (e *Engine) InitializeConfig(exists bool, admin uuid.UUID, p state.ConfigParams, tick uint64) (state.Config, error) {
	if exists {
		return state.Config{}, errcode.ProgramAlreadyStarted
	}
	if err := state.ValidateConfig(p); err != nil {
		return state.Config{}, err
	}
	return state.NewConfig(admin, p, tick), nil
}

// UpdateConfig replaces the tunable parameters. Admin only.
func (e *Engine) UpdateConfig(cfg state.Config, signer uuid.UUID, p state.ConfigParams, tick uint64) (state.Config, error) {
	if signer != cfg.Admin {
		return state.Config{}, errcode.Unauthorized
	}
	if err := state.ValidateConfig(p); err != nil {
		return state.Config{}, err
	}
	cfg.Apply(p)
	cfg.LastUpdated = tick
	return cfg, nil
}

// SetConfigPaused toggles the global pause. Admin only; unpausing a paused
// program is the one mutation allowed while paused.
func (e *Engine) SetConfigPaused(cfg state.Config, signer uuid.UUID, paused bool, tick uint64) (state.Config, error) {
	if signer != cfg.Admin {
		return state.Config{}, errcode.Unauthorized
	}
	cfg.IsPaused = paused
	cfg.LastUpdated = tick
	return cfg, nil
}

// SetMarketPaused toggles a market's pause flag. Admin only.
func (e *Engine) SetMarketPaused(cfg state.Config, m state.Market, signer uuid.UUID, paused bool) (state.Market, error) {
	if signer != cfg.Admin {
		return state.Market{}, errcode.Unauthorized
	}
	m.IsPaused = paused
	return m, nil
}

// SetVaultPaused toggles a vault's pause flag. Admin only.
func (e *Engine) SetVaultPaused(cfg state.Config, v state.Vault, signer uuid.UUID, paused bool) (state.Vault, error) {
	if signer != cfg.Admin {
		return state.Vault{}, errcode.Unauthorized
	}
	v.IsPaused = paused
	return v, nil
}

// --- Traders ---

// RegisterTrader creates a trader and their balance in tokenMint, seeded
// with state.InitialVirtualBalance.
func (e *Engine) RegisterTrader(cfg state.Config, v state.Vault, owner uuid.UUID) (state.Trader, state.TraderBalance, error) {
	if cfg.IsPaused {
		return state.Trader{}, state.TraderBalance{}, errcode.ProgramPaused
	}
	if owner == uuid.Nil {
		return state.Trader{}, state.TraderBalance{}, errcode.InvalidInput
	}

	trader := state.Trader{Owner: owner}
	balance := state.TraderBalance{
		Owner:     owner,
		TokenMint: v.TokenMint,
		Balance:   state.InitialVirtualBalance,
	}
	return trader, balance, nil
}

// ClaimVirtualBalance credits state.VirtualBalanceClaim.
func (e *Engine) ClaimVirtualBalance(cfg state.Config, b state.TraderBalance) (state.TraderBalance, error) {
	if cfg.IsPaused {
		return state.TraderBalance{}, errcode.ProgramPaused
	}
	balance, err := fpmath.CheckedAdd(b.Balance, state.VirtualBalanceClaim)
	if err != nil {
		return state.TraderBalance{}, err
	}
	b.Balance = balance
	return b, nil
}

// --- Pools ---

// CreatePool creates the vault for tokenMint seeded with
// state.InitialPoolDeposit.
func (e *Engine) CreatePool(cfg state.Config, tokenMint string) (state.Vault, error) {
	if cfg.IsPaused {
		return state.Vault{}, errcode.ProgramPaused
	}
	if !validName(tokenMint, state.MaxTokenMintLen) {
		return state.Vault{}, errcode.InvalidInput
	}
	return state.NewVault(tokenMint), nil
}

// FundPool adds state.PoolFundingAmount to lp_deposit.
func (e *Engine) FundPool(cfg state.Config, v state.Vault) (state.Vault, error) {
	if cfg.IsPaused {
		return state.Vault{}, errcode.ProgramPaused
	}
	deposit, err := fpmath.CheckedAdd(v.LPDeposit, state.PoolFundingAmount)
	if err != nil {
		return state.Vault{}, err
	}
	v.LPDeposit = deposit
	return v, nil
}

// --- Markets ---

// OpenMarket lists a trading pair priced by feedID.
func (e *Engine) OpenMarket(cfg state.Config, pair string, decimals uint8, feedID string) (state.Market, error) {
	if cfg.IsPaused {
		return state.Market{}, errcode.ProgramPaused
	}
	if !validName(pair, state.MaxPairLen) || !validFeed(feedID) || decimals > fpmath.MaxDecimals {
		return state.Market{}, errcode.InvalidInput
	}
	return state.Market{
		Pair:     pair,
		Decimals: decimals,
		FeedID:   feedID,
	}, nil
}

// UpdateMarket changes the price feed of a market when feedID is non-nil.
// Admin only.
func (e *Engine) UpdateMarket(cfg state.Config, m state.Market, signer uuid.UUID, feedID *string) (state.Market, error) {
	if cfg.IsPaused || m.IsPaused {
		return state.Market{}, errcode.ProgramPaused
	}
	if signer != cfg.Admin {
		return state.Market{}, errcode.Unauthorized
	}
	if feedID != nil {
		if !validFeed(*feedID) {
			return state.Market{}, errcode.InvalidInput
		}
		m.FeedID = *feedID
	}
	return m, nil
}

// validName accepts non-empty names of at most limit bytes that cannot
// collide inside a record key.
func validName(s string, limit int) bool {
	return s != "" && len(s) <= limit && !strings.ContainsRune(s, ':')
}

func validFeed(s string) bool {
	return s != "" && len(s) <= state.MaxFeedIDLen
}
