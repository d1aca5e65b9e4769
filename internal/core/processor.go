package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pgx404/RegretMarket/internal/clock"
	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/event"
	"github.com/pgx404/RegretMarket/internal/ledger"
	"github.com/pgx404/RegretMarket/internal/observability"
	"github.com/pgx404/RegretMarket/internal/oracle"
	"github.com/pgx404/RegretMarket/internal/persistence"
	"github.com/pgx404/RegretMarket/internal/state"
)

// EventSink receives the envelopes of every committed operation, in
// sequence order.
type EventSink interface {
	Emit(ctx context.Context, envs []event.Envelope) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, envs []event.Envelope) error

func (f EventSinkFunc) Emit(ctx context.Context, envs []event.Envelope) error {
	return f(ctx, envs)
}

// ChannelSink fans envelopes out to downstream workers (event log,
// publisher). A full channel blocks the processor.
type ChannelSink []chan<- event.Envelope

func (s ChannelSink) Emit(ctx context.Context, envs []event.Envelope) error {
	for _, env := range envs {
		for _, ch := range s {
			select {
			case ch <- env:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// Processor runs engine operations against the record store. For each
// operation it loads the records inside one store transaction, reads the
// oracle and clock, applies the engine, writes the results back and, after
// commit, chains and emits the resulting events.
//
// Mutating operations are serialized so that sequence order equals commit
// order.
type Processor struct {
	engine  *Engine
	store   persistence.Store
	feed    oracle.PriceFeed
	clock   clock.Clock
	hasher  *StateHasher
	idem    *IdempotencyChecker
	sink    EventSink
	metrics *observability.Metrics
	logger  zerolog.Logger

	mu sync.Mutex
}

// ProcessorConfig wires a Processor. Hasher, Idempotency and Sink are
// optional.
type ProcessorConfig struct {
	Engine      *Engine
	Store       persistence.Store
	Feed        oracle.PriceFeed
	Clock       clock.Clock
	Hasher      *StateHasher
	Idempotency *IdempotencyChecker
	Sink        EventSink
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	p := &Processor{
		engine:  cfg.Engine,
		store:   cfg.Store,
		feed:    cfg.Feed,
		clock:   cfg.Clock,
		hasher:  cfg.Hasher,
		idem:    cfg.Idempotency,
		sink:    cfg.Sink,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	if p.engine == nil {
		p.engine = NewEngine(nil)
	}
	if p.hasher == nil {
		p.hasher = NewStateHasher()
	}
	if p.idem == nil {
		p.idem = NewIdempotencyChecker(1024, nil, cfg.Metrics)
	}
	return p
}

// Engine returns the engine the processor applies.
func (p *Processor) Engine() *Engine {
	return p.engine
}

// Store returns the record store.
func (p *Processor) Store() persistence.Store {
	return p.store
}

// Hasher returns the event chain.
func (p *Processor) Hasher() *StateHasher {
	return p.hasher
}

// PositionRef addresses one position.
type PositionRef struct {
	Owner      uuid.UUID `json:"owner"`
	Pair       string    `json:"pair"`
	PositionID uint64    `json:"position_id"`
}

// staged is what an operation hands back from inside its transaction.
type staged struct {
	events  []event.Event
	records []Canonical
}

func (s *staged) add(ev event.Event) {
	s.events = append(s.events, ev)
}

// run executes one operation. fn runs inside a store transaction; its
// writes, and the events it stages, take effect only if it returns nil.
func (p *Processor) run(ctx context.Context, op, requestID string, fn func(tx persistence.Tx, tick uint64, out *staged) error) error {
	start := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	dup, err := p.idem.IsDuplicate(ctx, op, requestID)
	if err != nil {
		err = fmt.Errorf("idempotency lookup: %w", err)
		p.reject(op, requestID, err)
		return err
	}
	if dup {
		p.reject(op, requestID, errcode.DuplicateRequest)
		return errcode.DuplicateRequest
	}

	tick := p.clock.Tick()

	var out staged
	var envs []event.Envelope
	err = p.store.Update(ctx, func(tx persistence.Tx) error {
		out = staged{}
		envs = envs[:0]
		if err := fn(tx, tick, &out); err != nil {
			return err
		}
		for _, ev := range out.events {
			env, err := event.NewEnvelope(requestID, tick, ev)
			if err != nil {
				return err
			}
			envs = append(envs, env)
		}
		return nil
	})
	if err != nil {
		p.reject(op, requestID, err)
		return err
	}

	p.idem.MarkProcessed(requestID)

	if len(envs) > 0 {
		hashStart := time.Now()
		digest := StateDigest(out.records...)
		for i := range envs {
			p.hasher.Chain(&envs[i], digest)
		}
		if p.metrics != nil {
			p.metrics.StateHashDur.Observe(time.Since(hashStart).Seconds())
			p.metrics.Sequence.Set(float64(envs[len(envs)-1].Sequence))
		}
		if p.sink != nil {
			if err := p.sink.Emit(context.WithoutCancel(ctx), envs); err != nil {
				// The operation is committed; the sink owns delivery.
				p.logger.Error().Err(err).Str("op", op).Msg("emit events")
			}
		}
	}

	if p.metrics != nil {
		p.metrics.OpsApplied.WithLabelValues(op).Inc()
		p.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
	p.logger.Debug().
		Str("op", op).
		Str("request_id", requestID).
		Uint64("tick", tick).
		Int("events", len(envs)).
		Msg("applied")

	return nil
}

func (p *Processor) reject(op, requestID string, err error) {
	code := errcode.From(err)
	if p.metrics != nil {
		p.metrics.OpsRejected.WithLabelValues(op, code.String()).Inc()
	}
	ev := p.logger.Warn()
	if code == errcode.Unknown {
		ev = p.logger.Error()
	}
	ev.Err(err).
		Str("op", op).
		Str("request_id", requestID).
		Str("code", code.String()).
		Msg("rejected")
}

// price reads and normalizes the oracle price of a market.
func (p *Processor) price(ctx context.Context, m *state.Market) (uint64, error) {
	price, err := oracle.GetNormalizedPrice(ctx, p.feed, m.FeedID)
	if err != nil {
		return 0, fmt.Errorf("price %s: %w", m.Pair, err)
	}
	return price, nil
}

// --- Admin ---

// InitializeRequest starts the protocol.
type InitializeRequest struct {
	Admin  uuid.UUID          `json:"admin"`
	Params state.ConfigParams `json:"params"`
}

func (p *Processor) InitializeConfig(ctx context.Context, requestID string, req InitializeRequest) (state.Config, error) {
	var cfg state.Config
	err := p.run(ctx, "initialize_config", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		exists, err := persistence.ConfigExists(tx)
		if err != nil {
			return err
		}
		cfg, err = p.engine.InitializeConfig(exists, req.Admin, req.Params, tick)
		if err != nil {
			return err
		}
		if err := tx.Create(state.ConfigKey(), cfg); err != nil {
			return err
		}
		out.add(&event.ConfigInitialized{Admin: req.Admin, Params: req.Params})
		out.records = []Canonical{&cfg}
		return nil
	})
	return cfg, err
}

// UpdateConfigRequest replaces the protocol parameters.
type UpdateConfigRequest struct {
	Signer uuid.UUID          `json:"signer"`
	Params state.ConfigParams `json:"params"`
}

func (p *Processor) UpdateConfig(ctx context.Context, requestID string, req UpdateConfigRequest) (state.Config, error) {
	var cfg state.Config
	err := p.run(ctx, "update_config", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		cur, err := persistence.LoadConfig(tx)
		if err != nil {
			return err
		}
		cfg, err = p.engine.UpdateConfig(cur, req.Signer, req.Params, tick)
		if err != nil {
			return err
		}
		if err := tx.Put(state.ConfigKey(), cfg); err != nil {
			return err
		}
		out.add(&event.ConfigUpdated{Signer: req.Signer, Params: req.Params})
		out.records = []Canonical{&cfg}
		return nil
	})
	return cfg, err
}

// PauseRequest flips the pause flag on config, a market or a vault. Target
// is the pair or token mint.
type PauseRequest struct {
	Signer uuid.UUID        `json:"signer"`
	Scope  event.PauseScope `json:"scope"`
	Target string           `json:"target"`
	Paused bool             `json:"paused"`
}

func (p *Processor) SetPaused(ctx context.Context, requestID string, req PauseRequest) error {
	return p.run(ctx, "set_paused", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		cfg, err := persistence.LoadConfig(tx)
		if err != nil {
			return err
		}

		switch req.Scope {
		case event.PauseScopeConfig:
			cfg, err = p.engine.SetConfigPaused(cfg, req.Signer, req.Paused, tick)
			if err != nil {
				return err
			}
			if err := tx.Put(state.ConfigKey(), cfg); err != nil {
				return err
			}
			out.records = []Canonical{&cfg}

		case event.PauseScopeMarket:
			m, err := persistence.LoadMarket(tx, req.Target)
			if err != nil {
				return err
			}
			m, err = p.engine.SetMarketPaused(cfg, m, req.Signer, req.Paused)
			if err != nil {
				return err
			}
			if err := tx.Put(m.Key(), m); err != nil {
				return err
			}
			out.records = []Canonical{&m}

		case event.PauseScopeVault:
			v, err := persistence.LoadVault(tx, req.Target)
			if err != nil {
				return err
			}
			v, err = p.engine.SetVaultPaused(cfg, v, req.Signer, req.Paused)
			if err != nil {
				return err
			}
			if err := tx.Put(v.Key(), v); err != nil {
				return err
			}
			out.records = []Canonical{&v}

		default:
			return fmt.Errorf("pause scope %q: %w", req.Scope, errcode.InvalidInput)
		}

		out.add(&event.PauseChanged{Scope: req.Scope, Target: req.Target, Paused: req.Paused, Signer: req.Signer})
		return nil
	})
}

// --- Pools ---

func (p *Processor) CreatePool(ctx context.Context, requestID, tokenMint string) (state.Vault, error) {
	var v state.Vault
	err := p.run(ctx, "create_pool", requestID, func(tx persistence.Tx, _ uint64, out *staged) error {
		cfg, err := persistence.LoadConfig(tx)
		if err != nil {
			return err
		}
		v, err = p.engine.CreatePool(cfg, tokenMint)
		if err != nil {
			return err
		}
		if err := tx.Create(v.Key(), v); err != nil {
			return err
		}
		out.add(&event.PoolCreated{TokenMint: v.TokenMint, LPDeposit: v.LPDeposit})
		out.records = []Canonical{&v}
		return nil
	})
	return v, err
}

func (p *Processor) FundPool(ctx context.Context, requestID, tokenMint string) (state.Vault, error) {
	var v state.Vault
	err := p.run(ctx, "fund_pool", requestID, func(tx persistence.Tx, _ uint64, out *staged) error {
		cfg, err := persistence.LoadConfig(tx)
		if err != nil {
			return err
		}
		cur, err := persistence.LoadVault(tx, tokenMint)
		if err != nil {
			return err
		}
		v, err = p.engine.FundPool(cfg, cur)
		if err != nil {
			return err
		}
		if err := tx.Put(v.Key(), v); err != nil {
			return err
		}
		out.add(&event.PoolFunded{TokenMint: v.TokenMint, Amount: v.LPDeposit - cur.LPDeposit, LPDeposit: v.LPDeposit})
		out.records = []Canonical{&v}
		return nil
	})
	return v, err
}

// --- Markets ---

// OpenMarketRequest lists a trading pair.
type OpenMarketRequest struct {
	Pair     string `json:"pair"`
	Decimals uint8  `json:"decimals"`
	FeedID   string `json:"feed_id"`
}

func (p *Processor) OpenMarket(ctx context.Context, requestID string, req OpenMarketRequest) (state.Market, error) {
	var m state.Market
	err := p.run(ctx, "open_market", requestID, func(tx persistence.Tx, _ uint64, out *staged) error {
		cfg, err := persistence.LoadConfig(tx)
		if err != nil {
			return err
		}
		m, err = p.engine.OpenMarket(cfg, req.Pair, req.Decimals, req.FeedID)
		if err != nil {
			return err
		}
		if err := tx.Create(m.Key(), m); err != nil {
			return err
		}
		out.add(&event.MarketOpened{Pair: m.Pair, Decimals: m.Decimals, FeedID: m.FeedID})
		out.records = []Canonical{&m}
		return nil
	})
	return m, err
}

// UpdateMarketRequest changes a market's feed when FeedID is set.
type UpdateMarketRequest struct {
	Signer uuid.UUID `json:"signer"`
	Pair   string    `json:"pair"`
	FeedID *string   `json:"feed_id,omitempty"`
}

func (p *Processor) UpdateMarket(ctx context.Context, requestID string, req UpdateMarketRequest) (state.Market, error) {
	var m state.Market
	err := p.run(ctx, "update_market", requestID, func(tx persistence.Tx, _ uint64, out *staged) error {
		cfg, err := persistence.LoadConfig(tx)
		if err != nil {
			return err
		}
		cur, err := persistence.LoadMarket(tx, req.Pair)
		if err != nil {
			return err
		}
		m, err = p.engine.UpdateMarket(cfg, cur, req.Signer, req.FeedID)
		if err != nil {
			return err
		}
		if err := tx.Put(m.Key(), m); err != nil {
			return err
		}
		out.add(&event.MarketUpdated{Pair: m.Pair, FeedID: m.FeedID, Signer: req.Signer})
		out.records = []Canonical{&m}
		return nil
	})
	return m, err
}

// --- Traders ---

// TraderRequest names a trader's balance in one collateral asset.
type TraderRequest struct {
	Owner     uuid.UUID `json:"owner"`
	TokenMint string    `json:"token_mint"`
}

func (p *Processor) RegisterTrader(ctx context.Context, requestID string, req TraderRequest) (state.TraderBalance, error) {
	var bal state.TraderBalance
	err := p.run(ctx, "register_trader", requestID, func(tx persistence.Tx, _ uint64, out *staged) error {
		cfg, err := persistence.LoadConfig(tx)
		if err != nil {
			return err
		}
		v, err := persistence.LoadVault(tx, req.TokenMint)
		if err != nil {
			return err
		}
		trader, b, err := p.engine.RegisterTrader(cfg, v, req.Owner)
		if err != nil {
			return err
		}
		if err := tx.Create(trader.Key(), trader); err != nil {
			return err
		}
		if err := tx.Create(b.Key(), b); err != nil {
			return err
		}
		bal = b
		out.add(&event.TraderRegistered{Owner: b.Owner, TokenMint: b.TokenMint, Balance: b.Balance})
		out.records = []Canonical{&trader, &b}
		return nil
	})
	return bal, err
}

func (p *Processor) ClaimVirtualBalance(ctx context.Context, requestID string, req TraderRequest) (state.TraderBalance, error) {
	var bal state.TraderBalance
	err := p.run(ctx, "claim_virtual_balance", requestID, func(tx persistence.Tx, _ uint64, out *staged) error {
		cfg, err := persistence.LoadConfig(tx)
		if err != nil {
			return err
		}
		cur, err := persistence.LoadBalance(tx, req.Owner, req.TokenMint)
		if err != nil {
			return err
		}
		bal, err = p.engine.ClaimVirtualBalance(cfg, cur)
		if err != nil {
			return err
		}
		if err := tx.Put(bal.Key(), bal); err != nil {
			return err
		}
		out.add(&event.VirtualBalanceClaimed{
			Owner:     bal.Owner,
			TokenMint: bal.TokenMint,
			Amount:    bal.Balance - cur.Balance,
			Balance:   bal.Balance,
		})
		out.records = []Canonical{&bal}
		return nil
	})
	return bal, err
}

// --- Funding ---

// StoreFundingSnapshot records a new funding epoch. Replayed epochs are
// accepted silently and emit nothing; gaps fail InvalidInput.
func (p *Processor) StoreFundingSnapshot(ctx context.Context, requestID string, snap state.FundingSnapshot) (bool, error) {
	var stored bool
	err := p.run(ctx, "store_funding_snapshot", requestID, func(tx persistence.Tx, tick uint64, out *staged) error {
		if _, err := persistence.LoadMarket(tx, snap.Pair); err != nil {
			return err
		}
		if snap.Tick == 0 {
			snap.Tick = tick
		}
		var err error
		stored, err = p.engine.Funding().StoreFundingSnapshot(snap)
		if err != nil {
			return err
		}
		if stored {
			out.add(&event.FundingRateSnapshot{FundingSnapshot: snap})
		}
		return nil
	})
	return stored, err
}

// --- Book loading ---

// loadBook reads a position and every record it is tied to, in a fixed
// order.
func loadBook(tx persistence.Tx, ref PositionRef) (Book, error) {
	var b Book
	var err error

	if b.Config, err = persistence.LoadConfig(tx); err != nil {
		return Book{}, err
	}
	if b.Market, err = persistence.LoadMarket(tx, ref.Pair); err != nil {
		return Book{}, err
	}
	if b.Position, err = persistence.LoadPosition(tx, ref.Pair, ref.Owner, ref.PositionID); err != nil {
		if errors.Is(err, errcode.RecordNotFound) {
			return Book{}, fmt.Errorf("%w: %v", errcode.InvalidPositionId, err)
		}
		return Book{}, err
	}
	if b.Vault, err = persistence.LoadVault(tx, b.Position.TokenMint); err != nil {
		return Book{}, err
	}
	if b.Trader, err = persistence.LoadTrader(tx, ref.Owner); err != nil {
		return Book{}, err
	}
	if b.Balance, err = persistence.LoadBalance(tx, ref.Owner, b.Position.TokenMint); err != nil {
		return Book{}, err
	}
	return b, nil
}

// saveBook writes back every mutable record of b.
func saveBook(tx persistence.Tx, b *Book) error {
	writes := []struct {
		key string
		v   any
	}{
		{b.Market.Key(), b.Market},
		{b.Vault.Key(), b.Vault},
		{b.Trader.Key(), b.Trader},
		{b.Balance.Key(), b.Balance},
		{b.Position.Key(), b.Position},
	}
	for _, w := range writes {
		if err := tx.Put(w.key, w.v); err != nil {
			return err
		}
	}
	return nil
}

// checkConserved derives the journals between two states of a book and
// fails the operation if money appeared or vanished across its buckets.
func (p *Processor) checkConserved(op string, before, after *Book) error {
	batch, err := ledger.Diff(op,
		ledger.HoldingsOf(&before.Vault, &before.Balance),
		ledger.HoldingsOf(&after.Vault, &after.Balance))
	if err != nil {
		return err
	}
	for _, j := range batch.Journals {
		p.logger.Debug().
			Str("op", op).
			Str("debit", j.DebitAccount.AccountPath()).
			Str("credit", j.CreditAccount.AccountPath()).
			Uint64("amount", j.Amount).
			Msg("journal")
	}
	return nil
}

func (b *Book) records() []Canonical {
	return []Canonical{&b.Market, &b.Vault, &b.Trader, &b.Balance, &b.Position}
}
