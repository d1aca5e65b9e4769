package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/pgx404/RegretMarket/internal/errcode"
	"github.com/pgx404/RegretMarket/internal/state"
)

// Typed accessors over Tx. Every not-found is wrapped with the key so
// callers can still match errcode.RecordNotFound.

func get[T any](tx Tx, key string) (T, error) {
	var v T
	if err := tx.Get(key, &v); err != nil {
		return v, fmt.Errorf("load %s: %w", key, err)
	}
	return v, nil
}

func LoadConfig(tx Tx) (state.Config, error) {
	return get[state.Config](tx, state.ConfigKey())
}

// ConfigExists reports whether the protocol has been initialized.
func ConfigExists(tx Tx) (bool, error) {
	_, err := LoadConfig(tx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errcode.RecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

func LoadMarket(tx Tx, pair string) (state.Market, error) {
	return get[state.Market](tx, state.MarketKey(pair))
}

func LoadVault(tx Tx, tokenMint string) (state.Vault, error) {
	return get[state.Vault](tx, state.VaultKey(tokenMint))
}

func LoadTrader(tx Tx, owner uuid.UUID) (state.Trader, error) {
	return get[state.Trader](tx, state.TraderKey(owner))
}

func LoadBalance(tx Tx, owner uuid.UUID, tokenMint string) (state.TraderBalance, error) {
	return get[state.TraderBalance](tx, state.TraderBalanceKey(owner, tokenMint))
}

func LoadPosition(tx Tx, pair string, owner uuid.UUID, positionID uint64) (state.Position, error) {
	return get[state.Position](tx, state.PositionKey(pair, owner, positionID))
}

// ListPositions returns every position in a market, open or not.
func ListPositions(tx Tx, pair string) ([]state.Position, error) {
	recs, err := tx.Scan(state.MarketPositionsPrefix(pair))
	if err != nil {
		return nil, fmt.Errorf("scan positions %s: %w", pair, err)
	}
	out := make([]state.Position, 0, len(recs))
	for _, r := range recs {
		var p state.Position
		if err := json.Unmarshal(r.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.Key, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ListMarkets returns every listed market.
func ListMarkets(tx Tx) ([]state.Market, error) {
	recs, err := tx.Scan(string(state.KindMarket) + ":")
	if err != nil {
		return nil, fmt.Errorf("scan markets: %w", err)
	}
	out := make([]state.Market, 0, len(recs))
	for _, r := range recs {
		var m state.Market
		if err := json.Unmarshal(r.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", r.Key, err)
		}
		out = append(out, m)
	}
	return out, nil
}
