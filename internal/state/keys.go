package state

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind tags a record in the store.
type Kind string

const (
	KindConfig        Kind = "config"
	KindMarket        Kind = "market"
	KindVault         Kind = "vault"
	KindTrader        Kind = "trader"
	KindTraderBalance Kind = "trader_balance"
	KindPosition      Kind = "position"
)

// Name limits in bytes.
const (
	MaxPairLen      = 20
	MaxTokenMintLen = 10
	MaxFeedIDLen    = 70
)

// Record keys are derived deterministically from (owner, market, asset,
// sequence) so every record has exactly one address.

func ConfigKey() string {
	return string(KindConfig)
}

func MarketKey(pair string) string {
	return string(KindMarket) + ":" + pair
}

func VaultKey(tokenMint string) string {
	return string(KindVault) + ":" + tokenMint
}

func TraderKey(owner uuid.UUID) string {
	return string(KindTrader) + ":" + owner.String()
}

func TraderBalanceKey(owner uuid.UUID, tokenMint string) string {
	return string(KindTraderBalance) + ":" + owner.String() + ":" + tokenMint
}

func PositionKey(pair string, owner uuid.UUID, positionID uint64) string {
	return fmt.Sprintf("%s:%s:%s:%d", KindPosition, pair, owner, positionID)
}

// KindOf returns the kind encoded in a key.
func KindOf(key string) Kind {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return Kind(key[:i])
	}
	return Kind(key)
}

// MarketPositionsPrefix is the key prefix shared by every position in a
// market.
func MarketPositionsPrefix(pair string) string {
	return string(KindPosition) + ":" + pair + ":"
}
