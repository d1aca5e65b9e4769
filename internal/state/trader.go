package state

import "github.com/google/uuid"

// Trader is one trading identity. PositionCount issues position ids.
type Trader struct {
	Owner          uuid.UUID `json:"owner"`
	Privacy        bool      `json:"privacy"`
	PositionCount  uint64    `json:"position_count"`
	ActivePosition uint64    `json:"active_position"`
}

// CanonicalBytes returns deterministic serialization for hashing
func (t *Trader) CanonicalBytes() []byte {
	buf := make([]byte, 0, 40)
	buf = append(buf, t.Owner[:]...)
	buf = appendBool(buf, t.Privacy)
	buf = appendUint64LE(buf, t.PositionCount)
	buf = appendUint64LE(buf, t.ActivePosition)
	return buf
}

// Key returns the store key of the trader.
func (t *Trader) Key() string {
	return TraderKey(t.Owner)
}
