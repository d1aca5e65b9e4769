package state

// Market is one trading pair.
type Market struct {
	Pair                 string `json:"pair"`
	Decimals             uint8  `json:"decimals"`
	FeedID               string `json:"feed_id"`
	TotalActivePositions uint64 `json:"total_active_positions"`
	IsPaused             bool   `json:"is_paused"`
}

// CanonicalBytes returns deterministic serialization for hashing
func (m *Market) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = appendString(buf, m.Pair)
	buf = append(buf, m.Decimals)
	buf = appendString(buf, m.FeedID)
	buf = appendUint64LE(buf, m.TotalActivePositions)
	buf = appendBool(buf, m.IsPaused)
	return buf
}

func (m *Market) Key() string {
	return MarketKey(m.Pair)
}
