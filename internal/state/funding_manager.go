package state

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pgx404/RegretMarket/internal/errcode"
)

// DefaultFundingRateBps applies to a market until its first snapshot.
const DefaultFundingRateBps int64 = 10

// FundingManager tracks funding epochs per market and serves the rate used
// for accrual.
type FundingManager struct {
	mu                sync.RWMutex
	snapshots         map[string]*FundingSnapshot // key: "pair:epoch_id"
	latest            map[string]*FundingSnapshot // pair -> last stored
	expectedNextEpoch map[string]int64            // pair -> next epoch_id
	defaultRateBps    int64
}

type FundingSnapshot struct {
	Pair      string `json:"pair"`
	EpochID   int64  `json:"epoch_id"`
	RateBps   int64  `json:"rate_bps"` // per 8h, signed
	MarkPrice uint64 `json:"mark_price"`
	Tick      uint64 `json:"tick"`
}

func NewFundingManager(defaultRateBps int64) *FundingManager {
	return &FundingManager{
		snapshots:         make(map[string]*FundingSnapshot),
		latest:            make(map[string]*FundingSnapshot),
		expectedNextEpoch: make(map[string]int64),
		defaultRateBps:    defaultRateBps,
	}
}

// StoreFundingSnapshot validates and stores a funding snapshot.
// Epochs below the expected one are duplicates and are skipped (stored =
// false, no error). Epochs above it are a gap and are rejected.
func (fm *FundingManager) StoreFundingSnapshot(snap FundingSnapshot) (stored bool, err error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	expected := fm.expectedNextEpoch[snap.Pair]

	if snap.EpochID < expected {
		return false, nil
	}

	if snap.EpochID > expected {
		return false, fmt.Errorf("funding epoch gap for %s: expected=%d, got=%d: %w",
			snap.Pair, expected, snap.EpochID, errcode.InvalidInput)
	}

	s := snap
	fm.snapshots[snapshotKey(snap.Pair, snap.EpochID)] = &s
	fm.latest[snap.Pair] = &s
	fm.expectedNextEpoch[snap.Pair] = snap.EpochID + 1

	return true, nil
}

// CurrentRate returns the rate of the latest epoch, or the default.
func (fm *FundingManager) CurrentRate(pair string) int64 {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	if snap, ok := fm.latest[pair]; ok {
		return snap.RateBps
	}
	return fm.defaultRateBps
}

// GetFundingSnapshot retrieves a stored snapshot
func (fm *FundingManager) GetFundingSnapshot(pair string, epochID int64) (FundingSnapshot, bool) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	snap, ok := fm.snapshots[snapshotKey(pair, epochID)]
	if !ok {
		return FundingSnapshot{}, false
	}
	return *snap, true
}

// Latest returns the most recent snapshot for a market.
func (fm *FundingManager) Latest(pair string) (FundingSnapshot, bool) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	snap, ok := fm.latest[pair]
	if !ok {
		return FundingSnapshot{}, false
	}
	return *snap, true
}

// NextEpoch returns the epoch id the manager will accept next.
func (fm *FundingManager) NextEpoch(pair string) int64 {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.expectedNextEpoch[pair]
}

// All returns every stored snapshot ordered by pair, then epoch.
func (fm *FundingManager) All() []FundingSnapshot {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	out := make([]FundingSnapshot, 0, len(fm.snapshots))
	for _, s := range fm.snapshots {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pair != out[j].Pair {
			return out[i].Pair < out[j].Pair
		}
		return out[i].EpochID < out[j].EpochID
	})
	return out
}

// Restore stores snaps in order. Epochs already held are skipped.
func (fm *FundingManager) Restore(snaps []FundingSnapshot) error {
	for _, s := range snaps {
		if _, err := fm.StoreFundingSnapshot(s); err != nil {
			return err
		}
	}
	return nil
}

func snapshotKey(pair string, epochID int64) string {
	return fmt.Sprintf("%s:%d", pair, epochID)
}
