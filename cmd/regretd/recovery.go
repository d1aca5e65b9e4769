package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/pgx404/RegretMarket/internal/core"
	"github.com/pgx404/RegretMarket/internal/event"
	"github.com/pgx404/RegretMarket/internal/persistence"
	"github.com/pgx404/RegretMarket/internal/state"
)

const replayPageSize = 1000

type recovery struct {
	Sequence      uint64
	FundingEpochs int
	WarmedKeys    int
}

// recoverState rebuilds the in-memory parts of the process: funding epochs
// from the latest snapshot plus the log after it, the hash chain head, and
// the request ids of replayed events. Records themselves live in the store
// and need no replay.
func recoverState(
	ctx context.Context,
	snapMgr *persistence.SnapshotManager,
	funding *state.FundingManager,
	hasher *core.StateHasher,
	idem *core.IdempotencyChecker,
	lruCapacity int,
) (recovery, error) {
	var rec recovery

	snap, err := snapMgr.LoadLatestSnapshot(ctx)
	if err != nil {
		return rec, err
	}
	from := uint64(1)
	if snap != nil {
		if err := funding.Restore(snap.Funding); err != nil {
			return rec, fmt.Errorf("restore funding from snapshot %d: %w", snap.Sequence, err)
		}
		from = snap.Sequence + 1
		log.Printf("INFO: loaded snapshot at sequence %d", snap.Sequence)
	} else {
		log.Println("INFO: no snapshot found, replaying from sequence 1")
	}

	var keys []string
	fundingType := event.EventTypeFundingRateSnapshot.String()
	for {
		rows, err := snapMgr.LoadEventsFrom(ctx, from, replayPageSize)
		if err != nil {
			return rec, fmt.Errorf("load events from %d: %w", from, err)
		}
		for _, row := range rows {
			if row.RequestID != "" {
				keys = append(keys, row.RequestID)
			}
			if row.EventType != fundingType {
				continue
			}
			var s state.FundingSnapshot
			if err := json.Unmarshal(row.Payload, &s); err != nil {
				return rec, fmt.Errorf("decode funding snapshot at %d: %w", row.Sequence, err)
			}
			if err := funding.Restore([]state.FundingSnapshot{s}); err != nil {
				return rec, fmt.Errorf("replay funding snapshot at %d: %w", row.Sequence, err)
			}
		}
		if len(keys) > 2*lruCapacity {
			keys = append(keys[:0], keys[len(keys)-lruCapacity:]...)
		}
		if len(rows) < replayPageSize {
			break
		}
		from = uint64(rows[len(rows)-1].Sequence) + 1
	}

	seq, hash, ok, err := snapMgr.ChainHead(ctx)
	if err != nil {
		return rec, fmt.Errorf("chain head: %w", err)
	}
	if ok {
		if snap != nil && seq == snap.Sequence && hash != snap.StateHash {
			return rec, fmt.Errorf("state hash mismatch at %d: snapshot %x, log %x", seq, snap.StateHash, hash)
		}
		hasher.Restore(seq, hash)
	}

	if len(keys) > lruCapacity {
		keys = keys[len(keys)-lruCapacity:]
	}
	idem.Warm(keys)

	rec.Sequence = seq
	rec.FundingEpochs = len(funding.All())
	rec.WarmedKeys = len(keys)
	return rec, nil
}

// runPeriodicSnapshots saves a snapshot whenever the chain has advanced by
// interval events.
func runPeriodicSnapshots(
	ctx context.Context,
	processor *core.Processor,
	snapMgr *persistence.SnapshotManager,
	funding *state.FundingManager,
	interval uint64,
) {
	if interval == 0 {
		interval = 10_000
	}

	lastSnapshotSeq, _ := processor.Hasher().Head()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq, _ := processor.Hasher().Head()
			if seq-lastSnapshotSeq < interval {
				continue
			}
			if err := takeSnapshot(ctx, processor, snapMgr, funding); err != nil {
				log.Printf("WARN: periodic snapshot failed: %v", err)
				continue
			}
			lastSnapshotSeq = seq
			log.Printf("INFO: periodic snapshot at sequence %d", seq)
		}
	}
}

// takeSnapshot records the chain head and funding epochs. An epoch stored
// after the head was read is replayed as a duplicate on recovery and
// skipped.
func takeSnapshot(
	ctx context.Context,
	processor *core.Processor,
	snapMgr *persistence.SnapshotManager,
	funding *state.FundingManager,
) error {
	seq, hash := processor.Hasher().Head()
	if seq == 0 {
		return nil
	}
	snap := &persistence.SnapshotData{
		Sequence:  seq,
		StateHash: hash,
		Funding:   funding.All(),
		CreatedAt: time.Now().UTC(),
	}
	if err := snapMgr.SaveSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
