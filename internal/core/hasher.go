package core

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pgx404/RegretMarket/internal/event"
)

const GenesisHashSeed = "RegretMarket:genesis:v1"

// Canonical is any record with a deterministic byte encoding.
type Canonical interface {
	CanonicalBytes() []byte
}

// StateDigest hashes the canonical bytes of the records an operation wrote,
// in the order given.
func StateDigest(records ...Canonical) []byte {
	h := sha256.New()
	var lenBuf [4]byte
	for _, r := range records {
		b := r.CanonicalBytes()
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
		h.Write(lenBuf[:])
		h.Write(b)
	}
	return h.Sum(nil)
}

// StateHasher assigns sequences and chains event hashes:
//
//	state_hash[N] = SHA-256(prev_hash || N || event_type || payload || state_digest)
type StateHasher struct {
	mu       sync.Mutex
	sequence uint64
	prevHash [32]byte
}

// NewStateHasher starts a chain at the genesis hash, sequence 0.
func NewStateHasher() *StateHasher {
	return &StateHasher{prevHash: sha256.Sum256([]byte(GenesisHashSeed))}
}

// Restore resumes the chain after the event at sequence with hash.
func (h *StateHasher) Restore(sequence uint64, hash [32]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sequence = sequence
	h.prevHash = hash
}

// Chain assigns env the next sequence and fills its hashes.
func (h *StateHasher) Chain(env *event.Envelope, stateDigest []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sequence++
	env.Sequence = h.sequence
	env.PrevHash = h.prevHash
	env.StateHash = computeHash(h.prevHash, env, stateDigest)
	h.prevHash = env.StateHash
}

// Head returns the last sequence and hash of the chain.
func (h *StateHasher) Head() (uint64, [32]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sequence, h.prevHash
}

func computeHash(prev [32]byte, env *event.Envelope, stateDigest []byte) [32]byte {
	hasher := sha256.New()
	hasher.Write(prev[:])

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], env.Sequence)
	hasher.Write(buf[:])

	binary.LittleEndian.PutUint32(buf[:4], uint32(env.EventType))
	hasher.Write(buf[:4])

	hasher.Write(env.Payload)
	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// VerifyLinks checks that consecutive envelopes have contiguous sequences
// and that each one points at its predecessor's hash.
func VerifyLinks(envs []event.Envelope) error {
	for i := 1; i < len(envs); i++ {
		prev, cur := &envs[i-1], &envs[i]
		if cur.Sequence != prev.Sequence+1 {
			return fmt.Errorf("sequence gap: %d follows %d", cur.Sequence, prev.Sequence)
		}
		if cur.PrevHash != prev.StateHash {
			return fmt.Errorf("broken link at sequence %d", cur.Sequence)
		}
	}
	return nil
}
