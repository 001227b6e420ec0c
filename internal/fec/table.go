package fec

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/exp/slices"
)

// DefaultMaxGroups is the default bound on live receive-side blocks
// (spec.md 3, "MAX_GROUPS (default 64)").
const DefaultMaxGroups = 64

// DefaultTTL is the default per-block time-to-live (spec.md 3, "default 5s").
const DefaultTTL = 5 * time.Second

// BlockTable is the receive-side block tracker (spec.md 4.4): it maps
// incoming data and parity shards to blocks, runs decode when viable, and
// evicts old or expired blocks. It is protected by a single lock covering
// lookup/insert, mutation, eviction, and decode, as spec.md 5 requires.
type BlockTable struct {
	mu sync.Mutex

	scheme Scheme
	k, m, n int

	maxGroups int
	ttl       time.Duration
	clock     Clock
	logger    logr.Logger

	blocks  map[int32]*RecvBlock
	rcvBase int32
	hasBase bool
}

// NewBlockTable builds a block tracker for the given scheme. A zero
// maxGroups or ttl falls back to the package defaults.
func NewBlockTable(scheme Scheme, maxGroups int, ttl time.Duration, clock Clock, logger logr.Logger) *BlockTable {
	if maxGroups <= 0 {
		maxGroups = DefaultMaxGroups
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &BlockTable{
		scheme:    scheme,
		k:         scheme.K(),
		m:         scheme.M(),
		n:         scheme.K() + scheme.M(),
		maxGroups: maxGroups,
		ttl:       ttl,
		clock:     clock,
		logger:    logger,
		blocks:    make(map[int32]*RecvBlock),
	}
}

// Len reports the number of live blocks, for tests asserting the MAX_GROUPS
// bound (spec.md 8, property 7).
func (t *BlockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.blocks)
}

// ErrOutOfWindowPacket is returned (not as a hard error, but as a classification)
// by ReceiveSource/ReceiveParity when a packet is too old to belong to any
// live or creatable block.
var ErrOutOfWindowPacket = fmt.Errorf("fec: packet is out of window")

// ReceiveSource handles an inbound source (data) packet. It returns no
// passthrough flag: the transport still delivers source packets to the
// application regardless of FEC state, so Filter always reports
// passthrough=true for them (spec.md 4.4 step 7). Blocks span k consecutive
// source sequence numbers, matching the sender's grouping.
func (t *BlockTable) ReceiveSource(seq int32, timestamp uint32, payload []byte) (rebuilt []Rebuilt, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasBase {
		t.rcvBase = seq
		t.hasBase = true
	}
	if Diff(seq, t.rcvBase) < 0 {
		return nil, ErrOutOfWindowPacket
	}

	t.gc(seq)

	base := BlockBase(seq, t.rcvBase, int32(t.k))
	idx := int(BlockOffset(seq, t.rcvBase, int32(t.k)))

	blk := t.getOrCreate(base)
	l := len(payload)
	shard := make([]byte, l)
	copy(shard, payload)
	if err := blk.AddData(idx, shard, timestamp); err != nil {
		return nil, err
	}

	rebuilt, err = t.maybeDecode(blk)
	t.dropIfDone(base, blk)
	return rebuilt, err
}

// ReceiveParity handles an inbound parity packet. blockSeqLow is the low 16
// bits of the block identifier from the parity header (spec.md 4.5);
// headerK is the header's echoed k, checked against the locally configured
// k. malformed is true (and no other state is mutated) if the header's k
// does not match.
func (t *BlockTable) ReceiveParity(blockSeqLow uint16, parityIndex int, headerK int, timestamp uint32, payload []byte) (rebuilt []Rebuilt, malformed bool, err error) {
	if headerK != t.k {
		t.logger.V(1).Info("dropping parity packet with mismatched k", "headerK", headerK, "localK", t.k)
		return nil, true, nil
	}
	if parityIndex < 0 || parityIndex >= t.m {
		return nil, true, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasBase {
		// A parity packet can arrive before any source packet in its block;
		// seed rcvBase from the header's low 16 bits, taken as a non-negative
		// value with the upper bits zero.
		t.rcvBase = int32(blockSeqLow)
		t.hasBase = true
	}

	base := resolveBlockID(blockSeqLow, t.rcvBase)
	if Diff(base, t.rcvBase) < 0 {
		return nil, false, ErrOutOfWindowPacket
	}

	t.gc(base)

	blk := t.getOrCreate(base)
	shard := make([]byte, len(payload))
	copy(shard, payload)
	if err := blk.AddParity(parityIndex, shard, timestamp); err != nil {
		return nil, false, err
	}

	rebuilt, err = t.maybeDecode(blk)
	t.dropIfDone(base, blk)
	return rebuilt, false, err
}

// dropIfDone frees a block's entry once it is done: either all k source
// shards are present (naturally or via decode) or it was successfully
// decoded. A block is destroyed on successful reconstruction of all source
// shards (spec.md 3/4.4) -- leaving it in the map would only let it linger
// until an incidental TTL/MAX_GROUPS sweep collects it.
func (t *BlockTable) dropIfDone(base int32, blk *RecvBlock) {
	if blk.done {
		delete(t.blocks, base)
	}
}

func (t *BlockTable) getOrCreate(base int32) *RecvBlock {
	blk, ok := t.blocks[base]
	if !ok {
		// Make room first so the insertion never takes the table past
		// MAX_GROUPS: drop the oldest block if the table is full.
		if len(t.blocks) >= t.maxGroups {
			oldest, first := int32(0), true
			for b := range t.blocks {
				if first || Less(b, oldest) {
					oldest, first = b, false
				}
			}
			delete(t.blocks, oldest)
		}
		blk = newRecvBlock(base, t.k, t.m, t.clock.Now())
		t.blocks[base] = blk
	}
	return blk
}

// maybeDecode runs the decoder if the block has enough shards and is not
// already done, per spec.md 4.4 step 6. An UnrecoverableLoss (too many
// erasures) is not surfaced as an error: the block is left in place awaiting
// more shards or eviction.
func (t *BlockTable) maybeDecode(blk *RecvBlock) ([]Rebuilt, error) {
	if blk.done || !blk.Decodable() {
		return nil, nil
	}
	if !blk.Recoverable() {
		// UnrecoverableLoss: leave state, let ARQ handle the gap.
		return nil, nil
	}
	rebuilt, err := blk.Decode(t.scheme)
	if err != nil {
		// DecodeFailure: corrupted parity or a bug. Shards are retained (the
		// block is not deleted) so later parity can retry.
		t.logger.Error(err, "fec decode failed despite erasures within capacity", "base", blk.Base())
		return nil, &DecodeError{Base: blk.Base(), Err: err}
	}
	return rebuilt, nil
}

// DecodeError classifies a DecodeFailure (spec.md 7): the RS decoder
// returned failure despite the erasure count being within the scheme's
// correction capacity, regardless of whether the triggering packet was a
// source or parity shard. Base identifies the affected block.
type DecodeError struct {
	Base int32
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("fec: decode failed for block base %d: %v", e.Base, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// resolveBlockID reconstructs the full 32-bit block identifier from its low
// 16 bits, choosing the candidate nearest to `near` in signed sequence
// space (spec.md 9, block-identifier bit width open question).
func resolveBlockID(low uint16, near int32) int32 {
	nearU := uint32(near)
	base := int32((nearU &^ 0xFFFF) | uint32(low))
	best := base
	bestDiff := abs32(Diff(base, near))
	for _, cand := range [2]int32{base + 0x10000, base - 0x10000} {
		if d := abs32(Diff(cand, near)); d < bestDiff {
			best, bestDiff = cand, d
		}
	}
	return best
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

// gc evicts blocks whose base is more than MAX_AGE packets behind refSeq,
// and any block exceeding its TTL, then enforces the MAX_GROUPS bound by
// dropping the oldest surviving blocks (spec.md 4.4 step 3, 8 property 7).
func (t *BlockTable) gc(refSeq int32) {
	maxAge := int32(t.maxGroups) * int32(t.n)
	now := t.clock.Now()

	for base, blk := range t.blocks {
		if Diff(refSeq, base) > maxAge {
			t.logger.V(1).Info("evicting block: exceeded max age", "base", base)
			delete(t.blocks, base)
			if Diff(base+int32(t.k), t.rcvBase) > 0 {
				t.rcvBase = base + int32(t.k)
			}
			continue
		}
		if now.Sub(blk.createdAt) > t.ttl {
			t.logger.V(1).Info("evicting block: TTL expired", "base", base)
			delete(t.blocks, base)
		}
	}

	if len(t.blocks) <= t.maxGroups {
		return
	}
	bases := make([]int32, 0, len(t.blocks))
	for base := range t.blocks {
		bases = append(bases, base)
	}
	slices.SortFunc(bases, func(a, b int32) bool { return Less(a, b) })
	for _, base := range bases {
		if len(t.blocks) <= t.maxGroups {
			break
		}
		delete(t.blocks, base)
	}
}
