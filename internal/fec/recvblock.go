package fec

import (
	"fmt"
	"time"
)

// Rebuilt is a reconstructed source packet, ready to be handed to the
// transport's provided queue.
type Rebuilt struct {
	Seq       int32
	Timestamp uint32
	Payload   []byte
}

// RecvBlock is the receive-side block state (spec.md 4.4): it accumulates
// data and parity shards for one block until it has enough to decode, or is
// evicted by age/TTL.
type RecvBlock struct {
	base int32
	k, m int

	haveData   []bool
	haveParity []bool
	data       [][]byte
	parity     [][]byte
	haveCount  int

	timestamp uint32
	tsSet     bool

	createdAt time.Time
	done      bool
}

func newRecvBlock(base int32, k, m int, createdAt time.Time) *RecvBlock {
	return &RecvBlock{
		base:       base,
		k:          k,
		m:          m,
		haveData:   make([]bool, k),
		haveParity: make([]bool, m),
		data:       make([][]byte, k),
		parity:     make([][]byte, m),
		createdAt:  createdAt,
	}
}

// Base returns this block's base sequence number.
func (b *RecvBlock) Base() int32 { return b.base }

// Done reports whether the block has already been fully decoded (or was
// already complete), so a repeat shard arrival cannot trigger a second
// decode.
func (b *RecvBlock) Done() bool { return b.done }

// AddData stores a source shard at within-block index idx, if not already
// present. It records the block's timestamp on first arrival of any shard.
func (b *RecvBlock) AddData(idx int, payload []byte, timestamp uint32) error {
	if idx < 0 || idx >= b.k {
		return fmt.Errorf("fec: data index %d out of range [0,%d)", idx, b.k)
	}
	if !b.tsSet {
		b.timestamp = timestamp
		b.tsSet = true
	}
	if b.haveData[idx] {
		// Idempotent: a repeat shard must not increase have_count.
		return nil
	}
	b.haveData[idx] = true
	b.data[idx] = payload
	b.haveCount++
	if b.IsComplete() {
		// All k source shards arrived without needing FEC: the block is
		// done the moment it completes naturally, same as a successful
		// decode (spec.md 4.4 state machine, [complete] -> [dropped]).
		b.done = true
	}
	return nil
}

// AddParity stores a parity shard at within-block index idx, if not already
// present.
func (b *RecvBlock) AddParity(idx int, payload []byte, timestamp uint32) error {
	if idx < 0 || idx >= b.m {
		return fmt.Errorf("fec: parity index %d out of range [0,%d)", idx, b.m)
	}
	if !b.tsSet {
		b.timestamp = timestamp
		b.tsSet = true
	}
	if b.haveParity[idx] {
		return nil
	}
	b.haveParity[idx] = true
	b.parity[idx] = payload
	b.haveCount++
	return nil
}

// IsComplete reports whether all k source shards are present.
func (b *RecvBlock) IsComplete() bool {
	for _, have := range b.haveData {
		if !have {
			return false
		}
	}
	return true
}

// erasures returns the combined data+parity erasure-position list, with data
// erasures (indices [0,k)) first and parity erasures (indices [k,k+m))
// following, matching the RS codec's shard-index convention.
func (b *RecvBlock) erasures() []int {
	e := make([]int, 0, b.m)
	for i, have := range b.haveData {
		if !have {
			e = append(e, i)
		}
	}
	for j, have := range b.haveParity {
		if !have {
			e = append(e, b.k+j)
		}
	}
	return e
}

// Decodable reports whether have_count >= k and at least one source shard is
// missing -- the trigger condition for attempting a decode (spec.md 4.4
// step 6). It does not guarantee decode will succeed; Recoverable narrows
// that further.
func (b *RecvBlock) Decodable() bool {
	return b.haveCount >= b.k && !b.IsComplete()
}

// Recoverable reports whether the current erasure count is within the
// scheme's correction capacity m.
func (b *RecvBlock) Recoverable() bool {
	return len(b.erasures()) <= b.m
}

// Decode runs the scheme's erasure decoder over the block's shards and
// returns the reconstructed source packets (one per previously-missing data
// index), stamped with this block's base+index sequence and timestamp. The
// block is marked done on success.
func (b *RecvBlock) Decode(scheme Scheme) ([]Rebuilt, error) {
	if b.done {
		return nil, nil
	}
	erasures := b.erasures()
	if len(erasures) > b.m {
		return nil, fmt.Errorf("fec: %d erasures exceeds capacity %d", len(erasures), b.m)
	}

	missingData := make([]int, 0)
	for i, have := range b.haveData {
		if !have {
			missingData = append(missingData, i)
		}
	}

	shards := make([][]byte, b.k+b.m)
	copy(shards, b.data)
	copy(shards[b.k:], b.parity)

	if err := scheme.Reconstruct(shards, erasures); err != nil {
		return nil, fmt.Errorf("fec: decode failed: %w", err)
	}

	rebuilt := make([]Rebuilt, 0, len(missingData))
	for _, i := range missingData {
		b.data[i] = shards[i]
		b.haveData[i] = true
		rebuilt = append(rebuilt, Rebuilt{
			Seq:       b.base + int32(i),
			Timestamp: b.timestamp,
			Payload:   shards[i],
		})
	}
	b.done = true
	return rebuilt, nil
}
