package fec

import "fmt"

// SendGroup is the send-side block assembler (spec.md 4.3): it buffers k
// source packets into shards, triggers an encode once the block is full, and
// then serves parity shards one at a time to a polling transport.
type SendGroup struct {
	scheme Scheme
	k, m   int
	l      int

	collected  int
	data       [][]byte
	parity     [][]byte
	nextParity int

	baseSeq   int32
	timestamp uint32
}

// NewSendGroup builds an empty send-side block for the given scheme and
// shard length l (the payload size negotiated by the transport).
func NewSendGroup(scheme Scheme, l int) *SendGroup {
	return &SendGroup{
		scheme: scheme,
		k:      scheme.K(),
		m:      scheme.M(),
		l:      l,
		data:   make([][]byte, scheme.K()),
	}
}

// FeedSource buffers one outgoing source packet. When the block reaches k
// buffered packets, it computes the m parity shards immediately.
func (g *SendGroup) FeedSource(seq int32, timestamp uint32, payload []byte) error {
	if g.collected >= g.k {
		return fmt.Errorf("fec: SendGroup is full (k=%d); PackControl must drain it first", g.k)
	}
	if len(payload) > g.l {
		return fmt.Errorf("fec: source payload length %d exceeds shard size %d", len(payload), g.l)
	}
	if g.collected == 0 {
		g.baseSeq = seq
		g.timestamp = timestamp
	}

	shard := make([]byte, g.l)
	copy(shard, payload)
	g.data[g.collected] = shard
	g.collected++

	if g.collected == g.k {
		parity, err := g.scheme.RepairShards(g.data)
		if err != nil {
			return fmt.Errorf("fec: computing parity shards: %w", err)
		}
		g.parity = parity
		g.nextParity = 0
	}
	return nil
}

// PackControl supplies the next parity shard for the transport to send. It
// returns ok=false if the block is not yet ready (collected<k) or has
// already emitted all m parity shards -- in the latter case it also resets
// the group so a new block can start accumulating.
func (g *SendGroup) PackControl() (baseSeq int32, timestamp uint32, parityIndex int, payload []byte, ok bool) {
	if g.collected < g.k {
		return 0, 0, 0, nil, false
	}
	if g.nextParity >= g.m {
		g.reset()
		return 0, 0, 0, nil, false
	}
	idx := g.nextParity
	g.nextParity++
	return g.baseSeq, g.timestamp, idx, g.parity[idx], true
}

// reset clears the group back to empty so the next FeedSource starts a new
// block.
func (g *SendGroup) reset() {
	g.collected = 0
	g.parity = nil
	g.nextParity = 0
	for i := range g.data {
		g.data[i] = nil
	}
}

// BaseSeq returns the base sequence number of the block currently being
// assembled or drained. Only meaningful once at least one source packet has
// been fed.
func (g *SendGroup) BaseSeq() int32 { return g.baseSeq }
