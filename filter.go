// Package rsfec implements a Reed-Solomon forward error correction packet
// filter for a reliable-UDP streaming transport: it transmits m parity
// packets for every k source packets and reconstructs up to m lost source
// packets per block without retransmission.
package rsfec

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/udpfec/rsfec/internal/fec"
	"github.com/udpfec/rsfec/wire"
)

// ARQLevel is the retransmission policy the filter declares to the
// transport (spec.md 4.6/6).
type ARQLevel int

const (
	// AtMostOnRequest tells the transport to suppress automatic
	// retransmission of a sequence until the application asks for it,
	// giving FEC a chance to rebuild it first.
	AtMostOnRequest ARQLevel = iota
)

// Filter is the RS-FEC packet-filter facade (spec.md 4.6): the three entry
// points a transport calls -- FeedSource, PackControl, Receive -- plus the
// ARQ policy and header-size contract it exposes.
type Filter struct {
	cfg Config

	scheme fec.Scheme
	send   *fec.SendGroup
	table  *fec.BlockTable
	queue  *providedQueue

	logger logr.Logger
}

// Option configures optional Filter behavior.
type Option func(*filterOptions)

type filterOptions struct {
	logger    logr.Logger
	clock     Clock
	maxGroups int
	ttl       time.Duration
	hasData   func()
}

// WithLogger sets the structured logger used for GC tracing and decode
// failure reporting. The default is logr.Discard().
func WithLogger(l logr.Logger) Option {
	return func(o *filterOptions) { o.logger = l }
}

// WithClock overrides the receive-side block table's time source; intended
// for tests driving TTL eviction deterministically.
func WithClock(c Clock) Option {
	return func(o *filterOptions) { o.clock = c }
}

// WithMaxGroups overrides the receive-side MAX_GROUPS bound (default 64).
func WithMaxGroups(n int) Option {
	return func(o *filterOptions) { o.maxGroups = n }
}

// WithTTL overrides the receive-side per-block TTL (default 5s).
func WithTTL(d time.Duration) Option {
	return func(o *filterOptions) { o.ttl = d }
}

// WithProvidedQueueNotify registers a callback invoked whenever a rebuilt
// packet is enqueued, letting the transport wake its drain loop.
func WithProvidedQueueNotify(f func()) Option {
	return func(o *filterOptions) { o.hasData = f }
}

// NewFilter parses config, builds the GF tables and RS codec, and allocates
// block state (spec.md 4.6). shardLen is L, the fixed shard size negotiated
// by the transport. It fails with a *ConfigError if the configuration is
// invalid.
func NewFilter(config string, shardLen int, opts ...Option) (*Filter, error) {
	cfg, err := ParseConfig(config)
	if err != nil {
		return nil, newConfigError(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, newConfigError(err)
	}
	if shardLen <= 0 {
		return nil, newConfigError(errors.New("shard length must be positive"))
	}

	o := filterOptions{logger: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	scheme, err := fec.NewRSScheme(cfg.K, cfg.M)
	if err != nil {
		return nil, newConfigError(err)
	}

	f := &Filter{
		cfg:    cfg,
		scheme: scheme,
		send:   fec.NewSendGroup(scheme, shardLen),
		table:  fec.NewBlockTable(scheme, o.maxGroups, o.ttl, o.clock, o.logger),
		queue:  newProvidedQueue(o.hasData),
		logger: o.logger,
	}
	return f, nil
}

// FeedSource buffers one outgoing source packet (spec.md 4.3).
func (f *Filter) FeedSource(pkt SourcePacket) error {
	return f.send.FeedSource(pkt.Seq, pkt.Timestamp, pkt.Payload)
}

// PackControl fills out with the next parity packet, if one is ready, and
// reports whether it did (spec.md 4.3/4.6). It does not transmit; it merely
// supplies the next parity packet when the transport is ready.
func (f *Filter) PackControl(out *ControlPacket) bool {
	base, timestamp, idx, payload, ok := f.send.PackControl()
	if !ok {
		return false
	}
	out.Timestamp = timestamp
	need := wire.HeaderSize + len(payload)
	if cap(out.Buffer) < need {
		out.Buffer = make([]byte, need)
	} else {
		out.Buffer = out.Buffer[:need]
	}
	hdr := wire.ParityHeader{
		BlockSeq:    uint16(base),
		ParityIndex: byte(idx),
		K:           byte(f.cfg.K),
	}
	if err := wire.Encode(hdr, out.Buffer); err != nil {
		return false
	}
	copy(out.Buffer[wire.HeaderSize:], payload)
	out.Length = need
	return true
}

// Receive processes one inbound packet and reports whether the transport
// should still deliver it to the application (spec.md 4.4/4.6). Any
// reconstructed packets are pushed to the provided queue for the transport
// to drain.
func (f *Filter) Receive(pkt InboundPacket) (passthrough bool, err error) {
	if pkt.IsControl {
		return f.receiveControl(pkt)
	}
	return f.receiveSource(pkt)
}

func (f *Filter) receiveSource(pkt InboundPacket) (bool, error) {
	rebuilt, err := f.table.ReceiveSource(pkt.Seq, pkt.Timestamp, pkt.Payload)
	if err == fec.ErrOutOfWindowPacket {
		return true, nil
	}
	if de, ok := err.(*fec.DecodeError); ok {
		return true, newDecodeFailureError(de.Base, de.Err)
	}
	if err != nil {
		return true, err
	}
	f.deliver(rebuilt)
	return true, nil
}

func (f *Filter) receiveControl(pkt InboundPacket) (bool, error) {
	if len(pkt.Payload) < wire.HeaderSize || !wire.IsParityHeader(pkt.Payload) {
		// Not FEC: some other control packet, passed through unmodified.
		return true, nil
	}
	hdr, err := wire.Parse(pkt.Payload)
	if err != nil {
		return false, ErrMalformedParityHeader
	}
	parityPayload := pkt.Payload[wire.HeaderSize:]

	rebuilt, malformed, err := f.table.ReceiveParity(hdr.BlockSeq, int(hdr.ParityIndex), int(hdr.K), pkt.Timestamp, parityPayload)
	if malformed {
		return false, ErrMalformedParityHeader
	}
	if err == fec.ErrOutOfWindowPacket {
		return false, nil
	}
	if de, ok := err.(*fec.DecodeError); ok {
		return false, newDecodeFailureError(de.Base, de.Err)
	}
	if err != nil {
		return false, err
	}
	f.deliver(rebuilt)
	return false, nil
}

func (f *Filter) deliver(rebuilt []fec.Rebuilt) {
	for _, r := range rebuilt {
		f.queue.Add(RebuiltPacket{Seq: r.Seq, Timestamp: r.Timestamp, Payload: r.Payload})
	}
}

// DrainRebuilt returns and clears every packet the filter has reconstructed
// since the last drain. The transport calls this after each Receive.
func (f *Filter) DrainRebuilt() []RebuiltPacket {
	return f.queue.Drain()
}

// ARQLevel reports the filter's retransmission policy (spec.md 4.6).
func (f *Filter) ARQLevel() ARQLevel { return AtMostOnRequest }

// ExtraSize reports the number of bytes the transport must reserve in
// control packets for the FEC header (spec.md 4.6).
func (f *Filter) ExtraSize() int { return wire.HeaderSize }

// Config returns the filter's parsed configuration.
func (f *Filter) Config() Config { return f.cfg }
