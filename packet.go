package rsfec

// SourcePacket is an outgoing source packet handed to FeedSource (spec.md
// 6): { seq, timestamp, payload of length <= L }.
type SourcePacket struct {
	Seq       int32
	Timestamp uint32
	Payload   []byte
}

// ControlPacket is the buffer PackControl fills with the next parity packet
// (spec.md 6): the filter writes ExtraSize()+L bytes into Buffer and sets
// Length.
type ControlPacket struct {
	Timestamp uint32
	Buffer    []byte
	Length    int
}

// InboundPacket is a packet arriving from the peer, as presented to Receive.
// IsControl reflects the transport's own packet-type classification; the
// filter only inspects Payload to tell FEC parity apart from everything
// else the transport already classified as control traffic.
type InboundPacket struct {
	IsControl bool
	Seq       int32
	Timestamp uint32
	Payload   []byte
}

// RebuiltPacket is a reconstructed source packet delivered via the provided
// queue (spec.md 6): same shape as SourcePacket.
type RebuiltPacket struct {
	Seq       int32
	Timestamp uint32
	Payload   []byte
}
