// Package rsfec is a Reed-Solomon forward error correction packet filter
// for a reliable-UDP streaming transport. It sends m parity packets for
// every k source packets and reconstructs up to m lost source packets per
// block without retransmission.
//
// A transport wires in the filter at three points:
//
//	f, err := rsfec.NewFilter("cols:10,parity:2", shardLen)
//	f.FeedSource(rsfec.SourcePacket{Seq: seq, Timestamp: ts, Payload: data})
//	if f.PackControl(&ctrl) { transport.Send(ctrl.Buffer[:ctrl.Length]) }
//	passthrough, err := f.Receive(rsfec.InboundPacket{...})
//	for _, pkt := range f.DrainRebuilt() { transport.Deliver(pkt) }
package rsfec
