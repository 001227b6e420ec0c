package rsfec_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/udpfec/rsfec"
)

func payload(b byte, l int) []byte {
	return bytes.Repeat([]byte{b}, l)
}

// block builds a filter, feeds k source packets starting at isn, and drains
// every parity control packet PackControl is willing to emit.
func block(k, m, l int, isn int32) (*rsfec.Filter, [][]byte, []rsfec.ControlPacket) {
	f, err := rsfec.NewFilter(rsfec.Config{K: k, M: m}.String(), l)
	Expect(err).NotTo(HaveOccurred())

	payloads := make([][]byte, k)
	for i := 0; i < k; i++ {
		payloads[i] = payload(byte(i+1), l)
		Expect(f.FeedSource(rsfec.SourcePacket{Seq: isn + int32(i), Timestamp: 7, Payload: payloads[i]})).To(Succeed())
	}

	var parity []rsfec.ControlPacket
	for {
		var ctrl rsfec.ControlPacket
		if !f.PackControl(&ctrl) {
			break
		}
		buf := append([]byte(nil), ctrl.Buffer[:ctrl.Length]...)
		parity = append(parity, rsfec.ControlPacket{Timestamp: ctrl.Timestamp, Buffer: buf, Length: len(buf)})
	}
	return f, payloads, parity
}

func deliverSource(f *rsfec.Filter, seq int32, ts uint32, data []byte) bool {
	passthrough, err := f.Receive(rsfec.InboundPacket{IsControl: false, Seq: seq, Timestamp: ts, Payload: data})
	Expect(err).NotTo(HaveOccurred())
	return passthrough
}

func deliverParity(f *rsfec.Filter, ctrl rsfec.ControlPacket) bool {
	passthrough, err := f.Receive(rsfec.InboundPacket{IsControl: true, Timestamp: ctrl.Timestamp, Payload: ctrl.Buffer})
	Expect(err).NotTo(HaveOccurred())
	return passthrough
}

var _ = Describe("RS-FEC filter scenarios", func() {
	const isn = int32(5000)

	It("S1: recovers a single lost source packet", func() {
		f, payloads, parity := block(4, 2, 1316, isn)
		Expect(parity).To(HaveLen(2))

		Expect(deliverSource(f, isn+0, 7, payloads[0])).To(BeTrue())
		Expect(deliverSource(f, isn+1, 7, payloads[1])).To(BeTrue())
		// isn+2 dropped
		Expect(deliverSource(f, isn+3, 7, payloads[3])).To(BeTrue())
		for _, p := range parity {
			Expect(deliverParity(f, p)).To(BeFalse())
		}

		rebuilt := f.DrainRebuilt()
		Expect(rebuilt).To(HaveLen(1))
		Expect(rebuilt[0].Seq).To(Equal(isn + 2))
		Expect(rebuilt[0].Payload).To(HaveLen(1316))
		Expect(rebuilt[0].Payload).To(Equal(payloads[2]))
	})

	It("S2: recovers two lost source packets", func() {
		f, payloads, parity := block(4, 2, 1316, isn)

		Expect(deliverSource(f, isn+0, 7, payloads[0])).To(BeTrue())
		// isn+1 dropped
		Expect(deliverSource(f, isn+2, 7, payloads[2])).To(BeTrue())
		// isn+3 dropped
		for _, p := range parity {
			deliverParity(f, p)
		}

		rebuilt := f.DrainRebuilt()
		Expect(rebuilt).To(HaveLen(2))
		seqs := []int32{rebuilt[0].Seq, rebuilt[1].Seq}
		Expect(seqs).To(ConsistOf(isn+1, isn+3))
	})

	It("S3: unordered delivery (parity before data) reaches the same outcome as S2", func() {
		f, payloads, parity := block(4, 2, 1316, isn)

		for _, p := range parity {
			deliverParity(f, p)
		}
		Expect(deliverSource(f, isn+0, 7, payloads[0])).To(BeTrue())
		Expect(deliverSource(f, isn+2, 7, payloads[2])).To(BeTrue())

		rebuilt := f.DrainRebuilt()
		Expect(rebuilt).To(HaveLen(2))
		seqs := []int32{rebuilt[0].Seq, rebuilt[1].Seq}
		Expect(seqs).To(ConsistOf(isn+1, isn+3))
	})

	It("S4: over-capacity loss yields zero rebuilt packets and no crash", func() {
		f, payloads, parity := block(4, 2, 1316, isn)

		// indices 0,1,2 dropped; only index 3 and both parity arrive.
		Expect(deliverSource(f, isn+3, 7, payloads[3])).To(BeTrue())
		for _, p := range parity {
			deliverParity(f, p)
		}

		Expect(f.DrainRebuilt()).To(BeEmpty())
	})

	It("S5: two interleaved blocks recover independently", func() {
		const k, m, l = 4, 2, 512
		f, err := rsfec.NewFilter(rsfec.Config{K: k, M: m}.String(), l)
		Expect(err).NotTo(HaveOccurred())

		var allPayloads [][]byte
		var allParity []rsfec.ControlPacket
		for blk := 0; blk < 2; blk++ {
			base := isn + int32(blk*k)
			for i := 0; i < k; i++ {
				p := payload(byte(blk*k+i+1), l)
				allPayloads = append(allPayloads, p)
				Expect(f.FeedSource(rsfec.SourcePacket{Seq: base + int32(i), Timestamp: 1, Payload: p})).To(Succeed())
			}
			for {
				var ctrl rsfec.ControlPacket
				if !f.PackControl(&ctrl) {
					break
				}
				buf := append([]byte(nil), ctrl.Buffer[:ctrl.Length]...)
				allParity = append(allParity, rsfec.ControlPacket{Buffer: buf, Length: len(buf)})
			}
		}
		Expect(allParity).To(HaveLen(4))

		// drop seq isn+1 (block 0) and isn+5 (block 1); deliver the surviving
		// data of both blocks first, then all four parity packets, so each
		// block decodes only once all of its surviving data is in.
		for i, p := range allPayloads {
			seq := isn + int32(i)
			if seq == isn+1 || seq == isn+5 {
				continue
			}
			deliverSource(f, seq, 1, p)
		}
		for _, p := range allParity {
			deliverParity(f, p)
		}

		rebuilt := f.DrainRebuilt()
		Expect(rebuilt).To(HaveLen(2))
		seqs := []int32{rebuilt[0].Seq, rebuilt[1].Seq}
		Expect(seqs).To(ConsistOf(isn+1, isn+5))
	})

	It("S6: construction is rejected when k+m exceeds 255", func() {
		_, err := rsfec.NewFilter(rsfec.Config{K: 200, M: 100}.String(), 100)
		Expect(err).To(HaveOccurred())
		var cfgErr *rsfec.ConfigError
		Expect(errorsAs(err, &cfgErr)).To(BeTrue())
	})
})

// errorsAs is a thin local wrapper so the test file does not need an extra
// import purely for errors.As.
func errorsAs(err error, target **rsfec.ConfigError) bool {
	for err != nil {
		if ce, ok := err.(*rsfec.ConfigError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
