package fec

import "fmt"

// xorScheme is a (k+1,k) XOR parity scheme: a single parity shard equal to
// the XOR of all k source shards. It implements the same Scheme interface as
// rsScheme but is an independent, alternative coding scheme -- spec.md
// explicitly places XOR-based row/column FEC out of scope for the RS filter,
// so this type is never constructed by Filter. It exists only to show the
// scheme abstraction is not RS-specific, and is exercised by its own tests.
type xorScheme struct {
	k int
}

// NewXORScheme builds a (k+1,k) XOR scheme.
func NewXORScheme(k int) (Scheme, error) {
	if k < 1 {
		return nil, fmt.Errorf("fec: xorScheme requires k>=1, got %d", k)
	}
	return &xorScheme{k: k}, nil
}

func (s *xorScheme) K() int { return s.k }
func (s *xorScheme) M() int { return 1 }

func (s *xorScheme) RepairShards(source [][]byte) ([][]byte, error) {
	if len(source) != s.k {
		return nil, fmt.Errorf("fec: xorScheme expected %d source shards, got %d", s.k, len(source))
	}
	l := len(source[0])
	parity := make([]byte, l)
	for _, shard := range source {
		if len(shard) != l {
			return nil, fmt.Errorf("fec: xorScheme shards must all have length %d", l)
		}
		xorInto(parity, shard)
	}
	return [][]byte{parity}, nil
}

func (s *xorScheme) Reconstruct(shards [][]byte, erasures []int) error {
	if len(erasures) == 0 {
		return nil
	}
	if len(erasures) > 1 {
		return fmt.Errorf("fec: xorScheme can only recover a single erasure, got %d", len(erasures))
	}
	missing := erasures[0]
	if missing >= s.k {
		// A missing parity shard is recomputed directly from the source
		// shards; nothing to reconstruct into the source set.
		l := len(shards[0])
		parity := make([]byte, l)
		for i := 0; i < s.k; i++ {
			xorInto(parity, shards[i])
		}
		shards[missing] = parity
		return nil
	}

	l := -1
	for i, shard := range shards {
		if i == missing {
			continue
		}
		if shard != nil {
			l = len(shard)
			break
		}
	}
	if l == -1 {
		return fmt.Errorf("fec: xorScheme has no surviving shards to recover from")
	}
	recovered := make([]byte, l)
	for i, shard := range shards {
		if i == missing {
			continue
		}
		xorInto(recovered, shard)
	}
	shards[missing] = recovered
	return nil
}

func xorInto(acc, data []byte) {
	for i := range data {
		acc[i] ^= data[i]
	}
}
