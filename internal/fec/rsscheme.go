package fec

import (
	"fmt"

	"github.com/udpfec/rsfec/internal/rs"
)

// rsScheme wraps internal/rs.Codec to implement Scheme. This is the codec
// wired into the root Filter facade.
type rsScheme struct {
	codec *rs.Codec
}

// NewRSScheme builds the Reed-Solomon scheme for a (k+m,k) block.
func NewRSScheme(k, m int) (Scheme, error) {
	codec, err := rs.New(k, m)
	if err != nil {
		return nil, err
	}
	return &rsScheme{codec: codec}, nil
}

func (s *rsScheme) K() int { return s.codec.K }
func (s *rsScheme) M() int { return s.codec.M }

func (s *rsScheme) RepairShards(source [][]byte) ([][]byte, error) {
	if len(source) != s.codec.K {
		return nil, fmt.Errorf("fec: rsScheme expected %d source shards, got %d", s.codec.K, len(source))
	}
	l := len(source[0])
	shards := make([][]byte, s.codec.K+s.codec.M)
	copy(shards, source)
	for i := s.codec.K; i < s.codec.K+s.codec.M; i++ {
		shards[i] = make([]byte, l)
	}
	if err := s.codec.Encode(shards); err != nil {
		return nil, err
	}
	return shards[s.codec.K:], nil
}

func (s *rsScheme) Reconstruct(shards [][]byte, erasures []int) error {
	return s.codec.Decode(shards, erasures)
}
