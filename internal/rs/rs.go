// Package rs implements a systematic (n,k) Reed-Solomon code over GF(256)
// with erasure-only decoding, matching the generator-polynomial construction
// of the original SRT rsfec filter.
package rs

import (
	"fmt"

	"github.com/udpfec/rsfec/internal/gf"
)

// BuildGenerator builds the generator polynomial g(x) = Prod_{i=0..m-1}(x - a^i)
// over GF(256). Coefficients are returned low-degree-first (coefficient[0] is
// the constant term, coefficient[m] the leading, always-1 coefficient),
// length m+1.
func BuildGenerator(m int) []byte {
	g := make([]byte, m+1)
	g[0] = 1
	for i := 0; i < m; i++ {
		root := gf.Exp(i)
		for j := m; j > 0; j-- {
			g[j] = gf.Add(g[j-1], gf.Mul(g[j], root))
		}
		g[0] = gf.Mul(g[0], root)
	}
	return g
}

// Codec is a systematic (k+m, k) Reed-Solomon codec. One instance serves both
// the send and receive path; it has no state tied to a particular block.
type Codec struct {
	K, M int
	gen  []byte
	// genMatrix[i][j] is the contribution of source symbol i to parity symbol
	// j; derived from gen by encoding unit vectors. Used by Decode to build
	// the linear system relating any k known codeword symbols to the k
	// source symbols.
	genMatrix [][]byte
}

// New builds a codec for k source shards and m parity shards. k and m must be
// positive and k+m must not exceed 255.
func New(k, m int) (*Codec, error) {
	if k < 1 || k > 255 {
		return nil, fmt.Errorf("rs: k out of range: %d", k)
	}
	if m < 1 || m > 255 {
		return nil, fmt.Errorf("rs: m out of range: %d", m)
	}
	if k+m > 255 {
		return nil, fmt.Errorf("rs: k+m exceeds 255: k=%d m=%d", k, m)
	}
	c := &Codec{K: k, M: m, gen: BuildGenerator(m)}
	c.genMatrix = make([][]byte, k)
	unit := make([]byte, k)
	for i := 0; i < k; i++ {
		for z := range unit {
			unit[z] = 0
		}
		unit[i] = 1
		c.genMatrix[i] = encodeColumn(unit, c.gen)
	}
	return c, nil
}

// encodeColumn computes the m parity bytes for one column of k data bytes by
// taking the remainder of data(x)*x^m modulo g(x), via synthetic division.
// This is the standard systematic Reed-Solomon LFSR schedule.
func encodeColumn(data []byte, gen []byte) []byte {
	m := len(gen) - 1
	buf := make([]byte, len(data)+m)
	copy(buf, data)
	for i := 0; i < len(data); i++ {
		coef := buf[i]
		if coef == 0 {
			continue
		}
		for j := 1; j <= m; j++ {
			buf[i+j] = gf.Add(buf[i+j], gf.Mul(gen[m-j], coef))
		}
	}
	return buf[len(data):]
}

// Encode computes the m parity shards for shards[0:k] and writes them into
// shards[k:k+m]. All k+m shards must already be allocated to the same length
// L; parity shard contents are overwritten.
func (c *Codec) Encode(shards [][]byte) error {
	n := c.K + c.M
	if len(shards) != n {
		return fmt.Errorf("rs: expected %d shards, got %d", n, len(shards))
	}
	l := len(shards[0])
	for i := 0; i < n; i++ {
		if len(shards[i]) != l {
			return fmt.Errorf("rs: shard %d has length %d, want %d", i, len(shards[i]), l)
		}
	}
	data := make([]byte, c.K)
	for col := 0; col < l; col++ {
		for i := 0; i < c.K; i++ {
			data[i] = shards[i][col]
		}
		parity := encodeColumn(data, c.gen)
		for j := 0; j < c.M; j++ {
			shards[c.K+j][col] = parity[j]
		}
	}
	return nil
}

// fullGenAt returns the contribution of source symbol i to codeword position
// p (p < K: identity; p >= K: genMatrix).
func (c *Codec) fullGenAt(i, p int) byte {
	if p < c.K {
		if p == i {
			return 1
		}
		return 0
	}
	return c.genMatrix[i][p-c.K]
}

// Decode reconstructs erased codeword positions in place. erasures lists the
// indices (within [0, k+m)) of unknown shards; their slices are allocated (if
// nil) and overwritten with the recovered bytes. Non-erased shards are
// trusted and left untouched. Decode fails if len(erasures) exceeds m; it
// leaves the codeword unmodified in that case.
func (c *Codec) Decode(shards [][]byte, erasures []int) error {
	n := c.K + c.M
	if len(shards) != n {
		return fmt.Errorf("rs: expected %d shards, got %d", n, len(shards))
	}
	if len(erasures) == 0 {
		return nil
	}
	if len(erasures) > c.M {
		return fmt.Errorf("rs: %d erasures exceeds correction capacity %d", len(erasures), c.M)
	}

	erased := make(map[int]bool, len(erasures))
	for _, e := range erasures {
		erased[e] = true
	}

	known := make([]int, 0, n-len(erasures))
	l := -1
	for p := 0; p < n; p++ {
		if erased[p] {
			continue
		}
		known = append(known, p)
		if shards[p] == nil {
			return fmt.Errorf("rs: non-erased shard %d is nil", p)
		}
		if l == -1 {
			l = len(shards[p])
		} else if len(shards[p]) != l {
			return fmt.Errorf("rs: shard %d has length %d, want %d", p, len(shards[p]), l)
		}
	}
	if len(known) < c.K {
		return fmt.Errorf("rs: only %d known shards, need %d", len(known), c.K)
	}
	known = known[:c.K]

	a := make([][]byte, c.K)
	for row, p := range known {
		a[row] = make([]byte, c.K)
		for i := 0; i < c.K; i++ {
			a[row][i] = c.fullGenAt(i, p)
		}
	}
	inv, err := invert(a)
	if err != nil {
		return fmt.Errorf("rs: decode matrix is singular: %w", err)
	}

	for p := range erased {
		if shards[p] == nil {
			shards[p] = make([]byte, l)
		} else if len(shards[p]) != l {
			shards[p] = make([]byte, l)
		}
	}

	b := make([]byte, c.K)
	x := make([]byte, c.K)
	for col := 0; col < l; col++ {
		for row, p := range known {
			b[row] = shards[p][col]
		}
		for i := 0; i < c.K; i++ {
			var acc byte
			for row := 0; row < c.K; row++ {
				acc = gf.Add(acc, gf.Mul(inv[i][row], b[row]))
			}
			x[i] = acc
		}
		for p := range erased {
			var acc byte
			for i := 0; i < c.K; i++ {
				acc = gf.Add(acc, gf.Mul(x[i], c.fullGenAt(i, p)))
			}
			shards[p][col] = acc
		}
	}
	return nil
}

// invert computes the inverse of a square matrix over GF(256) via
// Gauss-Jordan elimination on an augmented [a | I] matrix.
func invert(a [][]byte) ([][]byte, error) {
	n := len(a)
	aug := make([][]byte, n)
	for i := range aug {
		aug[i] = make([]byte, 2*n)
		copy(aug[i], a[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := -1
		for r := col; r < n; r++ {
			if aug[r][col] != 0 {
				pivot = r
				break
			}
		}
		if pivot == -1 {
			return nil, fmt.Errorf("singular at column %d", col)
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		invPivot := gf.Inv(aug[col][col])
		for c := 0; c < 2*n; c++ {
			aug[col][c] = gf.Mul(aug[col][c], invPivot)
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			if factor == 0 {
				continue
			}
			for c := 0; c < 2*n; c++ {
				aug[r][c] = gf.Add(aug[r][c], gf.Mul(factor, aug[col][c]))
			}
		}
	}

	result := make([][]byte, n)
	for i := range result {
		result[i] = append([]byte(nil), aug[i][n:]...)
	}
	return result, nil
}
