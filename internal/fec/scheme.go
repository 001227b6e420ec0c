package fec

// Scheme abstracts the erasure-coding engine used to turn source shards into
// parity shards and back. SendGroup and RecvBlock are coded against this
// interface rather than a concrete codec, so the block-lifecycle state
// machines are reusable across coding schemes.
type Scheme interface {
	// K returns the number of source shards per block.
	K() int
	// M returns the number of parity shards per block.
	M() int
	// RepairShards computes the m parity shards for a complete set of k
	// source shards (all of length L) and returns them.
	RepairShards(source [][]byte) ([][]byte, error)
	// Reconstruct recovers the missing source shards of a block. shards has
	// length k+m; entries at the positions named by erasures are unknown
	// (nil or to be ignored) and are filled in on success. erasures may
	// include both missing source indices (< k) and missing parity indices
	// (>= k); the scheme only ever needs to fill in the source positions.
	Reconstruct(shards [][]byte, erasures []int) error
}
