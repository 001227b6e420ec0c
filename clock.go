package rsfec

import "github.com/udpfec/rsfec/internal/fec"

// Clock abstracts wall-clock time for the receive-side block table's TTL
// eviction (spec.md 3/4.4). It is a type alias for internal/fec.Clock so
// callers can supply a test clock without importing the internal package.
type Clock = fec.Clock
