package rsfec

import "github.com/pkg/errors"

// ConfigError wraps a configuration failure at construction time (spec.md
// 7): parse failure, k/m out of range, or a non-positive shard length. The
// filter is never instantiated when this is returned.
type ConfigError struct {
	cause error
}

func newConfigError(cause error) *ConfigError {
	return &ConfigError{cause: errors.WithStack(cause)}
}

func (e *ConfigError) Error() string { return "rsfec: config error: " + e.cause.Error() }
func (e *ConfigError) Unwrap() error { return e.cause }

// DecodeFailureError indicates the RS decoder returned failure despite the
// erasure count being within the scheme's correction capacity (spec.md 7):
// corrupted parity or a bug. The block's shards are retained so a later
// parity shard can retry.
type DecodeFailureError struct {
	Base  int32
	cause error
}

func newDecodeFailureError(base int32, cause error) *DecodeFailureError {
	return &DecodeFailureError{Base: base, cause: errors.WithStack(cause)}
}

func (e *DecodeFailureError) Error() string {
	return errors.Wrapf(e.cause, "rsfec: decode failure for block base %d", e.Base).Error()
}
func (e *DecodeFailureError) Unwrap() error { return e.cause }

// ErrMalformedParityHeader is returned (and the packet dropped, not passed
// through) when a control packet is marked as FEC parity but its echoed k
// does not match the local configuration (spec.md 7).
var ErrMalformedParityHeader = errors.New("rsfec: malformed parity header")

// ErrOutOfWindow classifies a packet belonging to an evicted or too-old
// block (spec.md 7). It is informational: the caller still applies the
// normal passthrough rule for the packet's own type.
var ErrOutOfWindow = errors.New("rsfec: packet out of window")
