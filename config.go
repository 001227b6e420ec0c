package rsfec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config is the parsed form of the filter's configuration string (spec.md
// 6): source/parity shard counts per block, and an optional send-side
// flush deadline.
type Config struct {
	// K is the number of source shards per block ("cols" or "k").
	K int
	// M is the number of parity shards per block ("rows", "parity", or "m").
	M int
	// Timeout is the optional send-side block flush deadline; zero disables
	// it.
	Timeout time.Duration
}

// ParseConfig parses a comma-separated key:value configuration string, as
// the original SRT filter's ParseFilterConfig/verifyConfig do (see
// original_source/srtcore/fec_rs.cpp). Recognized keys: "cols"/"k" (source
// shards, mandatory), "rows"/"parity"/"m" (parity shards, default 1),
// "timeout" (milliseconds, default 0).
func ParseConfig(s string) (Config, error) {
	cfg := Config{M: 1}
	haveK := false

	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		kv := strings.SplitN(field, ":", 2)
		if len(kv) != 2 {
			return Config{}, errors.Errorf("rsfec: malformed config field %q, want key:value", field)
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])

		switch key {
		case "cols", "k":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Config{}, errors.Wrapf(err, "rsfec: parsing %s", key)
			}
			cfg.K = n
			haveK = true
		case "rows", "parity", "m":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Config{}, errors.Wrapf(err, "rsfec: parsing %s", key)
			}
			cfg.M = n
		case "timeout":
			n, err := strconv.Atoi(val)
			if err != nil {
				return Config{}, errors.Wrap(err, "rsfec: parsing timeout")
			}
			cfg.Timeout = time.Duration(n) * time.Millisecond
		default:
			// Unknown keys are ignored, matching the original filter's
			// tolerance of forward-compatible config fields.
		}
	}

	if !haveK {
		return Config{}, errors.New("rsfec: config must specify cols/k")
	}
	return cfg, nil
}

// Validate checks the range and sum constraints of spec.md 6: k and m must
// each be in [1,255] and k+m must not exceed 255.
func (c Config) Validate() error {
	if c.K < 1 || c.K > 255 {
		return errors.Errorf("rsfec: k=%d out of range [1,255]", c.K)
	}
	if c.M < 1 || c.M > 255 {
		return errors.Errorf("rsfec: m=%d out of range [1,255]", c.M)
	}
	if c.K+c.M > 255 {
		return errors.Errorf("rsfec: k+m=%d exceeds 255 (k=%d, m=%d)", c.K+c.M, c.K, c.M)
	}
	if c.Timeout < 0 {
		return errors.New("rsfec: timeout must not be negative")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("cols:%d,parity:%d,timeout:%d", c.K, c.M, c.Timeout/time.Millisecond)
}
