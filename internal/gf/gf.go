// Package gf implements arithmetic over GF(256) under the primitive
// polynomial x^8 + x^4 + x^3 + x^2 + 1 (0x11d) with generator element alpha=2.
package gf

import "sync"

const (
	// poly is the primitive polynomial defining the field.
	poly = 0x11d
	// gen is the generator element alpha.
	gen = 2
)

var (
	expTable [510]byte
	logTable [256]byte
	once     sync.Once
)

// initTables builds expTable/logTable lazily, guarded by a once-token, as
// process-wide read-only state shared by reference.
func initTables() {
	once.Do(func() {
		x := 1
		for i := 0; i < 255; i++ {
			expTable[i] = byte(x)
			logTable[x] = byte(i)
			x <<= 1
			if x&0x100 != 0 {
				x ^= poly
			}
		}
		// Duplicate into [255,510) so Mul never needs a modular reduction on
		// the exponent sum.
		for i := 255; i < 510; i++ {
			expTable[i] = expTable[i-255]
		}
	})
}

// Add returns a+b in GF(256), which is XOR.
func Add(a, b byte) byte {
	return a ^ b
}

// Mul returns a*b in GF(256).
func Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	initTables()
	return expTable[int(logTable[a])+int(logTable[b])]
}

// Inv returns the multiplicative inverse of a. a must be nonzero.
func Inv(a byte) byte {
	if a == 0 {
		panic("gf: inverse of zero")
	}
	initTables()
	return expTable[255-int(logTable[a])]
}

// Div returns a/b in GF(256). b must be nonzero.
func Div(a, b byte) byte {
	if a == 0 {
		return 0
	}
	return Mul(a, Inv(b))
}

// Pow returns alpha^n, the n-th power of the generator element.
func Pow(n int) byte {
	initTables()
	n %= 255
	if n < 0 {
		n += 255
	}
	return expTable[n]
}

// Exp returns gf_exp[i] for i in [0,510).
func Exp(i int) byte {
	initTables()
	return expTable[i]
}

// Log returns gf_log[a]. a must be nonzero; gf_log[0] is undefined.
func Log(a byte) byte {
	if a == 0 {
		panic("gf: log of zero")
	}
	initTables()
	return logTable[a]
}
