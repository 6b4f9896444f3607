package wire

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Mask builds a mask selecting bits [start, end) (end exclusive, bit 0 is
// least significant). Used to carve sub-fields out of a packed 64-bit header
// word, e.g. the pointer kind (bits 0-1) or a struct ref's data-size field
// (bits 32-47).
func Mask[U constraints.Unsigned](start, end uint64) U {
	if start >= end {
		panic("wire.Mask: start must be < end")
	}
	var r uint64
	for i := start; i < end; i++ {
		r |= 1 << i
	}
	return U(r)
}

// GetValue extracts the sub-field selected by mask, shifted down by start,
// from store.
func GetValue[U, R constraints.Unsigned](store U, mask U, start uint64) R {
	return R((store & mask) >> start)
}

// SetValue ORs val, shifted up by start, into store. Callers are expected to
// have cleared the destination bits first (the pointer/header codec always
// builds a fresh word, so this is never used for in-place bit-field update).
func SetValue[I, U constraints.Unsigned](val I, store U, start uint64) U {
	return store | (U(val) << start)
}

// GetBit reports whether the bit at pos is set in store.
func GetBit[U constraints.Unsigned](store U, pos uint8) bool {
	return store&(1<<pos) != 0
}

// SetBit returns store with the bit at pos set to val.
func SetBit[U constraints.Unsigned](store U, pos uint8, val bool) U {
	if val {
		return store | (1 << pos)
	}
	return store &^ (1 << pos)
}

// CheckBitPos panics if pos does not fit within a value of bitWidth bits;
// used to catch programmer error (not adversarial input) at the call sites
// that pack/unpack fixed-width header fields.
func CheckBitPos(pos, bitWidth int) {
	if pos < 0 || pos >= bitWidth {
		panic(fmt.Sprintf("bit position %d out of range for a %d-bit value", pos, bitWidth))
	}
}
