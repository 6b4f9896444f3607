// Package wire holds the little-endian load/store primitives and bit/byte/word
// arithmetic the rest of this module is built on. Nothing here knows about
// segments, pointers, or messages; it is the generic bottom layer every other
// package imports.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Number is the set of scalar wire types: the fixed-width integers plus the
// two IEEE-754 floats. bool is handled separately since it isn't addressable
// byte-for-byte (it lives at a bit offset).
type Number interface {
	constraints.Integer | ~float32 | ~float64
}

// Get reads a little-endian value of type T starting at b[0]. b must have at
// least sizeOf(T) bytes; callers that can't guarantee this should bounds
// check before calling.
func Get[T Number](b []byte) T {
	_ = b[sizeOf[T]()-1] // bounds check hint to the compiler

	var z T
	switch any(z).(type) {
	case int8:
		return T(int8(b[0]))
	case uint8:
		return T(b[0])
	case int16:
		return T(int16(binary.LittleEndian.Uint16(b)))
	case uint16:
		return T(binary.LittleEndian.Uint16(b))
	case int32:
		return T(int32(binary.LittleEndian.Uint32(b)))
	case uint32:
		return T(binary.LittleEndian.Uint32(b))
	case int64:
		return T(int64(binary.LittleEndian.Uint64(b)))
	case uint64:
		return T(binary.LittleEndian.Uint64(b))
	case float32:
		return T(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case float64:
		return T(math.Float64frombits(binary.LittleEndian.Uint64(b)))
	}
	panic(fmt.Sprintf("wire.Get: unsupported type %T", z))
}

// Put writes v as little-endian bytes into b, which must have at least
// sizeOf(T) bytes of room.
func Put[T Number](b []byte, v T) {
	switch x := any(v).(type) {
	case int8:
		b[0] = byte(x)
	case uint8:
		b[0] = x
	case int16:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case uint16:
		binary.LittleEndian.PutUint16(b, x)
	case int32:
		binary.LittleEndian.PutUint32(b, uint32(x))
	case uint32:
		binary.LittleEndian.PutUint32(b, x)
	case int64:
		binary.LittleEndian.PutUint64(b, uint64(x))
	case uint64:
		binary.LittleEndian.PutUint64(b, x)
	case float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(x))
	case float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(x))
	default:
		panic(fmt.Sprintf("wire.Put: unsupported type %T", v))
	}
}

// GetBool reads the bit at bitOffset (from the start of b) as a bool.
func GetBool(b []byte, bitOffset uint32) bool {
	byteOff := bitOffset / 8
	bit := bitOffset % 8
	return b[byteOff]&(1<<bit) != 0
}

// PutBool writes v into the bit at bitOffset (from the start of b).
func PutBool(b []byte, bitOffset uint32, v bool) {
	byteOff := bitOffset / 8
	bit := bitOffset % 8
	if v {
		b[byteOff] |= 1 << bit
	} else {
		b[byteOff] &^= 1 << bit
	}
}

func sizeOf[T Number]() int {
	var z T
	switch any(z).(type) {
	case int8, uint8:
		return 1
	case int16, uint16:
		return 2
	case int32, uint32, float32:
		return 4
	default:
		return 8
	}
}

// RoundBytesUpToWords returns the number of 8-byte words needed to hold n
// bytes.
func RoundBytesUpToWords(n int) int {
	return (n + 7) / 8
}

// RoundBitsUpToWords returns the number of 8-byte (64-bit) words needed to
// hold b bits.
func RoundBitsUpToWords(b int) int {
	return (b + 63) / 64
}

// RoundBitsUpToBytes returns the number of bytes needed to hold b bits.
func RoundBitsUpToBytes(b int) int {
	return (b + 7) / 8
}
