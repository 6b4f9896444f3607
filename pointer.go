package capnp

import (
	"github.com/bearlytools/capnp/internal/wire"
	"github.com/bearlytools/capnp/schema"
)

// Kind is the low 2 bits of a wire pointer's first 32 bits.
type Kind uint8

const (
	KindStruct Kind = 0
	KindList   Kind = 1
	KindFar    Kind = 2
	KindOther  Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindList:
		return "list"
	case KindFar:
		return "far"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

const (
	kindMask    = uint32(0x3)
	offsetShift = uint64(2)
)

// rawPointer is the in-memory form of a 64-bit wire pointer: low32 carries
// the kind plus an offset/position field, upper32 carries the per-kind
// payload. EncodeHeader/DecodeHeader-style free functions below pack and
// unpack it; rawPointer itself is a plain value type, cheap to copy.
type rawPointer struct {
	low, upper uint32
}

func readRawPointer(b []byte) rawPointer {
	return rawPointer{
		low:   wire.Get[uint32](b[0:4]),
		upper: wire.Get[uint32](b[4:8]),
	}
}

func (p rawPointer) write(b []byte) {
	wire.Put(b[0:4], p.low)
	wire.Put(b[4:8], p.upper)
}

func (p rawPointer) isNull() bool {
	return p.low == 0 && p.upper == 0
}

func (p rawPointer) kind() Kind {
	return Kind(p.low & kindMask)
}

// structOffset returns the signed word offset carried by a struct/list
// pointer: the distance in words from the word immediately after the
// pointer to the first target word.
func (p rawPointer) structOffset() int32 {
	return int32(p.low) >> 2
}

func makeStructOffsetLow(kind Kind, offsetWords int32) uint32 {
	return (uint32(offsetWords) << 2) | uint32(kind)
}

// isEmptyStructConvention reports the empty-struct convention: offset == -1, upper32
// == 0. This is how a zero-size struct pointer is distinguished from a null
// pointer (both would otherwise decode to offset 0 / all zero).
func (p rawPointer) isEmptyStructConvention() bool {
	return p.kind() == KindStruct && p.structOffset() == -1 && p.upper == 0
}

// --- struct ref (upper32 of a struct pointer) ---

func structRefUpper(size schema.StructSize) uint32 {
	return uint32(size.DataWords) | uint32(size.PointerCount)<<16
}

func decodeStructRef(upper uint32) schema.StructSize {
	return schema.StructSize{
		DataWords:    uint16(upper & 0xFFFF),
		PointerCount: uint16(upper >> 16),
	}
}

// --- list ref (upper32 of a list pointer) ---

func listRefUpper(size schema.ElementSize, count uint32) uint32 {
	return (count << 3) | uint32(size&0x7)
}

func decodeListRef(upper uint32) (size schema.ElementSize, count uint32) {
	return schema.ElementSize(upper & 0x7), upper >> 3
}

// --- far pointer (kind == KindFar) ---

const doubleFarBit = uint32(1) << 2

func farIsDouble(p rawPointer) bool {
	return p.low&doubleFarBit != 0
}

// farTargetWord returns the word position within the target segment that a
// far pointer's low32 carries in its top 29 bits.
func farTargetWord(p rawPointer) uint32 {
	return p.low >> 3
}

func farSegmentID(p rawPointer) uint32 {
	return p.upper
}

func makeFarLow(double bool, targetWord uint32) uint32 {
	low := (targetWord << 3) | uint32(KindFar)
	if double {
		low |= doubleFarBit
	}
	return low
}

func makeFarPointer(double bool, targetWord, segmentID uint32) rawPointer {
	return rawPointer{low: makeFarLow(double, targetWord), upper: segmentID}
}

// --- capability pointer (kind == KindOther) ---

func makeCapabilityPointer(index uint32) rawPointer {
	return rawPointer{low: uint32(KindOther), upper: index}
}

func capabilityIndex(p rawPointer) uint32 {
	return p.upper
}
