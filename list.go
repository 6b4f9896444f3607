package capnp

import (
	"github.com/bearlytools/capnp/internal/wire"
	"github.com/bearlytools/capnp/internal/xerrors"
	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

// ListReader is a read-only view over a list's elements, per §3/§4.E/§4.F.
// For everything except inline-composite lists, elements are addressed
// directly (bit or byte offset from the list's first word); for
// inline-composite lists, each element is itself a struct whose size comes
// from the tag word at off.
type ListReader struct {
	seg          *Segment
	off          int // word offset of the first element (or the struct tag word minus any header)
	esize        schema.ElementSize
	count        uint32
	structSize   schema.StructSize // valid only when esize == SizeInlineComposite
	nestingLimit int32

	src     segmentSource
	limiter *readLimiter
	ctx     context.Context
	opts    ReaderOptions
}

// Len returns the number of elements.
func (l ListReader) Len() int { return int(l.count) }

// ElementSize reports the list's wire element size.
func (l ListReader) ElementSize() schema.ElementSize { return l.esize }

func (l ListReader) fail(t xerrors.Type, msg string) error {
	return xerrors.E(l.ctx, xerrors.CatUser, t, xerrors.New(msg))
}

// rawBytes returns the list's elements as a flat byte slice, valid for
// SizeByte lists used as Data/Text (for other element sizes count is not the
// body's byte length).
func (l ListReader) rawBytes() []byte {
	if l.seg == nil {
		return nil
	}
	return l.seg.buf[l.off*8 : l.off*8+int(l.count)]
}

// elementStrideBytes returns the per-element stride, in bytes, for a
// fixed-width, non-bit, non-composite element size. DataBitsPerElement
// reports 0 for SizePointer (pointer elements carry no data bits, only a
// pointer word), so that case is special-cased to the one word every
// pointer-list element actually occupies.
func elementStrideBytes(esize schema.ElementSize) int {
	if esize == schema.SizePointer {
		return 8
	}
	return esize.DataBitsPerElement() / 8
}

// elementByteOffset returns the byte offset of element i for a fixed-width,
// non-bit, non-composite element size.
func (l ListReader) elementByteOffset(i int) int {
	return l.off*8 + i*elementStrideBytes(l.esize)
}

// GetListElement returns the i-th element of a primitive list. Callers must
// already know the list's element size matches T's width; mismatches are
// caught by the pointer-level GetList size check, not here.
func GetListElement[T wire.Number](l ListReader, i int) T {
	if i < 0 || i >= int(l.count) {
		var z T
		return z
	}
	off := l.elementByteOffset(i)
	b := l.seg.buf
	if off+int(unsafeSizeOf[T]()) > len(b) {
		var z T
		return z
	}
	return wire.Get[T](b[off:])
}

// GetBoolElement returns the i-th bit of a bit list.
func (l ListReader) GetBoolElement(i int) bool {
	if i < 0 || i >= int(l.count) {
		return false
	}
	return wire.GetBool(l.seg.buf[l.off*8:], uint32(i))
}

// structElementLayout returns the per-element struct shape and the word
// offset of element i's data section, handling both plain (fixed-size,
// non-inline-composite struct list encoded as SizeInlineComposite with
// count==1 semantics do not apply here) and inline-composite lists.
func (l ListReader) structElementLayout(i int) (schema.StructSize, int) {
	if l.esize == schema.SizeInlineComposite {
		step := l.structSize.Total()
		return l.structSize, l.off + 1 + i*step
	}
	// A list of SizePointer-sized structs produced by an older encoder can
	// also be reinterpreted as zero-data/one-pointer structs; not modeled
	// here since inline-composite is the only encoding this arena emits.
	return schema.StructSize{DataWords: 0, PointerCount: 0}, l.off + i
}

// GetStructElement returns element i interpreted as a struct, per §4.F's
// struct-list upgrade rules: if the list's declared per-element size is
// smaller than expected (caller asked for more fields than are present),
// the extra fields simply read as zero/null because StructReader clamps
// out-of-range accesses.
func (l ListReader) GetStructElement(i int) StructReader {
	if i < 0 || i >= int(l.count) {
		return emptyStructReader(l.ctx, l.opts)
	}
	size, dataOff := l.structElementLayout(i)
	return StructReader{
		seg:          l.seg,
		dataOff:      dataOff,
		ptrOff:       dataOff + int(size.DataWords),
		dataSizeBits: int(size.DataWords) * 64,
		ptrCount:     int(size.PointerCount),
		nestingLimit: l.nestingLimit,
		src:          l.src,
		limiter:      l.limiter,
		ctx:          l.ctx,
		opts:         l.opts,
	}
}

// GetPointerElement returns element i of a pointer list as a PointerReader.
func (l ListReader) GetPointerElement(i int) PointerReader {
	if i < 0 || i >= int(l.count) || l.seg == nil {
		return PointerReader{ctx: l.ctx, opts: l.opts, nestingLimit: l.nestingLimit}
	}
	return PointerReader{
		seg:          l.seg,
		off:          l.off + i,
		src:          l.src,
		limiter:      l.limiter,
		nestingLimit: l.nestingLimit,
		ctx:          l.ctx,
		opts:         l.opts,
	}
}

// GetList follows the pointer as a list of the given expected element size,
// per §4.E. An inline-composite list is accepted when expected is
// SizeInlineComposite, SizePointer or SizeVoid, and is always returned as an
// inline-composite ListReader whose elements are read with GetStructElement;
// it is not rearranged to expose one primitive or pointer field per element.
// Any other list must have exactly the expected element size (SizeVoid
// accepts any size); a primitive or pointer list is not upgraded to a struct
// list. With ReaderOptions.FailFast off, a failure returns def and no error.
func (p PointerReader) GetList(expected schema.ElementSize, def ListReader) (lr ListReader, err error) {
	defer func() {
		if err != nil && !p.opts.FailFast {
			lr, err = def, nil
		}
	}()
	if p.seg == nil || p.IsNull() {
		return def, nil
	}
	if p.nestingLimit <= 0 {
		return def, p.fail(xerrors.TypeNestingLimitExceeded, "capnp: nesting limit exceeded")
	}

	r, tgtOff, err := p.resolveTarget()
	if err != nil {
		return def, err
	}
	if r.ptr.kind() != KindList {
		return def, p.fail(xerrors.TypeKindMismatch, "capnp: pointer is not a list")
	}

	esize, count := decodeListRef(r.ptr.upper)

	if esize == schema.SizeInlineComposite {
		if tgtOff < 0 || (tgtOff+1)*8 > len(r.seg.buf) {
			return def, p.fail(xerrors.TypeOutOfBounds, "capnp: inline composite tag out of bounds")
		}
		tag := readRawPointer(r.seg.buf[tgtOff*8 : tgtOff*8+8])
		if tag.kind() != KindStruct {
			return def, p.fail(xerrors.TypeInvalidPointer, "capnp: inline composite tag is not a struct tag")
		}
		elemSize := decodeStructRef(tag.upper)
		elemCount := uint32(tag.structOffset())
		step := elemSize.Total()
		need := 1 + int(elemCount)*step
		if need*8 > len(r.seg.buf)-tgtOff*8 {
			return def, p.fail(xerrors.TypeOutOfBounds, "capnp: inline composite list body out of bounds")
		}
		if !p.limiter.take(int64(need)) {
			return def, p.fail(xerrors.TypeTraversalLimitExceeded, "capnp: traversal limit exceeded")
		}
		if expected != schema.SizeInlineComposite && expected != schema.SizePointer && expected != schema.SizeVoid {
			return def, p.fail(xerrors.TypeElementSizeMismatch, "capnp: list element size mismatch")
		}
		return ListReader{
			seg: r.seg, off: tgtOff, esize: schema.SizeInlineComposite, count: elemCount,
			structSize: elemSize, nestingLimit: p.nestingLimit - 1,
			src: p.src, limiter: p.limiter, ctx: p.ctx, opts: p.opts,
		}, nil
	}

	if esize != expected && expected != schema.SizeVoid {
		return def, p.fail(xerrors.TypeElementSizeMismatch, "capnp: list element size mismatch")
	}

	var words int
	if esize == schema.SizePointer {
		words = int(count)
	} else {
		bits := esize.DataBitsPerElement() * int(count)
		words = wire.RoundBitsUpToWords(bits)
	}
	if tgtOff < 0 || (tgtOff+words)*8 > len(r.seg.buf) {
		return def, p.fail(xerrors.TypeOutOfBounds, "capnp: list body out of bounds")
	}
	if !p.limiter.take(int64(max(words, 1))) {
		return def, p.fail(xerrors.TypeTraversalLimitExceeded, "capnp: traversal limit exceeded")
	}

	return ListReader{
		seg: r.seg, off: tgtOff, esize: esize, count: count,
		nestingLimit: p.nestingLimit - 1,
		src:          p.src, limiter: p.limiter, ctx: p.ctx, opts: p.opts,
	}, nil
}

// TotalSize walks every element's pointer graph (a no-op for non-pointer,
// non-composite lists).
func (l ListReader) TotalSize() (MessageSize, error) {
	if l.seg == nil {
		return MessageSize{}, nil
	}
	var total MessageSize
	switch l.esize {
	case schema.SizePointer:
		for i := 0; i < int(l.count); i++ {
			sub, err := totalSize(l.ctx, l.src, l.seg, l.off+i, l.nestingLimit)
			if err != nil {
				return MessageSize{}, err
			}
			total.WordCount += sub.WordCount
			total.CapCount += sub.CapCount
		}
		total.WordCount += uint64(l.count)
	case schema.SizeInlineComposite:
		step := l.structSize.Total()
		total.WordCount += uint64(1 + int(l.count)*step)
		for i := 0; i < int(l.count); i++ {
			s := l.GetStructElement(i)
			for j := 0; j < s.ptrCount; j++ {
				sub, err := totalSize(l.ctx, l.src, s.seg, s.ptrOff+j, l.nestingLimit)
				if err != nil {
					return MessageSize{}, err
				}
				total.WordCount += sub.WordCount
				total.CapCount += sub.CapCount
			}
		}
	default:
		bits := l.esize.DataBitsPerElement() * int(l.count)
		total.WordCount = uint64(wire.RoundBitsUpToWords(bits))
	}
	return total, nil
}

// ListBuilder is a writable view over a list's elements.
type ListBuilder struct {
	seg        *Segment
	off        int
	esize      schema.ElementSize
	count      uint32
	structSize schema.StructSize // valid only when esize == SizeInlineComposite
	arena      *BuilderArena
	ctx        context.Context
}

// Len returns the number of elements.
func (l ListBuilder) Len() int { return int(l.count) }

func (l ListBuilder) elementByteOffset(i int) int {
	return l.off*8 + i*elementStrideBytes(l.esize)
}

// SetListElement writes the i-th element of a primitive list.
func SetListElement[T wire.Number](l ListBuilder, i int, v T) {
	wire.Put(l.seg.buf[l.elementByteOffset(i):], v)
}

// GetListElementFromBuilder reads the i-th element back (read-modify-write
// support for generated code).
func GetListElementFromBuilder[T wire.Number](l ListBuilder, i int) T {
	return wire.Get[T](l.seg.buf[l.elementByteOffset(i):])
}

// SetBoolElement writes the i-th bit of a bit list.
func (l ListBuilder) SetBoolElement(i int, v bool) {
	wire.PutBool(l.seg.buf[l.off*8:], uint32(i), v)
}

func (l ListBuilder) GetBoolElement(i int) bool {
	return wire.GetBool(l.seg.buf[l.off*8:], uint32(i))
}

func (l ListBuilder) structElementLayout(i int) (schema.StructSize, int) {
	if l.esize == schema.SizeInlineComposite {
		step := l.structSize.Total()
		return l.structSize, l.off + 1 + i*step
	}
	return schema.StructSize{}, l.off + i
}

// GetStructElement returns element i as a StructBuilder.
func (l ListBuilder) GetStructElement(i int) StructBuilder {
	size, dataOff := l.structElementLayout(i)
	return StructBuilder{
		seg: l.seg, dataOff: dataOff, ptrOff: dataOff + int(size.DataWords),
		size: size, arena: l.arena, ctx: l.ctx,
	}
}

// GetPointerElement returns element i of a pointer list as a PointerBuilder.
func (l ListBuilder) GetPointerElement(i int) PointerBuilder {
	return PointerBuilder{seg: l.seg, off: l.off + i, arena: l.arena, ctx: l.ctx}
}

// rawBytes exposes a byte/bit list's backing bytes for Data/Text writers.
func (l ListBuilder) rawBytes() []byte {
	return l.seg.buf[l.off*8 : l.off*8+int(l.count)]
}

// AsReader produces a ListReader over the same memory.
func (l ListBuilder) AsReader(src segmentSource, limiter *readLimiter, opts ReaderOptions) ListReader {
	return ListReader{
		seg: l.seg, off: l.off, esize: l.esize, count: l.count, structSize: l.structSize,
		nestingLimit: opts.NestingLimit, src: src, limiter: limiter, ctx: l.ctx, opts: opts,
	}
}

func unsafeSizeOf[T wire.Number]() uintptr {
	var v T
	switch any(v).(type) {
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
