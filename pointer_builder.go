package capnp

import (
	"github.com/bearlytools/capnp/capability"
	"github.com/bearlytools/capnp/internal/wire"
	"github.com/bearlytools/capnp/internal/xerrors"
	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

// PointerBuilder is a writable view over a single pointer slot, per §4.E's
// generator-facing surface.
type PointerBuilder struct {
	seg   *Segment
	off   int
	arena *BuilderArena
	ctx   context.Context
}

func (p PointerBuilder) raw() rawPointer {
	return readRawPointer(p.seg.buf[p.off*8 : p.off*8+8])
}

// IsNull reports whether the slot currently holds a null pointer.
func (p PointerBuilder) IsNull() bool {
	return p.raw().isNull()
}

// Clear zeroes whatever the pointer currently refers to (recursively) and
// then the pointer word itself.
func (p PointerBuilder) Clear() error {
	return zeroObject(p.ctx, p.arena, p.seg, p.off, defaultNestingLimit)
}

// InitStruct allocates a fresh struct of the given size, discarding
// whatever the slot previously held, and returns a builder over it.
func (p PointerBuilder) InitStruct(size schema.StructSize) (StructBuilder, error) {
	if err := p.Clear(); err != nil {
		return StructBuilder{}, err
	}
	tgtSeg, tgtOff, err := allocateObject(p.ctx, p.arena, p.seg, p.off, size.Total(), KindStruct, structRefUpper(size))
	if err != nil {
		return StructBuilder{}, err
	}
	return StructBuilder{
		seg: tgtSeg, dataOff: tgtOff, ptrOff: tgtOff + int(size.DataWords),
		size: size, arena: p.arena, ctx: p.ctx,
	}, nil
}

// InitList allocates a fresh list of count elements of the given fixed
// (non-inline-composite) element size.
func (p PointerBuilder) InitList(esize schema.ElementSize, count uint32) (ListBuilder, error) {
	if err := p.Clear(); err != nil {
		return ListBuilder{}, err
	}
	var words int
	if esize == schema.SizePointer {
		words = int(count)
	} else {
		bits := esize.DataBitsPerElement() * int(count)
		words = wire.RoundBitsUpToWords(bits)
	}
	tgtSeg, tgtOff, err := allocateObject(p.ctx, p.arena, p.seg, p.off, words, KindList, listRefUpper(esize, count))
	if err != nil {
		return ListBuilder{}, err
	}
	return ListBuilder{seg: tgtSeg, off: tgtOff, esize: esize, count: count, arena: p.arena, ctx: p.ctx}, nil
}

// InitStructList allocates a fresh inline-composite list of count elements,
// each of elemSize, per §4.E's struct-list convention: a tag word (itself
// struct-ref shaped, with the element count in its offset field) precedes
// the element bodies.
func (p PointerBuilder) InitStructList(elemSize schema.StructSize, count uint32) (ListBuilder, error) {
	if err := p.Clear(); err != nil {
		return ListBuilder{}, err
	}
	step := elemSize.Total()
	amount := 1 + int(count)*step
	tgtSeg, tgtOff, err := allocateObject(p.ctx, p.arena, p.seg, p.off, amount, KindList, listRefUpper(schema.SizeInlineComposite, uint32(amount-1)))
	if err != nil {
		return ListBuilder{}, err
	}
	tag := rawPointer{low: makeStructOffsetLow(KindStruct, int32(count)), upper: structRefUpper(elemSize)}
	tag.write(tgtSeg.buf[tgtOff*8 : tgtOff*8+8])
	return ListBuilder{
		seg: tgtSeg, off: tgtOff, esize: schema.SizeInlineComposite, count: count,
		structSize: elemSize, arena: p.arena, ctx: p.ctx,
	}, nil
}

// InitText allocates a byte list of len(s)+1 bytes (room for the trailing
// NUL) and copies s into it, per invariant 9's text convention.
func (p PointerBuilder) InitText(s string) (ListBuilder, error) {
	lb, err := p.InitList(schema.SizeByte, uint32(len(s))+1)
	if err != nil {
		return ListBuilder{}, err
	}
	copy(lb.rawBytes(), wire.StringToBytes(s))
	return lb, nil
}

// InitData allocates a byte list and copies d into it verbatim.
func (p PointerBuilder) InitData(d []byte) (ListBuilder, error) {
	lb, err := p.InitList(schema.SizeByte, uint32(len(d)))
	if err != nil {
		return ListBuilder{}, err
	}
	copy(lb.rawBytes(), d)
	return lb, nil
}

// reader returns a throwaway PointerReader over this slot, used to drive
// the read-side helpers (resolveTarget, followFars) from builder code
// without duplicating their logic.
func (p PointerBuilder) reader() PointerReader {
	return PointerReader{
		seg: p.seg, off: p.off, src: p.arena, limiter: nil,
		nestingLimit: defaultNestingLimit, ctx: p.ctx, opts: DefaultReaderOptions(),
	}
}

// GetStruct returns a builder over the slot's existing struct, widening it
// in place (allocating a new, larger copy and abandoning the old one as
// garbage within the message) if its declared size is smaller than size,
// per §4.D's get_writable_struct_pointer. If the slot is null, it is
// initialized to size.
func (p PointerBuilder) GetStruct(size schema.StructSize) (StructBuilder, error) {
	if p.IsNull() {
		return p.InitStruct(size)
	}
	r, tgtOff, err := p.reader().resolveTarget()
	if err != nil {
		return StructBuilder{}, err
	}
	if r.ptr.kind() != KindStruct {
		return StructBuilder{}, xerrors.E(p.ctx, xerrors.CatUser, xerrors.TypeKindMismatch, xerrors.New("capnp: pointer is not a struct"))
	}
	existing := schema.StructSize{}
	if !r.ptr.isEmptyStructConvention() {
		existing = decodeStructRef(r.ptr.upper)
	}
	if size.FitsIn(existing) {
		return StructBuilder{
			seg: r.seg, dataOff: tgtOff, ptrOff: tgtOff + int(existing.DataWords),
			size: existing, arena: p.arena, ctx: p.ctx,
		}, nil
	}

	grown := existing.Max(size)
	newSeg, newOff, err := allocateObject(p.ctx, p.arena, p.seg, p.off, grown.Total(), KindStruct, structRefUpper(grown))
	if err != nil {
		return StructBuilder{}, err
	}
	if !r.ptr.isEmptyStructConvention() {
		copy(newSeg.buf[newOff*8:newOff*8+int(existing.DataWords)*8], r.seg.buf[tgtOff*8:tgtOff*8+int(existing.DataWords)*8])
		for i := 0; i < int(existing.PointerCount); i++ {
			childSrc := PointerReader{
				seg: r.seg, off: tgtOff + int(existing.DataWords) + i,
				src: p.arena, limiter: nil, nestingLimit: defaultNestingLimit,
				ctx: p.ctx, opts: DefaultReaderOptions(),
			}
			if err := copyPointer(p.ctx, p.arena, newSeg, newOff+int(grown.DataWords)+i, childSrc); err != nil {
				return StructBuilder{}, err
			}
		}
	}
	return StructBuilder{
		seg: newSeg, dataOff: newOff, ptrOff: newOff + int(grown.DataWords),
		size: grown, arena: p.arena, ctx: p.ctx,
	}, nil
}

// GetList returns a builder over the slot's existing list. Unlike structs,
// lists are not widened in place here. A null slot yields ok==false and no
// error. A stored inline-composite list is returned as such whatever esize
// asks for; any other stored element size that differs from esize yields
// ok==false together with an ElementSizeMismatch error, since reinterpreting
// a list's element width without a schema-aware upgrade path risks
// misreading the body.
func (p PointerBuilder) GetList(esize schema.ElementSize) (lb ListBuilder, ok bool, err error) {
	if p.IsNull() {
		return ListBuilder{}, false, nil
	}
	r, tgtOff, err := p.reader().resolveTarget()
	if err != nil {
		return ListBuilder{}, false, err
	}
	if r.ptr.kind() != KindList {
		return ListBuilder{}, false, xerrors.E(p.ctx, xerrors.CatUser, xerrors.TypeKindMismatch, xerrors.New("capnp: pointer is not a list"))
	}
	actual, count := decodeListRef(r.ptr.upper)
	if actual == schema.SizeInlineComposite {
		tag := readRawPointer(r.seg.buf[tgtOff*8 : tgtOff*8+8])
		elemSize := decodeStructRef(tag.upper)
		elemCount := uint32(tag.structOffset())
		return ListBuilder{
			seg: r.seg, off: tgtOff, esize: schema.SizeInlineComposite, count: elemCount,
			structSize: elemSize, arena: p.arena, ctx: p.ctx,
		}, true, nil
	}
	if actual != esize {
		return ListBuilder{}, false, xerrors.E(p.ctx, xerrors.CatUser, xerrors.TypeElementSizeMismatch, xerrors.New("capnp: list element size mismatch"))
	}
	return ListBuilder{seg: r.seg, off: tgtOff, esize: actual, count: count, arena: p.arena, ctx: p.ctx}, true, nil
}

// GetText returns the slot's text value, or def if null.
func (p PointerBuilder) GetText(def string) (string, error) {
	return p.reader().GetText(def)
}

// GetData returns the slot's data value, or def if null.
func (p PointerBuilder) GetData(def []byte) ([]byte, error) {
	return p.reader().GetData(def)
}

// SetStruct deep-copies src into this slot, per §4.D's Copy-pointer.
func (p PointerBuilder) SetStruct(src StructReader) error {
	if err := p.Clear(); err != nil {
		return err
	}
	if src.seg == nil {
		rawPointer{low: makeStructOffsetLow(KindStruct, -1), upper: 0}.write(p.seg.buf[p.off*8 : p.off*8+8])
		return nil
	}
	// A StructReader doesn't carry its own pointer word (it may have been
	// produced by following fars already); copyStruct only needs the
	// decoded shape and the data/pointer section offsets, so copy the
	// bytes directly rather than re-deriving them through a pointer.
	size := schema.StructSize{DataWords: uint16(src.dataSizeBits / 64), PointerCount: uint16(src.ptrCount)}
	tgtSeg, tgtOff, err := allocateObject(p.ctx, p.arena, p.seg, p.off, size.Total(), KindStruct, structRefUpper(size))
	if err != nil {
		return err
	}
	copy(tgtSeg.buf[tgtOff*8:tgtOff*8+int(size.DataWords)*8], src.dataBytes())
	for i := 0; i < int(size.PointerCount); i++ {
		if err := copyPointer(p.ctx, p.arena, tgtSeg, tgtOff+int(size.DataWords)+i, src.GetPointerField(i)); err != nil {
			return err
		}
	}
	return nil
}

// SetList deep-copies src into this slot.
func (p PointerBuilder) SetList(src ListReader) error {
	if err := p.Clear(); err != nil {
		return err
	}
	if src.seg == nil {
		return nil
	}
	switch src.esize {
	case schema.SizeInlineComposite:
		step := src.structSize.Total()
		amount := 1 + int(src.count)*step
		tgtSeg, tgtOff, err := allocateObject(p.ctx, p.arena, p.seg, p.off, amount, KindList, listRefUpper(schema.SizeInlineComposite, uint32(amount-1)))
		if err != nil {
			return err
		}
		tag := rawPointer{low: makeStructOffsetLow(KindStruct, int32(src.count)), upper: structRefUpper(src.structSize)}
		tag.write(tgtSeg.buf[tgtOff*8 : tgtOff*8+8])
		for i := 0; i < int(src.count); i++ {
			s := src.GetStructElement(i)
			base := tgtOff + 1 + i*step
			copy(tgtSeg.buf[base*8:base*8+int(src.structSize.DataWords)*8], s.dataBytes())
			for j := 0; j < int(src.structSize.PointerCount); j++ {
				if err := copyPointer(p.ctx, p.arena, tgtSeg, base+int(src.structSize.DataWords)+j, s.GetPointerField(j)); err != nil {
					return err
				}
			}
		}
		return nil
	case schema.SizePointer:
		tgtSeg, tgtOff, err := allocateObject(p.ctx, p.arena, p.seg, p.off, int(src.count), KindList, listRefUpper(schema.SizePointer, src.count))
		if err != nil {
			return err
		}
		for i := 0; i < int(src.count); i++ {
			if err := copyPointer(p.ctx, p.arena, tgtSeg, tgtOff+i, src.GetPointerElement(i)); err != nil {
				return err
			}
		}
		return nil
	default:
		bits := src.esize.DataBitsPerElement() * int(src.count)
		words := wireRoundBitsUpToWords(bits)
		tgtSeg, tgtOff, err := allocateObject(p.ctx, p.arena, p.seg, p.off, words, KindList, listRefUpper(src.esize, src.count))
		if err != nil {
			return err
		}
		byteLen := (bits + 7) / 8
		copy(tgtSeg.buf[tgtOff*8:tgtOff*8+byteLen], src.rawBytes()[:byteLen])
		return nil
	}
}

// SetText replaces the slot with a fresh text value.
func (p PointerBuilder) SetText(s string) error {
	_, err := p.InitText(s)
	return err
}

// SetData replaces the slot with a fresh data value.
func (p PointerBuilder) SetData(d []byte) error {
	_, err := p.InitData(d)
	return err
}

// SetCapability interns hook into the arena's capability table and writes a
// capability pointer referring to it.
func (p PointerBuilder) SetCapability(hook capability.ClientHook) error {
	if err := p.Clear(); err != nil {
		return err
	}
	idx := p.arena.CapTable().Add(hook)
	makeCapabilityPointer(idx).write(p.seg.buf[p.off*8 : p.off*8+8])
	return nil
}
