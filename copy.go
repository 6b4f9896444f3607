package capnp

import (
	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

// copyPointer implements §4.D's Copy-pointer: it deep-copies whatever src
// refers to into dst's arena and writes the resulting pointer at
// dstSeg[dstOffsetWords]. It is used both for plain field-to-field copies
// across messages and for the widening upgrade in PointerBuilder.GetStruct, which
// copies a struct's old, smaller representation into a newly allocated,
// larger one.
func copyPointer(ctx context.Context, dstArena *BuilderArena, dstSeg *Segment, dstOffsetWords int, src PointerReader) error {
	if src.seg == nil || src.IsNull() {
		return nil
	}
	r, tgtOff, err := src.resolveTarget()
	if err != nil {
		return err
	}

	switch r.ptr.kind() {
	case KindStruct:
		return copyStruct(ctx, dstArena, dstSeg, dstOffsetWords, r, tgtOff, src)
	case KindList:
		return copyList(ctx, dstArena, dstSeg, dstOffsetWords, r, tgtOff, src)
	case KindOther:
		hook, err := src.GetCapability(src.src.capsTable())
		if err != nil {
			return err
		}
		idx := dstArena.CapTable().Add(hook.Copy())
		makeCapabilityPointer(idx).write(dstSeg.buf[dstOffsetWords*8 : dstOffsetWords*8+8])
		return nil
	default:
		return nil
	}
}

func copyStruct(ctx context.Context, dstArena *BuilderArena, dstSeg *Segment, dstOffsetWords int, r resolved, srcTgtOff int, src PointerReader) error {
	if r.ptr.isEmptyStructConvention() {
		rawPointer{low: makeStructOffsetLow(KindStruct, -1), upper: 0}.write(dstSeg.buf[dstOffsetWords*8 : dstOffsetWords*8+8])
		return nil
	}
	size := decodeStructRef(r.ptr.upper)
	tgtSeg, tgtOffWords, err := allocateObject(ctx, dstArena, dstSeg, dstOffsetWords, size.Total(), KindStruct, structRefUpper(size))
	if err != nil {
		return err
	}
	copy(tgtSeg.buf[tgtOffWords*8:tgtOffWords*8+int(size.DataWords)*8], r.seg.buf[srcTgtOff*8:srcTgtOff*8+int(size.DataWords)*8])
	for i := 0; i < int(size.PointerCount); i++ {
		childSrc := PointerReader{
			seg: r.seg, off: srcTgtOff + int(size.DataWords) + i,
			src: src.src, limiter: src.limiter, nestingLimit: src.nestingLimit - 1,
			ctx: src.ctx, opts: src.opts,
		}
		if err := copyPointer(ctx, dstArena, tgtSeg, tgtOffWords+int(size.DataWords)+i, childSrc); err != nil {
			return err
		}
	}
	return nil
}

func copyList(ctx context.Context, dstArena *BuilderArena, dstSeg *Segment, dstOffsetWords int, r resolved, srcTgtOff int, src PointerReader) error {
	esize, count := decodeListRef(r.ptr.upper)

	if esize == schema.SizeInlineComposite {
		tag := readRawPointer(r.seg.buf[srcTgtOff*8 : srcTgtOff*8+8])
		elemSize := decodeStructRef(tag.upper)
		elemCount := uint32(tag.structOffset())
		step := elemSize.Total()
		amount := 1 + int(elemCount)*step

		tgtSeg, tgtOffWords, err := allocateObject(ctx, dstArena, dstSeg, dstOffsetWords, amount, KindList, listRefUpper(schema.SizeInlineComposite, uint32(amount-1)))
		if err != nil {
			return err
		}
		tag.write(tgtSeg.buf[tgtOffWords*8 : tgtOffWords*8+8])
		srcBody := srcTgtOff + 1
		dstBody := tgtOffWords + 1
		for i := uint32(0); i < elemCount; i++ {
			srcBase := srcBody + int(i)*step
			dstBase := dstBody + int(i)*step
			copy(tgtSeg.buf[dstBase*8:dstBase*8+int(elemSize.DataWords)*8], r.seg.buf[srcBase*8:srcBase*8+int(elemSize.DataWords)*8])
			for j := 0; j < int(elemSize.PointerCount); j++ {
				childSrc := PointerReader{
					seg: r.seg, off: srcBase + int(elemSize.DataWords) + j,
					src: src.src, limiter: src.limiter, nestingLimit: src.nestingLimit - 1,
					ctx: src.ctx, opts: src.opts,
				}
				if err := copyPointer(ctx, dstArena, tgtSeg, dstBase+int(elemSize.DataWords)+j, childSrc); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if esize == schema.SizePointer {
		tgtSeg, tgtOffWords, err := allocateObject(ctx, dstArena, dstSeg, dstOffsetWords, int(count), KindList, listRefUpper(esize, count))
		if err != nil {
			return err
		}
		for i := uint32(0); i < count; i++ {
			childSrc := PointerReader{
				seg: r.seg, off: srcTgtOff + int(i),
				src: src.src, limiter: src.limiter, nestingLimit: src.nestingLimit - 1,
				ctx: src.ctx, opts: src.opts,
			}
			if err := copyPointer(ctx, dstArena, tgtSeg, tgtOffWords+int(i), childSrc); err != nil {
				return err
			}
		}
		return nil
	}

	bits := esize.DataBitsPerElement() * int(count)
	words := wireRoundBitsUpToWords(bits)
	tgtSeg, tgtOffWords, err := allocateObject(ctx, dstArena, dstSeg, dstOffsetWords, words, KindList, listRefUpper(esize, count))
	if err != nil {
		return err
	}
	byteLen := (bits + 7) / 8
	copy(tgtSeg.buf[tgtOffWords*8:tgtOffWords*8+byteLen], r.seg.buf[srcTgtOff*8:srcTgtOff*8+byteLen])
	return nil
}
