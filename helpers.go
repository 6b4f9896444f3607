package capnp

import (
	"github.com/bearlytools/capnp/internal/xerrors"
	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

// allocateObject implements §4.D's Allocate(reff, segment, amount, kind). It
// assumes the pointer word at ptrSeg[ptrOffsetWords] is already null (the
// zero-existing-target step happens in the caller, which is the only place
// that knows whether the overwrite needs to recursively free anything).
func allocateObject(ctx context.Context, arena *BuilderArena, ptrSeg *Segment, ptrOffsetWords int, amountWords int, kind Kind, payload uint32) (targetSeg *Segment, targetOffsetWords int, err error) {
	ptrRegion := ptrSeg.buf[ptrOffsetWords*8 : ptrOffsetWords*8+8]

	if kind == KindStruct && amountWords == 0 {
		rawPointer{low: makeStructOffsetLow(KindStruct, -1), upper: 0}.write(ptrRegion)
		return ptrSeg, ptrOffsetWords, nil
	}

	segID, offWords, _, aerr := arena.Allocate(ctx, amountWords)
	if aerr != nil {
		return nil, 0, aerr
	}
	tgtSeg := arena.Segment(segID)

	if segID == ptrSeg.id {
		off := int32(offWords - (ptrOffsetWords + 1))
		rawPointer{low: makeStructOffsetLow(kind, off), upper: payload}.write(ptrRegion)
		return tgtSeg, offWords, nil
	}

	// Cross-segment: try a simple far pointer first, landing the one-word
	// pad directly in the target's own segment (bump-allocated there, not
	// through the arena's general allocator, since the pad must live in
	// exactly that segment for a simple far to work).
	if padOff, padRegion, ok := tgtSeg.allocate(1); ok {
		makeFarPointer(false, uint32(padOff), tgtSeg.id).write(ptrRegion)
		rel := int32(offWords - (padOff + 1))
		rawPointer{low: makeStructOffsetLow(kind, rel), upper: payload}.write(padRegion)
		return tgtSeg, offWords, nil
	}

	// The target's segment had no room left over for a landing pad (it
	// was sized exactly to amountWords). Fall back to a genuine
	// double-far: a two-word landing pad placed wherever the arena can
	// fit it. Its first word points directly at the target (segment +
	// word position); its second word is a tag carrying kind/payload.
	padSegID, padOffWords, _, aerr := arena.Allocate(ctx, 2)
	if aerr != nil {
		return nil, 0, aerr
	}
	makeFarPointer(true, uint32(padOffWords), padSegID).write(ptrRegion)
	padSeg := arena.Segment(padSegID)
	makeFarPointer(false, uint32(offWords), segID).write(padSeg.buf[padOffWords*8 : padOffWords*8+8])
	rawPointer{low: uint32(kind), upper: payload}.write(padSeg.buf[(padOffWords+1)*8 : (padOffWords+1)*8+8])
	return tgtSeg, offWords, nil
}

// resolved is the outcome of following a chain of far pointers: the segment
// and raw pointer value the caller should now interpret as struct/list/
// other (never far).
type resolved struct {
	seg *Segment
	ptr rawPointer
}

// followFars implements §4.C's far-pointer resolution, idempotent over
// non-far input.
func followFars(ctx context.Context, src segmentSource, seg *Segment, p rawPointer) (resolved, error) {
	if p.kind() != KindFar {
		return resolved{seg: seg, ptr: p}, nil
	}

	padSeg, err := src.getSegment(ctx, farSegmentID(p))
	if err != nil {
		return resolved{}, err
	}
	padOff := int(farTargetWord(p))
	if padOff < 0 || (padOff+1)*8 > len(padSeg.buf) {
		return resolved{}, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeOutOfBounds, xerrors.New("capnp: far pointer landing pad out of bounds"))
	}

	if !farIsDouble(p) {
		landing := readRawPointer(padSeg.buf[padOff*8 : padOff*8+8])
		// The landing pad is an ordinary struct/list pointer whose offset is
		// relative to the pad's own position. Rebase it onto a virtual
		// pointer at word -1 of padSeg, the same base the double-far case
		// below uses, so callers resolve both far kinds the same way.
		if (landing.kind() == KindStruct || landing.kind() == KindList) && !landing.isEmptyStructConvention() {
			landing.low = makeStructOffsetLow(landing.kind(), int32(padOff+1)+landing.structOffset())
		}
		return resolved{seg: padSeg, ptr: landing}, nil
	}

	if (padOff+2)*8 > len(padSeg.buf) {
		return resolved{}, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeOutOfBounds, xerrors.New("capnp: double-far landing pad out of bounds"))
	}
	farWord := readRawPointer(padSeg.buf[padOff*8 : padOff*8+8])
	tagWord := readRawPointer(padSeg.buf[(padOff+1)*8 : (padOff+1)*8+8])
	if farWord.kind() != KindFar {
		return resolved{}, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeInvalidPointer, xerrors.New("capnp: double-far landing pad's first word is not itself far"))
	}
	finalSeg, err := src.getSegment(ctx, farSegmentID(farWord))
	if err != nil {
		return resolved{}, err
	}
	// The tag word carries kind/payload; its own offset field is
	// meaningless (the real position comes from farWord), but its low
	// kind bits and upper32 payload describe the target's shape. We
	// build a synthetic pointer whose offset is set so that, interpreted
	// relative to a (virtual) pointer at word -1 of the target, it
	// resolves to word farTargetWord(farWord) -- i.e. offset such that
	// target = (-1+1) + offset = offset.
	synthetic := rawPointer{
		low:   makeStructOffsetLow(tagWord.kind(), int32(farTargetWord(farWord))),
		upper: tagWord.upper,
	}
	return resolved{seg: finalSeg, ptr: synthetic}, nil
}

// targetWordOffset returns the absolute word offset, within r.seg, of the
// object r.ptr refers to, given that r.ptr lives at pointerWordOffset within
// r.seg. (After followFars, the "pointer" is virtual whenever it was reached
// through a far pointer, single or double, so pointerWordOffset in that case
// is -1, matching the rebased offsets constructed above.)
func targetWordOffset(r resolved, pointerWordOffset int) int {
	return pointerWordOffset + 1 + int(r.ptr.structOffset())
}

// zeroObject recursively zeroes the object reff refers to and then the
// pointer word itself, per §4.D's Zero-object.
func zeroObject(ctx context.Context, arena *BuilderArena, seg *Segment, offsetWords int, nestingLimit int32) error {
	if nestingLimit <= 0 {
		return xerrors.E(ctx, xerrors.CatUser, xerrors.TypeNestingLimitExceeded, xerrors.New("capnp: nesting limit exceeded while zeroing"))
	}
	region := seg.buf[offsetWords*8 : offsetWords*8+8]
	p := readRawPointer(region)
	if p.isNull() {
		return nil
	}

	r, err := followFars(ctx, arena, seg, p)
	if err != nil {
		return err
	}
	tgtOff := targetWordOffset(r, offsetWords)
	if p.kind() == KindFar {
		tgtOff = targetWordOffset(r, -1)
	}

	switch r.ptr.kind() {
	case KindStruct:
		size := decodeStructRef(r.ptr.upper)
		if !r.ptr.isEmptyStructConvention() {
			for i := 0; i < int(size.PointerCount); i++ {
				ptrWord := tgtOff + int(size.DataWords) + i
				if err := zeroObject(ctx, arena, r.seg, ptrWord, nestingLimit-1); err != nil {
					return err
				}
			}
			clear(r.seg.buf[tgtOff*8 : (tgtOff+size.Total())*8])
		}
	case KindList:
		esize, count := decodeListRef(r.ptr.upper)
		if err := zeroList(ctx, arena, r.seg, tgtOff, esize, count, nestingLimit-1); err != nil {
			return err
		}
	case KindOther:
		if err := arena.CapTable().Drop(capabilityIndex(r.ptr)); err != nil {
			return err
		}
	}

	clear(region)
	return nil
}

func zeroList(ctx context.Context, arena *BuilderArena, seg *Segment, start int, esize schema.ElementSize, count uint32, nestingLimit int32) error {
	switch esize {
	case SizePointerElem:
		for i := uint32(0); i < count; i++ {
			if err := zeroObject(ctx, arena, seg, start+int(i), nestingLimit); err != nil {
				return err
			}
		}
		clear(seg.buf[start*8 : start*8+int(count)*8])
	case SizeInlineCompositeElem:
		if count == 0 {
			return nil
		}
		tag := readRawPointer(seg.buf[start*8 : start*8+8])
		elemSize := decodeStructRef(tag.upper)
		elemCount := uint32(tag.structOffset())
		step := elemSize.Total()
		body := start + 1
		for i := uint32(0); i < elemCount; i++ {
			base := body + int(i)*step
			for j := 0; j < int(elemSize.PointerCount); j++ {
				if err := zeroObject(ctx, arena, seg, base+int(elemSize.DataWords)+j, nestingLimit); err != nil {
					return err
				}
			}
		}
		clear(seg.buf[start*8 : (body+int(elemCount)*step)*8])
	default:
		bits := esize.DataBitsPerElement() * int(count)
		words := wireRoundBitsUpToWords(bits)
		clear(seg.buf[start*8 : (start+words)*8])
	}
	return nil
}

const (
	SizePointerElem         = schema.SizePointer
	SizeInlineCompositeElem = schema.SizeInlineComposite
)

func wireRoundBitsUpToWords(bits int) int {
	return (bits + 63) / 64
}

// totalSize walks the object graph rooted at reff without copying,
// accumulating word and capability counts for pre-sizing a destination
// arena, per §4.D's Total-size.
type MessageSize struct {
	WordCount uint64
	CapCount  uint64
}

func totalSize(ctx context.Context, src segmentSource, seg *Segment, offsetWords int, nestingLimit int32) (MessageSize, error) {
	if nestingLimit <= 0 {
		return MessageSize{}, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeNestingLimitExceeded, xerrors.New("capnp: nesting limit exceeded while sizing"))
	}
	p := readRawPointer(seg.buf[offsetWords*8 : offsetWords*8+8])
	if p.isNull() {
		return MessageSize{}, nil
	}
	r, err := followFars(ctx, src, seg, p)
	if err != nil {
		return MessageSize{}, err
	}
	tgtOff := targetWordOffset(r, offsetWords)
	if p.kind() == KindFar {
		tgtOff = targetWordOffset(r, -1)
	}

	switch r.ptr.kind() {
	case KindStruct:
		if r.ptr.isEmptyStructConvention() {
			return MessageSize{}, nil
		}
		size := decodeStructRef(r.ptr.upper)
		total := MessageSize{WordCount: uint64(size.Total())}
		for i := 0; i < int(size.PointerCount); i++ {
			sub, err := totalSize(ctx, src, r.seg, tgtOff+int(size.DataWords)+i, nestingLimit-1)
			if err != nil {
				return MessageSize{}, err
			}
			total.WordCount += sub.WordCount
			total.CapCount += sub.CapCount
		}
		return total, nil
	case KindList:
		esize, count := decodeListRef(r.ptr.upper)
		switch esize {
		case schema.SizePointer:
			total := MessageSize{WordCount: uint64(count)}
			for i := uint32(0); i < count; i++ {
				sub, err := totalSize(ctx, src, r.seg, tgtOff+int(i), nestingLimit-1)
				if err != nil {
					return MessageSize{}, err
				}
				total.WordCount += sub.WordCount
				total.CapCount += sub.CapCount
			}
			return total, nil
		case schema.SizeInlineComposite:
			if count == 0 {
				return MessageSize{}, nil
			}
			tag := readRawPointer(r.seg.buf[tgtOff*8 : tgtOff*8+8])
			elemSize := decodeStructRef(tag.upper)
			elemCount := uint32(tag.structOffset())
			step := elemSize.Total()
			total := MessageSize{WordCount: uint64(1 + elemCount*uint32(step))}
			body := tgtOff + 1
			for i := uint32(0); i < elemCount; i++ {
				base := body + int(i)*step
				for j := 0; j < int(elemSize.PointerCount); j++ {
					sub, err := totalSize(ctx, src, r.seg, base+int(elemSize.DataWords)+j, nestingLimit-1)
					if err != nil {
						return MessageSize{}, err
					}
					total.WordCount += sub.WordCount
					total.CapCount += sub.CapCount
				}
			}
			return total, nil
		default:
			bits := esize.DataBitsPerElement() * int(count)
			return MessageSize{WordCount: uint64(wireRoundBitsUpToWords(bits))}, nil
		}
	case KindOther:
		return MessageSize{CapCount: 1}, nil
	default:
		return MessageSize{}, nil
	}
}
