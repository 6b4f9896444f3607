package capnp

import (
	"unicode/utf8"

	"github.com/bearlytools/capnp/capability"
	"github.com/bearlytools/capnp/internal/wire"
	"github.com/bearlytools/capnp/internal/xerrors"
	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

// PointerReader is a read-only view over a single pointer slot: either a
// struct field's pointer-section entry, a list element, or a message root.
type PointerReader struct {
	seg          *Segment
	off          int // word offset within seg; meaningless if seg == nil (null)
	src          segmentSource
	limiter      *readLimiter
	nestingLimit int32
	ctx          context.Context
	opts         ReaderOptions
}

func (p PointerReader) raw() rawPointer {
	if p.seg == nil {
		return rawPointer{}
	}
	return readRawPointer(p.seg.buf[p.off*8 : p.off*8+8])
}

// IsNull reports whether the pointer is null.
func (p PointerReader) IsNull() bool {
	return p.raw().isNull()
}

func (p PointerReader) fail(t xerrors.Type, msg string) error {
	return xerrors.E(p.ctx, xerrors.CatUser, t, xerrors.New(msg))
}

// recoverOr implements §4.I/§7's reader failure semantics: under
// fail_fast, the error is returned to the caller; otherwise the default
// value is substituted and the error is dropped (logging is the embedder's
// concern; generated accessors don't have a logger to call into here).
func recoverOr[T any](p PointerReader, def T, err error) (T, error) {
	if err == nil {
		return def, nil
	}
	if p.opts.FailFast {
		var zero T
		return zero, err
	}
	return def, nil
}

// resolveTarget follows far pointers and returns the resolved segment/
// pointer plus the absolute word offset of the target. It does not charge
// the traversal limiter; GetStruct and GetList do that once they know the
// target's size.
func (p PointerReader) resolveTarget() (resolved, int, error) {
	raw := p.raw()
	r, err := followFars(p.ctx, p.src, p.seg, raw)
	if err != nil {
		return resolved{}, 0, err
	}
	base := p.off
	if raw.kind() == KindFar {
		base = -1
	}
	return r, targetWordOffset(r, base), nil
}

// GetStruct follows the pointer as a struct, producing a StructReader with
// nesting_limit-1. If the pointer is null, returns a reader over def (or an
// all-zero reader if def is the zero StructReader).
func (p PointerReader) GetStruct(def StructReader) (StructReader, error) {
	if p.seg == nil || p.IsNull() {
		return def, nil
	}
	if p.nestingLimit <= 0 {
		return recoverOr(p, def, p.fail(xerrors.TypeNestingLimitExceeded, "capnp: nesting limit exceeded"))
	}

	r, tgtOff, err := p.resolveTarget()
	if err != nil {
		return recoverOr(p, def, err)
	}
	if r.ptr.kind() != KindStruct {
		return recoverOr(p, def, p.fail(xerrors.TypeKindMismatch, "capnp: pointer is not a struct"))
	}

	if r.ptr.isEmptyStructConvention() {
		return StructReader{nestingLimit: p.nestingLimit - 1, src: p.src, limiter: p.limiter, ctx: p.ctx, opts: p.opts}, nil
	}

	size := decodeStructRef(r.ptr.upper)
	if tgtOff < 0 || (tgtOff+size.Total())*8 > len(r.seg.buf) {
		return recoverOr(p, def, p.fail(xerrors.TypeOutOfBounds, "capnp: struct target out of bounds"))
	}
	if !p.limiter.take(int64(size.Total())) {
		return recoverOr(p, def, p.fail(xerrors.TypeTraversalLimitExceeded, "capnp: traversal limit exceeded"))
	}

	return StructReader{
		seg:          r.seg,
		dataOff:      tgtOff,
		ptrOff:       tgtOff + int(size.DataWords),
		dataSizeBits: int(size.DataWords) * 64,
		ptrCount:     int(size.PointerCount),
		nestingLimit: p.nestingLimit - 1,
		src:          p.src,
		limiter:      p.limiter,
		ctx:          p.ctx,
		opts:         p.opts,
	}, nil
}

// ListReader is documented in list.go; GetList lives there to keep the
// element-size dispatch next to the type it returns.

// GetText follows the pointer as a byte list ending in a NUL terminator,
// validating UTF-8 and stripping the terminator, per invariant 9.
func (p PointerReader) GetText(def string) (string, error) {
	lr, err := p.GetList(schema.SizeByte, ListReader{})
	if err != nil {
		return recoverOr(p, def, err)
	}
	if lr.seg == nil {
		return def, nil
	}
	if lr.count == 0 {
		return recoverOr(p, def, p.fail(xerrors.TypeMissingNulTerminator, "capnp: text list has no NUL terminator"))
	}
	raw := lr.rawBytes()
	if raw[len(raw)-1] != 0 {
		return recoverOr(p, def, p.fail(xerrors.TypeMissingNulTerminator, "capnp: text does not end in a NUL byte"))
	}
	text := raw[:len(raw)-1]
	if !utf8.Valid(text) {
		return recoverOr(p, def, p.fail(xerrors.TypeInvalidUtf8, "capnp: text is not valid UTF-8"))
	}
	return wire.BytesToString(text), nil
}

// GetData follows the pointer as a byte list with no special terminator
// handling.
func (p PointerReader) GetData(def []byte) ([]byte, error) {
	lr, err := p.GetList(schema.SizeByte, ListReader{})
	if err != nil {
		return recoverOr(p, def, err)
	}
	if lr.seg == nil {
		return def, nil
	}
	return lr.rawBytes(), nil
}

// GetCapability follows the pointer as a capability, returning the local
// client hook, or UnknownCapability if the table index is out of range.
func (p PointerReader) GetCapability(table *capability.Table) (capability.ClientHook, error) {
	raw := p.raw()
	if raw.isNull() {
		return nil, nil
	}
	if raw.kind() != KindOther {
		return nil, p.fail(xerrors.TypeKindMismatch, "capnp: pointer is not a capability")
	}
	hook, ok := table.At(capabilityIndex(raw))
	if !ok {
		return nil, p.fail(xerrors.TypeUnknownCapability, "capnp: capability table index out of range")
	}
	return hook, nil
}

// TotalSize walks the pointer's target, if any.
func (p PointerReader) TotalSize() (MessageSize, error) {
	if p.seg == nil {
		return MessageSize{}, nil
	}
	return totalSize(p.ctx, p.src, p.seg, p.off, p.nestingLimit)
}
