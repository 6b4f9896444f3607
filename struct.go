package capnp

import (
	"github.com/bearlytools/capnp/internal/wire"
	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

// StructReader is a typed, zero-allocation view over a struct's data and
// pointer sections, per §3/§4.E. It is a plain aggregate: cheap to
// construct, cheap to copy.
type StructReader struct {
	seg          *Segment
	dataOff      int // word offset of the data section within seg
	ptrOff       int // word offset of the pointer section within seg
	dataSizeBits int
	ptrCount     int
	nestingLimit int32

	src     segmentSource
	limiter *readLimiter
	ctx     context.Context
	opts    ReaderOptions
}

// emptyStructReader returns a reader over an all-zero struct with no data
// and no pointers -- the value used for a null struct pointer, or for a
// default PointerReader with no explicit default.
func emptyStructReader(ctx context.Context, opts ReaderOptions) StructReader {
	return StructReader{nestingLimit: opts.NestingLimit, ctx: ctx, opts: opts}
}

// DataBits and PointerCount expose the struct's declared size, used by
// total_size and by generated code checking upgrade compatibility.
func (s StructReader) DataBits() int    { return s.dataSizeBits }
func (s StructReader) PointerCount() int { return s.ptrCount }

func (s StructReader) dataBytes() []byte {
	if s.seg == nil {
		return nil
	}
	byteLen := wire.RoundBitsUpToBytes(s.dataSizeBits)
	return s.seg.buf[s.dataOff*8 : s.dataOff*8+byteLen]
}

// GetDataField returns the i-th field of type T in the data section (i is a
// field index, not a byte offset: byte offset is i*sizeof(T)). Out-of-range
// reads return the zero value, per §4.E.
func GetDataField[T wire.Number](s StructReader, i int) T {
	var width int
	switch any(*new(T)).(type) {
	case int8, uint8:
		width = 1
	case int16, uint16:
		width = 2
	case int32, uint32, float32:
		width = 4
	default:
		width = 8
	}
	byteOff := i * width
	if (byteOff+width)*8 > s.dataSizeBits*8 && (byteOff+width) > wire.RoundBitsUpToBytes(s.dataSizeBits) {
		var z T
		return z
	}
	b := s.dataBytes()
	if byteOff+width > len(b) {
		var z T
		return z
	}
	return wire.Get[T](b[byteOff:])
}

// GetDataFieldMasked XORs the stored value with mask, implementing default
// values without storing them on the wire: a field whose wire bytes are all
// zero decodes to mask.
func GetDataFieldMasked[T wire.Number](s StructReader, i int, mask T) T {
	return GetDataField[T](s, i) ^ mask
}

// GetBoolField reads the i-th bit of the data section.
func (s StructReader) GetBoolField(i int) bool {
	if i >= s.dataSizeBits {
		return false
	}
	return wire.GetBool(s.dataBytes(), uint32(i))
}

// GetBoolFieldMasked XORs the stored bit with a default.
func (s StructReader) GetBoolFieldMasked(i int, def bool) bool {
	return s.GetBoolField(i) != def
}

// GetPointerField returns a PointerReader over the i-th pointer, or a
// default (null) PointerReader if i is out of range.
func (s StructReader) GetPointerField(i int) PointerReader {
	if i >= s.ptrCount || s.seg == nil {
		return PointerReader{ctx: s.ctx, opts: s.opts, nestingLimit: s.nestingLimit}
	}
	return PointerReader{
		seg:          s.seg,
		off:          s.ptrOff + i,
		src:          s.src,
		limiter:      s.limiter,
		nestingLimit: s.nestingLimit,
		ctx:          s.ctx,
		opts:         s.opts,
	}
}

// TotalSize walks the struct's pointer graph and returns its total size.
func (s StructReader) TotalSize() (MessageSize, error) {
	if s.seg == nil {
		return MessageSize{}, nil
	}
	var total MessageSize
	byteLen := wire.RoundBitsUpToBytes(s.dataSizeBits)
	total.WordCount = uint64(wire.RoundBytesUpToWords(byteLen)) + uint64(s.ptrCount)
	for i := 0; i < s.ptrCount; i++ {
		sub, err := totalSize(s.ctx, s.src, s.seg, s.ptrOff+i, s.nestingLimit-1)
		if err != nil {
			return MessageSize{}, err
		}
		total.WordCount += sub.WordCount
		total.CapCount += sub.CapCount
	}
	return total, nil
}

// StructBuilder is a typed view over a struct's data and pointer sections
// with exclusive write access to the target words, per §3/§4.E.
type StructBuilder struct {
	seg          *Segment
	dataOff      int
	ptrOff       int
	size         schema.StructSize
	arena        *BuilderArena
	ctx          context.Context
}

func (s StructBuilder) dataBytes() []byte {
	return s.seg.buf[s.dataOff*8 : s.dataOff*8+int(s.size.DataWords)*8]
}

// SetDataField writes v at field index i. Writes past the struct's declared
// data size are impossible by construction: the builder only has as many
// data words as the pointer tag declared.
func SetDataField[T wire.Number](s StructBuilder, i int, v T) {
	var width int
	switch any(v).(type) {
	case int8, uint8:
		width = 1
	case int16, uint16:
		width = 2
	case int32, uint32, float32:
		width = 4
	default:
		width = 8
	}
	wire.Put(s.dataBytes()[i*width:], v)
}

// SetDataFieldMasked stores v^mask, so that an uninitialized (zero) wire
// word decodes back to the default via GetDataFieldMasked.
func SetDataFieldMasked[T wire.Number](s StructBuilder, i int, v, mask T) {
	SetDataField(s, i, v^mask)
}

// GetDataFieldFromBuilder mirrors the reader accessor for symmetry in generated code
// (read-modify-write without a separate reader view).
func GetDataFieldFromBuilder[T wire.Number](s StructBuilder, i int) T {
	var width int
	switch any(*new(T)).(type) {
	case int8, uint8:
		width = 1
	case int16, uint16:
		width = 2
	case int32, uint32, float32:
		width = 4
	default:
		width = 8
	}
	b := s.dataBytes()
	if i*width+width > len(b) {
		var z T
		return z
	}
	return wire.Get[T](b[i*width:])
}

func (s StructBuilder) SetBoolField(i int, v bool) {
	wire.PutBool(s.dataBytes(), uint32(i), v)
}

func (s StructBuilder) SetBoolFieldMasked(i int, v, def bool) {
	s.SetBoolField(i, v != def)
}

func (s StructBuilder) GetBoolField(i int) bool {
	return wire.GetBool(s.dataBytes(), uint32(i))
}

// GetPointerField returns a PointerBuilder over the i-th pointer. Panics if
// i is out of range: unlike the reader, a StructBuilder has exactly the
// pointer count its size declares and out-of-range access is a programming
// error, not adversarial input.
func (s StructBuilder) GetPointerField(i int) PointerBuilder {
	if i >= int(s.size.PointerCount) {
		panic("capnp: pointer field index out of range")
	}
	return PointerBuilder{seg: s.seg, off: s.ptrOff + i, arena: s.arena, ctx: s.ctx}
}

// AsReader produces a StructReader over the same memory, the way a builder
// message can be read back without copying (within the same process).
func (s StructBuilder) AsReader(src segmentSource, limiter *readLimiter, opts ReaderOptions) StructReader {
	return StructReader{
		seg:          s.seg,
		dataOff:      s.dataOff,
		ptrOff:       s.ptrOff,
		dataSizeBits: int(s.size.DataWords) * 64,
		ptrCount:     int(s.size.PointerCount),
		nestingLimit: opts.NestingLimit,
		src:          src,
		limiter:      limiter,
		ctx:          s.ctx,
		opts:         opts,
	}
}

// Clear zeroes every data word and every pointer (recursively) in the
// struct, leaving it equivalent to a freshly initialized struct of the same
// size.
func (s StructBuilder) Clear() error {
	clear(s.dataBytes())
	for i := 0; i < int(s.size.PointerCount); i++ {
		if err := zeroObject(s.ctx, s.arena, s.seg, s.ptrOff+i, defaultNestingLimit); err != nil {
			return err
		}
	}
	return nil
}
