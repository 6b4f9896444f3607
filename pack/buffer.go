package pack

import (
	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"

	"github.com/bearlytools/capnp/internal/xerrors"
)

// HeaderSize is the size of the one-shot Pack/Unpack convenience header
// (unpacked size + packed size, both u64 LE). This header is a convenience
// of this package's Buffer API, not part of the wire format in §4.G/4.H:
// callers using the streaming Reader/Writer directly don't pay for it.
const HeaderSize = 16

// Buffer wraps a pooled byte slice produced by Pack or Unpack. Call Release
// when done with it.
type Buffer struct {
	data []byte
}

// Bytes returns the underlying byte slice.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the length of the buffer.
func (b *Buffer) Len() int { return len(b.data) }

// Release returns the buffer to the pool. The buffer must not be used
// afterward.
func (b *Buffer) Release(ctx context.Context) {
	if b == nil {
		return
	}
	bufferPool.Put(ctx, b)
}

// Reset implements the Resetter interface expected by sync.Pool.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
}

var bufferPool = sync.NewPool[*Buffer](
	context.Background(),
	"pack.bufferPool",
	func() *Buffer {
		return &Buffer{data: make([]byte, 0, 4096)}
	},
)

// Pack compresses src (len(src) a multiple of 8) into a pooled buffer
// carrying the HeaderSize convenience header. Release the result when done.
func Pack(ctx context.Context, src []byte) (*Buffer, error) {
	srcLen := len(src)
	if srcLen%8 != 0 {
		return nil, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeBug, xerrors.New("pack: input size must be divisible by 8"))
	}
	if srcLen == 0 {
		return nil, nil
	}

	buf := bufferPool.Get(ctx)
	needed := HeaderSize + MaxPackedSize(srcLen)
	if cap(buf.data) < needed {
		buf.data = make([]byte, needed)
	} else {
		buf.data = buf.data[:needed]
	}

	packedLen, err := packInto(ctx, buf.data[HeaderSize:], src)
	if err != nil {
		buf.Release(ctx)
		return nil, err
	}

	putLeUint64(buf.data[0:8], uint64(srcLen))
	putLeUint64(buf.data[8:16], uint64(packedLen))
	buf.data = buf.data[:HeaderSize+packedLen]

	return buf, nil
}

// Unpack decompresses data previously produced by Pack into a pooled
// buffer. Release the result when done.
func Unpack(ctx context.Context, packed []byte) (*Buffer, error) {
	if len(packed) < HeaderSize {
		return nil, xerrors.E(ctx, xerrors.CatUser, xerrors.TypePackedPrematureEnd, xerrors.New("pack: data too short for header"))
	}

	unpackedSize := int(leUint64(packed[0:8]))
	packedSize := int(leUint64(packed[8:16]))

	if len(packed) < HeaderSize+packedSize {
		return nil, xerrors.E(ctx, xerrors.CatUser, xerrors.TypePackedPrematureEnd, xerrors.New("pack: data shorter than declared packed size"))
	}
	if unpackedSize%8 != 0 {
		return nil, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeBug, xerrors.New("pack: invalid unpacked size (not 8-byte aligned)"))
	}

	buf := bufferPool.Get(ctx)
	if cap(buf.data) < unpackedSize {
		buf.data = make([]byte, unpackedSize)
	} else {
		buf.data = buf.data[:unpackedSize]
	}

	n, err := unpackInto(ctx, buf.data, packed[HeaderSize:HeaderSize+packedSize])
	if err != nil {
		buf.Release(ctx)
		return nil, err
	}
	if n != unpackedSize {
		buf.Release(ctx)
		return nil, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeBug, xerrors.New("pack: unpacked size mismatch"))
	}

	return buf, nil
}

// UnpackedSize returns the unpacked size recorded in a Pack header, or 0 if
// packed is too short to contain one.
func UnpackedSize(packed []byte) int {
	if len(packed) < HeaderSize {
		return 0
	}
	return int(leUint64(packed[0:8]))
}

// PackedSize returns the packed payload size recorded in a Pack header
// (excluding the header itself), or 0 if packed is too short.
func PackedSize(packed []byte) int {
	if len(packed) < HeaderSize {
		return 0
	}
	return int(leUint64(packed[8:16]))
}

// CompressionRatio returns len(packed)/UnpackedSize(packed), or 0 if the
// unpacked size is 0.
func CompressionRatio(packed []byte) float64 {
	unpacked := UnpackedSize(packed)
	if unpacked == 0 {
		return 0
	}
	return float64(len(packed)) / float64(unpacked)
}
