// Package pack implements the Cap'n Proto packed transport codec: a
// streaming byte compressor that elides zero bytes word by word over an
// already-framed message stream (see the root package's Message framing).
//
// Each 8-byte word of the unpacked stream is reduced to a tag byte followed
// by only its non-zero bytes; an all-zero word collapses to a tag plus a
// run-length of additional zero words, and a run of words with at most one
// zero byte each collapses to a tag plus a run-length of verbatim words.
package pack

import (
	"github.com/bearlytools/capnp/internal/xerrors"
	"github.com/gostdlib/base/context"
)

// computeTag returns a tag byte where bit i is set iff byte i of word is
// non-zero.
func computeTag(word uint64) byte {
	var tag byte
	for i := 0; i < 8; i++ {
		if (word>>(i*8))&0xFF != 0 {
			tag |= 1 << i
		}
	}
	return tag
}

// packWord writes the non-zero bytes of word into dst per tag, returning the
// count written.
func packWord(dst []byte, word uint64, tag byte) int {
	n := 0
	for i := 0; i < 8; i++ {
		if tag&(1<<i) != 0 {
			dst[n] = byte(word >> (i * 8))
			n++
		}
	}
	return n
}

// unpackWord reconstructs an 8-byte word from the packed non-zero bytes in
// src per tag, returning the count of src bytes consumed. dst must be
// exactly 8 bytes.
func unpackWord(dst, src []byte, tag byte) int {
	si := 0
	for i := 0; i < 8; i++ {
		if tag&(1<<i) != 0 {
			dst[i] = src[si]
			si++
		} else {
			dst[i] = 0
		}
	}
	return si
}

func countZerosInWord(word uint64) int {
	n := 0
	for i := 0; i < 8; i++ {
		if (word>>(i*8))&0xFF == 0 {
			n++
		}
	}
	return n
}

// MaxPackedSize returns an upper bound on the packed size of unpackedLen
// bytes of input, suitable for sizing a destination buffer before calling
// packInto.
func MaxPackedSize(unpackedLen int) int {
	if unpackedLen == 0 {
		return 0
	}
	words := unpackedLen / 8
	return unpackedLen + words + (words+255)/256
}

func errPrematureEnd(ctx context.Context) error {
	return xerrors.E(ctx, xerrors.CatUser, xerrors.TypePackedPrematureEnd, xerrors.New("pack: input ended mid-word"))
}

func errUnalignedEnd(ctx context.Context) error {
	return xerrors.E(ctx, xerrors.CatUser, xerrors.TypePackedUnalignedEnd, xerrors.New("pack: verbatim run would exceed output buffer"))
}

// packInto packs src (len(src) a multiple of 8) into dst, which must be at
// least MaxPackedSize(len(src)) bytes, returning the number of bytes
// written.
func packInto(ctx context.Context, dst, src []byte) (int, error) {
	if len(src)%8 != 0 {
		return 0, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeBug, xerrors.New("pack: input length must be a multiple of 8"))
	}
	w, r, srcLen := 0, 0, len(src)

	for r < srcLen {
		word := leUint64(src[r:])
		tag := computeTag(word)
		dst[w] = tag
		w++
		w += packWord(dst[w:], word, tag)
		r += 8

		switch tag {
		case 0x00:
			count := byte(0)
			for r < srcLen && count < 255 {
				if leUint64(src[r:]) != 0 {
					break
				}
				count++
				r += 8
			}
			dst[w] = count
			w++
		case 0xFF:
			countPos := w
			w++
			count := byte(0)
			for r < srcLen && count < 255 {
				next := leUint64(src[r:])
				if countZerosInWord(next) >= 2 {
					break
				}
				putLeUint64(dst[w:], next)
				w += 8
				r += 8
				count++
			}
			dst[countPos] = count
		}
	}
	return w, nil
}

// unpackInto unpacks src into dst (a pre-sized destination, e.g. a segment
// buffer whose length is already known from the message's segment table),
// returning the number of bytes written. Fails with PackedPrematureEnd if
// src runs out mid-word and PackedUnalignedEnd if a run would overflow dst.
func unpackInto(ctx context.Context, dst, src []byte) (int, error) {
	w, r := 0, 0
	srcLen, dstLen := len(src), len(dst)

	for r < srcLen {
		if w+8 > dstLen {
			return 0, errUnalignedEnd(ctx)
		}
		tag := src[r]
		r++
		if r+bitCount(tag) > srcLen {
			return 0, errPrematureEnd(ctx)
		}
		r += unpackWord(dst[w:w+8], src[r:], tag)
		w += 8

		switch tag {
		case 0x00:
			if r >= srcLen {
				return 0, errPrematureEnd(ctx)
			}
			count := int(src[r])
			r++
			n := count * 8
			if w+n > dstLen {
				return 0, errUnalignedEnd(ctx)
			}
			clear(dst[w : w+n])
			w += n
		case 0xFF:
			if r >= srcLen {
				return 0, errPrematureEnd(ctx)
			}
			count := int(src[r])
			r++
			n := count * 8
			if r+n > srcLen {
				return 0, errPrematureEnd(ctx)
			}
			if w+n > dstLen {
				return 0, errUnalignedEnd(ctx)
			}
			copy(dst[w:], src[r:r+n])
			r += n
			w += n
		}
	}
	return w, nil
}

func bitCount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

func leUint64(b []byte) uint64 {
	_ = b[7]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

func putLeUint64(b []byte, v uint64) {
	_ = b[7]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}
