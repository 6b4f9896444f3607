package capnp

import (
	"encoding/binary"
	"io"

	"github.com/bearlytools/capnp/internal/xerrors"
	"github.com/gostdlib/base/context"
)

// WriteMessage writes m's segments to w in the standard stream framing from
// §4.G: a u32 holding (segment count - 1), one u32 per segment holding that
// segment's word count, a zero u32 of padding if the segment count is even
// (so the header always ends on a word boundary), and then the segments'
// bytes concatenated in order.
func WriteMessage(w io.Writer, m *Message) error {
	segs := m.arena.SegmentsData()
	var header [4]byte

	binary.LittleEndian.PutUint32(header[:], uint32(len(segs)-1))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	for _, s := range segs {
		binary.LittleEndian.PutUint32(header[:], uint32(len(s)/8))
		if _, err := w.Write(header[:]); err != nil {
			return err
		}
	}
	if len(segs)%2 == 0 {
		var pad [4]byte
		if _, err := w.Write(pad[:]); err != nil {
			return err
		}
	}
	for _, s := range segs {
		if _, err := w.Write(s); err != nil {
			return err
		}
	}
	return nil
}

// maxSegmentCount bounds how many segments ReadMessage will believe the
// header before it, guarding against a header claiming billions of
// segments from a tiny input.
const maxSegmentCount = 1 << 20

// ReadMessage reads one message from r in the framing WriteMessage
// produces. It rejects a header claiming more than maxSegmentCount
// segments; it takes no ReaderOptions and does not bound the segments' word
// counts, so each segment is allocated at the size its header entry
// declares.
func ReadMessage(ctx context.Context, r io.Reader) ([][]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, wrapFramingErr(ctx, err)
	}
	segCount := binary.LittleEndian.Uint32(header[:]) + 1
	if segCount == 0 || segCount > maxSegmentCount {
		return nil, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeOutOfBounds, xerrors.New("capnp: implausible segment count in message header"))
	}

	wordCounts := make([]uint32, segCount)
	for i := range wordCounts {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, wrapFramingErr(ctx, err)
		}
		wordCounts[i] = binary.LittleEndian.Uint32(header[:])
	}
	if segCount%2 == 0 {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, wrapFramingErr(ctx, err)
		}
	}

	segments := make([][]byte, segCount)
	for i, words := range wordCounts {
		buf := make([]byte, int(words)*8)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, wrapFramingErr(ctx, err)
		}
		segments[i] = buf
	}
	return segments, nil
}

func wrapFramingErr(ctx context.Context, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return xerrors.E(ctx, xerrors.CatUser, xerrors.TypeOutOfBounds, xerrors.New("capnp: truncated message stream"))
	}
	return err
}
