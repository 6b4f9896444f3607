package pack

import (
	"bufio"
	"io"

	"github.com/bearlytools/capnp/internal/xerrors"
	"github.com/gostdlib/base/context"
)

// Writer packs bytes written to it and forwards the packed form to an
// underlying io.Writer. It carries at most a 7-byte partial word between
// Write calls; each call packs whatever complete words are available and
// flushes them immediately; a zero or verbatim run never spans across
// separate Write calls. Each call's complete words are packed in one piece,
// so the scratch buffer grows to the packed size of the largest single Write:
// buffering is bounded by the largest Write call, not by a fixed size.
type Writer struct {
	ctx    context.Context
	w      io.Writer
	carry  [7]byte
	carryN int
	scratch []byte
}

// NewWriter returns a Writer that packs data and writes it to w.
func NewWriter(ctx context.Context, w io.Writer) *Writer {
	return &Writer{ctx: ctx, w: w}
}

// Write packs p and forwards the packed bytes to the underlying writer. p
// need not be 8-byte aligned; any trailing partial word is carried forward
// to the next call. Call Close to flush and validate final alignment.
func (pw *Writer) Write(p []byte) (int, error) {
	total := len(p)
	buf := append(pw.carry[:pw.carryN], p...)
	whole := (len(buf) / 8) * 8
	pw.carryN = copy(pw.carry[:], buf[whole:])

	if whole > 0 {
		need := MaxPackedSize(whole)
		if cap(pw.scratch) < need {
			pw.scratch = make([]byte, need)
		}
		n, err := packInto(pw.ctx, pw.scratch[:need], buf[:whole])
		if err != nil {
			return 0, err
		}
		if _, err := pw.w.Write(pw.scratch[:n]); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Close flushes any buffered output. A non-empty carried partial word (the
// caller wrote a byte count that wasn't a multiple of 8 overall) is an
// error: the unpacked stream must be word-aligned.
func (pw *Writer) Close() error {
	if pw.carryN != 0 {
		return xerrors.E(pw.ctx, xerrors.CatUser, xerrors.TypeBug, xerrors.New("pack: Close with a non-word-aligned tail"))
	}
	return nil
}

// Reader decompresses a packed byte stream read from an underlying
// io.Reader, exposing the unpacked bytes through Read.
type Reader struct {
	ctx context.Context
	r   *bufio.Reader

	word    [8]byte
	wordN   int
	wordPos int

	zerosLeft int
	denseLeft int
}

// NewReader returns a Reader that unpacks data read from r.
func NewReader(ctx context.Context, r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{ctx: ctx, r: br}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if pr.wordPos < pr.wordN {
			c := copy(p[n:], pr.word[pr.wordPos:pr.wordN])
			n += c
			pr.wordPos += c
			continue
		}

		if pr.zerosLeft > 0 {
			pr.zerosLeft--
			pr.word = [8]byte{}
			pr.wordN, pr.wordPos = 8, 0
			continue
		}
		if pr.denseLeft > 0 {
			pr.denseLeft--
			if _, err := io.ReadFull(pr.r, pr.word[:]); err != nil {
				return n, errPrematureEnd(pr.ctx)
			}
			pr.wordN, pr.wordPos = 8, 0
			continue
		}

		tag, err := pr.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				if n > 0 {
					return n, nil
				}
				return n, io.EOF
			}
			return n, err
		}

		var lit [8]byte
		nb := bitCount(tag)
		if nb > 0 {
			if _, err := io.ReadFull(pr.r, lit[:nb]); err != nil {
				return n, errPrematureEnd(pr.ctx)
			}
		}
		li := 0
		for i := 0; i < 8; i++ {
			if tag&(1<<i) != 0 {
				pr.word[i] = lit[li]
				li++
			} else {
				pr.word[i] = 0
			}
		}
		pr.wordN, pr.wordPos = 8, 0

		switch tag {
		case 0x00:
			cnt, err := pr.r.ReadByte()
			if err != nil {
				return n, errPrematureEnd(pr.ctx)
			}
			pr.zerosLeft = int(cnt)
		case 0xFF:
			cnt, err := pr.r.ReadByte()
			if err != nil {
				return n, errPrematureEnd(pr.ctx)
			}
			pr.denseLeft = int(cnt)
		}
	}
	return n, nil
}
