// Package capnp implements a Cap'n Proto-style zero-copy wire format: an
// arena of word-aligned segments, tagged pointers between them (struct,
// list, far, and capability kinds), and reader/builder views over structs
// and lists addressed through those pointers. Messages are framed to a
// byte stream either directly (framing.go) or through the packed
// zero/dense-run codec in the pack subpackage (packed_framing.go).
package capnp

import (
	"sync/atomic"

	"github.com/bearlytools/capnp/capability"
	"github.com/bearlytools/capnp/internal/xerrors"
	"github.com/gostdlib/base/concurrency/sync"
	"github.com/gostdlib/base/context"
)

// Segment is a contiguous, word-aligned buffer holding part of a message.
// On the builder side it grows by bump-allocation up to its capacity; on the
// reader side it is an immutable view over bytes supplied at construction.
type Segment struct {
	id  uint32
	buf []byte // len == bytes written so far, cap == total capacity
}

// ID returns the segment's arena-local identifier.
func (s *Segment) ID() uint32 { return s.id }

// Data returns the bytes written to the segment so far.
func (s *Segment) Data() []byte { return s.buf }

// Len returns the number of bytes written.
func (s *Segment) Len() int { return len(s.buf) }

// remainingWords reports how many whole words of capacity remain unused.
func (s *Segment) remainingWords() int {
	return (cap(s.buf) - len(s.buf)) / 8
}

// allocate bump-allocates words*8 zeroed bytes at the end of the segment,
// returning the word offset of the new region and the region itself. ok is
// false if there isn't enough capacity.
func (s *Segment) allocate(words int) (offsetWords int, region []byte, ok bool) {
	need := words * 8
	if cap(s.buf)-len(s.buf) < need {
		return 0, nil, false
	}
	off := len(s.buf)
	s.buf = s.buf[:off+need]
	clear(s.buf[off : off+need])
	return off / 8, s.buf[off : off+need], true
}

const minSegmentWords = 8 // 64 bytes, matching the teacher's single-segment minimum

// Reset implements the Resetter interface sync.Pool uses to clear a Segment
// before handing it back out to a future builder arena.
func (s *Segment) Reset() {
	s.id = 0
	s.buf = s.buf[:0]
}

// segmentPool is the pool-per-arena-generation §4.J describes: Segment
// values are drawn from and returned to one process-wide pool rather than
// allocated and garbage-collected per message, the way the teacher's
// segment.DefaultPool pools *Struct values.
var segmentPool = sync.NewPool[*Segment](
	context.Background(),
	"capnp.segmentPool",
	func() *Segment { return &Segment{} },
)

// newSegment draws a Segment from segmentPool, growing its backing array
// only if the pooled value's capacity is too small for sizeWords.
func newSegment(ctx context.Context, id uint32, sizeWords int) *Segment {
	if sizeWords < minSegmentWords {
		sizeWords = minSegmentWords
	}
	seg := segmentPool.Get(ctx)
	need := sizeWords * 8
	if cap(seg.buf) < need {
		seg.buf = make([]byte, 0, need)
	} else {
		seg.buf = seg.buf[:0]
	}
	seg.id = id
	return seg
}

// releaseSegment returns seg to segmentPool for reuse by a future builder
// arena. seg must not be used afterward.
func releaseSegment(ctx context.Context, seg *Segment) {
	segmentPool.Put(ctx, seg)
}

// newReaderSegment wraps already-framed bytes as a read-only segment. data's
// length must already be a whole number of words.
func newReaderSegment(id uint32, data []byte) *Segment {
	return &Segment{id: id, buf: data}
}

// AllocationStrategy selects how the builder arena sizes new segments.
type AllocationStrategy uint8

const (
	// GrowHeuristically doubles the segment size on each new segment,
	// capped by maxSegmentWords. This is the default.
	GrowHeuristically AllocationStrategy = iota
	// FixedSize always allocates new segments at exactly
	// BuilderOptions.FirstSegmentWords, for embedded/FFI contexts where
	// messages fit in a single pre-sized buffer.
	FixedSize
)

// BuilderOptions configures a builder arena.
type BuilderOptions struct {
	// FirstSegmentWords sizes the first (and, under FixedSize, every)
	// segment. Defaults to 1024 if zero.
	FirstSegmentWords int
	// Strategy selects the growth policy for additional segments.
	Strategy AllocationStrategy
}

func (o BuilderOptions) withDefaults() BuilderOptions {
	if o.FirstSegmentWords <= 0 {
		o.FirstSegmentWords = 1024
	}
	return o
}

const maxSegmentWords = 1 << 28 // 256 Mi words (2 GiB); a generous heuristic cap, not a wire limit

// readLimiter is the traversal-limit counter from §4.B/§6: a monotonically
// decreasing "words remaining" budget decremented on each pointer
// traversal. It is shared (atomically) across readers cloned from the same
// message so concurrent readers each still enforce the same total budget,
// per §5's "either make it atomic or give each reader a cloned limiter"
// choice -- this implementation makes it atomic.
type readLimiter struct {
	remaining atomic.Int64
}

func newReadLimiter(words int64) *readLimiter {
	l := &readLimiter{}
	l.remaining.Store(words)
	return l
}

// take decrements the budget by words and reports whether the budget was
// sufficient. Once exhausted, it stays exhausted (the counter can go
// negative; only the boolean result matters to callers).
func (l *readLimiter) take(words int64) bool {
	if l == nil {
		return true
	}
	return l.remaining.Add(-words) >= 0
}

// ReaderArena is an ordered, read-only collection of segments.
type ReaderArena struct {
	segments []*Segment
	limiter  *readLimiter
	capTable *capability.Table
}

// NewReaderArena builds a ReaderArena over already-framed segment byte
// slices (each a whole number of words), applying the traversal limit from
// opts. capTable supplies the capability handles an embedding RPC layer
// attached to this message's "other"-kind pointers; pass nil for
// data-only messages, in which case any capability pointer resolves to
// UnknownCapability.
func NewReaderArena(segments [][]byte, opts ReaderOptions, capTable *capability.Table) *ReaderArena {
	opts = opts.withDefaults()
	if capTable == nil {
		capTable = &capability.Table{}
	}
	a := &ReaderArena{
		limiter:  newReadLimiter(int64(opts.TraversalLimitInWords)),
		capTable: capTable,
	}
	a.segments = make([]*Segment, len(segments))
	for i, data := range segments {
		a.segments[i] = newReaderSegment(uint32(i), data)
	}
	return a
}

// TryGetSegment returns the segment with the given id, or a SegmentIdOutOfRange
// (OutOfBounds) error.
func (a *ReaderArena) TryGetSegment(ctx context.Context, id uint32) (*Segment, error) {
	if int(id) >= len(a.segments) {
		return nil, xerrors.E(ctx, xerrors.CatUser, xerrors.TypeOutOfBounds, xerrors.New("capnp: segment id out of range"))
	}
	return a.segments[id], nil
}

// NumSegments reports the number of segments in the arena.
func (a *ReaderArena) NumSegments() int { return len(a.segments) }

// BuilderArena is an ordered, append-only sequence of segments with a bump
// allocator per segment and a "most recently used" hint, per §3/§4.B/§4.I.
type BuilderArena struct {
	segments   []*Segment
	mostRecent int
	opts       BuilderOptions
	capTable   capability.Table
}

// NewBuilderArena returns an empty builder arena; its first segment is
// created lazily on the first allocation.
func NewBuilderArena(opts BuilderOptions) *BuilderArena {
	return &BuilderArena{opts: opts.withDefaults(), mostRecent: -1}
}

func (a *BuilderArena) nextSegmentWords(requested int) int {
	if a.opts.Strategy == FixedSize {
		return a.opts.FirstSegmentWords
	}
	if len(a.segments) == 0 {
		return max(a.opts.FirstSegmentWords, requested+1)
	}
	prev := cap(a.segments[len(a.segments)-1].buf) / 8
	grown := prev * 2
	if grown > maxSegmentWords {
		grown = maxSegmentWords
	}
	return max(grown, requested+1)
}

// Allocate implements the three-step allocation strategy from §4.B: bump
// allocate in the most-recently-used segment, else scan the rest, else grow
// a new segment. The returned region is always pre-zeroed.
func (a *BuilderArena) Allocate(ctx context.Context, words int) (segID uint32, offsetWords int, region []byte, err error) {
	if a.mostRecent >= 0 {
		seg := a.segments[a.mostRecent]
		if off, r, ok := seg.allocate(words); ok {
			return seg.id, off, r, nil
		}
	}
	for i, seg := range a.segments {
		if i == a.mostRecent {
			continue
		}
		if off, r, ok := seg.allocate(words); ok {
			a.mostRecent = i
			return seg.id, off, r, nil
		}
	}

	size := a.nextSegmentWords(words)
	seg := newSegment(ctx, uint32(len(a.segments)), size)
	a.segments = append(a.segments, seg)
	a.mostRecent = len(a.segments) - 1

	off, r, ok := seg.allocate(words)
	if !ok {
		return 0, 0, nil, xerrors.E(ctx, xerrors.CatInternal, xerrors.TypeAllocationFailure, xerrors.New("capnp: could not grow arena to satisfy allocation"))
	}
	return seg.id, off, r, nil
}

// Segment returns the segment with the given id, or nil if out of range.
func (a *BuilderArena) Segment(id uint32) *Segment {
	if int(id) >= len(a.segments) {
		return nil
	}
	return a.segments[id]
}

// getSegment implements segmentSource for a builder arena: segment ids are
// always valid here (produced by this same arena's Allocate), but the error
// return lets builder- and reader-side pointer-following share one code
// path.
func (a *BuilderArena) getSegment(ctx context.Context, id uint32) (*Segment, error) {
	seg := a.Segment(id)
	if seg == nil {
		return nil, xerrors.E(ctx, xerrors.CatInternal, xerrors.TypeBug, xerrors.New("capnp: far pointer referenced a segment id this arena never allocated"))
	}
	return seg, nil
}

// getSegment implements segmentSource for a reader arena.
func (a *ReaderArena) getSegment(ctx context.Context, id uint32) (*Segment, error) {
	return a.TryGetSegment(ctx, id)
}

// segmentSource lets far-pointer resolution share one code path between a
// builder arena (segment ids always valid) and a reader arena (segment ids
// must be bounds-checked against adversarial input).
type segmentSource interface {
	getSegment(ctx context.Context, id uint32) (*Segment, error)
	capsTable() *capability.Table
}

// capsTable implements segmentSource's capability-table accessor for a
// reader arena.
func (a *ReaderArena) capsTable() *capability.Table { return a.capTable }

// capsTable implements segmentSource's capability-table accessor for a
// builder arena.
func (a *BuilderArena) capsTable() *capability.Table { return &a.capTable }

// NumSegments reports the number of segments allocated so far.
func (a *BuilderArena) NumSegments() int { return len(a.segments) }

// SegmentsData returns the raw bytes of every segment, in order -- the form
// Framing needs to write a message to a stream.
func (a *BuilderArena) SegmentsData() [][]byte {
	out := make([][]byte, len(a.segments))
	for i, s := range a.segments {
		out[i] = s.buf
	}
	return out
}

// CapTable returns the arena's capability table.
func (a *BuilderArena) CapTable() *capability.Table { return &a.capTable }

// Release returns every segment the arena holds to segmentPool and releases
// its capability table, per §4.J's pool-per-arena-generation design. The
// arena must not be used after Release; Message.Reset constructs a fresh
// one in its place.
func (a *BuilderArena) Release(ctx context.Context) {
	for _, seg := range a.segments {
		releaseSegment(ctx, seg)
	}
	a.segments = nil
	a.mostRecent = -1
	a.capTable.Release()
}
