package capnp

import (
	"github.com/bearlytools/capnp/capability"
	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

// Message is a builder-side message under construction: a BuilderArena plus
// the bookkeeping needed to find and replace its root pointer, per §3's
// description of a message as "one arena, one root struct."
type Message struct {
	ctx   context.Context
	arena *BuilderArena
}

// NewMessage allocates a fresh, empty builder message.
func NewMessage(ctx context.Context, opts BuilderOptions) *Message {
	return &Message{ctx: ctx, arena: NewBuilderArena(opts)}
}

// Arena returns the message's underlying builder arena, for callers that
// need to serialize it (see framing.go).
func (m *Message) Arena() *BuilderArena { return m.arena }

// rootPointerSlot returns a PointerBuilder over the reserved root pointer
// word at segment 0, word 0, allocating that first word (and segment) if
// this is the first access.
func (m *Message) rootPointerSlot() (PointerBuilder, error) {
	if m.arena.NumSegments() == 0 {
		if _, _, _, err := m.arena.Allocate(m.ctx, 1); err != nil {
			return PointerBuilder{}, err
		}
	}
	return PointerBuilder{seg: m.arena.Segment(0), off: 0, arena: m.arena, ctx: m.ctx}, nil
}

// NewRootStruct discards any existing root and initializes a fresh struct
// of the given size as the message's root.
func (m *Message) NewRootStruct(size schema.StructSize) (StructBuilder, error) {
	root, err := m.rootPointerSlot()
	if err != nil {
		return StructBuilder{}, err
	}
	return root.InitStruct(size)
}

// RootStruct returns the message's existing root, widening it to size if
// needed (see PointerBuilder.GetStruct), creating it if the message has no
// root yet.
func (m *Message) RootStruct(size schema.StructSize) (StructBuilder, error) {
	root, err := m.rootPointerSlot()
	if err != nil {
		return StructBuilder{}, err
	}
	return root.GetStruct(size)
}

// CapTable returns the message's capability table, for attaching client
// hooks to "other"-kind pointers written into this message.
func (m *Message) CapTable() *capability.Table { return m.arena.CapTable() }

// Reset releases the message's current arena -- returning its segments to
// the shared segment pool and its capability table's hooks to their owners,
// per §4.J -- and replaces it with a fresh, empty arena using the same
// BuilderOptions, so the *Message can be reused to build the next message
// without allocating a new arena. The message has no root until the next
// NewRootStruct/RootStruct call.
func (m *Message) Reset(ctx context.Context) {
	opts := m.arena.opts
	m.arena.Release(ctx)
	m.arena = NewBuilderArena(opts)
}

// ReaderMessage is a fully decoded, read-only message: a ReaderArena plus
// the options under which it is being read.
type ReaderMessage struct {
	ctx   context.Context
	arena *ReaderArena
	opts  ReaderOptions
}

// NewReaderMessage wraps already-framed segments (see framing.go) as a
// read-only message.
func NewReaderMessage(ctx context.Context, segments [][]byte, opts ReaderOptions, capTable *capability.Table) *ReaderMessage {
	opts = opts.withDefaults()
	return &ReaderMessage{ctx: ctx, arena: NewReaderArena(segments, opts, capTable), opts: opts}
}

// RootStruct returns the message's root, per §3's "segment 0, word 0 is
// always the root pointer" convention, with a fresh nesting-limit budget.
func (m *ReaderMessage) RootStruct() (StructReader, error) {
	seg, err := m.arena.TryGetSegment(m.ctx, 0)
	if err != nil {
		return StructReader{}, err
	}
	root := PointerReader{
		seg: seg, off: 0, src: m.arena, limiter: m.arena.limiter,
		nestingLimit: m.opts.NestingLimit, ctx: m.ctx, opts: m.opts,
	}
	return root.GetStruct(emptyStructReader(m.ctx, m.opts))
}

// NumSegments reports the number of segments the message was framed with.
func (m *ReaderMessage) NumSegments() int { return m.arena.NumSegments() }
