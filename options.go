package capnp

// ReaderOptions configures a message reader, per §6.
type ReaderOptions struct {
	// TraversalLimitInWords bounds the total words a single reader may
	// visit across its lifetime, guarding against amplification attacks
	// from a small serialized message that decodes to a huge object
	// graph. Zero means "use the default" (8 Mi words, i.e. 64 MiB); to disable
	// the limit entirely, set it to a very large number explicitly.
	TraversalLimitInWords uint64
	// NestingLimit bounds pointer-chasing recursion depth. Zero means
	// "use the default" (64).
	NestingLimit int32
	// FailFast selects the reader's error-recovery policy: true aborts
	// the read and surfaces the error to the caller on any invariant
	// violation; false recovers locally into the accessor's default
	// value and discards the error (nothing is logged). GetCapability
	// returns its errors under either setting. The documented default is true; because
	// a bool's zero value can't distinguish "unset" from "explicitly
	// false", a bare ReaderOptions{} is permissive (FailFast false) --
	// use DefaultReaderOptions() to get the documented default.
	FailFast bool
}

const (
	defaultTraversalLimitWords = 8 * 1024 * 1024 // 8 Mi words = 64 MiB
	defaultNestingLimit        = 64
)

// DefaultReaderOptions returns the options the spec's §6 defaults describe:
// a 64 MiB traversal budget, a nesting limit of 64, and fail_fast enabled.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{
		TraversalLimitInWords: defaultTraversalLimitWords,
		NestingLimit:          defaultNestingLimit,
		FailFast:              true,
	}
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.TraversalLimitInWords == 0 {
		o.TraversalLimitInWords = defaultTraversalLimitWords
	}
	if o.NestingLimit == 0 {
		o.NestingLimit = defaultNestingLimit
	}
	return o
}
