// Package xerrors provides the error type used across the wire-format engine.
// It wraps github.com/gostdlib/base/errors so the rest of the module never has
// to import the stdlib errors package or gostdlib directly.
package xerrors

import (
	"github.com/gostdlib/base/context"
	"github.com/gostdlib/base/errors"
)

//go:generate stringer -type=Category -linecomment

// Category represents the category of the error.
type Category uint32

func (c Category) Category() string {
	return c.String()
}

const (
	// CatUnknown represents an unknown category. This should not be used.
	CatUnknown Category = Category(0) // Unknown
	// CatUser represents an error caused by bad input to the engine (malformed
	// wire data, a caller-supplied option out of range).
	CatUser Category = Category(1) // User
	// CatInternal represents an invariant violated inside the engine itself.
	CatInternal Category = Category(2) // Internal
)

//go:generate stringer -type=Type -linecomment

// Type represents the specific kind of error. These mirror the abstract error
// kinds in the wire-format contract: every reader/builder failure is one of
// these, never a bespoke sentinel.
type Type uint16

func (t Type) Type() string {
	return t.String()
}

const (
	TypeUnknown Type = Type(0) // Unknown

	// TypeOutOfBounds means a pointer target crosses its segment's end.
	TypeOutOfBounds Type = Type(1) // OutOfBounds
	// TypeKindMismatch means a struct was requested but a list (or vice
	// versa) was found, or similar kind confusion.
	TypeKindMismatch Type = Type(2) // KindMismatch
	// TypeElementSizeMismatch means a list's element size is incompatible
	// with the requested element kind.
	TypeElementSizeMismatch Type = Type(3) // ElementSizeMismatch
	// TypeNestingLimitExceeded means the recursion budget for pointer
	// chasing was exhausted.
	TypeNestingLimitExceeded Type = Type(4) // NestingLimitExceeded
	// TypeTraversalLimitExceeded means the total-words read budget for a
	// message was exhausted.
	TypeTraversalLimitExceeded Type = Type(5) // TraversalLimitExceeded
	// TypeInvalidPointer means a pointer's encoding is malformed, e.g. an
	// inline-composite tag that isn't itself a struct pointer.
	TypeInvalidPointer Type = Type(6) // InvalidPointer
	// TypeInvalidUtf8 means a text element failed UTF-8 validation.
	TypeInvalidUtf8 Type = Type(7) // InvalidUtf8
	// TypeMissingNulTerminator means a text list did not end in a zero byte.
	TypeMissingNulTerminator Type = Type(8) // MissingNulTerminator
	// TypeUnknownCapability means a capability pointer referred to an
	// out-of-range capability-table index.
	TypeUnknownCapability Type = Type(9) // UnknownCapability
	// TypePackedPrematureEnd means the packed codec ran out of input
	// mid-word.
	TypePackedPrematureEnd Type = Type(10) // PackedPrematureEnd
	// TypePackedUnalignedEnd means a verbatim run in the packed codec
	// would cross the output buffer boundary.
	TypePackedUnalignedEnd Type = Type(11) // PackedUnalignedEnd
	// TypeAllocationFailure means the builder arena could not grow to
	// satisfy an allocation.
	TypeAllocationFailure Type = Type(12) // AllocationFailure
	// TypeBug represents an invariant violated by this package's own code,
	// not by caller input.
	TypeBug Type = Type(13) // Bug
)

// LogAttrer is an interface that can be implemented by an error to return a
// list of attributes used in logging.
type LogAttrer = errors.LogAttrer

// Error is the error type returned by every fallible operation in this
// module. It carries a Category and a Type rather than being one of a zoo
// of sentinel error values.
type Error = errors.Error

// EOption is an optional argument for E().
type EOption = errors.EOption

// WithSuppressTraceErr will prevent the trace from being recorded with an
// error status. The trace still receives the error message.
func WithSuppressTraceErr() EOption {
	return errors.WithSuppressTraceErr()
}

// WithCallNum is used if you need to set the runtime.CallNum() in order to
// get the correct filename and line for a wrapper around E().
func WithCallNum(i int) EOption {
	return errors.WithCallNum(i)
}

// WithStackTrace adds a stack trace to the error. Reserved for the rarer
// internal-bug paths; reader failures under fail_fast=false should not pay
// for a trace.
func WithStackTrace() EOption {
	return errors.WithStackTrace()
}

// E creates a new Error with the given category, type and message.
func E(ctx context.Context, c Category, t Type, msg error, options ...EOption) Error {
	opts := make([]EOption, 0, len(options)+1)
	opts = append(opts, WithCallNum(2))
	opts = append(opts, options...)

	return errors.E(ctx, errors.Category(c), errors.Type(t), msg, opts...)
}
