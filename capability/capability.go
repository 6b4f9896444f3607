// Package capability holds the narrow client-hook surface the wire engine
// needs so that an "other"-kind pointer has somewhere to resolve to. The
// session multiplexing, call/return/finish/release framing, and transport
// that would turn a ClientHook into a working RPC system are out of scope
// here; this package only stores and retrieves hooks by cap-table index, the
// way the core is described as using them in the RPC layer it does not
// implement.
package capability

import "context"

// Call is the parameters and result sink for a single capability method
// invocation. A real RPC layer would carry promise-pipelining results; here
// it's just enough shape for ClientHook.Call to have a signature.
type Call struct {
	InterfaceID uint64
	MethodID    uint16
	Params      []byte
	Results     chan<- []byte
}

// ClientHook is the narrow capability set a client or server implements.
// The core only stores and retrieves these by cap-table index; it never
// calls Call itself.
type ClientHook interface {
	// Call dispatches a method call against this capability.
	Call(ctx context.Context, call Call) error
	// Copy returns a new reference to the same underlying capability,
	// incrementing any internal reference count.
	Copy() ClientHook
	// GetDescriptor returns an implementation-defined descriptor used to
	// address this capability across a connection (e.g. for promise
	// pipelining); nil if the capability is purely local.
	GetDescriptor() any
	// Close releases the reference this hook holds, decrementing any
	// internal reference count (and tearing down the capability once it
	// reaches zero). Called once per Table entry when that entry is
	// dropped -- never implicitly by Copy or Add.
	Close() error
}

// Table is a process-local, per-message vector mapping capability-pointer
// indices to client hooks. The wire format never transmits a capability's
// bytes: an "other"-kind pointer is just an index into this table.
//
// Table is not safe for concurrent mutation; a builder message is assumed to
// have a single writer, matching the rest of the arena's ownership model.
type Table struct {
	hooks []ClientHook
}

// Add interns hook and returns its table index, reusing hook.Copy() so the
// table owns an independent reference.
func (t *Table) Add(hook ClientHook) uint32 {
	idx := uint32(len(t.hooks))
	t.hooks = append(t.hooks, hook.Copy())
	return idx
}

// At returns the hook at idx, or (nil, false) if idx is out of range or its
// entry has already been Dropped -- the UnknownCapability case the wire
// engine must surface as an error rather than a panic.
func (t *Table) At(idx uint32) (ClientHook, bool) {
	if int(idx) >= len(t.hooks) || t.hooks[idx] == nil {
		return nil, false
	}
	return t.hooks[idx], true
}

// Len reports the number of entries currently interned.
func (t *Table) Len() int {
	return len(t.hooks)
}

// Drop releases the hook at idx and clears the slot, per Zero-object's
// capability case: "release the cap-table entry, then zero the pointer."
// The slot is nilled rather than removed so idx stays stable for any other
// pointer that still (incorrectly) refers to it -- a later At(idx) then
// reports not-found instead of resolving to a capability whose reference
// was already released. Dropping an already-empty or out-of-range idx is a
// no-op.
func (t *Table) Drop(idx uint32) error {
	if int(idx) >= len(t.hooks) || t.hooks[idx] == nil {
		return nil
	}
	err := t.hooks[idx].Close()
	t.hooks[idx] = nil
	return err
}

// Release drops every reference held by the table. Dropping a message's
// table releases any remaining handles, per the capability ownership model:
// a reader extracting a capability receives a reference-counted handle, and
// releasing the table is what lets the last of those go.
func (t *Table) Release() {
	for i, h := range t.hooks {
		if h != nil {
			h.Close()
		}
		t.hooks[i] = nil
	}
	t.hooks = nil
}
