package wire

import "unsafe"

// BytesToString converts b to a string without copying. The caller must not
// mutate b after this call; text accessors only use this on a segment's
// already-immutable backing array when serving a read-only view.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// StringToBytes returns the bytes backing s without copying. The caller must
// treat the result as read-only: strings are immutable and the runtime may
// share the backing array across copies of s.
func StringToBytes(s string) []byte {
	if s == "" {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
