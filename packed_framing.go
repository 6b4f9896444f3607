package capnp

import (
	"io"

	"github.com/bearlytools/capnp/pack"
	"github.com/gostdlib/base/context"
)

// WritePackedMessage writes m to w using the packed transport encoding from
// §4.H: the same segment-table-plus-segments byte stream WriteMessage
// produces, passed in order through a single pack.Writer. pack.Writer packs
// the complete words of each Write call on their own, so a zero or verbatim
// run does not continue from the header into the first segment or from one
// segment into the next; ReadPackedMessage decodes the output back to the
// bytes WriteMessage writes.
func WritePackedMessage(ctx context.Context, w io.Writer, m *Message) error {
	pw := pack.NewWriter(ctx, w)
	if err := WriteMessage(pw, m); err != nil {
		return err
	}
	return pw.Close()
}

// ReadPackedMessage reads one packed message from r, undoing
// WritePackedMessage's encoding before parsing the usual segment-table
// framing.
func ReadPackedMessage(ctx context.Context, r io.Reader) ([][]byte, error) {
	pr := pack.NewReader(ctx, r)
	return ReadMessage(ctx, pr)
}
