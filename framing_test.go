package capnp

import (
	"bytes"
	"testing"

	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

func buildSampleMessage(t *testing.T, ctx context.Context, opts BuilderOptions) *Message {
	t.Helper()
	m := NewMessage(ctx, opts)
	sb, err := m.NewRootStruct(schema.StructSize{DataWords: 1, PointerCount: 1})
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}
	SetDataField[uint32](sb, 0, 42)
	if err := sb.GetPointerField(0).SetText("round trip"); err != nil {
		t.Fatalf("SetText: %s", err)
	}
	return m
}

func checkSampleMessage(t *testing.T, ctx context.Context, segments [][]byte) {
	t.Helper()
	rm := NewReaderMessage(ctx, segments, DefaultReaderOptions(), nil)
	root, err := rm.RootStruct()
	if err != nil {
		t.Fatalf("RootStruct: %s", err)
	}
	if got := GetDataField[uint32](root, 0); got != 42 {
		t.Fatalf("data field: got %d, want 42", got)
	}
	text, err := root.GetPointerField(0).GetText("")
	if err != nil {
		t.Fatalf("GetText: %s", err)
	}
	if text != "round trip" {
		t.Fatalf("text field: got %q, want %q", text, "round trip")
	}
}

func TestWriteReadMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := buildSampleMessage(t, ctx, BuilderOptions{})

	var buf bytes.Buffer
	if err := WriteMessage(&buf, m); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}

	segments, err := ReadMessage(ctx, &buf)
	if err != nil {
		t.Fatalf("ReadMessage: %s", err)
	}
	checkSampleMessage(t, ctx, segments)
}

func TestWriteReadPackedMessageRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := buildSampleMessage(t, ctx, BuilderOptions{FirstSegmentWords: 1})

	var buf bytes.Buffer
	if err := WritePackedMessage(ctx, &buf, m); err != nil {
		t.Fatalf("WritePackedMessage: %s", err)
	}

	segments, err := ReadPackedMessage(ctx, &buf)
	if err != nil {
		t.Fatalf("ReadPackedMessage: %s", err)
	}
	checkSampleMessage(t, ctx, segments)
}

func TestReadMessageTruncatedStream(t *testing.T) {
	ctx := context.Background()
	m := buildSampleMessage(t, ctx, BuilderOptions{})

	var buf bytes.Buffer
	if err := WriteMessage(&buf, m); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-4])
	if _, err := ReadMessage(ctx, truncated); err == nil {
		t.Fatalf("ReadMessage: got nil error on truncated stream, want error")
	}
}
