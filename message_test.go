package capnp

import (
	"bytes"
	"testing"

	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
	"github.com/kylelemons/godebug/pretty"
)

func TestConcreteScenarioEmptyStruct(t *testing.T) {
	ctx := context.Background()
	m := NewMessage(ctx, BuilderOptions{})
	if _, err := m.NewRootStruct(schema.StructSize{}); err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}

	var buf bytes.Buffer
	if err := WriteMessage(&buf, m); err != nil {
		t.Fatalf("WriteMessage: %s", err)
	}

	want := []byte{
		0, 0, 0, 0, // segment count - 1
		1, 0, 0, 0, // segment 0: 1 word
		0xFC, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, // empty-struct convention pointer
	}
	if diff := pretty.Compare(want, buf.Bytes()); diff != "" {
		t.Fatalf("encoded bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestConcreteScenarioScalarRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMessage(ctx, BuilderOptions{})
	sb, err := m.NewRootStruct(schema.StructSize{DataWords: 1})
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}
	SetDataField[uint32](sb, 0, 0xDEADBEEF)

	body := m.Arena().Segment(0).Data()[8:16]
	want := []byte{0xEF, 0xBE, 0xAD, 0xDE, 0, 0, 0, 0}
	if diff := pretty.Compare(want, body); diff != "" {
		t.Fatalf("struct data word mismatch (-want +got):\n%s", diff)
	}

	got := GetDataFieldFromBuilder[uint32](sb, 0)
	if got != 0xDEADBEEF {
		t.Fatalf("got %#x, want 0xDEADBEEF", got)
	}
}

func TestConcreteScenarioTextField(t *testing.T) {
	ctx := context.Background()
	m := NewMessage(ctx, BuilderOptions{})
	sb, err := m.NewRootStruct(schema.StructSize{PointerCount: 1})
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}
	if err := sb.GetPointerField(0).SetText("hi"); err != nil {
		t.Fatalf("SetText: %s", err)
	}

	seg := m.Arena().Segment(0)
	listWord := readRawPointer(seg.Data()[8:16])
	if listWord.kind() != KindList {
		t.Fatalf("got kind %s, want list", listWord.kind())
	}
	esize, count := decodeListRef(listWord.upper)
	if esize != schema.SizeByte || count != 3 {
		t.Fatalf("got element_size=%s count=%d, want byte/3", esize, count)
	}

	body := seg.Data()[16:24]
	want := []byte{'h', 'i', 0, 0, 0, 0, 0, 0}
	if diff := pretty.Compare(want, body); diff != "" {
		t.Fatalf("text body mismatch (-want +got):\n%s", diff)
	}

	rm := NewReaderMessage(ctx, [][]byte{seg.Data()}, DefaultReaderOptions(), nil)
	root, err := rm.RootStruct()
	if err != nil {
		t.Fatalf("RootStruct: %s", err)
	}
	text, err := root.GetPointerField(0).GetText("")
	if err != nil {
		t.Fatalf("GetText: %s", err)
	}
	if text != "hi" {
		t.Fatalf("got %q, want %q", text, "hi")
	}
}

func TestConcreteScenarioFarPointerRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMessage(ctx, BuilderOptions{FirstSegmentWords: 1})
	size := schema.StructSize{DataWords: 10, PointerCount: 1}
	sb, err := m.NewRootStruct(size)
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}
	SetDataField[uint64](sb, 0, 0x0102030405060708)

	if m.Arena().NumSegments() < 2 {
		t.Fatalf("got %d segments, want >= 2 (expected the struct to outgrow segment 0)", m.Arena().NumSegments())
	}

	root := readRawPointer(m.Arena().Segment(0).Data()[0:8])
	if root.kind() != KindFar {
		t.Fatalf("got root kind %s, want far", root.kind())
	}
	if farSegmentID(root) != 1 {
		t.Fatalf("got far target segment %d, want 1", farSegmentID(root))
	}

	rm := NewReaderMessage(ctx, m.Arena().SegmentsData(), DefaultReaderOptions(), nil)
	rootStruct, err := rm.RootStruct()
	if err != nil {
		t.Fatalf("RootStruct: %s", err)
	}
	got := GetDataField[uint64](rootStruct, 0)
	if got != 0x0102030405060708 {
		t.Fatalf("got %#x, want 0x0102030405060708", got)
	}
}
