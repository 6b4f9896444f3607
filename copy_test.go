package capnp

import (
	"testing"

	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

func TestSetStructDeepCopiesAcrossMessages(t *testing.T) {
	ctx := context.Background()

	src := NewMessage(ctx, BuilderOptions{})
	srcRoot, err := src.NewRootStruct(schema.StructSize{DataWords: 1, PointerCount: 1})
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}
	SetDataField[uint64](srcRoot, 0, 0xFEEDFACE)
	if err := srcRoot.GetPointerField(0).SetText("owned by src"); err != nil {
		t.Fatalf("SetText: %s", err)
	}

	dst := NewMessage(ctx, BuilderOptions{})
	dstRoot, err := dst.NewRootStruct(schema.StructSize{PointerCount: 1})
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}
	srcReader := srcRoot.AsReader(src.Arena(), nil, DefaultReaderOptions())
	if err := dstRoot.GetPointerField(0).SetStruct(srcReader); err != nil {
		t.Fatalf("SetStruct: %s", err)
	}

	copied := dstRoot.GetPointerField(0)
	nested, err := copied.GetStruct(schema.StructSize{DataWords: 1, PointerCount: 1})
	if err != nil {
		t.Fatalf("GetStruct: %s", err)
	}
	if got := GetDataFieldFromBuilder[uint64](nested, 0); got != 0xFEEDFACE {
		t.Fatalf("copied data field: got %#x, want 0xFEEDFACE", got)
	}
	text, err := nested.GetPointerField(0).GetText("")
	if err != nil {
		t.Fatalf("GetText: %s", err)
	}
	if text != "owned by src" {
		t.Fatalf("copied text field: got %q, want %q", text, "owned by src")
	}

	// Mutating the copy must not affect the source message.
	SetDataField[uint64](nested, 0, 0)
	if got := GetDataField[uint64](srcRoot.AsReader(src.Arena(), nil, DefaultReaderOptions()), 0); got != 0xFEEDFACE {
		t.Fatalf("mutating the copy changed the source: got %#x", got)
	}
}
