package capnp

import (
	"testing"

	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

func TestGetStructWidensInPlace(t *testing.T) {
	ctx := context.Background()
	m := NewMessage(ctx, BuilderOptions{})
	sb, err := m.NewRootStruct(schema.StructSize{PointerCount: 1})
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}

	small := schema.StructSize{DataWords: 1, PointerCount: 1}
	inner, err := sb.GetPointerField(0).InitStruct(small)
	if err != nil {
		t.Fatalf("InitStruct: %s", err)
	}
	SetDataField[uint64](inner, 0, 0xAAAAAAAAAAAAAAAA)
	if err := inner.GetPointerField(0).SetText("kept"); err != nil {
		t.Fatalf("SetText: %s", err)
	}

	bigger := schema.StructSize{DataWords: 3, PointerCount: 2}
	widened, err := sb.GetPointerField(0).GetStruct(bigger)
	if err != nil {
		t.Fatalf("GetStruct: %s", err)
	}
	if got := GetDataFieldFromBuilder[uint64](widened, 0); got != 0xAAAAAAAAAAAAAAAA {
		t.Fatalf("old data field lost: got %#x", got)
	}
	gotText, err := widened.GetPointerField(0).GetText("")
	if err != nil {
		t.Fatalf("GetText: %s", err)
	}
	if gotText != "kept" {
		t.Fatalf("old pointer field lost: got %q, want %q", gotText, "kept")
	}

	// A second widening request that already fits must not discard the
	// extra fields the first widening added.
	again, err := sb.GetPointerField(0).GetStruct(small)
	if err != nil {
		t.Fatalf("GetStruct (re-request smaller size): %s", err)
	}
	if got := GetDataFieldFromBuilder[uint64](again, 2); got != 0 {
		t.Fatalf("unexpected data in newly widened field: %#x", got)
	}
	SetDataField[uint64](again, 2, 7)
	if got := GetDataFieldFromBuilder[uint64](widened, 2); got != 7 {
		t.Fatalf("re-requesting a smaller size truncated the builder's view: got %d, want 7", got)
	}
}
