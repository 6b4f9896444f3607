package capnp

import (
	"testing"

	"github.com/bearlytools/capnp/schema"
	"github.com/gostdlib/base/context"
)

func TestListPrimitiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMessage(ctx, BuilderOptions{})
	sb, err := m.NewRootStruct(schema.StructSize{PointerCount: 1})
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}

	lb, err := sb.GetPointerField(0).InitList(schema.SizeTwoBytes, 4)
	if err != nil {
		t.Fatalf("InitList: %s", err)
	}
	want := []uint16{10, 20, 30, 40}
	for i, v := range want {
		SetListElement(lb, i, v)
	}

	rm := NewReaderMessage(ctx, m.Arena().SegmentsData(), DefaultReaderOptions(), nil)
	root, err := rm.RootStruct()
	if err != nil {
		t.Fatalf("RootStruct: %s", err)
	}
	lr, err := root.GetPointerField(0).GetList(schema.SizeTwoBytes, ListReader{})
	if err != nil {
		t.Fatalf("GetList: %s", err)
	}
	if lr.Len() != len(want) {
		t.Fatalf("got len %d, want %d", lr.Len(), len(want))
	}
	for i, w := range want {
		if got := GetListElement[uint16](lr, i); got != w {
			t.Fatalf("element %d: got %d, want %d", i, got, w)
		}
	}
}

func TestListElementSizeMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewMessage(ctx, BuilderOptions{})
	sb, err := m.NewRootStruct(schema.StructSize{PointerCount: 1})
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}
	if _, err := sb.GetPointerField(0).InitList(schema.SizeTwoBytes, 3); err != nil {
		t.Fatalf("InitList: %s", err)
	}

	rm := NewReaderMessage(ctx, m.Arena().SegmentsData(), DefaultReaderOptions(), nil)
	root, err := rm.RootStruct()
	if err != nil {
		t.Fatalf("RootStruct: %s", err)
	}
	if _, err := root.GetPointerField(0).GetList(schema.SizeFourBytes, ListReader{}); err == nil {
		t.Fatalf("GetList: got nil error, want element size mismatch")
	}
}

func TestStructListRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMessage(ctx, BuilderOptions{})
	sb, err := m.NewRootStruct(schema.StructSize{PointerCount: 1})
	if err != nil {
		t.Fatalf("NewRootStruct: %s", err)
	}

	elemSize := schema.StructSize{DataWords: 1, PointerCount: 1}
	lb, err := sb.GetPointerField(0).InitStructList(elemSize, 2)
	if err != nil {
		t.Fatalf("InitStructList: %s", err)
	}
	for i := 0; i < 2; i++ {
		el := lb.GetStructElement(i)
		SetDataField[uint64](el, 0, uint64(100+i))
		if err := el.GetPointerField(0).SetText("elem"); err != nil {
			t.Fatalf("SetText: %s", err)
		}
	}

	rm := NewReaderMessage(ctx, m.Arena().SegmentsData(), DefaultReaderOptions(), nil)
	root, err := rm.RootStruct()
	if err != nil {
		t.Fatalf("RootStruct: %s", err)
	}
	lr, err := root.GetPointerField(0).GetList(schema.SizeInlineComposite, ListReader{})
	if err != nil {
		t.Fatalf("GetList: %s", err)
	}
	if lr.Len() != 2 {
		t.Fatalf("got len %d, want 2", lr.Len())
	}
	for i := 0; i < 2; i++ {
		el := lr.GetStructElement(i)
		if got := GetDataField[uint64](el, 0); got != uint64(100+i) {
			t.Fatalf("element %d data: got %d, want %d", i, got, 100+i)
		}
		text, err := el.GetPointerField(0).GetText("")
		if err != nil {
			t.Fatalf("GetText: %s", err)
		}
		if text != "elem" {
			t.Fatalf("element %d text: got %q, want %q", i, text, "elem")
		}
	}
}
