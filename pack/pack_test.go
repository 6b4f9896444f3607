package pack

import (
	"bytes"
	"io"
	"testing"

	"github.com/gostdlib/base/context"
	"github.com/kylelemons/godebug/pretty"
)

func TestPackUnpack(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   []byte
		wantErr bool
	}{
		{
			name:  "Success: empty input",
			input: []byte{},
		},
		{
			name:  "Success: single zero word",
			input: make([]byte, 8),
		},
		{
			name:  "Success: single word with one non-zero byte",
			input: []byte{0x42, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name:  "Success: single word all non-zero",
			input: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		},
		{
			name:  "Success: multiple zero words",
			input: make([]byte, 64),
		},
		{
			name: "Success: mixed zeros and data",
			input: func() []byte {
				b := make([]byte, 80)
				b[0] = 0x42
				b[16] = 0xFF
				b[17] = 0xFF
				b[32] = 0x01
				return b
			}(),
		},
		{
			name: "Success: all 0xFF bytes (worst case)",
			input: func() []byte {
				b := make([]byte, 64)
				for i := range b {
					b[i] = 0xFF
				}
				return b
			}(),
		},
		{
			name:    "Error: input not 8-byte aligned",
			input:   []byte{0x01, 0x02, 0x03},
			wantErr: true,
		},
	}

	for _, test := range tests {
		ctx := t.Context()

		packed, err := Pack(ctx, test.input)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("[%s]: got err == nil, want err != nil", test.name)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("[%s]: got err == %s, want err == nil", test.name, err)
			continue
		case err != nil:
			continue
		}

		if packed == nil && len(test.input) == 0 {
			continue
		}
		defer packed.Release(ctx)

		unpacked, err := Unpack(ctx, packed.Bytes())
		if err != nil {
			t.Errorf("[%s]: Unpack failed: %s", test.name, err)
			continue
		}
		defer unpacked.Release(ctx)

		if diff := pretty.Compare(test.input, unpacked.Bytes()); diff != "" {
			t.Errorf("[%s]: roundtrip mismatch (-want +got):\n%s", test.name, diff)
		}
	}
}

func TestConcreteScenarioAllZeroBlock(t *testing.T) {
	ctx := context.Background()
	input := make([]byte, 16)

	packed, err := packInto(ctx, make([]byte, MaxPackedSize(len(input))), input)
	if err != nil {
		t.Fatalf("packInto: %s", err)
	}
	// scenario: pack 16 zero bytes -> tag 0x00, count 1 (one additional zero word)
	if packed != 2 {
		t.Fatalf("got packed len %d, want 2", packed)
	}
}

func TestConcreteScenarioDenseBlock(t *testing.T) {
	ctx := context.Background()
	input := []byte{1, 3, 2, 4, 5, 7, 6, 8}
	dst := make([]byte, MaxPackedSize(len(input)))

	n, err := packInto(ctx, dst, input)
	if err != nil {
		t.Fatalf("packInto: %s", err)
	}
	want := []byte{0xFF, 0x01, 0x03, 0x02, 0x04, 0x05, 0x07, 0x06, 0x08, 0x00}
	if diff := pretty.Compare(want, dst[:n]); diff != "" {
		t.Fatalf("dense block mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := [][]byte{
		make([]byte, 8),
		{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		make([]byte, 256),
		append(make([]byte, 64), []byte{1, 2, 3, 4, 5, 6, 7, 8}...),
	}

	for i, input := range inputs {
		ctx := context.Background()
		var packedBuf bytes.Buffer
		w := NewWriter(ctx, &packedBuf)
		if _, err := w.Write(input); err != nil {
			t.Fatalf("case %d: Write: %s", i, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("case %d: Close: %s", i, err)
		}

		r := NewReader(ctx, bytes.NewReader(packedBuf.Bytes()))
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("case %d: ReadAll: %s", i, err)
		}
		if diff := pretty.Compare(input, got); diff != "" {
			t.Fatalf("case %d: roundtrip mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestStreamReaderPrematureEnd(t *testing.T) {
	ctx := context.Background()
	// Tag claims one non-zero byte but the stream ends before supplying it.
	truncated := []byte{0x01}
	r := NewReader(ctx, bytes.NewReader(truncated))
	if _, err := io.ReadAll(r); err == nil {
		t.Fatal("got nil error, want PackedPrematureEnd")
	}
}
