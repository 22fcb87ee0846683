package blue

import (
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var testSchema = NewSchema("test", 40,
	At("name", 0, FixedBytes(6)),
	At("count", 6, Scalar(TypeInt16)),
	At("gain", 8, Scalar(TypeFloat64)),
	At("taps", 16, ArrayOf(Scalar(TypeInt32), 3)),
	At("pair", 28, Nested(NewSchema("pair", 8,
		At("lo", 0, Scalar(TypeUint16)),
		At("hi", 4, Scalar(TypeFloat32)),
	))),
)

func TestPackUnpackRoundTrip(t *testing.T) {
	t.Parallel()

	in := Values{
		"name":  "abc",
		"count": int16(-7),
		"gain":  2.25,
		"taps":  []int32{1, -2, 3},
		"pair":  Values{"lo": uint16(9), "hi": float32(0.5)},
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		b, err := Pack(testSchema, in, order)
		if err != nil {
			t.Fatalf("pack: %v", err)
		}
		if len(b) != testSchema.Size {
			t.Fatalf("packed %d bytes, want %d", len(b), testSchema.Size)
		}
		got, err := Unpack(b, testSchema, order, DefaultStringPolicy)
		if err != nil {
			t.Fatalf("unpack: %v", err)
		}
		if diff := cmp.Diff(in, got); diff != "" {
			t.Fatalf("%v round trip mismatch (-want +got):\n%s", order, diff)
		}
	}
}

func TestPackMissingFieldsAreBlank(t *testing.T) {
	t.Parallel()

	b, err := Pack(testSchema, Values{"count": 3}, binary.LittleEndian)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if got := string(b[:6]); got != "      " {
		t.Fatalf("missing string packed as %q, want spaces", got)
	}
	if got := binary.LittleEndian.Uint16(b[6:]); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
}

func TestUnpackShortBufferTruncatesSchema(t *testing.T) {
	t.Parallel()

	in := Values{
		"name":  "xy",
		"count": int16(1),
		"gain":  1.5,
		"taps":  []int32{4, 5, 6},
		"pair":  Values{"lo": uint16(2), "hi": float32(3)},
	}
	b, err := Pack(testSchema, in, binary.LittleEndian)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	tests := []struct {
		name string
		n    int
		want Values
	}{
		{"inside string", 4, Values{"name": "xy"}},
		{"partial scalar dropped", 12, Values{"name": "xy", "count": int16(1)}},
		{"partial array", 24, Values{"name": "xy", "count": int16(1), "gain": 1.5, "taps": []int32{4, 5}}},
		{"partial nested", 30, Values{
			"name": "xy", "count": int16(1), "gain": 1.5, "taps": []int32{4, 5, 6},
			"pair": Values{"lo": uint16(2)},
		}},
	}
	for _, tt := range tests {
		got, err := Unpack(b[:tt.n], testSchema, binary.LittleEndian, DefaultStringPolicy)
		if err != nil {
			t.Fatalf("%s: unpack: %v", tt.name, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("%s: mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestStringPolicy(t *testing.T) {
	t.Parallel()

	raw := []byte("ab \x00\x00 ")
	tests := []struct {
		policy StringPolicy
		want   string
	}{
		{DefaultStringPolicy, "ab"},
		{StringPolicy{}, "ab \x00\x00"},
		{StringPolicy{RawStrings: true}, "ab \x00\x00 "},
	}
	for _, tt := range tests {
		if got := tt.policy.trim(raw); got != tt.want {
			t.Fatalf("%+v: trim = %q, want %q", tt.policy, got, tt.want)
		}
	}
}

func TestSchemaLookupAndSequential(t *testing.T) {
	t.Parallel()

	s := Sequential("seq",
		At("a", 99, Scalar(TypeInt8)),
		At("b", 99, Scalar(TypeFloat64)),
		At("c", 99, FixedBytes(3)),
	)
	if s.Size != 12 {
		t.Fatalf("size = %d, want 12", s.Size)
	}
	f, ok := s.Lookup("C")
	if !ok || f.Offset != 9 {
		t.Fatalf("lookup C = %+v, %v; want offset 9", f, ok)
	}
	if _, ok := s.Lookup("missing"); ok {
		t.Fatal("lookup of missing field succeeded")
	}
}

func TestSwapBytesTwiceIsIdentity(t *testing.T) {
	t.Parallel()

	le, err := encodeSlice(TypeFloat64, []float64{1.5, -2, 3e100}, binary.LittleEndian)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	be, err := encodeSlice(TypeFloat64, []float64{1.5, -2, 3e100}, binary.BigEndian)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b := append([]byte(nil), le...)
	SwapBytes(b, 8)
	if diff := cmp.Diff(be, b); diff != "" {
		t.Fatalf("swapped bytes differ from big-endian encoding (-want +got):\n%s", diff)
	}
	SwapBytes(b, 8)
	if diff := cmp.Diff(le, b); diff != "" {
		t.Fatalf("double swap changed bytes (-want +got):\n%s", diff)
	}
}
