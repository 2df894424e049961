package hap

import (
	"bytes"
	"testing"
)

func TestDecodeEncodeUint16(t *testing.T) {
	data := []byte{0x34, 0x12} // little-endian 0x1234
	val, err := DecodeValue(FormatUint16, data)
	if err != nil {
		t.Fatal(err)
	}
	if val.(uint16) != 0x1234 {
		t.Errorf("got %v, want 0x1234", val)
	}

	encoded, err := EncodeValue(FormatUint16, uint16(0x1234))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(encoded, data) {
		t.Errorf("encoded %X, want %X", encoded, data)
	}
}

func TestDecodeEncodeBool(t *testing.T) {
	val, err := DecodeValue(FormatBool, []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	if val.(bool) != true {
		t.Error("expected true")
	}

	encoded, err := EncodeValue(FormatBool, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(encoded, []byte{0x01}) {
		t.Errorf("encoded %X, want 01", encoded)
	}
}

func TestDecodeInt(t *testing.T) {
	// -100 = 0xFFFFFF9C
	val, err := DecodeValue(FormatInt, []byte{0x9C, 0xFF, 0xFF, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if val.(int32) != -100 {
		t.Errorf("got %v, want -100", val)
	}
}

func TestEncodeFloat(t *testing.T) {
	encoded, err := EncodeValue(FormatFloat, 21.5)
	if err != nil {
		t.Fatal(err)
	}
	val, err := DecodeValue(FormatFloat, encoded)
	if err != nil {
		t.Fatal(err)
	}
	if val.(float32) != 21.5 {
		t.Errorf("got %v, want 21.5", val)
	}
}

func TestDecodeShortData(t *testing.T) {
	if _, err := DecodeValue(FormatUint32, []byte{0x01, 0x02}); err == nil {
		t.Error("expected error for short uint32")
	}
}

func TestEncodeOutOfRange(t *testing.T) {
	tests := []struct {
		format Format
		val    any
	}{
		{FormatUint8, 256},
		{FormatUint16, -1},
		{FormatInt, int64(1) << 40},
		{FormatString, 42},
		{FormatData, "text"},
		{FormatUint8, 1.7},
		{FormatUint64, 1e30},
		{FormatUint32, -0.5},
		{FormatInt, 2.9},
		{FormatInt, 3e9},
		{FormatBool, 2},
		{FormatFloat, 1e300},
	}
	for _, tt := range tests {
		if _, err := EncodeValue(tt.format, tt.val); err == nil {
			t.Errorf("EncodeValue(%s, %v): expected error", tt.format, tt.val)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		format Format
		val    any
		want   any
	}{
		{FormatUint8, float64(200), uint8(200)},
		{FormatUint16, 7, uint16(7)},
		{FormatUint64, float64(1 << 53), uint64(1 << 53)},
		{FormatInt, float64(-12), int32(-12)},
		{FormatInt, uint8(3), int32(3)},
		{FormatFloat, 21.5, float32(21.5)},
		{FormatFloat, 19, float32(19)},
		{FormatBool, float64(1), true},
		{FormatBool, 0, false},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.format, tt.val)
		if err != nil {
			t.Errorf("Normalize(%s, %v): %v", tt.format, tt.val, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%s, %v) = %v (%T), want %v (%T)", tt.format, tt.val, got, got, tt.want, tt.want)
		}
	}
}

func TestNormalizeMatchesDecode(t *testing.T) {
	for _, f := range []Format{FormatUint8, FormatUint16, FormatUint32, FormatUint64, FormatInt, FormatFloat} {
		v, err := Normalize(f, float64(42))
		if err != nil {
			t.Fatalf("Normalize(%s): %v", f, err)
		}
		raw, err := EncodeValue(f, v)
		if err != nil {
			t.Fatal(err)
		}
		back, err := DecodeValue(f, raw)
		if err != nil {
			t.Fatal(err)
		}
		if back != v {
			t.Errorf("%s: decoded %v (%T), normalized %v (%T)", f, back, back, v, v)
		}
	}
}

func TestFormatOpaque(t *testing.T) {
	for _, f := range []Format{FormatData, FormatTLV8} {
		if !f.Opaque() {
			t.Errorf("%s should be opaque", f)
		}
	}
	for _, f := range []Format{FormatBool, FormatFloat, FormatString} {
		if f.Opaque() {
			t.Errorf("%s should not be opaque", f)
		}
	}
}
