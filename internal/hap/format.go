package hap

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format is the declared value format of a characteristic.
type Format string

const (
	FormatBool   Format = "bool"
	FormatUint8  Format = "uint8"
	FormatUint16 Format = "uint16"
	FormatUint32 Format = "uint32"
	FormatUint64 Format = "uint64"
	FormatInt    Format = "int"
	FormatFloat  Format = "float"
	FormatString Format = "string"
	FormatTLV8   Format = "tlv8"
	FormatData   Format = "data"
)

// Opaque reports whether values of this format need format-specific decoding
// (raw blobs and TLV structures) rather than a scalar codec.
func (f Format) Opaque() bool {
	return f == FormatData || f == FormatTLV8
}

// FormatFromGATT maps a Bluetooth presentation-format code to a HAP format.
func FormatFromGATT(code uint8) (Format, error) {
	switch code {
	case 0x01:
		return FormatBool, nil
	case 0x04:
		return FormatUint8, nil
	case 0x06:
		return FormatUint16, nil
	case 0x08:
		return FormatUint32, nil
	case 0x0A:
		return FormatUint64, nil
	case 0x10:
		return FormatInt, nil
	case 0x14:
		return FormatFloat, nil
	case 0x19:
		return FormatString, nil
	case 0x1B:
		return FormatData, nil
	}
	return "", fmt.Errorf("hap: unknown presentation format 0x%02X", code)
}

// DecodeValue decodes a little-endian HAP-BLE value of the given format.
func DecodeValue(f Format, data []byte) (any, error) {
	need := func(n int) error {
		if len(data) < n {
			return fmt.Errorf("hap: not enough data for %s: need %d, have %d", f, n, len(data))
		}
		return nil
	}

	switch f {
	case FormatBool:
		if err := need(1); err != nil {
			return nil, err
		}
		return data[0] != 0, nil
	case FormatUint8:
		if err := need(1); err != nil {
			return nil, err
		}
		return data[0], nil
	case FormatUint16:
		if err := need(2); err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint16(data), nil
	case FormatUint32:
		if err := need(4); err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint32(data), nil
	case FormatUint64:
		if err := need(8); err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint64(data), nil
	case FormatInt:
		if err := need(4); err != nil {
			return nil, err
		}
		return int32(binary.LittleEndian.Uint32(data)), nil
	case FormatFloat:
		if err := need(4); err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
	case FormatString:
		return string(data), nil
	case FormatTLV8, FormatData:
		b := make([]byte, len(data))
		copy(b, data)
		return b, nil
	}
	return nil, fmt.Errorf("hap: decode not implemented for format %q", f)
}

// Normalize converts val to the Go type DecodeValue returns for f: bool,
// uint8, uint16, uint32, uint64, int32, float32, string or []byte. Numbers
// the format cannot hold exactly are rejected rather than truncated.
func Normalize(f Format, val any) (any, error) {
	switch f {
	case FormatBool:
		v, ok := toBool(val)
		if !ok {
			return nil, fmt.Errorf("hap: cannot convert %v (%T) to bool", val, val)
		}
		return v, nil

	case FormatUint8, FormatUint16, FormatUint32, FormatUint64:
		v, ok := toUint64(val)
		if !ok || v > maxUnsigned(f) {
			return nil, fmt.Errorf("hap: cannot convert %v (%T) to %s", val, val, f)
		}
		switch f {
		case FormatUint8:
			return uint8(v), nil
		case FormatUint16:
			return uint16(v), nil
		case FormatUint32:
			return uint32(v), nil
		}
		return v, nil

	case FormatInt:
		v, ok := toInt64(val)
		if !ok || v < math.MinInt32 || v > math.MaxInt32 {
			return nil, fmt.Errorf("hap: cannot convert %v (%T) to int32", val, val)
		}
		return int32(v), nil

	case FormatFloat:
		v, ok := toFloat64(val)
		if !ok {
			return nil, fmt.Errorf("hap: cannot convert %v (%T) to float", val, val)
		}
		if !math.IsInf(v, 0) && math.IsInf(float64(float32(v)), 0) {
			return nil, fmt.Errorf("hap: %v overflows float32", v)
		}
		return float32(v), nil

	case FormatString:
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("hap: cannot convert %T to string", val)
		}
		return s, nil

	case FormatTLV8, FormatData:
		b, ok := val.([]byte)
		if !ok {
			return nil, fmt.Errorf("hap: cannot convert %T to []byte", val)
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
	return nil, fmt.Errorf("hap: encode not implemented for format %q", f)
}

// EncodeValue encodes a Go value into the little-endian HAP-BLE representation.
func EncodeValue(f Format, val any) ([]byte, error) {
	v, err := Normalize(f, val)
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case bool:
		if n {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case uint8:
		return []byte{n}, nil
	case uint16:
		return binary.LittleEndian.AppendUint16(nil, n), nil
	case uint32:
		return binary.LittleEndian.AppendUint32(nil, n), nil
	case uint64:
		return binary.LittleEndian.AppendUint64(nil, n), nil
	case int32:
		return binary.LittleEndian.AppendUint32(nil, uint32(n)), nil
	case float32:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(n)), nil
	case string:
		return []byte(n), nil
	case []byte:
		return n, nil
	}
	return nil, fmt.Errorf("hap: encode not implemented for format %q", f)
}

func maxUnsigned(f Format) uint64 {
	switch f {
	case FormatUint8:
		return math.MaxUint8
	case FormatUint16:
		return math.MaxUint16
	case FormatUint32:
		return math.MaxUint32
	}
	return math.MaxUint64
}

// integral reports whether f is a finite whole number.
func integral(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case float64:
		if val != 0 && val != 1 {
			return false, false
		}
		return val == 1, true
	}
	n, ok := toInt64(v)
	if !ok || (n != 0 && n != 1) {
		return false, false
	}
	return n == 1, true
}

func toUint64(v any) (uint64, bool) {
	switch val := v.(type) {
	case uint:
		return uint64(val), true
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	case float32:
		return floatToUint64(float64(val))
	case float64:
		return floatToUint64(val)
	}
	n, ok := toInt64(v)
	if !ok || n < 0 {
		return 0, false
	}
	return uint64(n), true
}

func floatToUint64(f float64) (uint64, bool) {
	// 2^64 is the first float64 past MaxUint64.
	if !integral(f) || f < 0 || f >= 1<<64 {
		return 0, false
	}
	return uint64(f), true
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		if val > math.MaxInt64 {
			return 0, false
		}
		return int64(val), true
	case float32:
		return floatToInt64(float64(val))
	case float64:
		return floatToInt64(val)
	}
	return 0, false
}

func floatToInt64(f float64) (int64, bool) {
	if !integral(f) || f < math.MinInt64 || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case uint64:
		return float64(val), true
	}
	n, ok := toInt64(v)
	if !ok {
		return 0, false
	}
	return float64(n), true
}
