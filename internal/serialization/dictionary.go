// Package serialization converts composite graphs to and from a
// schema-free dictionary form encoded with msgpack. The format is
// versioned; older versions remain readable through dedicated legacy
// decoders.
package serialization

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/weft-ml/weft/internal/tensor"
)

// Dict is the schema-free container every model artifact round-trips
// through. Values are limited to msgpack-representable types: bools,
// integers, floats, strings, byte slices, []any, and nested Dicts.
type Dict map[string]any

// EncodeDict renders d as msgpack bytes.
func EncodeDict(d Dict) ([]byte, error) {
	data, err := msgpack.Marshal(map[string]any(d))
	if err != nil {
		return nil, fmt.Errorf("serialization: encode dictionary: %w", err)
	}
	return data, nil
}

// DecodeDict parses msgpack bytes into a Dict.
func DecodeDict(data []byte) (Dict, error) {
	var d map[string]any
	if err := msgpack.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("serialization: decode dictionary: %w", err)
	}
	return Dict(d), nil
}

// The as* helpers coerce decoded msgpack values. msgpack widens or
// narrows numerics depending on the wire size, so integer fields may
// come back as any of the int/uint widths.

func asDict(v any) (Dict, bool) {
	switch m := v.(type) {
	case Dict:
		return m, true
	case map[string]any:
		return Dict(m), true
	default:
		return nil, false
	}
}

func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBytes(v any) ([]byte, bool) {
	b, ok := v.([]byte)
	return b, ok
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		if i, ok := asInt(v); ok {
			return float64(i), true
		}
		return 0, false
	}
}

func asShape(v any) (tensor.Shape, bool) {
	s, ok := asSlice(v)
	if !ok {
		return nil, false
	}
	shape := make(tensor.Shape, len(s))
	for i, dim := range s {
		n, ok := asInt(dim)
		if !ok {
			return nil, false
		}
		shape[i] = int(n)
	}
	return shape, true
}

func shapeToAny(s tensor.Shape) []any {
	out := make([]any, len(s))
	for i, d := range s {
		out[i] = int64(d)
	}
	return out
}
