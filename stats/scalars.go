package stats

import (
	"bytes"
	"cmp"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/scalar"
)

// Decode returns the value a dictionary scalar refers to. Other scalars are
// returned unchanged.
func Decode(s scalar.Scalar) (scalar.Scalar, error) {
	d, ok := s.(*scalar.Dictionary)
	if !ok {
		return s, nil
	}
	if !d.IsValid() || d.Value.Index == nil || !d.Value.Index.IsValid() {
		return scalar.MakeNullScalar(d.Value.Dict.DataType()), nil
	}
	k, err := keyOf(d.Value.Index)
	if err != nil || (k.kind != signedKey && k.kind != unsignedKey) {
		return nil, fmt.Errorf("unsupported dictionary index type %s", d.Value.Index.DataType())
	}
	idx := int(k.i)
	if k.kind == unsignedKey {
		idx = int(k.u)
	}
	if idx < 0 || idx >= d.Value.Dict.Len() {
		return nil, fmt.Errorf("dictionary index %d out of range for dictionary of length %d", idx, d.Value.Dict.Len())
	}
	return scalar.GetScalar(d.Value.Dict, idx)
}

type keyKind uint8

const (
	signedKey keyKind = iota
	unsignedKey
	floatKey
	bytesKey
)

type key struct {
	kind keyKind
	i    int64
	u    uint64
	f    float64
	b    []byte
}

func keyOf(s scalar.Scalar) (key, error) {
	switch v := s.(type) {
	case *scalar.Int8:
		return key{kind: signedKey, i: int64(v.Value)}, nil
	case *scalar.Int16:
		return key{kind: signedKey, i: int64(v.Value)}, nil
	case *scalar.Int32:
		return key{kind: signedKey, i: int64(v.Value)}, nil
	case *scalar.Int64:
		return key{kind: signedKey, i: v.Value}, nil
	case *scalar.Date32:
		return key{kind: signedKey, i: int64(v.Value)}, nil
	case *scalar.Date64:
		return key{kind: signedKey, i: int64(v.Value)}, nil
	case *scalar.Timestamp:
		return key{kind: signedKey, i: int64(v.Value)}, nil
	case *scalar.Time32:
		return key{kind: signedKey, i: int64(v.Value)}, nil
	case *scalar.Time64:
		return key{kind: signedKey, i: int64(v.Value)}, nil
	case *scalar.Uint8:
		return key{kind: unsignedKey, u: uint64(v.Value)}, nil
	case *scalar.Uint16:
		return key{kind: unsignedKey, u: uint64(v.Value)}, nil
	case *scalar.Uint32:
		return key{kind: unsignedKey, u: uint64(v.Value)}, nil
	case *scalar.Uint64:
		return key{kind: unsignedKey, u: v.Value}, nil
	case *scalar.Boolean:
		if v.Value {
			return key{kind: unsignedKey, u: 1}, nil
		}
		return key{kind: unsignedKey}, nil
	case *scalar.Float32:
		return key{kind: floatKey, f: float64(v.Value)}, nil
	case *scalar.Float64:
		return key{kind: floatKey, f: v.Value}, nil
	case *scalar.String:
		return key{kind: bytesKey, b: v.Data()}, nil
	case *scalar.LargeString:
		return key{kind: bytesKey, b: v.Data()}, nil
	case *scalar.Binary:
		return key{kind: bytesKey, b: v.Data()}, nil
	case *scalar.LargeBinary:
		return key{kind: bytesKey, b: v.Data()}, nil
	default:
		return key{}, fmt.Errorf("comparison not supported for type %s", s.DataType())
	}
}

// Compare orders two scalars of the same type, decoding dictionary scalars
// first. Nulls sort before every value.
func Compare(a, b scalar.Scalar) (int, error) {
	var err error
	if a, err = Decode(a); err != nil {
		return 0, err
	}
	if b, err = Decode(b); err != nil {
		return 0, err
	}
	if !arrow.TypeEqual(a.DataType(), b.DataType()) {
		return 0, fmt.Errorf("cannot compare values of type %s and %s", a.DataType(), b.DataType())
	}

	switch {
	case !a.IsValid() && !b.IsValid():
		return 0, nil
	case !a.IsValid():
		return -1, nil
	case !b.IsValid():
		return 1, nil
	}

	ka, err := keyOf(a)
	if err != nil {
		return 0, err
	}
	kb, err := keyOf(b)
	if err != nil {
		return 0, err
	}
	switch ka.kind {
	case signedKey:
		return cmp.Compare(ka.i, kb.i), nil
	case unsignedKey:
		return cmp.Compare(ka.u, kb.u), nil
	case floatKey:
		return cmp.Compare(ka.f, kb.f), nil
	default:
		return bytes.Compare(ka.b, kb.b), nil
	}
}
