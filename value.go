package litedb

import (
	"encoding/binary"
	"math"
)

// Kind identifies which variant of DatabaseValue is populated.
type Kind int

const (
	// KindNull is SQLite's NULL storage class.
	KindNull Kind = iota
	// KindInt64 is SQLite's INTEGER storage class.
	KindInt64
	// KindDouble is SQLite's REAL storage class.
	KindDouble
	// KindText is SQLite's TEXT storage class.
	KindText
	// KindBlob is SQLite's BLOB storage class.
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt64:
		return "int64"
	case KindDouble:
		return "double"
	case KindText:
		return "text"
	case KindBlob:
		return "blob"
	default:
		return "unknown"
	}
}

// DatabaseValue is a tagged value mirroring one of SQLite's five storage
// classes. The zero value is null.
type DatabaseValue struct {
	kind Kind
	i    int64
	f    float64
	s    string
	b    []byte
}

// Null is the null DatabaseValue.
var Null = DatabaseValue{kind: KindNull}

// NewInt64 builds an integer DatabaseValue.
func NewInt64(v int64) DatabaseValue { return DatabaseValue{kind: KindInt64, i: v} }

// NewDouble builds a real DatabaseValue.
func NewDouble(v float64) DatabaseValue { return DatabaseValue{kind: KindDouble, f: v} }

// NewText builds a text DatabaseValue.
func NewText(v string) DatabaseValue { return DatabaseValue{kind: KindText, s: v} }

// NewBlob builds a blob DatabaseValue. The slice is retained, not copied.
func NewBlob(v []byte) DatabaseValue { return DatabaseValue{kind: KindBlob, b: v} }

// NewBool encodes a boolean as SQLite does: integer 0 or 1.
func NewBool(v bool) DatabaseValue {
	if v {
		return NewInt64(1)
	}
	return NewInt64(0)
}

// FromAny builds a DatabaseValue from a Go value of one of the supported
// scalar kinds, or Null for nil. It panics for unsupported types; so do
// NewArguments, NewNamedArguments and query.Lit, which convert their
// values through it.
func FromAny(v interface{}) DatabaseValue {
	switch x := v.(type) {
	case nil:
		return Null
	case DatabaseValue:
		return x
	case bool:
		return NewBool(x)
	case int:
		return NewInt64(int64(x))
	case int8:
		return NewInt64(int64(x))
	case int16:
		return NewInt64(int64(x))
	case int32:
		return NewInt64(int64(x))
	case int64:
		return NewInt64(x)
	case uint:
		return NewInt64(int64(x))
	case uint8:
		return NewInt64(int64(x))
	case uint16:
		return NewInt64(int64(x))
	case uint32:
		return NewInt64(int64(x))
	case float32:
		return NewDouble(float64(x))
	case float64:
		return NewDouble(x)
	case string:
		return NewText(x)
	case []byte:
		return NewBlob(x)
	default:
		panic("litedb: unsupported value type in FromAny")
	}
}

// Kind reports which storage class v holds.
func (v DatabaseValue) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v DatabaseValue) IsNull() bool { return v.kind == KindNull }

// Interface returns the Go value held by v: nil, int64, float64, string,
// or []byte.
func (v DatabaseValue) Interface() interface{} {
	switch v.kind {
	case KindInt64:
		return v.i
	case KindDouble:
		return v.f
	case KindText:
		return v.s
	case KindBlob:
		return v.b
	default:
		return nil
	}
}

// The as* helpers implement the fallible conversion matrix described in
// spec §4.1. ok is false whenever the source/target pair is not in the
// matrix or v is null.
func (v DatabaseValue) asInt64() (int64, bool) {
	switch v.kind {
	case KindInt64:
		return v.i, true
	case KindDouble:
		return int64(v.f), true
	default:
		return 0, false
	}
}

func (v DatabaseValue) asDouble() (float64, bool) {
	switch v.kind {
	case KindInt64:
		return float64(v.i), true
	case KindDouble:
		return v.f, true
	default:
		return 0, false
	}
}

func (v DatabaseValue) asBool() (bool, bool) {
	switch v.kind {
	case KindInt64:
		return v.i != 0, true
	case KindDouble:
		return v.f != 0, true
	default:
		return false, false
	}
}

func (v DatabaseValue) asText() (string, bool) {
	if v.kind == KindText {
		return v.s, true
	}
	return "", false
}

func (v DatabaseValue) asBlob() ([]byte, bool) {
	if v.kind == KindBlob {
		return v.b, true
	}
	return nil, false
}

// Int64 returns v as an int64, failing (ConversionError) if v is null or
// not int64/double. The column name is used only for the error message.
func (v DatabaseValue) Int64(column string) (int64, error) {
	if v.IsNull() {
		return 0, &ConversionError{Column: column, From: "null", To: "int64"}
	}
	if i, ok := v.asInt64(); ok {
		return i, nil
	}
	return 0, &ConversionError{Column: column, From: v.kind.String(), To: "int64"}
}

// Double returns v as a float64, failing if v is null or not
// int64/double.
func (v DatabaseValue) Double(column string) (float64, error) {
	if v.IsNull() {
		return 0, &ConversionError{Column: column, From: "null", To: "double"}
	}
	if f, ok := v.asDouble(); ok {
		return f, nil
	}
	return 0, &ConversionError{Column: column, From: v.kind.String(), To: "double"}
}

// Bool returns v as a bool, failing if v is null or not int64/double.
func (v DatabaseValue) Bool(column string) (bool, error) {
	if v.IsNull() {
		return false, &ConversionError{Column: column, From: "null", To: "bool"}
	}
	if b, ok := v.asBool(); ok {
		return b, nil
	}
	return false, &ConversionError{Column: column, From: v.kind.String(), To: "bool"}
}

// Text returns v as a string, failing if v is null or not text.
func (v DatabaseValue) Text(column string) (string, error) {
	if v.IsNull() {
		return "", &ConversionError{Column: column, From: "null", To: "text"}
	}
	if s, ok := v.asText(); ok {
		return s, nil
	}
	return "", &ConversionError{Column: column, From: v.kind.String(), To: "text"}
}

// Blob returns v as a []byte, failing if v is null or not blob.
func (v DatabaseValue) Blob(column string) ([]byte, error) {
	if v.IsNull() {
		return nil, &ConversionError{Column: column, From: "null", To: "blob"}
	}
	if b, ok := v.asBlob(); ok {
		return b, nil
	}
	return nil, &ConversionError{Column: column, From: v.kind.String(), To: "blob"}
}

// Int64OrNil returns v as *int64, nil if v is null, and false if v is
// present but of an incompatible kind — the "fallible" variant from
// spec §4.1.
func (v DatabaseValue) Int64OrNil() (*int64, bool) {
	if v.IsNull() {
		return nil, true
	}
	if i, ok := v.asInt64(); ok {
		return &i, true
	}
	return nil, false
}

// DoubleOrNil is the fallible counterpart to Double.
func (v DatabaseValue) DoubleOrNil() (*float64, bool) {
	if v.IsNull() {
		return nil, true
	}
	if f, ok := v.asDouble(); ok {
		return &f, true
	}
	return nil, false
}

// TextOrNil is the fallible counterpart to Text.
func (v DatabaseValue) TextOrNil() (*string, bool) {
	if v.IsNull() {
		return nil, true
	}
	if s, ok := v.asText(); ok {
		return &s, true
	}
	return nil, false
}

// BlobOrNil is the fallible counterpart to Blob.
func (v DatabaseValue) BlobOrNil() ([]byte, bool) {
	if v.IsNull() {
		return nil, true
	}
	if b, ok := v.asBlob(); ok {
		return b, true
	}
	return nil, false
}

// Equal implements the equality rule from spec §3: null≡null; int64 and
// double compare equal iff the double round-trips to int64 exactly and
// numerically; otherwise same-variant value equality; distinct variants
// (besides the int/float bridge) are unequal.
func (v DatabaseValue) Equal(other DatabaseValue) bool {
	if v.kind == other.kind {
		switch v.kind {
		case KindNull:
			return true
		case KindInt64:
			return v.i == other.i
		case KindDouble:
			return v.f == other.f
		case KindText:
			return v.s == other.s
		case KindBlob:
			return string(v.b) == string(other.b)
		}
	}
	// int64/double bridge, symmetric.
	a, b := v, other
	if a.kind == KindDouble && b.kind == KindInt64 {
		a, b = b, a
	}
	if a.kind == KindInt64 && b.kind == KindDouble {
		if math.Trunc(b.f) != b.f {
			return false
		}
		asInt := int64(b.f)
		return float64(asInt) == b.f && asInt == a.i
	}
	return false
}

// Hash returns a hash consistent with Equal: values that are Equal
// produce the same hash.
func (v DatabaseValue) Hash() uint64 {
	// Normalize the int/double bridge onto a shared representation so
	// that Equal values hash identically.
	switch v.kind {
	case KindNull:
		return 0
	case KindInt64:
		return hashInt64(v.i)
	case KindDouble:
		if math.Trunc(v.f) == v.f {
			asInt := int64(v.f)
			if float64(asInt) == v.f {
				return hashInt64(asInt)
			}
		}
		bits := math.Float64bits(v.f)
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, bits)
		return hashBytes(buf)
	case KindText:
		return hashString(v.s)
	case KindBlob:
		return hashBytes(v.b)
	default:
		return 0
	}
}

func hashInt64(i int64) uint64 {
	u := uint64(i)
	u ^= u >> 33
	u *= 0xff51afd7ed558ccd
	u ^= u >> 33
	return u
}

func hashString(s string) uint64 { return hashBytes([]byte(s)) }

func hashBytes(b []byte) uint64 {
	// FNV-1a
	var h uint64 = 14695981039346656037
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}
