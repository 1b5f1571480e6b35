package cache

import (
	"strconv"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	gstr "github.com/savsgio/gotils/strconv"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindText Kind = iota
	KindBinary
	KindInt
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(val string) (Kind, error) {
	switch val {
	case "text", "string", "str":
		return KindText, nil
	case "binary", "bytes":
		return KindBinary, nil
	case "int", "integer":
		return KindInt, nil
	case "float":
		return KindFloat, nil
	}
	return 0, errors.Newf("unknown value kind %q", val)
}

// Value is one of text, binary, integer or floating point.
type Value struct {
	kind Kind
	text string
	blob []byte
	i    int64
	f    float64
}

func Text(s string) Value   { return Value{kind: KindText, text: s} }
func Binary(b []byte) Value { return Value{kind: KindBinary, blob: b} }
func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func (v Value) Kind() Kind  { return v.kind }

// ParseValue builds a Value of the given kind from its textual form.
func ParseValue(kind Kind, s string) (Value, error) {
	switch kind {
	case KindText:
		return Text(s), nil
	case KindBinary:
		return Binary([]byte(s)), nil
	case KindInt:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, errors.Wrapf(err, "invalid int %q", s)
		}
		return Int(i), nil
	case KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, errors.Wrapf(err, "invalid float %q", s)
		}
		return Float(f), nil
	}
	return Value{}, errors.Newf("unknown value kind %d", kind)
}

// Bytes returns the encoding written to the store: text and binary verbatim,
// integers in base 10 and floats in their shortest round-tripping form.
func (v Value) Bytes() []byte {
	switch v.kind {
	case KindBinary:
		return v.blob
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10)
	case KindFloat:
		return strconv.AppendFloat(nil, v.f, 'g', -1, 64)
	}
	return gstr.S2B(v.text)
}

// String is the stable rendering recorded in the call history. Binary values
// are rendered as a b-prefixed quoted Go string so they never read the same as text.
func (v Value) String() string {
	if v.kind == KindBinary {
		return "b" + strconv.Quote(gstr.B2S(v.blob))
	}
	return gstr.B2S(v.Bytes())
}

// Converter turns the raw bytes of a stored value into T.
type Converter[T any] func(raw []byte) (T, error)

// AsBytes returns the raw value unchanged.
func AsBytes(raw []byte) ([]byte, error) {
	return raw, nil
}

// AsString decodes raw as UTF-8 text.
func AsString(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", errors.New("value is not valid utf-8")
	}
	return string(raw), nil
}

// AsInt parses raw as a base-10 integer.
func AsInt(raw []byte) (int64, error) {
	return strconv.ParseInt(gstr.B2S(raw), 10, 64)
}

// AsFloat parses raw as a floating point number.
func AsFloat(raw []byte) (float64, error) {
	return strconv.ParseFloat(gstr.B2S(raw), 64)
}

// ConversionError is returned when a Converter rejects a stored value. The
// stored value itself is left untouched.
type ConversionError struct {
	Key string
	Err error
}

func (e *ConversionError) Error() string {
	return "error converting value at " + e.Key + ": " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
