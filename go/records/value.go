package records

import (
	"sort"
	"strconv"
	"time"
)

// Kind discriminates the variants of Value.
type Kind uint8

const (
	// KindNull is SQL NULL or JSON null. It's the zero Kind.
	KindNull Kind = iota
	// KindBool is a boolean inside a metadata document.
	KindBool
	// KindInt is a signed 64-bit integer.
	KindInt
	// KindDecimal is a fixed-point decimal carried as canonical text with
	// exactly ValueScale fractional digits.
	KindDecimal
	// KindTime is a timestamp with zone offset.
	KindTime
	// KindString is UTF-8 text.
	KindString
	// KindNumber is a numeric literal from a metadata document, carried
	// verbatim so re-encoding cannot change its representation.
	KindNumber
	// KindList is an ordered sequence of values.
	KindList
	// KindDocument is a set of key-sorted fields.
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindList:
		return "list"
	case KindDocument:
		return "document"
	}
	return "invalid"
}

// TimeLayout renders timestamps as ISO-8601 extended with a numeric zone
// offset. Fractional seconds are emitted to microseconds with trailing
// zeros trimmed.
const TimeLayout = "2006-01-02T15:04:05.999999-07:00"

// Value is the tagged model which every encoder consumes. The coercion
// layer is its only producer; encoders switch on Kind and never see
// database driver types.
type Value struct {
	kind Kind
	b    bool
	i    int64
	s    string
	t    time.Time
	list []Value
	doc  []Field
}

// Field is one entry of a document Value.
type Field struct {
	Key   string
	Value Value
}

// Null is the null Value.
var Null = Value{}

// Bool builds a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int builds an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Decimal builds a fixed-point Value from its canonical text.
func Decimal(text string) Value { return Value{kind: KindDecimal, s: text} }

// Timestamp builds a timestamp Value.
func Timestamp(t time.Time) Value { return Value{kind: KindTime, t: t} }

// String builds a text Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number builds a Value holding a verbatim numeric literal.
func Number(lit string) Value { return Value{kind: KindNumber, s: lit} }

// List builds a list Value. |items| is retained.
func List(items []Value) Value { return Value{kind: KindList, list: items} }

// Document builds a document Value. |fields| is retained and sorted by key
// so that re-encoded documents are deterministic.
func Document(fields []Field) Value {
	sort.Slice(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return Value{kind: KindDocument, doc: fields}
}

// Kind returns the variant tag of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Bool returns the boolean of a KindBool value.
func (v Value) Bool() bool { return v.b }

// Int returns the integer of a KindInt value.
func (v Value) Int() int64 { return v.i }

// Text returns the text of a KindDecimal, KindString, or KindNumber value.
func (v Value) Text() string { return v.s }

// Time returns the timestamp of a KindTime value.
func (v Value) Time() time.Time { return v.t }

// Items returns the elements of a KindList value, in order.
func (v Value) Items() []Value { return v.list }

// Fields returns the key-sorted fields of a KindDocument value.
func (v Value) Fields() []Field { return v.doc }

// AppendText appends the plain-text rendering of a scalar value: empty for
// null, "true"/"false" for booleans, base-10 for integers, canonical text
// for decimals and strings, and ISO-8601 for timestamps. Lists and
// documents render as their compact JSON serialization.
func (v Value) AppendText(dst []byte) []byte {
	switch v.kind {
	case KindNull:
		return dst
	case KindBool:
		if v.b {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case KindInt:
		return strconv.AppendInt(dst, v.i, 10)
	case KindTime:
		return v.t.AppendFormat(dst, TimeLayout)
	case KindList, KindDocument:
		return v.AppendJSON(dst)
	default:
		return append(dst, v.s...)
	}
}

// AppendJSON appends the compact JSON rendering of the value: no added
// whitespace, document keys in sorted order, and numeric literals from
// metadata documents emitted verbatim. Decimals and timestamps encode as
// JSON strings.
func (v Value) AppendJSON(dst []byte) []byte {
	switch v.kind {
	case KindNull:
		return append(dst, "null"...)
	case KindBool:
		if v.b {
			return append(dst, "true"...)
		}
		return append(dst, "false"...)
	case KindInt:
		return strconv.AppendInt(dst, v.i, 10)
	case KindNumber:
		return append(dst, v.s...)
	case KindDecimal, KindString:
		return AppendJSONString(dst, v.s)
	case KindTime:
		dst = append(dst, '"')
		dst = v.t.AppendFormat(dst, TimeLayout)
		return append(dst, '"')
	case KindList:
		dst = append(dst, '[')
		for i := range v.list {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = v.list[i].AppendJSON(dst)
		}
		return append(dst, ']')
	case KindDocument:
		dst = append(dst, '{')
		for i := range v.doc {
			if i > 0 {
				dst = append(dst, ',')
			}
			dst = AppendJSONString(dst, v.doc[i].Key)
			dst = append(dst, ':')
			dst = v.doc[i].Value.AppendJSON(dst)
		}
		return append(dst, '}')
	}
	return dst
}

const hexDigits = "0123456789abcdef"

// AppendJSONString appends |s| as a quoted JSON string, escaping quotes,
// backslashes, and control characters. Valid UTF-8 passes through.
func AppendJSONString(dst []byte, s string) []byte {
	dst = append(dst, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '"':
			dst = append(dst, '\\', '"')
		case c == '\\':
			dst = append(dst, '\\', '\\')
		case c == '\n':
			dst = append(dst, '\\', 'n')
		case c == '\r':
			dst = append(dst, '\\', 'r')
		case c == '\t':
			dst = append(dst, '\\', 't')
		case c < 0x20:
			dst = append(dst, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
		default:
			dst = append(dst, c)
		}
	}
	return append(dst, '"')
}
