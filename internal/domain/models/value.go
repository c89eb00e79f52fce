package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ColumnKind is the scalar type of a report column.
type ColumnKind uint8

const (
	KindText ColumnKind = iota
	KindInt
	KindDecimal
	KindBool
	KindTime
)

var kindNames = [...]string{"text", "int", "decimal", "bool", "time"}

func (k ColumnKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k ColumnKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ColumnKind) UnmarshalText(b []byte) error {
	for i, n := range kindNames {
		if n == string(b) {
			*k = ColumnKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown column kind %q", string(b))
}

// Value is one report cell. A null Value is the explicit "missing" variant:
// it is used both for NULL grouping keys and for undefined rates.
type Value struct {
	kind   ColumnKind
	null   bool
	str    string
	num    int64
	dec    decimal.Decimal
	places int32
	flag   bool
	at     time.Time
}

func NullValue(kind ColumnKind) Value { return Value{kind: kind, null: true} }

func TextValue(s string) Value { return Value{kind: KindText, str: s} }

// TextOrNull treats an empty (or blank) string as missing.
func TextOrNull(s string) Value {
	if strings.TrimSpace(s) == "" {
		return NullValue(KindText)
	}
	return TextValue(s)
}

func IntValue(n int64) Value { return Value{kind: KindInt, num: n} }

func BoolValue(b bool) Value { return Value{kind: KindBool, flag: b} }

func TimeValue(t time.Time) Value { return Value{kind: KindTime, at: t.UTC()} }

// DecimalValue rounds d half away from zero to places. Invalid d yields null.
func DecimalValue(d decimal.NullDecimal, places int32) Value {
	if !d.Valid {
		return Value{kind: KindDecimal, null: true, places: places}
	}
	return Value{kind: KindDecimal, dec: d.Decimal.Round(places), places: places}
}

func (v Value) Kind() ColumnKind         { return v.kind }
func (v Value) IsNull() bool             { return v.null }
func (v Value) Text() string             { return v.str }
func (v Value) Int() int64               { return v.num }
func (v Value) Decimal() decimal.Decimal { return v.dec }
func (v Value) Bool() bool               { return v.flag }
func (v Value) Time() time.Time          { return v.at }

// Compare orders values of the same kind. Null sorts after every present value.
func (v Value) Compare(o Value) int {
	switch {
	case v.null && o.null:
		return 0
	case v.null:
		return 1
	case o.null:
		return -1
	}
	if v.kind != o.kind {
		return cmpInt(int64(v.kind), int64(o.kind))
	}
	switch v.kind {
	case KindText:
		return strings.Compare(v.str, o.str)
	case KindInt:
		return cmpInt(v.num, o.num)
	case KindDecimal:
		return v.dec.Cmp(o.dec)
	case KindBool:
		return cmpInt(b2i(v.flag), b2i(o.flag))
	case KindTime:
		return v.at.Compare(o.at)
	}
	return 0
}

// Equal compares kind, nullness and content.
func (v Value) Equal(o Value) bool {
	return v.kind == o.kind && v.null == o.null && v.Compare(o) == 0
}

// Format renders the value for delimited export. Null renders as "".
func (v Value) Format() string {
	if v.null {
		return ""
	}
	switch v.kind {
	case KindText:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindDecimal:
		return v.dec.StringFixed(v.places)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindTime:
		return v.at.Format(time.RFC3339Nano)
	}
	return ""
}

// GroupKey is a collision-free encoding used for partitioning.
func (v Value) GroupKey() string {
	if v.null {
		return "\x00"
	}
	return "\x01" + v.Format()
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.null {
		return []byte("null"), nil
	}
	switch v.kind {
	case KindInt, KindDecimal, KindBool:
		return []byte(v.Format()), nil
	default:
		return json.Marshal(v.Format())
	}
}

// ParseValue is the inverse of Format for a column.
func ParseValue(col Column, s string) (Value, error) {
	if s == "" {
		return NullValue(col.Kind), nil
	}
	switch col.Kind {
	case KindText:
		return TextValue(s), nil
	case KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return IntValue(n), nil
	case KindDecimal:
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return DecimalValue(decimal.NewNullDecimal(d), col.Precision), nil
	case KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Value{}, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return BoolValue(b), nil
	case KindTime:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, fmt.Errorf("column %s: %w", col.Name, err)
		}
		return TimeValue(t), nil
	}
	return Value{}, fmt.Errorf("column %s: unsupported kind %s", col.Name, col.Kind)
}

func decodeValue(col Column, raw json.RawMessage) (Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return NullValue(col.Kind), nil
	}
	switch col.Kind {
	case KindText, KindTime:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, fmt.Errorf("column %s: %w", col.Name, err)
		}
		if col.Kind == KindText {
			return TextValue(s), nil
		}
		return ParseValue(col, s)
	default:
		return ParseValue(col, string(raw))
	}
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
