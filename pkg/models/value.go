// Package models provides data structures used throughout the query service.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind is the variant of a Value.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field is a single key/value member of an object Value.
type Field struct {
	Key   string
	Value Value
}

// Value is an immutable JSON-like tree: null, boolean, number, string,
// array or object. Object members keep their insertion order; a repeated
// key keeps its first position and its last value. The zero Value is null.
type Value struct {
	kind   Kind
	b      bool
	num    float64
	i      int64
	isInt  bool
	s      string
	arr    []Value
	keys   []string
	fields map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integral number value.
func Int(i int64) Value { return Value{kind: KindNumber, i: i, num: float64(i), isInt: true} }

// Float returns a number value.
func Float(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns an array value holding a copy of elems.
func Array(elems ...Value) Value {
	arr := make([]Value, len(elems))
	copy(arr, elems)
	return Value{kind: KindArray, arr: arr}
}

// Object returns an object value with the given members in order.
func Object(fields ...Field) Value {
	v := Value{kind: KindObject, fields: make(map[string]Value, len(fields))}
	for _, f := range fields {
		if _, seen := v.fields[f.Key]; !seen {
			v.keys = append(v.keys, f.Key)
		}
		v.fields[f.Key] = f.Value
	}
	return v
}

// ObjectFromMap returns an object value with members sorted by key.
func ObjectFromMap(m map[string]Value) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, Field{Key: k, Value: m[k]})
	}
	return Object(fields...)
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsObject reports whether v is an object.
func (v Value) IsObject() bool { return v.kind == KindObject }

// IsArray reports whether v is an array.
func (v Value) IsArray() bool { return v.kind == KindArray }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsNumber returns the numeric payload as a float.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsInt returns the numeric payload when it was parsed or built as an integer.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindNumber && v.isInt }

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Len returns the number of array elements or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.keys)
	}
	return 0
}

// Index returns the i-th array element, or null when out of range.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Null()
	}
	return v.arr[i]
}

// Elements returns a copy of the array elements.
func (v Value) Elements() []Value {
	if v.kind != KindArray {
		return nil
	}
	out := make([]Value, len(v.arr))
	copy(out, v.arr)
	return out
}

// Keys returns the object keys in insertion order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// SortedKeys returns the object keys in lexical order.
func (v Value) SortedKeys() []string {
	out := v.Keys()
	sort.Strings(out)
	return out
}

// Fields returns the object members in insertion order.
func (v Value) Fields() []Field {
	if v.kind != KindObject {
		return nil
	}
	out := make([]Field, 0, len(v.keys))
	for _, k := range v.keys {
		out = append(out, Field{Key: k, Value: v.fields[k]})
	}
	return out
}

// Get returns the member stored under key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	m, ok := v.fields[key]
	return m, ok
}

// Equal reports deep equality. Numbers compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if v.isInt && o.isInt {
			return v.i == o.i
		}
		return v.num == o.num
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for _, k := range v.keys {
			ov, ok := o.fields[k]
			if !ok || !v.fields[k].Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// ToInterface converts v into plain Go values: nil, bool, int64, float64,
// string, []interface{} and map[string]interface{}.
func (v Value) ToInterface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.isInt {
			return v.i
		}
		return v.num
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToInterface()
		}
		return out
	case KindObject:
		out := make(map[string]interface{}, len(v.keys))
		for _, k := range v.keys {
			out[k] = v.fields[k].ToInterface()
		}
		return out
	}
	return nil
}

// FromInterface converts plain Go values into a Value. Maps are converted
// with sorted keys.
func FromInterface(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		return numberValue(string(t))
	case []Value:
		return Array(t...), nil
	case []interface{}:
		elems := make([]Value, 0, len(t))
		for _, e := range t {
			ev, err := FromInterface(e)
			if err != nil {
				return Null(), err
			}
			elems = append(elems, ev)
		}
		return Value{kind: KindArray, arr: elems}, nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := FromInterface(e)
			if err != nil {
				return Null(), err
			}
			m[k] = ev
		}
		return ObjectFromMap(m), nil
	}
	return Null(), fmt.Errorf("unsupported value type %T", x)
}

// ParseValue parses exactly one JSON document into a Value, preserving
// object key order. Integers that fit in int64 stay integral.
func ParseValue(data []byte) (Value, error) {
	iter := jsoniter.ParseBytes(jsonAPI, data)
	v, err := readValue(iter)
	if err != nil {
		return Null(), err
	}
	// Only whitespace may follow; reaching the end leaves io.EOF behind.
	iter.WhatIsNext()
	if iter.Error != io.EOF {
		return Null(), fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

func readValue(iter *jsoniter.Iterator) (Value, error) {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		return Null(), iterErr(iter)
	case jsoniter.BoolValue:
		b := iter.ReadBool()
		return Bool(b), iterErr(iter)
	case jsoniter.StringValue:
		s := iter.ReadString()
		return String(s), iterErr(iter)
	case jsoniter.NumberValue:
		n := iter.ReadNumber()
		if err := iterErr(iter); err != nil {
			return Null(), err
		}
		return numberValue(string(n))
	case jsoniter.ArrayValue:
		var elems []Value
		var inner error
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			e, err := readValue(it)
			if err != nil {
				inner = err
				return false
			}
			elems = append(elems, e)
			return true
		})
		if inner != nil {
			return Null(), inner
		}
		if err := iterErr(iter); err != nil {
			return Null(), err
		}
		return Value{kind: KindArray, arr: elems}, nil
	case jsoniter.ObjectValue:
		var fields []Field
		var inner error
		iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
			e, err := readValue(it)
			if err != nil {
				inner = err
				return false
			}
			fields = append(fields, Field{Key: key, Value: e})
			return true
		})
		if inner != nil {
			return Null(), inner
		}
		if err := iterErr(iter); err != nil {
			return Null(), err
		}
		return Object(fields...), nil
	}
	if err := iterErr(iter); err != nil {
		return Null(), err
	}
	return Null(), fmt.Errorf("invalid JSON value")
}

func iterErr(iter *jsoniter.Iterator) error {
	if iter.Error != nil && iter.Error != io.EOF {
		return iter.Error
	}
	return nil
}

func numberValue(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// Well-formed but out of range: saturate so callers can clamp.
		if numErr, ok := err.(*strconv.NumError); ok && numErr.Err == strconv.ErrRange {
			if math.IsInf(f, 0) {
				f = math.Copysign(math.MaxFloat64, f)
			}
			return Float(f), nil
		}
		return Null(), fmt.Errorf("invalid number %q", s)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return Null(), fmt.Errorf("invalid number %q", s)
	}
	return Float(f), nil
}

// MarshalJSON encodes v as compact JSON, keeping object member order.
// Non-finite numbers encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	stream := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(stream)
	writeValue(stream, v)
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseValue(bytes.TrimSpace(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String renders v as compact JSON.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return "null"
	}
	return string(b)
}

func writeValue(stream *jsoniter.Stream, v Value) {
	switch v.kind {
	case KindNull:
		stream.WriteNil()
	case KindBool:
		stream.WriteBool(v.b)
	case KindNumber:
		switch {
		case v.isInt:
			stream.WriteInt64(v.i)
		case math.IsNaN(v.num) || math.IsInf(v.num, 0):
			stream.WriteNil()
		default:
			stream.WriteFloat64(v.num)
		}
	case KindString:
		stream.WriteString(v.s)
	case KindArray:
		stream.WriteArrayStart()
		for i, e := range v.arr {
			if i > 0 {
				stream.WriteMore()
			}
			writeValue(stream, e)
		}
		stream.WriteArrayEnd()
	case KindObject:
		stream.WriteObjectStart()
		for i, k := range v.keys {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(k)
			writeValue(stream, v.fields[k])
		}
		stream.WriteObjectEnd()
	}
}
