package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueNumber
	ValueString
	ValueArray
	ValueObject
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueBool:
		return "boolean"
	case ValueNumber:
		return "number"
	case ValueString:
		return "string"
	case ValueArray:
		return "array"
	case ValueObject:
		return "object"
	}
	return "unknown"
}

// Value is a JSON-shaped variable value. The zero Value is null.
type Value struct {
	kind ValueKind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  map[string]Value
}

var Null = Value{}

func Bool(b bool) Value { return Value{kind: ValueBool, b: b} }
func Number(n float64) Value { return Value{kind: ValueNumber, n: n} }
func String(s string) Value { return Value{kind: ValueString, s: s} }
func Array(v ...Value) Value { return Value{kind: ValueArray, arr: v} }
func Object(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: ValueObject, obj: m}
}

// ValueOf normalises an arbitrary Go value into a Value. Structs and other
// types without a direct mapping go through a JSON round trip.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case Value:
		return x
	case *Value:
		if x == nil {
			return Null
		}
		return *x
	case bool:
		return Bool(x)
	case string:
		return String(x)
	case int:
		return Number(float64(x))
	case int8:
		return Number(float64(x))
	case int16:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint:
		return Number(float64(x))
	case uint8:
		return Number(float64(x))
	case uint16:
		return Number(float64(x))
	case uint32:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case float32:
		return Number(float64(x))
	case float64:
		return Number(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return String(x.String())
		}
		return Number(f)
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = ValueOf(e)
		}
		return Array(out...)
	case []Value:
		return Array(x...)
	case []string:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = String(e)
		}
		return Array(out...)
	case []float64:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = Number(e)
		}
		return Array(out...)
	case []float32:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = Number(float64(e))
		}
		return Array(out...)
	case map[string]any:
		out := make(map[string]Value, len(x))
		for k, e := range x {
			out[k] = ValueOf(e)
		}
		return Object(out)
	case map[string]Value:
		return Object(x)
	case map[string]string:
		out := make(map[string]Value, len(x))
		for k, e := range x {
			out[k] = String(e)
		}
		return Object(out)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]Value, rv.Len())
		for i := range out {
			out[i] = ValueOf(rv.Index(i).Interface())
		}
		return Array(out...)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			out := make(map[string]Value, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[iter.Key().String()] = ValueOf(iter.Value().Interface())
			}
			return Object(out)
		}
	case reflect.Pointer:
		if rv.IsNil() {
			return Null
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return String(fmt.Sprintf("%v", v))
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return String(string(data))
	}
	return ValueOf(generic)
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool { return v.kind == ValueNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == ValueBool }
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == ValueNumber }
func (v Value) AsString() (string, bool) { return v.s, v.kind == ValueString }
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == ValueArray }
func (v Value) AsObject() (map[string]Value, bool) { return v.obj, v.kind == ValueObject }

// Interface converts v back into plain Go values: nil, bool, float64, string,
// []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case ValueBool:
		return v.b
	case ValueNumber:
		return v.n
	case ValueString:
		return v.s
	case ValueArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case ValueObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

// Text renders v the way templates substitute it: strings verbatim, numbers in
// shortest decimal form, booleans as true/false, everything else as compact JSON.
func (v Value) Text() string {
	switch v.kind {
	case ValueString:
		return v.s
	case ValueNumber:
		return formatNumber(v.n)
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueNull:
		return "null"
	}
	var buf bytes.Buffer
	v.writeJSON(&buf)
	return buf.String()
}

func (v Value) String() string {
	return v.Text()
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	v.writeJSON(&buf)
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return err
	}
	*v = ValueOf(generic)
	return nil
}

// Equal reports deep equality.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueNull:
		return true
	case ValueBool:
		return v.b == o.b
	case ValueNumber:
		return v.n == o.n
	case ValueString:
		return v.s == o.s
	case ValueArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case ValueObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, e := range v.obj {
			oe, ok := o.obj[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) writeJSON(buf *bytes.Buffer) {
	switch v.kind {
	case ValueNull:
		buf.WriteString("null")
	case ValueBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case ValueNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			buf.WriteString("null")
			return
		}
		buf.WriteString(formatNumber(v.n))
	case ValueString:
		writeJSONString(buf, v.s)
	case ValueArray:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			e.writeJSON(buf)
		}
		buf.WriteByte(']')
	case ValueObject:
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, k)
			buf.WriteByte(':')
			v.obj[k].writeJSON(buf)
		}
		buf.WriteByte('}')
	}
}

func writeJSONString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
