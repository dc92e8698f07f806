// Package catalog provides the read-only record corpora that replies are
// grounded against.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field is one named value of a Record.
type Field struct {
	Name  string
	Value any
}

// Record is one catalog entry: an ordered set of named fields.
// Records are immutable; accessors return copies.
type Record struct {
	fields []Field
}

// NewRecord builds a record from fields in the given order. Later fields
// with a duplicate name replace the earlier value but keep its position.
func NewRecord(fields ...Field) Record {
	r := Record{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		r.fields = setField(r.fields, f)
	}
	return r
}

func setField(fields []Field, f Field) []Field {
	for i := range fields {
		if fields[i].Name == f.Name {
			fields[i].Value = f.Value
			return fields
		}
	}
	return append(fields, f)
}

// Fields returns a copy of the record's fields in order.
func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.fields)
}

// Get returns the raw value of a field.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Text returns a field rendered as text, or "" when the field is absent.
func (r Record) Text(name string) string {
	v, ok := r.Get(name)
	if !ok {
		return ""
	}
	return formatValue(v)
}

// String renders the record as compact JSON.
func (r Record) String() string {
	data, err := r.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", r.fields)
	}
	return string(data)
}

// MarshalJSON writes the fields as a JSON object, preserving order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving key order. Integral numbers
// decode as int64, other numbers as float64.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("catalog record must be a JSON object")
	}

	var fields []Field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected record key %v", keyTok)
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		fields = setField(fields, Field{Name: key, Value: normalizeNumbers(raw)})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	r.fields = fields
	return nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = normalizeNumbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalizeNumbers(x[k])
		}
		return x
	default:
		return v
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []byte:
		return string(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}

// DecodeRecords parses a JSON array of objects.
func DecodeRecords(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return records, nil
}
