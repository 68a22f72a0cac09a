package grammar

import (
	"fmt"
	"maps"
	"strconv"
)

// Data is the per-statement mapping from field name to parsed value.
// The matcher treats Data values as immutable and copies on write, so a
// Data handed to a data handler may be modified freely.
type Data map[string]any

func (d Data) clone() Data {
	out := make(Data, len(d)+1)
	maps.Copy(out, d)
	return out
}

func (d Data) with(key string, v any) Data {
	out := d.clone()
	out[key] = v
	return out
}

func (d Data) merge(m map[string]any) Data {
	if len(m) == 0 {
		return d
	}
	out := d.clone()
	maps.Copy(out, m)
	return out
}

// Has reports whether key was set.
func (d Data) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// String returns the value for key formatted as text, or "".
func (d Data) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the value for key as an integer. Strings are parsed.
func (d Data) Int(key string) (int64, bool) {
	switch t := d[key].(type) {
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Strings returns the value for key as a list. A single string becomes a
// one-element list.
func (d Data) Strings(key string) []string {
	switch t := d[key].(type) {
	case []string:
		return t
	case string:
		return []string{t}
	}
	return nil
}
