package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var errNullPattern = errors.New("pattern is null")

// Pattern - routing key of an envelope, either a plain string or a
// structured JSON value (object, array, number, bool).
type Pattern struct {
	key        string
	structured bool
}

// StringPattern ...
func StringPattern(s string) Pattern {
	return Pattern{key: s}
}

// StructuredPattern builds a pattern from any JSON-serializable value.
// A Go string yields a plain string pattern.
func StructuredPattern(v interface{}) (Pattern, error) {
	if s, ok := v.(string); ok {
		return StringPattern(s), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Pattern{}, err
	}
	var p Pattern
	if err := p.UnmarshalJSON(raw); err != nil {
		return Pattern{}, err
	}
	return p, nil
}

// MustPattern is StructuredPattern for static registration tables.
func MustPattern(v interface{}) Pattern {
	p, err := StructuredPattern(v)
	if err != nil {
		panic(fmt.Sprintf("protocol: invalid pattern %v: %v", v, err))
	}
	return p
}

// Key returns the canonical routing key. Structured patterns are serialized
// with object keys sorted, so equal values always produce the same key.
func (p Pattern) Key() string {
	return p.key
}

// IsStructured ...
func (p Pattern) IsStructured() bool {
	return p.structured
}

// String representation
func (p Pattern) String() string {
	return p.key
}

// MarshalJSON writes a string pattern as a JSON string and a structured
// pattern as its canonical JSON value.
func (p Pattern) MarshalJSON() ([]byte, error) {
	if p.structured {
		return []byte(p.key), nil
	}
	return json.Marshal(p.key)
}

// UnmarshalJSON ...
func (p *Pattern) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errNullPattern
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = StringPattern(s)
		return nil
	}
	key, err := canonical(data)
	if err != nil {
		return err
	}
	*p = Pattern{key: key, structured: true}
	return nil
}

func canonical(data []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	v = normalize(v)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// normalize rewrites numbers with at most 15 significant digits in their
// shortest float64 form, so 1.0, 1e0 and 1 share a key. Such decimals survive
// a float64 round trip unchanged. Longer numbers keep their text.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	case json.Number:
		return normalizeNumber(t)
	default:
		return v
	}
}

const exactDigits = 15

func normalizeNumber(n json.Number) interface{} {
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return n
	}
	if significantDigits(string(n)) > exactDigits {
		return n
	}
	return f
}

func significantDigits(s string) int {
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimLeft(s, "-+")
	s = strings.Replace(s, ".", "", 1)
	s = strings.TrimLeft(s, "0")
	s = strings.TrimRight(s, "0")
	return len(s)
}
