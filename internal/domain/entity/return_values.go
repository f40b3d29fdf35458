package entity

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ReturnValues maps decoded event parameter names to their values.
//
// Upstream ABI decoders emit every parameter twice: once under its name and
// once under its positional index ("0", "1", ...). Only the named entries are
// meaningful for storage and querying.
type ReturnValues map[string]any

// UnmarshalJSON decodes numbers as json.Number so uint256 values survive a
// round trip without float64 truncation.
func (rv *ReturnValues) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*rv = m
	return nil
}

// StripPositional removes every key that is a stringified non-negative
// integer, leaving only the named parameters.
func (rv ReturnValues) StripPositional() {
	for key := range rv {
		if isPositionalKey(key) {
			delete(rv, key)
		}
	}
}

// String returns the value stored under key as it would be compared by a
// text equality match against the stored JSON document.
func (rv ReturnValues) String(key string) (string, bool) {
	v, ok := rv[key]
	if !ok || v == nil {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case bool:
		return strconv.FormatBool(val), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

// MarshalDocument encodes the values for the return_values column.
// A nil map is stored as an empty object.
func (rv ReturnValues) MarshalDocument() ([]byte, error) {
	if rv == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(rv))
}

// isPositionalKey reports whether key is the canonical decimal form of a
// non-negative integer. "01" and "-1" are names, not positions.
func isPositionalKey(key string) bool {
	n, err := strconv.ParseUint(key, 10, 64)
	if err != nil {
		return false
	}
	return strconv.FormatUint(n, 10) == key
}
