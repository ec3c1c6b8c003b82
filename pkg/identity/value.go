package identity

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// EncodeValue renders a property value as JSON. Decimals are written as bare
// numbers so they survive a decode as numbers, and Missing keeps its marker.
func EncodeValue(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case Missing, *Missing:
		return missingJSON, nil
	case decimal.Decimal:
		return json.RawMessage(val.String()), nil
	case *decimal.Decimal:
		if val == nil {
			return json.RawMessage("null"), nil
		}
		return json.RawMessage(val.String()), nil
	case json.Number:
		return json.RawMessage(val.String()), nil
	case json.RawMessage:
		return val, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode value %v: %w", v, err)
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// DecodeValue is the inverse of EncodeValue. Numbers come back as
// decimal.Decimal, nested arrays and objects as generic JSON values.
func DecodeValue(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case '{':
		if IsMissingJSON(raw) {
			return MissingProperty, nil
		}
	case '[':
	default:
		d, err := decimal.NewFromString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("decode number %s: %w", raw, err)
		}
		return d, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// KeyValue renders a value the way it takes part in an InternalID. Null and
// booleans follow the spelling ids were originally hashed with, so objects
// keyed on them keep their ids.
func KeyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	}
	return StringValue(v)
}

// StringValue renders a value as text for index keys, comparisons and
// literals. Null renders as the empty string.
func StringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return val.String()
	case fmt.Stringer:
		return val.String()
	}
	raw, err := EncodeValue(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
