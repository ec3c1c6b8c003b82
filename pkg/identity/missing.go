package identity

import "encoding/json"

// Missing marks a property that was absent from the source record, as opposed
// to one present with an empty or null value.
type Missing struct{}

// MissingProperty is the value stored for absent properties.
var MissingProperty = Missing{}

func IsMissing(v any) bool {
	switch v.(type) {
	case Missing, *Missing:
		return true
	}
	return false
}

// missingJSON is the wire form. It cannot collide with a scalar property value.
var missingJSON = []byte(`{"@missing":true}`)

func (Missing) MarshalJSON() ([]byte, error) {
	return missingJSON, nil
}

// IsMissingJSON reports whether raw is the encoded form of Missing.
func IsMissingJSON(raw json.RawMessage) bool {
	var probe struct {
		Missing bool `json:"@missing"`
	}
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Missing
}
