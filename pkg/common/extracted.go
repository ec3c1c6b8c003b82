package common

import (
	"bytes"
	"encoding/json"
)

// SourceKey is the bucket of ExtractedData holding the record itself.
const SourceKey = "source"

// ExtractedData is what a source driver returns for one record: the record
// under "source" plus any number of named extraction buckets, each a list of
// field maps. Numbers are kept as json.Number until regulation.
type ExtractedData map[string]any

func (e *ExtractedData) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*e = raw
	return nil
}

// Source returns the record the source vertex is built from.
func (e ExtractedData) Source() (map[string]any, bool) {
	source, ok := e[SourceKey].(map[string]any)
	return source, ok
}

// Bucket returns a named extraction. A single object is treated as a bucket
// of one.
func (e ExtractedData) Bucket(name string) ([]map[string]any, bool) {
	raw, ok := e[name]
	if !ok {
		return nil, false
	}
	switch bucket := raw.(type) {
	case []map[string]any:
		return bucket, true
	case map[string]any:
		return []map[string]any{bucket}, true
	case []any:
		out := make([]map[string]any, 0, len(bucket))
		for _, item := range bucket {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out, true
	}
	return nil, false
}
