package schema

import (
	"encoding/json"
	"fmt"
)

const (
	IndexUnique    = "unique"
	IndexSortedSet = "sorted_set"
)

// IndexEntry declares an index over a vertex or edge type. Unique indexes
// reject a second object with the same key values. Sorted set indexes order
// objects sharing a key by a numeric score.
type IndexEntry struct {
	Name       string   `json:"index_name"`
	Type       string   `json:"index_type"`
	Unique     bool     `json:"is_unique"`
	KeyFields  []string `json:"key"`
	ScoreField string   `json:"score,omitempty"`
}

type indexProperties struct {
	Key   []string `json:"key"`
	Score string   `json:"score"`
}

// UnmarshalJSON accepts key and score at the top level, nested under
// index_properties, or in indexed_fields.
func (i *IndexEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name            string           `json:"index_name"`
		Type            string           `json:"index_type"`
		Unique          *bool            `json:"is_unique"`
		Key             []string         `json:"key"`
		Score           string           `json:"score"`
		IndexProperties *indexProperties `json:"index_properties"`
		IndexedFields   json.RawMessage  `json:"indexed_fields"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := IndexEntry{Name: raw.Name, Type: raw.Type, KeyFields: raw.Key, ScoreField: raw.Score}
	if raw.IndexProperties != nil {
		if len(out.KeyFields) == 0 {
			out.KeyFields = raw.IndexProperties.Key
		}
		if out.ScoreField == "" {
			out.ScoreField = raw.IndexProperties.Score
		}
	}
	if len(out.KeyFields) == 0 && len(raw.IndexedFields) > 0 {
		var fields []string
		if err := json.Unmarshal(raw.IndexedFields, &fields); err == nil {
			out.KeyFields = fields
		} else {
			var props indexProperties
			if err := json.Unmarshal(raw.IndexedFields, &props); err != nil {
				return fmt.Errorf("index %s: indexed_fields: %w", raw.Name, err)
			}
			out.KeyFields, out.ScoreField = props.Key, props.Score
		}
	}

	switch out.Type {
	case IndexUnique:
		out.Unique = true
	case IndexSortedSet:
		out.Unique = false
	case "":
		out.Type = IndexUnique
		if raw.Unique != nil && !*raw.Unique {
			out.Type = IndexSortedSet
		}
		out.Unique = out.Type == IndexUnique
	}

	*i = out
	return nil
}

func (i IndexEntry) validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: index without index_name", ErrInvalidSchema)
	}
	switch i.Type {
	case IndexUnique:
	case IndexSortedSet:
		if i.ScoreField == "" {
			return fmt.Errorf("%w: sorted set index %s has no score field", ErrInvalidSchema, i.Name)
		}
	default:
		return fmt.Errorf("%w: index %s has unknown type %q", ErrInvalidSchema, i.Name, i.Type)
	}
	if len(i.KeyFields) == 0 {
		return fmt.Errorf("%w: index %s has no key fields", ErrInvalidSchema, i.Name)
	}
	return nil
}
