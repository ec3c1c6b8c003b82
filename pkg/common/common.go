package common

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/OFFIS-RIT/leech/pkg/identity"

	"github.com/shopspring/decimal"
)

// Properties maps property names to their standardized values. A value is one
// of nil, string, decimal.Decimal, bool or identity.Missing.
//
// Properties serialize numbers as bare JSON numbers and decode them back into
// decimals, so a property map survives a trip across the message bus without
// losing precision or its missing markers.
type Properties map[string]any

func (p Properties) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	encoded := make(map[string]json.RawMessage, len(p))
	for name, value := range p {
		raw, err := identity.EncodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", name, err)
		}
		encoded[name] = raw
	}
	return json.Marshal(encoded)
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Properties, len(raw))
	for name, value := range raw {
		decoded, err := identity.DecodeValue(value)
		if err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
		out[name] = decoded
	}
	*p = out
	return nil
}

// Complete reports whether no property holds the missing marker.
func (p Properties) Complete() bool {
	for _, value := range p {
		if identity.IsMissing(value) {
			return false
		}
	}
	return true
}

// Present returns the properties that carry a concrete value, dropping nulls
// and missing markers. It is the filter used for index lookups.
func (p Properties) Present() Properties {
	out := make(Properties, len(p))
	for name, value := range p {
		if value == nil || identity.IsMissing(value) {
			continue
		}
		out[name] = value
	}
	return out
}

// GraphObject is the shape shared by everything destined for the graph.
//
// An object carries its type, its standardized properties, the InternalID
// derived from the schema's key fields and the identifier stem derived from
// the schema's identifying fields. IDValue holds the object's natural key;
// when no natural key could be found it equals IDValueField, the name of the
// property that would have held it.
//
// Stem is nil when the stem could not be built. StemKey then holds the
// identifying field names so a stub stem can still be derived.
type GraphObject struct {
	ObjectType   string
	Properties   Properties
	InternalID   identity.InternalID
	Stem         *identity.Stem
	StemKey      []string
	IDValue      any
	IDValueField string
}

// Base gives sinks access to the shared fields of vertexes and edges.
func (o *GraphObject) Base() *GraphObject {
	return o
}

func (o *GraphObject) IsInternalIDSet() bool {
	return o.InternalID.IsSet()
}

func (o *GraphObject) IsIdentifierStemSet() bool {
	return o.Stem != nil
}

// IsIDValueSet is false while the id value still holds its field name.
func (o *GraphObject) IsIDValueSet() bool {
	if o.IDValue == nil {
		return false
	}
	if s, ok := o.IDValue.(string); ok && s == o.IDValueField {
		return false
	}
	return true
}

func (o *GraphObject) IsPropertiesComplete() bool {
	return o.Properties.Complete()
}

// IsIdentifiable reports whether the object can be treated as authoritative
// rather than as a stub awaiting completion.
func (o *GraphObject) IsIdentifiable() bool {
	return o.IsInternalIDSet() && o.IsIdentifierStemSet() && o.IsIDValueSet()
}

func (o *GraphObject) IsEdge() bool {
	return o.Stem != nil && o.Stem.IsEdge()
}

// EffectiveStem is the resolved stem, or the stub stem derived from the
// object's identifying fields.
func (o *GraphObject) EffectiveStem() identity.Stem {
	return identity.StemForStub(o)
}

// GraphID is the id the object is stored under. Unresolved objects fall back
// to a digest of their stub stem so repeated deliveries still converge.
func (o *GraphObject) GraphID() identity.InternalID {
	if o.IsInternalIDSet() {
		return o.InternalID
	}
	return identity.ComputeInternalID(o.EffectiveStem().String())
}

// Get reads an attribute of the object by name, falling back to its
// properties.
func (o *GraphObject) Get(field string) (any, bool) {
	switch field {
	case "object_type":
		return o.ObjectType, true
	case "internal_id":
		if !o.IsInternalIDSet() {
			return nil, false
		}
		return o.InternalID.String(), true
	case "identifier_stem":
		return o.EffectiveStem().String(), true
	case "id_value":
		return o.IDValue, true
	case "id_value_field":
		return o.IDValueField, true
	}
	value, ok := o.Properties[field]
	return value, ok
}

// identity.StubSource

func (o *GraphObject) ResolvedStem() (identity.Stem, bool) {
	if o.Stem == nil {
		return identity.Stem{}, false
	}
	return *o.Stem, true
}

func (o *GraphObject) StemFields() []string { return o.StemKey }

func (o *GraphObject) ObjectTypeName() string { return o.ObjectType }

func (o *GraphObject) Property(name string) (any, bool) {
	value, ok := o.Properties[name]
	return value, ok
}

func (o *GraphObject) PropertiesComplete() bool { return o.IsPropertiesComplete() }

// indexProjection flattens the object for the index: type metadata first,
// then every property under its own name.
func (o *GraphObject) indexProjection(serialized []byte) map[string]any {
	projection := map[string]any{
		"sid_value":         identity.StringValue(o.IDValue),
		"identifier_stem":   o.EffectiveStem().String(),
		"internal_id":       o.GraphID().String(),
		"id_value":          o.IDValue,
		"object_type":       o.ObjectType,
		"object_value":      string(serialized),
		"object_properties": maps.Clone(o.Properties),
	}
	if d, ok := o.IDValue.(decimal.Decimal); ok {
		projection["numeric_id_value"] = d
	}
	for name, value := range o.Properties {
		if _, reserved := projection[name]; reserved {
			continue
		}
		projection[name] = value
	}
	return projection
}

type graphObjectJSON struct {
	ObjectType   string          `json:"object_type"`
	Properties   Properties      `json:"object_properties"`
	InternalID   *string         `json:"internal_id"`
	Stem         json.RawMessage `json:"identifier_stem"`
	IDValue      json.RawMessage `json:"id_value"`
	IDValueField string          `json:"id_value_field"`
}

func (o GraphObject) toJSON() (graphObjectJSON, error) {
	out := graphObjectJSON{
		ObjectType:   o.ObjectType,
		Properties:   o.Properties,
		IDValueField: o.IDValueField,
	}
	if o.IsInternalIDSet() {
		id := o.InternalID.String()
		out.InternalID = &id
	}

	var err error
	if o.Stem != nil {
		out.Stem, err = json.Marshal(o.Stem.String())
	} else {
		out.Stem, err = json.Marshal(o.StemKey)
	}
	if err != nil {
		return out, err
	}

	out.IDValue, err = identity.EncodeValue(o.IDValue)
	return out, err
}

func (o *GraphObject) fromJSON(in graphObjectJSON) error {
	o.ObjectType = in.ObjectType
	o.Properties = in.Properties
	if o.Properties == nil {
		o.Properties = Properties{}
	}
	o.IDValueField = in.IDValueField
	o.InternalID = ""
	if in.InternalID != nil {
		o.InternalID = identity.InternalID(*in.InternalID)
	}

	o.Stem, o.StemKey = nil, nil
	if len(in.Stem) > 0 && in.Stem[0] == '"' {
		var raw string
		if err := json.Unmarshal(in.Stem, &raw); err != nil {
			return err
		}
		stem, err := identity.ParseStem(raw)
		if err != nil {
			return err
		}
		o.Stem = &stem
	} else if len(in.Stem) > 0 && in.Stem[0] == '[' {
		if err := json.Unmarshal(in.Stem, &o.StemKey); err != nil {
			return err
		}
	}

	value, err := identity.DecodeValue(in.IDValue)
	if err != nil {
		return fmt.Errorf("id_value: %w", err)
	}
	o.IDValue = value
	return nil
}
