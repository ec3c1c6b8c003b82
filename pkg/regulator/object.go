// Package regulator turns raw records into typed, identity-bearing and
// redacted graph objects, and builds the edges between them.
package regulator

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/schema"
	"github.com/OFFIS-RIT/leech/pkg/sensitive"

	"github.com/shopspring/decimal"
)

// Key field names that resolve to schema attributes instead of properties.
const (
	keyObjectType   = "object_type"
	keyIDValueField = "id_value_field"
)

// Supplied carries identity the caller already knows. Zero fields are
// derived from the record.
type Supplied struct {
	InternalID identity.InternalID
	Stem       *identity.Stem
	IDValue    any
}

// ObjectRegulator builds graph objects of one schema entry.
type ObjectRegulator struct {
	entry schema.Entry
	vault sensitive.Vault
}

func NewObjectRegulator(entry schema.Entry, vault sensitive.Vault) *ObjectRegulator {
	return &ObjectRegulator{entry: entry, vault: vault}
}

func (r *ObjectRegulator) Entry() schema.Entry {
	return r.entry
}

// CreatePotentialVertexData standardizes record against the entry, derives
// the object's internal id, stem and id value, and redacts sensitive
// properties. No object is returned on error.
func (r *ObjectRegulator) CreatePotentialVertexData(ctx context.Context, record map[string]any, supplied Supplied) (common.GraphObject, error) {
	name := r.entry.EntryName()

	properties, err := r.StandardizeProperties(record)
	if err != nil {
		return common.GraphObject{}, fmt.Errorf("regulate %s: %w", name, err)
	}

	internalID := supplied.InternalID
	if !internalID.IsSet() {
		internalID = r.internalID(properties)
	}

	stem := supplied.Stem
	if stem == nil {
		if built, ok := r.identifierStem(properties, record); ok {
			stem = &built
		}
	}

	idValue := supplied.IDValue
	if idValue == nil {
		idValue, err = r.idValue(properties)
		if err != nil {
			return common.GraphObject{}, fmt.Errorf("regulate %s: %w", name, err)
		}
	}

	properties, err = r.Redact(ctx, internalID, properties)
	if err != nil {
		return common.GraphObject{}, fmt.Errorf("regulate %s: %w", name, err)
	}

	return common.GraphObject{
		ObjectType:   name,
		Properties:   properties,
		InternalID:   internalID,
		Stem:         stem,
		StemKey:      slices.Clone(r.entry.StemFields()),
		IDValue:      idValue,
		IDValueField: r.entry.ValueField(),
	}, nil
}

// StandardizeProperties reads every declared property from record, coercing
// present values and marking absent ones as missing.
func (r *ObjectRegulator) StandardizeProperties(record map[string]any) (common.Properties, error) {
	entries := r.entry.PropertyEntries()
	out := make(common.Properties, len(entries))
	for _, p := range entries {
		raw, ok := record[p.Name]
		if !ok || identity.IsMissing(raw) {
			out[p.Name] = identity.MissingProperty
			continue
		}
		value, err := standardizeValue(p, raw)
		if err != nil {
			return nil, err
		}
		out[p.Name] = value
	}
	return out, nil
}

// internalID concatenates the key field values in declared order. A missing
// key property leaves the id unresolved.
func (r *ObjectRegulator) internalID(properties common.Properties) identity.InternalID {
	keyFields := r.entry.KeyFields()
	values := make([]string, 0, len(keyFields))
	for _, field := range keyFields {
		switch field {
		case keyObjectType:
			values = append(values, r.entry.EntryName())
			continue
		case keyIDValueField:
			values = append(values, r.entry.ValueField())
			continue
		}
		value, ok := properties[field]
		if !ok || identity.IsMissing(value) {
			return ""
		}
		values = append(values, identity.KeyValue(value))
	}
	return identity.ComputeInternalID(strings.Join(values, ""))
}

// identifierStem pairs the stem fields with their values. A missing field
// leaves the stem unresolved; a null one marks it as a stub.
func (r *ObjectRegulator) identifierStem(properties common.Properties, record map[string]any) (identity.Stem, bool) {
	objectType := r.entry.EntryName()
	stub := false

	fields := r.entry.StemFields()
	pairs := make([]identity.Pair, 0, len(fields))
	for _, field := range fields {
		value, ok := properties[field]
		if !ok {
			value, ok = record[field]
		}
		if !ok || identity.IsMissing(value) {
			return identity.Stem{}, false
		}
		if value == nil {
			stub = true
		}
		pairs = append(pairs, identity.Pair{Field: field, Value: value})
	}

	stem := identity.NewVertexStem(objectType, pairs...)
	if stub {
		stem = stem.AsStub()
	}
	return stem, true
}

// idValue reads the natural key. Without one the id value is the field
// name. DateTime keys become epoch seconds.
func (r *ObjectRegulator) idValue(properties common.Properties) (any, error) {
	field := r.entry.ValueField()
	value, ok := properties[field]
	if !ok || identity.IsMissing(value) {
		return field, nil
	}

	s, isString := value.(string)
	if !isString || !r.isDateTime(field) {
		return value, nil
	}
	t, err := time.Parse(DateTimeLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: id value %q: %v", ErrInvalidPropertyValue, s, err)
	}
	return decimal.NewFromInt(t.Unix()), nil
}

func (r *ObjectRegulator) isDateTime(field string) bool {
	for _, p := range r.entry.PropertyEntries() {
		if p.Name == field {
			return p.DataType == schema.TypeDateTime
		}
	}
	return false
}

// Redact replaces sensitive property values with vault tokens scoped to
// owner. Missing sensitive values get the missing marker instead.
func (r *ObjectRegulator) Redact(ctx context.Context, owner identity.InternalID, properties common.Properties) (common.Properties, error) {
	out := maps.Clone(properties)
	for _, p := range r.entry.PropertyEntries() {
		if !p.Sensitive {
			continue
		}
		value := out[p.Name]
		if value == nil {
			continue
		}
		if identity.IsMissing(value) {
			out[p.Name] = sensitive.MissingValueMarker
			continue
		}
		if !owner.IsSet() {
			return nil, fmt.Errorf("%w: property %s of %s", ErrUnresolvedIdentity, p.Name, r.entry.EntryName())
		}
		if r.vault == nil {
			return nil, ErrNoVault
		}
		token, err := sensitive.Redact(ctx, r.vault, p.Name, owner, value)
		if err != nil {
			return nil, fmt.Errorf("vault property %s: %w", p.Name, err)
		}
		out[p.Name] = token
	}
	return out, nil
}
