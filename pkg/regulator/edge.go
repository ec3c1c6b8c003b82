package regulator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/schema"
)

// Key field prefixes of an edge's internal_id_key.
const (
	keyPrefixTo     = "to."
	keyPrefixFrom   = "from."
	keyPrefixSchema = "schema."
)

// EdgeRegulator builds edges of one label between a source vertex and the
// vertex a link rule identified for it.
//
// inbound flips the roles: the other vertex becomes the edge's "from" end
// and the source vertex its "to" end.
type EdgeRegulator struct {
	entry    *schema.EdgeEntry
	object   *ObjectRegulator
	registry *Registry
}

func NewEdgeRegulator(entry *schema.EdgeEntry, object *ObjectRegulator, registry *Registry) *EdgeRegulator {
	if registry == nil {
		registry = NewRegistry()
	}
	return &EdgeRegulator{entry: entry, object: object, registry: registry}
}

// GeneratePotentialEdge builds the edge between source and other. An edge
// property that cannot be resolved fails the call. A key field that cannot
// be resolved leaves the edge's internal id unresolved.
func (r *EdgeRegulator) GeneratePotentialEdge(
	ctx context.Context,
	source, other *common.PotentialVertex,
	extracted common.ExtractedData,
	inbound bool,
) (*common.PotentialEdge, error) {
	label := r.entry.EdgeLabel

	raw, err := r.edgeProperties(source, other, extracted, inbound, false)
	if err != nil {
		return nil, fmt.Errorf("edge %s: %w", label, err)
	}
	properties, err := r.object.StandardizeProperties(raw)
	if err != nil {
		return nil, fmt.Errorf("edge %s: %w", label, err)
	}
	if err := r.validateEndpoints(source, other, inbound); err != nil {
		return nil, err
	}

	internalID := r.internalID(source, other, properties, inbound)
	properties, err = r.object.Redact(ctx, internalID, properties)
	if err != nil {
		return nil, fmt.Errorf("edge %s: %w", label, err)
	}

	from, to := source.GraphID(), other.GraphID()
	if inbound {
		from, to = to, from
	}
	return common.NewPotentialEdge(label, internalID, properties, from, to), nil
}

// GenerateStubbedEdge builds an edge to a stub vertex. Properties that
// cannot be resolved are null and the edge keeps no internal id; it is
// addressed by label and endpoints.
func (r *EdgeRegulator) GenerateStubbedEdge(
	ctx context.Context,
	source, stub *common.PotentialVertex,
	extracted common.ExtractedData,
	inbound bool,
) (*common.PotentialEdge, error) {
	label := r.entry.EdgeLabel

	raw, err := r.edgeProperties(source, stub, extracted, inbound, true)
	if err != nil {
		return nil, fmt.Errorf("stub edge %s: %w", label, err)
	}
	properties, err := r.object.StandardizeProperties(raw)
	if err != nil {
		return nil, fmt.Errorf("stub edge %s: %w", label, err)
	}
	if err := r.validateEndpoints(source, stub, inbound); err != nil {
		return nil, err
	}
	properties, err = r.object.Redact(ctx, "", properties)
	if err != nil {
		return nil, fmt.Errorf("stub edge %s: %w", label, err)
	}

	from, to := source.GraphID(), stub.GraphID()
	if inbound {
		from, to = to, from
	}
	return common.NewPotentialEdge(label, "", properties, from, to), nil
}

func (r *EdgeRegulator) edgeProperties(
	source, other *common.PotentialVertex,
	extracted common.ExtractedData,
	inbound, forStub bool,
) (map[string]any, error) {
	out := make(map[string]any, len(r.entry.EdgeProperties))
	for _, p := range r.entry.EdgeProperties {
		value, err := r.edgeProperty(p, source, other, extracted, inbound)
		if errors.Is(err, ErrUnresolvedProperty) && forStub {
			value, err = nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", p.Name, err)
		}
		out[p.Name] = value
	}
	return out, nil
}

func (r *EdgeRegulator) edgeProperty(
	p schema.PropertyEntry,
	source, other *common.PotentialVertex,
	extracted common.ExtractedData,
	inbound bool,
) (any, error) {
	if p.Source == nil {
		return nil, fmt.Errorf("%w: no property_source", ErrUnresolvedProperty)
	}
	switch p.Source.SourceType {
	case schema.SourceVertex:
		return vertexHeldProperty(p.Source.VertexPropertyName, source, other, inbound)
	case schema.TargetVertex:
		return vertexHeldProperty(p.Source.VertexPropertyName, other, source, inbound)
	case schema.SourceExtraction:
		return extractedProperty(p.Name, p.Source.ExtractionName, extracted)
	case schema.SourceFunction:
		fn, err := r.registry.EdgeProperty(p.Source.FunctionName)
		if err != nil {
			return nil, err
		}
		return fn(source, other, extracted, r.entry, inbound)
	}
	return nil, fmt.Errorf("%w: source type %q", ErrUnsupportedDataType, p.Source.SourceType)
}

// vertexHeldProperty reads field off holder, or off other for inbound rules.
func vertexHeldProperty(field string, holder, other *common.PotentialVertex, inbound bool) (any, error) {
	if inbound {
		holder = other
	}
	value, ok := holder.Get(field)
	if !ok || identity.IsMissing(value) {
		return nil, fmt.Errorf("%w: %s has no %s", ErrUnresolvedProperty, holder, field)
	}
	return value, nil
}

// extractedProperty reads field from every item of an extraction bucket.
// All items must agree on the value.
func extractedProperty(field, bucketName string, extracted common.ExtractedData) (any, error) {
	bucket, ok := extracted.Bucket(bucketName)
	if !ok {
		return nil, fmt.Errorf("%w: extraction %s not in extracted data", ErrUnresolvedProperty, bucketName)
	}

	var (
		value any
		seen  = make(map[string]struct{})
	)
	for _, item := range bucket {
		v, ok := item[field]
		if !ok {
			return nil, fmt.Errorf("%w: extraction %s has an item without %s", ErrUnresolvedProperty, bucketName, field)
		}
		key := identity.StringValue(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		value = v
	}
	if len(seen) > 1 {
		return nil, fmt.Errorf("%w: %s.%s has %d values", ErrAmbiguousExtraction, bucketName, field, len(seen))
	}
	return value, nil
}

// validateEndpoints checks the concrete source and other types against the
// entry. Inbound rules may also match with the roles reversed.
func (r *EdgeRegulator) validateEndpoints(source, other *common.PotentialVertex, inbound bool) error {
	sourceType, otherType := source.ObjectType, other.ObjectType
	if r.entry.AcceptsFrom(sourceType) && r.entry.AcceptsTo(otherType) {
		return nil
	}
	if inbound && r.entry.AcceptsFrom(otherType) && r.entry.AcceptsTo(sourceType) {
		return nil
	}
	return &EdgeConstraintError{
		EdgeLabel:    r.entry.EdgeLabel,
		FromType:     sourceType,
		ToType:       otherType,
		AcceptedFrom: r.entry.From,
		AcceptedTo:   r.entry.To,
	}
}

// internalID resolves the key fields in order. Each field names a property
// of the "to" or "from" vertex, a schema attribute, or an edge property.
func (r *EdgeRegulator) internalID(source, other *common.PotentialVertex, properties common.Properties, inbound bool) identity.InternalID {
	from, to := source, other
	if inbound {
		from, to = other, source
	}

	values := make([]string, 0, len(r.entry.InternalIDKey))
	for _, field := range r.entry.InternalIDKey {
		var (
			value any
			ok    bool
		)
		switch {
		case strings.HasPrefix(field, keyPrefixTo):
			value, ok = to.Get(strings.TrimPrefix(field, keyPrefixTo))
		case strings.HasPrefix(field, keyPrefixFrom):
			value, ok = from.Get(strings.TrimPrefix(field, keyPrefixFrom))
		case strings.HasPrefix(field, keyPrefixSchema):
			value, ok = r.entry.Attribute(strings.TrimPrefix(field, keyPrefixSchema))
		default:
			value, ok = properties[field]
		}
		if !ok || identity.IsMissing(value) {
			return ""
		}
		values = append(values, identity.KeyValue(value))
	}
	return identity.ComputeInternalID(strings.Join(values, ""))
}
