package regulator

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/schema"
)

// SpecifierFunc produces raw field mappings for the target of a link rule.
// constants holds the rule's resolved target constants.
type SpecifierFunc func(
	extracted common.ExtractedData,
	rule schema.LinkRuleEntry,
	constants map[string]any,
	source *common.PotentialVertex,
) ([]map[string]any, error)

// EdgePropertyFunc derives the value of an edge property.
type EdgePropertyFunc func(
	source *common.PotentialVertex,
	other *common.PotentialVertex,
	extracted common.ExtractedData,
	entry *schema.EdgeEntry,
	inbound bool,
) (any, error)

// Registry maps the function names a schema refers to onto Go functions.
// Populate it at startup; it is not safe to register while stages run.
type Registry struct {
	specifiers     map[string]SpecifierFunc
	edgeProperties map[string]EdgePropertyFunc
}

// NewRegistry returns a registry holding the built-in functions.
func NewRegistry() *Registry {
	r := &Registry{
		specifiers:     make(map[string]SpecifierFunc),
		edgeProperties: make(map[string]EdgePropertyFunc),
	}
	r.RegisterSpecifier("source_vertex_id_value", sourceVertexIDValue)
	r.RegisterEdgeProperty("source_id_value", sourceIDValue)
	r.RegisterEdgeProperty("now_utc", nowUTC)
	return r
}

func (r *Registry) RegisterSpecifier(name string, fn SpecifierFunc) {
	r.specifiers[name] = fn
}

func (r *Registry) RegisterEdgeProperty(name string, fn EdgePropertyFunc) {
	r.edgeProperties[name] = fn
}

func (r *Registry) Specifier(name string) (SpecifierFunc, error) {
	fn, ok := r.specifiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredSpecifier, name)
	}
	return fn, nil
}

func (r *Registry) EdgeProperty(name string) (EdgePropertyFunc, error) {
	fn, ok := r.edgeProperties[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredSpecifier, name)
	}
	return fn, nil
}

// sourceVertexIDValue points the target at the source vertex's natural key.
func sourceVertexIDValue(_ common.ExtractedData, _ schema.LinkRuleEntry, _ map[string]any, source *common.PotentialVertex) ([]map[string]any, error) {
	if !source.IsIDValueSet() {
		return nil, nil
	}
	return []map[string]any{{source.IDValueField: source.IDValue}}, nil
}

func sourceIDValue(source, other *common.PotentialVertex, _ common.ExtractedData, _ *schema.EdgeEntry, inbound bool) (any, error) {
	holder := source
	if inbound {
		holder = other
	}
	if !holder.IsIDValueSet() {
		return nil, fmt.Errorf("%w: %s has no id value", ErrUnresolvedProperty, holder)
	}
	return holder.IDValue, nil
}

func nowUTC(*common.PotentialVertex, *common.PotentialVertex, common.ExtractedData, *schema.EdgeEntry, bool) (any, error) {
	return time.Now().UTC(), nil
}
