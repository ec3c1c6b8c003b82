// Package arbiter applies a vertex's linking rules to the data extracted
// alongside it and regulates the related vertexes the rules describe.
package arbiter

import (
	"context"
	"fmt"
	"maps"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/regulator"
	"github.com/OFFIS-RIT/leech/pkg/schema"
	"github.com/OFFIS-RIT/leech/pkg/sensitive"
)

// Candidate is a potential vertex paired with the rule that produced it.
type Candidate struct {
	Vertex *common.PotentialVertex
	Rule   schema.LinkRuleEntry
}

// Predicate decides whether a rule set applies to the extracted data.
type Predicate func(extracted common.ExtractedData, specifiers []schema.VertexSpecifier) bool

// Option configures a RuleArbiter.
type Option func(*RuleArbiter)

// WithPredicate replaces the vertex specifier predicate.
func WithPredicate(p Predicate) Option {
	return func(a *RuleArbiter) {
		a.predicate = p
	}
}

type RuleArbiter struct {
	schema    *schema.Schema
	registry  *regulator.Registry
	vault     sensitive.Vault
	predicate Predicate
}

func New(s *schema.Schema, registry *regulator.Registry, vault sensitive.Vault, opts ...Option) *RuleArbiter {
	a := &RuleArbiter{
		schema:    s,
		registry:  registry,
		vault:     vault,
		predicate: MatchSpecifiers,
	}
	if a.registry == nil {
		a.registry = regulator.NewRegistry()
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ProcessRules runs every rule of every matching rule set of entry. A vertex
// without applicable rules yields no candidates and no error.
func (a *RuleArbiter) ProcessRules(
	ctx context.Context,
	source *common.PotentialVertex,
	entry *schema.VertexEntry,
	extracted common.ExtractedData,
) ([]Candidate, error) {
	var out []Candidate
	for _, set := range entry.Rules.LinkingRules {
		if !a.predicate(extracted, set.VertexSpecifiers) {
			logger.Debug("[Arbiter] Rule set does not apply", "vertex", entry.VertexName, "specifiers", len(set.VertexSpecifiers))
			continue
		}
		for _, rule := range set.Rules() {
			candidates, err := a.processRule(ctx, source, rule, extracted)
			if err != nil {
				return nil, fmt.Errorf("%s rule %s: %w", entry.VertexName, rule, err)
			}
			out = append(out, candidates...)
		}
	}
	return out, nil
}

func (a *RuleArbiter) processRule(
	ctx context.Context,
	source *common.PotentialVertex,
	rule schema.LinkRuleEntry,
	extracted common.ExtractedData,
) ([]Candidate, error) {
	target, ok := a.schema.Vertex(rule.TargetType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownEntry, rule.TargetType)
	}
	objects := regulator.NewObjectRegulator(target, a.vault)
	constants := resolveConstants(rule.TargetConstants, source)

	var out []Candidate
	for _, specifier := range rule.TargetSpecifiers {
		mappings, err := a.specify(specifier, rule, constants, source, extracted)
		if err != nil {
			return nil, err
		}
		for _, mapping := range mappings {
			record := maps.Clone(mapping)
			if record == nil {
				record = make(map[string]any, len(constants))
			}
			maps.Copy(record, constants)

			object, err := objects.CreatePotentialVertexData(ctx, record, regulator.Supplied{})
			if err != nil {
				return nil, err
			}
			out = append(out, Candidate{Vertex: common.NewPotentialVertex(object), Rule: rule})
		}
	}
	return out, nil
}

// resolveConstants replaces "source.<field>" constants with the source
// vertex's value. Other constants are taken literally.
func resolveConstants(constants []schema.TargetConstant, source *common.PotentialVertex) map[string]any {
	out := make(map[string]any, len(constants))
	for _, c := range constants {
		field, fromSource := c.SourceField()
		if !fromSource {
			out[c.Name] = c.Value
			continue
		}
		value, ok := source.Get(field)
		if !ok {
			value = identity.MissingProperty
		}
		out[c.Name] = value
	}
	return out
}

func (a *RuleArbiter) specify(
	specifier schema.TargetSpecifier,
	rule schema.LinkRuleEntry,
	constants map[string]any,
	source *common.PotentialVertex,
	extracted common.ExtractedData,
) ([]map[string]any, error) {
	switch specifier.Type {
	case schema.SpecifierFunction:
		fn, err := a.registry.Specifier(specifier.FunctionName)
		if err != nil {
			return nil, err
		}
		return fn(extracted, rule, maps.Clone(constants), source)
	case schema.SpecifierSharedProperty:
		return []map[string]any{sharedProperties(specifier.SharedProperties, source)}, nil
	case schema.SpecifierExtraction:
		return extractedMappings(specifier, extracted), nil
	}
	return nil, fmt.Errorf("%w: %q", schema.ErrUnknownSpecifierType, specifier.Type)
}

func sharedProperties(fields []string, source *common.PotentialVertex) map[string]any {
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		if value, ok := source.Get(field); ok {
			out[field] = value
		}
	}
	return out
}

// extractedMappings yields one mapping per item of the named bucket. Only
// the listed properties are kept; an empty list keeps the whole item.
func extractedMappings(specifier schema.TargetSpecifier, extracted common.ExtractedData) []map[string]any {
	bucket, ok := extracted.Bucket(specifier.ExtractionName)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(bucket))
	for _, item := range bucket {
		if len(specifier.ExtractedProperties) == 0 {
			out = append(out, maps.Clone(item))
			continue
		}
		mapping := make(map[string]any, len(specifier.ExtractedProperties))
		for _, field := range specifier.ExtractedProperties {
			if value, ok := item[field]; ok {
				mapping[field] = value
			}
		}
		out = append(out, mapping)
	}
	return out
}
