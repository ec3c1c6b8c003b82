// Package schema holds the declarative definition of the graph: vertex and
// edge types, their properties and indexes, and the linking rules that derive
// related vertexes from extracted data.
//
// A Schema is parsed once and never modified afterwards, so a single value is
// shared by every concurrent stage handler.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidSchema        = errors.New("invalid schema")
	ErrUnknownSpecifierType = errors.New("unknown target specifier type")
	ErrUnknownEntry         = errors.New("unknown schema entry")
)

type Schema struct {
	vertexes    map[string]*VertexEntry
	edges       map[string]*EdgeEntry
	vertexOrder []string
	edgeOrder   []string
}

type document struct {
	Vertex []*VertexEntry `json:"vertex"`
	Edge   []*EdgeEntry   `json:"edge"`
}

// Parse builds a Schema from a document with "vertex" and "edge" lists.
// References must already be resolved, see ResolveRefs.
func Parse(doc []byte) (*Schema, error) {
	var d document
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return build(d)
}

// New builds a Schema from already decoded entries.
func New(vertexes []*VertexEntry, edges []*EdgeEntry) (*Schema, error) {
	return build(document{Vertex: vertexes, Edge: edges})
}

func build(d document) (*Schema, error) {
	s := &Schema{
		vertexes: make(map[string]*VertexEntry, len(d.Vertex)),
		edges:    make(map[string]*EdgeEntry, len(d.Edge)),
	}

	for _, v := range d.Vertex {
		if v == nil || v.VertexName == "" {
			return nil, fmt.Errorf("%w: vertex entry without vertex_name", ErrInvalidSchema)
		}
		if _, dup := s.vertexes[v.VertexName]; dup {
			return nil, fmt.Errorf("%w: duplicate vertex %s", ErrInvalidSchema, v.VertexName)
		}
		s.vertexes[v.VertexName] = v
		s.vertexOrder = append(s.vertexOrder, v.VertexName)
	}
	for _, e := range d.Edge {
		if e == nil || e.EdgeLabel == "" {
			return nil, fmt.Errorf("%w: edge entry without edge_label", ErrInvalidSchema)
		}
		if _, dup := s.edges[e.EdgeLabel]; dup {
			return nil, fmt.Errorf("%w: duplicate edge %s", ErrInvalidSchema, e.EdgeLabel)
		}
		s.edges[e.EdgeLabel] = e
		s.edgeOrder = append(s.edgeOrder, e.EdgeLabel)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) validate() error {
	for _, name := range s.vertexOrder {
		v := s.vertexes[name]
		if err := validateProperties(name, v.VertexProperties); err != nil {
			return err
		}
		for _, index := range v.Indexes {
			if err := index.validate(); err != nil {
				return fmt.Errorf("vertex %s: %w", name, err)
			}
		}
		for _, set := range v.Rules.LinkingRules {
			for _, rule := range set.Rules() {
				if _, ok := s.vertexes[rule.TargetType]; !ok {
					return fmt.Errorf("%w: vertex %s: rule targets unknown vertex %q", ErrInvalidSchema, name, rule.TargetType)
				}
				if _, ok := s.edges[rule.EdgeType]; !ok {
					return fmt.Errorf("%w: vertex %s: rule uses unknown edge %q", ErrInvalidSchema, name, rule.EdgeType)
				}
				if rule.IfAbsent != "" && rule.IfAbsent != IfAbsentStub && rule.IfAbsent != IfAbsentPass {
					return fmt.Errorf("%w: vertex %s: unknown if_absent policy %q", ErrInvalidSchema, name, rule.IfAbsent)
				}
				for _, spec := range rule.TargetSpecifiers {
					if err := spec.validate(); err != nil {
						return fmt.Errorf("vertex %s: %w", name, err)
					}
				}
			}
		}
	}

	for _, label := range s.edgeOrder {
		e := s.edges[label]
		if len(e.From) == 0 || len(e.To) == 0 {
			return fmt.Errorf("%w: edge %s must declare from and to types", ErrInvalidSchema, label)
		}
		if err := validateProperties(label, e.EdgeProperties); err != nil {
			return err
		}
		for _, p := range e.EdgeProperties {
			if p.Source == nil {
				return fmt.Errorf("%w: edge %s property %s has no property_source", ErrInvalidSchema, label, p.Name)
			}
		}
		for _, index := range e.Indexes {
			if err := index.validate(); err != nil {
				return fmt.Errorf("edge %s: %w", label, err)
			}
		}
	}
	return nil
}

func validateProperties(owner string, properties []PropertyEntry) error {
	seen := make(map[string]bool, len(properties))
	for _, p := range properties {
		if p.Name == "" {
			return fmt.Errorf("%w: %s has a property without property_name", ErrInvalidSchema, owner)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %s declares property %s twice", ErrInvalidSchema, owner, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

func (s *Schema) Vertex(name string) (*VertexEntry, bool) {
	v, ok := s.vertexes[name]
	return v, ok
}

func (s *Schema) Edge(label string) (*EdgeEntry, bool) {
	e, ok := s.edges[label]
	return e, ok
}

// Entry looks a name up among vertexes first, then edges.
func (s *Schema) Entry(name string) (Entry, error) {
	if v, ok := s.vertexes[name]; ok {
		return v, nil
	}
	if e, ok := s.edges[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownEntry, name)
}

// Vertexes returns the vertex entries in declaration order.
func (s *Schema) Vertexes() []*VertexEntry {
	out := make([]*VertexEntry, 0, len(s.vertexOrder))
	for _, name := range s.vertexOrder {
		out = append(out, s.vertexes[name])
	}
	return out
}

// Edges returns the edge entries in declaration order.
func (s *Schema) Edges() []*EdgeEntry {
	out := make([]*EdgeEntry, 0, len(s.edgeOrder))
	for _, label := range s.edgeOrder {
		out = append(out, s.edges[label])
	}
	return out
}

// Indexes returns the indexes declared for an object type.
func (s *Schema) Indexes(objectType string) []IndexEntry {
	entry, err := s.Entry(objectType)
	if err != nil {
		return nil
	}
	return entry.IndexEntries()
}
