package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Target specifier kinds.
const (
	SpecifierFunction       = "function"
	SpecifierSharedProperty = "shared_property"
	SpecifierExtraction     = "extraction"
)

// If-absent policies for link rules.
const (
	IfAbsentStub = "stub"
	IfAbsentPass = "pass"
)

// SourceConstantPrefix marks a target constant that is read off the source
// vertex, as in "source.id_source".
const SourceConstantPrefix = "source."

type VertexRules struct {
	LinkingRules []LinkRuleSet `json:"linking_rules"`
}

// VertexSpecifier gates a rule set on the extracted data. With only
// Extraction set it requires that bucket to be present; with Field set it
// requires the field to be present in the bucket ("source" when Extraction is
// empty), and to equal Value when Value is given.
type VertexSpecifier struct {
	Extraction string `json:"extraction,omitempty"`
	Field      string `json:"field,omitempty"`
	Value      any    `json:"value,omitempty"`
}

// UnmarshalJSON also accepts a bare string naming a required bucket.
func (v *VertexSpecifier) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*v = VertexSpecifier{Extraction: name}
		return nil
	}
	type plain VertexSpecifier
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = VertexSpecifier(p)
	return nil
}

// LinkRuleSet groups rules that share a vertex specifier gate.
type LinkRuleSet struct {
	VertexSpecifiers []VertexSpecifier `json:"vertex_specifiers"`
	Outbound         []LinkRuleEntry   `json:"outbound"`
	Inbound          []LinkRuleEntry   `json:"inbound"`
}

// UnmarshalJSON sets the direction of every rule from the list it is in.
func (s *LinkRuleSet) UnmarshalJSON(data []byte) error {
	type plain LinkRuleSet
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	for i := range p.Outbound {
		p.Outbound[i].Inbound = false
	}
	for i := range p.Inbound {
		p.Inbound[i].Inbound = true
	}
	*s = LinkRuleSet(p)
	return nil
}

// Rules returns outbound rules followed by inbound rules.
func (s LinkRuleSet) Rules() []LinkRuleEntry {
	out := make([]LinkRuleEntry, 0, len(s.Outbound)+len(s.Inbound))
	out = append(out, s.Outbound...)
	return append(out, s.Inbound...)
}

type TargetConstant struct {
	Name  string `json:"constant_name"`
	Value any    `json:"constant_value"`
}

// SourceField returns the source vertex field a "source.<field>" constant
// refers to.
func (c TargetConstant) SourceField() (string, bool) {
	s, ok := c.Value.(string)
	if !ok || !strings.HasPrefix(s, SourceConstantPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, SourceConstantPrefix), true
}

// TargetSpecifier produces candidate field mappings for a rule's target.
type TargetSpecifier struct {
	Type                string   `json:"specifier_type"`
	Name                string   `json:"specifier_name,omitempty"`
	FunctionName        string   `json:"function_name,omitempty"`
	SharedProperties    []string `json:"shared_properties,omitempty"`
	ExtractionName      string   `json:"extraction_name,omitempty"`
	ExtractedProperties []string `json:"extracted_properties,omitempty"`
}

// LinkRuleEntry derives related vertexes of TargetType and joins them to the
// source vertex with an EdgeType edge.
type LinkRuleEntry struct {
	TargetType       string            `json:"target_type"`
	EdgeType         string            `json:"edge_type"`
	Inbound          bool              `json:"inbound"`
	IfAbsent         string            `json:"if_absent"`
	TargetSpecifiers []TargetSpecifier `json:"target_specifiers"`
	TargetConstants  []TargetConstant  `json:"target_constants"`
}

// IsStub reports whether the rule allows a stub target when nothing matches.
func (r LinkRuleEntry) IsStub() bool {
	return r.IfAbsent == IfAbsentStub
}

func (r LinkRuleEntry) String() string {
	direction := "outbound"
	if r.Inbound {
		direction = "inbound"
	}
	return fmt.Sprintf("%s %s -> %s", direction, r.EdgeType, r.TargetType)
}

func (t TargetSpecifier) validate() error {
	switch t.Type {
	case SpecifierFunction:
		if t.FunctionName == "" {
			return fmt.Errorf("%w: function specifier without function_name", ErrInvalidSchema)
		}
	case SpecifierSharedProperty:
		if len(t.SharedProperties) == 0 {
			return fmt.Errorf("%w: shared_property specifier without shared_properties", ErrInvalidSchema)
		}
	case SpecifierExtraction:
		if t.ExtractionName == "" {
			return fmt.Errorf("%w: extraction specifier without extraction_name", ErrInvalidSchema)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSpecifierType, t.Type)
	}
	return nil
}
