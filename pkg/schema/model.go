package schema

import "slices"

// Declared property data types.
const (
	TypeNumber   = "Number"
	TypeString   = "String"
	TypeDateTime = "DateTime"
)

// Edge property sources.
const (
	SourceVertex      = "source_vertex"
	TargetVertex      = "target_vertex"
	SourceExtraction  = "extraction"
	SourceFunction    = "function"
	DefaultIDValueKey = "id_value"
)

// Wildcard accepts any vertex type in an edge's from or to set.
const Wildcard = "*"

// PropertySource tells the edge regulator where an edge property comes from.
type PropertySource struct {
	SourceType         string `json:"source_type"`
	VertexPropertyName string `json:"vertex_property_name,omitempty"`
	ExtractionName     string `json:"extraction_name,omitempty"`
	FunctionName       string `json:"function_name,omitempty"`
}

type PropertyEntry struct {
	Name      string          `json:"property_name"`
	DataType  string          `json:"property_data_type"`
	Sensitive bool            `json:"sensitive"`
	Source    *PropertySource `json:"property_source,omitempty"`
}

// ExtractionInstruction names an extraction bucket a source driver gathers
// alongside the record.
type ExtractionInstruction struct {
	Source     string         `json:"extraction_source"`
	Properties map[string]any `json:"extraction_properties,omitempty"`
}

// Entry is what the regulators need from a vertex or edge definition.
type Entry interface {
	EntryName() string
	PropertyEntries() []PropertyEntry
	KeyFields() []string
	StemFields() []string
	ValueField() string
	IndexEntries() []IndexEntry
	// Attribute resolves "schema.<name>" tokens in edge key fields.
	Attribute(name string) (string, bool)
}

// VertexEntry defines one vertex type.
type VertexEntry struct {
	VertexName       string                  `json:"vertex_name"`
	VertexProperties []PropertyEntry         `json:"vertex_properties"`
	InternalIDKey    []string                `json:"internal_id_key"`
	IdentifierStem   []string                `json:"identifier_stem"`
	IDValueField     string                  `json:"id_value_field,omitempty"`
	Indexes          []IndexEntry            `json:"indexes"`
	Rules            VertexRules             `json:"rules"`
	Extract          []ExtractionInstruction `json:"extract"`
}

func (v *VertexEntry) EntryName() string                { return v.VertexName }
func (v *VertexEntry) PropertyEntries() []PropertyEntry { return v.VertexProperties }
func (v *VertexEntry) KeyFields() []string              { return v.InternalIDKey }
func (v *VertexEntry) StemFields() []string             { return v.IdentifierStem }
func (v *VertexEntry) IndexEntries() []IndexEntry       { return v.Indexes }

// ValueField is the property holding the vertex's natural key. Without an
// explicit declaration the score field of the first sorted set index is used.
func (v *VertexEntry) ValueField() string {
	if v.IDValueField != "" {
		return v.IDValueField
	}
	for _, index := range v.Indexes {
		if index.Type == IndexSortedSet && index.ScoreField != "" {
			return index.ScoreField
		}
	}
	return DefaultIDValueKey
}

func (v *VertexEntry) Attribute(name string) (string, bool) {
	switch name {
	case "vertex_name", "object_type", "entry_name":
		return v.VertexName, true
	case "id_value_field":
		return v.ValueField(), true
	}
	return "", false
}

// Property returns the declaration of a single property.
func (v *VertexEntry) Property(name string) (PropertyEntry, bool) {
	return findProperty(v.VertexProperties, name)
}

// EdgeEntry defines one edge label and the vertex types it may join.
type EdgeEntry struct {
	EdgeLabel      string          `json:"edge_label"`
	From           []string        `json:"from"`
	To             []string        `json:"to"`
	EdgeProperties []PropertyEntry `json:"edge_properties"`
	InternalIDKey  []string        `json:"internal_id_key"`
	Indexes        []IndexEntry    `json:"indexes"`
}

func (e *EdgeEntry) EntryName() string                { return e.EdgeLabel }
func (e *EdgeEntry) PropertyEntries() []PropertyEntry { return e.EdgeProperties }
func (e *EdgeEntry) KeyFields() []string              { return e.InternalIDKey }
func (e *EdgeEntry) StemFields() []string             { return nil }
func (e *EdgeEntry) ValueField() string               { return "internal_id" }
func (e *EdgeEntry) IndexEntries() []IndexEntry       { return e.Indexes }

func (e *EdgeEntry) Attribute(name string) (string, bool) {
	switch name {
	case "edge_label", "object_type", "entry_name":
		return e.EdgeLabel, true
	}
	return "", false
}

func (e *EdgeEntry) AcceptsFrom(vertexType string) bool {
	return accepts(e.From, vertexType)
}

func (e *EdgeEntry) AcceptsTo(vertexType string) bool {
	return accepts(e.To, vertexType)
}

func accepts(accepted []string, vertexType string) bool {
	return slices.Contains(accepted, Wildcard) || slices.Contains(accepted, vertexType)
}

func findProperty(properties []PropertyEntry, name string) (PropertyEntry, bool) {
	for _, p := range properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertyEntry{}, false
}
