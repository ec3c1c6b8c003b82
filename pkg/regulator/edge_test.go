package regulator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/schema"
	"github.com/OFFIS-RIT/leech/pkg/schema/schematest"
)

func edgeRegulator(t *testing.T, s *schema.Schema, label string, registry *Registry) *EdgeRegulator {
	t.Helper()
	entry, ok := s.Edge(label)
	if !ok {
		t.Fatalf("fixture schema has no edge %s", label)
	}
	return NewEdgeRegulator(entry, NewObjectRegulator(entry, nil), registry)
}

type fixtureVertexes struct {
	external *common.PotentialVertex
	ada      *common.PotentialVertex
	grace    *common.PotentialVertex
	team     *common.PotentialVertex
}

func buildVertexes(t *testing.T, s *schema.Schema) fixtureVertexes {
	t.Helper()
	employees := vertexRegulator(t, s, "Employee", nil)
	return fixtureVertexes{
		external: regulate(t, vertexRegulator(t, s, "ExternalId", nil), externalIDRecord()),
		ada:      regulate(t, employees, map[string]any{"id_source": "Algernon", "emp_id": 1001, "first_name": "Ada"}),
		grace:    regulate(t, employees, map[string]any{"id_source": "Algernon", "emp_id": 1002, "first_name": "Grace"}),
		team: regulate(t, vertexRegulator(t, s, "Team", nil), map[string]any{
			"id_source": "Algernon",
			"team_name": "Engines",
		}),
	}
}

func TestGeneratePotentialEdgeOutbound(t *testing.T) {
	s := schematest.Load(t)
	v := buildVertexes(t, s)
	r := edgeRegulator(t, s, "_identifies_", nil)

	edge, err := r.GeneratePotentialEdge(context.Background(), v.external, v.ada, nil, false)
	if err != nil {
		t.Fatalf("GeneratePotentialEdge returned error: %v", err)
	}

	want := identity.ComputeInternalID(v.external.InternalID.String() + "_identifies_" + v.ada.InternalID.String())
	if edge.InternalID != want {
		t.Fatalf("unexpected edge id: got %s, want %s", edge.InternalID, want)
	}
	if edge.From != v.external.InternalID || edge.To != v.ada.InternalID {
		t.Fatalf("unexpected endpoints %s -> %s", edge.From, edge.To)
	}
	if edge.Properties["id_source"] != "Algernon" {
		t.Fatalf("expected id_source from the source vertex, got %#v", edge.Properties["id_source"])
	}
	if !edge.IsEdge() || edge.Label() != "_identifies_" {
		t.Fatalf("unexpected edge stem %v", edge.Stem)
	}
	if edge.IDValue != want.String() {
		t.Fatalf("edge id value should be its internal id, got %#v", edge.IDValue)
	}
}

func TestGeneratePotentialEdgeInbound(t *testing.T) {
	s := schematest.Load(t)
	v := buildVertexes(t, s)
	r := edgeRegulator(t, s, "_manages_", nil)

	// grace manages ada: the rule lives on ada and points inbound.
	edge, err := r.GeneratePotentialEdge(context.Background(), v.ada, v.grace, nil, true)
	if err != nil {
		t.Fatalf("GeneratePotentialEdge returned error: %v", err)
	}
	if edge.From != v.grace.InternalID || edge.To != v.ada.InternalID {
		t.Fatalf("inbound edge should run from the other vertex: %s -> %s", edge.From, edge.To)
	}
	want := identity.ComputeInternalID(v.grace.InternalID.String() + v.ada.InternalID.String())
	if edge.InternalID != want {
		t.Fatalf("unexpected edge id: got %s, want %s", edge.InternalID, want)
	}
}

func TestEdgeConstraintViolation(t *testing.T) {
	s := schematest.Load(t)
	v := buildVertexes(t, s)
	r := edgeRegulator(t, s, "_identifies_", nil)

	tests := []struct {
		name          string
		source, other *common.PotentialVertex
		inbound       bool
	}{
		{name: "wrong from type", source: v.team, other: v.ada},
		{name: "wrong to type", source: v.external, other: v.team},
		{name: "inbound does not rescue wrong types", source: v.team, other: v.ada, inbound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.GeneratePotentialEdge(context.Background(), tt.source, tt.other, nil, tt.inbound)
			if !errors.Is(err, ErrEdgeConstraintViolation) {
				t.Fatalf("expected ErrEdgeConstraintViolation, got %v", err)
			}
			var constraint *EdgeConstraintError
			if !errors.As(err, &constraint) || constraint.EdgeLabel != "_identifies_" {
				t.Fatalf("expected EdgeConstraintError naming the edge, got %v", err)
			}
		})
	}
}

func TestInboundAcceptsBothOrientations(t *testing.T) {
	s := schematest.Load(t)
	v := buildVertexes(t, s)
	r := edgeRegulator(t, s, "_identifies_", nil)

	tests := []struct {
		name          string
		source, other *common.PotentialVertex
		inbound       bool
		wantErr       bool
	}{
		{name: "concrete orientation inbound", source: v.external, other: v.ada, inbound: true},
		{name: "reversed orientation inbound", source: v.ada, other: v.external, inbound: true},
		{name: "reversed orientation outbound", source: v.ada, other: v.external, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.GeneratePotentialEdge(context.Background(), tt.source, tt.other, nil, tt.inbound)
			if tt.wantErr != errors.Is(err, ErrEdgeConstraintViolation) {
				t.Fatalf("wantErr %v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("GeneratePotentialEdge returned error: %v", err)
			}
		})
	}
}

func TestWildcardAcceptsAnyTarget(t *testing.T) {
	s := schematest.Load(t)
	v := buildVertexes(t, s)
	r := edgeRegulator(t, s, "_works_in_", nil)
	extracted := common.ExtractedData{"teams": []any{map[string]any{"team_name": "Engines", "role": "analyst"}}}

	for _, other := range []*common.PotentialVertex{v.team, v.external, v.grace} {
		edge, err := r.GeneratePotentialEdge(context.Background(), v.ada, other, extracted, false)
		if err != nil {
			t.Fatalf("wildcard edge to %s failed: %v", other.ObjectType, err)
		}
		if edge.Properties["role"] != "analyst" {
			t.Fatalf("unexpected role %#v", edge.Properties["role"])
		}
		want := identity.ComputeInternalID(v.ada.InternalID.String() + other.InternalID.String() + "analyst")
		if edge.InternalID != want {
			t.Fatalf("unexpected edge id for %s", other.ObjectType)
		}
	}
}

func TestAmbiguousExtraction(t *testing.T) {
	s := schematest.Load(t)
	v := buildVertexes(t, s)
	r := edgeRegulator(t, s, "_works_in_", nil)

	agreeing := common.ExtractedData{"teams": []any{
		map[string]any{"team_name": "Engines", "role": "analyst"},
		map[string]any{"team_name": "Looms", "role": "analyst"},
	}}
	if _, err := r.GeneratePotentialEdge(context.Background(), v.ada, v.team, agreeing, false); err != nil {
		t.Fatalf("agreeing extraction items should not be ambiguous: %v", err)
	}

	conflicting := common.ExtractedData{"teams": []any{
		map[string]any{"team_name": "Engines", "role": "analyst"},
		map[string]any{"team_name": "Looms", "role": "weaver"},
	}}
	_, err := r.GeneratePotentialEdge(context.Background(), v.ada, v.team, conflicting, false)
	if !errors.Is(err, ErrAmbiguousExtraction) {
		t.Fatalf("expected ErrAmbiguousExtraction, got %v", err)
	}
	if _, err := r.GenerateStubbedEdge(context.Background(), v.ada, v.team, conflicting, false); !errors.Is(err, ErrAmbiguousExtraction) {
		t.Fatalf("stub edges must not hide ambiguous extractions, got %v", err)
	}
}

func TestUnresolvedPropertyOnlyToleratedForStubs(t *testing.T) {
	s := schematest.Load(t)
	v := buildVertexes(t, s)
	r := edgeRegulator(t, s, "_works_in_", nil)

	_, err := r.GeneratePotentialEdge(context.Background(), v.ada, v.team, common.ExtractedData{}, false)
	if !errors.Is(err, ErrUnresolvedProperty) {
		t.Fatalf("expected ErrUnresolvedProperty, got %v", err)
	}

	edge, err := r.GenerateStubbedEdge(context.Background(), v.ada, v.team, common.ExtractedData{}, false)
	if err != nil {
		t.Fatalf("GenerateStubbedEdge returned error: %v", err)
	}
	if edge.Properties["role"] != nil {
		t.Fatalf("unresolved stub property should be null, got %#v", edge.Properties["role"])
	}
	if edge.IsInternalIDSet() {
		t.Fatalf("stub edge must not carry an internal id")
	}
	want := identity.ComputeInternalID("_works_in_", v.ada.InternalID.String(), v.team.InternalID.String())
	if edge.GraphID() != want {
		t.Fatalf("stub edge should be addressed by label and endpoints")
	}
}

func TestStubbedEdgeToStubVertex(t *testing.T) {
	s := schematest.Load(t)
	v := buildVertexes(t, s)
	stub := regulate(t, vertexRegulator(t, s, "Employee", nil), map[string]any{"id_source": "Algernon"})
	if !stub.IsStub() {
		t.Fatalf("expected a stub employee")
	}

	r := edgeRegulator(t, s, "_identifies_", nil)
	edge, err := r.GenerateStubbedEdge(context.Background(), v.external, stub, nil, false)
	if err != nil {
		t.Fatalf("GenerateStubbedEdge returned error: %v", err)
	}
	if edge.From != v.external.InternalID || edge.To != stub.GraphID() {
		t.Fatalf("unexpected stub edge endpoints %s -> %s", edge.From, edge.To)
	}
	if edge.Properties["id_source"] != "Algernon" {
		t.Fatalf("resolvable stub edge properties should be kept, got %#v", edge.Properties["id_source"])
	}
}

func TestEdgePropertyFunctions(t *testing.T) {
	entry := &schema.EdgeEntry{
		EdgeLabel:     "_scored_",
		From:          []string{schema.Wildcard},
		To:            []string{schema.Wildcard},
		InternalIDKey: []string{"from.internal_id", "to.internal_id", "weight"},
		EdgeProperties: []schema.PropertyEntry{
			{
				Name:     "weight",
				DataType: schema.TypeNumber,
				Source:   &schema.PropertySource{SourceType: schema.SourceFunction, FunctionName: "weight"},
			},
			{
				Name:     "anchor",
				DataType: schema.TypeNumber,
				Source:   &schema.PropertySource{SourceType: schema.SourceFunction, FunctionName: "source_id_value"},
			},
		},
	}
	s := schematest.Load(t)
	v := buildVertexes(t, s)

	registry := NewRegistry()
	var sawInbound bool
	registry.RegisterEdgeProperty("weight", func(source, other *common.PotentialVertex, extracted common.ExtractedData, e *schema.EdgeEntry, inbound bool) (any, error) {
		sawInbound = inbound
		return json.Number("0.75"), nil
	})
	r := NewEdgeRegulator(entry, NewObjectRegulator(entry, nil), registry)

	edge, err := r.GeneratePotentialEdge(context.Background(), v.ada, v.grace, nil, true)
	if err != nil {
		t.Fatalf("GeneratePotentialEdge returned error: %v", err)
	}
	if !sawInbound {
		t.Fatalf("function did not receive the inbound flag")
	}
	if got := identity.StringValue(edge.Properties["weight"]); got != "0.75" {
		t.Fatalf("unexpected weight %s", got)
	}
	// inbound: the id value comes from the other vertex
	if got := identity.StringValue(edge.Properties["anchor"]); got != "1002" {
		t.Fatalf("unexpected anchor %s", got)
	}

	missing := NewEdgeRegulator(entry, NewObjectRegulator(entry, nil), NewRegistry())
	if _, err := missing.GeneratePotentialEdge(context.Background(), v.ada, v.grace, nil, false); !errors.Is(err, ErrUnregisteredSpecifier) {
		t.Fatalf("expected ErrUnregisteredSpecifier, got %v", err)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Specifier("source_vertex_id_value"); err != nil {
		t.Fatalf("builtin specifier missing: %v", err)
	}
	if _, err := r.Specifier("nope"); !errors.Is(err, ErrUnregisteredSpecifier) {
		t.Fatalf("expected ErrUnregisteredSpecifier, got %v", err)
	}
	if _, err := r.EdgeProperty("now_utc"); err != nil {
		t.Fatalf("builtin edge property missing: %v", err)
	}
}
