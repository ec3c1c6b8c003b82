package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/logger/logtest"
	"github.com/OFFIS-RIT/leech/pkg/regulator"
	"github.com/OFFIS-RIT/leech/pkg/schema"
	"github.com/OFFIS-RIT/leech/pkg/schema/schematest"
	"github.com/OFFIS-RIT/leech/pkg/sensitive"
)

type harness struct {
	tasks     *Tasks
	publisher *memoryPublisher
	index     *memoryIndex
	graph     *memoryGraph
	locker    *recordingLocker
	vault     *sensitive.MemoryVault
	schema    *schema.Schema
	log       *logtest.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		publisher: &memoryPublisher{},
		index:     newMemoryIndex(),
		graph:     newMemoryGraph(),
		locker:    &recordingLocker{},
		vault:     sensitive.NewMemoryVault(),
		schema:    schematest.Load(t),
		log:       &logtest.Recorder{},
	}
	logger.Init(h.log)
	t.Cleanup(func() { logger.Init() })

	h.tasks = New(h.schema, NewAnnouncer(h.publisher, mainQueue, isolatedQueue),
		WithVault(h.vault),
		WithIndex(h.index),
		WithGraph(h.graph),
		WithLocker(h.locker),
	)
	return h
}

// drain runs published messages until the bus is empty and returns how many
// were handled per stage.
func (h *harness) drain(t *testing.T) map[Stage]int {
	t.Helper()
	handled := map[Stage]int{}
	for i := 0; ; i++ {
		if i > 100 {
			t.Fatalf("pipeline did not settle")
		}
		m, ok := h.publisher.pop()
		if !ok {
			return handled
		}
		if m.eventKind != EventKind {
			t.Fatalf("unexpected event kind %q", m.eventKind)
		}
		msg, err := DecodeStageMessage(m.payload)
		if err != nil {
			t.Fatalf("DecodeStageMessage returned error: %v", err)
		}
		wantDestination := mainQueue
		if msg.Stage == StageGraph {
			wantDestination = isolatedQueue
		}
		if m.destination != wantDestination {
			t.Fatalf("%s published to %s, want %s", msg.Stage, m.destination, wantDestination)
		}
		if err := h.tasks.Handle(context.Background(), msg); err != nil {
			t.Fatalf("Handle(%s) returned error: %v", msg.Stage, err)
		}
		handled[msg.Stage]++
	}
}

func (h *harness) start(t *testing.T, payload any) {
	t.Helper()
	msg, err := NewStageMessage(payload)
	if err != nil {
		t.Fatalf("NewStageMessage returned error: %v", err)
	}
	if err := h.tasks.announcer.Announce(context.Background(), msg); err != nil {
		t.Fatalf("Announce returned error: %v", err)
	}
}

func externalIDExtraction() common.ExtractedData {
	return common.ExtractedData{
		"source": map[string]any{
			"id_source": "Algernon",
			"id_type":   "Employees",
			"id_name":   "emp_id",
			"id_value":  json.Number("1001"),
		},
		"employee": []any{map[string]any{
			"emp_id":     json.Number("1001"),
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"ssn":        "123-45-6789",
			"hire_date":  "2019-05-01",
		}},
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.start(t, &GenerateSourceVertex{SchemaEntry: "ExternalId", ExtractedData: externalIDExtraction()})

	handled := h.drain(t)
	want := map[Stage]int{
		StageGenerateSourceVertex:       1,
		StageDerivePotentialConnections: 1,
		StageCheckForExistingVertexes:   1,
		StageGeneratePotentialEdge:      1,
		StageIndex:                      2,
		StageGraph:                      2,
	}
	for stage, n := range want {
		if handled[stage] != n {
			t.Fatalf("expected %d %s messages, got %d (%v)", n, stage, handled[stage], handled)
		}
	}

	if h.index.len() != 3 {
		t.Fatalf("expected source, employee and edge indexed, got %d objects", h.index.len())
	}
	if n := h.log.Count("warn", "already indexed"); n != 1 {
		t.Fatalf("expected one warning for the re-indexed source vertex, got %d", n)
	}
	if len(h.graph.vertexes) != 2 || len(h.graph.edges) != 1 {
		t.Fatalf("unexpected graph: %d vertexes, %d edges", len(h.graph.vertexes), len(h.graph.edges))
	}

	employee := identity.ComputeInternalID("Algernonemp_id1001")
	if _, ok := h.graph.vertexes[employee]; !ok {
		t.Fatalf("employee %s missing from the graph", employee)
	}
	for _, edge := range h.graph.edges {
		if edge.Label() != "_identifies_" || edge.To != employee {
			t.Fatalf("unexpected edge %s", edge)
		}
	}
	if h.vault.Len() != 1 {
		t.Fatalf("expected the employee ssn in the vault, got %d entries", h.vault.Len())
	}

	// two vertex upserts and one edge upsert per graph message with a link
	if len(h.locker.keys) != 4 {
		t.Fatalf("expected four leases, got %v", h.locker.keys)
	}
	for _, key := range h.locker.keys {
		if !strings.HasPrefix(key, "graph:") {
			t.Fatalf("unexpected lease key %q", key)
		}
	}
}

func TestIndexTwiceKeepsOneRecord(t *testing.T) {
	h := newHarness(t)
	team := regulateVertex(t, h, "Team", map[string]any{"id_source": "Algernon", "team_name": "Engines"})

	for range 2 {
		msg, err := NewObjectsMessage(StageIndex, &Objects{SourceVertex: team})
		if err != nil {
			t.Fatalf("NewObjectsMessage returned error: %v", err)
		}
		if err := h.tasks.Handle(context.Background(), msg); err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
	}
	if h.index.len() != 1 {
		t.Fatalf("expected one stored record, got %d", h.index.len())
	}
	if n := h.log.Count("warn", "already indexed"); n != 1 {
		t.Fatalf("expected one warning, got %d", n)
	}
}

func regulateVertex(t *testing.T, h *harness, name string, record map[string]any) *common.PotentialVertex {
	t.Helper()
	entry, ok := h.schema.Vertex(name)
	if !ok {
		t.Fatalf("fixture schema has no vertex %s", name)
	}
	object, err := regulator.NewObjectRegulator(entry, h.vault).CreatePotentialVertexData(context.Background(), record, regulator.Supplied{})
	if err != nil {
		t.Fatalf("regulate %s: %v", name, err)
	}
	return common.NewPotentialVertex(object)
}

func TestCheckForExistingVertexes(t *testing.T) {
	h := newHarness(t)
	source := regulateVertex(t, h, "ExternalId", externalIDExtraction()["source"].(map[string]any))
	ada := regulateVertex(t, h, "Employee", map[string]any{
		"id_source":  "Algernon",
		"emp_id":     1001,
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"ssn":        "123-45-6789",
		"hire_date":  "2019-05-01",
	})
	if err := h.index.IndexObject(context.Background(), ada); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	lovelace := regulateVertex(t, h, "Employee", map[string]any{"id_source": "Algernon", "last_name": "Lovelace"})
	byron := regulateVertex(t, h, "Employee", map[string]any{"id_source": "Algernon", "last_name": "Byron"})

	rule := func(ifAbsent string) schema.LinkRuleEntry {
		return schema.LinkRuleEntry{TargetType: "Employee", EdgeType: "_identifies_", IfAbsent: ifAbsent}
	}

	tests := []struct {
		name      string
		candidate *common.PotentialVertex
		rule      schema.LinkRuleEntry
		want      []identity.InternalID
	}{
		{name: "complete candidate", candidate: ada, rule: rule(schema.IfAbsentPass), want: []identity.InternalID{ada.InternalID}},
		{name: "matched in index", candidate: lovelace, rule: rule(schema.IfAbsentPass), want: []identity.InternalID{ada.InternalID}},
		{name: "stub allowed", candidate: byron, rule: rule(schema.IfAbsentStub), want: []identity.InternalID{byron.GraphID()}},
		{name: "dropped", candidate: byron, rule: rule(schema.IfAbsentPass)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.publisher.messages = nil
			msg, err := NewStageMessage(&CheckForExistingVertexes{
				SchemaEntry:     "ExternalId",
				SourceVertex:    source,
				PotentialVertex: tt.candidate,
				RuleEntry:       tt.rule,
				ExtractedData:   common.ExtractedData{},
			})
			if err != nil {
				t.Fatalf("NewStageMessage returned error: %v", err)
			}
			if err := h.tasks.Handle(context.Background(), msg); err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}

			edges := h.publisher.decoded(t, StageGeneratePotentialEdge)
			if len(edges) != len(tt.want) {
				t.Fatalf("expected %d edge messages, got %d", len(tt.want), len(edges))
			}
			for i, m := range edges {
				if got := m.GeneratePotentialEdge.IdentifiedVertex.GraphID(); got != tt.want[i] {
					t.Fatalf("unexpected identified vertex %s, want %s", got, tt.want[i])
				}
			}
		})
	}
}

func TestGenerateSourceVertexSuppliedIdentity(t *testing.T) {
	h := newHarness(t)
	supplied := identity.ComputeInternalID("known")
	h.start(t, &GenerateSourceVertex{
		SchemaEntry:   "ExternalId",
		ExtractedData: externalIDExtraction(),
		InternalID:    supplied,
		IDValue:       json.RawMessage("42"),
	})
	m, _ := h.publisher.pop()
	msg, err := DecodeStageMessage(m.payload)
	if err != nil {
		t.Fatalf("DecodeStageMessage returned error: %v", err)
	}
	if err := h.tasks.Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	derived := h.publisher.decoded(t, StageDerivePotentialConnections)
	if len(derived) != 1 {
		t.Fatalf("expected one derive message, got %d", len(derived))
	}
	source := derived[0].DerivePotentialConnections.SourceVertex
	if source.InternalID != supplied {
		t.Fatalf("supplied internal id ignored: %s", source.InternalID)
	}
	if got := identity.StringValue(source.IDValue); got != "42" {
		t.Fatalf("supplied id value ignored: %s", got)
	}
	if n := len(h.publisher.decoded(t, StageGraph)); n != 1 {
		t.Fatalf("expected the source vertex announced for graphing, got %d", n)
	}
}

func TestHandleErrors(t *testing.T) {
	h := newHarness(t)

	if err := h.tasks.Handle(context.Background(), StageMessage{ID: "m1", Stage: "reticulate"}); !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("expected ErrUnknownStage, got %v", err)
	}

	msg, err := NewStageMessage(&GenerateSourceVertex{SchemaEntry: "ExternalId", ExtractedData: common.ExtractedData{"employee": []any{}}})
	if err != nil {
		t.Fatalf("NewStageMessage returned error: %v", err)
	}
	if err := h.tasks.Handle(context.Background(), msg); !errors.Is(err, ErrMissingSource) {
		t.Fatalf("expected ErrMissingSource, got %v", err)
	}
	if h.log.Count("error", "Stage failed") != 1 {
		t.Fatalf("expected the failed stage to be logged")
	}

	msg, err = NewStageMessage(&GenerateSourceVertex{SchemaEntry: "Nope", ExtractedData: externalIDExtraction()})
	if err != nil {
		t.Fatalf("NewStageMessage returned error: %v", err)
	}
	if err := h.tasks.Handle(context.Background(), msg); !errors.Is(err, schema.ErrUnknownEntry) {
		t.Fatalf("expected ErrUnknownEntry, got %v", err)
	}

	bare := New(h.schema, NewAnnouncer(h.publisher, mainQueue, ""))
	team := regulateVertex(t, h, "Team", map[string]any{"id_source": "Algernon", "team_name": "Engines"})
	graph, _ := NewObjectsMessage(StageGraph, &Objects{SourceVertex: team})
	if err := bare.Handle(context.Background(), graph); !errors.Is(err, ErrSinkUnavailable) {
		t.Fatalf("expected ErrSinkUnavailable, got %v", err)
	}
}

func TestCheckForExistingVertexesNeedsIdentifyingLookup(t *testing.T) {
	h := newHarness(t)
	source := regulateVertex(t, h, "ExternalId", externalIDExtraction()["source"].(map[string]any))
	for i, name := range []string{"Ada", "Grace", "Alan"} {
		employee := regulateVertex(t, h, "Employee", map[string]any{
			"id_source":  "Algernon",
			"emp_id":     1001 + i,
			"first_name": name,
			"last_name":  "Smith",
			"ssn":        "123-45-678" + string(rune('0'+i)),
			"hire_date":  "2019-05-01",
		})
		if err := h.index.IndexObject(context.Background(), employee); err != nil {
			t.Fatalf("seed index: %v", err)
		}
	}

	empty := regulateVertex(t, h, "Employee", map[string]any{})
	constantsOnly := regulateVertex(t, h, "Employee", map[string]any{"id_source": "Algernon"})
	rule := func(ifAbsent string) schema.LinkRuleEntry {
		return schema.LinkRuleEntry{
			TargetType:      "Employee",
			EdgeType:        "_identifies_",
			IfAbsent:        ifAbsent,
			TargetConstants: []schema.TargetConstant{{Name: "id_source", Value: "source.id_source"}},
		}
	}

	tests := []struct {
		name      string
		candidate *common.PotentialVertex
		rule      schema.LinkRuleEntry
		want      []identity.InternalID
	}{
		{name: "empty candidate dropped", candidate: empty, rule: rule(schema.IfAbsentPass)},
		{name: "empty candidate stubbed", candidate: empty, rule: rule(schema.IfAbsentStub), want: []identity.InternalID{empty.GraphID()}},
		{name: "constants only dropped", candidate: constantsOnly, rule: rule(schema.IfAbsentPass)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.publisher.messages = nil
			msg, err := NewStageMessage(&CheckForExistingVertexes{
				SchemaEntry:     "ExternalId",
				SourceVertex:    source,
				PotentialVertex: tt.candidate,
				RuleEntry:       tt.rule,
				ExtractedData:   common.ExtractedData{},
			})
			if err != nil {
				t.Fatalf("NewStageMessage returned error: %v", err)
			}
			if err := h.tasks.Handle(context.Background(), msg); err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}

			edges := h.publisher.decoded(t, StageGeneratePotentialEdge)
			if len(edges) != len(tt.want) {
				t.Fatalf("expected %d edge messages, got %d", len(tt.want), len(edges))
			}
			for i, m := range edges {
				if got := m.GeneratePotentialEdge.IdentifiedVertex.GraphID(); got != tt.want[i] {
					t.Fatalf("unexpected identified vertex %s, want %s", got, tt.want[i])
				}
			}
		})
	}
}
