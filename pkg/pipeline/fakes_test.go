package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/store"
)

const (
	mainQueue     = "leech_listener"
	isolatedQueue = "vpc_leech_listener"
)

type published struct {
	eventKind   string
	destination string
	payload     []byte
}

type memoryPublisher struct {
	mu       sync.Mutex
	messages []published
}

func (p *memoryPublisher) Publish(_ context.Context, eventKind, destination string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, published{eventKind: eventKind, destination: destination, payload: payload})
	return nil
}

func (p *memoryPublisher) pop() (published, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.messages) == 0 {
		return published{}, false
	}
	m := p.messages[0]
	p.messages = p.messages[1:]
	return m, true
}

// decoded returns every pending message of stage without consuming it.
func (p *memoryPublisher) decoded(t *testing.T, stage Stage) []StageMessage {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []StageMessage
	for _, m := range p.messages {
		msg, err := DecodeStageMessage(m.payload)
		if err != nil {
			t.Fatalf("published message does not decode: %v", err)
		}
		if msg.Stage == stage {
			out = append(out, msg)
		}
	}
	return out
}

type memoryIndex struct {
	mu      sync.Mutex
	objects map[identity.InternalID]common.Element
}

func newMemoryIndex() *memoryIndex {
	return &memoryIndex{objects: map[identity.InternalID]common.Element{}}
}

func (m *memoryIndex) IndexObject(_ context.Context, object common.Element) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := object.GraphID()
	if _, ok := m.objects[id]; ok {
		return fmt.Errorf("%w: internal_id %s", store.ErrUniqueIndexViolation, id)
	}
	m.objects[id] = object
	return nil
}

func (m *memoryIndex) FindPotentialVertexes(_ context.Context, objectType string, properties common.Properties) ([]*common.PotentialVertex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*common.PotentialVertex
	for _, object := range m.objects {
		v, ok := object.(*common.PotentialVertex)
		if !ok || v.ObjectType != objectType || v.IsStub() {
			continue
		}
		if contains(v.Properties, properties) {
			out = append(out, v)
		}
	}
	return out, nil
}

func contains(have, want common.Properties) bool {
	for name, value := range want {
		got, ok := have[name]
		if !ok || identity.StringValue(got) != identity.StringValue(value) {
			return false
		}
	}
	return true
}

func (m *memoryIndex) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type memoryGraph struct {
	mu       sync.Mutex
	vertexes map[identity.InternalID]*common.PotentialVertex
	edges    map[identity.InternalID]*common.PotentialEdge
}

func newMemoryGraph() *memoryGraph {
	return &memoryGraph{
		vertexes: map[identity.InternalID]*common.PotentialVertex{},
		edges:    map[identity.InternalID]*common.PotentialEdge{},
	}
}

func (g *memoryGraph) UpsertVertex(_ context.Context, v *common.PotentialVertex) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.vertexes[v.GraphID()]; !ok {
		g.vertexes[v.GraphID()] = v
	}
	return nil
}

func (g *memoryGraph) UpsertEdge(_ context.Context, e *common.PotentialEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.vertexes[e.From]; !ok {
		return fmt.Errorf("edge %s written before its from vertex", e)
	}
	if _, ok := g.vertexes[e.To]; !ok {
		return fmt.Errorf("edge %s written before its to vertex", e)
	}
	if _, ok := g.edges[e.GraphID()]; !ok {
		g.edges[e.GraphID()] = e
	}
	return nil
}

type recordingLocker struct {
	mu   sync.Mutex
	keys []string
}

func (l *recordingLocker) WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return fn(ctx)
}
