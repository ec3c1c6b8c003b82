package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/OFFIS-RIT/leech/pkg/arbiter"
	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/regulator"
	"github.com/OFFIS-RIT/leech/pkg/schema"
	"github.com/OFFIS-RIT/leech/pkg/sensitive"
	"github.com/OFFIS-RIT/leech/pkg/store"

	"golang.org/x/sync/errgroup"
)

var (
	ErrMissingSource   = errors.New("extracted data has no source record")
	ErrSinkUnavailable = errors.New("stage sink not configured")
)

// Locker serializes work on a key across workers.
type Locker interface {
	WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type Option func(*Tasks)

func WithRegistry(r *regulator.Registry) Option {
	return func(t *Tasks) { t.registry = r }
}

func WithVault(v sensitive.Vault) Option {
	return func(t *Tasks) { t.vault = v }
}

func WithIndex(s store.IndexStore) Option {
	return func(t *Tasks) { t.index = s }
}

func WithGraph(s store.GraphSink) Option {
	return func(t *Tasks) { t.graph = s }
}

// WithLocker makes the graph stage hold a lease per element while
// upserting it.
func WithLocker(l Locker) Option {
	return func(t *Tasks) { t.locker = l }
}

func WithArbiterOptions(opts ...arbiter.Option) Option {
	return func(t *Tasks) { t.arbiterOpts = append(t.arbiterOpts, opts...) }
}

// Tasks holds the stage handlers and everything they share. It is safe for
// concurrent use once built.
type Tasks struct {
	schema    *schema.Schema
	registry  *regulator.Registry
	vault     sensitive.Vault
	index     store.IndexStore
	graph     store.GraphSink
	announcer *Announcer
	locker    Locker

	arbiterOpts []arbiter.Option
	arbiter     *arbiter.RuleArbiter
}

func New(s *schema.Schema, announcer *Announcer, opts ...Option) *Tasks {
	t := &Tasks{schema: s, announcer: announcer}
	for _, opt := range opts {
		opt(t)
	}
	if t.registry == nil {
		t.registry = regulator.NewRegistry()
	}
	t.arbiter = arbiter.New(s, t.registry, t.vault, t.arbiterOpts...)
	return t
}

type handler func(t *Tasks, ctx context.Context, msg *StageMessage) error

var handlers = map[Stage]handler{
	StageGenerateSourceVertex: func(t *Tasks, ctx context.Context, msg *StageMessage) error {
		return t.generateSourceVertex(ctx, msg.GenerateSourceVertex)
	},
	StageDerivePotentialConnections: func(t *Tasks, ctx context.Context, msg *StageMessage) error {
		return t.derivePotentialConnections(ctx, msg.DerivePotentialConnections)
	},
	StageCheckForExistingVertexes: func(t *Tasks, ctx context.Context, msg *StageMessage) error {
		return t.checkForExistingVertexes(ctx, msg.CheckForExistingVertexes)
	},
	StageGeneratePotentialEdge: func(t *Tasks, ctx context.Context, msg *StageMessage) error {
		return t.generatePotentialEdge(ctx, msg.GeneratePotentialEdge)
	},
	StageIndex: func(t *Tasks, ctx context.Context, msg *StageMessage) error {
		return t.indexObjects(ctx, msg.Index)
	},
	StageGraph: func(t *Tasks, ctx context.Context, msg *StageMessage) error {
		return t.graphObjects(ctx, msg.Graph)
	},
}

// HandleMessage decodes a message read from the bus and runs its stage.
func (t *Tasks) HandleMessage(ctx context.Context, data []byte) error {
	msg, err := DecodeStageMessage(data)
	if err != nil {
		return err
	}
	return t.Handle(ctx, msg)
}

// Handle runs the stage named by msg.
func (t *Tasks) Handle(ctx context.Context, msg StageMessage) error {
	h, ok := handlers[msg.Stage]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, msg.Stage)
	}
	if _, err := msg.Payload(); err != nil {
		return err
	}

	start := time.Now()
	logger.Debug("[Pipeline] Started stage", "stage", msg.Stage, "message_id", msg.ID)
	if err := h(t, ctx, &msg); err != nil {
		entry, extracted := describe(&msg)
		logger.Error("[Pipeline] Stage failed",
			"stage", msg.Stage,
			"message_id", msg.ID,
			"schema_entry", entry,
			"extracted_data", extracted,
			"err", err,
		)
		return fmt.Errorf("%s: %w", msg.Stage, err)
	}
	logger.Info("[Pipeline] Completed stage", "stage", msg.Stage, "message_id", msg.ID, "duration", time.Since(start))
	return nil
}

func describe(msg *StageMessage) (string, common.ExtractedData) {
	switch msg.Stage {
	case StageGenerateSourceVertex:
		return msg.GenerateSourceVertex.SchemaEntry, msg.GenerateSourceVertex.ExtractedData
	case StageDerivePotentialConnections:
		return msg.DerivePotentialConnections.SchemaEntry, msg.DerivePotentialConnections.ExtractedData
	case StageCheckForExistingVertexes:
		return msg.CheckForExistingVertexes.SchemaEntry, msg.CheckForExistingVertexes.ExtractedData
	case StageGeneratePotentialEdge:
		return msg.GeneratePotentialEdge.SchemaEntry, msg.GeneratePotentialEdge.ExtractedData
	case StageIndex:
		return msg.Index.SourceVertex.ObjectType, nil
	case StageGraph:
		return msg.Graph.SourceVertex.ObjectType, nil
	}
	return "", nil
}

func (t *Tasks) vertexEntry(name string) (*schema.VertexEntry, error) {
	entry, ok := t.schema.Vertex(name)
	if !ok {
		return nil, fmt.Errorf("%w: vertex %s", schema.ErrUnknownEntry, name)
	}
	return entry, nil
}

func (t *Tasks) generateSourceVertex(ctx context.Context, p *GenerateSourceVertex) error {
	entry, err := t.vertexEntry(p.SchemaEntry)
	if err != nil {
		return err
	}
	record, ok := p.ExtractedData.Source()
	if !ok {
		return ErrMissingSource
	}

	supplied := regulator.Supplied{InternalID: p.InternalID, Stem: p.Stem}
	if len(p.IDValue) > 0 {
		if supplied.IDValue, err = identity.DecodeValue(p.IDValue); err != nil {
			return fmt.Errorf("supplied id value: %w", err)
		}
	}

	object, err := regulator.NewObjectRegulator(entry, t.vault).CreatePotentialVertexData(ctx, record, supplied)
	if err != nil {
		return err
	}
	source := common.NewPotentialVertex(object)

	err = t.announcer.announcePayload(ctx, &DerivePotentialConnections{
		SchemaEntry:   p.SchemaEntry,
		SourceVertex:  source,
		ExtractedData: p.ExtractedData,
	})
	if err != nil {
		return err
	}
	return t.announcer.AnnounceIndexAndGraph(ctx, &Objects{SourceVertex: source})
}

func (t *Tasks) derivePotentialConnections(ctx context.Context, p *DerivePotentialConnections) error {
	entry, err := t.vertexEntry(p.SchemaEntry)
	if err != nil {
		return err
	}
	candidates, err := t.arbiter.ProcessRules(ctx, p.SourceVertex, entry, p.ExtractedData)
	if err != nil {
		return err
	}
	logger.Debug("[Pipeline] Derived potential connections", "source", p.SourceVertex, "candidates", len(candidates))

	for _, c := range candidates {
		err := t.announcer.announcePayload(ctx, &CheckForExistingVertexes{
			SchemaEntry:     p.SchemaEntry,
			SourceVertex:    p.SourceVertex,
			PotentialVertex: c.Vertex,
			RuleEntry:       c.Rule,
			ExtractedData:   p.ExtractedData,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// checkForExistingVertexes picks what the source vertex links to: the
// candidate itself when it is complete and identifiable, otherwise every
// indexed vertex it matches, otherwise the candidate as a stub if the rule
// allows one. Anything else is dropped.
func (t *Tasks) checkForExistingVertexes(ctx context.Context, p *CheckForExistingVertexes) error {
	potential := p.PotentialVertex
	identified := []*common.PotentialVertex{potential}

	if !potential.IsPropertiesComplete() || !potential.IsIdentifiable() {
		if t.index == nil {
			return fmt.Errorf("%w: index", ErrSinkUnavailable)
		}
		var found []*common.PotentialVertex
		if lookup := lookupProperties(potential); canLookup(lookup, p.RuleEntry) {
			var err error
			found, err = t.index.FindPotentialVertexes(ctx, potential.ObjectType, lookup)
			if err != nil {
				return err
			}
		} else {
			logger.Debug("[Pipeline] Candidate has no identifying properties, skipping lookup", "candidate", potential)
		}
		switch {
		case len(found) > 0:
			identified = found
		case p.RuleEntry.IsStub():
		default:
			logger.Debug("[Pipeline] Dropping unmatched candidate", "candidate", potential, "rule", p.RuleEntry)
			return nil
		}
	}

	for _, vertex := range identified {
		err := t.announcer.announcePayload(ctx, &GeneratePotentialEdge{
			SchemaEntry:      p.SchemaEntry,
			SourceVertex:     p.SourceVertex,
			IdentifiedVertex: vertex,
			RuleEntry:        p.RuleEntry,
			ExtractedData:    p.ExtractedData,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// canLookup reports whether lookup narrows the index query to vertexes the
// candidate could be. Rule constants are shared by every target of the rule,
// so a lookup made only of constants, or an empty one, would match every
// vertex of the type.
func canLookup(lookup common.Properties, rule schema.LinkRuleEntry) bool {
	for name := range lookup {
		if !slices.ContainsFunc(rule.TargetConstants, func(c schema.TargetConstant) bool { return c.Name == name }) {
			return true
		}
	}
	return false
}

// lookupProperties are the candidate properties an indexed vertex must
// share. Sensitive fields the record did not carry are left out.
func lookupProperties(v *common.PotentialVertex) common.Properties {
	out := v.Properties.Present()
	for name, value := range out {
		if value == sensitive.MissingValueMarker {
			delete(out, name)
		}
	}
	return out
}

func (t *Tasks) generatePotentialEdge(ctx context.Context, p *GeneratePotentialEdge) error {
	entry, ok := t.schema.Edge(p.RuleEntry.EdgeType)
	if !ok {
		return fmt.Errorf("%w: edge %s", schema.ErrUnknownEntry, p.RuleEntry.EdgeType)
	}
	edges := regulator.NewEdgeRegulator(entry, regulator.NewObjectRegulator(entry, t.vault), t.registry)

	generate := edges.GeneratePotentialEdge
	if p.IdentifiedVertex.IsStub() {
		generate = edges.GenerateStubbedEdge
	}
	edge, err := generate(ctx, p.SourceVertex, p.IdentifiedVertex, p.ExtractedData, p.RuleEntry.Inbound)
	if err != nil {
		return err
	}

	return t.announcer.AnnounceIndexAndGraph(ctx, &Objects{
		SourceVertex: p.SourceVertex,
		Vertex:       p.IdentifiedVertex,
		Edge:         edge,
	})
}

func (o *Objects) elements() []common.Element {
	out := []common.Element{o.SourceVertex}
	if o.Vertex != nil {
		out = append(out, o.Vertex)
	}
	if o.Edge != nil {
		out = append(out, o.Edge)
	}
	return out
}

// indexObjects writes every object concurrently. Objects that are already
// indexed are logged and skipped.
func (t *Tasks) indexObjects(ctx context.Context, p *Objects) error {
	if t.index == nil {
		return fmt.Errorf("%w: index", ErrSinkUnavailable)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, element := range p.elements() {
		g.Go(func() error {
			err := t.index.IndexObject(gctx, element)
			if errors.Is(err, store.ErrUniqueIndexViolation) {
				logger.Warn("[Index] Object already indexed, skipping", "object", element, "err", err)
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// graphObjects upserts both vertexes before the edge joining them.
func (t *Tasks) graphObjects(ctx context.Context, p *Objects) error {
	if t.graph == nil {
		return fmt.Errorf("%w: graph", ErrSinkUnavailable)
	}
	vertexes := []*common.PotentialVertex{p.SourceVertex}
	if p.Vertex != nil {
		vertexes = append(vertexes, p.Vertex)
	}
	for _, v := range vertexes {
		err := t.withLease(ctx, v.GraphID(), func(ctx context.Context) error {
			return t.graph.UpsertVertex(ctx, v)
		})
		if err != nil {
			return fmt.Errorf("upsert vertex %s: %w", v, err)
		}
	}
	if p.Edge == nil {
		return nil
	}
	err := t.withLease(ctx, p.Edge.GraphID(), func(ctx context.Context) error {
		return t.graph.UpsertEdge(ctx, p.Edge)
	})
	if err != nil {
		return fmt.Errorf("upsert edge %s: %w", p.Edge, err)
	}
	return nil
}

func (t *Tasks) withLease(ctx context.Context, id identity.InternalID, fn func(ctx context.Context) error) error {
	if t.locker == nil {
		return fn(ctx)
	}
	return t.locker.WithLease(ctx, "graph:"+id.String(), fn)
}
