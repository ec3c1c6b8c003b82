// Package neo4jdb writes graph objects to Neo4j.
package neo4jdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// VertexLabel is carried by every vertex next to its object type, so edges
// can match their endpoints by internal_id alone.
const VertexLabel = "Vertex"

type execFunc func(ctx context.Context, cypher string, params map[string]any) error

type GraphSink struct {
	driver   neo4j.DriverWithContext
	database string
	exec     execFunc
}

func NewGraphSink(driver neo4j.DriverWithContext, database string) *GraphSink {
	s := &GraphSink{driver: driver, database: database}
	s.exec = s.executeWrite
	return s
}

// EnsureSchema creates the uniqueness constraint upserts rely on. Failures
// are logged and ignored since restricted users may not manage schema.
func (s *GraphSink) EnsureSchema(ctx context.Context) {
	cypher := fmt.Sprintf("CREATE CONSTRAINT leech_vertex_internal_id IF NOT EXISTS FOR (n:%s) REQUIRE n.internal_id IS UNIQUE", quoteLabel(VertexLabel))
	if err := s.exec(ctx, cypher, nil); err != nil {
		logger.Warn("[Graph] Neo4j schema init failed (continuing)", "err", err)
	}
}

func (s *GraphSink) UpsertVertex(ctx context.Context, v *common.PotentialVertex) error {
	props := store.GraphProperties(&v.GraphObject)
	cypher := fmt.Sprintf(`
MERGE (n:%s {internal_id: $id})
ON CREATE SET n += $props, n:%s
`, quoteLabel(VertexLabel), quoteLabel(v.GraphedObjectType()))
	return s.exec(ctx, cypher, map[string]any{
		"id":    props["internal_id"],
		"props": props,
	})
}

func (s *GraphSink) UpsertEdge(ctx context.Context, e *common.PotentialEdge) error {
	props := store.EdgeProperties(e)
	cypher := fmt.Sprintf(`
MATCH (a:%[1]s {internal_id: $from})
MATCH (b:%[1]s {internal_id: $to})
MERGE (a)-[r:%[2]s {internal_id: $id}]->(b)
ON CREATE SET r += $props
`, quoteLabel(VertexLabel), quoteLabel(e.Label()))
	return s.exec(ctx, cypher, map[string]any{
		"id":    props["internal_id"],
		"from":  e.From.String(),
		"to":    e.To.String(),
		"props": props,
	})
}

func (s *GraphSink) executeWrite(ctx context.Context, cypher string, params map[string]any) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

// quoteLabel escapes a label or relationship type for interpolation.
func quoteLabel(label string) string {
	return "`" + strings.ReplaceAll(label, "`", "``") + "`"
}
