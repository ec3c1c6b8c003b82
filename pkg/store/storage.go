// Package store defines the sinks the pipeline writes graph objects to.
package store

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/leech/pkg/common"
)

// ErrUniqueIndexViolation reports that an object, or another object with the
// same unique index key, is already indexed. Callers treat it as success.
var ErrUniqueIndexViolation = errors.New("unique index violation")

// IndexStore keeps the searchable projection of every graph object.
type IndexStore interface {
	// IndexObject writes the object's projection and its declared index
	// entries. A write that collides with an existing unique key returns an
	// error wrapping ErrUniqueIndexViolation and leaves the store unchanged.
	IndexObject(ctx context.Context, object common.Element) error

	// FindPotentialVertexes returns the complete vertexes of objectType whose
	// properties contain every given property.
	FindPotentialVertexes(ctx context.Context, objectType string, properties common.Properties) ([]*common.PotentialVertex, error)
}

// GraphSink upserts objects into the graph database. Both calls create the
// element when it is absent and leave an existing one untouched. An edge is
// written after both of its endpoints.
type GraphSink interface {
	UpsertVertex(ctx context.Context, vertex *common.PotentialVertex) error
	UpsertEdge(ctx context.Context, edge *common.PotentialEdge) error
}

// ChunkRange calls fn for consecutive [start, end) windows of at most
// chunkSize items.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if total <= 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = total
	}
	for start := 0; start < total; start += chunkSize {
		end := min(start+chunkSize, total)
		if err := fn(start, end); err != nil {
			return err
		}
	}
	return nil
}
