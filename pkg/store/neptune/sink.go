package neptune

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/leech/internal/util"
	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/logger"
)

type sender interface {
	Send(ctx context.Context, query string) (any, error)
}

// GraphSink upserts vertexes and edges. Writes that collide with a
// concurrent modification of the same element are retried.
type GraphSink struct {
	client  sender
	tries   int
	backoff util.Backoff
}

func NewGraphSink(client *Client) *GraphSink {
	return &GraphSink{
		client:  client,
		tries:   5,
		backoff: util.ExponentialBackoff(100*time.Millisecond, 2*time.Second),
	}
}

func (s *GraphSink) UpsertVertex(ctx context.Context, v *common.PotentialVertex) error {
	return s.send(ctx, upsertVertexQuery(v))
}

func (s *GraphSink) UpsertEdge(ctx context.Context, e *common.PotentialEdge) error {
	return s.send(ctx, upsertEdgeQuery(e))
}

func (s *GraphSink) send(ctx context.Context, query string) error {
	return util.RetryErrWithContext(ctx, s.tries, s.backoff, func(ctx context.Context) error {
		_, err := s.client.Send(ctx, query)
		if errors.Is(err, ErrConcurrentModification) {
			logger.Warn("[Graph] Concurrent modification, retrying", "err", err)
			return err
		}
		return util.Permanent(err)
	})
}
