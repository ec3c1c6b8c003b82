// Package source retrieves stored extraction records so they can be fed back
// into the pipeline.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/leech/internal/storage"
	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/store"

	"github.com/go-playground/validator"
	"golang.org/x/sync/errgroup"
)

var ErrRecordNotFound = errors.New("source record not found")

// Record is one extraction as persisted by an upstream extractor.
type Record struct {
	IDSource      string               `json:"id_source"`
	RecordID      string               `json:"record_id"`
	SchemaEntry   string               `json:"schema_entry" validate:"required"`
	ExtractedData common.ExtractedData `json:"extracted_data" validate:"required"`
}

// Query narrows Search to record ids starting with Prefix. Limit <= 0 means
// no limit.
type Query struct {
	Prefix string
	Limit  int
}

type Driver interface {
	FetchRecord(ctx context.Context, idSource, recordID string) (*Record, error)
	Search(ctx context.Context, idSource string, q Query) ([]*Record, error)
}

type objectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// S3Driver reads records stored as <prefix>/<id_source>/<record_id>.json.
type S3Driver struct {
	store     objectStore
	prefix    string
	chunkSize int
	validate  *validator.Validate
}

func NewS3Driver(bucket *storage.Bucket, prefix string) *S3Driver {
	return newS3Driver(bucket, prefix)
}

func newS3Driver(s objectStore, prefix string) *S3Driver {
	return &S3Driver{
		store:     s,
		prefix:    strings.Trim(prefix, "/"),
		chunkSize: 16,
		validate:  validator.New(),
	}
}

func (d *S3Driver) folder(idSource string) string {
	return path.Join(d.prefix, idSource) + "/"
}

func (d *S3Driver) FetchRecord(ctx context.Context, idSource, recordID string) (*Record, error) {
	return d.fetch(ctx, idSource, d.folder(idSource)+recordID+".json")
}

func (d *S3Driver) fetch(ctx context.Context, idSource, key string) (*Record, error) {
	raw, err := d.store.GetObject(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", key, err)
	}
	if err := d.validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("invalid record %s: %w", key, err)
	}
	if rec.IDSource == "" {
		rec.IDSource = idSource
	}
	if rec.RecordID == "" {
		rec.RecordID = strings.TrimSuffix(path.Base(key), ".json")
	}
	return &rec, nil
}

// Search lists the records of a source in key order and fetches them in
// parallel batches.
func (d *S3Driver) Search(ctx context.Context, idSource string, q Query) ([]*Record, error) {
	folder := d.folder(idSource)
	keys, err := d.store.ListKeys(ctx, folder+q.Prefix)
	if err != nil {
		return nil, err
	}
	keys = slices.DeleteFunc(keys, func(k string) bool {
		return !strings.HasSuffix(k, ".json") || strings.Contains(strings.TrimPrefix(k, folder), "/")
	})
	slices.Sort(keys)
	if q.Limit > 0 && len(keys) > q.Limit {
		keys = keys[:q.Limit]
	}

	records := make([]*Record, len(keys))
	err = store.ChunkRange(len(keys), d.chunkSize, func(start, end int) error {
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				rec, err := d.fetch(gctx, idSource, keys[i])
				if err != nil {
					return err
				}
				records[i] = rec
				return nil
			})
		}
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("[Source] Search complete", "id_source", idSource, "prefix", q.Prefix, "records", len(records))
	return records, nil
}
