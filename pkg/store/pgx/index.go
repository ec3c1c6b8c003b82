// Package pgx implements the index store and the sensitive vault on
// PostgreSQL.
package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/logger"
	"github.com/OFFIS-RIT/leech/pkg/schema"
	"github.com/OFFIS-RIT/leech/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// IndexStore keeps one row per indexed object plus one row per declared
// index entry. Unique index keys live in their own table so a collision is
// detected by the database.
type IndexStore struct {
	conn   pgxIConn
	schema *schema.Schema
}

func NewIndexStore(conn pgxIConn, s *schema.Schema) *IndexStore {
	return &IndexStore{conn: conn, schema: s}
}

type indexRow struct {
	index  string
	unique bool
	key    string
	score  decimal.Decimal
}

// IndexObject writes the object and its index entries in one transaction.
func (s *IndexStore) IndexObject(ctx context.Context, object common.Element) error {
	base := object.Base()
	projection, err := object.ForIndex()
	if err != nil {
		return fmt.Errorf("project %s: %w", base.ObjectType, err)
	}
	properties, err := json.Marshal(base.Properties)
	if err != nil {
		return fmt.Errorf("encode properties of %s: %w", base.ObjectType, err)
	}

	id := object.GraphID().String()
	isStub := false
	if v, ok := object.(*common.PotentialVertex); ok {
		isStub = v.IsStub()
	}
	rows := indexRows(s.schema.Indexes(base.ObjectType), projection)

	err = pgxv5.BeginFunc(ctx, s.conn, func(tx pgxv5.Tx) error {
		tag, err := tx.Exec(ctx, insertObjectSQL,
			id,
			base.ObjectType,
			base.EffectiveStem().String(),
			identity.StringValue(base.IDValue),
			isStub,
			base.IsEdge(),
			properties,
			projection["object_value"],
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: internal_id %s", store.ErrUniqueIndexViolation, id)
		}

		for _, row := range rows {
			if !row.unique {
				if _, err := tx.Exec(ctx, insertSortedEntrySQL, row.index, row.key, id, row.score); err != nil {
					return err
				}
				continue
			}
			tag, err := tx.Exec(ctx, insertUniqueKeySQL, row.index, row.key, id)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%w: %s %s", store.ErrUniqueIndexViolation, row.index, row.key)
			}
		}
		return nil
	})
	return translateError(err)
}

// indexRows resolves every declared index against the projection. Indexes
// whose key or score the object cannot supply are skipped, which is the
// normal case for stubs.
func indexRows(indexes []schema.IndexEntry, projection map[string]any) []indexRow {
	var out []indexRow
	for _, index := range indexes {
		key, ok := indexKey(index.KeyFields, projection)
		if !ok {
			continue
		}
		row := indexRow{index: index.Name, unique: index.Unique, key: key}
		if !index.Unique {
			score, err := decimal.NewFromString(identity.StringValue(projection[index.ScoreField]))
			if err != nil {
				logger.Debug("[Index] Skipping sorted set entry without numeric score", "index", index.Name, "score_field", index.ScoreField)
				continue
			}
			row.score = score
		}
		out = append(out, row)
	}
	return out
}

func indexKey(fields []string, projection map[string]any) (string, bool) {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		value, ok := projection[field]
		if !ok || value == nil || identity.IsMissing(value) {
			return "", false
		}
		parts = append(parts, identity.StringValue(value))
	}
	return strings.Join(parts, "#"), true
}

// FindPotentialVertexes returns complete vertexes of objectType whose
// properties contain every given property.
func (s *IndexStore) FindPotentialVertexes(ctx context.Context, objectType string, properties common.Properties) ([]*common.PotentialVertex, error) {
	filter, err := json.Marshal(properties)
	if err != nil {
		return nil, fmt.Errorf("encode lookup properties: %w", err)
	}
	rows, err := s.conn.Query(ctx, findPotentialVertexesSQL, objectType, filter)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", objectType, err)
	}
	values, err := pgxv5.CollectRows(rows, pgxv5.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", objectType, err)
	}

	out := make([]*common.PotentialVertex, 0, len(values))
	for _, value := range values {
		v := new(common.PotentialVertex)
		if err := json.Unmarshal(value, v); err != nil {
			return nil, fmt.Errorf("decode indexed %s: %w", objectType, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrUniqueIndexViolation, pgErr.ConstraintName)
	}
	return err
}

const insertObjectSQL = `
INSERT INTO leech_index_objects
    (internal_id, object_type, identifier_stem, sid_value, is_stub, is_edge, object_properties, object_value)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb)
ON CONFLICT (internal_id) DO NOTHING;
`

const insertUniqueKeySQL = `
INSERT INTO leech_unique_index_keys (index_name, index_key, internal_id)
VALUES ($1, $2, $3)
ON CONFLICT (index_name, index_key) DO NOTHING;
`

const insertSortedEntrySQL = `
INSERT INTO leech_sorted_index_entries (index_name, index_key, internal_id, score)
VALUES ($1, $2, $3, $4)
ON CONFLICT (index_name, index_key, internal_id) DO NOTHING;
`

const findPotentialVertexesSQL = `
SELECT object_value
FROM leech_index_objects
WHERE object_type = $1
  AND NOT is_stub
  AND NOT is_edge
  AND object_properties @> $2::jsonb;
`
