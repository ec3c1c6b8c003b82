package schema

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/OFFIS-RIT/leech/pkg/logger"

	"github.com/xeipuuv/gojsonschema"
)

const (
	DefaultSchemaName     = "schema.json"
	DefaultValidationName = "master_schema.json"
	DefaultFolder         = "schemas"
)

//go:embed master_schema.json
var embeddedMasterSchema []byte

var ErrNotFound = errors.New("schema document not found")

// ObjectStore is the object storage a Loader reads schema documents from.
// GetObject must return an error wrapping ErrNotFound for absent keys.
type ObjectStore interface {
	GetObject(ctx context.Context, key string) ([]byte, error)
	PutObject(ctx context.Context, key string, body []byte) error
}

// Loader reads schema documents from a folder in object storage, resolves
// references, validates them against the master schema and parses them.
type Loader struct {
	store  ObjectStore
	folder string
}

func NewLoader(store ObjectStore, folder string) *Loader {
	if folder == "" {
		folder = DefaultFolder
	}
	return &Loader{store: store, folder: folder}
}

func (l *Loader) key(name string) string {
	return path.Join(l.folder, name)
}

// LoadSchema loads <folder>/<name>. An empty name loads schema.json.
func (l *Loader) LoadSchema(ctx context.Context, name string) (*Schema, error) {
	if name == "" {
		name = DefaultSchemaName
	}
	raw, err := l.store.GetObject(ctx, l.key(name))
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}

	resolved, err := ResolveRefs(raw)
	if err != nil {
		return nil, fmt.Errorf("resolve schema %s: %w", name, err)
	}

	master, err := l.ValidationSchema(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateDocument(master, resolved); err != nil {
		return nil, fmt.Errorf("validate schema %s: %w", name, err)
	}

	s, err := Parse(resolved)
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	logger.Info("[Schema] Loaded schema", "name", name, "vertexes", len(s.vertexOrder), "edges", len(s.edgeOrder))
	return s, nil
}

// ValidationSchema returns the stored master schema, falling back to the
// one compiled into the binary.
func (l *Loader) ValidationSchema(ctx context.Context) ([]byte, error) {
	raw, err := l.store.GetObject(ctx, l.key(DefaultValidationName))
	if errors.Is(err, ErrNotFound) {
		logger.Debug("[Schema] No stored master schema, using embedded one")
		return embeddedMasterSchema, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load master schema: %w", err)
	}
	return raw, nil
}

// PutSchema stores a schema document after checking it would load.
func (l *Loader) PutSchema(ctx context.Context, name string, doc []byte) error {
	if name == "" {
		name = DefaultSchemaName
	}
	resolved, err := ResolveRefs(doc)
	if err != nil {
		return err
	}
	master, err := l.ValidationSchema(ctx)
	if err != nil {
		return err
	}
	if err := ValidateDocument(master, resolved); err != nil {
		return err
	}
	if _, err := Parse(resolved); err != nil {
		return err
	}
	return l.store.PutObject(ctx, l.key(name), doc)
}

// PutValidationSchema replaces the stored master schema.
func (l *Loader) PutValidationSchema(ctx context.Context, doc []byte) error {
	if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc)); err != nil {
		return fmt.Errorf("%w: master schema: %v", ErrInvalidSchema, err)
	}
	return l.store.PutObject(ctx, l.key(DefaultValidationName), doc)
}

// ValidateDocument checks doc against a JSON Schema.
func ValidateDocument(master, doc []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(master),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidSchema, strings.Join(problems, "; "))
}
