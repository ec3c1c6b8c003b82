// Package schematest provides the schema document the package tests share.
package schematest

import (
	_ "embed"
	"testing"

	"github.com/OFFIS-RIT/leech/pkg/schema"
)

// Document is an unresolved schema with ExternalId, Employee and Team
// vertexes joined by _identifies_, _works_in_ and _manages_ edges.
//
//go:embed schema.json
var Document []byte

// Load resolves and parses Document, failing the test on error.
func Load(t testing.TB) *schema.Schema {
	t.Helper()
	resolved, err := schema.ResolveRefs(Document)
	if err != nil {
		t.Fatalf("resolve fixture schema: %v", err)
	}
	s, err := schema.Parse(resolved)
	if err != nil {
		t.Fatalf("parse fixture schema: %v", err)
	}
	return s
}
