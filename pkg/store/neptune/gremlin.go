package neptune

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/store"
)

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// literal renders a value as a Gremlin-Groovy literal.
func literal(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + escaper.Replace(val) + "'"
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10) + "L"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64) + "d"
	}
	return literal(identity.StringValue(v))
}

func writeProperties(b *strings.Builder, properties map[string]any) {
	for _, name := range slices.Sorted(maps.Keys(properties)) {
		b.WriteString(".property(")
		b.WriteString(literal(name))
		b.WriteString(", ")
		b.WriteString(literal(properties[name]))
		b.WriteString(")")
	}
}

// upsertVertexQuery creates the vertex unless one with its id exists.
func upsertVertexQuery(v *common.PotentialVertex) string {
	id := literal(v.GraphID().String())

	var b strings.Builder
	b.WriteString("g.V(")
	b.WriteString(id)
	b.WriteString(").fold().coalesce(unfold(), addV(")
	b.WriteString(literal(v.GraphedObjectType()))
	b.WriteString(").property(id, ")
	b.WriteString(id)
	b.WriteString(")")
	writeProperties(&b, store.GraphProperties(&v.GraphObject))
	b.WriteString(")")
	return b.String()
}

// upsertEdgeQuery creates the edge between two existing vertexes unless one
// with its id exists.
func upsertEdgeQuery(e *common.PotentialEdge) string {
	id := literal(e.GraphID().String())

	var b strings.Builder
	b.WriteString("g.E(")
	b.WriteString(id)
	b.WriteString(").fold().coalesce(unfold(), addE(")
	b.WriteString(literal(e.Label()))
	b.WriteString(").from(V(")
	b.WriteString(literal(e.From.String()))
	b.WriteString(")).to(V(")
	b.WriteString(literal(e.To.String()))
	b.WriteString(")).property(id, ")
	b.WriteString(id)
	b.WriteString(")")
	writeProperties(&b, store.EdgeProperties(e))
	b.WriteString(")")
	return b.String()
}
