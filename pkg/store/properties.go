package store

import (
	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"

	"github.com/shopspring/decimal"
)

// GraphProperties is the property set written to a graph element: the
// object's identity attributes followed by every property that carries a
// value. Decimals become int64 when integral and float64 otherwise, so
// drivers without a decimal type can store them.
func GraphProperties(object *common.GraphObject) map[string]any {
	out := map[string]any{
		"internal_id":     object.GraphID().String(),
		"object_type":     object.ObjectType,
		"identifier_stem": object.EffectiveStem().String(),
		"id_value_field":  object.IDValueField,
	}
	if id := graphValue(object.IDValue); id != nil {
		out["id_value"] = id
	}
	for name, value := range object.Properties {
		if _, reserved := out[name]; reserved {
			continue
		}
		if v := graphValue(value); v != nil {
			out[name] = v
		}
	}
	return out
}

func graphValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		if val.IsInteger() && val.Abs().LessThan(decimal.New(1, 18)) {
			return val.IntPart()
		}
		f, _ := val.Float64()
		return f
	case string, bool, int64, float64:
		return val
	}
	if identity.IsMissing(v) {
		return nil
	}
	return identity.StringValue(v)
}

// EdgeProperties is GraphProperties for an edge, keyed by the edge's own
// GraphID rather than the shared edge stem.
func EdgeProperties(e *common.PotentialEdge) map[string]any {
	out := GraphProperties(&e.GraphObject)
	out["internal_id"] = e.GraphID().String()
	return out
}
