package common

import (
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/leech/pkg/identity"
)

// Element is implemented by *PotentialVertex and *PotentialEdge.
type Element interface {
	Base() *GraphObject
	GraphID() identity.InternalID
	ForIndex() (map[string]any, error)
}

// PotentialVertex is a vertex that has not been confirmed to exist in the
// graph. It is either complete or a stub missing identifying properties.
type PotentialVertex struct {
	GraphObject
}

func NewPotentialVertex(object GraphObject) *PotentialVertex {
	if object.Properties == nil {
		object.Properties = Properties{}
	}
	return &PotentialVertex{GraphObject: object}
}

// IsStub reports whether the vertex lacks the identity to stand on its own.
func (v *PotentialVertex) IsStub() bool {
	return !v.IsPropertiesComplete() || !v.IsIdentifiable()
}

// GraphedObjectType is the type the vertex is written to the graph under.
func (v *PotentialVertex) GraphedObjectType() string {
	return v.EffectiveStem().ObjectType
}

func (v *PotentialVertex) String() string {
	return fmt.Sprintf("%s-%s", v.ObjectType, identity.StringValue(v.IDValue))
}

// ForIndex returns the flattened projection written to the index.
func (v *PotentialVertex) ForIndex() (map[string]any, error) {
	serialized, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return v.indexProjection(serialized), nil
}

func (v PotentialVertex) MarshalJSON() ([]byte, error) {
	out, err := v.toJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (v *PotentialVertex) UnmarshalJSON(data []byte) error {
	var in graphObjectJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	return v.fromJSON(in)
}
