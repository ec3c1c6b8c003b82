package common

import (
	"encoding/json"
	"fmt"

	"github.com/OFFIS-RIT/leech/pkg/identity"
)

// InternalIDField is the id value field every edge uses; an edge's natural
// key is its own InternalID.
const InternalIDField = "internal_id"

// PotentialEdge connects two vertexes by InternalID. The label is fixed at
// construction and the stem is always the reserved edge stem for that label.
type PotentialEdge struct {
	GraphObject
	From identity.InternalID
	To   identity.InternalID
}

func NewPotentialEdge(label string, internalID identity.InternalID, properties Properties, from, to identity.InternalID) *PotentialEdge {
	if properties == nil {
		properties = Properties{}
	}
	stem := identity.EdgeStem(label)
	return &PotentialEdge{
		GraphObject: GraphObject{
			ObjectType:   label,
			Properties:   properties,
			InternalID:   internalID,
			Stem:         &stem,
			IDValue:      internalID.String(),
			IDValueField: InternalIDField,
		},
		From: from,
		To:   to,
	}
}

func (e *PotentialEdge) Label() string {
	return e.ObjectType
}

// GraphID falls back to a digest of label and endpoints, since every edge of
// a label shares the same stem.
func (e *PotentialEdge) GraphID() identity.InternalID {
	if e.IsInternalIDSet() {
		return e.InternalID
	}
	return identity.ComputeInternalID(e.Label(), e.From.String(), e.To.String())
}

func (e *PotentialEdge) String() string {
	return fmt.Sprintf("%s(%s->%s)", e.Label(), e.From, e.To)
}

func (e *PotentialEdge) ForIndex() (map[string]any, error) {
	serialized, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	projection := e.indexProjection(serialized)
	projection["internal_id"] = e.GraphID().String()
	projection["from_internal_id"] = e.From.String()
	projection["to_internal_id"] = e.To.String()
	return projection, nil
}

type potentialEdgeJSON struct {
	graphObjectJSON
	From string `json:"from_object"`
	To   string `json:"to_object"`
}

func (e PotentialEdge) MarshalJSON() ([]byte, error) {
	base, err := e.toJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(potentialEdgeJSON{graphObjectJSON: base, From: e.From.String(), To: e.To.String()})
}

func (e *PotentialEdge) UnmarshalJSON(data []byte) error {
	var in potentialEdgeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if err := e.fromJSON(in.graphObjectJSON); err != nil {
		return err
	}
	e.From = identity.InternalID(in.From)
	e.To = identity.InternalID(in.To)
	return nil
}
