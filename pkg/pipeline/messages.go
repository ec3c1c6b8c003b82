// Package pipeline runs the ingestion state machine. Every stage handles one
// message, runs the regulators it needs and announces the next messages:
//
//	generate_source_vertex -> derive_potential_connections ->
//	check_for_existing_vertexes -> generate_potential_edge -> {index, graph}
//
// Stages hold no state between messages. Re-delivering a message repeats its
// effects, which the sinks absorb through deterministic ids and conditional
// writes.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/schema"

	"github.com/go-playground/validator"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Stage string

const (
	StageGenerateSourceVertex       Stage = "generate_source_vertex"
	StageDerivePotentialConnections Stage = "derive_potential_connections"
	StageCheckForExistingVertexes   Stage = "check_for_existing_vertexes"
	StageGeneratePotentialEdge      Stage = "generate_potential_edge"
	StageIndex                      Stage = "index"
	StageGraph                      Stage = "graph"
)

var (
	ErrUnknownStage   = errors.New("unknown pipeline stage")
	ErrInvalidMessage = errors.New("invalid pipeline message")
)

// GenerateSourceVertex starts the pipeline for one extracted record.
// InternalID, Stem and IDValue are optional identity the caller already
// knows.
type GenerateSourceVertex struct {
	SchemaEntry   string               `json:"schema_entry" validate:"required"`
	ExtractedData common.ExtractedData `json:"extracted_data" validate:"required"`
	InternalID    identity.InternalID  `json:"internal_id,omitempty"`
	Stem          *identity.Stem       `json:"identifier_stem,omitempty"`
	IDValue       json.RawMessage      `json:"id_value,omitempty"`
}

type DerivePotentialConnections struct {
	SchemaEntry   string                  `json:"schema_entry" validate:"required"`
	SourceVertex  *common.PotentialVertex `json:"source_vertex" validate:"required"`
	ExtractedData common.ExtractedData    `json:"extracted_data"`
}

type CheckForExistingVertexes struct {
	SchemaEntry     string                  `json:"schema_entry" validate:"required"`
	SourceVertex    *common.PotentialVertex `json:"source_vertex" validate:"required"`
	PotentialVertex *common.PotentialVertex `json:"potential_vertex" validate:"required"`
	RuleEntry       schema.LinkRuleEntry    `json:"rule_entry"`
	ExtractedData   common.ExtractedData    `json:"extracted_data"`
}

type GeneratePotentialEdge struct {
	SchemaEntry      string                  `json:"schema_entry" validate:"required"`
	SourceVertex     *common.PotentialVertex `json:"source_vertex" validate:"required"`
	IdentifiedVertex *common.PotentialVertex `json:"identified_vertex" validate:"required"`
	RuleEntry        schema.LinkRuleEntry    `json:"rule_entry"`
	ExtractedData    common.ExtractedData    `json:"extracted_data"`
}

// Objects is the payload of the index and graph stages: the source vertex
// and, when a link was built, the vertex it links to and the edge.
type Objects struct {
	SourceVertex *common.PotentialVertex `json:"source_vertex" validate:"required"`
	Vertex       *common.PotentialVertex `json:"vertex,omitempty"`
	Edge         *common.PotentialEdge   `json:"edge,omitempty"`
}

// StageMessage is the unit of work exchanged between stages. Exactly one
// payload field is set, the one matching Stage.
type StageMessage struct {
	ID    string
	Stage Stage

	GenerateSourceVertex       *GenerateSourceVertex
	DerivePotentialConnections *DerivePotentialConnections
	CheckForExistingVertexes   *CheckForExistingVertexes
	GeneratePotentialEdge      *GeneratePotentialEdge
	Index                      *Objects
	Graph                      *Objects
}

type envelope struct {
	MessageID string          `json:"message_id" validate:"required"`
	TaskName  Stage           `json:"task_name" validate:"required"`
	TaskArgs  json.RawMessage `json:"task_kwargs"`
}

// payloads maps every stage to its payload slot.
var payloads = map[Stage]func(m *StageMessage) any{
	StageGenerateSourceVertex: func(m *StageMessage) any {
		if m.GenerateSourceVertex == nil {
			m.GenerateSourceVertex = new(GenerateSourceVertex)
		}
		return m.GenerateSourceVertex
	},
	StageDerivePotentialConnections: func(m *StageMessage) any {
		if m.DerivePotentialConnections == nil {
			m.DerivePotentialConnections = new(DerivePotentialConnections)
		}
		return m.DerivePotentialConnections
	},
	StageCheckForExistingVertexes: func(m *StageMessage) any {
		if m.CheckForExistingVertexes == nil {
			m.CheckForExistingVertexes = new(CheckForExistingVertexes)
		}
		return m.CheckForExistingVertexes
	},
	StageGeneratePotentialEdge: func(m *StageMessage) any {
		if m.GeneratePotentialEdge == nil {
			m.GeneratePotentialEdge = new(GeneratePotentialEdge)
		}
		return m.GeneratePotentialEdge
	},
	StageIndex: func(m *StageMessage) any {
		if m.Index == nil {
			m.Index = new(Objects)
		}
		return m.Index
	},
	StageGraph: func(m *StageMessage) any {
		if m.Graph == nil {
			m.Graph = new(Objects)
		}
		return m.Graph
	},
}

var validate = validator.New()

// NewStageMessage wraps a payload in a message with a fresh id. The stage is
// taken from the payload type; Objects payloads need the stage given
// explicitly through NewObjectsMessage.
func NewStageMessage(payload any) (StageMessage, error) {
	id, err := gonanoid.New()
	if err != nil {
		return StageMessage{}, err
	}
	m := StageMessage{ID: id}
	switch p := payload.(type) {
	case *GenerateSourceVertex:
		m.Stage, m.GenerateSourceVertex = StageGenerateSourceVertex, p
	case *DerivePotentialConnections:
		m.Stage, m.DerivePotentialConnections = StageDerivePotentialConnections, p
	case *CheckForExistingVertexes:
		m.Stage, m.CheckForExistingVertexes = StageCheckForExistingVertexes, p
	case *GeneratePotentialEdge:
		m.Stage, m.GeneratePotentialEdge = StageGeneratePotentialEdge, p
	default:
		return StageMessage{}, fmt.Errorf("%w: payload %T", ErrUnknownStage, payload)
	}
	return m, nil
}

// NewObjectsMessage builds an index or graph message.
func NewObjectsMessage(stage Stage, objects *Objects) (StageMessage, error) {
	id, err := gonanoid.New()
	if err != nil {
		return StageMessage{}, err
	}
	m := StageMessage{ID: id, Stage: stage}
	switch stage {
	case StageIndex:
		m.Index = objects
	case StageGraph:
		m.Graph = objects
	default:
		return StageMessage{}, fmt.Errorf("%w: %s does not carry objects", ErrUnknownStage, stage)
	}
	return m, nil
}

// Payload returns the payload matching the message's stage.
func (m *StageMessage) Payload() (any, error) {
	slot, ok := payloads[m.Stage]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, m.Stage)
	}
	return slot(m), nil
}

func (m StageMessage) Encode() ([]byte, error) {
	payload, err := m.Payload()
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, m.Stage, err)
	}
	args, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.Stage, err)
	}
	return json.Marshal(envelope{MessageID: m.ID, TaskName: m.Stage, TaskArgs: args})
}

// DecodeStageMessage parses and validates a message read from the bus.
func DecodeStageMessage(data []byte) (StageMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return StageMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := validate.Struct(env); err != nil {
		return StageMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	m := StageMessage{ID: env.MessageID, Stage: env.TaskName}
	payload, err := m.Payload()
	if err != nil {
		return StageMessage{}, err
	}
	if len(env.TaskArgs) == 0 || string(env.TaskArgs) == "null" {
		env.TaskArgs = json.RawMessage("{}")
	}
	if err := json.Unmarshal(env.TaskArgs, payload); err != nil {
		return StageMessage{}, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, m.Stage, err)
	}
	if err := validate.Struct(payload); err != nil {
		return StageMessage{}, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, m.Stage, err)
	}
	return m, nil
}
