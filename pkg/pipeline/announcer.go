package pipeline

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/leech/pkg/logger"
)

// EventKind is the event name every stage message is published under.
const EventKind = "new_event"

// Publisher delivers an encoded stage message to a destination on the bus.
type Publisher interface {
	Publish(ctx context.Context, eventKind, destination string, payload []byte) error
}

// Announcer encodes stage messages and publishes them. Graph messages go to
// the isolated destination, everything else to the main one.
type Announcer struct {
	publisher   Publisher
	destination string
	isolated    string
}

func NewAnnouncer(publisher Publisher, destination, isolated string) *Announcer {
	if isolated == "" {
		isolated = destination
	}
	return &Announcer{publisher: publisher, destination: destination, isolated: isolated}
}

func (a *Announcer) Announce(ctx context.Context, msg StageMessage) error {
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	destination := a.destination
	if msg.Stage == StageGraph {
		destination = a.isolated
	}
	logger.Debug("[Pipeline] Announcing", "stage", msg.Stage, "message_id", msg.ID, "destination", destination)
	if err := a.publisher.Publish(ctx, EventKind, destination, payload); err != nil {
		return fmt.Errorf("publish %s to %s: %w", msg.Stage, destination, err)
	}
	return nil
}

func (a *Announcer) announcePayload(ctx context.Context, payload any) error {
	msg, err := NewStageMessage(payload)
	if err != nil {
		return err
	}
	return a.Announce(ctx, msg)
}

// AnnounceIndexAndGraph publishes the same objects to the index and the graph
// stage.
func (a *Announcer) AnnounceIndexAndGraph(ctx context.Context, objects *Objects) error {
	for _, stage := range []Stage{StageIndex, StageGraph} {
		msg, err := NewObjectsMessage(stage, objects)
		if err != nil {
			return err
		}
		if err := a.Announce(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Submit starts the pipeline for one record and returns the message id.
func (a *Announcer) Submit(ctx context.Context, payload *GenerateSourceVertex) (string, error) {
	msg, err := NewStageMessage(payload)
	if err != nil {
		return "", err
	}
	if err := a.Announce(ctx, msg); err != nil {
		return "", err
	}
	return msg.ID, nil
}
