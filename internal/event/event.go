// Package event defines the bus envelopes a resolution run emits and the
// publisher collaborators that deliver them.
//
// The resolver only builds payloads. Transport belongs to the Publisher.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/overlay/internal/contract"
)

// Topic names a bus topic.
type Topic string

const (
	TopicResolveRequested Topic = "onex.contract.resolve.requested"
	TopicResolveCompleted Topic = "onex.contract.resolve.completed"
)

// Requested is the payload of TopicResolveRequested.
type Requested struct {
	RunID         string `json:"run_id"`
	BaseProfile   string `json:"base_profile"`
	PatchCount    int    `json:"patch_count"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Completed is the payload of TopicResolveCompleted.
type Completed struct {
	RunID                string                 `json:"run_id"`
	ResolvedHash         string                 `json:"resolved_hash"`
	OverlaysAppliedCount int                    `json:"overlays_applied_count"`
	OverlayRefs          []contract.OverlayRef  `json:"overlay_refs"`
	ResolverBuild        contract.ResolverBuild `json:"resolver_build"`
	DurationMS           int64                  `json:"duration_ms"`
	CorrelationID        string                 `json:"correlation_id,omitempty"`
}

// Envelope wraps one payload with its routing keys.
type Envelope struct {
	Topic         Topic  `json:"topic"`
	RunID         string `json:"run_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Payload       any    `json:"payload"`
}

// NewRequested builds a requested envelope.
func NewRequested(p Requested) Envelope {
	return Envelope{
		Topic:         TopicResolveRequested,
		RunID:         p.RunID,
		CorrelationID: p.CorrelationID,
		Payload:       p,
	}
}

// NewCompleted builds a completed envelope. A nil OverlayRefs slice is
// emitted as an empty list.
func NewCompleted(p Completed) Envelope {
	if p.OverlayRefs == nil {
		p.OverlayRefs = []contract.OverlayRef{}
	}
	return Envelope{
		Topic:         TopicResolveCompleted,
		RunID:         p.RunID,
		CorrelationID: p.CorrelationID,
		Payload:       p,
	}
}

// UnmarshalJSON decodes the payload into the struct matching the topic.
// Unknown topics keep the raw payload.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Topic         Topic           `json:"topic"`
		RunID         string          `json:"run_id"`
		CorrelationID string          `json:"correlation_id"`
		Payload       json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Topic = raw.Topic
	e.RunID = raw.RunID
	e.CorrelationID = raw.CorrelationID

	switch raw.Topic {
	case TopicResolveRequested:
		var p Requested
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", raw.Topic, err)
		}
		e.Payload = p
	case TopicResolveCompleted:
		var p Completed
		if err := json.Unmarshal(raw.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", raw.Topic, err)
		}
		e.Payload = p
	default:
		e.Payload = raw.Payload
	}
	return nil
}
