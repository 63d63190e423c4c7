package sse

import (
	"encoding/json"
	"fmt"
	"io"
)

// Thinking steps emitted while a chat turn is being processed, in the order
// the pipeline runs them.
const (
	StepFetchingContext   = "fetching_context"
	StepPlanning          = "planning"
	StepSearching         = "searching"
	StepEvaluating        = "evaluating"
	StepCheckingAllergies = "checking_allergies"
)

const (
	EventThinking = "thinking"
	EventResult   = "result"
)

// Event is one server-sent event on the chat stream. A stream is a sequence
// of thinking events followed by exactly one result event.
type Event struct {
	Type string `json:"type"`
	// Step is set on thinking events.
	Step string `json:"step,omitempty"`
	// Payload is set on the result event.
	Payload any `json:"payload,omitempty"`
}

func Thinking(step string) Event {
	return Event{Type: EventThinking, Step: step}
}

func Result(payload any) Event {
	return Event{Type: EventResult, Payload: payload}
}

// Write encodes an event in text/event-stream framing.
func Write(w io.Writer, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
