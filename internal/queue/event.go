package queue

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates the recognized event kinds an adapter may submit.
type Kind string

const (
	KindUserPrompt       Kind = "user_prompt"
	KindPreTool          Kind = "pre_tool"
	KindPostTool         Kind = "post_tool"
	KindPostToolFailure  Kind = "post_tool_failure"
	KindMessage          Kind = "message"
	KindSystem           Kind = "system"
	KindTool             Kind = "tool"
	KindCommand          Kind = "command"
	KindXResearch        Kind = "x_research"
)

var validKinds = map[Kind]bool{
	KindUserPrompt: true, KindPreTool: true, KindPostTool: true,
	KindPostToolFailure: true, KindMessage: true, KindSystem: true,
	KindTool: true, KindCommand: true, KindXResearch: true,
}

// Event is one observation from an adapter. It is immutable once appended;
// its identity within the queue is (SessionID, Offset), with Offset assigned
// by the queue at append time.
type Event struct {
	V         int             `json:"v"`
	Source    string          `json:"source"`
	Kind      Kind            `json:"kind"`
	TS        int64           `json:"ts"`
	SessionID string          `json:"session_id"`
	TraceID   string          `json:"trace_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// Offset is assigned by the queue on append and is not sent by adapters.
	Offset int64 `json:"offset"`
}

// ErrValidation is wrapped by every rejection reason returned from Validate,
// letting callers at the HTTP boundary distinguish it from I/O failures.
var ErrValidation = fmt.Errorf("validation")

const maxPayloadBytes = 64 * 1024

// Validate enforces the /ingest contract: required fields present, kind
// recognized, payload bounded. Unknown JSON keys are tolerated by the caller
// (they are simply never unmarshaled into Event).
func (e *Event) Validate() error {
	if e.V != 1 {
		return fmt.Errorf("%w: unsupported schema version %d", ErrValidation, e.V)
	}
	if e.Source == "" {
		return fmt.Errorf("%w: missing source", ErrValidation)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrValidation)
	}
	if !validKinds[e.Kind] {
		return fmt.Errorf("%w: unrecognized kind %q", ErrValidation, e.Kind)
	}
	if e.SessionID == "" {
		return fmt.Errorf("%w: missing session_id", ErrValidation)
	}
	if e.TS <= 0 {
		return fmt.Errorf("%w: missing or non-positive ts", ErrValidation)
	}
	if len(e.Payload) > maxPayloadBytes {
		return fmt.Errorf("%w: payload exceeds %d bytes", ErrValidation, maxPayloadBytes)
	}
	return nil
}
