package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/kiosk404/spark/internal/queue"
)

// wireEvent mirrors the /ingest JSON contract exactly; unknown keys are
// ignored by virtue of not appearing here.
type wireEvent struct {
	V         int             `json:"v"`
	Source    string          `json:"source"`
	Kind      string          `json:"kind"`
	TS        int64           `json:"ts"`
	SessionID string          `json:"session_id"`
	TraceID   string          `json:"trace_id"`
	Payload   json.RawMessage `json:"payload"`
}

type payloadToolFields struct {
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input"`
}

func decodeEvent(body []byte, ev *queue.Event) error {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	ev.V = w.V
	ev.Source = w.Source
	ev.Kind = queue.Kind(w.Kind)
	ev.TS = w.TS
	ev.SessionID = w.SessionID
	ev.TraceID = w.TraceID
	ev.Payload = w.Payload

	if len(w.Payload) > 0 {
		var pf payloadToolFields
		if err := json.Unmarshal(w.Payload, &pf); err == nil {
			ev.ToolName = pf.ToolName
			ev.ToolInput = pf.ToolInput
		}
	}
	return nil
}
