// Package advisory implements the pre-tool advisory engine and gate (C6):
// context build, packet caching, retrieval, synthesis, gating, and
// emission, with every decision written to the append-only decision
// ledger. Grounded on echoryn's hivemind request-handling composition
// style (context object threaded through ordered stages) and memory-core's
// write-gate-style verdict branching, generalized to the advisory domain.
package advisory

import (
	"time"

	"github.com/kiosk404/spark/internal/retrieval"
)

// Phase is the inferred workflow state driving gate policy.
type Phase string

const (
	PhaseExploration     Phase = "exploration"
	PhasePlanning        Phase = "planning"
	PhaseImplementation  Phase = "implementation"
	PhaseTesting         Phase = "testing"
	PhaseDebugging       Phase = "debugging"
	PhaseDeployment      Phase = "deployment"
)

// Reason codes for gate suppression / engine failure, per spec §4.6.
const (
	ReasonGateSuppressed        = "AE_GATE_SUPPRESSED"
	ReasonDuplicateSuppressed   = "AE_DUPLICATE_SUPPRESSED"
	ReasonLowAuthGlobalSuppress = "AE_LOW_AUTH_GLOBAL_SUPPRESSED"
	ReasonSynthEmpty            = "AE_SYNTH_EMPTY"
	ReasonNoAdvice              = "AE_NO_ADVICE"
	ReasonFallbackBudget        = "AE_FALLBACK_BUDGET"
	ReasonCategoryCooldown      = "AE_CATEGORY_COOLDOWN"
	ReasonDeadline              = "AE_DEADLINE"
	ReasonEngineError           = "AE_ENGINE_ERROR"
)

// Authority is a coarse rank on the emitted advice, used for cooldown and
// phase-policy decisions (note/whisper/warning per spec §4.6 step 6).
type Authority string

const (
	AuthorityNote    Authority = "note"
	AuthorityWhisper Authority = "whisper"
	AuthorityWarning Authority = "warning"
)

// AdviceItem is the synthesized advisory produced for one pre_tool event.
type AdviceItem struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Source    retrieval.Source  `json:"source"`
	Authority Authority         `json:"authority"`
	TraceID   string            `json:"trace_id"`
	ToolScope string            `json:"tool_scope"`
	CreatedAt time.Time         `json:"created_at"`
}

// Packet is a cached bundle of candidates keyed by context fingerprint.
type Packet struct {
	Fingerprint string                 `json:"fingerprint"`
	Candidates  []retrieval.Candidate  `json:"candidates"`
	CreatedAt   time.Time              `json:"created_at"`
	TTL         time.Duration          `json:"ttl"`
}

func (p Packet) Expired(now time.Time) bool { return now.Sub(p.CreatedAt) > p.TTL }

// DecisionRow is one ledger row: every advisory decision, emitted or
// suppressed, bound to a trace id (I2).
type DecisionRow struct {
	TraceID    string    `json:"trace_id"`
	SessionID  string    `json:"session_id"`
	Tool       string    `json:"tool"`
	Phase      Phase     `json:"phase"`
	Event      string    `json:"event"` // "emitted" | "blocked"
	Reason     string    `json:"reason,omitempty"`
	Source     string    `json:"source,omitempty"`
	Text       string    `json:"text,omitempty"`
	Authority  Authority `json:"authority,omitempty"`
	At         time.Time `json:"at"`
	LatencyMS  int64     `json:"latency_ms"`
}

// Context is the per-call state threaded through the pipeline's stages.
type Context struct {
	Tool         string
	Phase        Phase
	IntentFamily string
	TraceID      string
	SessionID    string
	Cwd          string
	Text         string

	Deadline time.Time
	Started  time.Time
}

// RemainingMS returns milliseconds left until the hard deadline, which may
// be negative once it has passed.
func (c Context) RemainingMS() int64 {
	return time.Until(c.Deadline).Milliseconds()
}
