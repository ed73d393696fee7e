package advisory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/kiosk404/spark/internal/queue"
	"github.com/kiosk404/spark/internal/retrieval"
	"github.com/kiosk404/spark/internal/retrieval/hybrid"
	"github.com/kiosk404/spark/pkg/clock"
	"github.com/kiosk404/spark/pkg/logger"
)

// OutcomePredictor looks up a failure probability for
// (phase, intent family, tool) when SPARK_OUTCOME_PREDICTOR is enabled. The
// authority bump it triggers is EngineConfig.OutcomeAuthorityBump, which
// tuneables.json does not set.
type OutcomePredictor interface {
	FailureProbability(phase Phase, intentFamily, tool string) float64
}

// NoopOutcomePredictor always reports zero failure probability, the
// behavior when the feature flag is off.
type NoopOutcomePredictor struct{}

func (NoopOutcomePredictor) FailureProbability(Phase, string, string) float64 { return 0 }

// Emitter is the narrow hook the engine calls on a successful emission so
// the rendered context file can be refreshed outside the bridge cycle's own
// render-context step, e.g. for an immediate high-authority warning.
type Emitter interface {
	EmitAdvice(item AdviceItem)
}

// NoopEmitter discards emissions; render-context (bridge cycle step 1)
// still picks up the insight store's current state on its own schedule.
type NoopEmitter struct{}

func (NoopEmitter) EmitAdvice(AdviceItem) {}

// RecentEvents supplies the short event history the phase inference and
// intent-family extraction need, satisfied by *queue.Queue.
type RecentEvents interface {
	TailRecent(n int) ([]queue.Event, error)
}

// EngineConfig bundles the tuneables the hot path consults, refreshed once
// per bridge cycle from tuneables.json.
type EngineConfig struct {
	SoftDeadline time.Duration
	HardDeadline time.Duration
	PacketTTL    time.Duration
	Synth        SynthConfig
	Gate         GateConfig
	FallbackBudgetCap    int
	FallbackBudgetWindow time.Duration
	OutcomePredictorEnabled bool
	OutcomeAuthorityBump    float64
	ChipsDisabled           bool
}

// DefaultEngineConfig mirrors spec §4.6's named defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SoftDeadline:         1500 * time.Millisecond,
		HardDeadline:         3500 * time.Millisecond,
		PacketTTL:            2 * time.Minute,
		Synth:                SynthConfig{SelectiveAIEnabled: false, MinAuthority: 0.6, MinRemainingMS: 500, AITimeout: 2 * time.Second, MaxItems: 3},
		Gate:                 DefaultGateConfig(),
		FallbackBudgetCap:    5,
		FallbackBudgetWindow: time.Minute,
		OutcomeAuthorityBump: 0.1,
	}
}

// Engine runs the full C6 pipeline on every pre_tool event.
type Engine struct {
	clk       clock.Clock
	retrieval *retrieval.Manager
	ledger    *Ledger
	packets   *PacketCache
	gate      *Gate
	budget    *FallbackBudget
	predictor OutcomePredictor
	ai        AISynthesizer
	emitter   Emitter
	events    RecentEvents
	recent    *RecentAdviceLog

	cfg EngineConfig
}

// NewEngine wires an Engine from its collaborators; gate and budget are
// constructed by the caller (internal/sparkd bootstrap) since they in turn
// need the statedir paths for persistent dedupe.
func NewEngine(clk clock.Clock, rm *retrieval.Manager, ledger *Ledger, recent *RecentAdviceLog, gate *Gate, budget *FallbackBudget, events RecentEvents) *Engine {
	return &Engine{
		clk:       clk,
		retrieval: rm,
		ledger:    ledger,
		packets:   NewPacketCache(clk, DefaultEngineConfig().PacketTTL),
		gate:      gate,
		budget:    budget,
		predictor: NoopOutcomePredictor{},
		emitter:   NoopEmitter{},
		events:    events,
		recent:    recent,
		cfg:       DefaultEngineConfig(),
	}
}

// Reconfigure swaps in a fresh EngineConfig, called after each tuneables
// hot-reload, and propagates the gate sub-config to the engine's own Gate
// instance so phase policy and cooldowns stay in sync with thresholds.
func (e *Engine) Reconfigure(cfg EngineConfig) {
	if _, noop := e.predictor.(NoopOutcomePredictor); !noop && e.predictor != nil {
		cfg.OutcomePredictorEnabled = true
	}
	e.cfg = cfg
	if e.gate != nil {
		e.gate.Reconfigure(cfg.Gate)
	}
	if e.budget != nil {
		e.budget.Reconfigure(cfg.FallbackBudgetCap, cfg.FallbackBudgetWindow)
	}
}

// SetOutcomePredictor installs a real predictor when SPARK_OUTCOME_PREDICTOR
// is set and turns its lookup on, which Reconfigure keeps on from then on;
// otherwise the engine keeps NoopOutcomePredictor.
func (e *Engine) SetOutcomePredictor(p OutcomePredictor) {
	e.predictor = p
	e.cfg.OutcomePredictorEnabled = true
}

// SetEmitter installs the frontend-render hook.
func (e *Engine) SetEmitter(em Emitter) { e.emitter = em }

// SetAISynthesizer installs the optional selective-AI backend.
func (e *Engine) SetAISynthesizer(ai AISynthesizer) { e.ai = ai }

// HandlePreTool implements ingest.Advisor. It never panics or blocks the
// caller past the hard deadline; every exit path writes exactly one ledger
// row bound to the event's trace id (I2).
func (e *Engine) HandlePreTool(ev queue.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Advisor] engine panic for trace %s: %v", ev.TraceID, r)
			e.ledger.Write(DecisionRow{
				TraceID: ev.TraceID, SessionID: ev.SessionID, Tool: ev.ToolName,
				Event: "blocked", Reason: ReasonEngineError, At: e.clk.Now(),
			})
		}
	}()

	traceID := ev.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	started := e.clk.Now()
	ctx := Context{
		Tool:      ev.ToolName,
		TraceID:   traceID,
		SessionID: ev.SessionID,
		Started:   started,
		Deadline:  started.Add(e.cfg.HardDeadline),
	}
	ctx.Phase, ctx.IntentFamily, ctx.Cwd = e.buildContext(ev)
	ctx.Text = extractQueryText(ev)

	if ctx.RemainingMS() <= 0 {
		e.finish(ctx, DecisionRow{Event: "blocked", Reason: ReasonDeadline}, started)
		return
	}

	candidates, isFallback := e.retrieveOrReuse(ctx)
	if len(candidates) == 0 {
		e.finish(ctx, DecisionRow{Event: "blocked", Reason: ReasonNoAdvice}, started)
		return
	}

	if ctx.RemainingMS() <= 0 {
		e.finish(ctx, DecisionRow{Event: "blocked", Reason: ReasonDeadline}, started)
		return
	}

	authorityScoreVal := authorityScore(candidates)
	if e.cfg.OutcomePredictorEnabled {
		if p := e.predictor.FailureProbability(ctx.Phase, ctx.IntentFamily, ctx.Tool); p >= 0.5 {
			authorityScoreVal += e.cfg.OutcomeAuthorityBump
			if authorityScoreVal > 1 {
				authorityScoreVal = 1
			}
		}
	}
	authority := authorityTier(authorityScoreVal, e.cfg.Gate.NoteThreshold, e.cfg.Gate.WhisperThreshold, e.cfg.Gate.WarningThreshold)

	synthCtx, cancel := context.WithDeadline(context.Background(), ctx.Deadline)
	defer cancel()
	result := Synthesize(synthCtx, e.cfg.Synth, e.ai, ctx.Tool, ctx.Phase, authorityScoreVal, ctx.RemainingMS(), candidates)
	if result.Text == "" {
		e.finish(ctx, DecisionRow{Event: "blocked", Reason: ReasonSynthEmpty}, started)
		return
	}

	decision := e.gate.Evaluate(ctx, result.Text, authority, candidates[0].Category, isFallback)
	if !decision.Emit {
		e.finish(ctx, DecisionRow{Event: "blocked", Reason: decision.Reason}, started)
		return
	}

	source := candidates[0].Source
	item := AdviceItem{
		ID: uuid.NewString(), Text: result.Text, Source: source,
		Authority: authority, TraceID: ctx.TraceID, ToolScope: ctx.Tool, CreatedAt: e.clk.Now(),
	}
	e.emitter.EmitAdvice(item)
	if e.recent != nil {
		e.recent.Append(RecentAdviceRow{
			AdviceID: item.ID, InsightKey: candidates[0].Key, Source: string(source),
			Text: item.Text, Tool: ctx.Tool, TraceID: ctx.TraceID, At: item.CreatedAt,
		})
	}
	e.finish(ctx, DecisionRow{
		Event: "emitted", Source: string(source), Text: result.Text, Authority: authority,
	}, started)
}

func (e *Engine) finish(ctx Context, row DecisionRow, started time.Time) {
	row.TraceID = ctx.TraceID
	row.SessionID = ctx.SessionID
	row.Tool = ctx.Tool
	row.Phase = ctx.Phase
	row.At = e.clk.Now()
	row.LatencyMS = e.clk.Now().Sub(started).Milliseconds()
	e.ledger.Write(row)
}

func (e *Engine) retrieveOrReuse(ctx Context) ([]retrieval.Candidate, bool) {
	fp := Fingerprint(ctx.Tool, string(ctx.Phase), ctx.IntentFamily, topTokens(ctx.Text, 5))
	if pkt, ok := e.packets.Get(fp); ok {
		return pkt.Candidates, len(pkt.Candidates) == 1 && pkt.Candidates[0].Source == retrieval.SourceBaseline
	}

	retrieveCtx, cancel := context.WithDeadline(context.Background(), ctx.Deadline)
	defer cancel()
	candidates, err := e.retrieval.Retrieve(retrieveCtx, retrieval.Query{
		Tool: ctx.Tool, Phase: string(ctx.Phase), IntentFamily: ctx.IntentFamily, Text: ctx.Text, Cwd: ctx.Cwd,
	})
	if err != nil {
		logger.Warn("[Advisor] retrieval failed for trace %s: %v", ctx.TraceID, err)
		candidates = nil
	}
	e.packets.Put(fp, Packet{Fingerprint: fp, Candidates: candidates, TTL: e.cfg.PacketTTL})
	isFallback := len(candidates) == 1 && candidates[0].Source == retrieval.SourceBaseline
	return candidates, isFallback
}

func (e *Engine) buildContext(ev queue.Event) (Phase, string, string) {
	phase := PhaseImplementation
	intentFamily := intentFamilyForTool(ev.ToolName)
	cwd := ""

	if e.events == nil {
		return phase, intentFamily, cwd
	}
	recent, err := e.events.TailRecent(25)
	if err != nil {
		return phase, intentFamily, cwd
	}
	phase = inferPhase(recent, ev)
	return phase, intentFamily, cwd
}

// IntentFamilyForTool exports the engine's tool-to-intent-family mapping
// for the bridge cycle's prediction loop, which needs the same vocabulary
// when building the outcome predictor's lookup key.
func IntentFamilyForTool(tool string) string { return intentFamilyForTool(tool) }

// PhaseForEvent exports the engine's single-event phase heuristic for the
// same reason.
func PhaseForEvent(ev queue.Event) Phase { return phaseForEvent(ev) }

func intentFamilyForTool(tool string) string {
	switch tool {
	case "Bash", "Command":
		return "execution"
	case "Edit", "Write", "MultiEdit":
		return "authoring"
	case "Read", "Grep", "Glob":
		return "inspection"
	default:
		return "general"
	}
}

// inferPhase applies a simple recency-weighted heuristic over recent tool
// names, matching the phase vocabulary the spec names (exploration,
// planning, implementation, testing, debugging, deployment) without
// requiring a trained classifier.
func inferPhase(recent []queue.Event, current queue.Event) Phase {
	counts := map[Phase]int{}
	for _, e := range recent {
		counts[phaseForEvent(e)]++
	}
	counts[phaseForEvent(current)] += 2 // weight the current event more
	best := PhaseImplementation
	bestCount := -1
	for p, c := range counts {
		if c > bestCount {
			best, bestCount = p, c
		}
	}
	return best
}

func phaseForEvent(e queue.Event) Phase {
	switch e.ToolName {
	case "Grep", "Glob", "Read":
		return PhaseExploration
	case "Bash":
		return PhaseTesting
	case "Edit", "Write", "MultiEdit":
		return PhaseImplementation
	default:
		return PhaseImplementation
	}
}

func extractQueryText(ev queue.Event) string {
	if len(ev.ToolInput) > 0 {
		var v map[string]interface{}
		if err := json.Unmarshal(ev.ToolInput, &v); err == nil {
			if cmd, ok := v["command"].(string); ok {
				return cmd
			}
			if path, ok := v["file_path"].(string); ok {
				return path
			}
		}
		return string(ev.ToolInput)
	}
	return ev.ToolName
}

func topTokens(text string, n int) string {
	toks := hybrid.Tokenize(text)
	if len(toks) > n {
		toks = toks[:n]
	}
	out := ""
	for _, t := range toks {
		out += t + " "
	}
	return out
}
