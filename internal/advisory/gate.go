package advisory

import (
	"sync"
	"time"

	"github.com/kiosk404/spark/pkg/clock"
)

// PhasePolicy controls which phases require a higher authority bar before
// any emission is allowed (spec §4.6 step 6, "suppress in pure exploration
// unless high-authority").
type PhasePolicy map[Phase]Authority

// DefaultPhasePolicy requires at least whisper-level authority during pure
// exploration, and allows anything note-level or higher elsewhere.
func DefaultPhasePolicy() PhasePolicy {
	return PhasePolicy{
		PhaseExploration: AuthorityWhisper,
	}
}

func authorityRank(a Authority) int {
	switch a {
	case AuthorityWarning:
		return 2
	case AuthorityWhisper:
		return 1
	default:
		return 0
	}
}

// meets reports whether candidate authority a satisfies the floor required
// by policy for phase (phases absent from the policy have no floor).
func (p PhasePolicy) meets(phase Phase, a Authority) bool {
	floor, ok := p[phase]
	if !ok {
		return true
	}
	return authorityRank(a) >= authorityRank(floor)
}

// ToolCooldown tracks the last emission time per (tool, session) so a
// cooldown window can suppress rapid repeats of the same advisory class.
type ToolCooldown struct {
	mu       sync.Mutex
	clk      clock.Clock
	cooldown time.Duration
	last     map[string]time.Time
}

func NewToolCooldown(clk clock.Clock, cooldown time.Duration) *ToolCooldown {
	return &ToolCooldown{clk: clk, cooldown: cooldown, last: map[string]time.Time{}}
}

// SetCooldown updates the cooldown window applied to future Allow calls.
func (t *ToolCooldown) SetCooldown(d time.Duration) {
	t.mu.Lock()
	t.cooldown = d
	t.mu.Unlock()
}

// Allow reports whether an emission for key is outside its cooldown window,
// recording the attempt time when it is.
func (t *ToolCooldown) Allow(key string) bool {
	now := t.clk.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.cooldown {
		return false
	}
	t.last[key] = now
	return true
}

// CategoryCooldown tracks the last emission time per (category, session),
// applying a distinct cooldown window per insight category rather than
// ToolCooldown's single shared duration — a chatty "content-pattern"
// observation and a rare "decision" advisory shouldn't share one window.
// Categories absent from the table, and the empty category (candidates
// with nothing to classify, e.g. the baseline fallback), have no cooldown.
type CategoryCooldown struct {
	mu       sync.Mutex
	clk      clock.Clock
	cooldown map[string]time.Duration
	last     map[string]time.Time
}

func NewCategoryCooldown(clk clock.Clock, cooldown map[string]time.Duration) *CategoryCooldown {
	if cooldown == nil {
		cooldown = map[string]time.Duration{}
	}
	return &CategoryCooldown{clk: clk, cooldown: cooldown, last: map[string]time.Time{}}
}

// SetCooldowns replaces the per-category duration table applied to future
// Allow calls.
func (c *CategoryCooldown) SetCooldowns(m map[string]time.Duration) {
	c.mu.Lock()
	c.cooldown = m
	c.mu.Unlock()
}

// Allow reports whether an emission for (category, sessionID) is outside
// its configured cooldown window, recording the attempt time when it is.
func (c *CategoryCooldown) Allow(category, sessionID string) bool {
	if category == "" {
		return true
	}
	c.mu.Lock()
	d, ok := c.cooldown[category]
	if !ok || d <= 0 {
		c.mu.Unlock()
		return true
	}
	key := category + "|" + sessionID
	now := c.clk.Now()
	if last, ok := c.last[key]; ok && now.Sub(last) < d {
		c.mu.Unlock()
		return false
	}
	c.last[key] = now
	c.mu.Unlock()
	return true
}

// DefaultCategoryCooldowns gives the chattier, low-authority categories a
// short cooldown so they can't monopolize every call, while leaving
// sparser, high-value categories (decision, principle) uncapped.
func DefaultCategoryCooldowns() map[string]time.Duration {
	return map[string]time.Duration{
		"content-pattern": 10 * time.Minute,
		"signal":          10 * time.Minute,
		"context":         5 * time.Minute,
	}
}

// GateConfig mirrors the tuneables advisory_gate section.
type GateConfig struct {
	NoteThreshold       float64
	WhisperThreshold    float64
	WarningThreshold    float64
	ToolCooldown        time.Duration
	AdviceRepeatCooldown time.Duration
	MaxEmitPerCall      int
	Phase               PhasePolicy
	CategoryCooldowns   map[string]time.Duration
}

// DefaultGateConfig returns the spec's implied conservative defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		NoteThreshold:    0.05,
		WhisperThreshold: 0.2,
		WarningThreshold: 0.5,
		ToolCooldown:     5 * time.Minute,
		MaxEmitPerCall:   1,
		Phase:            DefaultPhasePolicy(),
		CategoryCooldowns: DefaultCategoryCooldowns(),
	}
}

// Gate is the emit/suppress decision layer (spec §4.6 step 6). It composes
// phase policy, authority thresholds against per-tool cooldowns, session
// and global dedupe, category cooldowns, and the fallback budget.
type Gate struct {
	cfg      GateConfig
	cooldown *ToolCooldown
	category *CategoryCooldown
	session  *SessionDedupe
	global   *GlobalDedupe
	budget   *FallbackBudget
}

func NewGate(cfg GateConfig, cooldown *ToolCooldown, category *CategoryCooldown, session *SessionDedupe, global *GlobalDedupe, budget *FallbackBudget) *Gate {
	return &Gate{cfg: cfg, cooldown: cooldown, category: category, session: session, global: global, budget: budget}
}

// Reconfigure swaps in a fresh GateConfig and propagates its cooldown
// durations to the shared ToolCooldown and CategoryCooldown, called once
// per bridge cycle after a tuneables hot-reload.
func (g *Gate) Reconfigure(cfg GateConfig) {
	g.cfg = cfg
	if g.cooldown != nil && cfg.ToolCooldown > 0 {
		g.cooldown.SetCooldown(cfg.ToolCooldown)
	}
	if g.category != nil && cfg.CategoryCooldowns != nil {
		g.category.SetCooldowns(cfg.CategoryCooldowns)
	}
}

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Emit   bool
	Reason string
}

// Evaluate runs every gate stage in the order spec §4.6 lists them,
// short-circuiting on the first failing stage. category is the winning
// candidate's insight category (empty when uncategorized, e.g. baseline).
func (g *Gate) Evaluate(ctx Context, text string, authority Authority, category string, isFallback bool) Decision {
	if text == "" {
		return Decision{Emit: false, Reason: ReasonSynthEmpty}
	}

	if !g.cfg.Phase.meets(ctx.Phase, authority) {
		return Decision{Emit: false, Reason: ReasonGateSuppressed}
	}

	if !g.cooldown.Allow(ctx.Tool + "|" + ctx.SessionID) {
		return Decision{Emit: false, Reason: ReasonGateSuppressed}
	}

	fp := Fingerprint(ctx.Tool, string(ctx.Phase), NormalizeText(text))
	if g.session.Seen(ctx.SessionID, Fingerprint(NormalizeText(text))) {
		return Decision{Emit: false, Reason: ReasonDuplicateSuppressed}
	}
	if g.global.Seen(fp) {
		return Decision{Emit: false, Reason: ReasonLowAuthGlobalSuppress}
	}

	if g.category != nil && !g.category.Allow(category, ctx.SessionID) {
		return Decision{Emit: false, Reason: ReasonCategoryCooldown}
	}

	if isFallback && !g.budget.TryConsume() {
		return Decision{Emit: false, Reason: ReasonFallbackBudget}
	}

	return Decision{Emit: true}
}
