package advisory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kiosk404/spark/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, clk clock.Clock) *Gate {
	t.Helper()
	cooldown := NewToolCooldown(clk, 5*time.Minute)
	category := NewCategoryCooldown(clk, DefaultCategoryCooldowns())
	session := NewSessionDedupe(clk, 64)
	global, err := LoadGlobalDedupe(filepath.Join(t.TempDir(), "global.jsonl"), clk, 24*time.Hour)
	require.NoError(t, err)
	budget := NewFallbackBudget(clk, 1, time.Minute)
	return NewGate(DefaultGateConfig(), cooldown, category, session, global, budget)
}

func baseCtx() Context {
	return Context{Tool: "bash", Phase: PhaseImplementation, SessionID: "sess-1", TraceID: "trace-1"}
}

func TestGateEmptyTextIsSuppressed(t *testing.T) {
	g := newTestGate(t, clock.Real())
	d := g.Evaluate(baseCtx(), "", AuthorityNote, "", false)
	assert.False(t, d.Emit)
	assert.Equal(t, ReasonSynthEmpty, d.Reason)
}

func TestGateSuppressesLowAuthorityDuringExploration(t *testing.T) {
	g := newTestGate(t, clock.Real())
	ctx := baseCtx()
	ctx.Phase = PhaseExploration
	d := g.Evaluate(ctx, "run the linter first", AuthorityNote, "", false)
	assert.False(t, d.Emit)
	assert.Equal(t, ReasonGateSuppressed, d.Reason)
}

func TestGateAllowsWhisperDuringExploration(t *testing.T) {
	g := newTestGate(t, clock.Real())
	ctx := baseCtx()
	ctx.Phase = PhaseExploration
	d := g.Evaluate(ctx, "run the linter first", AuthorityWhisper, "", false)
	assert.True(t, d.Emit)
}

func TestGateEnforcesToolCooldown(t *testing.T) {
	clk := clock.Fixed{T: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, clk)
	ctx := baseCtx()

	first := g.Evaluate(ctx, "always run tests before pushing", AuthorityNote, "", false)
	assert.True(t, first.Emit)

	second := g.Evaluate(ctx, "a completely different piece of advice text", AuthorityNote, "", false)
	assert.False(t, second.Emit, "same tool+session within cooldown must be suppressed regardless of text")
	assert.Equal(t, ReasonGateSuppressed, second.Reason)
}

func TestGateSuppressesDuplicateTextWithinSession(t *testing.T) {
	stepped := &clock.Stepped{Start: time.Unix(1_700_000_000, 0), Step: 10 * time.Minute}
	g := newTestGate(t, stepped)
	ctx1 := baseCtx()
	ctx2 := baseCtx()
	ctx2.Tool = "edit" // different tool avoids the per-tool cooldown stage

	first := g.Evaluate(ctx1, "always run gofmt before committing", AuthorityNote, "", false)
	require.True(t, first.Emit)

	second := g.Evaluate(ctx2, "Always Run Gofmt Before Committing", AuthorityNote, "", false)
	assert.False(t, second.Emit)
	assert.Equal(t, ReasonDuplicateSuppressed, second.Reason)
}

func TestGateEnforcesFallbackBudget(t *testing.T) {
	clk := clock.Fixed{T: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, clk)

	ctx1 := baseCtx()
	first := g.Evaluate(ctx1, "text one", AuthorityNote, "", true)
	require.True(t, first.Emit)

	ctx2 := baseCtx()
	ctx2.Tool = "edit"
	second := g.Evaluate(ctx2, "text two, unrelated to the first", AuthorityNote, "", true)
	assert.False(t, second.Emit)
	assert.Equal(t, ReasonFallbackBudget, second.Reason)
}

func TestGateNonFallbackIgnoresBudget(t *testing.T) {
	clk := clock.Fixed{T: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, clk)

	ctx1 := baseCtx()
	require.True(t, g.Evaluate(ctx1, "text one", AuthorityNote, "", true).Emit)

	ctx2 := baseCtx()
	ctx2.Tool = "edit"
	d := g.Evaluate(ctx2, "text two, unrelated to the first", AuthorityNote, "", false)
	assert.True(t, d.Emit, "budget only applies to fallback emissions")
}

func TestGateEnforcesCategoryCooldown(t *testing.T) {
	clk := clock.Fixed{T: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, clk)

	ctx1 := baseCtx()
	first := g.Evaluate(ctx1, "this codebase uses 4-space indentation", AuthorityNote, "content-pattern", false)
	require.True(t, first.Emit)

	// Different tool and different text avoid the tool-cooldown and
	// dedupe stages, isolating the category-cooldown stage.
	ctx2 := baseCtx()
	ctx2.Tool = "edit"
	second := g.Evaluate(ctx2, "this codebase uses snake_case identifiers", AuthorityNote, "content-pattern", false)
	assert.False(t, second.Emit)
	assert.Equal(t, ReasonCategoryCooldown, second.Reason)
}

func TestGateUncategorizedCandidateIgnoresCategoryCooldown(t *testing.T) {
	clk := clock.Fixed{T: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, clk)

	ctx1 := baseCtx()
	require.True(t, g.Evaluate(ctx1, "text one", AuthorityNote, "", false).Emit)

	ctx2 := baseCtx()
	ctx2.Tool = "edit"
	d := g.Evaluate(ctx2, "text two, unrelated to the first", AuthorityNote, "", false)
	assert.True(t, d.Emit, "empty category never applies a cooldown")
}

func TestGateCategoryWithNoConfiguredCooldownIsUnaffected(t *testing.T) {
	clk := clock.Fixed{T: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, clk)

	ctx1 := baseCtx()
	require.True(t, g.Evaluate(ctx1, "text one", AuthorityNote, "decision", false).Emit)

	ctx2 := baseCtx()
	ctx2.Tool = "edit"
	d := g.Evaluate(ctx2, "text two, unrelated to the first", AuthorityNote, "decision", false)
	assert.True(t, d.Emit, "decision has no configured cooldown in DefaultCategoryCooldowns")
}

func TestPhasePolicyMeetsIsPermissiveOutsideConfiguredPhases(t *testing.T) {
	p := DefaultPhasePolicy()
	assert.True(t, p.meets(PhaseImplementation, AuthorityNote), "phases absent from the policy have no floor")
	assert.False(t, p.meets(PhaseExploration, AuthorityNote))
	assert.True(t, p.meets(PhaseExploration, AuthorityWarning))
}
