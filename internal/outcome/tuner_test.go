package outcome

import (
	"testing"
	"time"

	"github.com/kiosk404/spark/internal/insight"
	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTuner(t *testing.T, clk clock.Clock) (*Tuner, *LinkStore, *insight.Store) {
	t.Helper()
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)

	links, err := OpenLinkStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = links.Close() })

	insights, err := insight.Open(dir, clk)
	require.NoError(t, err)

	tuner, err := NewTuner(clk, dir, links, insights)
	require.NoError(t, err)
	return tuner, links, insights
}

func TestProcessSignalWritesLinkAndUpdatesReliability(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clk := clock.Fixed{T: now}
	tuner, links, insights := newTestTuner(t, clk)

	_, err := insights.ValidateAndStore(insight.Candidate{
		Key:        "always-run-tests",
		Text:       "always run tests before pushing because CI is slow",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	cand := RecentAdvice{
		AdviceID:   "advice-1",
		InsightKey: "always-run-tests",
		Source:     "cognitive",
		Text:       "always run tests before pushing",
		Tool:       "bash",
		TraceID:    "trace-1",
		At:         now.Add(-time.Minute),
	}
	sig := Signal{Positive: true, Confidence: 0.9, TraceID: "trace-1", Text: "great, thanks that worked", At: now}

	require.NoError(t, tuner.ProcessSignal(sig, []RecentAdvice{cand}, DefaultWindow))

	linked, err := links.ByInsightKey("always-run-tests")
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.True(t, linked[0].Positive)

	ins, ok := insights.Get("always-run-tests")
	require.True(t, ok)
	assert.Greater(t, ins.Reliability, 0.5)

	boosts := tuner.SourceBoosts()
	assert.Contains(t, boosts, "cognitive")
}

func TestProcessSignalSkipsCandidatesOutsideWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clk := clock.Fixed{T: now}
	tuner, links, _ := newTestTuner(t, clk)

	cand := RecentAdvice{
		AdviceID: "advice-old", InsightKey: "stale-key", Source: "cognitive",
		Text: "some stale advice", At: now.Add(-time.Hour),
	}
	sig := Signal{Positive: true, Confidence: 0.9, Text: "that worked", At: now}

	require.NoError(t, tuner.ProcessSignal(sig, []RecentAdvice{cand}, 30*time.Minute))

	linked, err := links.ByInsightKey("stale-key")
	require.NoError(t, err)
	assert.Empty(t, linked, "candidate older than the window must not be linked")
}

func TestSourceBoostStaysWithinClampedRange(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clk := clock.Fixed{T: now}
	tuner, _, _ := newTestTuner(t, clk)

	cand := RecentAdvice{AdviceID: "a1", Source: "baseline", Text: "some advice text", At: now.Add(-time.Minute), TraceID: "t1"}
	// Feed it twenty consecutive positive signals: even under a perfectly
	// positive feedback run the boost must never exceed BoostCeiling.
	for i := 0; i < 20; i++ {
		sig := Signal{Positive: true, Confidence: 1.0, TraceID: "t1", Text: "some advice text", At: now}
		require.NoError(t, tuner.ProcessSignal(sig, []RecentAdvice{cand}, DefaultWindow))
	}
	boost := tuner.SourceBoosts()["baseline"]
	assert.LessOrEqual(t, boost, BoostCeiling)
	assert.GreaterOrEqual(t, boost, BoostFloor)
}
