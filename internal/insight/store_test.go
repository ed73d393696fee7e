package insight

import (
	"testing"
	"time"

	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, *statedir.Dir) {
	t.Helper()
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)
	s, err := Open(dir, clock.Fixed{T: time.Unix(1000, 0)})
	require.NoError(t, err)
	return s, dir
}

func TestValidateAndStoreNoiseGoesToRoastNotInsights(t *testing.T) {
	s, _ := openTestStore(t)

	res, err := s.ValidateAndStore(Candidate{Key: "k1", Text: "12 tool calls made this session"})
	require.NoError(t, err)
	assert.Equal(t, VerdictPrimitive, res.Verdict)
	assert.Nil(t, res.Insight)

	_, ok := s.Get("k1")
	assert.False(t, ok)
}

func TestValidateAndStoreQualityCandidateIsStored(t *testing.T) {
	s, _ := openTestStore(t)

	c := Candidate{
		Key:        "prefer-gofmt",
		Text:       "always run `gofmt` before committing because CI rejects unformatted diffs",
		Category:   CategoryPreference,
		Confidence: 0.9,
		Evidence:   []string{"CI failed on PR #42"},
	}
	res, err := s.ValidateAndStore(c)
	require.NoError(t, err)
	assert.Equal(t, VerdictQuality, res.Verdict)
	require.NotNil(t, res.Insight)
	assert.Equal(t, "prefer-gofmt", res.Insight.Key)
	assert.Equal(t, 0.5, res.Insight.Reliability)

	stored, ok := s.Get("prefer-gofmt")
	require.True(t, ok)
	assert.Equal(t, VerdictQuality, stored.Verdict)
}

func TestValidateAndStoreReinforcesOnRepeat(t *testing.T) {
	s, _ := openTestStore(t)
	c := Candidate{
		Key:        "prefer-gofmt",
		Text:       "always run gofmt before committing because CI rejects unformatted diffs",
		Confidence: 0.4,
	}
	_, err := s.ValidateAndStore(c)
	require.NoError(t, err)

	c2 := Candidate{
		Key:        "prefer-gofmt",
		Text:       "never skip gofmt so that CI passes on the first try",
		Confidence: 1.0,
	}
	res2, err := s.ValidateAndStore(c2)
	require.NoError(t, err)
	require.NotNil(t, res2.Insight)
	assert.Equal(t, 1, res2.Insight.Reinforced)
	assert.InDelta(t, (0.4+1.0)/2, res2.Insight.Confidence, 0.0001)
}

func TestBeginBatchEndBatchDefersPersist(t *testing.T) {
	s, dir := openTestStore(t)

	s.BeginBatch()
	_, err := s.ValidateAndStore(Candidate{
		Key:        "batched",
		Text:       "always prefer explicit errors over panics in library code",
		Confidence: 0.8,
	})
	require.NoError(t, err)

	var doc document
	require.NoError(t, statedir.ReadJSON(dir.CognitiveInsights(), &doc))
	assert.Empty(t, doc.Insights, "write must not hit disk before EndBatch")

	require.NoError(t, s.EndBatch())

	doc = document{}
	require.NoError(t, statedir.ReadJSON(dir.CognitiveInsights(), &doc))
	assert.Contains(t, doc.Insights, "batched")
}

func TestRecordOutcomeSmoothsReliabilityTowardTarget(t *testing.T) {
	s, _ := openTestStore(t)
	_, err := s.ValidateAndStore(Candidate{
		Key:        "reliable-thing",
		Text:       "always validate user input at the API boundary",
		Confidence: 0.9,
	})
	require.NoError(t, err)

	require.NoError(t, s.RecordOutcome("reliable-thing", true))
	ins, ok := s.Get("reliable-thing")
	require.True(t, ok)
	assert.InDelta(t, 0.6, ins.Reliability, 0.0001) // 0.5 + 0.2*(1-0.5)
	assert.Equal(t, 1, ins.PositiveOutcomes)

	require.NoError(t, s.RecordOutcome("reliable-thing", false))
	ins, _ = s.Get("reliable-thing")
	assert.Equal(t, 1, ins.NegativeOutcomes)
	assert.Less(t, ins.Reliability, 0.6)
}

func TestRecordOutcomeUnknownKeyIsNoop(t *testing.T) {
	s, _ := openTestStore(t)
	assert.NoError(t, s.RecordOutcome("does-not-exist", true))
}

func TestValidationTalliesValidatedInvalidatedPending(t *testing.T) {
	s, _ := openTestStore(t)
	for _, c := range []Candidate{
		{Key: "proven", Text: "always squash commits before merging to keep history readable", Confidence: 0.9},
		{Key: "disproven", Text: "prefer long-lived feature branches over trunk-based development", Confidence: 0.9},
		{Key: "untested", Text: "keep config files under a single top-level directory", Confidence: 0.9},
	} {
		_, err := s.ValidateAndStore(c)
		require.NoError(t, err)
	}

	// Exponential smoothing (alpha=0.2) needs three same-polarity signals
	// to cross the 0.7/0.3 validated/invalidated bars from the 0.5 start.
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordOutcome("proven", true))
		require.NoError(t, s.RecordOutcome("disproven", false))
	}

	vc := s.Validation()
	assert.Equal(t, 1, vc.Validated)
	assert.Equal(t, 1, vc.Invalidated)
	assert.Equal(t, 1, vc.Pending)
}
