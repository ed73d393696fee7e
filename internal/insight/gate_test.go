package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNoise(t *testing.T) {
	cases := map[string]bool{
		"heavy bash usage detected":        true,
		"read -> edit -> write":            true,
		"Cycle summary: 4 events processed": true,
		"12 tool calls made this session":  true,
		"prefer tabs over spaces in Makefiles": false,
	}
	for text, want := range cases {
		assert.Equal(t, want, IsNoise(text), "text=%q", text)
	}
}

func TestScoreActionabilityRewardsImperativeLanguage(t *testing.T) {
	strong := Score(Candidate{Text: "always run gofmt before committing"}, nil)
	weak := Score(Candidate{Text: "ok"}, nil)
	assert.Equal(t, 2, strong.Actionability)
	assert.Equal(t, 0, weak.Actionability)
}

func TestScoreNoveltyDetectsRepeat(t *testing.T) {
	existing := map[string]*Insight{
		"key1": {Key: "key1", Text: "use gofmt"},
	}
	repeat := scoreNovelty(Candidate{Key: "key1", Text: "Use Gofmt"}, existing)
	changed := scoreNovelty(Candidate{Key: "key1", Text: "use goimports instead"}, existing)
	fresh := scoreNovelty(Candidate{Key: "key2", Text: "anything"}, existing)
	assert.Equal(t, 0, repeat)
	assert.Equal(t, 1, changed)
	assert.Equal(t, 2, fresh)
}

func TestJudgeThresholds(t *testing.T) {
	assert.Equal(t, VerdictNeedsWork, Judge(Scores{2, 2, 2, 0, 2}))
	assert.Equal(t, VerdictQuality, Judge(Scores{2, 2, 1, 1, 1}))
	assert.Equal(t, VerdictPrimitive, Judge(Scores{0, 0, 0, 0, 0}))
	assert.Equal(t, VerdictNeedsWork, Judge(Scores{1, 0, 0, 0, 0}))
}

func TestJudgeRejectsZeroDimensionEvenAboveThreshold(t *testing.T) {
	// total is 7 (>= QualityThreshold) but Specificity is zero, so this
	// must not pass as QUALITY per the no-zero-dimension rule.
	s := Scores{Actionability: 2, Novelty: 2, Reasoning: 2, Specificity: 0, OutcomeLinked: 1}
	assert.Equal(t, VerdictNeedsWork, Judge(s))
}
