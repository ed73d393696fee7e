package insight

import (
	"regexp"
	"strings"
)

// Scores holds the five Meta-Ralph dimensions, each in [0,2].
type Scores struct {
	Actionability  int `json:"actionability"`
	Novelty        int `json:"novelty"`
	Reasoning      int `json:"reasoning"`
	Specificity    int `json:"specificity"`
	OutcomeLinked  int `json:"outcome_linked"`
}

func (s Scores) total() int {
	return s.Actionability + s.Novelty + s.Reasoning + s.Specificity + s.OutcomeLinked
}

func (s Scores) hasZero() bool {
	return s.Actionability == 0 || s.Novelty == 0 || s.Reasoning == 0 ||
		s.Specificity == 0 || s.OutcomeLinked == 0
}

// Verdict is the result of Meta-Ralph scoring a candidate.
type Verdict string

const (
	VerdictQuality    Verdict = "quality"
	VerdictNeedsWork  Verdict = "needs_work"
	VerdictPrimitive  Verdict = "primitive"
)

// QualityThreshold is the minimum total score (out of 10) required for a
// QUALITY verdict, alongside the no-zero-dimension rule.
const QualityThreshold = 6

// noisePatterns reject purely operational telemetry before scoring ever
// runs, mirroring the shared regex set described in spec §4.4.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^heavy \w+ usage`),
	regexp.MustCompile(`(?i)^read\s*(→|->)\s*edit\s*(→|->)\s*write`),
	regexp.MustCompile(`(?i)^cycle summary`),
	regexp.MustCompile(`(?i)^\d+ (tool )?calls? (made|executed|performed)`),
}

// IsNoise reports whether text is purely operational telemetry that must
// never reach scoring.
func IsNoise(text string) bool {
	for _, p := range noisePatterns {
		if p.MatchString(strings.TrimSpace(text)) {
			return true
		}
	}
	return false
}

var reasoningMarkers = []string{"because", "which leads to", "so that", "in order to"}

// scoreActionability, scoreNovelty, etc. are broken out as named functions
// (not methods), one per dimension; Score calls each in turn. A panic in any
// of them is recovered by Store.ValidateAndStore, which quarantines the
// candidate.

func scoreActionability(c Candidate) int {
	lower := strings.ToLower(c.Text)
	switch {
	case strings.Contains(lower, "always") || strings.Contains(lower, "never") || strings.Contains(lower, "prefer"):
		return 2
	case len(strings.Fields(c.Text)) > 4:
		return 1
	default:
		return 0
	}
}

func scoreNovelty(c Candidate, existing map[string]*Insight) int {
	if _, ok := existing[c.Key]; !ok {
		return 2
	}
	prior := existing[c.Key]
	if strings.EqualFold(strings.TrimSpace(prior.Text), strings.TrimSpace(c.Text)) {
		return 0
	}
	return 1
}

func scoreReasoning(c Candidate) int {
	lower := strings.ToLower(c.Text)
	for _, m := range reasoningMarkers {
		if strings.Contains(lower, m) {
			return 2
		}
	}
	if len(c.Evidence) > 0 {
		return 1
	}
	return 0
}

var namedTokenPattern = regexp.MustCompile(`[A-Z][a-zA-Z0-9_]{2,}|` + "`[^`]+`" + `|\b\d+(\.\d+)?\b`)

func scoreSpecificity(c Candidate) int {
	matches := namedTokenPattern.FindAllString(c.Text, -1)
	switch {
	case len(matches) >= 2:
		return 2
	case len(matches) == 1:
		return 1
	default:
		return 0
	}
}

func scoreOutcomeLinked(c Candidate) int {
	switch {
	case c.Confidence >= 0.8:
		return 2
	case c.Confidence >= 0.5:
		return 1
	default:
		return 0
	}
}

// Score runs the five Meta-Ralph dimensions against a candidate and the
// current store snapshot, deterministically — there is no exception path
// here by construction; Store.ValidateAndStore supplies the fail-open
// quarantine boundary around the call instead, matching spec §4.4's
// "on exception anywhere in scoring" language by making the call site the
// recover() boundary rather than burying try/catch inside scoring itself.
func Score(c Candidate, existing map[string]*Insight) Scores {
	return Scores{
		Actionability: scoreActionability(c),
		Novelty:       scoreNovelty(c, existing),
		Reasoning:     scoreReasoning(c),
		Specificity:   scoreSpecificity(c),
		OutcomeLinked: scoreOutcomeLinked(c),
	}
}

// Judge converts scores into a verdict per spec §4.4's thresholds.
func Judge(s Scores) Verdict {
	if s.total() >= QualityThreshold && !s.hasZero() {
		return VerdictQuality
	}
	if s.total() == 0 {
		return VerdictPrimitive
	}
	return VerdictNeedsWork
}
