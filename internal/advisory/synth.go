package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiosk404/spark/internal/retrieval"
	"github.com/kiosk404/spark/pkg/logger"
)

// AISynthesizer is the narrow interface to an external selective-AI
// synthesis endpoint. Spec §4.6 step 5 requires any failure or timeout to
// fall back silently to the programmatic path.
type AISynthesizer interface {
	Synthesize(ctx context.Context, tool string, phase Phase, candidates []retrieval.Candidate) (string, error)
}

// SynthResult carries the synthesized text plus which mode produced it.
type SynthResult struct {
	Text       string
	Programmatic bool
}

// SynthesizeProgrammatic deterministically joins the top candidates into a
// short advisory, always available and never blocking.
func SynthesizeProgrammatic(candidates []retrieval.Candidate, maxItems int) SynthResult {
	if len(candidates) == 0 {
		return SynthResult{}
	}
	if maxItems <= 0 || maxItems > len(candidates) {
		maxItems = len(candidates)
	}
	var parts []string
	for _, c := range candidates[:maxItems] {
		parts = append(parts, strings.TrimSpace(c.Text))
	}
	return SynthResult{Text: strings.Join(parts, " "), Programmatic: true}
}

// SynthConfig controls when the selective-AI path is attempted.
type SynthConfig struct {
	ForceProgrammatic   bool
	SelectiveAIEnabled  bool
	MinAuthority        float64
	MinRemainingMS      int64
	AITimeout           time.Duration
	MaxItems            int
}

// Synthesize runs spec §4.6 step 5: selective AI when authority and
// remaining budget both clear their thresholds, otherwise programmatic.
// Any AI error or timeout silently falls back to programmatic.
func Synthesize(ctx context.Context, cfg SynthConfig, ai AISynthesizer, tool string, phase Phase, authority float64, remainingMS int64, candidates []retrieval.Candidate) SynthResult {
	if cfg.ForceProgrammatic || !cfg.SelectiveAIEnabled || ai == nil {
		return SynthesizeProgrammatic(candidates, cfg.MaxItems)
	}
	if authority < cfg.MinAuthority || remainingMS < cfg.MinRemainingMS {
		return SynthesizeProgrammatic(candidates, cfg.MaxItems)
	}

	timeout := cfg.AITimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := ai.Synthesize(callCtx, tool, phase, candidates)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			logger.Warn("[Advisor] selective AI synthesis failed, falling back: %v", err)
		}
		return SynthesizeProgrammatic(candidates, cfg.MaxItems)
	}
	return SynthResult{Text: text, Programmatic: false}
}

// authorityScore maps the top candidate's fused score, capped at 1, into a
// coarse [0,1] authority figure used to decide note/whisper/warning and the
// selective-AI threshold.
func authorityScore(candidates []retrieval.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	top := candidates[0].Score
	if top > 1 {
		top = 1
	}
	return top
}

func authorityTier(score float64, noteT, whisperT, warningT float64) Authority {
	switch {
	case score >= warningT:
		return AuthorityWarning
	case score >= whisperT:
		return AuthorityWhisper
	default:
		_ = noteT
		return AuthorityNote
	}
}

func fmtCandidateSummary(candidates []retrieval.Candidate) string {
	if len(candidates) == 0 {
		return "none"
	}
	return fmt.Sprintf("%d candidates, top score %.3f", len(candidates), candidates[0].Score)
}
