package outcome

import (
	"time"

	"github.com/kiosk404/spark/internal/insight"
	"github.com/kiosk404/spark/internal/retrieval/hybrid"
	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/pkg/clock"
	"github.com/kiosk404/spark/pkg/logger"
)

// DefaultWindow is the recent-candidate time window spec §4.7 step 1 names.
const DefaultWindow = 30 * time.Minute

// Tuner is pure bookkeeping (spec §4.7): it links detected signals to
// recent advice, updates insight reliability, and recomputes clamped
// per-source boosts. It never edits gate/engine thresholds itself.
type Tuner struct {
	clk     clock.Clock
	dir     *statedir.Dir
	links   *LinkStore
	insights *insight.Store

	eff *Effectiveness
}

// NewTuner loads the persisted effectiveness projection, if any.
func NewTuner(clk clock.Clock, dir *statedir.Dir, links *LinkStore, insights *insight.Store) (*Tuner, error) {
	eff := NewEffectiveness()
	if err := statedir.ReadJSON(dir.AdvisorEffectiveness(), eff); err != nil {
		return nil, err
	}
	if eff.BySource == nil {
		eff.BySource = map[string]*Counters{}
	}
	if eff.ByAdvice == nil {
		eff.ByAdvice = map[string]*Counters{}
	}
	if eff.SourceBoosts == nil {
		eff.SourceBoosts = map[string]float64{}
	}
	return &Tuner{clk: clk, dir: dir, links: links, insights: insights, eff: eff}, nil
}

// RecentAdvice is the narrow view of recently-shown advice the tuner needs
// to compute context match against a signal. Context match counts shared
// tokens (plus a trace-id bonus); file paths are not compared.
type RecentAdvice struct {
	AdviceID   string
	InsightKey string
	Source     string
	Text       string
	Tool       string
	TraceID    string
	At         time.Time
}

// recencyWeight decays linearly to 0 at the window end, per spec §4.7 step 2.
func recencyWeight(age, window time.Duration) float64 {
	if age >= window {
		return 0
	}
	if age < 0 {
		age = 0
	}
	return 1.0 - float64(age)/float64(window)
}

// contextMatch scores shared tokens between a signal and a candidate piece
// of recent advice, in [0,1].
func contextMatch(signalText string, advice RecentAdvice) float64 {
	sigToks := hybrid.Tokenize(signalText)
	advToks := hybrid.Tokenize(advice.Text)
	if len(sigToks) == 0 || len(advToks) == 0 {
		return 0.3 // weak baseline match when trace-id alone ties them together
	}
	set := map[string]bool{}
	for _, t := range advToks {
		set[t] = true
	}
	hits := 0
	for _, t := range sigToks {
		if set[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(sigToks))
}

// ProcessSignal runs spec §4.7 steps 1-5 for one detected signal against a
// slice of recently-shown advice (typically read from recent_advice.jsonl
// by the bridge cycle's outcome-reporting step).
func (t *Tuner) ProcessSignal(sig Signal, candidates []RecentAdvice, window time.Duration) error {
	if window <= 0 {
		window = DefaultWindow
	}
	now := t.clk.Now()

	for _, cand := range candidates {
		// Only candidates within the window and matching the signal's trace
		// (when present) or close in time are eligible.
		if cand.AdviceID == "" {
			continue
		}
		age := now.Sub(cand.At)
		if age > window {
			continue
		}
		rw := recencyWeight(age, window)
		cm := contextMatch(sig.Text, cand)
		if sig.TraceID != "" && sig.TraceID == cand.TraceID {
			cm = clampUnit(cm + 0.2)
		}
		confidence := sig.Confidence * rw * cm
		if confidence <= 0 {
			continue
		}

		link := Link{
			InsightKey: cand.InsightKey, AdviceID: cand.AdviceID, TraceID: sig.TraceID,
			Positive: sig.Positive, Confidence: confidence, RecencyWeight: rw, ContextMatch: cm, At: now,
		}
		if err := t.links.Write(link); err != nil {
			logger.Error("[Outcome] failed to write outcome link: %v", err)
			continue
		}

		if cand.InsightKey != "" && t.insights != nil {
			if err := t.insights.RecordOutcome(cand.InsightKey, sig.Positive); err != nil {
				logger.Warn("[Outcome] failed to update insight reliability: %v", err)
			}
		}

		t.recordEffectiveness(cand.Source, cand.AdviceID, sig.Positive)
	}

	return t.persist()
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func (t *Tuner) recordEffectiveness(source, adviceID string, positive bool) {
	bySrc, ok := t.eff.BySource[source]
	if !ok {
		bySrc = &Counters{}
		t.eff.BySource[source] = bySrc
	}
	bySrc.Given++
	bySrc.Followed++
	if positive {
		bySrc.Helpful++
	}

	if adviceID != "" {
		byAdv, ok := t.eff.ByAdvice[adviceID]
		if !ok {
			byAdv = &Counters{}
			t.eff.ByAdvice[adviceID] = byAdv
		}
		byAdv.Given++
		byAdv.Followed++
		if positive {
			byAdv.Helpful++
		}
	}

	// Recompute the source boost from the helpful ratio, clamped to
	// [0.8, 1.1] so it can never become a runaway positive-feedback loop (I3).
	ratio := 0.5
	if bySrc.Given > 0 {
		ratio = float64(bySrc.Helpful) / float64(bySrc.Given)
	}
	boost := 0.8 + ratio*(1.1-0.8)
	t.eff.SourceBoosts[source] = ClampBoost(boost)
}

func (t *Tuner) persist() error {
	return statedir.WriteJSONAtomic(t.dir.AdvisorEffectiveness(), t.eff)
}

// SourceBoosts returns a copy of the current clamped per-source boost map,
// consumed by retrieval.Config.SourceBoosts each bridge cycle.
func (t *Tuner) SourceBoosts() map[string]float64 {
	out := make(map[string]float64, len(t.eff.SourceBoosts))
	for k, v := range t.eff.SourceBoosts {
		out[k] = v
	}
	return out
}

// Effectiveness exposes the full projection, e.g. for sparkctl status.
func (t *Tuner) Effectiveness() *Effectiveness { return t.eff }
