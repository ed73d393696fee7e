package bridge

import (
	"time"

	"github.com/kiosk404/spark/internal/advisory"
	"github.com/kiosk404/spark/internal/retrieval"
	"github.com/kiosk404/spark/internal/retrieval/hybrid"
	"github.com/kiosk404/spark/internal/tuneables"
)

// applyTuneables pushes a freshly (re)loaded tuneables.Document into every
// collaborator that reads policy from it, once per cycle as spec §4.3 and
// §6 require. It is the single seam the tuneables hot-reload watcher and
// the bridge cycle's own per-tick reload both funnel through.
func (c *Cycle) applyTuneables(doc tuneables.Document) {
	c.eng.Reconfigure(engineConfigFrom(doc))

	sourceBoosts := c.tuner.SourceBoosts()
	for src, boost := range doc.AutoTuner.SourceBoosts {
		sourceBoosts[src] = boost
	}
	c.ret.Reconfigure(retrievalConfigFrom(doc, sourceBoosts))
}

func engineConfigFrom(doc tuneables.Document) advisory.EngineConfig {
	cfg := advisory.DefaultEngineConfig()
	cfg.Synth = advisory.SynthConfig{
		ForceProgrammatic:  doc.AdvisoryEngine.ForceProgrammaticSynth,
		SelectiveAIEnabled: doc.AdvisoryEngine.SelectiveAISynthEnabled,
		MinAuthority:       doc.AdvisoryEngine.SelectiveAIMinAuthority,
		MinRemainingMS:     doc.AdvisoryEngine.SelectiveAIMinRemainingMS,
		AITimeout:          time.Duration(doc.Synthesizer.AITimeoutS) * time.Second,
		MaxItems:           doc.Advisor.MaxAdviceItems,
	}
	cfg.Gate = advisory.GateConfig{
		NoteThreshold:        doc.AdvisoryGate.NoteThreshold,
		WhisperThreshold:     doc.AdvisoryGate.WhisperThreshold,
		WarningThreshold:     doc.AdvisoryGate.WarningThreshold,
		ToolCooldown:         time.Duration(doc.AdvisoryGate.ToolCooldownS) * time.Second,
		AdviceRepeatCooldown: time.Duration(doc.AdvisoryGate.AdviceRepeatCooldownS) * time.Second,
		MaxEmitPerCall:       doc.AdvisoryGate.MaxEmitPerCall,
		Phase:                phasePolicyFrom(doc.AdvisoryGate.PhasePolicy),
		CategoryCooldowns:    categoryCooldownsFrom(doc.AdvisoryGate.CategoryCooldownsS),
	}
	cfg.FallbackBudgetCap = doc.AdvisoryEngine.FallbackBudgetCap
	cfg.FallbackBudgetWindow = time.Duration(doc.AdvisoryEngine.FallbackBudgetWindowS) * time.Second
	cfg.ChipsDisabled = false
	return cfg
}

func phasePolicyFrom(m map[string]string) advisory.PhasePolicy {
	out := advisory.PhasePolicy{}
	for phase, authority := range m {
		out[advisory.Phase(phase)] = advisory.Authority(authority)
	}
	return out
}

func categoryCooldownsFrom(m map[string]int) map[string]time.Duration {
	out := make(map[string]time.Duration, len(m))
	for category, seconds := range m {
		out[category] = time.Duration(seconds) * time.Second
	}
	return out
}

func retrievalConfigFrom(doc tuneables.Document, sourceBoosts map[string]float64) retrieval.Config {
	cfg := retrieval.DefaultConfig()
	cfg.Limit = doc.Advisor.MaxItems
	cfg.MinFusedScore = doc.Semantic.MinFusionScore
	cfg.SemanticEnabled = doc.Semantic.Enabled
	cfg.MinSimilarity = doc.Semantic.MinSimilarity
	cfg.Weights = weightsFrom(doc.Retrieval.Overrides)
	cfg.DomainProfileOn = doc.Retrieval.DomainProfileEnabled
	cfg.DomainProfiles = map[string]retrieval.DomainProfile{}
	for domain, overrides := range doc.Retrieval.DomainProfiles {
		cfg.DomainProfiles[domain] = retrieval.DomainProfile{Weights: weightsFrom(overrides)}
	}
	cfg.SourceBoosts = map[retrieval.Source]float64{}
	for src, boost := range sourceBoosts {
		cfg.SourceBoosts[retrieval.Source(src)] = boost
	}
	return cfg
}

func weightsFrom(overrides map[string]float64) hybrid.Weights {
	w := hybrid.DefaultWeights
	if v, ok := overrides["intent_coverage"]; ok {
		w.IntentCoverage = v
	}
	if v, ok := overrides["support_boost"]; ok {
		w.SupportBoost = v
	}
	if v, ok := overrides["reliability"]; ok {
		w.Reliability = v
	}
	if v, ok := overrides["source_boost"]; ok {
		w.SourceBoost = v
	}
	return w
}
