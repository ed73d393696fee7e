// Package tuneables defines the operator-editable policy document
// (tuneables.json), hot-reloaded once per bridge cycle and, as a cheap
// additional trigger, on fsnotify write events. Structure style follows
// echoryn's memory-core MemoryConfig: one struct per concern, a
// Default*() constructor, JSON tags matching the external file contract.
package tuneables

// Document is the full tuneables.json document, matching spec §6's schema
// exactly: one struct field per top-level section.
type Document struct {
	AdvisoryEngine AdvisoryEngine `json:"advisory_engine"`
	AdvisoryGate   AdvisoryGate   `json:"advisory_gate"`
	Advisor        Advisor        `json:"advisor"`
	Retrieval      Retrieval      `json:"retrieval"`
	Semantic       Semantic       `json:"semantic"`
	Synthesizer    Synthesizer    `json:"synthesizer"`
	Flow           Flow           `json:"flow"`
	AutoTuner      AutoTuner      `json:"auto_tuner"`
	ChipMerge      ChipMerge      `json:"chip_merge"`
}

type AdvisoryEngine struct {
	ForceProgrammaticSynth   bool    `json:"force_programmatic_synth"`
	SelectiveAISynthEnabled  bool    `json:"selective_ai_synth_enabled"`
	SelectiveAIMinAuthority  float64 `json:"selective_ai_min_authority"`
	SelectiveAIMinRemainingMS int64  `json:"selective_ai_min_remaining_ms"`
	FallbackBudgetCap        int     `json:"fallback_budget_cap"`
	FallbackBudgetWindowS    int     `json:"fallback_budget_window"`
	AdvisoryTextRepeatCooldownS int  `json:"advisory_text_repeat_cooldown_s"`
}

type AdvisoryGate struct {
	NoteThreshold        float64          `json:"note_threshold"`
	WhisperThreshold     float64          `json:"whisper_threshold"`
	WarningThreshold     float64          `json:"warning_threshold"`
	ToolCooldownS        int              `json:"tool_cooldown_s"`
	AdviceRepeatCooldownS int             `json:"advice_repeat_cooldown_s"`
	MaxEmitPerCall       int              `json:"max_emit_per_call"`
	PhasePolicy          map[string]string `json:"phase_policy"`
	// CategoryCooldownsS maps an insight category to its cooldown window in
	// seconds; categories absent here have no cooldown.
	CategoryCooldownsS   map[string]int   `json:"category_cooldowns_s"`
}

type Advisor struct {
	MaxItems          int     `json:"max_items"`
	MaxAdviceItems    int     `json:"max_advice_items"`
	MinRankScore      float64 `json:"min_rank_score"`
	ChipAdviceLimit   int     `json:"chip_advice_limit"`
	ChipAdviceMinScore float64 `json:"chip_advice_min_score"`
	ChipSourceBoost   float64 `json:"chip_source_boost"`
}

type Retrieval struct {
	Level               string                    `json:"level"`
	DomainProfileEnabled bool                     `json:"domain_profile_enabled"`
	Overrides           map[string]float64        `json:"overrides"`
	DomainProfiles      map[string]map[string]float64 `json:"domain_profiles"`
}

type Semantic struct {
	Enabled          bool     `json:"enabled"`
	MinSimilarity    float64  `json:"min_similarity"`
	MinFusionScore   float64  `json:"min_fusion_score"`
	RescueMinSimilarity float64 `json:"rescue_min_similarity"`
	ExcludeCategories []string `json:"exclude_categories"`
}

type Synthesizer struct {
	AITimeoutS int `json:"ai_timeout_s"`
}

type Flow struct {
	ValidateAndStoreEnabled bool `json:"validate_and_store_enabled"`
}

type AutoTuner struct {
	SourceBoosts map[string]float64 `json:"source_boosts"`
}

type ChipMerge struct {
	MinCognitiveValue  float64 `json:"min_cognitive_value"`
	MinActionability   float64 `json:"min_actionability"`
	MinTransferability float64 `json:"min_transferability"`
	MinStatementLen    int     `json:"min_statement_len"`
}

// Default returns the conservative built-in defaults every section needs
// before an operator has ever written tuneables.json.
func Default() Document {
	return Document{
		AdvisoryEngine: AdvisoryEngine{
			SelectiveAIMinAuthority: 0.6, SelectiveAIMinRemainingMS: 500,
			FallbackBudgetCap: 5, FallbackBudgetWindowS: 60, AdvisoryTextRepeatCooldownS: 900,
		},
		AdvisoryGate: AdvisoryGate{
			NoteThreshold: 0.05, WhisperThreshold: 0.2, WarningThreshold: 0.5,
			ToolCooldownS: 300, AdviceRepeatCooldownS: 900, MaxEmitPerCall: 1,
			PhasePolicy: map[string]string{"exploration": "whisper"},
			CategoryCooldownsS: map[string]int{
				"content-pattern": 600, "signal": 600, "context": 300,
			},
		},
		Advisor: Advisor{
			MaxItems: 10, MaxAdviceItems: 3, MinRankScore: 0.02,
			ChipAdviceLimit: 2, ChipAdviceMinScore: 0.1, ChipSourceBoost: 1.0,
		},
		Retrieval: Retrieval{Level: "hybrid", DomainProfileEnabled: false, Overrides: map[string]float64{}, DomainProfiles: map[string]map[string]float64{}},
		Semantic:  Semantic{Enabled: true, MinSimilarity: 0.2, MinFusionScore: 0.02, RescueMinSimilarity: 0.35},
		Synthesizer: Synthesizer{AITimeoutS: 2},
		Flow:      Flow{ValidateAndStoreEnabled: true},
		AutoTuner: AutoTuner{SourceBoosts: map[string]float64{}},
		ChipMerge: ChipMerge{MinCognitiveValue: 0.5, MinActionability: 0.4, MinTransferability: 0.3, MinStatementLen: 20},
	}
}
