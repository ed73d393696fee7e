// Package retrieval implements the hybrid lexical + semantic + chip
// retrieval layer (C5): given a query it returns ranked candidates fused
// from several sources. Grounded on echoryn's memory-core manager/search
// stack, generalized from file-chunk retrieval to insight/distillation
// retrieval as spec §4.5 requires.
package retrieval

// Source tags where a candidate came from, replacing duck-typed candidate
// shapes with a single tagged variant per spec's design notes (§9).
type Source string

const (
	SourceCognitive Source = "cognitive"
	SourceEidos     Source = "eidos"
	SourceMind      Source = "mind"
	SourceChip      Source = "chip"
	SourceBaseline  Source = "baseline"
	SourceSemantic  Source = "semantic"
	SourcePacket    Source = "packet"
)

// Candidate is a single retrieved item before or after fusion.
type Candidate struct {
	Key         string  `json:"key"`
	Text        string  `json:"text"`
	Source      Source  `json:"source"`
	Score       float64 `json:"score"`
	Rationale   string  `json:"rationale"`
	Reliability float64 `json:"reliability"`
	// Category carries the originating insight's category (empty for
	// candidates with no classified category, e.g. the baseline fallback),
	// consumed by the advisory gate's category cooldown stage.
	Category string `json:"category,omitempty"`
}

// Query describes the retrieval request built from the advisory engine's
// context-build step.
type Query struct {
	Tool        string
	Phase       string
	IntentFamily string
	Text        string
	Cwd         string
	Strict      bool
	Domain      string
}
