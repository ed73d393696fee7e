// Package insight implements the cognitive insight store and the
// Meta-Ralph write gate (C4): a keyed map of learned statements persisted
// as a single JSON document, written only through validate_and_store.
// Grounded on echoryn's memory-core store (single-document persistence
// pattern, batch-write discipline) generalized from SQLite rows to an
// in-memory map with atomic whole-document rewrite, per spec §4.4.
package insight

import (
	"time"
)

// Category classifies an insight's kind.
type Category string

const (
	CategoryPreference     Category = "preference"
	CategoryDecision       Category = "decision"
	CategoryPrinciple      Category = "principle"
	CategoryContext        Category = "context"
	CategorySignal         Category = "signal"
	CategoryContentPattern Category = "content-pattern"
)

// Insight is a learned fact or preference, exclusively owned by the store.
type Insight struct {
	Key        string    `json:"key"`
	Text       string    `json:"text"`
	Category   Category  `json:"category"`
	Confidence float64   `json:"confidence"`
	Reliability float64  `json:"reliability"`
	Evidence   []string  `json:"evidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	SourceChip string    `json:"source_chip,omitempty"`

	Scores            Scores `json:"scores"`
	Verdict           Verdict `json:"verdict"`
	NeedsRefinement   bool    `json:"needs_refinement,omitempty"`
	Quarantined       bool    `json:"quarantined,omitempty"`
	Reinforced        int     `json:"reinforced"`

	// PositiveOutcomes/NegativeOutcomes count the outcomes the outcome loop
	// (C7) records alongside its reliability update; Validated and
	// Invalidated read them.
	PositiveOutcomes int `json:"positive_outcomes"`
	NegativeOutcomes int `json:"negative_outcomes"`
}

// Validated reports whether enough positive outcome links have accumulated
// to trust this insight: reliability at or above 0.7 with at least two
// positive validations, mirroring the original tracker's validation class.
func (in *Insight) Validated() bool {
	return in.Reliability >= 0.7 && in.PositiveOutcomes >= 2
}

// Invalidated reports whether enough negative outcome links have
// accumulated to distrust this insight: reliability below 0.3 with at
// least two negative validations.
func (in *Insight) Invalidated() bool {
	return in.Reliability < 0.3 && in.NegativeOutcomes >= 2
}

const maxTextLen = 280

// Candidate is a proposed insight write, not yet scored or stored.
type Candidate struct {
	Key        string
	Text       string
	Category   Category
	Confidence float64
	Evidence   []string
	SourceChip string
}
