package insight

import (
	"sync"
	"time"

	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/pkg/clock"
	"github.com/kiosk404/spark/pkg/logger"
)

// RoastEntry records a PRIMITIVE-verdict rejection for diagnostics.
type RoastEntry struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// QuarantineEntry is a fail-open log row written when Meta-Ralph scoring
// itself fails; the candidate is logged here AND still stored.
type QuarantineEntry struct {
	Key  string    `json:"key"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
	Err  string    `json:"err"`
}

// Result reports the outcome of a single ValidateAndStore call.
type Result struct {
	Verdict     Verdict
	Quarantined bool
	Insight     *Insight
}

// Store is the keyed map of cognitive insights, persisted as a single JSON
// document rewritten atomically on change. Its mutex is taken per call, not
// held across a bridge cycle: BeginBatch/EndBatch only defer persistence to
// the end of the cycle. The advisory hot path only ever reads a snapshot.
type Store struct {
	dir   *statedir.Dir
	clock clock.Clock

	mu        sync.RWMutex
	insights  map[string]*Insight
	roast     []RoastEntry
	dirty     bool
	batchDepth int
}

type document struct {
	Insights map[string]*Insight `json:"insights"`
	Roast    []RoastEntry        `json:"roast_history"`
}

// Open loads the persisted insight document, if any, from dir.
func Open(dir *statedir.Dir, c clock.Clock) (*Store, error) {
	var doc document
	if err := statedir.ReadJSON(dir.CognitiveInsights(), &doc); err != nil {
		return nil, err
	}
	if doc.Insights == nil {
		doc.Insights = make(map[string]*Insight)
	}
	return &Store{dir: dir, clock: c, insights: doc.Insights, roast: doc.Roast}, nil
}

// BeginBatch suppresses persistence until a matching EndBatch, so the
// bridge cycle can route many writes through the gate and pay for one
// rewrite of the document per cycle instead of one per insight.
func (s *Store) BeginBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchDepth++
}

// EndBatch flushes the document to disk if this was the outermost batch.
func (s *Store) EndBatch() error {
	s.mu.Lock()
	s.batchDepth--
	flush := s.batchDepth <= 0 && s.dirty
	s.batchDepth = max(s.batchDepth, 0)
	s.mu.Unlock()
	if flush {
		return s.persist()
	}
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (s *Store) persist() error {
	s.mu.RLock()
	doc := document{Insights: s.insights, Roast: s.roast}
	s.mu.RUnlock()
	if err := statedir.WriteJSONAtomic(s.dir.CognitiveInsights(), doc); err != nil {
		return err
	}
	s.mu.Lock()
	s.dirty = false
	s.mu.Unlock()
	return nil
}

func (s *Store) markDirtyAndMaybeFlush() error {
	s.mu.Lock()
	s.dirty = true
	inBatch := s.batchDepth > 0
	s.mu.Unlock()
	if inBatch {
		return nil
	}
	return s.persist()
}

// Snapshot returns a shallow copy of the current insight map for the
// advisory hot path's short read lock, per spec §5's concurrency contract.
func (s *Store) Snapshot() map[string]*Insight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Insight, len(s.insights))
	for k, v := range s.insights {
		cp := *v
		out[k] = &cp
	}
	return out
}

// ValidationCounts tallies how many stored insights are validated,
// invalidated, or still pending either classification, consumed by
// sparkctl status alongside the effectiveness scorecard.
type ValidationCounts struct {
	Validated   int
	Invalidated int
	Pending     int
}

// Validation returns the current validated/invalidated/pending tally over
// every stored insight.
func (s *Store) Validation() ValidationCounts {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var vc ValidationCounts
	for _, ins := range s.insights {
		switch {
		case ins.Validated():
			vc.Validated++
		case ins.Invalidated():
			vc.Invalidated++
		default:
			vc.Pending++
		}
	}
	return vc
}

// Get returns a single insight by key.
func (s *Store) Get(key string) (*Insight, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.insights[key]
	return i, ok
}

// ValidateAndStore is the sole write path into the store (I1). It applies
// the noise filter, then Meta-Ralph scoring, then the verdict branches
// described in spec §4.4. A panic anywhere in scoring is recovered here and
// converted into fail-open quarantine, so no candidate is ever silently
// dropped (P2).
func (s *Store) ValidateAndStore(c Candidate) (res Result, err error) {
	now := s.clock.Now()

	if IsNoise(c.Text) {
		s.mu.Lock()
		s.roast = append(s.roast, RoastEntry{Text: c.Text, At: now})
		s.mu.Unlock()
		if ferr := s.markDirtyAndMaybeFlush(); ferr != nil {
			logger.Warn("[Insight] persist after noise reject: %v", ferr)
		}
		return Result{Verdict: VerdictPrimitive}, nil
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("[Insight] Meta-Ralph scoring panicked, quarantining: %v", r)
			res, err = s.quarantine(c, now)
		}
	}()

	existing := s.Snapshot()
	scores := Score(c, existing)
	verdict := Judge(scores)

	switch verdict {
	case VerdictQuality:
		ins := s.upsert(c, scores, verdict, now)
		if ferr := s.markDirtyAndMaybeFlush(); ferr != nil {
			logger.Warn("[Insight] persist after quality store: %v", ferr)
		}
		return Result{Verdict: verdict, Insight: ins}, nil
	case VerdictNeedsWork:
		ins := s.upsert(c, scores, verdict, now)
		ins.NeedsRefinement = true
		if ferr := s.markDirtyAndMaybeFlush(); ferr != nil {
			logger.Warn("[Insight] persist after needs-work store: %v", ferr)
		}
		return Result{Verdict: verdict, Insight: ins}, nil
	default: // VerdictPrimitive
		s.mu.Lock()
		s.roast = append(s.roast, RoastEntry{Text: c.Text, At: now})
		s.mu.Unlock()
		if ferr := s.markDirtyAndMaybeFlush(); ferr != nil {
			logger.Warn("[Insight] persist after primitive reject: %v", ferr)
		}
		return Result{Verdict: verdict}, nil
	}
}

func (s *Store) quarantine(c Candidate, now time.Time) (Result, error) {
	entry := QuarantineEntry{Key: c.Key, Text: c.Text, At: now, Err: "meta-ralph scoring failure"}
	if err := statedir.AppendJSONL(s.dir.InsightQuarantine(), entry); err != nil {
		logger.Error("[Insight] failed to append quarantine row: %v", err)
	}
	ins := s.upsert(c, Scores{}, VerdictNeedsWork, now)
	ins.Quarantined = true
	if err := s.markDirtyAndMaybeFlush(); err != nil {
		logger.Warn("[Insight] persist after quarantine store: %v", err)
	}
	return Result{Verdict: VerdictNeedsWork, Quarantined: true, Insight: ins}, nil
}

func (s *Store) upsert(c Candidate, scores Scores, verdict Verdict, now time.Time) *Insight {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.insights[c.Key]
	if !ok {
		ins := &Insight{
			Key:         c.Key,
			Text:        truncate(c.Text, maxTextLen),
			Category:    c.Category,
			Confidence:  c.Confidence,
			Reliability: 0.5,
			Evidence:    c.Evidence,
			CreatedAt:   now,
			UpdatedAt:   now,
			SourceChip:  c.SourceChip,
			Scores:      scores,
			Verdict:     verdict,
		}
		s.insights[c.Key] = ins
		return ins
	}

	// Reinforce: confidence moves toward a weighted average, reinforced++.
	existing.Confidence = (existing.Confidence*float64(existing.Reinforced+1) + c.Confidence) / float64(existing.Reinforced+2)
	existing.Reinforced++
	existing.Text = truncate(c.Text, maxTextLen)
	existing.Scores = scores
	existing.Verdict = verdict
	existing.UpdatedAt = now
	existing.Evidence = append(existing.Evidence, c.Evidence...)
	return existing
}

// ClearNeedsRefinement marks an insight as validated, called by the bridge
// cycle's validation-loop step once realized outcomes back a NEEDS_WORK
// insight strongly enough to trust it unconditionally.
func (s *Store) ClearNeedsRefinement(key string) error {
	s.mu.Lock()
	ins, ok := s.insights[key]
	if ok {
		ins.NeedsRefinement = false
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.markDirtyAndMaybeFlush()
}

// ClearSourceChip promotes a chip-scoped insight into the global store by
// dropping its chip tag, called by the bridge cycle's chip-merge step once
// the insight clears the configured cognitive-value threshold.
func (s *Store) ClearSourceChip(key string) error {
	s.mu.Lock()
	ins, ok := s.insights[key]
	if ok {
		ins.SourceChip = ""
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.markDirtyAndMaybeFlush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// RecordOutcome updates an insight's validation counters and recomputes
// reliability with simple exponential smoothing, invoked by the outcome
// loop (C7) after an outcome link is written.
func (s *Store) RecordOutcome(key string, positive bool) error {
	s.mu.Lock()
	ins, ok := s.insights[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	const alpha = 0.2
	target := 0.0
	if positive {
		ins.PositiveOutcomes++
		target = 1.0
	} else {
		ins.NegativeOutcomes++
	}
	ins.Reliability = clampReliability(ins.Reliability + alpha*(target-ins.Reliability))
	ins.UpdatedAt = s.clock.Now()
	s.mu.Unlock()
	return s.markDirtyAndMaybeFlush()
}

func clampReliability(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
