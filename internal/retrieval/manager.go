package retrieval

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	rhybrid "github.com/kiosk404/spark/internal/retrieval/hybrid"
	rstore "github.com/kiosk404/spark/internal/retrieval/store"
	"github.com/kiosk404/spark/pkg/logger"
)

// DomainProfile overrides retrieval weights/limits/floors for queries whose
// inferred domain matches, per spec §4.5 step 5.
type DomainProfile struct {
	Weights           rhybrid.Weights
	MinFusedScore     float64
	MinSimilarityFloor float64
	Limit             int
}

// Config controls Manager behavior, refreshed from tuneables each cycle.
type Config struct {
	Limit              int
	MinFusedScore      float64
	ReliabilityFloor   float64
	SemanticEnabled    bool
	MinSimilarity      float64
	Weights            rhybrid.Weights
	DomainProfiles     map[string]DomainProfile
	DomainProfileOn    bool
	SourceBoosts       map[Source]float64
}

// DefaultConfig returns conservative defaults matching the spec's semantic
// and retrieval tuneables sections.
func DefaultConfig() Config {
	return Config{
		Limit:            10,
		MinFusedScore:    0.02,
		ReliabilityFloor: 0.2,
		SemanticEnabled:  true,
		MinSimilarity:    0.2,
		Weights:          rhybrid.DefaultWeights,
		DomainProfiles:   map[string]DomainProfile{},
		SourceBoosts:     map[Source]float64{},
	}
}

// InsightRow is a flattened insight used for retrieval indexing.
type InsightRow struct {
	Key         string
	Text        string
	Reliability float64
	Category    string
	SourceChip  string
}

// Manager implements the C5 retrieval pipeline: lexical candidate set,
// semantic candidate set, RRF+additive fusion, strict filtering, and
// domain-profile overrides.
type Manager struct {
	db           *sql.DB
	ftsAvailable bool
	vecAvailable bool
	embedder     Embedder
	mind         MindClient
	baseline     BaselineTable

	mu     sync.RWMutex
	cfg    Config
}

// Embedder produces a query embedding for semantic search. Nil disables
// the semantic candidate set, degrading gracefully to lexical-only
// retrieval per spec §9's "semantic index optionality" note.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// New builds a Manager bound to an already-schema'd index database.
func New(db *sql.DB, ftsAvailable, vecAvailable bool, embedder Embedder, mind MindClient) *Manager {
	if mind == nil {
		mind = NoopMind{}
	}
	return &Manager{
		db:           db,
		ftsAvailable: ftsAvailable,
		vecAvailable: vecAvailable,
		embedder:     embedder,
		mind:         mind,
		baseline:     DefaultBaseline(),
		cfg:          DefaultConfig(),
	}
}

// Reconfigure swaps in a new Config, called once per bridge cycle after a
// tuneables hot-reload.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

func (m *Manager) config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// IndexInsights rebuilds the lexical/semantic index rows for the given
// insight snapshot. Called by the bridge cycle after each insight-store
// batch flush so retrieval always sees the latest text. Each row's
// reliability is stored too, but Retrieve does not read it back: its
// fusion uses a fixed reliability of 0.5 for every candidate.
func (m *Manager) IndexInsights(rows []InsightRow) error {
	for _, r := range rows {
		doc := rstore.Doc{
			ID:          r.Key,
			Kind:        "insight",
			Text:        r.Text,
			Reliability: r.Reliability,
			Category:    r.Category,
			UpdatedAt:   time.Now().Unix(),
		}
		if err := rstore.UpsertDoc(m.db, m.ftsAvailable, doc); err != nil {
			return fmt.Errorf("index insight %s: %w", r.Key, err)
		}
	}
	return nil
}

// Retrieve runs the full C5 pipeline for q and returns up to cfg.Limit
// fused candidates, each with score/source/rationale.
func (m *Manager) Retrieve(ctx context.Context, q Query) ([]Candidate, error) {
	cfg := m.resolveConfig(q)

	lexical, err := m.lexicalCandidates(q, cfg)
	if err != nil {
		logger.Warn("[Retrieval] lexical search failed: %v", err)
	}

	var semantic []rstore.SemanticHit
	if cfg.SemanticEnabled && m.embedder != nil {
		semantic, err = m.semanticCandidates(ctx, q, cfg)
		if err != nil {
			logger.Warn("[Retrieval] semantic search failed, degrading to lexical-only: %v", err)
		}
	}

	textByID := make(map[string]string)
	kindByID := make(map[string]string)
	lexRanked := make([]rhybrid.Ranked, 0, len(lexical))
	for _, h := range lexical {
		lexRanked = append(lexRanked, rhybrid.Ranked{ID: h.ID, Score: h.TextScore})
		textByID[h.ID] = h.Text
		kindByID[h.ID] = h.Kind
	}
	semRanked := make([]rhybrid.Ranked, 0, len(semantic))
	for _, h := range semantic {
		semRanked = append(semRanked, rhybrid.Ranked{ID: h.ID, Score: h.VectorScore})
	}

	intentTokens := rhybrid.Tokenize(q.Text)
	in := rhybrid.FusionInput{
		IntentCoverage: map[string]float64{},
		SupportBoost:   map[string]float64{},
		Reliability:    map[string]float64{},
		SourceBoost:    map[string]float64{},
	}
	for id, text := range textByID {
		in.IntentCoverage[id] = rhybrid.IntentCoverage(text, intentTokens)
		in.Reliability[id] = 0.5
		in.SourceBoost[id] = m.sourceBoostFor(SourceCognitive)
	}

	fused := rhybrid.Fuse(lexRanked, semRanked, in, cfg.Weights)

	candidates := make([]Candidate, 0, len(fused))
	for id, score := range fused {
		if score < cfg.MinFusedScore {
			continue
		}
		text := textByID[id]
		if q.Strict && rhybrid.IntentCoverage(text, intentTokens) == 0 {
			continue
		}
		candidates = append(candidates, Candidate{
			Key:       id,
			Text:      text,
			Source:    SourceCognitive,
			Score:     score,
			Rationale: rationale(id, lexRanked, semRanked),
		})
	}

	mindCands, err := m.mind.TopK(ctx, q, cfg.Limit)
	if err != nil {
		logger.Warn("[Retrieval] mind lookup failed, ignoring: %v", err)
	} else {
		candidates = append(candidates, mindCands...)
	}

	if ids := candidateKeys(candidates); len(ids) > 0 {
		if cats, err := rstore.CategoriesByID(m.db, ids); err != nil {
			logger.Warn("[Retrieval] category lookup failed: %v", err)
		} else {
			for i := range candidates {
				candidates[i].Category = cats[candidates[i].Key]
			}
		}
	}

	sortCandidates(candidates)
	if len(candidates) == 0 {
		if text, ok := m.baseline.Lookup(q.Tool, q.Phase); ok {
			candidates = append(candidates, Candidate{
				Key: "baseline:" + q.Tool + ":" + q.Phase, Text: text,
				Source: SourceBaseline, Score: 0.01, Rationale: "safety-net baseline for this tool and phase",
			})
		}
	}
	if len(candidates) > cfg.Limit {
		candidates = candidates[:cfg.Limit]
	}
	return candidates, nil
}

func (m *Manager) resolveConfig(q Query) Config {
	cfg := m.config()
	if cfg.DomainProfileOn && q.Domain != "" {
		if p, ok := cfg.DomainProfiles[q.Domain]; ok {
			if p.Limit > 0 {
				cfg.Limit = p.Limit
			}
			if p.MinFusedScore > 0 {
				cfg.MinFusedScore = p.MinFusedScore
			}
			if p.MinSimilarityFloor > 0 {
				cfg.MinSimilarity = p.MinSimilarityFloor
			}
			cfg.Weights = p.Weights
		}
	}
	return cfg
}

func (m *Manager) sourceBoostFor(s Source) float64 {
	cfg := m.config()
	if b, ok := cfg.SourceBoosts[s]; ok {
		return b
	}
	return 1.0
}

func (m *Manager) lexicalCandidates(q Query, cfg Config) ([]rstore.KeywordHit, error) {
	if !m.ftsAvailable {
		return nil, nil
	}
	query := rhybrid.Tokenize(q.Text)
	if len(query) == 0 {
		return nil, nil
	}
	ftsQuery := strings.Join(query, " OR ")
	return rstore.SearchKeyword(m.db, ftsQuery, cfg.Limit*3)
}

func (m *Manager) semanticCandidates(ctx context.Context, q Query, cfg Config) ([]rstore.SemanticHit, error) {
	vec, err := m.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if m.vecAvailable {
		hits, err := rstore.SearchSemanticVec(m.db, vec, cfg.Limit*3)
		if err == nil {
			return filterSimilarity(hits, cfg.MinSimilarity), nil
		}
		logger.Warn("[Retrieval] vec0 search failed, falling back to brute force: %v", err)
	}
	hits, err := rstore.SearchSemanticBruteForce(m.db, vec, cfg.Limit*3)
	if err != nil {
		return nil, err
	}
	return filterSimilarity(hits, cfg.MinSimilarity), nil
}

func filterSimilarity(hits []rstore.SemanticHit, floor float64) []rstore.SemanticHit {
	out := hits[:0:0]
	for _, h := range hits {
		if h.VectorScore >= floor {
			out = append(out, h)
		}
	}
	return out
}

func rationale(id string, lex, sem []rhybrid.Ranked) string {
	inLex, inSem := false, false
	for _, r := range lex {
		if r.ID == id {
			inLex = true
			break
		}
	}
	for _, r := range sem {
		if r.ID == id {
			inSem = true
			break
		}
	}
	switch {
	case inLex && inSem:
		return "matched by keyword and semantic similarity"
	case inLex:
		return "matched by keyword"
	case inSem:
		return "matched by semantic similarity"
	default:
		return ""
	}
}

func sortCandidates(c []Candidate) {
	sort.Slice(c, func(i, j int) bool { return c[i].Score > c[j].Score })
}

func candidateKeys(c []Candidate) []string {
	ids := make([]string, 0, len(c))
	for _, cand := range c {
		ids = append(ids, cand.Key)
	}
	return ids
}
