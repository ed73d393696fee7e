package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Doc is a persisted retrieval document: an insight, a distillation, or a
// chip-scoped insight, flattened to a single row for lexical/semantic
// indexing. Kind disambiguates which.
type Doc struct {
	ID          string
	Kind        string
	Text        string
	Reliability float64
	Category    string
	UpdatedAt   int64
}

// UpsertDoc writes or replaces a doc row and its FTS shadow row.
func UpsertDoc(db *sql.DB, ftsAvailable bool, d Doc) error {
	_, err := db.Exec(
		`INSERT INTO `+TableDocs+` (id, kind, text, reliability, category, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET text=excluded.text, reliability=excluded.reliability,
			category=excluded.category, updated_at=excluded.updated_at`,
		d.ID, d.Kind, d.Text, d.Reliability, d.Category, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert doc %s: %w", d.ID, err)
	}
	if ftsAvailable {
		_, _ = db.Exec(`DELETE FROM `+TableDocsFTS+` WHERE id = ?`, d.ID)
		if _, err := db.Exec(`INSERT INTO `+TableDocsFTS+` (text, id, kind) VALUES (?, ?, ?)`, d.Text, d.ID, d.Kind); err != nil {
			return fmt.Errorf("upsert fts row %s: %w", d.ID, err)
		}
	}
	return nil
}

// DeleteDoc removes a doc and its FTS shadow row.
func DeleteDoc(db *sql.DB, id string) error {
	if _, err := db.Exec(`DELETE FROM `+TableDocs+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete doc %s: %w", id, err)
	}
	_, _ = db.Exec(`DELETE FROM `+TableDocsFTS+` WHERE id = ?`, id)
	return nil
}

// CategoriesByID looks up the stored category for each of ids, used after
// fusion to attach each candidate's originating insight category without
// threading it through the FTS/vector ranking paths themselves.
func CategoriesByID(db *sql.DB, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	rows, err := db.Query(
		`SELECT id, category FROM `+TableDocs+` WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("categories by id: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, category string
		if err := rows.Scan(&id, &category); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		out[id] = category
	}
	return out, rows.Err()
}

// KeywordHit is a single FTS5 match with its BM25-derived score.
type KeywordHit struct {
	ID        string
	Text      string
	Kind      string
	TextScore float64
}

// SearchKeyword runs the FTS5 query against docs_fts and returns ranked hits.
func SearchKeyword(db *sql.DB, ftsQuery string, limit int) ([]KeywordHit, error) {
	if ftsQuery == "" || limit <= 0 {
		return nil, nil
	}
	rows, err := db.Query(
		`SELECT id, text, kind, bm25(`+TableDocsFTS+`) AS rank FROM `+TableDocsFTS+`
		 WHERE `+TableDocsFTS+` MATCH ? ORDER BY rank LIMIT ?`,
		ftsQuery, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fts query: %w", err)
	}
	defer rows.Close()

	var hits []KeywordHit
	for rows.Next() {
		var h KeywordHit
		var rank float64
		if err := rows.Scan(&h.ID, &h.Text, &h.Kind, &rank); err != nil {
			continue
		}
		h.TextScore = BM25RankToScore(rank)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// BM25RankToScore normalizes an FTS5 bm25() rank (lower is better, can be
// negative) into a 0-1 score where higher is better.
func BM25RankToScore(rank float64) float64 {
	if rank < 0 {
		rank = 0
	}
	return 1.0 / (1.0 + rank)
}

// UpsertEmbedding writes a precomputed embedding into the cache, used by
// both the brute-force fallback and (when available) the vec0 index.
func UpsertEmbedding(db *sql.DB, id, model string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	_, err = db.Exec(
		`INSERT INTO `+TableEmbeddingCache+` (id, model, embedding, dims, updated_at)
		 VALUES (?, ?, ?, ?, strftime('%s','now'))
		 ON CONFLICT(id) DO UPDATE SET model=excluded.model, embedding=excluded.embedding, dims=excluded.dims`,
		id, model, string(data), len(vec),
	)
	if err != nil {
		return fmt.Errorf("upsert embedding %s: %w", id, err)
	}
	return nil
}

type embeddingRow struct {
	id  string
	vec []float32
}

func listEmbeddings(db *sql.DB) ([]embeddingRow, error) {
	rows, err := db.Query(`SELECT id, embedding FROM ` + TableEmbeddingCache)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var out []embeddingRow
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			continue
		}
		out = append(out, embeddingRow{id: id, vec: vec})
	}
	return out, rows.Err()
}

// SemanticHit is a single cosine-similarity match.
type SemanticHit struct {
	ID          string
	VectorScore float64
}

// SearchSemanticBruteForce computes cosine similarity between queryVec and
// every cached embedding in pure Go, used when the vec0 extension is not
// available. Mirrors echoryn's memory-core brute-force fallback path.
func SearchSemanticBruteForce(db *sql.DB, queryVec []float32, limit int) ([]SemanticHit, error) {
	if len(queryVec) == 0 || limit <= 0 {
		return nil, nil
	}
	rows, err := listEmbeddings(db)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id    string
		score float64
	}
	var scoredRows []scored
	for _, r := range rows {
		s := cosineSimilarity(queryVec, r.vec)
		if s > 0 {
			scoredRows = append(scoredRows, scored{id: r.id, score: s})
		}
	}
	sort.Slice(scoredRows, func(i, j int) bool { return scoredRows[i].score > scoredRows[j].score })
	if len(scoredRows) > limit {
		scoredRows = scoredRows[:limit]
	}
	out := make([]SemanticHit, 0, len(scoredRows))
	for _, r := range scoredRows {
		out = append(out, SemanticHit{ID: r.id, VectorScore: r.score})
	}
	return out, nil
}

// SearchSemanticVec performs a KNN search against the vec0 virtual table
// when the sqlite-vec extension loaded successfully.
func SearchSemanticVec(db *sql.DB, queryVec []float32, limit int) ([]SemanticHit, error) {
	if len(queryVec) == 0 || limit <= 0 {
		return nil, nil
	}
	qvec, err := json.Marshal(queryVec)
	if err != nil {
		return nil, fmt.Errorf("marshal query vec: %w", err)
	}
	rows, err := db.Query(
		`SELECT doc_id, distance FROM `+TableDocsVec+` WHERE embedding MATCH ? ORDER BY distance LIMIT ?`,
		string(qvec), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("vec0 query: %w", err)
	}
	defer rows.Close()

	var out []SemanticHit
	for rows.Next() {
		var id string
		var dist float64
		if err := rows.Scan(&id, &dist); err != nil {
			continue
		}
		out = append(out, SemanticHit{ID: id, VectorScore: 1.0 / (1.0 + dist)})
	}
	return out, rows.Err()
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
