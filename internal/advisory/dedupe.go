package advisory

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/pkg/clock"
	"github.com/kiosk404/spark/pkg/logger"
)

var normalizeWhitespace = regexp.MustCompile(`\s+`)

// NormalizeText canonicalizes advisory text for dedupe hashing: lowercase,
// collapsed whitespace, trimmed.
func NormalizeText(text string) string {
	return strings.TrimSpace(normalizeWhitespace.ReplaceAllString(strings.ToLower(text), " "))
}

// Fingerprint returns a stable hash of the given parts, hashed as-is with a
// NUL after each one (so order matters), used both for session/global
// dedupe signatures and packet cache keys. Callers normalize text first.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type dedupeEntry struct {
	At time.Time `json:"at"`
}

// SessionDedupe suppresses repeats of the same normalized advisory text
// within a session inside a last-N window. It is in-memory only: a
// restart naturally forgets session-scoped state, which is acceptable
// because only the global dedupe is required to survive restart (I4).
type SessionDedupe struct {
	mu   sync.Mutex
	clk  clock.Clock
	win  int
	hist map[string][]string // session -> ordered list of fingerprints
}

func NewSessionDedupe(clk clock.Clock, windowSize int) *SessionDedupe {
	return &SessionDedupe{clk: clk, win: windowSize, hist: map[string][]string{}}
}

// Seen reports whether fp was emitted for session within the last N
// entries, then records it regardless (matching spec's "last-N window").
func (d *SessionDedupe) Seen(session, fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.hist[session]
	for _, prev := range list {
		if prev == fp {
			return true
		}
	}
	list = append(list, fp)
	if len(list) > d.win {
		list = list[len(list)-d.win:]
	}
	d.hist[session] = list
	return false
}

// GlobalDedupe suppresses repeats of the same fingerprint across sessions
// for a TTL, persisted to a JSONL file so it survives restart (I4).
type GlobalDedupe struct {
	mu   sync.Mutex
	clk  clock.Clock
	path string
	ttl  time.Duration
	seen map[string]time.Time
}

// LoadGlobalDedupe reads persisted dedupe rows from path, keeping only
// entries with their original fingerprint->timestamp mapping; expiry is
// checked lazily on Seen rather than on load.
func LoadGlobalDedupe(path string, clk clock.Clock, ttl time.Duration) (*GlobalDedupe, error) {
	type row struct {
		Fingerprint string    `json:"fingerprint"`
		At          time.Time `json:"at"`
	}
	g := &GlobalDedupe{clk: clk, path: path, ttl: ttl, seen: map[string]time.Time{}}
	if err := readJSONLRows(path, func(data []byte) {
		var r row
		if err := unmarshalRow(data, &r); err == nil {
			g.seen[r.Fingerprint] = r.At
		}
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// Seen reports whether fp is within its TTL window; if not (or never
// seen), it records fp with the current time and returns false.
func (g *GlobalDedupe) Seen(fp string) bool {
	now := g.clk.Now()
	g.mu.Lock()
	at, ok := g.seen[fp]
	expired := !ok || now.Sub(at) > g.ttl
	if expired {
		g.seen[fp] = now
	}
	g.mu.Unlock()

	if !expired {
		return true
	}
	type row struct {
		Fingerprint string    `json:"fingerprint"`
		At          time.Time `json:"at"`
	}
	if err := statedir.AppendJSONL(g.path, row{Fingerprint: fp, At: now}); err != nil {
		logger.Warn("[Advisor] failed to persist global dedupe row: %v", err)
	}
	return false
}
