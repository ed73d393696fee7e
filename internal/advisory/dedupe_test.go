package advisory

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kiosk404/spark/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTextCollapsesWhitespaceAndCase(t *testing.T) {
	assert.Equal(t, "run tests before pushing", NormalizeText("  Run   Tests\nbefore   PUSHING  "))
}

func TestFingerprintIsStableAndOrderSensitive(t *testing.T) {
	a := Fingerprint("tool", "text")
	b := Fingerprint("tool", "text")
	c := Fingerprint("text", "tool")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSessionDedupeSuppressesWithinWindow(t *testing.T) {
	d := NewSessionDedupe(clock.Real(), 2)
	fp := Fingerprint("t1")

	assert.False(t, d.Seen("sess-1", fp), "first sighting must not be suppressed")
	assert.True(t, d.Seen("sess-1", fp), "repeat within window must be suppressed")
}

func TestSessionDedupeWindowEvictsOldEntries(t *testing.T) {
	d := NewSessionDedupe(clock.Real(), 1)
	a, b := Fingerprint("a"), Fingerprint("b")

	assert.False(t, d.Seen("sess-1", a))
	assert.False(t, d.Seen("sess-1", b)) // evicts a out of the window of size 1
	assert.False(t, d.Seen("sess-1", a), "a fell out of the last-N window so it is not a repeat anymore")
}

func TestSessionDedupeIsolatesSessions(t *testing.T) {
	d := NewSessionDedupe(clock.Real(), 4)
	fp := Fingerprint("shared")
	assert.False(t, d.Seen("sess-1", fp))
	assert.False(t, d.Seen("sess-2", fp), "different session must not see sess-1's history")
}

func TestGlobalDedupeSurvivesReloadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "advisory_global_dedupe.jsonl")
	start := time.Unix(1_700_000_000, 0)
	clk := clock.Fixed{T: start}

	g, err := LoadGlobalDedupe(path, clk, time.Hour)
	require.NoError(t, err)
	fp := Fingerprint("never cast nil interfaces")

	assert.False(t, g.Seen(fp), "first sighting is not a duplicate")
	assert.True(t, g.Seen(fp), "seeing it again within TTL must be suppressed")

	// Simulate a daemon restart: a fresh GlobalDedupe loaded from the same
	// persisted file must still remember fp (I4 restart durability).
	reloaded, err := LoadGlobalDedupe(path, clk, time.Hour)
	require.NoError(t, err)
	assert.True(t, reloaded.Seen(fp), "persisted dedupe row must survive reload")
}

func TestGlobalDedupeExpiresAfterTTL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "advisory_global_dedupe.jsonl")
	stepped := &clock.Stepped{Start: time.Unix(1_700_000_000, 0), Step: time.Hour}

	g, err := LoadGlobalDedupe(path, stepped, 30*time.Minute)
	require.NoError(t, err)
	fp := Fingerprint("expires eventually")

	assert.False(t, g.Seen(fp))
	assert.False(t, g.Seen(fp), "TTL of 30m has elapsed after a 1h step, so this is no longer a duplicate")
}
