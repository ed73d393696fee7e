package tuneables

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kiosk404/spark/internal/statedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoaderWritesDefaultsWhenMissing(t *testing.T) {
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)

	l, err := NewLoader(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), l.Current())

	var onDisk Document
	require.NoError(t, statedir.ReadJSON(dir.Tuneables(), &onDisk))
	assert.Equal(t, 0.05, onDisk.AdvisoryGate.NoteThreshold)
}

func TestSetUpdatesFieldAndPersists(t *testing.T) {
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)
	l, err := NewLoader(dir)
	require.NoError(t, err)

	require.NoError(t, l.Set("advisory_gate.note_threshold", 0.25))
	assert.Equal(t, 0.25, l.Current().AdvisoryGate.NoteThreshold)

	var onDisk Document
	require.NoError(t, statedir.ReadJSON(dir.Tuneables(), &onDisk))
	assert.Equal(t, 0.25, onDisk.AdvisoryGate.NoteThreshold)
}

func TestSetUnknownSectionReturnsError(t *testing.T) {
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)
	l, err := NewLoader(dir)
	require.NoError(t, err)

	err = l.Set("not_a_section.field", "x")
	assert.Error(t, err)
}

func TestOnReloadCallbackFiresOnSet(t *testing.T) {
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)
	l, err := NewLoader(dir)
	require.NoError(t, err)

	var got Document
	calls := 0
	l.OnReload(func(d Document) { got = d; calls++ })

	require.NoError(t, l.Set("advisory_gate.max_emit_per_call", 2))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, got.AdvisoryGate.MaxEmitPerCall)
}

func TestReloadFallsBackOnMalformedFile(t *testing.T) {
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)
	l, err := NewLoader(dir)
	require.NoError(t, err)
	before := l.Current()

	require.NoError(t, os.WriteFile(dir.Tuneables(), []byte("{not valid json"), 0o644))
	require.NoError(t, l.Reload())
	if diff := cmp.Diff(before, l.Current()); diff != "" {
		t.Errorf("a malformed edit must keep the last-known-good document (-before +after):\n%s", diff)
	}
}
