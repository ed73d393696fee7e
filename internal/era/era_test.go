package era

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kiosk404/spark/internal/statedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithNoPriorEraReturnsZeroValue(t *testing.T) {
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)

	doc, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Current)
}

func TestRotateArchivesFilesAndResetsThemEmpty(t *testing.T) {
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(dir.EventsLog(), []byte(`{"v":1}`+"\n"), 0o644))
	require.NoError(t, os.WriteFile(dir.CognitiveInsights(), []byte(`{"insights":{}}`), 0o644))

	doc, err := Rotate(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Current)

	// The original paths must exist again, empty.
	data, err := os.ReadFile(dir.EventsLog())
	require.NoError(t, err)
	assert.Empty(t, data)

	archived := filepath.Join(dir.ExportsArchive(), "era-1", "events.jsonl")
	archivedData, err := os.ReadFile(archived)
	require.NoError(t, err)
	assert.Equal(t, `{"v":1}`+"\n", string(archivedData))

	persisted, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, persisted.Current)
}

func TestRotateIsSafeWithNoExistingFiles(t *testing.T) {
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)

	doc, err := Rotate(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Current)
}

func TestRotateTwiceIncrementsEra(t *testing.T) {
	dir, err := statedir.Open(t.TempDir())
	require.NoError(t, err)

	_, err = Rotate(dir)
	require.NoError(t, err)
	second, err := Rotate(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Current)

	_, err = os.Stat(filepath.Join(dir.ExportsArchive(), "era-2"))
	assert.NoError(t, err)
}
