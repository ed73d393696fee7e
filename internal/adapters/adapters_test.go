package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderCreatesFileWithMarkerRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CLAUDE.md")
	target := Target{Path: path, Region: "spark-advisory"}

	require.NoError(t, Render(target, "always run tests before pushing"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "<!-- spark:begin spark-advisory -->")
	assert.Contains(t, content, "<!-- spark:end spark-advisory -->")
	assert.Contains(t, content, "always run tests before pushing")
}

func TestRenderPreservesContentOutsideMarkers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CLAUDE.md")
	require.NoError(t, os.WriteFile(path, []byte("# My Project\n\nHand-written notes here.\n"), 0o644))

	target := Target{Path: path, Region: "spark-advisory"}
	require.NoError(t, Render(target, "first advisory block"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# My Project")
	assert.Contains(t, string(data), "Hand-written notes here.")
	assert.Contains(t, string(data), "first advisory block")
}

func TestRenderReplacesExistingRegionInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CLAUDE.md")
	target := Target{Path: path, Region: "spark-advisory"}

	require.NoError(t, Render(target, "old advice"))
	require.NoError(t, Render(target, "new advice"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.NotContains(t, content, "old advice")
	assert.Contains(t, content, "new advice")

	// Exactly one begin marker: the region was replaced, not duplicated.
	assert.Equal(t, 1, countOccurrences(content, "<!-- spark:begin spark-advisory -->"))
}

func TestRenderRejectsEmptyContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CLAUDE.md")
	target := Target{Path: path, Region: "spark-advisory"}
	err := Render(target, "")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestRenderDistinctRegionsDoNotCollide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CLAUDE.md")
	require.NoError(t, Render(Target{Path: path, Region: "spark-advisory"}, "advisory content"))
	require.NoError(t, Render(Target{Path: path, Region: "spark-other"}, "other content"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "advisory content")
	assert.Contains(t, content, "other content")
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
