package statedir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSubdirectories(t *testing.T) {
	root := t.TempDir()
	dir, err := Open(filepath.Join(root, "state"))
	require.NoError(t, err)

	for _, sub := range []string{"queue", "advisor", "exports", "exports/archive"} {
		info, err := os.Stat(filepath.Join(dir.Root(), sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestWriteJSONAtomicThenReadJSONRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	want := payload{Name: "spark", N: 7}
	require.NoError(t, WriteJSONAtomic(path, want))

	var got payload
	require.NoError(t, ReadJSON(path, &got))
	assert.Equal(t, want, got)
}

func TestReadJSONMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	var v map[string]string
	assert.NoError(t, ReadJSON(path, &v))
	assert.Nil(t, v)
}

func TestAppendJSONLAppendsOneLinePerCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, AppendJSONL(path, map[string]int{"n": 1}))
	require.NoError(t, AppendJSONL(path, map[string]int{"n": 2}))

	lines := readLines(t, path)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"n":1`)
	assert.Contains(t, lines[1], `"n":2`)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, string(data[start:i]))
			}
			start = i + 1
		}
	}
	return lines
}
