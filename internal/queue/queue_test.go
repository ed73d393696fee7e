package queue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAssignsSequentialOffsets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	q, err := Open(path)
	require.NoError(t, err)

	off0, err := q.Append(Event{Source: "claude", Kind: KindPreTool, TS: 1, SessionID: "s1"})
	require.NoError(t, err)
	off1, err := q.Append(Event{Source: "claude", Kind: KindPostTool, TS: 2, SessionID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, int64(0), off0)
	assert.Equal(t, int64(1), off1)
}

func TestReadFromResumesAtCursor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	q, err := Open(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := q.Append(Event{Source: "claude", Kind: KindPreTool, TS: int64(i + 1), SessionID: "s1"})
		require.NoError(t, err)
	}

	first, cursor, err := q.ReadFrom(0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(2), cursor)

	rest, cursor2, err := q.ReadFrom(cursor, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 3)
	assert.Equal(t, int64(5), cursor2)
}

func TestTailRecentReturnsLastN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	q, err := Open(path)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := q.Append(Event{Source: "claude", Kind: KindPreTool, TS: int64(i + 1), SessionID: "s1"})
		require.NoError(t, err)
	}
	tail, err := q.TailRecent(3)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	assert.Equal(t, int64(8), tail[0].TS)
	assert.Equal(t, int64(10), tail[2].TS)
}

func TestOpenRecoversStatsAndDiscardsCorruptTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"v":1,"source":"claude","kind":"pre_tool","ts":1,"session_id":"s1"}
{"v":1,"source":"claude","kind":"post_tool","ts":2,"session_id":"s1"}
{"not valid json`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	q, err := Open(path)
	require.NoError(t, err)
	stats := q.Stats()
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.TruncatedLines)
	assert.Equal(t, int64(1), stats.OldestTS)
	assert.Equal(t, int64(2), stats.NewestTS)
}

func TestBackpressuredTripsAboveHighWaterMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	q, err := Open(path)
	require.NoError(t, err)
	q.HighWaterMark = 2

	for i := 0; i < 3; i++ {
		_, err := q.Append(Event{Source: "claude", Kind: KindPreTool, TS: int64(i + 1), SessionID: "s1"})
		require.NoError(t, err)
	}
	assert.True(t, q.Backpressured())
}
