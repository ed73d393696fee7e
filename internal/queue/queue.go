// Package queue implements the append-only event log (C2): durable writes
// with an fsync boundary, offset-based cursors for readers, and a
// tail-recent path used by the bridge cycle. Modeled on echoryn's
// memory-core file-backed stores, generalized from a SQLite table to a
// newline-delimited record file as the spec requires.
package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/kiosk404/spark/pkg/logger"
)

// Stats summarizes queue health for diagnostics and backpressure decisions.
type Stats struct {
	Pending       int64 `json:"pending"`
	Overflow      int64 `json:"overflow"`
	OldestTS      int64 `json:"oldest_ts"`
	NewestTS      int64 `json:"newest_ts"`
	TruncatedLines int64 `json:"truncated_lines"`
}

// Queue is the append-only durable event log. A single Queue instance is
// meant to be shared process-wide; appends take an in-process mutex and an
// OS-level advisory lock so a second sparkd process (or sparkctl ingest)
// touching the same file cannot interleave partial writes.
type Queue struct {
	path string

	mu       sync.Mutex
	nextOff  int64
	count    int64
	overflow int64
	oldest   int64
	newest   int64
	truncated int64

	// HighWaterMark is the pending-count threshold above which the ingest
	// surface should return backpressure (spec default 20000).
	HighWaterMark int64
}

// Open opens (creating if necessary) the event log at path and recovers
// queue stats by scanning existing lines. A truncated trailing line is
// discarded and counted rather than treated as fatal, per spec §4.2.
func Open(path string) (*Queue, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	defer f.Close()

	q := &Queue{path: path, HighWaterMark: 20000}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var offset int64
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			q.truncated++
			logger.Warn("[Queue] discarding corrupt line at offset %d: %v", offset, err)
			continue
		}
		offset++
		q.count++
		if q.oldest == 0 || ev.TS < q.oldest {
			q.oldest = ev.TS
		}
		if ev.TS > q.newest {
			q.newest = ev.TS
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("[Queue] scan error recovering stats, truncating: %v", err)
		q.truncated++
	}
	q.nextOff = offset
	return q, nil
}

// Append durably writes event to the log, assigning it the next offset.
// The write is flushed and fsynced before returning so a crash immediately
// after Append never loses an accepted event.
func (q *Queue) Append(ev Event) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open event log for append: %w", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return 0, fmt.Errorf("lock event log: %w", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN)

	ev.Offset = q.nextOff
	line, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("fsync event log: %w", err)
	}

	q.nextOff++
	q.count++
	if q.oldest == 0 || ev.TS < q.oldest {
		q.oldest = ev.TS
	}
	if ev.TS > q.newest {
		q.newest = ev.TS
	}
	if q.count > q.HighWaterMark {
		q.overflow++
	}
	return ev.Offset, nil
}

// ReadFrom returns up to limit events starting at cursor (an offset) and the
// cursor to resume from on the next call.
func (q *Queue) ReadFrom(cursor int64, limit int) ([]Event, int64, error) {
	f, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cursor, nil
		}
		return nil, cursor, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var out []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var offset int64
	for scanner.Scan() {
		if offset < cursor {
			offset++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			offset++
			continue
		}
		out = append(out, ev)
		offset++
	}
	return out, offset, scanner.Err()
}

// TailRecent returns the last n events in append order, used by the bridge
// cycle's per-step scans that only care about recent history.
func (q *Queue) TailRecent(n int) ([]Event, error) {
	all, _, err := q.ReadFrom(0, 0)
	if err != nil {
		return nil, err
	}
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// Stats reports current pending/overflow/timestamp counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Pending:        q.count,
		Overflow:       q.overflow,
		OldestTS:       q.oldest,
		NewestTS:       q.newest,
		TruncatedLines: q.truncated,
	}
}

// Backpressured reports whether the pending count exceeds HighWaterMark,
// the condition under which /ingest must return a 429-style rejection.
func (q *Queue) Backpressured() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count > q.HighWaterMark
}
