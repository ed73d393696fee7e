package advisory

import (
	"time"

	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/pkg/logger"
)

// RecentAdviceRow is one row of the rolling window of shown advice the
// outcome loop (C7) reads back to find candidates for a detected signal.
type RecentAdviceRow struct {
	AdviceID   string    `json:"advice_id"`
	InsightKey string    `json:"insight_key,omitempty"`
	Source     string    `json:"source"`
	Text       string    `json:"text"`
	Tool       string    `json:"tool"`
	TraceID    string    `json:"trace_id"`
	At         time.Time `json:"at"`
}

// RecentAdviceLog appends every emission to advisor/recent_advice.jsonl.
type RecentAdviceLog struct {
	dir *statedir.Dir
}

func NewRecentAdviceLog(dir *statedir.Dir) *RecentAdviceLog { return &RecentAdviceLog{dir: dir} }

func (l *RecentAdviceLog) Append(row RecentAdviceRow) {
	if err := statedir.AppendJSONL(l.dir.AdvisorRecentAdvice(), row); err != nil {
		logger.Warn("[Advisor] failed to append recent-advice row: %v", err)
	}
}

// ReadWithin returns every row written within window of now, read fresh
// from disk each call since the bridge cycle only does this once per tick.
func (l *RecentAdviceLog) ReadWithin(now time.Time, window time.Duration) ([]RecentAdviceRow, error) {
	var out []RecentAdviceRow
	err := readJSONLRows(l.dir.AdvisorRecentAdvice(), func(line []byte) {
		var row RecentAdviceRow
		if err := unmarshalRow(line, &row); err != nil {
			return
		}
		if now.Sub(row.At) <= window {
			out = append(out, row)
		}
	})
	return out, err
}
