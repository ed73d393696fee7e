package advisory

import (
	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/pkg/logger"
)

// Ledger appends one row per advisory decision. I2 requires every decision,
// emitted or suppressed, to be logged with its trace id; Ledger is the only
// writer and it never rejects a row (a write failure is logged, never
// propagated back into the hot path).
type Ledger struct {
	dir *statedir.Dir
}

func NewLedger(dir *statedir.Dir) *Ledger { return &Ledger{dir: dir} }

// Write appends row to the decision ledger, logging (not returning) any
// I/O failure so the hot path is never blocked by ledger trouble.
func (l *Ledger) Write(row DecisionRow) {
	if err := statedir.AppendJSONL(l.dir.AdvisoryLedger(), row); err != nil {
		logger.Error("[Advisor] failed to append decision ledger row for trace %s: %v", row.TraceID, err)
	}
}
