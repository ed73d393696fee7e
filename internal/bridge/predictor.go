package bridge

import (
	"sync"

	"github.com/kiosk404/spark/internal/advisory"
)

// Predictor is the bridge cycle's failure-probability table, satisfying
// advisory.OutcomePredictor. Each cell reports its plain failure ratio; no
// smoothing is applied. It is fed by the prediction-loop
// step (spec §4.3 step 6) and consumed by the advisory engine's hot path
// when SPARK_OUTCOME_PREDICTOR is set.
type Predictor struct {
	mu    sync.RWMutex
	cells map[string]*predictorCell
}

type predictorCell struct {
	total    int
	failures int
}

func NewPredictor() *Predictor {
	return &Predictor{cells: map[string]*predictorCell{}}
}

func predictorKey(phase, intentFamily, tool string) string {
	return phase + "|" + intentFamily + "|" + tool
}

// Observe records one realized outcome for (phase, intentFamily, tool).
func (p *Predictor) Observe(phase advisory.Phase, intentFamily, tool string, failed bool) {
	key := predictorKey(string(phase), intentFamily, tool)
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cells[key]
	if !ok {
		c = &predictorCell{}
		p.cells[key] = c
	}
	c.total++
	if failed {
		c.failures++
	}
}

// FailureProbability implements advisory.OutcomePredictor, returning
// failures/total for the cell. Cells with fewer than 3 observations report 0
// rather than an overconfident ratio.
func (p *Predictor) FailureProbability(phase advisory.Phase, intentFamily, tool string) float64 {
	key := predictorKey(string(phase), intentFamily, tool)
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.cells[key]
	if !ok || c.total < 3 {
		return 0
	}
	return float64(c.failures) / float64(c.total)
}
