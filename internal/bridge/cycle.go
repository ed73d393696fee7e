// Package bridge implements the bridge cycle (C3): a cooperative worker
// that drains the event queue on a timer and fans events out to every
// learner, detector, and exporter in the system. Grounded on echoryn's
// memory-core manager sync loop (dirty/syncing coalescing flags, a
// process-wide lock held for the batch, fail-open per-operation error
// handling) generalized from a single file-sync pass to the eleven-step
// cycle spec §4.3 names.
package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/kiosk404/spark/internal/adapters"
	"github.com/kiosk404/spark/internal/advisory"
	"github.com/kiosk404/spark/internal/insight"
	"github.com/kiosk404/spark/internal/outcome"
	"github.com/kiosk404/spark/internal/queue"
	"github.com/kiosk404/spark/internal/retrieval"
	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/internal/tuneables"
	"github.com/kiosk404/spark/pkg/clock"
	"github.com/kiosk404/spark/pkg/logger"
)

// MindSync is the narrow, timeout-bounded push side of the optional
// external Mind service, mirrored against retrieval.MindClient's equally
// narrow read side. No wire protocol is assumed (spec §9 open question).
type MindSync interface {
	Push(ctx context.Context, items []MindSyncItem) error
}

// MindSyncItem is one high-salience insight selected for export.
type MindSyncItem struct {
	Key         string
	Text        string
	Reliability float64
	Category    string
}

// NoopMindSync is used when no Mind endpoint is configured.
type NoopMindSync struct{}

func (NoopMindSync) Push(context.Context, []MindSyncItem) error { return nil }

// MinInterval and MaxInterval bound the configurable cycle period (spec §4.3).
const (
	MinInterval     = 10 * time.Second
	MaxInterval     = 600 * time.Second
	DefaultInterval = 60 * time.Second
)

// Config bundles the cycle's own tunables; everything downstream (gate
// thresholds, retrieval weights, engine config) is reconfigured separately
// from tuneables.Document each tick.
type Config struct {
	Interval         time.Duration
	ReadBatchLimit   int
	ChipEventCap     int
	ContextSyncLimit int
	OutcomeWindow    time.Duration
	Targets          []adapters.Target
}

// DefaultConfig returns the spec's named defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         DefaultInterval,
		ReadBatchLimit:   2000,
		ChipEventCap:     200,
		ContextSyncLimit: 20,
		OutcomeWindow:    outcome.DefaultWindow,
	}
}

// Cycle owns every collaborator the eleven steps touch.
type Cycle struct {
	clk  clock.Clock
	dir  *statedir.Dir
	q    *queue.Queue
	ins  *insight.Store
	ret  *retrieval.Manager
	eng  *advisory.Engine
	recent *advisory.RecentAdviceLog
	links *outcome.LinkStore
	tuner *outcome.Tuner
	tune  *tuneables.Loader
	mind  MindSync
	predictor *Predictor

	cfg Config

	running atomic.Bool
	cursor  int64
}

type cursorDoc struct {
	Offset int64 `json:"offset"`
}

// NewCycle wires a Cycle from its already-constructed collaborators; all
// bootstrapping (opening stores, schema, etc.) is the caller's job.
func NewCycle(clk clock.Clock, dir *statedir.Dir, q *queue.Queue, ins *insight.Store, ret *retrieval.Manager, eng *advisory.Engine, recent *advisory.RecentAdviceLog, links *outcome.LinkStore, tuner *outcome.Tuner, tune *tuneables.Loader, predictor *Predictor) (*Cycle, error) {
	var cd cursorDoc
	if err := statedir.ReadJSON(dir.BridgeCursor(), &cd); err != nil {
		return nil, err
	}
	c := &Cycle{
		clk: clk, dir: dir, q: q, ins: ins, ret: ret, eng: eng, recent: recent,
		links: links, tuner: tuner, tune: tune, mind: NoopMindSync{}, predictor: predictor,
		cfg: DefaultConfig(), cursor: cd.Offset,
	}
	if tune != nil {
		tune.OnReload(c.applyTuneables)
	}
	return c, nil
}

func (c *Cycle) SetMindSync(m MindSync) {
	if m != nil {
		c.mind = m
	}
}

func (c *Cycle) Reconfigure(cfg Config) {
	if cfg.Interval < MinInterval {
		cfg.Interval = MinInterval
	}
	if cfg.Interval > MaxInterval {
		cfg.Interval = MaxInterval
	}
	c.cfg = cfg
}

// Heartbeat is the liveness beacon written after every cycle, successful
// or not: absence of a fresh one is how the operator detects a wedged
// worker (spec §4.3).
type Heartbeat struct {
	At          time.Time         `json:"at"`
	Skipped     bool              `json:"skipped"`
	CursorBefore int64            `json:"cursor_before"`
	CursorAfter int64             `json:"cursor_after"`
	EventCount  int               `json:"event_count"`
	StepCounts  map[string]int    `json:"step_counts"`
	StepErrors  map[string]string `json:"step_errors,omitempty"`
}

// Run executes one cycle. A second call arriving while one is already in
// flight is coalesced: it returns immediately with Skipped=true rather
// than running a second overlapping pass (spec §4.3 concurrency contract).
func (c *Cycle) Run(ctx context.Context) Heartbeat {
	if !c.running.CompareAndSwap(false, true) {
		return Heartbeat{At: c.clk.Now(), Skipped: true}
	}
	defer c.running.Store(false)

	hb := Heartbeat{At: c.clk.Now(), CursorBefore: c.cursor, StepCounts: map[string]int{}, StepErrors: map[string]string{}}

	if c.tune != nil {
		if err := c.tune.Reload(); err != nil {
			hb.StepErrors["tuneables_reload"] = err.Error()
		}
		c.applyTuneables(c.tune.Current())
	}

	events, newCursor, err := c.q.ReadFrom(c.cursor, c.cfg.ReadBatchLimit)
	if err != nil {
		hb.StepErrors["read_queue"] = err.Error()
		c.writeHeartbeat(hb)
		return hb
	}
	hb.EventCount = len(events)

	c.ins.BeginBatch()
	defer func() {
		if err := c.ins.EndBatch(); err != nil {
			logger.Warn("[Bridge] insight batch flush failed: %v", err)
		}
	}()

	type step struct {
		name string
		fn   func() (int, error)
	}
	steps := []step{
		{"render_context", func() (int, error) { return c.renderContext() }},
		{"memory_capture", func() (int, error) { return c.memoryCapture(events) }},
		{"taste_parse", func() (int, error) { return c.tasteParse(events) }},
		{"pattern_detection", func() (int, error) { return c.patternDetection(events) }},
		{"validation_loop", func() (int, error) { return c.validationLoop() }},
		{"prediction_loop", func() (int, error) { return c.predictionLoop(events) }},
		{"content_learner", func() (int, error) { return c.contentLearner(events) }},
		{"outcome_reporting", func() (int, error) { return c.outcomeReporting(events) }},
		{"chip_processing", func() (int, error) { return c.chipProcessing(events) }},
		{"chip_merge", func() (int, error) { return c.chipMerge() }},
		{"context_sync", func() (int, error) { return c.contextSync(ctx) }},
	}

	for _, s := range steps {
		count, err := c.runStep(s.name, s.fn)
		hb.StepCounts[s.name] = count
		if err != nil {
			hb.StepErrors[s.name] = err.Error()
		}
	}

	if rows := toInsightRows(c.ins.Snapshot()); len(rows) > 0 {
		if err := c.ret.IndexInsights(rows); err != nil {
			hb.StepErrors["index_insights"] = err.Error()
		}
	}

	c.cursor = newCursor
	hb.CursorAfter = newCursor
	if err := statedir.WriteJSONAtomic(c.dir.BridgeCursor(), cursorDoc{Offset: newCursor}); err != nil {
		hb.StepErrors["persist_cursor"] = err.Error()
	}

	c.writeHeartbeat(hb)
	return hb
}

// runStep is the error-containment helper spec §4.3 requires: a panicking
// or erroring step never aborts the cycle, it only records a per-step
// failure and the cycle moves on.
func (c *Cycle) runStep(name string, fn func() (int, error)) (count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logger.Error("[Bridge] step %s panicked: %v", name, r)
		}
	}()
	count, err = fn()
	if err != nil {
		logger.Warn("[Bridge] step %s failed: %v", name, err)
	}
	return count, err
}

func (c *Cycle) writeHeartbeat(hb Heartbeat) {
	if err := statedir.WriteJSONAtomic(c.dir.BridgeWorkerHeartbeat(), hb); err != nil {
		logger.Error("[Bridge] failed to write heartbeat: %v", err)
	}
}

func toInsightRows(snapshot map[string]*insight.Insight) []retrieval.InsightRow {
	rows := make([]retrieval.InsightRow, 0, len(snapshot))
	for _, ins := range snapshot {
		rows = append(rows, retrieval.InsightRow{
			Key: ins.Key, Text: ins.Text, Reliability: ins.Reliability,
			Category: string(ins.Category), SourceChip: ins.SourceChip,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

// Start runs the cycle on a timer until ctx is cancelled, the idiomatic
// long-running-worker shape used throughout the daemon bootstrap.
func (c *Cycle) Start(ctx context.Context) {
	interval := c.cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Run(ctx)
			if c.tune != nil {
				interval = c.cfg.Interval
				if interval <= 0 {
					interval = DefaultInterval
				}
				ticker.Reset(interval)
			}
		}
	}
}
