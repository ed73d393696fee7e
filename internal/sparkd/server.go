package sparkd

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kiosk404/spark/internal/advisory"
	"github.com/kiosk404/spark/internal/bridge"
	"github.com/kiosk404/spark/internal/ingest"
	"github.com/kiosk404/spark/internal/insight"
	"github.com/kiosk404/spark/internal/outcome"
	"github.com/kiosk404/spark/internal/queue"
	"github.com/kiosk404/spark/internal/retrieval"
	"github.com/kiosk404/spark/internal/retrieval/store"
	"github.com/kiosk404/spark/internal/sparkd/config"
	"github.com/kiosk404/spark/internal/statedir"
	"github.com/kiosk404/spark/internal/tuneables"
	"github.com/kiosk404/spark/pkg/clock"
	"github.com/kiosk404/spark/pkg/logger"
)

// apiServer bundles every collaborator the daemon bootstraps, mirroring the
// shape echoryn's hivemind apiServer composes (gRPC/generic servers, plugin
// and LLM modules) before this file was repurposed from an LLM gateway
// bootstrap to Spark's C1-C7 pipeline bootstrap.
type apiServer struct {
	dir   *statedir.Dir
	queue *queue.Queue
	db    *sql.DB

	bind    string
	portStr string

	insights  *insight.Store
	retrieval *retrieval.Manager
	tune      *tuneables.Loader

	cooldown *advisory.ToolCooldown
	session  *advisory.SessionDedupe
	global   *advisory.GlobalDedupe
	budget   *advisory.FallbackBudget
	gate     *advisory.Gate
	ledger   *advisory.Ledger
	recent   *advisory.RecentAdviceLog
	engine   *advisory.Engine

	links *outcome.LinkStore
	tuner *outcome.Tuner

	predictor *bridge.Predictor
	cycle     *bridge.Cycle

	ingest *ingest.Server
	http   *http.Server
}

// createAPIServer wires every collaborator from cfg, opening all persisted
// state (queue, insight document, retrieval index, tuneables, global dedupe,
// decision ledger, outcome links) before composing the engine, bridge cycle, and
// ingest HTTP surface. Nothing here starts a goroutine; that is Run's job.
func createAPIServer(cfg *config.Config) (*apiServer, error) {
	dir, err := statedir.Open(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open state dir: %w", err)
	}

	clk := clock.Real()

	q, err := queue.Open(dir.EventsLog())
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	insights, err := insight.Open(dir, clk)
	if err != nil {
		return nil, fmt.Errorf("open insight store: %w", err)
	}

	db, err := store.Open(dir.RetrievalIndexDB())
	if err != nil {
		return nil, fmt.Errorf("open retrieval index: %w", err)
	}
	schema, err := store.EnsureSchema(db, true, &store.VecSchemaConfig{Enabled: cfg.SemanticEnabled, Dimensions: 256})
	if err != nil {
		return nil, fmt.Errorf("ensure retrieval schema: %w", err)
	}
	if schema.FTSError != "" {
		logger.Warn("[sparkd] FTS5 unavailable, lexical retrieval degraded: %s", schema.FTSError)
	}
	if cfg.SemanticEnabled && schema.VecError != "" {
		logger.Warn("[sparkd] sqlite-vec unavailable, falling back to brute-force cosine: %s", schema.VecError)
	}
	retMgr := retrieval.New(db, schema.FTSAvailable, schema.VecAvailable, nil, retrieval.NoopMind{})

	tune, err := tuneables.NewLoader(dir)
	if err != nil {
		return nil, fmt.Errorf("open tuneables: %w", err)
	}
	doc := tune.Current()

	cooldown := advisory.NewToolCooldown(clk, time.Duration(doc.AdvisoryGate.ToolCooldownS)*time.Second)
	category := advisory.NewCategoryCooldown(clk, advisory.DefaultCategoryCooldowns())
	session := advisory.NewSessionDedupe(clk, 64)
	global, err := advisory.LoadGlobalDedupe(dir.AdvisoryGlobalDedupe(), clk, 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("load global dedupe: %w", err)
	}
	budget := advisory.NewFallbackBudget(clk, doc.AdvisoryEngine.FallbackBudgetCap, time.Duration(doc.AdvisoryEngine.FallbackBudgetWindowS)*time.Second)
	gate := advisory.NewGate(advisory.DefaultGateConfig(), cooldown, category, session, global, budget)
	ledger := advisory.NewLedger(dir)
	recent := advisory.NewRecentAdviceLog(dir)

	engine := advisory.NewEngine(clk, retMgr, ledger, recent, gate, budget, q)

	links, err := outcome.OpenLinkStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open outcome link store: %w", err)
	}
	tuner, err := outcome.NewTuner(clk, dir, links, insights)
	if err != nil {
		return nil, fmt.Errorf("open outcome tuner: %w", err)
	}

	predictor := bridge.NewPredictor()
	if predictorEnabled() {
		engine.SetOutcomePredictor(predictorAdapter{predictor})
	}

	cycle, err := bridge.NewCycle(clk, dir, q, insights, retMgr, engine, recent, links, tuner, tune, predictor)
	if err != nil {
		return nil, fmt.Errorf("open bridge cycle: %w", err)
	}
	cycle.Reconfigure(bridge.Config{
		Interval:         cfg.BridgeInterval,
		ReadBatchLimit:   2000,
		ChipEventCap:     200,
		ContextSyncLimit: 20,
		OutcomeWindow:    outcome.DefaultWindow,
		Targets:          resolveExportTargets(workDir(), cfg.ExportTargets),
	})

	token, err := resolveAuth(cfg)
	if err != nil {
		return nil, err
	}
	auth := &ingest.AuthConfig{Enabled: !cfg.AuthDisabled, Token: token}
	ingestSrv := ingest.New(q, auth, engine)

	return &apiServer{
		dir: dir, queue: q, db: db,
		bind: cfg.BindAddress, portStr: strconv.Itoa(cfg.Port),
		insights: insights, retrieval: retMgr, tune: tune,
		cooldown: cooldown, session: session, global: global, budget: budget,
		gate: gate, ledger: ledger, recent: recent, engine: engine,
		links: links, tuner: tuner,
		predictor: predictor, cycle: cycle,
		ingest: ingestSrv,
	}, nil
}

// predictorAdapter satisfies advisory.OutcomePredictor over bridge.Predictor,
// translating the engine's Phase type to the predictor's own vocabulary.
type predictorAdapter struct{ p *bridge.Predictor }

func (a predictorAdapter) FailureProbability(phase advisory.Phase, intentFamily, tool string) float64 {
	return a.p.FailureProbability(phase, intentFamily, tool)
}

func predictorEnabled() bool {
	v := strings.ToLower(os.Getenv("SPARK_OUTCOME_PREDICTOR"))
	return v == "1" || v == "true"
}

func workDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// resolveAuth implements the CLI-flag/env-var > token-file precedence
// spec §4.1 requires for the ingest surface's bearer token; Options.Complete
// has already folded SPARKD_TOKEN into cfg.Token by the time this runs.
func resolveAuth(cfg *config.Config) (string, error) {
	if cfg.AuthDisabled {
		return "", nil
	}
	if cfg.Token != "" {
		return cfg.Token, nil
	}
	if cfg.TokenFile != "" {
		b, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return "", fmt.Errorf("no bearer token configured")
}

// Run starts the bridge cycle, the tuneables fsnotify watcher, and the
// ingest HTTP listener, blocking until ctx is cancelled and then shutting
// each one down in turn.
func (s *apiServer) Run(ctx context.Context) error {
	if err := s.tune.StartWatcher(ctx, 500*time.Millisecond); err != nil {
		logger.Warn("[sparkd] tuneables watcher failed to start: %v", err)
	}

	go s.cycle.Start(ctx)
	go s.writeHeartbeats(ctx)

	addr := net.JoinHostPort(s.bindAddress(), s.port())
	s.http = &http.Server{Addr: addr, Handler: s.ingest.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[sparkd] ingest listening on %s", addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		logger.Error("[sparkd] http shutdown: %v", err)
	}
	s.close()
	return nil
}

func (s *apiServer) bindAddress() string { return s.bind }
func (s *apiServer) port() string        { return s.portStr }

func (s *apiServer) writeHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat := struct {
				At int64 `json:"at"`
			}{At: time.Now().Unix()}
			if err := statedir.WriteJSONAtomic(s.dir.SparkdHeartbeat(), beat); err != nil {
				logger.Warn("[sparkd] heartbeat write failed: %v", err)
			}
			if err := statedir.WriteJSONAtomic(s.dir.SchedulerHeartbeat(), beat); err != nil {
				logger.Warn("[sparkd] scheduler heartbeat write failed: %v", err)
			}
		}
	}
}

func (s *apiServer) close() {
	if err := s.links.Close(); err != nil {
		logger.Warn("[sparkd] closing outcome link store: %v", err)
	}
	if err := s.db.Close(); err != nil {
		logger.Warn("[sparkd] closing retrieval index: %v", err)
	}
	s.tune.Close()
}
