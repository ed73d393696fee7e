package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kiosk404/spark/internal/adapters"
	"github.com/kiosk404/spark/internal/advisory"
	"github.com/kiosk404/spark/internal/insight"
	"github.com/kiosk404/spark/internal/outcome"
	"github.com/kiosk404/spark/internal/queue"
)

// renderContext (step 1) writes the current advisory context into every
// configured adapter target's marker-bounded region.
func (c *Cycle) renderContext() (int, error) {
	if len(c.cfg.Targets) == 0 {
		return 0, nil
	}
	snapshot := c.ins.Snapshot()
	top := topInsights(snapshot, 8)
	stats := c.q.Stats()

	var b strings.Builder
	fmt.Fprintf(&b, "Spark advisory context (pending events: %d)\n", stats.Pending)
	for _, ins := range top {
		fmt.Fprintf(&b, "- [%s, reliability %.2f] %s\n", ins.Category, ins.Reliability, ins.Text)
	}
	content := b.String()

	rendered := 0
	var firstErr error
	for _, target := range c.cfg.Targets {
		if err := adapters.Render(target, content); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		rendered++
	}
	return rendered, firstErr
}

func topInsights(snapshot map[string]*insight.Insight, n int) []*insight.Insight {
	all := make([]*insight.Insight, 0, len(snapshot))
	for _, ins := range snapshot {
		all = append(all, ins)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Reliability*all[i].Confidence > all[j].Reliability*all[j].Confidence
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

var learningMarkers = regexp.MustCompile(`(?i)\b(REMEMBER|DECISION|PREFERENCE|CORRECTION|BECAUSE)\b:?\s*(.+)`)

var markerCategory = map[string]insight.Category{
	"REMEMBER":   insight.CategoryContext,
	"DECISION":   insight.CategoryDecision,
	"PREFERENCE": insight.CategoryPreference,
	"CORRECTION": insight.CategorySignal,
	"BECAUSE":    insight.CategoryPrinciple,
}

// memoryCapture (step 2) scans user-prompt text for explicit learning
// markers and proposes insight candidates for each hit.
func (c *Cycle) memoryCapture(events []queue.Event) (int, error) {
	count := 0
	for _, ev := range events {
		if ev.Kind != queue.KindUserPrompt && ev.Kind != queue.KindMessage {
			continue
		}
		text := payloadText(ev)
		if text == "" {
			continue
		}
		m := learningMarkers.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		marker := strings.ToUpper(m[1])
		statement := strings.TrimSpace(m[2])
		if statement == "" {
			continue
		}
		cand := insight.Candidate{
			Key:        keyFor(marker, ev.SessionID, statement),
			Text:       statement,
			Category:   markerCategory[marker],
			Confidence: 0.6,
			Evidence:   []string{ev.TraceID},
		}
		if _, err := c.ins.ValidateAndStore(cand); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

var tastePattern = regexp.MustCompile(`(?i)\bI (like|prefer|hate|love|dislike)\b\s+(.+)`)

// tasteParse (step 3) detects preference statements and routes them
// through the write gate as CategoryPreference candidates.
func (c *Cycle) tasteParse(events []queue.Event) (int, error) {
	count := 0
	for _, ev := range events {
		if ev.Kind != queue.KindUserPrompt && ev.Kind != queue.KindMessage {
			continue
		}
		text := payloadText(ev)
		m := tastePattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		statement := strings.TrimSpace(m[1] + " " + m[2])
		cand := insight.Candidate{
			Key:        keyFor("taste", ev.SessionID, statement),
			Text:       statement,
			Category:   insight.CategoryPreference,
			Confidence: 0.55,
			Evidence:   []string{ev.TraceID},
		}
		if _, err := c.ins.ValidateAndStore(cand); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// patternDetection (step 4) scans for repeated two-tool sequences that
// were followed by a successful outcome, proposing them as heuristics.
func (c *Cycle) patternDetection(events []queue.Event) (int, error) {
	type bigram struct{ a, b string }
	successCounts := map[bigram]int{}

	var prevTool string
	for i, ev := range events {
		if ev.Kind == queue.KindPreTool && ev.ToolName != "" {
			if prevTool != "" && i+1 < len(events) && events[i+1].Kind == queue.KindPostTool {
				successCounts[bigram{prevTool, ev.ToolName}]++
			}
			prevTool = ev.ToolName
		}
	}

	count := 0
	for bg, n := range successCounts {
		if n < 3 {
			continue
		}
		text := fmt.Sprintf("%s tends to work out when it follows %s", bg.b, bg.a)
		cand := insight.Candidate{
			Key:        keyFor("pattern", bg.a, bg.b),
			Text:       text,
			Category:   insight.CategoryPrinciple,
			Confidence: 0.5,
		}
		if _, err := c.ins.ValidateAndStore(cand); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// validationLoop (step 5) promotes NEEDS_WORK insights whose realized
// outcome links carry enough confirming confidence to trust unconditionally.
func (c *Cycle) validationLoop() (int, error) {
	snapshot := c.ins.Snapshot()
	count := 0
	for key, ins := range snapshot {
		if !ins.NeedsRefinement {
			continue
		}
		links, err := c.links.ByInsightKey(key)
		if err != nil {
			return count, err
		}
		if len(links) == 0 {
			continue
		}
		var sum float64
		var positive int
		for _, l := range links {
			sum += l.Confidence
			if l.Positive {
				positive++
			}
		}
		avg := sum / float64(len(links))
		if avg >= 0.6 && float64(positive)/float64(len(links)) >= 0.7 {
			if err := c.ins.ClearNeedsRefinement(key); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

// predictionLoop (step 6) feeds the failure-probability table the
// outcome predictor exposes to the advisory engine's hot path.
func (c *Cycle) predictionLoop(events []queue.Event) (int, error) {
	if c.predictor == nil {
		return 0, nil
	}
	count := 0
	for _, ev := range events {
		if ev.Kind != queue.KindPostTool && ev.Kind != queue.KindPostToolFailure {
			continue
		}
		phase := advisory.PhaseForEvent(ev)
		intentFamily := advisory.IntentFamilyForTool(ev.ToolName)
		c.predictor.Observe(phase, intentFamily, ev.ToolName, ev.Kind == queue.KindPostToolFailure)
		count++
	}
	return count, nil
}

var identifierPattern = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)

// contentLearner (step 7) extracts light code-style signals from Edit/Write
// tool input: indentation width and identifier casing convention.
func (c *Cycle) contentLearner(events []queue.Event) (int, error) {
	count := 0
	for _, ev := range events {
		if ev.Kind != queue.KindPreTool || (ev.ToolName != "Edit" && ev.ToolName != "Write" && ev.ToolName != "MultiEdit") {
			continue
		}
		content := toolInputString(ev, "content", "new_string")
		if content == "" {
			continue
		}
		style := inferStyle(content)
		if style == "" {
			continue
		}
		cand := insight.Candidate{
			Key:        keyFor("style", ev.ToolName, style),
			Text:       style,
			Category:   insight.CategoryContentPattern,
			Confidence: 0.4,
			Evidence:   []string{ev.TraceID},
		}
		if _, err := c.ins.ValidateAndStore(cand); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func inferStyle(content string) string {
	tabs := strings.Count(content, "\n\t")
	spaces := strings.Count(content, "\n    ")
	indent := "tabs"
	if spaces > tabs {
		indent = "4-space indentation"
	} else if tabs > spaces {
		indent = "tab indentation"
	} else {
		return ""
	}

	snakeCase, camelCase := 0, 0
	for _, id := range identifierPattern.FindAllString(content, -1) {
		switch {
		case strings.Contains(id, "_"):
			snakeCase++
		case id != strings.ToLower(id) && id == strings.ToLower(id[:1])+id[1:]:
			camelCase++
		}
	}
	naming := ""
	switch {
	case snakeCase > camelCase*2:
		naming = "snake_case identifiers"
	case camelCase > snakeCase*2:
		naming = "camelCase identifiers"
	}
	if naming == "" {
		return fmt.Sprintf("this codebase uses %s", indent)
	}
	return fmt.Sprintf("this codebase uses %s and %s", indent, naming)
}

// outcomeReporting (step 8) runs the outcome detector over every
// post_tool/post_tool_failure and message event since the last cursor and
// links detected signals to recently shown advice.
func (c *Cycle) outcomeReporting(events []queue.Event) (int, error) {
	now := c.clk.Now()
	var signals []outcome.Signal
	for _, ev := range events {
		signals = append(signals, outcome.DetectFromMessage(ev, now)...)
		if s := outcome.DetectFromToolEvent(ev, now); s != nil {
			signals = append(signals, *s)
		}
	}
	if len(signals) == 0 {
		return 0, nil
	}

	rows, err := c.recent.ReadWithin(now, c.cfg.OutcomeWindow)
	if err != nil {
		return 0, err
	}
	candidates := make([]outcome.RecentAdvice, 0, len(rows))
	for _, r := range rows {
		candidates = append(candidates, outcome.RecentAdvice{
			AdviceID: r.AdviceID, InsightKey: r.InsightKey, Source: r.Source,
			Text: r.Text, Tool: r.Tool, TraceID: r.TraceID, At: r.At,
		})
	}

	count := 0
	for _, sig := range signals {
		if err := c.tuner.ProcessSignal(sig, candidates, c.cfg.OutcomeWindow); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// chipProcessing (step 9) groups events by working directory and proposes
// chip-scoped observations, capped per cycle so one bursty session cannot
// monopolize the cycle (spec §5).
func (c *Cycle) chipProcessing(events []queue.Event) (int, error) {
	byCwd := map[string][]queue.Event{}
	for _, ev := range events {
		cwd := toolInputString(ev, "cwd")
		if cwd == "" {
			continue
		}
		byCwd[cwd] = append(byCwd[cwd], ev)
	}

	count := 0
	for cwd, evs := range byCwd {
		if len(evs) > c.cfg.ChipEventCap {
			evs = evs[:c.cfg.ChipEventCap]
		}
		toolCounts := map[string]int{}
		for _, ev := range evs {
			if ev.ToolName != "" {
				toolCounts[ev.ToolName]++
			}
		}
		if len(toolCounts) == 0 {
			continue
		}
		text := fmt.Sprintf("project %s: %d tool calls observed this cycle", filepath.Base(cwd), len(evs))
		cand := insight.Candidate{
			Key:        keyFor("chip", cwd, "activity"),
			Text:       text,
			Category:   insight.CategoryContentPattern,
			Confidence: 0.3,
			SourceChip: cwd,
		}
		if _, err := c.ins.ValidateAndStore(cand); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// chipMerge (step 10) promotes chip-scoped insights whose cognitive-value
// score clears the configured threshold into the global store.
func (c *Cycle) chipMerge() (int, error) {
	thresholds := c.tune.Current().ChipMerge
	snapshot := c.ins.Snapshot()
	count := 0
	for key, ins := range snapshot {
		if ins.SourceChip == "" {
			continue
		}
		cognitiveValue := float64(ins.Scores.Actionability+ins.Scores.Novelty+ins.Scores.Reasoning+ins.Scores.Specificity+ins.Scores.OutcomeLinked) / 10.0
		actionability := float64(ins.Scores.Actionability) / 2.0
		transferability := float64(ins.Scores.Novelty) / 2.0
		if cognitiveValue < thresholds.MinCognitiveValue {
			continue
		}
		if actionability < thresholds.MinActionability {
			continue
		}
		if transferability < thresholds.MinTransferability {
			continue
		}
		if len(ins.Text) < thresholds.MinStatementLen {
			continue
		}
		if err := c.ins.ClearSourceChip(key); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// contextSync (step 11) selects a bounded subset of high-salience insights
// and pushes them to the external Mind service, if configured.
func (c *Cycle) contextSync(ctx context.Context) (int, error) {
	snapshot := c.ins.Snapshot()
	top := topInsights(snapshot, c.cfg.ContextSyncLimit)
	if len(top) == 0 {
		return 0, nil
	}
	items := make([]MindSyncItem, 0, len(top))
	for _, ins := range top {
		items = append(items, MindSyncItem{Key: ins.Key, Text: ins.Text, Reliability: ins.Reliability, Category: string(ins.Category)})
	}
	syncCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.mind.Push(syncCtx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func payloadText(ev queue.Event) string {
	if len(ev.Payload) == 0 {
		return ""
	}
	var v struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(ev.Payload, &v); err == nil && v.Text != "" {
		return v.Text
	}
	return strings.TrimSpace(string(ev.Payload))
}

func toolInputString(ev queue.Event, fields ...string) string {
	if len(ev.ToolInput) == 0 {
		return ""
	}
	var v map[string]interface{}
	if err := json.Unmarshal(ev.ToolInput, &v); err != nil {
		return ""
	}
	for _, f := range fields {
		if s, ok := v[f].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func keyFor(parts ...string) string {
	return strings.Join(parts, ":")
}
