package sparkd

import (
	"path/filepath"

	"github.com/kiosk404/spark/internal/adapters"
)

// region is the marker key every resolved target shares, so re-runs with a
// different --export-target list still find and replace their own region
// rather than leaving orphaned blocks behind.
const region = "spark-advisory"

// knownAdapters maps the short names accepted by --export-target to the
// file a hosted frontend actually reads on its own, relative to workDir.
// Anything not in this table is treated as a literal path, so an operator
// can point sparkd at an arbitrary project file.
var knownAdapters = map[string]string{
	"claude":   "CLAUDE.md",
	"cursor":   filepath.Join(".cursor", "rules", "spark.mdc"),
	"openclaw": filepath.Join(".openclaw", "context.md"),
}

// resolveExportTargets turns the operator's --export-target names into the
// adapters.Target values the bridge cycle's context-sync step renders into,
// grounded on echoryn's hivemind router resolving named defaults out of a
// gateway config (initRouter/installController above, before this file was
// repurposed from LLM route wiring to frontend target resolution).
func resolveExportTargets(workDir string, names []string) []adapters.Target {
	targets := make([]adapters.Target, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		rel, ok := knownAdapters[name]
		if !ok {
			rel = name
		}
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, rel)
		}
		if seen[path] {
			continue
		}
		seen[path] = true
		targets = append(targets, adapters.Target{Path: path, Region: region})
	}
	return targets
}
