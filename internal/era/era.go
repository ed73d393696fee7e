// Package era implements era rotation (spec §6, §12.6): archiving the
// state directory's mutable stores into exports/archive/era-<n>/ and
// resetting them to empty, the first-class daemon-adjacent counterpart to
// the external log rotation spec §3 assumes happens to the event queue.
// Grounded on echoryn's memory-core store rewrite-then-rename pattern,
// applied here to a whole directory of files instead of one.
package era

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kiosk404/spark/internal/statedir"
)

// Document is the persisted era.json contract named in spec §6.
type Document struct {
	Current   int       `json:"current"`
	RotatedAt time.Time `json:"rotated_at"`
}

// Load returns the current era document, era 0 if none has been written yet.
func Load(dir *statedir.Dir) (Document, error) {
	var doc Document
	if err := statedir.ReadJSON(dir.Era(), &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// rotatedFiles lists every mutable store archived on rotation, the event
// queue first. Each one is renamed into the archive and replaced by an empty
// file, so EventsLog() exists again immediately after, ready for the next
// append, just like the others.
func rotatedFiles(dir *statedir.Dir) []string {
	return []string{
		dir.EventsLog(),
		dir.CognitiveInsights(),
		dir.InsightQuarantine(),
		dir.AdvisoryLedger(),
		dir.AdvisoryGlobalDedupe(),
		dir.AdvisoryLowAuthDedupe(),
		dir.AdvisorEffectiveness(),
		dir.AdvisorRecentAdvice(),
		dir.OutcomeLinks(),
	}
}

// Rotate archives every mutable store into a fresh era-<n> directory under
// exports/archive/ and leaves behind empty files so the next daemon start
// (or in-flight process, if the operator forgot to stop it first) simply
// continues writing into a clean era. Safe to call with no prior era.json.
func Rotate(dir *statedir.Dir) (Document, error) {
	current, err := Load(dir)
	if err != nil {
		return Document{}, fmt.Errorf("era: load current: %w", err)
	}

	next := current.Current + 1
	archiveDir := filepath.Join(dir.ExportsArchive(), fmt.Sprintf("era-%d", next))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return Document{}, fmt.Errorf("era: create archive dir: %w", err)
	}

	for _, src := range rotatedFiles(dir) {
		if err := archiveAndReset(src, archiveDir); err != nil {
			return Document{}, fmt.Errorf("era: archive %s: %w", src, err)
		}
	}

	doc := Document{Current: next, RotatedAt: time.Now()}
	if err := statedir.WriteJSONAtomic(dir.Era(), doc); err != nil {
		return Document{}, fmt.Errorf("era: persist era.json: %w", err)
	}
	return doc, nil
}

// archiveAndReset moves src into dstDir if it exists, touching an empty
// replacement at its original path so readers opened against the old
// handle (or the next process to Open it) find a valid, empty file rather
// than a missing one.
func archiveAndReset(src, dstDir string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	dst := filepath.Join(dstDir, filepath.Base(src))
	if err := os.Rename(src, dst); err != nil {
		return err
	}
	f, err := os.OpenFile(src, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
