// Package adapters renders Spark's advisory context into whatever file a
// hosted frontend reads on its own (a project CLAUDE.md, a Cursor rules
// file, an OpenClaw workspace context file). Writes replace a
// marker-bounded region and never truncate the rest of the host file,
// mirroring the restraint echoryn's memory-core export writers show
// around files they do not own outright.
package adapters

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

const (
	beginMarkerFmt = "<!-- spark:begin %s -->"
	endMarkerFmt   = "<!-- spark:end %s -->"
)

// ErrEmptyContent guards against a caller accidentally truncating the
// managed region by passing nothing to render.
var ErrEmptyContent = fmt.Errorf("adapters: refusing to render empty content")

// Target names one frontend's output file and the marker region key used
// inside it, so two adapters can share one host file without colliding.
type Target struct {
	Path   string
	Region string
}

// Render writes content into the marker-bounded region named by
// target.Region inside target.Path, creating the file and appending a new
// region if none exists yet. Everything outside the markers is preserved
// byte for byte.
func Render(target Target, content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	begin := fmt.Sprintf(beginMarkerFmt, target.Region)
	end := fmt.Sprintf(endMarkerFmt, target.Region)
	block := begin + "\n" + content + "\n" + end

	existing, err := os.ReadFile(target.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read adapter target %s: %w", target.Path, err)
	}

	var out []byte
	if existing == nil {
		out = []byte(block + "\n")
	} else {
		out, err = replaceOrAppend(existing, begin, end, block)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(target.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir for adapter target %s: %w", target.Path, err)
	}
	tmp := target.Path + ".spark-tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("write adapter target %s: %w", target.Path, err)
	}
	return os.Rename(tmp, target.Path)
}

func replaceOrAppend(existing []byte, begin, end, block string) ([]byte, error) {
	bi := bytes.Index(existing, []byte(begin))
	if bi < 0 {
		sep := []byte("\n\n")
		if len(existing) > 0 && existing[len(existing)-1] == '\n' {
			sep = []byte("\n")
		}
		return append(append(append([]byte{}, existing...), sep...), []byte(block+"\n")...), nil
	}
	ei := bytes.Index(existing[bi:], []byte(end))
	if ei < 0 {
		return nil, fmt.Errorf("adapters: found begin marker without matching end marker")
	}
	ei += bi + len(end)
	out := make([]byte, 0, len(existing)-(ei-bi)+len(block))
	out = append(out, existing[:bi]...)
	out = append(out, []byte(block)...)
	out = append(out, existing[ei:]...)
	return out, nil
}
