package retrieval

// BaselineAdviceKey identifies a (tool, phase) pair in the baseline table.
type BaselineAdviceKey struct {
	Tool  string
	Phase string
}

// BaselineTable is the small deterministic safety-net set keyed by
// (tool, phase), consulted when no other source returns candidates.
type BaselineTable map[BaselineAdviceKey]string

// DefaultBaseline seeds a handful of conservative, generically useful
// baseline items so the advisory gate always has a fallback candidate to
// consider for common high-risk tools, per spec §4.5.
func DefaultBaseline() BaselineTable {
	return BaselineTable{
		{Tool: "Bash", Phase: "deployment"}:      "Double-check this command against the deployment target before running it.",
		{Tool: "Bash", Phase: "implementation"}:   "Prefer the project's existing scripts over ad-hoc shell commands where one exists.",
		{Tool: "Write", Phase: "implementation"}:  "Confirm the target path is correct before overwriting an existing file.",
		{Tool: "Edit", Phase: "debugging"}:        "Re-read the surrounding code before editing to avoid losing unrelated context.",
	}
}

// Lookup returns the baseline item for (tool, phase), if any.
func (t BaselineTable) Lookup(tool, phase string) (string, bool) {
	v, ok := t[BaselineAdviceKey{Tool: tool, Phase: phase}]
	return v, ok
}
