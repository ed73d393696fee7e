package retrieval

import "context"

// MindClient is the narrow interface to the optional external "Mind"
// durable-memory service. Its wire protocol is explicitly out of scope
// (spec §9 open questions); implementations must time out and degrade
// cleanly rather than block retrieval.
type MindClient interface {
	// TopK returns at most k candidates for the query, or an error/timeout
	// that the caller treats as "Mind unavailable" and ignores.
	TopK(ctx context.Context, q Query, k int) ([]Candidate, error)
}

// NoopMind is used when no Mind endpoint is configured; it always returns
// no candidates without making any network call.
type NoopMind struct{}

func (NoopMind) TopK(context.Context, Query, int) ([]Candidate, error) { return nil, nil }
