package outcome

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kiosk404/spark/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageEvent(t *testing.T, text string) queue.Event {
	t.Helper()
	payload, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	require.NoError(t, err)
	return queue.Event{Kind: queue.KindUserPrompt, SessionID: "sess-1", TraceID: "trace-1", Payload: payload}
}

func TestDetectFromMessagePositivePhrase(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sig := DetectFromMessage(messageEvent(t, "perfect, that fixed it"), now)
	// "that fixed it" (0.9) and "perfect" (0.7) both match; the higher wins
	// as the single resolved signal rather than emitting both.
	require.Len(t, sig, 1)
	assert.True(t, sig[0].Positive)
	assert.Equal(t, 0.9, sig[0].Confidence)
}

func TestDetectFromMessageMixedPolarityPicksHigherScore(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sig := DetectFromMessage(messageEvent(t, "tests failed, but thanks for trying"), now)
	require.Len(t, sig, 1)
	assert.False(t, sig[0].Positive)
}

func TestDetectFromMessageNegativePhrase(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sig := DetectFromMessage(messageEvent(t, "still broken after that change"), now)
	require.Len(t, sig, 1)
	assert.False(t, sig[0].Positive)
	assert.Equal(t, 0.9, sig[0].Confidence)
}

func TestDetectFromMessageIgnoresUnrelatedKinds(t *testing.T) {
	ev := messageEvent(t, "that worked perfectly")
	ev.Kind = queue.KindPreTool
	assert.Nil(t, DetectFromMessage(ev, time.Now()))
}

func TestDetectFromMessageNoMatchReturnsEmpty(t *testing.T) {
	sig := DetectFromMessage(messageEvent(t, "please add a new endpoint for exporting CSV"), time.Now())
	assert.Empty(t, sig)
}

func TestDetectFromToolEventMapsKinds(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	pos := DetectFromToolEvent(queue.Event{Kind: queue.KindPostTool, TraceID: "t1"}, now)
	require.NotNil(t, pos)
	assert.True(t, pos.Positive)
	assert.Equal(t, 1.0, pos.Confidence)

	neg := DetectFromToolEvent(queue.Event{Kind: queue.KindPostToolFailure, TraceID: "t2"}, now)
	require.NotNil(t, neg)
	assert.False(t, neg.Positive)

	assert.Nil(t, DetectFromToolEvent(queue.Event{Kind: queue.KindPreTool}, now))
}
