package outcome

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/kiosk404/spark/internal/queue"
)

type phrasePattern struct {
	re         *regexp.Regexp
	confidence float64
}

// messagePatterns group the success/failure phrase heuristics scanned over
// user-message text into the families the original phrase vocabulary used
// (conversational, technical/CI, approval-or-rejection), each carrying its
// own confidence weight. A message is resolved to at most one outcome: the
// higher-scoring polarity wins, so a message that happens to contain both a
// positive and a negative phrase doesn't emit two contradictory signals.
var positivePatterns = []phrasePattern{
	{regexp.MustCompile(`(?i)\bthat (worked|works|fixed it)\b`), 0.9},
	{regexp.MustCompile(`(?i)\bperfect\b|\bexactly\b|\bgreat,? thanks\b`), 0.7},
	{regexp.MustCompile(`(?i)\b(ship it|done|complete|finished)\b`), 0.6},
	{regexp.MustCompile(`(?i)\bthank(s| you)\b`), 0.6},
	{regexp.MustCompile(`(?i)tests?\s+(pass|passed|passing|succeeded)`), 0.9},
	{regexp.MustCompile(`(?i)build\s+(succeeded|passed)`), 0.9},
	{regexp.MustCompile(`exit code 0\b`), 0.8},
	{regexp.MustCompile(`(?i)\b(approved?|lgtm|looks good)\b`), 0.85},
}

var negativePatterns = []phrasePattern{
	{regexp.MustCompile(`(?i)\bstill (broken|failing|not working)\b`), 0.9},
	{regexp.MustCompile(`(?i)\bthat('s| is) wrong\b|\bdidn't work\b`), 0.85},
	{regexp.MustCompile(`(?i)\brevert\b|\bundo that\b`), 0.8},
	{regexp.MustCompile(`(?i)tests?\s+(fail|failed|failing)`), 0.95},
	{regexp.MustCompile(`(?i)build\s+(fail|failed)`), 0.95},
	{regexp.MustCompile(`(?i)(exception|traceback|stack trace)`), 0.85},
	{regexp.MustCompile(`exit code [1-9]\d*\b`), 0.9},
}

// signalThreshold is the minimum winning-polarity score for a message to
// count as a signal at all; below it the message is too ambiguous.
const signalThreshold = 0.4

func maxMatch(text string, patterns []phrasePattern) float64 {
	var best float64
	for _, p := range patterns {
		if p.re.MatchString(text) && p.confidence > best {
			best = p.confidence
		}
	}
	return best
}

// DetectFromMessage scans a user_prompt/message event's text for
// success/failure phrases, returning at most one signal: whichever polarity
// scores higher, provided it clears signalThreshold.
func DetectFromMessage(ev queue.Event, now time.Time) []Signal {
	if ev.Kind != queue.KindUserPrompt && ev.Kind != queue.KindMessage {
		return nil
	}
	text := payloadText(ev)
	if text == "" {
		return nil
	}

	posScore := maxMatch(text, positivePatterns)
	negScore := maxMatch(text, negativePatterns)

	var sig Signal
	switch {
	case posScore > negScore && posScore > signalThreshold:
		sig = Signal{Positive: true, Confidence: posScore}
	case negScore > posScore && negScore > signalThreshold:
		sig = Signal{Positive: false, Confidence: negScore}
	default:
		return nil
	}
	sig.TraceID, sig.SessionID, sig.Text, sig.At = ev.TraceID, ev.SessionID, text, now
	return []Signal{sig}
}

// DetectFromToolEvent converts a post_tool / post_tool_failure event
// directly into a signal; these carry a fixed high confidence since they
// are structurally unambiguous (not phrase-matched).
func DetectFromToolEvent(ev queue.Event, now time.Time) *Signal {
	switch ev.Kind {
	case queue.KindPostTool:
		return &Signal{Positive: true, Confidence: 1.0, TraceID: ev.TraceID, SessionID: ev.SessionID, At: now}
	case queue.KindPostToolFailure:
		return &Signal{Positive: false, Confidence: 1.0, TraceID: ev.TraceID, SessionID: ev.SessionID, At: now}
	default:
		return nil
	}
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
