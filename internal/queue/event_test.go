package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validEvent() Event {
	return Event{V: 1, Source: "claude", Kind: KindPreTool, TS: 1700000000, SessionID: "sess-1"}
}

func TestValidateAcceptsWellFormedEvent(t *testing.T) {
	ev := validEvent()
	assert.NoError(t, ev.Validate())
}

func TestValidateRejectsUnsupportedVersion(t *testing.T) {
	ev := validEvent()
	ev.V = 2
	err := ev.Validate()
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cases := []func(*Event){
		func(e *Event) { e.Source = "" },
		func(e *Event) { e.Kind = "" },
		func(e *Event) { e.SessionID = "" },
		func(e *Event) { e.TS = 0 },
	}
	for _, mutate := range cases {
		ev := validEvent()
		mutate(&ev)
		assert.Error(t, ev.Validate())
	}
}

func TestValidateRejectsUnrecognizedKind(t *testing.T) {
	ev := validEvent()
	ev.Kind = "not_a_real_kind"
	assert.Error(t, ev.Validate())
}

func TestValidateRejectsOversizedPayload(t *testing.T) {
	ev := validEvent()
	ev.Payload = make([]byte, maxPayloadBytes+1)
	assert.Error(t, ev.Validate())
}
