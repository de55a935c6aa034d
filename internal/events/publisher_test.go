package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingJS implements only Publish; any other JetStream call panics.
type recordingJS struct {
	jetstream.JetStream
	subject string
	data    []byte
	err     error
}

func (j *recordingJS) Publish(_ context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	j.subject = subject
	j.data = data
	if j.err != nil {
		return nil, j.err
	}
	return &jetstream.PubAck{Stream: streamName, Sequence: 1}, nil
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "events.diagnosis.DIAGNOSIS_RESOLVED", Subject(TypeDiagnosisResolved))
	assert.Equal(t, "events.diagnosis.DIAGNOSIS_ESCALATED", Subject(TypeDiagnosisEscalated))
}

func TestPublish(t *testing.T) {
	js := &recordingJS{}
	p := &Publisher{js: js}
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), Event{
		Type: TypeDiagnosisResolved,
		Data: map[string]interface{}{
			"session_id": "abc",
			"diagnosis":  "Flu",
		},
		OccurredAt: occurred,
	})
	require.NoError(t, err)
	assert.Equal(t, "events.diagnosis.DIAGNOSIS_RESOLVED", js.subject)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(js.data, &body))
	assert.Equal(t, "abc", body["session_id"])
	assert.Equal(t, "Flu", body["diagnosis"])
	assert.Equal(t, "2026-03-01T12:00:00Z", body["occurred_at"])
}

func TestPublish_WrapsBusErrors(t *testing.T) {
	busErr := errors.New("no responders")
	p := &Publisher{js: &recordingJS{err: busErr}}

	err := p.Publish(context.Background(), Event{Type: TypeDiagnosisEscalated})
	assert.ErrorIs(t, err, busErr)
	assert.Contains(t, err.Error(), "events.diagnosis.DIAGNOSIS_ESCALATED")
}

func TestEncode(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data := map[string]interface{}{"occurred_at": "spoofed", "round": 2}

	raw, err := encode(Event{Type: TypeDiagnosisResolved, Data: data, OccurredAt: occurred})
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "2026-03-01T12:00:00Z", body["occurred_at"])
	assert.Equal(t, float64(2), body["round"])
	assert.Equal(t, "spoofed", data["occurred_at"], "caller's map must not be modified")

	_, err = encode(Event{Data: map[string]interface{}{"bad": make(chan int)}})
	assert.Error(t, err)
}
