package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"diagnosis-refiner/internal/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	TypeDiagnosisResolved  = "DIAGNOSIS_RESOLVED"
	TypeDiagnosisEscalated = "DIAGNOSIS_ESCALATED"
)

const (
	subjectPrefix = "events.diagnosis."
	streamName    = "DIAGNOSIS_EVENTS"
)

// Event is a domain event published on the bus under Subject(Type).
type Event struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

// Publisher sends events to NATS JetStream.
type Publisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewPublisher(url string, log logger.ILogger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{subjectPrefix + ">"},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		// Stream may be managed elsewhere; publishing still works if it exists.
		log.Warn("EVENTS", "Failed to ensure stream", map[string]interface{}{
			"stream": streamName,
			"error":  err.Error(),
		})
	}

	return &Publisher{nc: nc, js: js}, nil
}

func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	data, err := encode(evt)
	if err != nil {
		return err
	}

	subject := Subject(evt.Type)
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", subject, err)
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// encode flattens evt into the JSON message body. occurred_at always reflects
// evt.OccurredAt, even if Data carries a key of that name.
func encode(evt Event) ([]byte, error) {
	payload := make(map[string]interface{}, len(evt.Data)+1)
	for k, v := range evt.Data {
		payload[k] = v
	}
	payload["occurred_at"] = evt.OccurredAt

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return data, nil
}

func Subject(eventType string) string {
	return subjectPrefix + eventType
}
