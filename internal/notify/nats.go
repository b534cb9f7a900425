package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"video-publisher/internal/logging"
)

// SubjectPrefix is followed by the concept id.
const SubjectPrefix = "publisher.runs."

// Envelope wraps every published event.
type Envelope struct {
	Type          string    `json:"type"`
	Version       string    `json:"version"`
	OccurredAt    time.Time `json:"occurredAt"`
	CorrelationID string    `json:"correlationId"`
	Payload       Report    `json:"payload"`
}

// publisher is the part of *nats.Conn used here.
type publisher interface {
	Publish(subject string, data []byte) error
}

type NATS struct {
	pub publisher
	nc  *nats.Conn
	log *logging.Logger
}

// NewNATS connects to url. An empty url or a failed connection yields nil and no notifier.
func NewNATS(url string, log *logging.Logger) *NATS {
	if url == "" {
		return nil
	}
	nc, err := nats.Connect(url, nats.Name("video-publisher"), nats.MaxReconnects(-1))
	if err != nil {
		log.Warnf("notify: NATS connect to %s failed, events disabled: %v", url, err)
		return nil
	}
	return &NATS{pub: nc, nc: nc, log: log}
}

func (n *NATS) Notify(_ context.Context, r Report) error {
	b, err := json.Marshal(Envelope{
		Type:          "publisher.run.completed",
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: r.RunIDOrNew(),
		Payload:       r,
	})
	if err != nil {
		return err
	}
	return n.pub.Publish(SubjectPrefix+r.ConceptID, b)
}

func (n *NATS) Close() error {
	if n.nc != nil {
		return n.nc.Drain()
	}
	return nil
}

// RunIDOrNew returns the run id, generating one for reports built outside the orchestrator.
func (r Report) RunIDOrNew() string {
	if r.RunID != "" {
		return r.RunID
	}
	return uuid.NewString()
}
