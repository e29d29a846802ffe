// Package mq publishes analysis lifecycle events to an optional message
// broker for operator-side integrations. Publishing is fire-and-forget; a
// broker failure never affects the API response.
package mq

import (
	"context"
	"encoding/json"
	"time"
)

// TopicAnalysisCompleted receives one event per successful analysis.
const TopicAnalysisCompleted = "analysis.completed"

// AnalysisCompleted describes a finished analysis. The payload itself stays
// in the document store; events carry identifiers and the headline numbers.
type AnalysisCompleted struct {
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// Publisher wraps a backend with a stable API.
type Publisher struct {
	backend Backend
}

// NewPublisher constructs a Publisher for the provided backend.
func NewPublisher(backend Backend) *Publisher {
	return &Publisher{backend: backend}
}

// PublishAnalysisCompleted sends an AnalysisCompleted event.
func (p *Publisher) PublishAnalysisCompleted(ctx context.Context, event AnalysisCompleted) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	attrs := map[string]string{"kind": event.Kind}
	_, err = p.backend.Publish(ctx, TopicAnalysisCompleted, data, attrs)
	return err
}

// Close closes the underlying backend.
func (p *Publisher) Close() error {
	return p.backend.Close()
}
