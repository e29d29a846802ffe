// Package analysis builds multimodal requests against the upstream inference
// endpoint and normalizes its loosely structured answers into the fixed
// result schema.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/healthtrack/apiserver/internal/mq"
	"github.com/healthtrack/apiserver/types"
)

var (
	// ErrNoAPIKey means the user has not stored an upstream key. This is
	// checked before any network activity.
	ErrNoAPIKey = errors.New("no api key configured")

	// ErrUnsupportedAnalysis means the requested analysis kind is unknown.
	ErrUnsupportedAnalysis = errors.New("unsupported analysis kind")

	// ErrWrongDocumentKind means the analysis kind does not apply to the
	// document's kind (e.g. hair analysis of a PDF).
	ErrWrongDocumentKind = errors.New("analysis does not apply to this document kind")

	// ErrUpstreamUnavailable covers network errors, timeouts, and upstream
	// 5xx responses. Transient; callers may retry, the engine does not.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamMalformed means the endpoint answered but the answer could
	// not be parsed into the required shape. Not transient.
	ErrUpstreamMalformed = errors.New("upstream response malformed")
)

// Generator performs one upstream inference call and returns the model's
// textual answer.
type Generator interface {
	Generate(ctx context.Context, apiKey, instruction string, payload []byte, mimeType string) (string, error)
}

// DocumentStore is the slice of the document service the engine needs.
type DocumentStore interface {
	Get(ctx context.Context, userID, docID string) (types.Document, error)
	AttachResult(ctx context.Context, docID string, result types.AnalysisResult) error
}

// EventPublisher receives a notification per successful analysis.
type EventPublisher interface {
	PublishAnalysisCompleted(ctx context.Context, event mq.AnalysisCompleted) error
}

const defaultUpstreamTimeout = 30 * time.Second

// Engine runs the analysis pipeline: resolve key, fetch payload, call the
// upstream endpoint once with a bounded timeout, parse, attach.
type Engine struct {
	docs    DocumentStore
	gen     Generator
	events  EventPublisher
	timeout time.Duration
	log     *slog.Logger
}

// NewEngine constructs an Engine. events may be nil to disable event
// publishing.
func NewEngine(docs DocumentStore, gen Generator, events EventPublisher, timeout time.Duration, log *slog.Logger) *Engine {
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	return &Engine{docs: docs, gen: gen, events: events, timeout: timeout, log: log}
}

// Analyze runs one analysis of the given document and attaches the result.
// Exactly one upstream attempt is made per invocation; retrying is caller
// policy. Calling Analyze again for the same document replaces the stored
// result.
func (e *Engine) Analyze(ctx context.Context, user types.User, documentID string, kind types.AnalysisKind) (types.AnalysisResult, error) {
	if !kind.Valid() {
		return types.AnalysisResult{}, ErrUnsupportedAnalysis
	}
	if !user.HasAPIKey() {
		return types.AnalysisResult{}, ErrNoAPIKey
	}

	doc, err := e.docs.Get(ctx, user.ID, documentID)
	if err != nil {
		return types.AnalysisResult{}, err
	}
	if doc.Kind != kind.DocumentKind() {
		return types.AnalysisResult{}, ErrWrongDocumentKind
	}

	// The payload and key are in hand; no store lock is held across the
	// upstream call.
	instruction := promptFor(kind)
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	raw, err := e.gen.Generate(callCtx, user.APIKey, instruction, doc.Payload, doc.ContentType)
	cancel()
	if err != nil {
		return types.AnalysisResult{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	result, err := parseResult(kind, raw)
	if err != nil {
		return types.AnalysisResult{}, err
	}
	result.CreatedAt = time.Now()

	if err := e.docs.AttachResult(ctx, documentID, result); err != nil {
		return types.AnalysisResult{}, err
	}

	if e.events != nil {
		event := mq.AnalysisCompleted{
			DocumentID: documentID,
			UserID:     user.ID,
			Kind:       string(kind),
			Confidence: result.Confidence,
			At:         result.CreatedAt,
		}
		if err := e.events.PublishAnalysisCompleted(ctx, event); err != nil {
			e.log.Warn("failed to publish analysis event",
				"document_id", documentID, "error", err)
		}
	}

	return result, nil
}
