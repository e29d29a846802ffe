package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/healthtrack/apiserver/internal/storage"
	"github.com/healthtrack/apiserver/types"
)

var (
	ErrUnsupportedKind = errors.New("unsupported document kind")
	ErrKindMismatch    = errors.New("payload does not match declared kind")
	ErrEmptyPayload    = errors.New("empty payload")
)

var pdfMagic = []byte("%PDF-")

// DocumentRepository defines persistence operations for documents. The
// durable and volatile backends implement the same contract; callers cannot
// tell them apart except through persistence across restarts.
type DocumentRepository interface {
	Save(ctx context.Context, doc types.Document) (types.Document, error)
	ListForUser(ctx context.Context, userID string) ([]types.Document, error)
	Get(ctx context.Context, userID, docID string) (types.Document, error)
	AttachResult(ctx context.Context, docID string, result types.AnalysisResult) error
}

// DashboardSummary aggregates a user's documents for the dashboard view.
type DashboardSummary struct {
	TotalDocuments    int              `json:"total_documents"`
	AnalyzedDocuments int              `json:"analyzed_documents"`
	RecentAnalyses    []RecentAnalysis `json:"recent_analyses"`
}

// RecentAnalysis is one analyzed document with its attached result.
type RecentAnalysis struct {
	types.DocumentSummary
	Result *types.AnalysisResult `json:"result"`
}

const maxRecentAnalyses = 5

// DocumentService encapsulates document use-cases. When a blob store is
// configured, the payload bytes of saved documents live in object storage
// under a per-document key instead of inline in the repository.
type DocumentService struct {
	repo  DocumentRepository
	blobs storage.BlobStore
	log   *slog.Logger
}

func NewDocumentService(repo DocumentRepository, blobs storage.BlobStore, log *slog.Logger) *DocumentService {
	return &DocumentService{repo: repo, blobs: blobs, log: log}
}

// Upload validates and stores a new document. The declared kind must be on
// the allow-list and must match the payload's actual content.
func (s *DocumentService) Upload(ctx context.Context, userID, filename string, kind types.DocumentKind, payload []byte) (types.Document, error) {
	if !kind.Valid() {
		return types.Document{}, ErrUnsupportedKind
	}
	if len(payload) == 0 {
		return types.Document{}, ErrEmptyPayload
	}

	contentType, err := sniffContentType(kind, payload)
	if err != nil {
		return types.Document{}, err
	}

	doc := types.Document{
		ID:          uuid.NewString(),
		UserID:      userID,
		Filename:    strings.TrimSpace(filename),
		Kind:        kind,
		ContentType: contentType,
		Payload:     payload,
	}

	if s.blobs != nil {
		key := storage.PayloadKey(doc.ID)
		err := s.blobs.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), contentType)
		if err != nil {
			// Keep the payload inline rather than failing the upload.
			s.log.Warn("blob store unavailable, storing payload inline",
				"document_id", doc.ID, "error", err)
		} else {
			doc.StorageKey = key
			doc.Payload = nil
		}
	}

	return s.repo.Save(ctx, doc)
}

// ListForUser returns the user's documents, newest first.
func (s *DocumentService) ListForUser(ctx context.Context, userID string) ([]types.Document, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Get returns one of the user's documents with its payload bytes resolved
// from object storage when they are not stored inline.
func (s *DocumentService) Get(ctx context.Context, userID, docID string) (types.Document, error) {
	doc, err := s.repo.Get(ctx, userID, docID)
	if err != nil {
		return types.Document{}, err
	}

	if len(doc.Payload) == 0 && doc.StorageKey != "" && s.blobs != nil {
		reader, err := s.blobs.Get(ctx, doc.StorageKey)
		if err != nil {
			return types.Document{}, err
		}
		defer reader.Close()
		payload, err := io.ReadAll(reader)
		if err != nil {
			return types.Document{}, err
		}
		doc.Payload = payload
	}
	return doc, nil
}

// AttachResult overwrites the document's analysis result. Concurrent writers
// are not serialized; the last write wins.
func (s *DocumentService) AttachResult(ctx context.Context, docID string, result types.AnalysisResult) error {
	return s.repo.AttachResult(ctx, docID, result)
}

// Dashboard aggregates the user's documents into the dashboard summary.
func (s *DocumentService) Dashboard(ctx context.Context, userID string) (DashboardSummary, error) {
	docs, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return DashboardSummary{}, err
	}

	summary := DashboardSummary{
		TotalDocuments: len(docs),
		RecentAnalyses: make([]RecentAnalysis, 0, maxRecentAnalyses),
	}
	for _, doc := range docs {
		if !doc.HasResult() {
			continue
		}
		summary.AnalyzedDocuments++
		if len(summary.RecentAnalyses) < maxRecentAnalyses {
			summary.RecentAnalyses = append(summary.RecentAnalyses, RecentAnalysis{
				DocumentSummary: doc.Summary(),
				Result:          doc.Result,
			})
		}
	}
	return summary, nil
}

func sniffContentType(kind types.DocumentKind, payload []byte) (string, error) {
	switch kind {
	case types.KindPDF:
		if !bytes.HasPrefix(payload, pdfMagic) {
			return "", ErrKindMismatch
		}
		return "application/pdf", nil
	case types.KindImage:
		contentType := http.DetectContentType(payload)
		if !strings.HasPrefix(contentType, "image/") {
			return "", ErrKindMismatch
		}
		return contentType, nil
	default:
		return "", ErrUnsupportedKind
	}
}
