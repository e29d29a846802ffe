package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/healthtrack/apiserver/types"
)

// DocumentRepository handles persistence for documents on Postgres. Payload
// bytes live inline in the row unless the document carries a storage key, in
// which case the bytes are held by the object-storage layer.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Save inserts a new document, assigning an identifier and creation timestamp
// when absent.
func (r *DocumentRepository) Save(ctx context.Context, doc types.Document) (types.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	const query = `
		INSERT INTO documents (id, user_id, filename, kind, content_type, payload, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.UserID,
		doc.Filename,
		doc.Kind,
		doc.ContentType,
		doc.Payload,
		doc.StorageKey,
		doc.CreatedAt,
	); err != nil {
		return types.Document{}, err
	}
	return doc, nil
}

// ListForUser returns the user's documents newest first. Payload bytes are
// not loaded for listings.
func (r *DocumentRepository) ListForUser(ctx context.Context, userID string) ([]types.Document, error) {
	const query = `
		SELECT id, user_id, filename, kind, content_type, storage_key, created_at, result
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]types.Document, 0)
	for rows.Next() {
		var doc types.Document
		var resultJSON []byte
		if err := rows.Scan(
			&doc.ID,
			&doc.UserID,
			&doc.Filename,
			&doc.Kind,
			&doc.ContentType,
			&doc.StorageKey,
			&doc.CreatedAt,
			&resultJSON,
		); err != nil {
			return nil, err
		}
		if len(resultJSON) > 0 {
			var result types.AnalysisResult
			if err := json.Unmarshal(resultJSON, &result); err == nil {
				doc.Result = &result
			}
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get returns the document only when it belongs to the given user. A document
// owned by someone else is reported as ErrNotFound, identical in shape to a
// truly missing id.
func (r *DocumentRepository) Get(ctx context.Context, userID, docID string) (types.Document, error) {
	const query = `
		SELECT id, user_id, filename, kind, content_type, payload, storage_key, created_at, result
		FROM documents
		WHERE id = $1 AND user_id = $2`
	var doc types.Document
	var resultJSON []byte
	err := r.db.QueryRowContext(ctx, query, docID, userID).Scan(
		&doc.ID,
		&doc.UserID,
		&doc.Filename,
		&doc.Kind,
		&doc.ContentType,
		&doc.Payload,
		&doc.StorageKey,
		&doc.CreatedAt,
		&resultJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Document{}, ErrNotFound
		}
		return types.Document{}, err
	}
	if len(resultJSON) > 0 {
		var result types.AnalysisResult
		if err := json.Unmarshal(resultJSON, &result); err == nil {
			doc.Result = &result
		}
	}
	return doc, nil
}

// AttachResult overwrites the document's analysis result. Re-running analysis
// replaces the stored result; nothing accumulates.
func (r *DocumentRepository) AttachResult(ctx context.Context, docID string, result types.AnalysisResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}

	const query = `UPDATE documents SET result = $1 WHERE id = $2`
	res, err := r.db.ExecContext(ctx, query, resultJSON, docID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
