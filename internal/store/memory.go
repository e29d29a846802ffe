package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/healthtrack/apiserver/types"
)

// MemoryUserRepository is the volatile user backend. It mirrors the Postgres
// repository's contract exactly; the only observable difference is that its
// contents do not survive a restart.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]types.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]types.User),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return r.users[id], nil
}

// Create inserts a new user. The email check and insert happen under one
// lock, so two concurrent registrations with the same email cannot both
// succeed.
func (r *MemoryUserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now()

	key := normalizeEmail(user.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[key]; exists {
		return types.User{}, ErrDuplicateEmail
	}
	r.users[user.ID] = user
	r.byEmail[key] = user.ID
	return user, nil
}

func (r *MemoryUserRepository) SetAPIKey(ctx context.Context, userID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.APIKey = key
	r.users[userID] = user
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryDocumentRepository is the volatile document backend.
type MemoryDocumentRepository struct {
	mu   sync.RWMutex
	docs map[string]types.Document
}

func NewMemoryDocumentRepository() *MemoryDocumentRepository {
	return &MemoryDocumentRepository{docs: make(map[string]types.Document)}
}

func (r *MemoryDocumentRepository) Save(ctx context.Context, doc types.Document) (types.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.docs[doc.ID] = doc
	return doc, nil
}

func (r *MemoryDocumentRepository) ListForUser(ctx context.Context, userID string) ([]types.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]types.Document, 0)
	for _, doc := range r.docs {
		if doc.UserID == userID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.After(docs[j].CreatedAt)
		}
		return docs[i].ID > docs[j].ID
	})
	return docs, nil
}

// Get returns the document only when it belongs to the given user; ownership
// misses are indistinguishable from missing ids.
func (r *MemoryDocumentRepository) Get(ctx context.Context, userID, docID string) (types.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[docID]
	if !ok || doc.UserID != userID {
		return types.Document{}, ErrNotFound
	}
	return doc, nil
}

// AttachResult overwrites any previously stored result. Last writer wins.
func (r *MemoryDocumentRepository) AttachResult(ctx context.Context, docID string, result types.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[docID]
	if !ok {
		return ErrNotFound
	}
	doc.Result = &result
	r.docs[docID] = doc
	return nil
}
