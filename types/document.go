package types

import "time"

// DocumentKind discriminates the supported upload formats.
type DocumentKind string

const (
	KindImage DocumentKind = "image"
	KindPDF   DocumentKind = "pdf"
)

// Valid reports whether the kind is on the allow-list.
func (k DocumentKind) Valid() bool {
	return k == KindImage || k == KindPDF
}

// Document is a stored upload owned by exactly one user. It is created once on
// upload and mutated only by attaching an analysis result.
type Document struct {
	// ID is the unique identifier of the document.
	ID string `json:"id" db:"id"`

	// UserID identifies the owning user. Documents are never visible
	// outside their owner.
	UserID string `json:"user_id" db:"user_id"`

	// Filename is the original client-supplied file name.
	Filename string `json:"filename" db:"filename"`

	// Kind is the declared document kind ("image" or "pdf").
	Kind DocumentKind `json:"kind" db:"kind"`

	// ContentType is the sniffed MIME type of the payload.
	ContentType string `json:"content_type" db:"content_type"`

	// Payload holds the raw uploaded bytes. When an object-storage backend
	// is configured the durable store keeps these out of the database and
	// records StorageKey instead.
	Payload []byte `json:"-" db:"payload"`

	// StorageKey is the object-storage key of the payload, empty when the
	// payload is stored inline.
	StorageKey string `json:"-" db:"storage_key"`

	// CreatedAt is the upload timestamp.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// Result is the most recent analysis result, nil until the document has
	// been analyzed. Re-analysis replaces it in place.
	Result *AnalysisResult `json:"result,omitempty" db:"result"`
}

// HasResult reports whether the document carries an analysis result.
func (d Document) HasResult() bool {
	return d.Result != nil
}

// DocumentSummary is the list/dashboard view of a Document, without payload.
type DocumentSummary struct {
	ID          string       `json:"id"`
	Filename    string       `json:"filename"`
	Kind        DocumentKind `json:"kind"`
	CreatedAt   time.Time    `json:"created_at"`
	HasAnalysis bool         `json:"has_analysis"`
}

// Summary returns the list view of the document.
func (d Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:          d.ID,
		Filename:    d.Filename,
		Kind:        d.Kind,
		CreatedAt:   d.CreatedAt,
		HasAnalysis: d.HasResult(),
	}
}
