package services

import (
	"context"
	"testing"

	"github.com/healthtrack/apiserver/internal/logging"
	"github.com/healthtrack/apiserver/internal/store"
	"github.com/healthtrack/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngPayload = []byte("\x89PNG\r\n\x1a\n tiny test image")
	pdfPayload = []byte("%PDF-1.4 tiny test report")
)

func newDocumentService() *DocumentService {
	return NewDocumentService(store.NewMemoryDocumentRepository(), nil, logging.Discard())
}

func TestUpload_KindValidation(t *testing.T) {
	t.Parallel()

	svc := newDocumentService()
	ctx := context.Background()

	_, err := svc.Upload(ctx, "u", "notes.txt", types.DocumentKind("text"), []byte("hello"))
	assert.ErrorIs(t, err, ErrUnsupportedKind)

	_, err = svc.Upload(ctx, "u", "empty.pdf", types.KindPDF, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	// Declared pdf, actual image content.
	_, err = svc.Upload(ctx, "u", "scan.pdf", types.KindPDF, pngPayload)
	assert.ErrorIs(t, err, ErrKindMismatch)

	// Declared image, actual pdf content.
	_, err = svc.Upload(ctx, "u", "scan.png", types.KindImage, pdfPayload)
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestUpload_SniffsContentType(t *testing.T) {
	t.Parallel()

	svc := newDocumentService()
	ctx := context.Background()

	img, err := svc.Upload(ctx, "u", "scalp.png", types.KindImage, pngPayload)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.NotEmpty(t, img.ID)

	pdf, err := svc.Upload(ctx, "u", "labs.pdf", types.KindPDF, pdfPayload)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
}

func TestUploadThenListShowsAnalysisState(t *testing.T) {
	t.Parallel()

	svc := newDocumentService()
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "u", "scalp.png", types.KindImage, pngPayload)
	require.NoError(t, err)

	docs, err := svc.ListForUser(ctx, "u")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.False(t, docs[0].Summary().HasAnalysis)

	result := types.AnalysisResult{Kind: types.AnalysisHair, Summary: "ok", Confidence: 0.7}
	require.NoError(t, svc.AttachResult(ctx, doc.ID, result))

	docs, err = svc.ListForUser(ctx, "u")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].Summary().HasAnalysis)
	assert.GreaterOrEqual(t, docs[0].Result.Confidence, 0.0)
	assert.LessOrEqual(t, docs[0].Result.Confidence, 1.0)
}

func TestDashboard(t *testing.T) {
	t.Parallel()

	svc := newDocumentService()
	ctx := context.Background()

	for i := range 7 {
		doc, err := svc.Upload(ctx, "u", "doc.png", types.KindImage, pngPayload)
		require.NoError(t, err)
		if i%2 == 0 {
			err := svc.AttachResult(ctx, doc.ID, types.AnalysisResult{
				Kind: types.AnalysisHair, Summary: "s", Confidence: 0.5,
			})
			require.NoError(t, err)
		}
	}

	summary, err := svc.Dashboard(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 7, summary.TotalDocuments)
	assert.Equal(t, 4, summary.AnalyzedDocuments)
	assert.Len(t, summary.RecentAnalyses, 4)
	require.NotNil(t, summary.RecentAnalyses[0].Result)

	// Dashboard caps the recent list at five entries.
	for range 4 {
		doc, err := svc.Upload(ctx, "u", "more.png", types.KindImage, pngPayload)
		require.NoError(t, err)
		err = svc.AttachResult(ctx, doc.ID, types.AnalysisResult{Kind: types.AnalysisHair, Confidence: 0.9})
		require.NoError(t, err)
	}
	summary, err = svc.Dashboard(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, 11, summary.TotalDocuments)
	assert.Equal(t, 8, summary.AnalyzedDocuments)
	assert.Len(t, summary.RecentAnalyses, maxRecentAnalyses)
}
