package analysis

import (
	"context"

	"github.com/healthtrack/apiserver/config"
	"google.golang.org/genai"
)

// GeminiGenerator calls the Gemini generateContent endpoint. A client is
// built per call because the API key is per-user, not per-process.
type GeminiGenerator struct {
	model   string
	baseURL string
}

// NewGeminiGenerator constructs a generator from config.
func NewGeminiGenerator(cfg config.AnalysisConfig) *GeminiGenerator {
	return &GeminiGenerator{
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
	}
}

// Generate sends the instruction plus the document payload as one multimodal
// request and returns the model's textual answer. The caller bounds the call
// through ctx; no retries happen here.
func (g *GeminiGenerator) Generate(ctx context.Context, apiKey, instruction string, payload []byte, mimeType string) (string, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return "", err
	}

	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromBytes(payload, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.2),
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
