package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"dirigent/internal/logging"
	"dirigent/internal/protocol"
)

const geminiDefaultModel = "gemini-2.0-flash"

// GeminiGenerator produces utterances through the Google GenAI API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewGemini creates a generator against the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init: %w", err)
	}
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiGenerator{
		client: client,
		model:  model,
		log:    logging.L(logging.CategoryLLM),
	}, nil
}

// NextUtterance sends the rendered prompt and returns the raw response text.
func (g *GeminiGenerator) NextUtterance(ctx context.Context, p Prompt) (protocol.RawUtterance, error) {
	text := systemInstruction + "\n\n" + p.Render()

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(text), nil)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty response")
	}

	out := resp.Candidates[0].Content.Parts[0].Text
	g.log.Debug("utterance received",
		zap.String("provider", "gemini"),
		zap.Int("len", len(out)))
	return protocol.RawUtterance(out), nil
}
