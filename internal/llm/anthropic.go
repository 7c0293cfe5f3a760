package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"dirigent/internal/logging"
	"dirigent/internal/protocol"
)

// AnthropicGenerator produces utterances through the Anthropic Messages API.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *zap.Logger
}

// NewAnthropic creates a generator against the Anthropic API.
func NewAnthropic(apiKey, model string, maxTokens int) (*AnthropicGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	m := anthropic.Model(model)
	if model == "" {
		m = anthropic.ModelClaudeSonnet4_20250514
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &AnthropicGenerator{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     m,
		maxTokens: int64(maxTokens),
		log:       logging.L(logging.CategoryLLM),
	}, nil
}

// NextUtterance sends the rendered prompt and concatenates the text blocks
// of the response.
func (g *AnthropicGenerator) NextUtterance(ctx context.Context, p Prompt) (protocol.RawUtterance, error) {
	resp, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemInstruction},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.Render())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic message: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("anthropic: empty response")
	}

	g.log.Debug("utterance received",
		zap.String("provider", "anthropic"),
		zap.Int("len", b.Len()))
	return protocol.RawUtterance(b.String()), nil
}
