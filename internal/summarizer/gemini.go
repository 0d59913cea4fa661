package summarizer

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type GeminiModel struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

// NewGeminiModel connects to the Gemini API. baseURL is optional and only
// needed to point at a proxy or test server.
func NewGeminiModel(ctx context.Context, apiKey, baseURL, model, systemPrompt, vocabulary string) (*GeminiModel, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiModel{
		client:       client,
		model:        strings.TrimSpace(model),
		systemPrompt: buildSystemPrompt(systemPrompt, vocabulary),
	}, nil
}

func (m *GeminiModel) Summarize(ctx context.Context, text string, minWords, maxWords int) (string, error) {
	temperature := float32(0)
	result, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(userPrompt(text, minWords, maxWords)), &genai.GenerateContentConfig{
		Temperature: &temperature,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(m.systemPrompt)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", errEmptySummary
	}
	var b strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	summary := sanitizeSummary(b.String())
	if summary == "" {
		return "", errEmptySummary
	}
	return summary, nil
}
