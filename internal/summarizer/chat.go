package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"recap/internal/upstream/openai"
)

const DefaultSystemPrompt = `You summarize transcripts of recorded speech such as meetings, lectures and interviews.

Your job:
- Capture the main points, decisions and conclusions in the order they were made.
- Write plain prose in the language of the transcript.
- Keep names and technical terms exactly as they appear in the transcript or vocabulary.
- Ignore filler words, false starts and transcription markers such as [unintelligible].

Output rules:
- Return ONLY the summary text, nothing else.
- Do not add facts that are not in the transcript.
- If there is nothing to summarize, return exactly: EMPTY`

var errEmptySummary = errors.New("model returned an empty summary")

type ChatClient interface {
	ChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatModel summarizes through an OpenAI-compatible chat completion endpoint.
type ChatModel struct {
	client       ChatClient
	model        string
	systemPrompt string
}

// NewChatModel returns a chat-backed Model. An empty systemPrompt selects
// DefaultSystemPrompt. vocabulary is a comma, semicolon or newline separated
// list of terms whose spelling the summary must keep.
func NewChatModel(client ChatClient, model, systemPrompt, vocabulary string) *ChatModel {
	return &ChatModel{
		client:       client,
		model:        strings.TrimSpace(model),
		systemPrompt: buildSystemPrompt(systemPrompt, vocabulary),
	}
}

func (m *ChatModel) Summarize(ctx context.Context, text string, minWords, maxWords int) (string, error) {
	resp, err := m.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       m.model,
		Temperature: 0.0,
		MaxTokens:   maxWords * 3,
		Messages: []openai.ChatMessage{
			{Role: "system", Content: m.systemPrompt},
			{Role: "user", Content: userPrompt(text, minWords, maxWords)},
		},
	})
	if err != nil {
		return "", err
	}

	summary := sanitizeSummary(resp.Content)
	if summary == "" {
		return "", errEmptySummary
	}
	return summary, nil
}

func buildSystemPrompt(custom, vocabulary string) string {
	prompt := strings.TrimSpace(custom)
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	if terms := vocabularyTerms(vocabulary); len(terms) > 0 {
		prompt += "\n\nUse these spellings exactly when the terms appear:\n" + strings.Join(terms, ", ")
	}
	return prompt
}

func userPrompt(text string, minWords, maxWords int) string {
	return fmt.Sprintf(`Instructions: Summarize TRANSCRIPT in %d to %d words. Return only the summary without surrounding quotes.

TRANSCRIPT: %q`, minWords, maxWords, text)
}

func sanitizeSummary(value string) string {
	result := strings.TrimSpace(value)
	if result == "" {
		return ""
	}
	if strings.HasPrefix(result, "\"") && strings.HasSuffix(result, "\"") && len(result) > 1 {
		result = strings.TrimSpace(strings.TrimPrefix(strings.TrimSuffix(result, "\""), "\""))
	}
	if result == "EMPTY" {
		return ""
	}
	return result
}

// vocabularyTerms splits raw on commas, semicolons and newlines and drops
// case-insensitive duplicates, keeping the first spelling.
func vocabularyTerms(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ',' || r == ';'
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		term := strings.TrimSpace(field)
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}
