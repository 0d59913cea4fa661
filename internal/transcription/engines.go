package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"recap/internal/executor"
)

// UpstreamClient is the OpenAI-compatible HTTP transcription call.
type UpstreamClient interface {
	Transcribe(ctx context.Context, file io.Reader, fileName, model string) (string, error)
}

// UpstreamEngine posts each window to an OpenAI-compatible /audio/transcriptions endpoint.
type UpstreamEngine struct {
	client UpstreamClient
	model  string
}

func NewUpstreamEngine(client UpstreamClient, model string) *UpstreamEngine {
	return &UpstreamEngine{client: client, model: strings.TrimSpace(model)}
}

func (e *UpstreamEngine) TranscribeWindow(ctx context.Context, w WindowAudio) (string, error) {
	f, err := os.Open(w.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	text, err := e.client.Transcribe(ctx, f, filepath.Base(w.Path), e.model)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// OpenAIEngine uses the go-openai SDK against the OpenAI audio API.
type OpenAIEngine struct {
	client *goopenai.Client
	model  string
}

func NewOpenAIEngine(apiKey, baseURL, model string, httpClient *http.Client) *OpenAIEngine {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	if model == "" {
		model = goopenai.Whisper1
	}
	return &OpenAIEngine{client: goopenai.NewClientWithConfig(cfg), model: model}
}

func (e *OpenAIEngine) TranscribeWindow(ctx context.Context, w WindowAudio) (string, error) {
	resp, err := e.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    e.model,
		FilePath: w.Path,
		Format:   goopenai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// WhisperCPPEngine runs a local whisper.cpp binary on each window.
type WhisperCPPEngine struct {
	exec      executor.Executor
	binary    string
	modelPath string
}

func NewWhisperCPPEngine(exec executor.Executor, binary, modelPath string) *WhisperCPPEngine {
	return &WhisperCPPEngine{exec: exec, binary: binary, modelPath: modelPath}
}

func (e *WhisperCPPEngine) TranscribeWindow(ctx context.Context, w WindowAudio) (string, error) {
	// whisper.cpp appends .txt to the output prefix.
	prefix := strings.TrimSuffix(w.Path, filepath.Ext(w.Path))
	args := []string{
		"-m", e.modelPath,
		"-f", w.Path,
		"-otxt",
		"-nt",
		"-np",
		"-of", prefix,
	}
	if _, err := e.exec.Execute(ctx, e.binary, args...); err != nil {
		return "", fmt.Errorf("whisper.cpp: %w", err)
	}

	txtPath := prefix + ".txt"
	data, err := os.ReadFile(txtPath)
	if err != nil {
		return "", fmt.Errorf("whisper.cpp output: %w", err)
	}
	if err := os.Remove(txtPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	return strings.Join(strings.Fields(string(data)), " "), nil
}
