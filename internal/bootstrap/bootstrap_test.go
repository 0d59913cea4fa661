package bootstrap

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"recap/internal/config"
	"recap/internal/observability"
	"recap/internal/summarizer"
	"recap/internal/transcription"
	"recap/internal/upstream/openai"
)

func baseConfig(upstreamURL string) config.Config {
	return config.Config{
		ListenAddr:           ":0",
		StaleRunAge:          time.Hour,
		MaxUploadBytes:       1 << 20,
		FFmpegPath:           "ffmpeg",
		DecodeTimeout:        time.Second,
		TranscriptionEngines: []string{config.EngineUpstream},
		UpstreamBaseURL:      upstreamURL,
		UpstreamAPIKey:       "key",
		RequestTimeout:       5 * time.Second,
		TranscriptionModel:   "whisper-1",
		WindowLength:         5 * time.Minute,
		WindowAttempts:       1,
		TranscriptionTimeout: time.Second,
		TranscriptionWorkers: 1,
		SummaryEngine:        config.SummaryEngineExtractive,
		SummaryModel:         "gpt-4o-mini",
		SummaryMinLength:     1,
		SummaryMaxLength:     20,
		ChunkTokens:          1024,
		TokensPerWord:        1.3,
		ChunkSummaryFloor:    5,
		SummaryAttempts:      1,
		SummaryTimeout:       5 * time.Second,
		SummaryWorkers:       1,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWiresChatModelThroughUpstream(t *testing.T) {
	var gotModel, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		var req openai.ChatCompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"Team agreed to ship on Friday."}}]}`)
	}))
	defer srv.Close()

	cfg := baseConfig(srv.URL)
	cfg.SummaryEngine = config.SummaryEngineChat
	cfg.WorkDir = t.TempDir()
	app, err := New(cfg, testLogger(), observability.NewMetrics())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !app.CheckUpstream {
		t.Fatal("chat summaries depend on the upstream API")
	}

	summary, err := app.Pipeline.Summarize(context.Background(), "We talked for an hour. Then we agreed to ship on Friday.", 1, 20)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.Text != "Team agreed to ship on Friday." {
		t.Fatalf("unexpected summary %q", summary.Text)
	}
	if gotModel != "gpt-4o-mini" || gotAuth != "Bearer key" {
		t.Fatalf("unexpected upstream request model=%q auth=%q", gotModel, gotAuth)
	}
}

func TestNewExtractiveNeedsNoUpstream(t *testing.T) {
	cfg := baseConfig("http://127.0.0.1:1")
	cfg.TranscriptionEngines = []string{config.EngineWhisperCPP}
	cfg.WhisperCPPPath = "whisper-cli"
	cfg.WhisperCPPModel = "ggml-base.bin"
	app, err := New(cfg, testLogger(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if app.CheckUpstream {
		t.Fatal("no stage uses the upstream API")
	}
	summary, err := app.Pipeline.Summarize(context.Background(), "First point. Second point. Third point. Fourth point.", 1, 20)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary.Text != "First point. Second point. Third point." {
		t.Fatalf("unexpected summary %q", summary.Text)
	}
}

func TestBuildEnginesKeepsOrder(t *testing.T) {
	cfg := baseConfig("http://example.com")
	cfg.TranscriptionEngines = []string{config.EngineWhisperCPP, config.EngineOpenAI, config.EngineUpstream}
	engines, err := buildEngines(cfg, openai.New(cfg.UpstreamBaseURL, "", nil), nil, nil)
	if err != nil {
		t.Fatalf("buildEngines() error = %v", err)
	}
	var names []string
	for _, e := range engines {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != "whispercpp,openai,upstream" {
		t.Fatalf("unexpected engine order %s", got)
	}

	cfg.TranscriptionEngines = []string{"vosk"}
	if _, err := buildEngines(cfg, nil, nil, nil); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}

func TestBuildEnginesPassesTranscriptionModelToOpenAI(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotModel = r.FormValue("model")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"hello"}`)
	}))
	defer srv.Close()

	cfg := baseConfig("http://example.com")
	cfg.TranscriptionEngines = []string{config.EngineOpenAI}
	cfg.TranscriptionModel = "whisper-large-v3"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = srv.URL + "/v1"
	engines, err := buildEngines(cfg, nil, nil, srv.Client())
	if err != nil {
		t.Fatalf("buildEngines() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "window-000.wav")
	if err := os.WriteFile(path, []byte("RIFF-audio"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := engines[0].Engine.TranscribeWindow(context.Background(), transcription.WindowAudio{Path: path}); err != nil {
		t.Fatalf("TranscribeWindow() error = %v", err)
	}
	if gotModel != "whisper-large-v3" {
		t.Fatalf("model sent = %q, want whisper-large-v3", gotModel)
	}
}

func TestBuildModel(t *testing.T) {
	cfg := baseConfig("http://example.com")
	model, err := buildModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := model.(summarizer.Extractive); !ok {
		t.Fatalf("expected extractive model, got %T", model)
	}

	cfg.SummaryEngine = config.SummaryEngineGemini
	model, err = buildModel(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := model.(*summarizer.Lazy); !ok {
		t.Fatalf("expected lazy model, got %T", model)
	}

	cfg.SummaryEngine = "bart"
	if _, err := buildModel(cfg, nil); err == nil {
		t.Fatal("expected error for unknown summary engine")
	}
}
