// Package bootstrap wires configuration into the services shared by the HTTP
// server and the command line tool.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"recap/internal/audio"
	"recap/internal/config"
	"recap/internal/executor"
	"recap/internal/observability"
	"recap/internal/pipeline"
	"recap/internal/summarizer"
	"recap/internal/transcription"
	"recap/internal/upstream/openai"
)

type App struct {
	Config   config.Config
	Pipeline *pipeline.Service
	Upstream *openai.Client
	// CheckUpstream is true when a configured stage depends on the upstream API.
	CheckUpstream bool
}

// New builds the pipeline described by cfg. metrics may be nil.
func New(cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := newHTTPClient(cfg.RequestTimeout)
	upstreamClient := openai.New(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey, httpClient, openai.WithObserver(metrics.ObserveUpstream))
	exec := executor.New()

	engines, err := buildEngines(cfg, upstreamClient, exec, httpClient)
	if err != nil {
		return nil, err
	}
	transcriber := transcription.New(transcription.NewChain(logger, engines...), transcription.Options{
		WindowLength:     cfg.WindowLength,
		Attempts:         cfg.WindowAttempts,
		Backoff:          cfg.RetryBackoff,
		Timeout:          cfg.TranscriptionTimeout,
		Workers:          cfg.TranscriptionWorkers,
		SilenceThreshold: cfg.SilenceThreshold,
	}, logger)

	model, err := buildModel(cfg, upstreamClient)
	if err != nil {
		return nil, err
	}
	summaries := summarizer.New(model, summarizer.Options{
		Budget:         summarizer.Budget{MaxTokens: cfg.ChunkTokens, TokensPerWord: cfg.TokensPerWord},
		ChunkFloor:     cfg.ChunkSummaryFloor,
		MergeTolerance: cfg.MergeTolerance,
		Attempts:       cfg.SummaryAttempts,
		Backoff:        cfg.RetryBackoff,
		Timeout:        cfg.SummaryTimeout,
		Workers:        cfg.SummaryWorkers,
	}, logger)

	normalizer := audio.NewNormalizer(exec, cfg.FFmpegPath, cfg.DecodeTimeout, logger)

	var opts []pipeline.Option
	if metrics != nil {
		opts = append(opts, pipeline.WithMetrics(metrics))
	}
	return &App{
		Config:        cfg,
		Pipeline:      pipeline.New(normalizer, transcriber, summaries, cfg.WorkDir, logger, opts...),
		Upstream:      upstreamClient,
		CheckUpstream: usesUpstream(cfg) && cfg.UpstreamAPIKey != "",
	}, nil
}

// DecoderCheck reports whether the configured ffmpeg binary resolves.
func (a *App) DecoderCheck() error {
	return executor.LookPath(a.Config.FFmpegPath)
}

func buildEngines(cfg config.Config, upstream *openai.Client, exec executor.Executor, httpClient *http.Client) ([]transcription.NamedEngine, error) {
	engines := make([]transcription.NamedEngine, 0, len(cfg.TranscriptionEngines))
	for _, name := range cfg.TranscriptionEngines {
		var engine transcription.Engine
		switch name {
		case config.EngineUpstream:
			engine = transcription.NewUpstreamEngine(upstream, cfg.TranscriptionModel)
		case config.EngineOpenAI:
			engine = transcription.NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.TranscriptionModel, httpClient)
		case config.EngineWhisperCPP:
			engine = transcription.NewWhisperCPPEngine(exec, cfg.WhisperCPPPath, cfg.WhisperCPPModel)
		default:
			return nil, fmt.Errorf("unknown transcription engine %q", name)
		}
		engines = append(engines, transcription.NamedEngine{Name: name, Engine: engine})
	}
	return engines, nil
}

// buildModel returns a lazily constructed summarization model shared by all runs.
func buildModel(cfg config.Config, upstream *openai.Client) (summarizer.Model, error) {
	var build func(ctx context.Context) (summarizer.Model, error)
	switch cfg.SummaryEngine {
	case config.SummaryEngineChat:
		build = func(context.Context) (summarizer.Model, error) {
			return summarizer.NewChatModel(upstream, cfg.SummaryModel, cfg.SummaryPrompt, cfg.SummaryVocabulary), nil
		}
	case config.SummaryEngineGemini:
		build = func(ctx context.Context) (summarizer.Model, error) {
			return summarizer.NewGeminiModel(ctx, cfg.GeminiAPIKey, "", cfg.GeminiModel, cfg.SummaryPrompt, cfg.SummaryVocabulary)
		}
	case config.SummaryEngineExtractive:
		return summarizer.Extractive{}, nil
	default:
		return nil, fmt.Errorf("unknown summary engine %q", cfg.SummaryEngine)
	}
	return summarizer.NewLazy(build), nil
}

func usesUpstream(cfg config.Config) bool {
	return cfg.SummaryEngine == config.SummaryEngineChat ||
		slices.Contains(cfg.TranscriptionEngines, config.EngineUpstream)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}
