package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

const (
	EngineUpstream   = "upstream"
	EngineOpenAI     = "openai"
	EngineWhisperCPP = "whispercpp"

	SummaryEngineChat       = "chat"
	SummaryEngineGemini     = "gemini"
	SummaryEngineExtractive = "extractive"
)

// godotenv never overrides a variable that is already set, so earlier files win.
var dotEnvFiles = []string{".env.local", ".env"}

type Config struct {
	ListenAddr     string
	LogLevel       string
	WorkDir        string
	StaleRunAge    time.Duration
	MaxUploadBytes int64

	FFmpegPath    string
	DecodeTimeout time.Duration

	TranscriptionEngines []string
	UpstreamBaseURL      string
	UpstreamAPIKey       string
	RequestTimeout       time.Duration
	TranscriptionModel   string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	WhisperCPPPath       string
	WhisperCPPModel      string

	WindowLength         time.Duration
	WindowAttempts       int
	RetryBackoff         time.Duration
	TranscriptionTimeout time.Duration
	TranscriptionWorkers int
	SilenceThreshold     float64

	SummaryEngine     string
	SummaryModel      string
	GeminiAPIKey      string
	GeminiModel       string
	SummaryMinLength  int
	SummaryMaxLength  int
	ChunkTokens       int
	TokensPerWord     float64
	ChunkSummaryFloor int
	MergeTolerance    float64
	SummaryAttempts   int
	SummaryTimeout    time.Duration
	SummaryWorkers    int
	SummaryPrompt     string
	SummaryVocabulary string
}

type envConfig struct {
	ListenAddr     string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	WorkDir        string `env:"WORK_DIR"`
	StaleRunHours  int    `env:"STALE_RUN_HOURS" envDefault:"24"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"209715200"`

	FFmpegPath           string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	DecodeTimeoutSeconds int    `env:"DECODE_TIMEOUT_SECONDS" envDefault:"120"`

	TranscriptionEngines  []string `env:"TRANSCRIPTION_ENGINES" envSeparator:"," envDefault:"upstream"`
	UpstreamBaseURL       string   `env:"UPSTREAM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	UpstreamAPIKey        string   `env:"UPSTREAM_API_KEY"`
	RequestTimeoutSeconds int      `env:"REQUEST_TIMEOUT_SECONDS" envDefault:"90"`
	TranscriptionModel    string   `env:"TRANSCRIPTION_MODEL" envDefault:"whisper-1"`
	OpenAIAPIKey          string   `env:"OPENAI_API_KEY"`
	OpenAIBaseURL         string   `env:"OPENAI_BASE_URL"`
	WhisperCPPPath        string   `env:"WHISPER_CPP_PATH" envDefault:"whisper-cli"`
	WhisperCPPModel       string   `env:"WHISPER_CPP_MODEL"`

	WindowSeconds               int     `env:"WINDOW_SECONDS" envDefault:"300"`
	WindowAttempts              int     `env:"WINDOW_ATTEMPTS" envDefault:"2"`
	RetryBackoffMS              int     `env:"RETRY_BACKOFF_MS" envDefault:"500"`
	TranscriptionTimeoutSeconds int     `env:"TRANSCRIPTION_TIMEOUT_SECONDS" envDefault:"60"`
	TranscriptionWorkers        int     `env:"TRANSCRIPTION_WORKERS" envDefault:"1"`
	SilenceThreshold            float64 `env:"SILENCE_THRESHOLD" envDefault:"0.002"`

	SummaryEngine         string  `env:"SUMMARY_ENGINE" envDefault:"chat"`
	SummaryModel          string  `env:"SUMMARY_MODEL" envDefault:"gpt-4o-mini"`
	GeminiAPIKey          string  `env:"GEMINI_API_KEY"`
	GeminiModel           string  `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	SummaryMinLength      int     `env:"SUMMARY_MIN_LENGTH" envDefault:"50"`
	SummaryMaxLength      int     `env:"SUMMARY_MAX_LENGTH" envDefault:"150"`
	ChunkTokens           int     `env:"CHUNK_TOKENS" envDefault:"1024"`
	TokensPerWord         float64 `env:"TOKENS_PER_WORD" envDefault:"1.3"`
	ChunkSummaryFloor     int     `env:"CHUNK_SUMMARY_FLOOR" envDefault:"30"`
	MergeTolerance        float64 `env:"MERGE_TOLERANCE" envDefault:"0.1"`
	SummaryAttempts       int     `env:"SUMMARY_ATTEMPTS" envDefault:"2"`
	SummaryTimeoutSeconds int     `env:"SUMMARY_TIMEOUT_SECONDS" envDefault:"60"`
	SummaryWorkers        int     `env:"SUMMARY_WORKERS" envDefault:"1"`
	SummaryPrompt         string  `env:"SUMMARY_SYSTEM_PROMPT"`
	SummaryVocabulary     string  `env:"SUMMARY_VOCABULARY"`
}

// Load reads optional .env files and then the process environment.
// Variables already set in the environment are never overridden by .env files.
func Load() (Config, error) {
	if err := loadDotEnv(dotEnvFiles); err != nil {
		return Config{}, err
	}

	var raw envConfig
	if err := cenv.Parse(&raw); err != nil {
		return Config{}, err
	}

	workDir := strings.TrimSpace(raw.WorkDir)
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "recap")
	}

	cfg := Config{
		ListenAddr:     strings.TrimSpace(raw.ListenAddr),
		LogLevel:       strings.ToLower(strings.TrimSpace(raw.LogLevel)),
		WorkDir:        workDir,
		StaleRunAge:    time.Duration(raw.StaleRunHours) * time.Hour,
		MaxUploadBytes: raw.MaxUploadBytes,

		FFmpegPath:    strings.TrimSpace(raw.FFmpegPath),
		DecodeTimeout: time.Duration(raw.DecodeTimeoutSeconds) * time.Second,

		TranscriptionEngines: normalizeList(raw.TranscriptionEngines),
		UpstreamBaseURL:      strings.TrimRight(strings.TrimSpace(raw.UpstreamBaseURL), "/"),
		UpstreamAPIKey:       strings.TrimSpace(raw.UpstreamAPIKey),
		RequestTimeout:       time.Duration(raw.RequestTimeoutSeconds) * time.Second,
		TranscriptionModel:   strings.TrimSpace(raw.TranscriptionModel),
		OpenAIAPIKey:         strings.TrimSpace(raw.OpenAIAPIKey),
		OpenAIBaseURL:        strings.TrimRight(strings.TrimSpace(raw.OpenAIBaseURL), "/"),
		WhisperCPPPath:       strings.TrimSpace(raw.WhisperCPPPath),
		WhisperCPPModel:      strings.TrimSpace(raw.WhisperCPPModel),

		WindowLength:         time.Duration(raw.WindowSeconds) * time.Second,
		WindowAttempts:       raw.WindowAttempts,
		RetryBackoff:         time.Duration(raw.RetryBackoffMS) * time.Millisecond,
		TranscriptionTimeout: time.Duration(raw.TranscriptionTimeoutSeconds) * time.Second,
		TranscriptionWorkers: raw.TranscriptionWorkers,
		SilenceThreshold:     raw.SilenceThreshold,

		SummaryEngine:     strings.ToLower(strings.TrimSpace(raw.SummaryEngine)),
		SummaryModel:      strings.TrimSpace(raw.SummaryModel),
		GeminiAPIKey:      strings.TrimSpace(raw.GeminiAPIKey),
		GeminiModel:       strings.TrimSpace(raw.GeminiModel),
		SummaryMinLength:  raw.SummaryMinLength,
		SummaryMaxLength:  raw.SummaryMaxLength,
		ChunkTokens:       raw.ChunkTokens,
		TokensPerWord:     raw.TokensPerWord,
		ChunkSummaryFloor: raw.ChunkSummaryFloor,
		MergeTolerance:    raw.MergeTolerance,
		SummaryAttempts:   raw.SummaryAttempts,
		SummaryTimeout:    time.Duration(raw.SummaryTimeoutSeconds) * time.Second,
		SummaryWorkers:    raw.SummaryWorkers,
		SummaryPrompt:     strings.TrimSpace(raw.SummaryPrompt),
		SummaryVocabulary: strings.TrimSpace(raw.SummaryVocabulary),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.StaleRunAge <= 0 {
		return errors.New("STALE_RUN_HOURS must be > 0")
	}
	if c.FFmpegPath == "" {
		return errors.New("FFMPEG_PATH must not be empty")
	}
	if c.DecodeTimeout <= 0 {
		return errors.New("DECODE_TIMEOUT_SECONDS must be > 0")
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	return c.validateSummary()
}

func (c Config) validateTranscription() error {
	if len(c.TranscriptionEngines) == 0 {
		return errors.New("TRANSCRIPTION_ENGINES must not be empty")
	}
	for _, engine := range c.TranscriptionEngines {
		switch engine {
		case EngineUpstream:
			if c.UpstreamBaseURL == "" {
				return errors.New("UPSTREAM_BASE_URL must not be empty")
			}
			if c.TranscriptionModel == "" {
				return errors.New("TRANSCRIPTION_MODEL must not be empty")
			}
		case EngineOpenAI:
			if c.OpenAIAPIKey == "" {
				return errors.New("OPENAI_API_KEY must not be empty when the openai engine is enabled")
			}
		case EngineWhisperCPP:
			if c.WhisperCPPPath == "" || c.WhisperCPPModel == "" {
				return errors.New("WHISPER_CPP_PATH and WHISPER_CPP_MODEL must not be empty when the whispercpp engine is enabled")
			}
		default:
			return fmt.Errorf("TRANSCRIPTION_ENGINES: unknown engine %q", engine)
		}
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT_SECONDS must be > 0")
	}
	if c.WindowLength <= 0 {
		return errors.New("WINDOW_SECONDS must be > 0")
	}
	if c.WindowAttempts <= 0 {
		return errors.New("WINDOW_ATTEMPTS must be > 0")
	}
	if c.RetryBackoff < 0 {
		return errors.New("RETRY_BACKOFF_MS must be >= 0")
	}
	if c.TranscriptionTimeout <= 0 {
		return errors.New("TRANSCRIPTION_TIMEOUT_SECONDS must be > 0")
	}
	if c.TranscriptionWorkers <= 0 {
		return errors.New("TRANSCRIPTION_WORKERS must be > 0")
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold >= 1 {
		return errors.New("SILENCE_THRESHOLD must be in [0, 1)")
	}
	return nil
}

func (c Config) validateSummary() error {
	switch c.SummaryEngine {
	case SummaryEngineChat:
		if c.UpstreamBaseURL == "" {
			return errors.New("UPSTREAM_BASE_URL must not be empty")
		}
		if c.SummaryModel == "" {
			return errors.New("SUMMARY_MODEL must not be empty")
		}
	case SummaryEngineGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY must not be empty when SUMMARY_ENGINE=gemini")
		}
		if c.GeminiModel == "" {
			return errors.New("GEMINI_MODEL must not be empty")
		}
	case SummaryEngineExtractive:
	default:
		return fmt.Errorf("SUMMARY_ENGINE: unknown engine %q", c.SummaryEngine)
	}
	if c.SummaryMinLength <= 0 {
		return errors.New("SUMMARY_MIN_LENGTH must be > 0")
	}
	if c.SummaryMaxLength < c.SummaryMinLength {
		return errors.New("SUMMARY_MAX_LENGTH must be >= SUMMARY_MIN_LENGTH")
	}
	if c.ChunkTokens <= 0 {
		return errors.New("CHUNK_TOKENS must be > 0")
	}
	if c.TokensPerWord <= 0 {
		return errors.New("TOKENS_PER_WORD must be > 0")
	}
	if c.ChunkSummaryFloor <= 0 {
		return errors.New("CHUNK_SUMMARY_FLOOR must be > 0")
	}
	if c.MergeTolerance < 0 {
		return errors.New("MERGE_TOLERANCE must be >= 0")
	}
	if c.SummaryAttempts <= 0 {
		return errors.New("SUMMARY_ATTEMPTS must be > 0")
	}
	if c.SummaryTimeout <= 0 {
		return errors.New("SUMMARY_TIMEOUT_SECONDS must be > 0")
	}
	if c.SummaryWorkers <= 0 {
		return errors.New("SUMMARY_WORKERS must be > 0")
	}
	return nil
}

func loadDotEnv(paths []string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

func normalizeList(values []string) []string {
	trimmed := lo.Map(values, func(v string, _ int) string {
		return strings.ToLower(strings.TrimSpace(v))
	})
	return lo.Uniq(lo.Compact(trimmed))
}
