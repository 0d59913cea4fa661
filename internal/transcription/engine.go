package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// WindowAudio is a window cut into its own canonical WAV file.
type WindowAudio struct {
	Window
	Path string
	Peak float64
}

// Engine turns one window of canonical audio into text.
type Engine interface {
	TranscribeWindow(ctx context.Context, w WindowAudio) (string, error)
}

type EngineFunc func(ctx context.Context, w WindowAudio) (string, error)

func (f EngineFunc) TranscribeWindow(ctx context.Context, w WindowAudio) (string, error) {
	return f(ctx, w)
}

type NamedEngine struct {
	Name   string
	Engine Engine
}

// Chain tries engines in order and returns the first success, typically a local
// engine backed by a hosted API.
type Chain struct {
	engines []NamedEngine
	logger  *slog.Logger
}

func NewChain(logger *slog.Logger, engines ...NamedEngine) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{engines: engines, logger: logger}
}

func (c *Chain) TranscribeWindow(ctx context.Context, w WindowAudio) (string, error) {
	if len(c.engines) == 0 {
		return "", errors.New("no transcription engine configured")
	}
	var errs []error
	for _, e := range c.engines {
		text, err := e.Engine.TranscribeWindow(ctx, w)
		if err == nil {
			return text, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("engine_fallback", "engine", e.Name, "window", w.Index, "error", err)
	}
	return "", errors.Join(errs...)
}
