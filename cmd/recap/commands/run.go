package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"recap/internal/audio"
	"recap/internal/bootstrap"
	"recap/internal/config"
	"recap/internal/export"
	"recap/internal/pipeline"
)

type runOptions struct {
	minLength int
	maxLength int
	format    string
	out       string
	quiet     bool
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run <audio-file>",
		Short: "Transcribe and summarize an audio file",
		Long: `Run the full pipeline on a local recording.

The summary is printed to stdout and the report is written to --out
(default: <audio-name>_summary.<format> in the current directory). If
summarization fails the transcript is still exported.

Supported audio: wav, mp3, m4a, flac, ogg.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, args[0], opts)
		},
	}
	cmd.Flags().IntVar(&opts.minLength, "min", 0, "minimum summary length in words (default from SUMMARY_MIN_LENGTH)")
	cmd.Flags().IntVar(&opts.maxLength, "max", 0, "maximum summary length in words (default from SUMMARY_MAX_LENGTH)")
	cmd.Flags().StringVar(&opts.format, "format", string(export.FormatTXT), "export format: txt, pdf or md")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "export file path")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func runPipeline(cmd *cobra.Command, path string, opts *runOptions) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := audio.ValidateSource(path, cfg.MaxUploadBytes); err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr())
	if _, err := pipeline.SweepStaleRuns(cfg.WorkDir, cfg.StaleRunAge); err != nil {
		logger.Warn("stale run sweep failed", "dir", cfg.WorkDir, "error", err)
	}
	app, err := bootstrap.New(cfg, logger, nil)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	minLength, maxLength := lengthsOrDefault(opts.minLength, opts.maxLength, cfg)
	progress := newProgressRenderer(os.Stderr, !opts.quiet && isTTY(os.Stderr))
	result, runErr := app.Pipeline.Run(ctx, pipeline.Input{
		Audio:     f,
		Extension: filepath.Ext(path),
		MinLength: minLength,
		MaxLength: maxLength,
	}, progress.Handle)
	progress.Wait()

	if strings.TrimSpace(result.Transcript.Text) != "" {
		out := opts.out
		if out == "" {
			out = defaultOutputPath(path, format)
		}
		if err := writeExport(out, result.Transcript.Text, result.Summary.Text, format); err != nil {
			return errors.Join(runErr, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", out)
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return errors.New("interrupted")
		}
		return runErr
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Summary.Text)
	return nil
}

func lengthsOrDefault(minLength, maxLength int, cfg config.Config) (int, int) {
	if minLength == 0 {
		minLength = cfg.SummaryMinLength
	}
	if maxLength == 0 {
		maxLength = cfg.SummaryMaxLength
	}
	return minLength, maxLength
}

func defaultOutputPath(audioPath string, format export.Format) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return export.FileName(base+"_summary", format)
}

func writeExport(path, transcript, summary string, format export.Format) error {
	data, err := export.Export(transcript, summary, format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}
