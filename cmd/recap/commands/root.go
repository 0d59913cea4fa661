package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

// NewRootCommand returns the recap command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "recap",
		Short: "Transcribe and summarize recordings",
		Long: `recap turns a recording into a transcript and a summary.

Audio is normalized with ffmpeg, transcribed window by window and then
summarized by the configured engine. Results can be exported as plain
text, Markdown or PDF.

Examples:
  # Summarize a meeting and save a PDF report
  recap run standup.m4a --format pdf --out standup.pdf

  # Re-export an existing transcript
  recap export --transcript standup.txt --format md`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(newRunCommand())
	root.AddCommand(newExportCommand())
	return root
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// newLogger keeps the CLI quiet unless --verbose is set, so log lines do not
// tear through the progress bar.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
