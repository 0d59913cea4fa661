package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"recap/internal/export"
)

type exportOptions struct {
	transcript string
	summary    string
	format     string
	out        string
}

func newExportCommand() *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a transcript and summary from text files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.transcript, "transcript", "", "transcript text file (required)")
	cmd.Flags().StringVar(&opts.summary, "summary", "", "summary text file")
	cmd.Flags().StringVar(&opts.format, "format", string(export.FormatTXT), "export format: txt, pdf or md")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "export file path (default: <transcript-name>_summary.<format>)")
	_ = cmd.MarkFlagRequired("transcript")
	return cmd
}

func runExport(cmd *cobra.Command, opts *exportOptions) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	transcript, err := os.ReadFile(opts.transcript)
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	var summary []byte
	if opts.summary != "" {
		if summary, err = os.ReadFile(opts.summary); err != nil {
			return fmt.Errorf("read summary: %w", err)
		}
	}

	out := opts.out
	if out == "" {
		out = defaultOutputPath(opts.transcript, format)
	}
	if err := writeExport(out, string(transcript), strings.TrimSpace(string(summary)), format); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", out)
	return nil
}
