package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"recap/internal/config"
	"recap/internal/export"
	"recap/internal/pipeline"
)

func TestExportCommandWritesReport(t *testing.T) {
	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "standup.txt")
	summaryPath := filepath.Join(dir, "summary.txt")
	if err := os.WriteFile(transcriptPath, []byte("we shipped the release and fixed the login bug"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(summaryPath, []byte("release shipped\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "reports", "standup.md")

	root := NewRootCommand()
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetArgs([]string{"export", "--transcript", transcriptPath, "--summary", summaryPath, "--format", "markdown", "-o", out})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "## Summary\n\nrelease shipped") {
		t.Fatalf("unexpected report:\n%s", data)
	}
	if !strings.Contains(stdout.String(), out) {
		t.Fatalf("expected output path in %q", stdout.String())
	}
}

func TestExportCommandRequiresTranscript(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"export", "--format", "txt"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error without --transcript")
	}
}

func TestExportCommandRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	transcriptPath := filepath.Join(dir, "t.txt")
	if err := os.WriteFile(transcriptPath, []byte("text"), 0o600); err != nil {
		t.Fatal(err)
	}
	root := NewRootCommand()
	root.SetArgs([]string{"export", "--transcript", transcriptPath, "--format", "docx"})
	if err := root.Execute(); err == nil || !strings.Contains(err.Error(), "docx") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}

func TestDefaultOutputPath(t *testing.T) {
	if got := defaultOutputPath("/recordings/team sync.m4a", export.FormatPDF); got != "team sync_summary.pdf" {
		t.Fatalf("unexpected path %q", got)
	}
}

func TestLengthsOrDefault(t *testing.T) {
	cfg := config.Config{SummaryMinLength: 50, SummaryMaxLength: 150}
	if minLength, maxLength := lengthsOrDefault(0, 0, cfg); minLength != 50 || maxLength != 150 {
		t.Fatalf("got %d, %d", minLength, maxLength)
	}
	if minLength, maxLength := lengthsOrDefault(10, 0, cfg); minLength != 10 || maxLength != 150 {
		t.Fatalf("got %d, %d", minLength, maxLength)
	}
}

func TestProgressRendererDisabledIsNoop(t *testing.T) {
	r := newProgressRenderer(nil, false)
	r.Handle(pipeline.Event{State: pipeline.StateTranscribing, Percent: 40})
	r.Wait()
}

func TestProgressRendererTracksStage(t *testing.T) {
	var buf bytes.Buffer
	r := newProgressRenderer(&buf, true)
	r.Handle(pipeline.Event{State: pipeline.StateTranscribing, Percent: 40})
	if got := r.currentStage(); got != "transcribing" {
		t.Fatalf("unexpected stage %q", got)
	}
	r.Handle(pipeline.Event{State: pipeline.StateReady, Percent: 100})
	r.Wait()
}
