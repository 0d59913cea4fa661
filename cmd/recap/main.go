// Package main provides the recap CLI.
//
// Usage:
//
//	recap run <audio-file> [--min N] [--max N] [--format txt|pdf|md] [--out path]
//	recap export --transcript file [--summary file] [--format txt|pdf|md] [--out path]
//
// Configuration is read from the environment and optional .env files, the
// same way as the recap-api server.
package main

import (
	"fmt"
	"os"

	"recap/cmd/recap/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
