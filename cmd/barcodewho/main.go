// Package main is the entry point for the barcodewho CLI.
//
// Usage:
//
//	barcodewho [flags] <command> [args]
//
// Commands:
//
//	ingest     - Add new recordings from the replay folder to the database
//	classify   - Guess who plays behind each account of a recording
//	evaluate   - Measure classifier accuracy by leave-one-out
//	relevance  - Show how well each feature separates players
//	reset      - Delete the database
//	init       - Write the default configuration file
package main

import (
	"fmt"
	"os"

	"github.com/tommwa/sc2barcodewho/cmd/barcodewho/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
