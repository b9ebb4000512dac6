// Package main is the entry point for the loopforge CLI.
//
// Usage:
//
//	loopforge [flags] <command> [args]
//
// Commands:
//
//	generate   - Assemble and master a batch of songs
//	catalog    - Inspect the sample library and key compatibility
//	serve      - Preview radio over HTTP MP3 and WebRTC
package main

import (
	"fmt"
	"os"

	"github.com/satindergrewal/loopforge/cmd/loopforge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
