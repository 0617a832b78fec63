// Package main is the entry point for the mediavault daemon.
package main

import (
	"os"

	"github.com/mediavault/mediavault/cmd/mediavault/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
