// Package main provides the entry point for the Mosaic CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/mosaic-ai/mosaic/cmd/mosaic/commands"
)

func main() {
	// Workspace .env is optional; absence is not an error.
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
