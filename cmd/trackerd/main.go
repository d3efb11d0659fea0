// Command trackerd runs the brokerage import service: the HTTP API, the
// queue worker, schema migrations and one-off imports and rollbacks.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists; real environment variables take precedence.
	if err := godotenv.Load(); err == nil {
		slog.Debug("loaded .env file")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
