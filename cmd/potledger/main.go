package main

import (
	"log/slog"
	"os"

	"github.com/anhbaysgalan1/potledger/internal/server"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, using environment variables")
	}

	// Create and start ledger server
	ledgerServer, err := server.NewLedgerServer()
	if err != nil {
		slog.Error("Failed to create ledger server", "error", err)
		os.Exit(1)
	}

	// Start server (blocks until shutdown)
	if err := ledgerServer.Start(); err != nil {
		slog.Error("Failed to start ledger server", "error", err)
		os.Exit(1)
	}
}
