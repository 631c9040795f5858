/*
main.go - Application entry point

PURPOSE:
  Command-line front end for the ledger engine: serves the HTTP API and
  runs maintenance commands against a ledger file.

COMMANDS:
  serve     Start the HTTP API with graceful shutdown
  migrate   Create or upgrade the ledger schema
  recalc    Rebuild running balances for every account
  seed      Load a demo scenario into an empty ledger

CONFIGURATION (lowest to highest precedence):
  1. Defaults (config.New)
  2. Config file (--config ledger.yaml)
  3. .env file and LEDGER_* environment variables
  4. Command-line flags

EXAMPLES:
  # Serve a ledger file on port 3000
  ledger serve --db ./books.ledger --port 3000

  # Inspect a ledger without risking writes
  ledger serve --db ./books.ledger --read-only

  # Repair running balances after an external edit
  ledger recalc --db ./books.ledger

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings and environment binding
  - store/sqlite/sqlite.go: Ledger file access
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
