// Package main is the brokerdial CLI.
//
// Usage:
//
//	brokerdial [flags] <command> [subcommand] [args]
//
// Commands:
//
//	serve       - Serve the call manager to a UI over HTTP and websocket
//	call        - Place a call from the terminal
//	leads       - List, show and seed CRM leads
//	tasks       - List and complete follow-up tasks
//	persona     - Show and edit the agent persona
//	recordings  - List committed call recordings
//	config      - Manage contexts
//	version     - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/eburon/brokerdial/cmd/brokerdial/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
