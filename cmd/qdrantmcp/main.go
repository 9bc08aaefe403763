// Package main provides the entry point for the qdrantmcp CLI.
package main

import (
	"os"

	"github.com/mhalder/qdrant-mcp-server-sub001/cmd/qdrantmcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
