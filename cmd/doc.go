// Package cmd implements the command-line interface for norman-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server to provide Norman Finance tools for AI assistants
//   - version: Display version information
//
// The serve command is the default command when no subcommand is specified.
package cmd
