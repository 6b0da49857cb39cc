package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the norman-mcp application
var rootCmd = &cobra.Command{
	Use:   "norman-mcp",
	Short: "MCP server for the Norman Finance accounting API",
	Long: `norman-mcp exposes the Norman Finance accounting and tax API as MCP
(Model Context Protocol) tools for AI assistants.

It can run as:
  - A stdio MCP server authenticated with NORMAN_EMAIL/NORMAN_PASSWORD (default)
  - A streamable HTTP MCP server with an embedded OAuth 2.1 authorization
    server that delegates credential checks to Norman`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "norman-mcp version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
