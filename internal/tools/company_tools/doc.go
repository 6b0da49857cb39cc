// Package company_tools provides MCP tools for the Norman company profile,
// balance, and tax statistics.
package company_tools
