// Package transaction_tools provides MCP tools for Norman accounting
// transactions: searching, creating, updating, and AI-assisted
// categorization.
package transaction_tools
