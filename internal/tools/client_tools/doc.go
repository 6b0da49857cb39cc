// Package client_tools provides MCP tools for managing Norman clients
// (customers): listing, creating, updating, and deleting client records.
package client_tools
