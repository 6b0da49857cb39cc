// Package tax_tools provides MCP tools for German tax workflows in Norman:
// browsing and submitting tax reports, previewing the Finanzamt PDF,
// validating tax numbers, and managing tax settings.
package tax_tools
