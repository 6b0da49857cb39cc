// Package document_tools provides MCP tools for Norman attachments:
// listing receipts and other documents, uploading new files, and linking
// them to transactions.
package document_tools
