// Package invoice_tools provides MCP tools for Norman invoices: creating
// one-off and recurring invoices, sending them by email, linking payments,
// and exporting e-invoice XML.
package invoice_tools
