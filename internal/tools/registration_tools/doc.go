// Package registration_tools provides MCP tools for the German
// self-employment tax registration (Fragebogen zur steuerlichen Erfassung):
// starting a registration, previewing the generated form, and submitting it
// to the Finanzamt.
package registration_tools
