// Package resources registers MCP resources that describe the
// authenticated Norman session and its active company.
package resources
