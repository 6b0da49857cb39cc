// Package common provides shared helpers for the Norman tool families:
// request argument extraction, JSON result rendering, and instrumented
// handler wrappers that record metrics and audit events per invocation.
package common
