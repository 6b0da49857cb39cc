// Package norman implements the HTTP client for the Norman Finance API.
//
// The package has two entry points:
//
//   - TokenClient authenticates against Norman's token endpoints. Exchange
//     turns account credentials into a JWT access/refresh pair, Refresh turns
//     a refresh token into a fresh access token. Transient upstream failures
//     are retried with bounded exponential backoff; credential rejections
//     are never retried.
//
//   - Client performs authenticated REST requests. Callers supply the bearer
//     token per request so a single Client can serve many sessions.
//
// Neither type caches credentials or tokens; token lifecycle management
// lives with the caller.
package norman
