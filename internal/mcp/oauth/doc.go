// Package oauth implements the embedded OAuth 2.1 authorization server for
// the norman-mcp HTTP transport.
//
// The server acts as an authorization-server facade in front of Norman's
// password login: MCP clients run a standard authorization-code + PKCE flow
// against this package, the user enters their Norman credentials on a login
// form, and the facade delegates the actual credential check to Norman's
// token endpoint. The resulting upstream JWT pair is held in an in-memory
// session record keyed by an opaque access token; user passwords are never
// stored.
//
// The package also acts as the resource server for the /mcp endpoint:
// ValidateToken resolves Bearer tokens to sessions and binds the session
// identity to the request context.
package oauth
