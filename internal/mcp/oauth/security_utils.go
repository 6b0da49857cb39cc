package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// generateSecureToken returns a URL-safe random token of the given byte length.
func generateSecureToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random token: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}

// newAccessToken mints an opaque MCP access token.
func newAccessToken() (string, error) {
	tok, err := generateSecureToken(AccessTokenLength)
	if err != nil {
		return "", err
	}
	return MCPTokenPrefix + tok, nil
}

// newRefreshHandle mints an opaque MCP refresh token.
func newRefreshHandle() (string, error) {
	tok, err := generateSecureToken(RefreshTokenLength)
	if err != nil {
		return "", err
	}
	return MCPTokenPrefix + tok, nil
}

// hashForLogging returns a short stable digest of a secret so correlated
// log lines never carry the secret itself.
func hashForLogging(secret string) string {
	if secret == "" {
		return "empty"
	}
	sum := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("%x", sum[:8])
}

// getClientIP extracts the originating client IP. Proxy headers are only
// trusted when the server is configured to sit behind one.
func getClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isLoopbackHost reports whether host is a recognized loopback address.
func isLoopbackHost(host string) bool {
	for _, addr := range LoopbackAddresses {
		if host == addr {
			return true
		}
	}
	return strings.HasPrefix(host, "127.")
}

// setSecurityHeaders applies defensive headers to browser-facing responses.
func setSecurityHeaders(w http.ResponseWriter, isHTTPS bool) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; form-action 'self'")
	h.Set("Referrer-Policy", "no-referrer")
	if isHTTPS {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
}

// setTokenResponseHeaders applies the cache directives RFC 6749 requires
// on token endpoint responses.
func setTokenResponseHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
