package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// validatePKCE checks a code_verifier against the S256 code_challenge
// recorded with the authorization code (RFC 7636).
func validatePKCE(codeVerifier, codeChallenge, method string) *OAuthError {
	if codeVerifier == "" {
		return ErrInvalidRequest("code_verifier is required")
	}
	if len(codeVerifier) < MinCodeVerifierLength || len(codeVerifier) > MaxCodeVerifierLength {
		return ErrInvalidGrant("code_verifier length out of range")
	}
	if method != "S256" {
		return ErrInvalidRequest("only S256 code_challenge_method is supported")
	}

	sum := sha256.Sum256([]byte(codeVerifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(computed), []byte(codeChallenge)) != 1 {
		return ErrInvalidGrant("code_verifier does not match code_challenge")
	}
	return nil
}

// validateCodeChallenge checks the challenge parameters on the
// authorization request before any state is created.
func validateCodeChallenge(challenge, method string) *OAuthError {
	if challenge == "" {
		return ErrInvalidRequest("code_challenge is required (PKCE)")
	}
	if method == "" {
		method = "S256"
	}
	for _, supported := range SupportedCodeChallengeMethods {
		if method == supported {
			return nil
		}
	}
	return ErrInvalidRequest("unsupported code_challenge_method: only S256 is allowed")
}
