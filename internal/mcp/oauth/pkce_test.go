package oauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePKCE(t *testing.T) {
	verifier := strings.Repeat("a", 43)
	challenge := s256Challenge(verifier)

	assert.Nil(t, validatePKCE(verifier, challenge, "S256"))

	oerr := validatePKCE(strings.Repeat("b", 43), challenge, "S256")
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_grant", oerr.Code)

	oerr = validatePKCE("", challenge, "S256")
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_request", oerr.Code)

	oerr = validatePKCE(strings.Repeat("a", 42), challenge, "S256")
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_grant", oerr.Code)

	oerr = validatePKCE(strings.Repeat("a", 129), challenge, "S256")
	require.NotNil(t, oerr)

	oerr = validatePKCE(verifier, verifier, "plain")
	require.NotNil(t, oerr)
	assert.Equal(t, "invalid_request", oerr.Code)
}

func TestValidateCodeChallenge(t *testing.T) {
	assert.Nil(t, validateCodeChallenge("abc", "S256"))
	assert.Nil(t, validateCodeChallenge("abc", "")) // defaults to S256

	oerr := validateCodeChallenge("", "S256")
	require.NotNil(t, oerr)

	oerr = validateCodeChallenge("abc", "plain")
	require.NotNil(t, oerr)
}
