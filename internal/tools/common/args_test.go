package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	args := map[string]interface{}{
		"name":   "Acme GmbH",
		"number": 42,
	}

	assert.Equal(t, "Acme GmbH", String(args, "name"))
	assert.Equal(t, "", String(args, "missing"))
	assert.Equal(t, "", String(args, "number"))
}

func TestStringOr(t *testing.T) {
	args := map[string]interface{}{
		"currency": "",
		"language": "de",
	}

	assert.Equal(t, "EUR", StringOr(args, "currency", "EUR"))
	assert.Equal(t, "de", StringOr(args, "language", "en"))
	assert.Equal(t, "en", StringOr(args, "missing", "en"))
}

func TestBool(t *testing.T) {
	args := map[string]interface{}{
		"linked": true,
		"name":   "x",
	}

	v, ok := Bool(args, "linked")
	assert.True(t, ok)
	assert.True(t, v)

	_, ok = Bool(args, "name")
	assert.False(t, ok)

	assert.True(t, BoolOr(args, "missing", true))
	assert.True(t, BoolOr(args, "linked", false))
}

func TestFloat(t *testing.T) {
	args := map[string]interface{}{
		"amount": 99.5,
		"limit":  float64(100),
		"name":   "x",
	}

	v, ok := Float(args, "amount")
	assert.True(t, ok)
	assert.Equal(t, 99.5, v)

	n, ok := Int(args, "limit")
	assert.True(t, ok)
	assert.Equal(t, 100, n)

	_, ok = Float(args, "name")
	assert.False(t, ok)
	_, ok = Int(args, "missing")
	assert.False(t, ok)
}

func TestStringSlice(t *testing.T) {
	args := map[string]interface{}{
		"transactions": []interface{}{"tx-1", "tx-2", ""},
		"single":       "tx-3",
		"number":       7,
	}

	assert.Equal(t, []string{"tx-1", "tx-2"}, StringSlice(args, "transactions"))
	assert.Equal(t, []string{"tx-3"}, StringSlice(args, "single"))
	assert.Nil(t, StringSlice(args, "number"))
	assert.Nil(t, StringSlice(args, "missing"))
}

func TestJSONResult(t *testing.T) {
	result, err := JSONResult(map[string]interface{}{"id": "tx-1"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
}
