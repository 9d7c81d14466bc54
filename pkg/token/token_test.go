package token

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier(t *testing.T) {
	v, err := NewVerifier("s3cret")
	require.NoError(t, err)

	assert.True(t, v.Validate("s3cret"))
	assert.False(t, v.Validate("s3cre"))
	assert.False(t, v.Validate("s3cret "))
	assert.False(t, v.Validate(""))
}

func TestNewVerifier_RejectsEmptySecret(t *testing.T) {
	_, err := NewVerifier("")
	assert.Error(t, err)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9_-]+$`), a)
}
