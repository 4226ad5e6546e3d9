package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier("sekrit")
	assert.True(t, v.Verify("sekrit"))
	assert.False(t, v.Verify("wrong"))
	assert.False(t, v.Verify(""))
}

func TestStaticVerifierEmptySecret(t *testing.T) {
	v := NewStaticVerifier("")
	assert.False(t, v.Verify(""), "empty secret must never verify")
	assert.False(t, v.Verify("anything"))
}
