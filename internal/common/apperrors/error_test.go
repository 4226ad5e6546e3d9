package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndStatusCode(t *testing.T) {
	base := New("base failure").SetStatusCode(http.StatusInternalServerError)
	assert.Equal(t, "base failure", base.Error())
	assert.Equal(t, http.StatusInternalServerError, base.StatusCode())

	derived := base.New("derived failure")
	assert.Equal(t, "derived failure", derived.Error())
	assert.Equal(t, http.StatusInternalServerError, derived.StatusCode())
	assert.True(t, errors.Is(derived, base))
}

func TestMsgWrapsOriginal(t *testing.T) {
	base := New("registry error").SetStatusCode(http.StatusInternalServerError)
	wrapped := base.Msg("unable to load sessions")

	assert.Equal(t, "unable to load sessions", wrapped.Error())
	assert.True(t, errors.Is(wrapped, base))
	assert.Contains(t, wrapped.ErrorAll(), "registry error")
}

func TestMsgErrAttachesExtraErrors(t *testing.T) {
	base := New("session error")
	cause := errors.New("disk full")
	err := base.MsgErr("unable to persist", cause)

	require.True(t, errors.Is(err, cause))
	assert.Contains(t, err.ErrorAll(), "disk full")
	assert.Len(t, err.UnwrapAll(), 2)
}

func TestErrKeepsMessage(t *testing.T) {
	base := New("delivery failed").SetStatusCode(http.StatusBadGateway)
	cause := errors.New("connection reset")
	err := base.Err(cause)

	assert.Equal(t, "delivery failed", err.Error())
	assert.Equal(t, http.StatusBadGateway, err.StatusCode())
	assert.True(t, errors.Is(err, cause))
}

func TestSetStatusCodeDoesNotMutate(t *testing.T) {
	base := New("not found").SetStatusCode(http.StatusNotFound)
	other := base.SetStatusCode(http.StatusGone)

	assert.Equal(t, http.StatusNotFound, base.StatusCode())
	assert.Equal(t, http.StatusGone, other.StatusCode())
}
