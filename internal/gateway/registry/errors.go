package registry

import (
	"net/http"

	"github.com/relaygate/relaygate/internal/common/apperrors"
)

var (
	// ErrRegistryIO is returned when the registry backing store cannot be
	// read or written.
	ErrRegistryIO apperrors.Error = apperrors.New("registry i/o error").SetStatusCode(http.StatusInternalServerError)

	// ErrCredentialIO is returned when a credential blob cannot be read or
	// written.
	ErrCredentialIO apperrors.Error = apperrors.New("credential store i/o error").SetStatusCode(http.StatusInternalServerError)

	// ErrInvalidSessionID is returned when a session id is unsafe to use as
	// part of a file name.
	ErrInvalidSessionID apperrors.Error = apperrors.New("invalid session id").SetStatusCode(http.StatusBadRequest)
)
