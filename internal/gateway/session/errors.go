package session

import (
	"net/http"

	"github.com/relaygate/relaygate/internal/common/apperrors"
)

var (
	// ErrSessionError is the base error for all session-related errors.
	ErrSessionError apperrors.Error = apperrors.New("error in processing session").SetStatusCode(http.StatusInternalServerError)

	// ErrDuplicateSession is returned when attempting to create a session
	// whose id already has a live entry.
	ErrDuplicateSession apperrors.Error = ErrSessionError.New("session already exists").SetStatusCode(http.StatusConflict)

	// ErrSessionNotFound is returned when no live session exists for an id.
	ErrSessionNotFound apperrors.Error = ErrSessionError.New("session not found").SetStatusCode(http.StatusNotFound)

	// ErrUnauthorized is returned when the presented token does not verify.
	ErrUnauthorized apperrors.Error = ErrSessionError.New("Unauthenticated").SetStatusCode(http.StatusUnauthorized)

	// ErrRecipientNotRegistered is returned when the recipient address is
	// not registered on the messaging network.
	ErrRecipientNotRegistered apperrors.Error = ErrSessionError.New("The number is not registered").SetStatusCode(http.StatusUnprocessableEntity)

	// ErrBadRequest is returned for malformed or invalid requests.
	ErrBadRequest apperrors.Error = ErrSessionError.New("bad request").SetStatusCode(http.StatusBadRequest)
)
