// Package httpx provides HTTP request and response handling utilities for
// the gateway API. It includes JSON body parsing, the standard response
// envelope, and error mapping from application errors to HTTP responses.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/relaygate/relaygate/internal/common/apperrors"
)

// GetRequestData parses the JSON request body into data. Only POST and PUT
// are supported. Returns an error if the body is absent or unparseable.
func GetRequestData(r *http.Request, data any) error {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		return ErrReqMethodNotSupported()
	}
	if r.Body == nil {
		log.Ctx(r.Context()).Error().Msg("empty request body")
		return ErrUnableToParseReqData()
	}
	if err := json.NewDecoder(r.Body).Decode(data); err != nil {
		return ErrUnableToParseReqData()
	}
	return nil
}

// Response represents an HTTP response with a status code and a body to be
// serialized as JSON.
type Response struct {
	StatusCode int
	Response   any
}

// RequestHandler is the handler signature used by gateway API routes.
type RequestHandler func(r *http.Request) (*Response, error)

// WrapHttpRsp wraps a RequestHandler into an http.HandlerFunc, translating
// returned errors into the standard error envelope.
func WrapHttpRsp(handler RequestHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rsp, err := handler(r)
		if err != nil {
			if httperror, ok := err.(*Error); ok {
				httperror.Send(w)
			} else if appErr, ok := err.(apperrors.Error); ok {
				statusCode := appErr.StatusCode()
				if statusCode == 0 {
					statusCode = http.StatusInternalServerError
				}
				httperror := &Error{
					StatusCode:  statusCode,
					Description: appErr.ErrorAll(),
				}
				httperror.Send(w)
			} else {
				ErrApplicationError(err.Error()).Send(w)
			}
			return
		}
		if rsp == nil {
			ErrApplicationError().Send(w)
			return
		}
		SendJsonRsp(r.Context(), w, rsp.StatusCode, rsp.Response)
	}
}
