package server

import (
	"net/http"
	"net/url"
	"path"

	"github.com/rs/zerolog/log"

	"github.com/relaygate/relaygate/internal/common/httpx"
	"github.com/relaygate/relaygate/internal/gateway/provider"
	"github.com/relaygate/relaygate/internal/gateway/session"
)

const tokenHeader = "x-token"

// SendMessageReq is the request body for POST /send-message.
type SendMessageReq struct {
	Sender  string `json:"sender" validate:"required"`
	Number  string `json:"number" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// SendMediaReq is the request body for POST /send-media. File is the URL of
// the media attachment to fetch and deliver.
type SendMediaReq struct {
	Sender  string `json:"sender" validate:"required"`
	Number  string `json:"number" validate:"required"`
	Caption string `json:"caption"`
	File    string `json:"file" validate:"required,url"`
}

// deliveryRsp is the success envelope for the send endpoints.
type deliveryRsp struct {
	Status   bool              `json:"status"`
	Response *provider.Receipt `json:"response"`
}

// deliveryErrRsp is the failure envelope carrying the provider's error text
// under the response key.
type deliveryErrRsp struct {
	Status   bool   `json:"status"`
	Response string `json:"response"`
}

// resolveSender authenticates the request and resolves the sender session
// and normalized recipient address shared by both send endpoints.
func (s *Server) resolveSender(r *http.Request, sender, number string) (*session.Session, string, error) {
	if !s.verifier.Verify(r.Header.Get(tokenHeader)) {
		return nil, "", httpx.ErrUnAuthorized()
	}
	sess, err := s.manager.GetSession(sender)
	if err != nil {
		return nil, "", err
	}
	address, ferr := s.Formatter.Format(number)
	if ferr != nil {
		return nil, "", httpx.ErrInvalidRequest(ferr.Error())
	}
	registered, cerr := sess.Client().IsRegisteredRecipient(r.Context(), address)
	if cerr != nil {
		return nil, "", session.ErrSessionError.Err(cerr)
	}
	if !registered {
		return nil, "", session.ErrRecipientNotRegistered
	}
	return sess, address, nil
}

// filenameFromURL derives an attachment filename from the media URL path.
func filenameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// sendMessage handles POST /send-message.
func (s *Server) sendMessage(r *http.Request) (*httpx.Response, error) {
	req := &SendMessageReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	sess, address, err := s.resolveSender(r, req.Sender, req.Number)
	if err != nil {
		return nil, err
	}
	receipt, serr := sess.Client().SendText(r.Context(), address, req.Message)
	if serr != nil {
		log.Ctx(r.Context()).Error().Err(serr).Str("sender", req.Sender).Msg("text delivery failed")
		return &httpx.Response{
			StatusCode: http.StatusInternalServerError,
			Response:   &deliveryErrRsp{Status: false, Response: serr.Error()},
		}, nil
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   &deliveryRsp{Status: true, Response: receipt},
	}, nil
}

// sendMedia handles POST /send-media.
func (s *Server) sendMedia(r *http.Request) (*httpx.Response, error) {
	req := &SendMediaReq{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, httpx.ErrInvalidRequest(err.Error())
	}
	sess, address, err := s.resolveSender(r, req.Sender, req.Number)
	if err != nil {
		return nil, err
	}
	data, mimeType, ferr := s.Fetcher.Fetch(r.Context(), req.File)
	if ferr != nil {
		return nil, ferr
	}
	media := provider.Media{
		MimeType: mimeType,
		Data:     data,
		Filename: filenameFromURL(req.File),
	}
	receipt, serr := sess.Client().SendMedia(r.Context(), address, media, req.Caption)
	if serr != nil {
		log.Ctx(r.Context()).Error().Err(serr).Str("sender", req.Sender).Msg("media delivery failed")
		return &httpx.Response{
			StatusCode: http.StatusInternalServerError,
			Response:   &deliveryErrRsp{Status: false, Response: serr.Error()},
		}, nil
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   &deliveryRsp{Status: true, Response: receipt},
	}, nil
}
