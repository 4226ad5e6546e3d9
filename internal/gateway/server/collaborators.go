package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"github.com/relaygate/relaygate/internal/common/apperrors"
)

// ErrMediaFetch indicates a remote media attachment could not be retrieved.
var ErrMediaFetch apperrors.Error = apperrors.New("unable to fetch media").SetStatusCode(http.StatusUnprocessableEntity)

// Formatter normalizes recipient addresses before they are handed to a
// provider. Providers with addressing schemes beyond plain identifiers
// supply their own implementation.
type Formatter interface {
	Format(number string) (string, error)
}

type passthroughFormatter struct{}

// NewPassthroughFormatter returns a Formatter that trims surrounding
// whitespace and otherwise passes the recipient through unchanged.
func NewPassthroughFormatter() Formatter {
	return passthroughFormatter{}
}

func (passthroughFormatter) Format(number string) (string, error) {
	return strings.TrimSpace(number), nil
}

// MediaFetcher retrieves a media attachment by URL and reports its bytes
// and MIME type.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, mimeType string, err error)
}

const (
	mediaFetchTimeout = 30 * time.Second
	maxMediaBytes     = 32 << 20
)

type httpMediaFetcher struct {
	client *http.Client
}

// NewHTTPMediaFetcher returns a MediaFetcher backed by the given HTTP
// client. A nil client gets a default with a fetch timeout.
func NewHTTPMediaFetcher(client *http.Client) MediaFetcher {
	if client == nil {
		client = &http.Client{Timeout: mediaFetchTimeout}
	}
	return &httpMediaFetcher{client: client}
}

func (f *httpMediaFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", ErrMediaFetch.Err(err)
	}
	rsp, err := f.client.Do(req)
	if err != nil {
		return nil, "", ErrMediaFetch.Err(err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return nil, "", ErrMediaFetch.Msg("unexpected status " + rsp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(rsp.Body, maxMediaBytes))
	if err != nil {
		return nil, "", ErrMediaFetch.Err(err)
	}
	return data, detectMimeType(rsp.Header.Get("Content-Type"), data), nil
}

// detectMimeType prefers the declared Content-Type and falls back to
// sniffing the payload magic bytes when the header is absent or generic.
func detectMimeType(header string, data []byte) string {
	mime, _, _ := strings.Cut(header, ";")
	mime = strings.TrimSpace(mime)
	if mime != "" && mime != "application/octet-stream" {
		return mime
	}
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return "application/octet-stream"
}
