package server

import (
	_ "embed"
	"net/http"
)

//go:embed static/index.html
var indexPage []byte

// getIndex serves the embedded operator page.
func (s *Server) getIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(indexPage)
}
