package server

import (
	"net/http"
	"strings"
)

// ScreenshotHandler serves captured screenshots read-only.
type ScreenshotHandler struct {
	files http.Handler
}

// NewScreenshotHandler serves the files under dir at /screenshots/.
func NewScreenshotHandler(dir string) *ScreenshotHandler {
	return &ScreenshotHandler{files: http.StripPrefix("/screenshots/", http.FileServer(http.Dir(dir)))}
}

// Routes returns the HTTP routes this handler serves.
func (h *ScreenshotHandler) Routes() []string {
	return []string{"/screenshots/"}
}

// ServeHTTP serves a screenshot. Directory listings are refused.
func (h *ScreenshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if strings.HasSuffix(r.URL.Path, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	h.files.ServeHTTP(w, r)
}
