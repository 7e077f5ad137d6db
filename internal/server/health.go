package server

import "net/http"

const RouteHealth = "/health"

// Checker reports whether a dependency is usable. Implemented by [transcode.FFmpegEncoder].
type Checker interface {
	Available() bool
}

type healthResponse struct {
	Status string `json:"status"`
	FFmpeg bool   `json:"ffmpeg"`
}

// HealthHandler reports liveness and whether the encoder binary can be found.
type HealthHandler struct {
	encoder Checker
}

func NewHealthHandler(encoder Checker) *HealthHandler {
	return &HealthHandler{encoder: encoder}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.encoder != nil {
		resp.FFmpeg = h.encoder.Available()
	}
	writeJSON(w, http.StatusOK, resp)
}
