package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	weather "github.com/eugener/zephyr/internal"
)

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func errorResponse(msg string) apiError {
	var e apiError
	e.Error.Message = msg
	e.Error.Type = "invalid_request_error"
	return e
}

func errorStatus(err error) int {
	var ue *weather.UpstreamError
	switch {
	case errors.Is(err, weather.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, weather.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, weather.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, weather.ErrBadUpstreamShape):
		return http.StatusBadGateway
	case errors.As(err, &ue):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// jsonCT is a pre-allocated header value slice. Direct map assignment
// (w.Header()["Content-Type"] = jsonCT) avoids the []string{v} alloc
// that Header.Set creates on every call. Saves 1 alloc/req.
var jsonCT = []string{"application/json"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header()["Content-Type"] = jsonCT
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
