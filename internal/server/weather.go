package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	weather "github.com/eugener/zephyr/internal"
)

const maxCityLen = 100

type weatherRequest struct {
	City string `json:"city"`
	Unit string `json:"unit"`
}

func (s *server) handleWeather(w http.ResponseWriter, r *http.Request) {
	var req weatherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	city := strings.TrimSpace(req.City)
	if city == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("city is required"))
		return
	}
	if utf8.RuneCountInString(city) > maxCityLen {
		writeJSON(w, http.StatusBadRequest, errorResponse("city name too long"))
		return
	}
	unit := weather.UnitCentigrade
	if req.Unit != "" {
		var err error
		unit, err = weather.ParseUnit(req.Unit)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("unit must be one of centigrade, fahrenheit, kelvin"))
			return
		}
	}

	start := time.Now()
	report, hit, err := s.deps.Lookup.Weather(r.Context(), city, unit)
	latency := time.Since(start)

	status := http.StatusOK
	if err != nil {
		status = errorStatus(err)
	}

	if s.deps.Metrics != nil {
		if hit {
			s.deps.Metrics.CacheHits.Inc()
		} else {
			s.deps.Metrics.CacheMisses.Inc()
			// The miss path is dominated by the provider round trip.
			s.deps.Metrics.UpstreamDuration.Observe(latency.Seconds())
		}
		if err != nil {
			s.deps.Metrics.UpstreamErrors.WithLabelValues(errorKind(err)).Inc()
		}
	}
	if s.deps.Recorder != nil {
		s.deps.Recorder.Record(weather.LookupRecord{
			City:       strings.ToLower(city),
			Unit:       unit,
			CacheHit:   hit,
			StatusCode: status,
			LatencyMs:  int(latency.Milliseconds()),
			RequestID:  weather.RequestIDFromContext(r.Context()),
			CreatedAt:  time.Now().UTC(),
		})
	}

	if err != nil {
		slog.LogAttrs(r.Context(), slog.LevelWarn, "weather lookup failed",
			slog.String("city", city),
			slog.String("unit", string(unit)),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, errorResponse(publicErrorMessage(status)))
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// errorKind buckets lookup errors for the upstream error counter.
func errorKind(err error) string {
	var ue *weather.UpstreamError
	switch {
	case errors.Is(err, weather.ErrNotFound):
		return "not_found"
	case errors.Is(err, weather.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, weather.ErrBadUpstreamShape):
		return "bad_shape"
	case errors.As(err, &ue):
		return "upstream_status"
	default:
		return "other"
	}
}

// publicErrorMessage maps a status code to a stable client-facing message.
// Upstream bodies are logged, never echoed to clients.
func publicErrorMessage(status int) string {
	switch status {
	case http.StatusNotFound:
		return "city not found"
	case http.StatusBadGateway:
		return "weather provider returned an error"
	case http.StatusServiceUnavailable:
		return "weather provider unavailable"
	case http.StatusBadRequest:
		return "bad request"
	default:
		return "internal server error"
	}
}
