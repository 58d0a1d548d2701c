package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	weather "github.com/eugener/zephyr/internal"
)

type pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

type listResponse struct {
	Data       any        `json:"data"`
	Pagination pagination `json:"pagination"`
}

func parsePagination(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return
}

// parseSinceUntil validates optional since/until RFC3339 query params.
// Writes 400 and returns false on invalid format.
func parseSinceUntil(w http.ResponseWriter, r *http.Request) (since, until string, ok bool) {
	q := r.URL.Query()
	since, until = q.Get("since"), q.Get("until")
	// Validate RFC3339 upfront: SQLite datetime() silently returns NULL on
	// malformed strings, producing empty results instead of a clear error.
	if since != "" {
		if _, err := time.Parse(time.RFC3339, since); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid since format, use RFC3339"))
			return "", "", false
		}
	}
	if until != "" {
		if _, err := time.Parse(time.RFC3339, until); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid until format, use RFC3339"))
			return "", "", false
		}
	}
	return since, until, true
}

type cacheClearResponse struct {
	Status  string `json:"status"`
	Cleared int    `json:"cleared"`
}

func (s *server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	cleared := s.deps.Lookup.CacheStats().Entries
	s.deps.Lookup.ClearCache()
	slog.LogAttrs(r.Context(), slog.LevelInfo, "cache cleared",
		slog.Int("entries", cleared),
		slog.String("request_id", weather.RequestIDFromContext(r.Context())),
	)
	writeJSON(w, http.StatusOK, cacheClearResponse{Status: "ok", Cleared: cleared})
}

func (s *server) handleLookupList(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("lookup history is not configured"))
		return
	}

	since, until, ok := parseSinceUntil(w, r)
	if !ok {
		return
	}
	offset, limit := parsePagination(r)

	filter := weather.LookupFilter{
		City:   r.URL.Query().Get("city"),
		Since:  since,
		Until:  until,
		Limit:  limit,
		Offset: offset,
	}

	records, err := s.deps.History.QueryLookups(r.Context(), filter)
	if err != nil {
		slog.LogAttrs(r.Context(), slog.LevelError, "lookup history query failed",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to list lookups"))
		return
	}
	total, err := s.deps.History.CountLookups(r.Context(), filter)
	if err != nil {
		slog.LogAttrs(r.Context(), slog.LevelError, "lookup history count failed",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse("failed to list lookups"))
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Data:       records,
		Pagination: pagination{Offset: offset, Limit: limit, Total: total},
	})
}
