// Package weather defines domain types for the Zephyr weather gateway.
// This package has no project imports -- it is the dependency root.
package weather

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// --- Units ---

// Unit is a temperature unit accepted by the public API.
type Unit string

const (
	UnitCentigrade Unit = "centigrade"
	UnitFahrenheit Unit = "fahrenheit"
	UnitKelvin     Unit = "kelvin"
)

// ParseUnit validates a unit string from a client request.
func ParseUnit(s string) (Unit, error) {
	switch Unit(s) {
	case UnitCentigrade, UnitFahrenheit, UnitKelvin:
		return Unit(s), nil
	}
	return "", ErrBadRequest
}

// ProviderCode maps the public unit name to the provider's unit vocabulary.
// Unknown units fall back to metric, matching the provider's own default.
func (u Unit) ProviderCode() string {
	switch u {
	case UnitFahrenheit:
		return "imperial"
	case UnitKelvin:
		return "standard"
	default:
		return "metric"
	}
}

// CacheKey returns the composite cache key for a city/unit pair.
// City names differing only in case or surrounding whitespace collide.
func CacheKey(city string, unit Unit) string {
	return strings.ToLower(strings.TrimSpace(city)) + "|" + string(unit)
}

// --- Normalized response shape ---

// Conditions is the short weather summary from the provider.
type Conditions struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// Metrics holds the main temperature and atmosphere readings.
type Metrics struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

// Wind holds wind speed and optional direction.
type Wind struct {
	Speed float64 `json:"speed"`
	Deg   *int    `json:"deg,omitempty"`
}

// Sun holds country and sunrise/sunset times (unix seconds).
type Sun struct {
	Country string `json:"country,omitempty"`
	Sunrise *int64 `json:"sunrise,omitempty"`
	Sunset  *int64 `json:"sunset,omitempty"`
}

// Report is the stable response shape returned to clients. Raw echoes the
// original provider document so callers can reach fields Report omits.
type Report struct {
	City    string          `json:"city"`
	Country string          `json:"country,omitempty"`
	Unit    Unit            `json:"unit"`
	Weather Conditions      `json:"weather"`
	Main    Metrics         `json:"main"`
	Wind    *Wind           `json:"wind,omitempty"`
	Sys     *Sun            `json:"sys,omitempty"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// --- Lookup history ---

// LookupRecord represents a single handled weather lookup.
type LookupRecord struct {
	ID         string    `json:"id"`
	City       string    `json:"city"`
	Unit       Unit      `json:"unit"`
	CacheHit   bool      `json:"cache_hit"`
	StatusCode int       `json:"status_code"`
	LatencyMs  int       `json:"latency_ms"`
	RequestID  string    `json:"request_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// LookupFilter selects lookup records for history queries.
type LookupFilter struct {
	City   string
	Since  string // RFC3339, inclusive
	Until  string // RFC3339, exclusive
	Limit  int
	Offset int
}

// --- Context keys ---

type contextKey int

const ctxKeyRequestID contextKey = 0

// ContextWithRequestID returns a context carrying the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestIDFromContext extracts the request ID from context, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// --- Shared helpers ---

// HashKey returns the hex-encoded SHA-256 hash of a raw admin key.
func HashKey(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
