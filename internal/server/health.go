package server

import (
	"context"
	"net/http"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/eugener/zephyr/internal/cache"
)

// Pre-allocated response body and header value slice.
// okBody avoids a []byte("ok") heap escape per call.
// plainCT avoids the []string{v} alloc from Header.Set (see response.go:jsonCT).
var (
	okBody       = []byte("ok")
	notReadyBody = []byte("not ready")
	plainCT      = []string{"text/plain"}
)

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.ReadyCheck != nil {
		if err := s.deps.ReadyCheck(r.Context()); err != nil {
			w.Header()["Content-Type"] = plainCT
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write(notReadyBody)
			return
		}
	}
	w.Header()["Content-Type"] = plainCT
	w.WriteHeader(http.StatusOK)
	w.Write(okBody)
}

type healthResponse struct {
	Status        string       `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Cache         cache.Stats  `json:"cache"`
	External      *probeResult `json:"external,omitempty"`
}

type probeResult struct {
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.deps.Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	if s.deps.Lookup != nil {
		resp.Cache = s.deps.Lookup.CacheStats()
	}
	if r.URL.Query().Get("check_external") == "true" && s.deps.Prober != nil {
		resp.External = s.probes.result(r.Context(), s.deps.Prober)
		if !resp.External.Reachable {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// probeTTL bounds how often /health?check_external=true actually hits the
// provider. Health checkers poll aggressively; the probe result is memoized
// so a misconfigured checker cannot burn through the provider quota.
const probeTTL = 30 * time.Second

// probeCache memoizes external probe results in a single-entry otter cache
// with write-expiry, so concurrent health checks share one upstream call.
type probeCache struct {
	cache *otter.Cache[string, *probeResult]
}

const probeKey = "external"

func newProbeCache() *probeCache {
	return &probeCache{
		cache: otter.Must[string, *probeResult](&otter.Options[string, *probeResult]{
			MaximumSize:      1,
			ExpiryCalculator: otter.ExpiryWriting[string, *probeResult](probeTTL),
		}),
	}
}

func (p *probeCache) result(ctx context.Context, prober Prober) *probeResult {
	if res, ok := p.cache.GetIfPresent(probeKey); ok {
		return res
	}
	res := &probeResult{}
	code, err := prober.Probe(ctx)
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Reachable = code < 500
		res.StatusCode = code
	}
	p.cache.Set(probeKey, res)
	return res
}
