package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	weather "github.com/eugener/zephyr/internal"
	"github.com/eugener/zephyr/internal/app"
	"github.com/eugener/zephyr/internal/cache"
	"github.com/eugener/zephyr/internal/ratelimit"
	"github.com/eugener/zephyr/internal/testutil"
)

func newTestLookup(t *testing.T, f app.Fetcher) *app.LookupService {
	t.Helper()
	c, err := cache.New(10, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return app.NewLookupService(c, f)
}

func newTestHandler(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Lookup == nil {
		deps.Lookup = newTestLookup(t, &testutil.FakeFetcher{})
	}
	return New(deps)
}

// recordingRecorder captures records synchronously for assertions.
type recordingRecorder struct {
	records []weather.LookupRecord
}

func (r *recordingRecorder) Record(rec weather.LookupRecord) {
	r.records = append(r.records, rec)
}

// fakeProber returns a canned probe result.
type fakeProber struct {
	code int
	err  error
}

func (p fakeProber) Probe(context.Context) (int, error) { return p.code, p.err }

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(t, Deps{
			ReadyCheck: func(context.Context) error { return nil },
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(t, Deps{
			ReadyCheck: func(context.Context) error { return errors.New("db down") },
		})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	})
}

func TestWeather(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{})

	body := `{"city":"London","unit":"centigrade"}`
	req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var report weather.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if report.City != "London" {
		t.Errorf("city = %q, want %q", report.City, "London")
	}
	if report.Main.Temp != 11.5 {
		t.Errorf("temp = %v, want 11.5", report.Main.Temp)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}
}

func TestWeatherValidation(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing city", `{"unit":"centigrade"}`},
		{"blank city", `{"city":"   ","unit":"centigrade"}`},
		{"city too long", `{"city":"` + strings.Repeat("x", 101) + `","unit":"centigrade"}`},
		{"bad unit", `{"city":"London","unit":"rankine"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
		})
	}
}

func TestWeatherErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", weather.ErrNotFound, http.StatusNotFound},
		{"unavailable", weather.ErrUnavailable, http.StatusServiceUnavailable},
		{"upstream", &weather.UpstreamError{StatusCode: 500, Body: "boom"}, http.StatusBadGateway},
		{"bad shape", weather.ErrBadUpstreamShape, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fetcher := &testutil.FakeFetcher{
				CurrentFn: func(context.Context, string, weather.Unit) ([]byte, error) {
					return nil, tt.err
				},
			}
			h := newTestHandler(t, Deps{Lookup: newTestLookup(t, fetcher)})

			req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(`{"city":"Nowhere"}`))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			// Upstream body text must never leak to clients.
			if strings.Contains(rec.Body.String(), "boom") {
				t.Errorf("upstream body leaked: %s", rec.Body.String())
			}
		})
	}
}

func TestWeatherRecordsLookups(t *testing.T) {
	t.Parallel()
	recorder := &recordingRecorder{}
	h := newTestHandler(t, Deps{Recorder: recorder})

	for range 2 {
		req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(`{"city":" London "}`))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
		}
	}

	if len(recorder.records) != 2 {
		t.Fatalf("records = %d, want 2", len(recorder.records))
	}
	first, second := recorder.records[0], recorder.records[1]
	if first.City != "london" {
		t.Errorf("city = %q, want normalized %q", first.City, "london")
	}
	if first.CacheHit {
		t.Error("first lookup recorded as hit, want miss")
	}
	if !second.CacheHit {
		t.Error("second lookup recorded as miss, want hit")
	}
	if first.RequestID == "" {
		t.Error("record missing request ID")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{Version: "1.2.3"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Version != "1.2.3" {
		t.Errorf("version = %q, want %q", resp.Version, "1.2.3")
	}
	if resp.Cache.MaxSize != 10 {
		t.Errorf("cache max_size = %d, want 10", resp.Cache.MaxSize)
	}
	if resp.External != nil {
		t.Error("external probe reported without check_external")
	}
}

func TestHealthExternalProbe(t *testing.T) {
	t.Parallel()

	t.Run("reachable", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(t, Deps{Prober: fakeProber{code: http.StatusOK}})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?check_external=true", nil))

		var resp healthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.External == nil || !resp.External.Reachable {
			t.Fatalf("external = %+v, want reachable", resp.External)
		}
		if resp.Status != "ok" {
			t.Errorf("status = %q, want %q", resp.Status, "ok")
		}
	})

	t.Run("unreachable degrades status", func(t *testing.T) {
		t.Parallel()
		h := newTestHandler(t, Deps{Prober: fakeProber{err: errors.New("dial tcp: refused")}})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health?check_external=true", nil))

		var resp healthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if resp.External == nil || resp.External.Reachable {
			t.Fatalf("external = %+v, want unreachable", resp.External)
		}
		if resp.Status != "degraded" {
			t.Errorf("status = %q, want %q", resp.Status, "degraded")
		}
	})
}

func TestProbeCacheMemoizes(t *testing.T) {
	t.Parallel()

	calls := 0
	prober := proberFunc(func(context.Context) (int, error) {
		calls++
		return http.StatusOK, nil
	})
	pc := newProbeCache()
	for range 5 {
		pc.result(context.Background(), prober)
	}
	if calls != 1 {
		t.Errorf("probe calls = %d, want 1", calls)
	}
}

type proberFunc func(ctx context.Context) (int, error)

func (f proberFunc) Probe(ctx context.Context) (int, error) { return f(ctx) }

func TestAdminAuth(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{AdminKey: "secret"})

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/cache", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodDelete, "/admin/cache", nil)
		req.Header.Set("X-Admin-Key", "nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("valid key", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodDelete, "/admin/cache", nil)
		req.Header.Set("X-Admin-Key", "secret")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d; body = %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/admin/cache", nil))
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 404 or 405", rec.Code)
	}
}

func TestAdminCacheClear(t *testing.T) {
	t.Parallel()
	lookup := newTestLookup(t, &testutil.FakeFetcher{})
	h := newTestHandler(t, Deps{Lookup: lookup, AdminKey: "secret"})

	// Warm the cache through the public endpoint.
	req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(`{"city":"London"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got := lookup.CacheStats().Entries; got != 1 {
		t.Fatalf("entries before clear = %d, want 1", got)
	}

	clearReq := httptest.NewRequest(http.MethodDelete, "/admin/cache", nil)
	clearReq.Header.Set("X-Admin-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, clearReq)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var resp cacheClearResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Cleared != 1 {
		t.Errorf("cleared = %d, want 1", resp.Cleared)
	}
	if got := lookup.CacheStats().Entries; got != 0 {
		t.Errorf("entries after clear = %d, want 0", got)
	}
}

func TestAdminLookupList(t *testing.T) {
	t.Parallel()
	store := testutil.NewFakeStore()
	store.InsertLookups(context.Background(), []weather.LookupRecord{
		{ID: "1", City: "london", Unit: weather.UnitCentigrade, StatusCode: 200, CreatedAt: time.Now().UTC()},
		{ID: "2", City: "paris", Unit: weather.UnitKelvin, StatusCode: 200, CreatedAt: time.Now().UTC()},
	})
	h := newTestHandler(t, Deps{History: store, AdminKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/admin/lookups", nil)
	req.Header.Set("X-Admin-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data       []weather.LookupRecord `json:"data"`
		Pagination pagination             `json:"pagination"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("data = %d records, want 2", len(resp.Data))
	}
	if resp.Pagination.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Pagination.Total)
	}
	if resp.Pagination.Limit != 50 {
		t.Errorf("limit = %d, want default 50", resp.Pagination.Limit)
	}
}

func TestAdminLookupListBadSince(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{History: testutil.NewFakeStore(), AdminKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/admin/lookups?since=yesterday", nil)
	req.Header.Set("X-Admin-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{RateLimiter: ratelimit.NewRegistry(2)})

	var last *httptest.ResponseRecorder
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(`{"city":"London"}`))
		req.RemoteAddr = "10.0.0.1:5000"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", last.Code, http.StatusTooManyRequests)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// A different client IP gets its own budget.
	req := httptest.NewRequest(http.MethodPost, "/weather", strings.NewReader(`{"city":"London"}`))
	req.RemoteAddr = "10.0.0.2:5000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/weather", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allow-origin = %q", got)
	}

	// Disallowed origins get no CORS headers.
	req = httptest.NewRequest(http.MethodOptions, "/weather", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("allow-origin = %q, want empty", got)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "client-supplied-id")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "client-supplied-id" {
		t.Errorf("X-Request-Id = %q, want client-supplied-id", got)
	}
}
