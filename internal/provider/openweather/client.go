// Package openweather implements the outbound gateway for the OpenWeatherMap
// current weather API.
package openweather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	weather "github.com/eugener/zephyr/internal"
)

const (
	defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

	// maxErrorBody caps how much of an upstream error body is captured.
	maxErrorBody = 4096
	// maxDocumentBody caps a successful response; current-weather documents
	// are a few KB, so 1 MB guards against a misbehaving upstream.
	maxDocumentBody = 1 << 20

	probeTimeout = 2 * time.Second
)

// Client fetches raw current-weather documents from the OpenWeatherMap API.
// It performs no retries and no caching; both belong to its callers.
type Client struct {
	baseURL   string
	apiKey    string
	probeCity string
	http      *http.Client
}

// New creates a Client. If baseURL is empty, the public OpenWeatherMap
// endpoint is used. The provided http.Client controls timeouts and the
// transport chain.
func New(apiKey, baseURL string, client *http.Client) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		probeCity: "London",
		http:      client,
	}
}

// Current fetches the raw weather document for city in the given unit.
// Error classification:
//   - transport failure: weather.ErrUnavailable (caller may retry)
//   - provider 404: weather.ErrNotFound (terminal)
//   - other provider >=400: *weather.UpstreamError with status and body
//   - non-JSON 2xx body: weather.ErrBadUpstreamShape
//
// The returned document is unmodified provider output.
func (c *Client) Current(ctx context.Context, city string, unit weather.Unit) ([]byte, error) {
	req, err := c.newRequest(ctx, city, unit)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %q", weather.ErrNotFound, city)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &weather.UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", weather.ErrUnavailable, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: response is not valid JSON", weather.ErrBadUpstreamShape)
	}
	return body, nil
}

// Probe performs a short connectivity check against the provider and returns
// the upstream status code. It uses the configured API key, so a 401 here
// surfaces credential problems too.
func (c *Client) Probe(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, c.probeCity, weather.UnitCentigrade)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", weather.ErrUnavailable, err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, city string, unit weather.Unit) (*http.Request, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", unit.ProviderCode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("openweather: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
