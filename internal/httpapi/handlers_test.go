package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"librario.org/internal/circ"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(days int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, days)
}

type apiClient struct {
	baseURL string
	client  *http.Client
	clock   *fakeClock
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 4, 7, 9, 0, 0, 0, time.UTC)}
	api := New(ReadyProbe{}, "test", circ.NewInMemory(circ.DefaultPolicy(), clock.Now))
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		clock:   clock,
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any) *http.Response {
	return c.do(http.MethodPost, path, body)
}

func (c *apiClient) get(path string, params url.Values) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	return c.do(http.MethodGet, u.Path+"?"+u.RawQuery, nil)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected healthz status: %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["service"] != "librario-api" {
		t.Fatalf("unexpected service name: %v", health["service"])
	}
	if health["version"] != "test" {
		t.Fatalf("unexpected version: %v", health["version"])
	}

	resp = api.get("/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected readyz status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/info", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected info status: %d", resp.StatusCode)
	}
	info := decode[map[string]any](t, resp)
	if info["time"] == nil {
		t.Fatal("expected time in info payload")
	}
}

func TestRequestIDEchoed(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil)
	defer resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id response header")
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/unknown", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
