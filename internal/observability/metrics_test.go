package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestGateAndLoginCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveGateDecision("forbidden")
	metrics.ObserveGateDecision("forbidden")
	metrics.ObserveLogin("throttled")

	body := scrape(t, metrics)
	if !strings.Contains(body, `memopsy_gate_decisions_total{outcome="forbidden"} 2`) {
		t.Fatalf("expected gate counter, got: %s", body)
	}
	if !strings.Contains(body, `memopsy_login_attempts_total{result="throttled"} 1`) {
		t.Fatalf("expected login counter, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveGateDecision("allow")
	m.ObserveLogin("success")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/api/usuarios/{id}")

	req := httptest.NewRequest(http.MethodGet, "/api/usuarios/3", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `memopsy_http_requests_total{code="418",route="/api/usuarios/{id}"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `memopsy_http_request_duration_seconds_bucket{route="/api/usuarios/{id}"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}
