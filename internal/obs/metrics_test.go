package obs

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"tessera.id/internal/auth"
)

func TestInstrumentLabelsByRoutePattern(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Put("/admin/applications/{app_id}/scopes", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, id := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodPut, "/admin/applications/"+id+"/scopes", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodPut, "/admin/applications/{app_id}/scopes", "418"))
	if got != 3 {
		t.Fatalf("expected 3 requests on route pattern, got %v", got)
	}
	if n := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")); n != 1 {
		t.Fatalf("expected unmatched request counted once, got %v", n)
	}
	if v := testutil.ToFloat64(m.httpInFlight); v != 0 {
		t.Fatalf("in-flight gauge not released: %v", v)
	}
}

func TestTokenAndGuardCounters(t *testing.T) {
	m := NewMetrics()
	m.TokenIssued(auth.KindAdmin)
	m.TokenVerified(auth.KindUser, true)
	m.TokenVerified(auth.KindUser, false)
	m.GuardDecision("forbidden")
	m.SetBuildInfo("1.0.0", "abc123")

	if v := testutil.ToFloat64(m.tokensIssued.WithLabelValues("admin")); v != 1 {
		t.Fatalf("tokens_issued_total{admin} = %v", v)
	}
	if v := testutil.ToFloat64(m.tokenVerifications.WithLabelValues("user", "invalid")); v != 1 {
		t.Fatalf("token_verifications_total{user,invalid} = %v", v)
	}
	if v := testutil.ToFloat64(m.guardDecisions.WithLabelValues("forbidden")); v != 1 {
		t.Fatalf("admin_guard_decisions_total{forbidden} = %v", v)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{`build_info{commit="abc123",version="1.0.0"} 1`, "tokens_issued_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)
	logger.Debug("hidden")
	logger.Info("request_complete", "status", 200)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "request_complete" || entry["status"] != float64(200) {
		t.Fatalf("unexpected entry %v", entry)
	}
}
