package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Delete("/api/sessions/{sessionID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("DELETE", "/api/sessions/{sessionID}", "418"))
	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("DELETE", "/api/sessions/"+id, nil))
	}
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("DELETE", "/api/sessions/{sessionID}", "418"))

	if after-before != 2 {
		t.Errorf("expected 2 requests under the route pattern, got %v", after-before)
	}
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: 200}
	if _, _, err := sw.Hijack(); err == nil {
		t.Error("recorder cannot be hijacked, expected error")
	}
}
