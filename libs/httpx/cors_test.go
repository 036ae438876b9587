package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithCORS_Preflight(t *testing.T) {
	called := false
	h := WithCORS(PublicBookingCORS([]string{"https://agenda.example"}))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/public/book", nil)
	req.Header.Set("Origin", "https://agenda.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)

	if rw.Code != http.StatusNoContent || called {
		t.Fatalf("expected preflight to short-circuit, got %d called=%v", rw.Code, called)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://agenda.example" {
		t.Fatalf("unexpected allow origin %q", rw.Header().Get("Access-Control-Allow-Origin"))
	}

	other := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
	other.Header.Set("Origin", "https://evil.example")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, other)
	if rw.Header().Get("Access-Control-Allow-Origin") != "" || !called {
		t.Fatal("expected unknown origin to pass through without CORS headers")
	}
}
