package runtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadyz(t *testing.T) {
	healthy := NewBaseMuxWithReady(ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }})
	rw := httptest.NewRecorder()
	healthy.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}

	failing := NewBaseMuxWithReady(ReadyCheck{Name: "kafka", Check: func(context.Context) error { return errors.New("down") }})
	rw = httptest.NewRecorder()
	failing.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "kafka: down") {
		t.Fatalf("unexpected body %q", rw.Body.String())
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG").String() != "DEBUG" {
		t.Fatal("expected debug level")
	}
	if parseLevel("nonsense").String() != "INFO" {
		t.Fatal("expected info fallback")
	}
}
