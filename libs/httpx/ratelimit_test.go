package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
)

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	h := rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/public/queue/join", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		codes = append(codes, rw.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/public/queue/join", nil)
	other.RemoteAddr = "198.51.100.2:5555"
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, other)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected other client to pass, got %d", rw.Code)
	}
}

func TestRedisRateLimiter_Allow(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "rl:book")

	mock.ExpectEvalSha(redisFixedWindowScript.Hash(), []string{"rl:book:203.0.113.7"}, int64(60000)).SetVal(int64(1))
	mock.ExpectEvalSha(redisFixedWindowScript.Hash(), []string{"rl:book:203.0.113.7"}, int64(60000)).SetVal(int64(2))

	ok, err := rl.Allow(context.Background(), "203.0.113.7")
	if err != nil || !ok {
		t.Fatalf("expected first request allowed, got ok=%v err=%v", ok, err)
	}
	ok, err = rl.Allow(context.Background(), "203.0.113.7")
	if err != nil || ok {
		t.Fatalf("expected second request rejected, got ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRedisRateLimiter_FailOpen(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "rl")
	mock.ExpectEvalSha(redisFixedWindowScript.Hash(), []string{"rl:198.51.100.2"}, int64(60000)).SetErr(errors.New("connection refused"))

	h := rl.Middleware(nil, true)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:1234"
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected fail-open pass through, got %d", rw.Code)
	}
}
