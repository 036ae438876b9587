package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		owner  bool
		status int
		code   string
	}{
		{fmt.Errorf("%w: client_name is required", model.ErrInvalidArgument), false, http.StatusBadRequest, "invalid_argument"},
		{fmt.Errorf("%w: x", model.ErrQueueFull), false, http.StatusTooManyRequests, "queue_full"},
		{fmt.Errorf("%w: x", model.ErrLimitExceeded), false, http.StatusConflict, "limit_exceeded"},
		{fmt.Errorf("%w: x", model.ErrDuplicateDate), false, http.StatusConflict, "duplicate_date"},
		{fmt.Errorf("%w: x", model.ErrTransient), false, http.StatusServiceUnavailable, "busy"},
		{fmt.Errorf("%w: x", model.ErrUnauthorized), false, http.StatusForbidden, "not_your_turn"},
		{fmt.Errorf("%w: x", model.ErrUnauthorized), true, http.StatusForbidden, "forbidden"},
	}
	for _, tc := range cases {
		got, ok := classify(tc.err, tc.owner)
		if !ok || got.status != tc.status || got.code != tc.code {
			t.Fatalf("classify(%v, owner=%v) = %+v, want %d %s", tc.err, tc.owner, got, tc.status, tc.code)
		}
	}
	if _, ok := classify(fmt.Errorf("disk on fire"), false); ok {
		t.Fatal("unknown errors must not be classified")
	}
}
