package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTemplateUnmarshalRejectsMixedShapes(t *testing.T) {
	var tpl Template
	err := json.Unmarshal([]byte(`{"kind":"weekly","dates":{"2026-01-25":{"enabled":true}}}`), &tpl)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	err = json.Unmarshal([]byte(`{"kind":"monthly"}`), &tpl)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for unknown kind, got %v", err)
	}
}

func TestScheduleForPrefersDatedEntry(t *testing.T) {
	raw := `{"templates":[
		{"kind":"weekly","days":{"sunday":{"enabled":true,"windows":[{"start":"09:00","end":"12:00"}]}}},
		{"kind":"dated","dates":{"2026-01-25":{"enabled":true,"windows":[{"start":"14:00","end":"16:00"}],"interval_minutes":30}}}
	]}`
	var av Availability
	if err := json.Unmarshal([]byte(raw), &av); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	day, ok := av.ScheduleFor("2026-01-25", time.Sunday)
	if !ok || day.Windows[0].Start != "14:00" || day.Interval() != 30 {
		t.Fatalf("expected dated schedule, got %+v", day)
	}
	day, ok = av.ScheduleFor("2026-02-01", time.Sunday)
	if !ok || day.Windows[0].Start != "09:00" || day.Interval() != DefaultIntervalMinutes {
		t.Fatalf("expected weekly schedule, got %+v", day)
	}
	if _, ok := av.ScheduleFor("2026-02-02", time.Monday); ok {
		t.Fatal("expected no schedule for monday")
	}
}

func TestAppointmentTransition(t *testing.T) {
	now := time.Date(2026, 1, 25, 12, 0, 0, 0, time.UTC)
	a := Appointment{ID: "a1", Status: StatusConfirmed}
	if err := a.Transition(StatusCancelled, now); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if a.CancelledAt == nil || a.CancelledBy != CancelledByOwner {
		t.Fatalf("cancel stamps missing: %+v", a)
	}
	if err := a.Transition(StatusExpired, now); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("terminal record moved: %v", err)
	}
	if !a.MarkNotified(NotifyCancelled) || a.MarkNotified(NotifyCancelled) {
		t.Fatal("MarkNotified should append exactly once")
	}
}
