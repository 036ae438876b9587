package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultIntervalMinutes is the slot step used when a day does not configure one.
const DefaultIntervalMinutes = 15

type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type DaySchedule struct {
	Enabled         bool         `json:"enabled"`
	Windows         []TimeWindow `json:"windows"`
	IntervalMinutes int          `json:"interval_minutes,omitempty"`
}

func (d DaySchedule) Interval() int {
	if d.IntervalMinutes <= 0 {
		return DefaultIntervalMinutes
	}
	return d.IntervalMinutes
}

type TemplateKind string

const (
	TemplateWeekly TemplateKind = "weekly"
	TemplateDated  TemplateKind = "dated"
)

// Template is either a weekly schedule keyed by lowercase weekday name or a dated schedule
// keyed by "YYYY-MM-DD". Kind selects which map is meaningful.
type Template struct {
	Kind  TemplateKind           `json:"kind"`
	Days  map[string]DaySchedule `json:"days,omitempty"`
	Dates map[string]DaySchedule `json:"dates,omitempty"`
}

func (t *Template) UnmarshalJSON(b []byte) error {
	type raw Template
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*t = Template(r)
	return t.validateShape()
}

func (t Template) validateShape() error {
	switch t.Kind {
	case TemplateWeekly:
		if len(t.Dates) > 0 {
			return fmt.Errorf("%w: weekly template cannot carry dates", ErrInvalidArgument)
		}
		for day := range t.Days {
			if _, ok := weekdayNames[day]; !ok {
				return fmt.Errorf("%w: unknown weekday %q", ErrInvalidArgument, day)
			}
		}
	case TemplateDated:
		if len(t.Days) > 0 {
			return fmt.Errorf("%w: dated template cannot carry weekdays", ErrInvalidArgument)
		}
		for date := range t.Dates {
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return fmt.Errorf("%w: bad template date %q", ErrInvalidArgument, date)
			}
		}
	default:
		return fmt.Errorf("%w: unknown template kind %q", ErrInvalidArgument, t.Kind)
	}
	return nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func WeekdayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}

type Availability struct {
	BusinessID string     `json:"business_id"`
	Templates  []Template `json:"templates"`
}

// ScheduleFor picks the day's schedule. A dated entry for date wins over any weekly entry.
func (a Availability) ScheduleFor(date string, weekday time.Weekday) (DaySchedule, bool) {
	for _, t := range a.Templates {
		if t.Kind != TemplateDated {
			continue
		}
		if d, ok := t.Dates[date]; ok {
			return d, true
		}
	}
	key := WeekdayKey(weekday)
	for _, t := range a.Templates {
		if t.Kind != TemplateWeekly {
			continue
		}
		if d, ok := t.Days[key]; ok {
			return d, true
		}
	}
	return DaySchedule{}, false
}

type ExceptionKind string

const (
	ExceptionBlocked ExceptionKind = "blocked"
	ExceptionCustom  ExceptionKind = "custom"
)

// Exception overrides a single date: blocked closes it, custom replaces its windows.
type Exception struct {
	BusinessID string        `json:"business_id"`
	Date       string        `json:"date"`
	Kind       ExceptionKind `json:"kind"`
	Reason     string        `json:"reason,omitempty"`
	Windows    []TimeWindow  `json:"windows,omitempty"`
}
