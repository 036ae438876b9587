package availability

import (
	"fmt"
	"slices"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/clock"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

// Interval is a half-open [Start, End) range in minutes from midnight.
type Interval struct {
	Start int
	End   int
}

func ParseWindow(w model.TimeWindow) (Interval, error) {
	start, err := clock.TimeToMinutes(w.Start)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: window start: %w", model.ErrInvalidArgument, err)
	}
	end, err := clock.TimeToMinutes(w.End)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: window end: %w", model.ErrInvalidArgument, err)
	}
	if end <= start {
		return Interval{}, fmt.Errorf("%w: window %s-%s is empty", model.ErrInvalidArgument, w.Start, w.End)
	}
	return Interval{Start: start, End: end}, nil
}

// Candidates walks every window in steps of interval and keeps the starts where a booking of
// duration still ends inside the window. The result is sorted and free of duplicates.
func Candidates(windows []model.TimeWindow, duration, interval int) ([]int, error) {
	if duration <= 0 || interval <= 0 {
		return nil, fmt.Errorf("%w: duration and interval must be positive", model.ErrInvalidArgument)
	}
	var out []int
	for _, w := range windows {
		iv, err := ParseWindow(w)
		if err != nil {
			return nil, err
		}
		for t := iv.Start; t+duration <= iv.End; t += interval {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Free drops the candidates whose [start, start+duration) intersects a busy interval or
// that start before notBefore.
func Free(candidates []int, duration int, busy []Interval, notBefore int) []int {
	var out []int
	for _, t := range candidates {
		if t < notBefore {
			continue
		}
		if !overlapsAny(t, t+duration, busy) {
			out = append(out, t)
		}
	}
	return out
}

func overlapsAny(start, end int, busy []Interval) bool {
	for _, b := range busy {
		if clock.Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// FitsWindow reports whether [start, start+duration) lies inside one of the windows.
func FitsWindow(windows []model.TimeWindow, start, duration int) (bool, error) {
	for _, w := range windows {
		iv, err := ParseWindow(w)
		if err != nil {
			return false, err
		}
		if start >= iv.Start && start+duration <= iv.End {
			return true, nil
		}
	}
	return false, nil
}

// BusyIntervals converts appointments into minute intervals. Records with malformed times are skipped.
func BusyIntervals(appts []model.Appointment) []Interval {
	out := make([]Interval, 0, len(appts))
	for _, a := range appts {
		start, err := clock.TimeToMinutes(a.StartTime)
		if err != nil {
			continue
		}
		end, err := clock.TimeToMinutes(a.EndTime)
		if err != nil {
			continue
		}
		out = append(out, Interval{Start: start, End: end})
	}
	return out
}

func FormatSlots(mins []int) []string {
	out := make([]string, 0, len(mins))
	for _, m := range mins {
		out = append(out, clock.MinutesToTime(m))
	}
	return out
}
