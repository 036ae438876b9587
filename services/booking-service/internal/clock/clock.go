// Package clock holds the wall-clock arithmetic used by availability and booking.
//
// Times of day are "HH:MM" strings or minute offsets from midnight. Calendar dates are
// "YYYY-MM-DD" interpreted in the business's fixed UTC-3 zone.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidFormat = errors.New("invalid time format")

const (
	MinutesPerDay = 24 * 60
	DateLayout    = "2006-01-02"
)

// Location is the single business timezone (UTC-3, no daylight saving).
var Location = time.FixedZone("UTC-3", -3*60*60)

// TimeToMinutes parses "HH:MM" (hours 0-23, minutes 0-59).
func TimeToMinutes(t string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(t), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, t)
	}
	h, err := parseDigits(hh)
	if err != nil || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, t)
	}
	m, err := parseDigits(mm)
	if err != nil || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, t)
	}
	return h*60 + m, nil
}

func parseDigits(s string) (int, error) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, ErrInvalidFormat
		}
	}
	return strconv.Atoi(s)
}

// MinutesToTime formats a minute offset as zero padded "HH:MM". Only 0 <= m < 1440 is meaningful.
func MinutesToTime(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// AddDuration returns start+minutes. Results that cross midnight are rejected.
func AddDuration(start string, minutes int) (string, error) {
	s, err := TimeToMinutes(start)
	if err != nil {
		return "", err
	}
	if minutes < 0 || s+minutes >= MinutesPerDay {
		return "", fmt.Errorf("%w: %s + %d minutes leaves the day", ErrInvalidFormat, start, minutes)
	}
	return MinutesToTime(s + minutes), nil
}

// Overlaps reports whether [startA, endA) and [startB, endB) share an instant.
// Back-to-back intervals do not overlap.
func Overlaps(startA, endA, startB, endB int) bool {
	return startA < endB && endA > startB
}

// OverlapsClock is Overlaps on "HH:MM" strings.
func OverlapsClock(startA, endA, startB, endB string) (bool, error) {
	var mins [4]int
	for i, s := range []string{startA, endA, startB, endB} {
		m, err := TimeToMinutes(s)
		if err != nil {
			return false, err
		}
		mins[i] = m
	}
	return Overlaps(mins[0], mins[1], mins[2], mins[3]), nil
}

// ParseDate parses "YYYY-MM-DD" as midnight in Location.
func ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidFormat, date)
	}
	return d, nil
}

// Weekday is computed in Location, never in the caller's zone.
func Weekday(date string) (time.Weekday, error) {
	d, err := ParseDate(date)
	if err != nil {
		return 0, err
	}
	return d.Weekday(), nil
}

// Today returns the business-local calendar date of now.
func Today(now time.Time) string {
	return now.In(Location).Format(DateLayout)
}

// MinuteOfDay returns the business-local minute offset of now.
func MinuteOfDay(now time.Time) int {
	local := now.In(Location)
	return local.Hour()*60 + local.Minute()
}

// At converts a business-local date and "HH:MM" into an instant.
func At(date, hhmm string) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	m, err := TimeToMinutes(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(time.Duration(m) * time.Minute), nil
}
