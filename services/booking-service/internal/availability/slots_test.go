package availability

import (
	"math/rand"
	"testing"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/clock"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

func TestCandidates_DurationFitGrid(t *testing.T) {
	windows := []model.TimeWindow{{Start: "09:00", End: "12:00"}}
	got, err := Candidates(windows, 60, 30)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	want := []string{"09:00", "09:30", "10:00", "10:30", "11:00"}
	assertSlots(t, FormatSlots(got), want)
}

func TestCandidates_MergesOverlappingWindows(t *testing.T) {
	windows := []model.TimeWindow{
		{Start: "14:00", End: "15:00"},
		{Start: "09:00", End: "10:00"},
		{Start: "09:30", End: "10:30"},
	}
	got, err := Candidates(windows, 30, 30)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	assertSlots(t, FormatSlots(got), []string{"09:00", "09:30", "10:00", "14:00", "14:30"})
}

func TestCandidates_RejectsBadWindow(t *testing.T) {
	if _, err := Candidates([]model.TimeWindow{{Start: "12:00", End: "09:00"}}, 30, 15); err == nil {
		t.Fatal("expected error for inverted window")
	}
	if _, err := Candidates([]model.TimeWindow{{Start: "9h", End: "12:00"}}, 30, 15); err == nil {
		t.Fatal("expected error for malformed window")
	}
}

func TestFree_PinnedScenario(t *testing.T) {
	windows := []model.TimeWindow{{Start: "09:00", End: "12:00"}}
	busy := []Interval{{Start: 600, End: 660}}

	for _, interval := range []int{30, 15} {
		cands, err := Candidates(windows, 60, interval)
		if err != nil {
			t.Fatalf("Candidates: %v", err)
		}
		assertSlots(t, FormatSlots(Free(cands, 60, busy, 0)), []string{"09:00", "11:00"})
	}
}

func TestFree_SkipsPast(t *testing.T) {
	cands, _ := Candidates([]model.TimeWindow{{Start: "09:00", End: "10:00"}}, 15, 15)
	// 09:31 local: 09:00, 09:15 and 09:30 are gone.
	assertSlots(t, FormatSlots(Free(cands, 15, nil, 9*60+31)), []string{"09:45"})
}

func TestFree_RandomizedMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		duration := 15 * (1 + rng.Intn(6))
		interval := []int{5, 10, 15, 20, 30, 60}[rng.Intn(6)]
		start := 6*60 + 15*rng.Intn(12)
		end := start + 30 + 15*rng.Intn(24)
		windows := []model.TimeWindow{{Start: clock.MinutesToTime(start), End: clock.MinutesToTime(end)}}

		var busy []Interval
		for n := rng.Intn(4); n > 0; n-- {
			bs := start + 5*rng.Intn((end-start)/5)
			busy = append(busy, Interval{Start: bs, End: bs + 15*(1+rng.Intn(4))})
		}

		cands, err := Candidates(windows, duration, interval)
		if err != nil {
			t.Fatalf("Candidates: %v", err)
		}
		got := Free(cands, duration, busy, 0)

		// Every minute of every returned slot must be inside the window and outside every busy range.
		for _, s := range got {
			if s < start || s+duration > end || (s-start)%interval != 0 {
				t.Fatalf("slot %s outside grid/window", clock.MinutesToTime(s))
			}
			for m := s; m < s+duration; m++ {
				for _, b := range busy {
					if m >= b.Start && m < b.End {
						t.Fatalf("slot %s collides with busy %d-%d", clock.MinutesToTime(s), b.Start, b.End)
					}
				}
			}
		}
		// And nothing free on the grid may be missing.
		want := 0
		for s := start; s+duration <= end; s += interval {
			if !overlapsAny(s, s+duration, busy) {
				want++
			}
		}
		if want != len(got) {
			t.Fatalf("iteration %d: expected %d free slots, got %d", iter, want, len(got))
		}
	}
}

func TestFitsWindow(t *testing.T) {
	windows := []model.TimeWindow{{Start: "09:00", End: "12:00"}, {Start: "14:00", End: "18:00"}}
	cases := []struct {
		start, duration int
		want            bool
	}{
		{9 * 60, 60, true},
		{11*60 + 30, 60, false},
		{13 * 60, 30, false},
		{17*60 + 30, 30, true},
	}
	for _, tc := range cases {
		got, err := FitsWindow(windows, tc.start, tc.duration)
		if err != nil {
			t.Fatalf("FitsWindow: %v", err)
		}
		if got != tc.want {
			t.Fatalf("FitsWindow(%s, %d) = %v, want %v", clock.MinutesToTime(tc.start), tc.duration, got, tc.want)
		}
	}
}

func assertSlots(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
