package engine

import (
	"fmt"
	"time"
)

// DefaultYears is the number of academic years loaded per run.
const DefaultYears = 3

// Window is the inclusive range of year keys a run processes.
type Window struct {
	First int
	Last  int
}

// LatestYear returns the most recent year key whose results can be
// published at now: the academic year 2024-25 has key 2024 and is released
// during 2025.
func LatestYear(now time.Time) int {
	return now.UTC().Year() - 1
}

// NewWindow returns the count years ending at latest. A zero latest means
// LatestYear(now); a non-positive count means DefaultYears.
func NewWindow(latest, count int, now time.Time) Window {
	if latest == 0 {
		latest = LatestYear(now)
	}
	if count <= 0 {
		count = DefaultYears
	}
	return Window{First: latest - count + 1, Last: latest}
}

// Years lists the window in ascending order.
func (w Window) Years() []int {
	if w.Last < w.First {
		return nil
	}
	out := make([]int, 0, w.Last-w.First+1)
	for y := w.First; y <= w.Last; y++ {
		out = append(out, y)
	}
	return out
}

// Validate rejects empty and implausible windows.
func (w Window) Validate() error {
	if w.Last < w.First {
		return fmt.Errorf("year window %d-%d is empty", w.First, w.Last)
	}
	if w.First < 2000 || w.Last > 9999 {
		return fmt.Errorf("year window %d-%d is out of range", w.First, w.Last)
	}
	return nil
}

func (w Window) String() string {
	if w.First == w.Last {
		return fmt.Sprint(w.First)
	}
	return fmt.Sprintf("%d-%d", w.First, w.Last)
}
