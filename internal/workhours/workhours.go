// Package workhours answers whether staff are on duty and how soon a reply can be expected.
package workhours

import (
	"fmt"
	"time"
)

type Estimate int

const (
	// EstimateFast means staff are on duty now.
	EstimateFast Estimate = iota
	// EstimateNextWindow means the answer will come after the next opening.
	EstimateNextWindow
)

// Schedule is a daily [Start, End) window of whole hours in Location.
type Schedule struct {
	Start    int
	End      int
	Location *time.Location
}

func New(start, end int, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return Schedule{Start: start, End: end, Location: loc}
}

func (s Schedule) loc() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Local converts now into the schedule's timezone.
func (s Schedule) Local(now time.Time) time.Time {
	return now.In(s.loc())
}

func (s Schedule) IsOpen(now time.Time) bool {
	h := s.Local(now).Hour()
	return s.Start <= h && h < s.End
}

func (s Schedule) Estimate(now time.Time) Estimate {
	if s.IsOpen(now) {
		return EstimateFast
	}
	return EstimateNextWindow
}

// NextOpening returns the start of the next window at or after now.
func (s Schedule) NextOpening(now time.Time) time.Time {
	local := s.Local(now)
	open := time.Date(local.Year(), local.Month(), local.Day(), s.Start, 0, 0, 0, s.loc())
	if !local.Before(open) {
		open = open.AddDate(0, 0, 1)
	}
	return open
}

// Window renders the window as "09:00 - 18:00".
func (s Schedule) Window() string {
	return fmt.Sprintf("%02d:00 - %02d:00", s.Start, s.End)
}
