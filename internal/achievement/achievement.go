// Package achievement scores a participant's activity against a challenge's weekly goal.
package achievement

import (
	"math"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

// Window describes the challenge being scored.
type Window struct {
	Start time.Time
	End   time.Time
	Goal  int
}

// TotalWeeks is ceil((end - start) / 7 days), zero for an empty or inverted window.
func (w Window) TotalWeeks() int {
	span := w.End.Sub(w.Start)
	if span <= 0 {
		return 0
	}
	return int((span + week - 1) / week)
}

// WeekOf returns the 1-based week index of t: floor(whole days since start / 7) + 1.
func (w Window) WeekOf(t time.Time) int {
	days := int(t.Sub(w.Start) / day)
	return days/7 + 1
}

// Percent returns the achievement percentage in [0, 100].
//
// Each week weighs 100/totalWeeks and each distinct local calendar day with
// activity adds weekWeight/goal, capped at goal days per week. The sum is
// rounded half up once and clamped to 100. Activities outside [start, end] or
// past the last week are ignored.
func Percent(w Window, activities []time.Time, loc *time.Location) int {
	if w.Goal <= 0 {
		return 0
	}
	total := w.TotalWeeks()
	if total == 0 {
		return 0
	}
	if loc == nil {
		loc = time.UTC
	}

	// index 0 unused; weeks are 1-based
	days := make([]map[string]struct{}, total+1)
	for _, t := range activities {
		if t.Before(w.Start) || t.After(w.End) {
			continue
		}
		wk := w.WeekOf(t)
		if wk < 1 || wk > total {
			continue
		}
		set := days[wk]
		if set == nil {
			set = make(map[string]struct{}, 7)
			days[wk] = set
		}
		set[t.In(loc).Format(time.DateOnly)] = struct{}{}
	}

	perUnit := (100.0 / float64(total)) / float64(w.Goal)
	sum := 0.0
	for wk := 1; wk <= total; wk++ {
		n := len(days[wk])
		if n > w.Goal {
			n = w.Goal
		}
		sum += float64(n) * perUnit
	}
	pct := int(math.Floor(sum + 0.5))
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Succeeded reports whether a percentage counts as a completed challenge.
func Succeeded(pct int) bool { return pct == 100 }
