package availability

import "time"

// DefaultDuration is the length every appointment occupies. Records carry no duration of
// their own, so existing appointments are always measured with this constant.
const DefaultDuration = 30 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

func Window(start time.Time, d time.Duration) Interval {
	return Interval{Start: start, End: start.Add(d)}
}

// Overlaps treats both intervals as half-open: [a.Start,a.End) and [b.Start,b.End).
// Adjacent intervals do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// AvailableSlots returns slot start times within [windowStart, windowEnd) where a booking of
// length duration would not overlap any of the busy intervals. Slots starting before now are skipped.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) || windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(Window(t, duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(candidate, b) {
			return true
		}
	}
	return false
}
