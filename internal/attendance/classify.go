package attendance

import "time"

// DefaultLateThreshold is how long after the day's first check-in an arrival still counts as on time.
const DefaultLateThreshold = 15 * time.Minute

// Classified pairs an event with its punctuality.
type Classified struct {
	Event CheckInEvent
	Late  bool
}

// Baseline returns the earliest timestamp among events.
func Baseline(events []CheckInEvent) (time.Time, bool) {
	if len(events) == 0 {
		return time.Time{}, false
	}
	min := events[0].Timestamp
	for _, e := range events[1:] {
		if e.Timestamp.Before(min) {
			min = e.Timestamp
		}
	}
	return min, true
}

// Classify marks each event of one class-day late when it arrived strictly
// after baseline+threshold. Output order follows the input.
func Classify(events []CheckInEvent, threshold time.Duration) []Classified {
	base, ok := Baseline(events)
	if !ok {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultLateThreshold
	}
	cutoff := base.Add(threshold)
	out := make([]Classified, len(events))
	for i, e := range events {
		out[i] = Classified{Event: e, Late: e.Timestamp.After(cutoff)}
	}
	return out
}
