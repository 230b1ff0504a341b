package model

import (
	"sort"
	"time"
)

// SystemActor is recorded as the actor of rule-triggered changes.
const SystemActor = "system"

// TimeWindow is a closed interval [Start, End].
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WindowEndingAt returns the window of length d that ends at asOf.
func WindowEndingAt(asOf time.Time, d time.Duration) TimeWindow {
	return TimeWindow{Start: asOf.Add(-d), End: asOf}
}

// Contains reports whether t lies inside the window, bounds included.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
