// Package analysis implements the sighting analytics engine: session
// segmentation, confidence scoring, geospatial clustering, movement
// classification and triangulation reports. Everything here is pure
// computation over data read through the db package; the only persisted
// side effect is the explicit confidence apply step in Runner.
package analysis

import (
	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/monitoring"
)

// Session is a contiguous run of sightings separated from its neighbours by
// an inactivity gap. Sessions are derived in memory per run and never
// persisted.
type Session struct {
	Start     int64
	End       int64
	Sightings []db.Sighting
}

// Window is a session time range, used for counting which global sessions a
// device appeared in.
type Window struct {
	Start int64
	End   int64
}

// Contains reports whether ts falls inside the window (inclusive).
func (w Window) Contains(ts int64) bool {
	return ts >= w.Start && ts <= w.End
}

// SplitSessions partitions a device's chronologically ordered sightings into
// sessions: a gap of gapSeconds or more between consecutive sightings closes
// the current session. Sightings with non-positive or non-monotonic
// timestamps are dropped before segmentation and logged as skipped. Zero or
// one sighting yields exactly one (possibly empty) session.
func SplitSessions(sightings []db.Sighting, gapSeconds int64) []Session {
	clean := filterMonotonic(sightings)

	if len(clean) == 0 {
		return []Session{{}}
	}

	sessions := []Session{{
		Start:     clean[0].Timestamp,
		End:       clean[0].Timestamp,
		Sightings: []db.Sighting{clean[0]},
	}}

	for _, s := range clean[1:] {
		cur := &sessions[len(sessions)-1]
		if s.Timestamp-cur.End >= gapSeconds {
			sessions = append(sessions, Session{
				Start:     s.Timestamp,
				End:       s.Timestamp,
				Sightings: []db.Sighting{s},
			})
			continue
		}
		cur.End = s.Timestamp
		cur.Sightings = append(cur.Sightings, s)
	}

	return sessions
}

// SessionWindows segments a sorted timestamp stream (typically the whole
// dataset, all devices) into session windows using the same gap rule as
// SplitSessions. Used for the multi-session confidence factor.
func SessionWindows(timestamps []int64, gapSeconds int64) []Window {
	var windows []Window
	for _, ts := range timestamps {
		if ts <= 0 {
			continue
		}
		if len(windows) == 0 {
			windows = append(windows, Window{Start: ts, End: ts})
			continue
		}
		last := &windows[len(windows)-1]
		if ts < last.End {
			// Input is expected sorted; tolerate stragglers.
			continue
		}
		if ts-last.End >= gapSeconds {
			windows = append(windows, Window{Start: ts, End: ts})
			continue
		}
		last.End = ts
	}
	return windows
}

// CountSessionsWith returns how many windows contain at least one of the
// device's sightings.
func CountSessionsWith(windows []Window, sightings []db.Sighting) int {
	count := 0
	for _, w := range windows {
		for _, s := range sightings {
			if w.Contains(s.Timestamp) {
				count++
				break
			}
		}
	}
	return count
}

// filterMonotonic drops sightings with non-positive timestamps and sightings
// that step backwards in time relative to the previous kept one.
func filterMonotonic(sightings []db.Sighting) []db.Sighting {
	clean := make([]db.Sighting, 0, len(sightings))
	skipped := 0
	var prev int64
	for _, s := range sightings {
		if s.Timestamp <= 0 || s.Timestamp < prev {
			skipped++
			continue
		}
		prev = s.Timestamp
		clean = append(clean, s)
	}
	if skipped > 0 {
		monitoring.Logf("session segmentation: skipped %d malformed sightings", skipped)
	}
	return clean
}
