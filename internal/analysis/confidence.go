package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/grpck/sarscan/internal/config"
	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/geo"
)

const baselineConfidence = 50

// Factor is one line of the scoring ledger: the signed delta a heuristic
// contributed and a short human-readable reason.
type Factor struct {
	Name   string `json:"name"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// ScoreResult is the outcome of scoring one device. NewConfidence is the
// proposed value; nothing is persisted until the caller applies the batch.
type ScoreResult struct {
	MAC           string   `json:"mac"`
	Kind          string   `json:"kind"`
	Name          *string  `json:"name,omitempty"`
	OldConfidence int      `json:"old_confidence"`
	NewConfidence int      `json:"new_confidence"`
	SightingCount int      `json:"sighting_count"`
	GPSSightings  int      `json:"gps_sightings"`
	AvgRSSI       *float64 `json:"avg_rssi,omitempty"`
	PresenceRatio float64  `json:"presence_ratio"`
	SessionCount  int      `json:"session_count"`
	Whitelisted   bool     `json:"whitelisted"`
	Factors       []Factor `json:"factors"`
}

// ScoreContext carries the per-run inputs shared by every device: the
// overall observation window, the global session windows, and the resolved
// HQ location (nil when no HQ is configured and none could be detected).
type ScoreContext struct {
	SessionStart int64
	SessionEnd   int64
	Windows      []Window
	HQ           *geo.Point
}

// Duration returns the overall observation window length in seconds.
func (sc ScoreContext) Duration() int64 {
	return sc.SessionEnd - sc.SessionStart
}

// Scorer computes device confidence scores. Confidence runs 0-100 where low
// means likely belongs to the search subject and high means likely ambient
// noise (staff phones, fixed infrastructure).
type Scorer struct {
	cfg       *config.AnalysisConfig
	whitelist *config.Whitelist
}

// NewScorer builds a Scorer. whitelist may be nil when no whitelist is
// configured.
func NewScorer(cfg *config.AnalysisConfig, whitelist *config.Whitelist) *Scorer {
	return &Scorer{cfg: cfg, whitelist: whitelist}
}

// Score evaluates one device against all heuristics and returns the proposed
// confidence with a full factor ledger. Whitelisted devices short-circuit to
// zero: the whitelist verdict is terminal and no other factor applies.
func (s *Scorer) Score(device db.Device, sightings []db.Sighting, sc ScoreContext) ScoreResult {
	result := ScoreResult{
		MAC:           device.MAC,
		Kind:          device.Kind,
		Name:          device.Name,
		OldConfidence: device.Confidence,
		SightingCount: len(sightings),
	}

	if device.Whitelisted || (s.whitelist != nil && s.whitelist.IsWhitelisted(device.MAC)) {
		result.Whitelisted = true
		result.NewConfidence = 0
		result.Factors = []Factor{{
			Name:   "whitelisted",
			Delta:  -baselineConfidence,
			Reason: "device is whitelisted, forced to minimum confidence",
		}}
		return result
	}

	score := baselineConfidence
	add := func(name string, delta int, reason string) {
		score += delta
		result.Factors = append(result.Factors, Factor{Name: name, Delta: delta, Reason: reason})
	}

	s.scorePresence(device, sc, &result, add)
	s.scoreBoundary(sightings, sc, add)
	s.scoreFrequency(sightings, sc, add)
	s.scoreSignal(sightings, &result, add)
	s.scoreHQ(sightings, sc, &result, add)
	s.scoreSessions(sightings, sc, &result, add)

	result.NewConfidence = clampScore(score)
	return result
}

// scorePresence: factor 1, fraction of the observation window the device was
// visible for. Persistent devices are almost certainly infrastructure.
func (s *Scorer) scorePresence(device db.Device, sc ScoreContext, result *ScoreResult, add func(string, int, string)) {
	duration := sc.Duration()
	if duration <= 0 {
		return
	}
	span := device.LastSeen - device.FirstSeen
	ratio := float64(span) / float64(duration)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	result.PresenceRatio = ratio

	switch {
	case ratio > 0.8:
		add("presence_ratio", -30, "present for most of the observation window")
	case ratio > 0.5:
		add("presence_ratio", -15, "present for over half the observation window")
	case ratio < 0.2:
		add("presence_ratio", +15, "brief appearance within the observation window")
	}
}

// scoreBoundary: factor 2, whether the device was already there when scanning
// started and still there when it ended. The branches are mutually exclusive
// and checked strongest-signal first.
func (s *Scorer) scoreBoundary(sightings []db.Sighting, sc ScoreContext, add func(string, int, string)) {
	duration := sc.Duration()
	if duration <= 0 || len(sightings) == 0 {
		return
	}
	boundary := int64(float64(duration) * s.cfg.GetBoundaryPercent())
	earlyEnd := sc.SessionStart + boundary
	lateStart := sc.SessionEnd - boundary

	var early, late, earlyStrong, lateStrong bool
	strong := s.cfg.GetStrongRSSIThreshold()
	for _, sg := range sightings {
		isStrong := sg.RSSI != nil && float64(*sg.RSSI) > strong
		if sg.Timestamp <= earlyEnd {
			early = true
			earlyStrong = earlyStrong || isStrong
		}
		if sg.Timestamp >= lateStart {
			late = true
			lateStrong = lateStrong || isStrong
		}
	}

	switch {
	case earlyStrong && lateStrong:
		add("boundary_presence", -25, "strong signal at both start and end of scanning")
	case early && late:
		add("boundary_presence", -10, "seen at both start and end of scanning")
	case !early && !late:
		add("boundary_presence", +25, "appeared only in the middle of scanning")
	case early:
		add("boundary_presence", +10, "seen only at the start of scanning")
	case late:
		add("boundary_presence", +10, "seen only at the end of scanning")
	}
}

// scoreFrequency: factor 3, sighting cadence relative to the expected scan
// rate. Skipped for very short windows where the ratio is meaningless.
func (s *Scorer) scoreFrequency(sightings []db.Sighting, sc ScoreContext, add func(string, int, string)) {
	duration := sc.Duration()
	if duration <= 60 {
		return
	}
	expected := float64(duration) / s.cfg.GetScanCadenceSeconds()
	if expected > 0 {
		rate := float64(len(sightings)) / expected
		if rate > 0.7 {
			add("sighting_rate", -15, "sighted on most scan cycles")
		}
	}
	if len(sightings) > 0 && len(sightings) <= 3 {
		add("sighting_rate", +10, "very few sightings overall")
	}
}

// scoreSignal: factor 4, average RSSI. Weak averages suggest a distant
// device, strong ones something close to the scanners the whole time.
func (s *Scorer) scoreSignal(sightings []db.Sighting, result *ScoreResult, add func(string, int, string)) {
	var values []float64
	for _, sg := range sightings {
		if sg.RSSI != nil {
			values = append(values, float64(*sg.RSSI))
		}
	}
	if len(values) == 0 {
		return
	}
	avg := stat.Mean(values, nil)
	result.AvgRSSI = &avg

	if avg < -80 {
		add("signal_strength", +5, "weak average signal, likely distant")
	} else if avg > -50 {
		add("signal_strength", -5, "strong average signal, likely nearby")
	}
}

// scoreHQ: factors 5 and 6, proximity to the staging location. Devices that
// never leave HQ are responder gear. Both factors need GPS sightings and a
// resolved HQ and are skipped otherwise.
func (s *Scorer) scoreHQ(sightings []db.Sighting, sc ScoreContext, result *ScoreResult, add func(string, int, string)) {
	if sc.HQ == nil {
		return
	}
	var distances []float64
	within := 0
	radius := s.cfg.GetHQRadiusM()
	for _, sg := range sightings {
		if !sg.HasLocation() {
			continue
		}
		d := geo.Haversine(*sg.Lat, *sg.Lon, sc.HQ.Lat, sc.HQ.Lon)
		distances = append(distances, d)
		if d <= radius {
			within++
		}
	}
	result.GPSSightings = len(distances)
	if len(distances) == 0 {
		return
	}

	frac := float64(within) / float64(len(distances))
	if frac > 0.9 {
		add("hq_proximity", -20, "almost all sightings within HQ radius")
	} else if frac < 0.2 {
		add("hq_proximity", +15, "rarely seen near HQ")
	}

	avg := stat.Mean(distances, nil)
	if avg > 500 {
		add("hq_distance", +10, "average position far from HQ")
	} else if avg < 50 {
		add("hq_distance", -10, "average position at HQ")
	}
}

// scoreSessions: factor 7, how many distinct global sessions the device
// appeared in. Reappearing across separate operations marks ambient devices.
func (s *Scorer) scoreSessions(sightings []db.Sighting, sc ScoreContext, result *ScoreResult, add func(string, int, string)) {
	count := CountSessionsWith(sc.Windows, sightings)
	result.SessionCount = count

	if count >= 3 {
		add("multi_session", -15, "seen across three or more sessions")
	} else if count == 2 {
		add("multi_session", -5, "seen across two sessions")
	}
}

func clampScore(score int) int {
	return int(math.Min(100, math.Max(0, float64(score))))
}
