package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grpck/sarscan/internal/config"
	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/geo"
)

func factorDelta(t *testing.T, result ScoreResult, name string) (int, bool) {
	t.Helper()
	for _, f := range result.Factors {
		if f.Name == name {
			return f.Delta, true
		}
	}
	return 0, false
}

// A device present for the whole two hour window, strong at both boundaries
// and parked at HQ, picks up every infrastructure penalty and bottoms out
// at zero.
func TestScoreStaffPhoneAtHQ(t *testing.T) {
	t.Parallel()

	cfg := &config.AnalysisConfig{HQLat: floatPtr(52.0), HQLon: floatPtr(21.0)}
	scorer := NewScorer(cfg, nil)

	start, end := int64(1000), int64(1000+7200)
	var sightings []db.Sighting
	for i := 0; i < 50; i++ {
		ts := start + int64(i)*147
		if ts > end {
			ts = end
		}
		sightings = append(sightings, located(ts, 52.0, 21.0, -45))
	}

	sc := ScoreContext{
		SessionStart: start,
		SessionEnd:   end,
		Windows:      []Window{{Start: start, End: end}},
		HQ:           &geo.Point{Lat: 52.0, Lon: 21.0},
	}
	device := db.Device{MAC: "AA:BB:CC:DD:EE:01", Kind: db.KindBluetooth, FirstSeen: start, LastSeen: end, Confidence: 50}

	result := scorer.Score(device, sightings, sc)

	assert.Equal(t, 0, result.NewConfidence)
	assert.InDelta(t, 1.0, result.PresenceRatio, 0.001)

	delta, ok := factorDelta(t, result, "presence_ratio")
	require.True(t, ok)
	assert.Equal(t, -30, delta)

	delta, ok = factorDelta(t, result, "boundary_presence")
	require.True(t, ok)
	assert.Equal(t, -25, delta)

	delta, ok = factorDelta(t, result, "hq_proximity")
	require.True(t, ok)
	assert.Equal(t, -20, delta)

	delta, ok = factorDelta(t, result, "hq_distance")
	require.True(t, ok)
	assert.Equal(t, -10, delta)

	delta, ok = factorDelta(t, result, "signal_strength")
	require.True(t, ok)
	assert.Equal(t, -5, delta)

	_, ok = factorDelta(t, result, "multi_session")
	assert.False(t, ok, "single session contributes nothing")
}

// A device seen briefly mid-window, far from HQ, collects every bonus and
// clamps at 100.
func TestScoreBriefMidWindowDeviceFarFromHQ(t *testing.T) {
	t.Parallel()

	cfg := &config.AnalysisConfig{HQLat: floatPtr(52.0), HQLon: floatPtr(21.0)}
	scorer := NewScorer(cfg, nil)

	start, end := int64(1000), int64(1000+7200)
	var sightings []db.Sighting
	for i := 0; i < 4; i++ {
		// roughly 600 m north of HQ
		sightings = append(sightings, located(4000+int64(i)*300, 52.0054, 21.0, -70))
	}

	sc := ScoreContext{
		SessionStart: start,
		SessionEnd:   end,
		Windows:      []Window{{Start: start, End: end}},
		HQ:           &geo.Point{Lat: 52.0, Lon: 21.0},
	}
	device := db.Device{MAC: "AA:BB:CC:DD:EE:02", Kind: db.KindWiFi, FirstSeen: 4000, LastSeen: 4900, Confidence: 50}

	result := scorer.Score(device, sightings, sc)

	assert.Equal(t, 100, result.NewConfidence)

	delta, ok := factorDelta(t, result, "presence_ratio")
	require.True(t, ok)
	assert.Equal(t, +15, delta)

	delta, ok = factorDelta(t, result, "boundary_presence")
	require.True(t, ok)
	assert.Equal(t, +25, delta)

	delta, ok = factorDelta(t, result, "hq_proximity")
	require.True(t, ok)
	assert.Equal(t, +15, delta)

	delta, ok = factorDelta(t, result, "hq_distance")
	require.True(t, ok)
	assert.Equal(t, +10, delta)

	_, ok = factorDelta(t, result, "signal_strength")
	assert.False(t, ok, "-70 dBm average is in the neutral band")
}

func TestScoreWhitelistShortCircuits(t *testing.T) {
	t.Parallel()

	cfg := &config.AnalysisConfig{}
	wl := config.NewWhitelist([]string{"AA:BB:CC:DD:EE:03"})
	scorer := NewScorer(cfg, wl)

	// Inputs that would otherwise score high.
	sc := ScoreContext{SessionStart: 1000, SessionEnd: 8200}
	device := db.Device{MAC: "aa:bb:cc:dd:ee:03", Kind: db.KindBluetooth, FirstSeen: 4000, LastSeen: 4900, Confidence: 75}

	result := scorer.Score(device, []db.Sighting{sighting(4000, nil, nil, nil)}, sc)

	assert.True(t, result.Whitelisted)
	assert.Equal(t, 0, result.NewConfidence)
	require.Len(t, result.Factors, 1, "whitelist verdict is terminal")
	assert.Equal(t, "whitelisted", result.Factors[0].Name)
}

func TestScoreDeviceFlagInDatabaseAlsoWhitelists(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(&config.AnalysisConfig{}, nil)
	device := db.Device{MAC: "AA:BB:CC:DD:EE:04", Kind: db.KindBluetooth, Whitelisted: true, Confidence: 50}

	result := scorer.Score(device, nil, ScoreContext{SessionStart: 0, SessionEnd: 7200})
	assert.True(t, result.Whitelisted)
	assert.Equal(t, 0, result.NewConfidence)
}

func TestScoreFrequencyFactors(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(&config.AnalysisConfig{}, nil)
	start, end := int64(1000), int64(1000+600) // 10 minute window

	t.Run("sighted on most scan cycles", func(t *testing.T) {
		// 20 expected scans at 30s cadence; 18 sightings is a 0.9 rate.
		var sightings []db.Sighting
		for i := 0; i < 18; i++ {
			sightings = append(sightings, sighting(start+int64(i)*33, nil, nil, nil))
		}
		device := db.Device{MAC: "AA:BB:CC:DD:EE:05", FirstSeen: start, LastSeen: end}
		result := scorer.Score(device, sightings, ScoreContext{SessionStart: start, SessionEnd: end})

		delta, ok := factorDelta(t, result, "sighting_rate")
		require.True(t, ok)
		assert.Equal(t, -15, delta)
	})

	t.Run("very few sightings", func(t *testing.T) {
		sightings := []db.Sighting{sighting(start+100, nil, nil, nil), sighting(start+200, nil, nil, nil)}
		device := db.Device{MAC: "AA:BB:CC:DD:EE:06", FirstSeen: start + 100, LastSeen: start + 200}
		result := scorer.Score(device, sightings, ScoreContext{SessionStart: start, SessionEnd: end})

		delta, ok := factorDelta(t, result, "sighting_rate")
		require.True(t, ok)
		assert.Equal(t, +10, delta)
	})

	t.Run("short window skips the factor", func(t *testing.T) {
		sightings := []db.Sighting{sighting(start, nil, nil, nil)}
		device := db.Device{MAC: "AA:BB:CC:DD:EE:07", FirstSeen: start, LastSeen: start + 30}
		result := scorer.Score(device, sightings, ScoreContext{SessionStart: start, SessionEnd: start + 30})

		_, ok := factorDelta(t, result, "sighting_rate")
		assert.False(t, ok)
	})
}

func TestScoreMultiSessionFactor(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(&config.AnalysisConfig{}, nil)
	windows := []Window{
		{Start: 0, End: 1000},
		{Start: 10000, End: 11000},
		{Start: 20000, End: 21000},
	}

	device := db.Device{MAC: "AA:BB:CC:DD:EE:08", FirstSeen: 100, LastSeen: 20500}

	t.Run("three sessions", func(t *testing.T) {
		sightings := []db.Sighting{
			sighting(100, nil, nil, nil),
			sighting(10100, nil, nil, nil),
			sighting(20100, nil, nil, nil),
		}
		result := scorer.Score(device, sightings, ScoreContext{SessionStart: 0, SessionEnd: 21000, Windows: windows})
		assert.Equal(t, 3, result.SessionCount)

		delta, ok := factorDelta(t, result, "multi_session")
		require.True(t, ok)
		assert.Equal(t, -15, delta)
	})

	t.Run("two sessions", func(t *testing.T) {
		sightings := []db.Sighting{
			sighting(100, nil, nil, nil),
			sighting(10100, nil, nil, nil),
		}
		result := scorer.Score(device, sightings, ScoreContext{SessionStart: 0, SessionEnd: 21000, Windows: windows})

		delta, ok := factorDelta(t, result, "multi_session")
		require.True(t, ok)
		assert.Equal(t, -5, delta)
	})
}

func TestScoreSkipsHQFactorsWithoutHQ(t *testing.T) {
	t.Parallel()

	scorer := NewScorer(&config.AnalysisConfig{}, nil)
	device := db.Device{MAC: "AA:BB:CC:DD:EE:09", FirstSeen: 1000, LastSeen: 2000}
	sightings := []db.Sighting{located(1500, 52.0, 21.0, -70)}

	result := scorer.Score(device, sightings, ScoreContext{SessionStart: 0, SessionEnd: 7200})

	_, ok := factorDelta(t, result, "hq_proximity")
	assert.False(t, ok)
	_, ok = factorDelta(t, result, "hq_distance")
	assert.False(t, ok)
}

func TestScoreClampsToRange(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, clampScore(-40))
	assert.Equal(t, 100, clampScore(115))
	assert.Equal(t, 50, clampScore(50))
}
