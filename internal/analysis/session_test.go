package analysis

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grpck/sarscan/internal/db"
)

func TestSplitSessions(t *testing.T) {
	t.Parallel()

	gap := int64(7200)

	t.Run("empty input yields one empty session", func(t *testing.T) {
		sessions := SplitSessions(nil, gap)
		require.Len(t, sessions, 1)
		assert.Empty(t, sessions[0].Sightings)
	})

	t.Run("single sighting yields one session", func(t *testing.T) {
		sessions := SplitSessions([]db.Sighting{sighting(1000, nil, nil, nil)}, gap)
		require.Len(t, sessions, 1)
		assert.Equal(t, int64(1000), sessions[0].Start)
		assert.Equal(t, int64(1000), sessions[0].End)
	})

	t.Run("gap at threshold splits", func(t *testing.T) {
		sessions := SplitSessions([]db.Sighting{
			sighting(1000, nil, nil, nil),
			sighting(2000, nil, nil, nil),
			sighting(2000+gap, nil, nil, nil), // exactly the gap, new session
			sighting(2000+gap+30, nil, nil, nil),
		}, gap)
		require.Len(t, sessions, 2)
		assert.Equal(t, int64(1000), sessions[0].Start)
		assert.Equal(t, int64(2000), sessions[0].End)
		assert.Len(t, sessions[0].Sightings, 2)
		assert.Equal(t, int64(2000+gap), sessions[1].Start)
		assert.Equal(t, int64(2000+gap+30), sessions[1].End)
	})

	t.Run("gap just under threshold does not split", func(t *testing.T) {
		sessions := SplitSessions([]db.Sighting{
			sighting(1000, nil, nil, nil),
			sighting(1000+gap-1, nil, nil, nil),
		}, gap)
		require.Len(t, sessions, 1)
		assert.Len(t, sessions[0].Sightings, 2)
	})

	t.Run("malformed timestamps are dropped", func(t *testing.T) {
		sessions := SplitSessions([]db.Sighting{
			sighting(1000, nil, nil, nil),
			sighting(0, nil, nil, nil),   // non-positive
			sighting(500, nil, nil, nil), // steps backwards
			sighting(1100, nil, nil, nil),
		}, gap)
		require.Len(t, sessions, 1)
		assert.Len(t, sessions[0].Sightings, 2)
		assert.Equal(t, int64(1000), sessions[0].Start)
		assert.Equal(t, int64(1100), sessions[0].End)
	})
}

// Segmentation must partition its input: every kept sighting lands in exactly
// one session, in order.
func TestSplitSessionsPartition(t *testing.T) {
	t.Parallel()

	input := []db.Sighting{
		sighting(1000, nil, nil, intPtr(-60)),
		sighting(1030, nil, nil, nil),
		sighting(1000+7200, nil, nil, intPtr(-70)),
		sighting(1000+7200+30, nil, nil, nil),
		sighting(1000+2*7200+60, nil, nil, nil),
	}

	sessions := SplitSessions(input, 7200)
	require.Len(t, sessions, 3)

	var flattened []db.Sighting
	for _, s := range sessions {
		flattened = append(flattened, s.Sightings...)
	}
	if diff := cmp.Diff(input, flattened); diff != "" {
		t.Errorf("sessions do not partition input (-want +got):\n%s", diff)
	}
}

func TestSessionWindows(t *testing.T) {
	t.Parallel()

	windows := SessionWindows([]int64{100, 200, 300, 300 + 7200, 300 + 7200 + 60}, 7200)
	require.Len(t, windows, 2)
	assert.Equal(t, Window{Start: 100, End: 300}, windows[0])
	assert.Equal(t, Window{Start: 7500, End: 7560}, windows[1])

	assert.Empty(t, SessionWindows(nil, 7200))
}

func TestCountSessionsWith(t *testing.T) {
	t.Parallel()

	windows := []Window{{Start: 100, End: 300}, {Start: 7500, End: 7600}, {Start: 20000, End: 20100}}
	sightings := []db.Sighting{
		sighting(150, nil, nil, nil),
		sighting(250, nil, nil, nil), // same window, counted once
		sighting(7550, nil, nil, nil),
	}
	assert.Equal(t, 2, CountSessionsWith(windows, sightings))
	assert.Zero(t, CountSessionsWith(windows, nil))
}
