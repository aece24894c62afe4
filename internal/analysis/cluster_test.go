package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/geo"
)

// Five sightings scattered within a few meters of one spot collapse into a
// single cluster centered on it.
func TestClusterSightingsSingleTightCluster(t *testing.T) {
	t.Parallel()

	sightings := []db.Sighting{
		located(1000, 52.00000, 21.00000, -60),
		located(1030, 52.00005, 21.00005, -60),
		located(1060, 51.99995, 20.99995, -60),
		located(1090, 52.00008, 21.00000, -60),
		located(1120, 52.00000, 21.00008, -60),
	}

	clusters := ClusterSightings(sightings, 30)
	require.Len(t, clusters, 1)

	c := clusters[0]
	assert.Equal(t, 5, c.Count())
	assert.InDelta(t, 52.0, c.CenterLat, 0.0005)
	assert.InDelta(t, 21.0, c.CenterLon, 0.0005)
	assert.Equal(t, int64(1000), c.FirstSeen)
	assert.Equal(t, int64(1120), c.LastSeen)
	require.NotNil(t, c.AvgRSSI)
	assert.InDelta(t, -60, *c.AvgRSSI, 0.01)
}

// Three sightings walking north ~11 m per step stay inside one cluster: the
// center drifts with each addition, keeping the next point in range.
func TestClusterSightingsLinearDriftStaysOneCluster(t *testing.T) {
	t.Parallel()

	sightings := []db.Sighting{
		located(1000, 52.0000, 21.0, -60),
		located(1060, 52.0001, 21.0, -60),
		located(1120, 52.0002, 21.0, -60),
	}

	clusters := ClusterSightings(sightings, 30)
	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].Count())
}

func TestClusterSightingsSplitsDistantPoints(t *testing.T) {
	t.Parallel()

	// ~111 m apart in latitude, well beyond the 30 m radius.
	sightings := []db.Sighting{
		located(1000, 52.000, 21.000, -60),
		located(1030, 52.001, 21.000, -60),
		located(1060, 52.000, 21.000, -60), // rejoins the first cluster
	}

	clusters := ClusterSightings(sightings, 30)
	require.Len(t, clusters, 2)
	assert.Equal(t, 2, clusters[0].Count())
	assert.Equal(t, 1, clusters[1].Count())
	assert.Less(t, clusters[0].FirstSeen, clusters[1].FirstSeen, "ordered by first sighting")
}

// Stronger signal pulls the weighted center toward that sighting.
func TestClusterSightingsRSSIWeightedCenter(t *testing.T) {
	t.Parallel()

	sightings := []db.Sighting{
		located(1000, 52.0000, 21.0, -90), // weight 10
		located(1030, 52.0002, 21.0, -40), // weight 60
	}

	clusters := ClusterSightings(sightings, 30)
	require.Len(t, clusters, 1)

	midpoint := 52.0001
	assert.Greater(t, clusters[0].CenterLat, midpoint, "center pulled toward the strong sighting")

	// weight 10 vs 60: center at 52.0 + 0.0002*60/70
	assert.InDelta(t, 52.0+0.0002*60.0/70.0, clusters[0].CenterLat, 1e-7)
}

func TestClusterSightingsIgnoresUnlocated(t *testing.T) {
	t.Parallel()

	sightings := []db.Sighting{
		sighting(1000, nil, nil, intPtr(-60)),
		sighting(1030, floatPtr(52.0), nil, nil), // partial coordinates
	}
	assert.Empty(t, ClusterSightings(sightings, 30))
}

func TestSightingWeight(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, sightingWeight(nil))
	assert.Equal(t, 1.0, sightingWeight(intPtr(-100)))
	assert.Equal(t, 1.0, sightingWeight(intPtr(-120)))
	assert.Equal(t, 40.0, sightingWeight(intPtr(-60)))
}

// The cluster center must stay inside the convex hull of its members.
func TestClusterCenterStaysNearMembers(t *testing.T) {
	t.Parallel()

	sightings := []db.Sighting{
		located(1000, 52.00000, 21.00000, -80),
		located(1030, 52.00010, 21.00010, -50),
		located(1060, 52.00005, 21.00020, -65),
	}

	clusters := ClusterSightings(sightings, 30)
	require.Len(t, clusters, 1)

	c := clusters[0]
	for _, s := range c.Sightings {
		d := geo.Haversine(c.CenterLat, c.CenterLon, *s.Lat, *s.Lon)
		assert.Less(t, d, 30.0)
	}
}
