package analysis

import (
	"gonum.org/v1/gonum/stat"

	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/geo"
)

// LocationCluster groups nearby GPS sightings around a signal-weighted
// center. Stronger signal means the scanner was closer to the device, so
// strong sightings pull the center harder.
type LocationCluster struct {
	CenterLat float64
	CenterLon float64
	Sightings []db.Sighting
	FirstSeen int64
	LastSeen  int64
	AvgRSSI   *float64

	weightSum   float64
	latWeighted float64
	lonWeighted float64
}

// Count returns the number of sightings in the cluster.
func (c *LocationCluster) Count() int { return len(c.Sightings) }

// sightingWeight maps RSSI to a positive center weight. An RSSI of -100 dBm
// or below (or a missing reading) counts as 1.
func sightingWeight(rssi *int) float64 {
	if rssi == nil {
		return 1
	}
	w := float64(*rssi) + 100
	if w < 1 {
		return 1
	}
	return w
}

// ClusterSightings runs a single chronological pass over the GPS sightings,
// assigning each to the nearest existing cluster within radiusM or seeding a
// new one. Centers drift as members join, so assignment is order-dependent;
// processing is strictly by timestamp to keep results reproducible. Clusters
// come back ordered by first-sighting time.
func ClusterSightings(sightings []db.Sighting, radiusM float64) []*LocationCluster {
	var clusters []*LocationCluster

	for _, s := range sightings {
		if !s.HasLocation() {
			continue
		}

		var best *LocationCluster
		bestDist := radiusM
		for _, c := range clusters {
			d := geo.Haversine(*s.Lat, *s.Lon, c.CenterLat, c.CenterLon)
			if d <= bestDist {
				best = c
				bestDist = d
			}
		}

		if best == nil {
			best = &LocationCluster{FirstSeen: s.Timestamp}
			clusters = append(clusters, best)
		}
		best.absorb(s)
	}

	for _, c := range clusters {
		c.finalize()
	}
	return clusters
}

func (c *LocationCluster) absorb(s db.Sighting) {
	w := sightingWeight(s.RSSI)
	c.weightSum += w
	c.latWeighted += *s.Lat * w
	c.lonWeighted += *s.Lon * w
	c.CenterLat = c.latWeighted / c.weightSum
	c.CenterLon = c.lonWeighted / c.weightSum

	if len(c.Sightings) == 0 || s.Timestamp < c.FirstSeen {
		c.FirstSeen = s.Timestamp
	}
	if s.Timestamp > c.LastSeen {
		c.LastSeen = s.Timestamp
	}
	c.Sightings = append(c.Sightings, s)
}

func (c *LocationCluster) finalize() {
	var values []float64
	for _, s := range c.Sightings {
		if s.RSSI != nil {
			values = append(values, float64(*s.RSSI))
		}
	}
	if len(values) > 0 {
		avg := stat.Mean(values, nil)
		c.AvgRSSI = &avg
	}
}
