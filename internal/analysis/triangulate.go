package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/grpck/sarscan/internal/config"
	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/geo"
	"github.com/grpck/sarscan/internal/units"
)

// ClusterSummary is the report view of one location cluster.
type ClusterSummary struct {
	CenterLat       float64  `json:"center_lat"`
	CenterLon       float64  `json:"center_lon"`
	SightingCount   int      `json:"sighting_count"`
	AvgRSSI         *float64 `json:"avg_rssi,omitempty"`
	FirstSeen       int64    `json:"first_seen"`
	FirstSeenStr    string   `json:"first_seen_str"`
	LastSeen        int64    `json:"last_seen"`
	LastSeenStr     string   `json:"last_seen_str"`
	DurationSeconds int64    `json:"duration_seconds"`
}

// MovementSegment describes the hop between two consecutive clusters.
type MovementSegment struct {
	FromLat        float64 `json:"from_lat"`
	FromLon        float64 `json:"from_lon"`
	ToLat          float64 `json:"to_lat"`
	ToLon          float64 `json:"to_lon"`
	StartTime      int64   `json:"start_time"`
	EndTime        int64   `json:"end_time"`
	DistanceMeters float64 `json:"distance_m"`
	Speed          float64 `json:"speed"`
	SpeedUnits     string  `json:"speed_units"`
}

// PathPoint is one GPS sighting on the device's raw trail.
type PathPoint struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timestamp   int64   `json:"timestamp"`
	TimeDisplay string  `json:"time_display"`
	RSSI        *int    `json:"rssi,omitempty"`
	SSID        *string `json:"ssid,omitempty"`
}

// TriangulationReport is the full per-device location and movement report.
type TriangulationReport struct {
	MAC                   string              `json:"mac"`
	Kind                  string              `json:"kind"`
	Name                  *string             `json:"name,omitempty"`
	Vendor                *string             `json:"vendor,omitempty"`
	Notes                 *string             `json:"notes,omitempty"`
	Confidence            int                 `json:"confidence"`
	SSIDs                 []string            `json:"ssids,omitempty"`
	FirstSeen             int64               `json:"first_seen"`
	FirstSeenStr          string              `json:"first_seen_str"`
	LastSeen              int64               `json:"last_seen"`
	LastSeenStr           string              `json:"last_seen_str"`
	ObservationSeconds    int64               `json:"observation_seconds"`
	ObservationStr        string              `json:"observation_str"`
	TotalSightings        int                 `json:"total_sightings"`
	SightingsWithLocation int                 `json:"sightings_with_location"`
	Movement              MovementAssessment  `json:"movement"`
	EstimatedLocation     *geo.Point          `json:"estimated_location,omitempty"`
	Clusters              []ClusterSummary    `json:"clusters"`
	Segments              []MovementSegment   `json:"segments"`
	Path                  []PathPoint         `json:"path"`
}

// Triangulator builds per-device location reports from stored sightings.
type Triangulator struct {
	db  *db.DB
	cfg *config.AnalysisConfig
}

// NewTriangulator wires a Triangulator to its store and config.
func NewTriangulator(database *db.DB, cfg *config.AnalysisConfig) *Triangulator {
	return &Triangulator{db: database, cfg: cfg}
}

// Triangulate builds the report for one device, with speeds converted to
// speedUnits (falls back to m/s when the unit is unknown). Returns
// db.ErrDeviceNotFound for MACs with no device record.
func (t *Triangulator) Triangulate(ctx context.Context, mac, speedUnits string) (*TriangulationReport, error) {
	if !units.IsValid(speedUnits) {
		speedUnits = units.MPS
	}

	device, err := t.db.Device(ctx, mac)
	if err != nil {
		return nil, err
	}
	sightings, err := t.db.SightingsForDevice(ctx, mac, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load sightings for %s: %w", mac, err)
	}

	report := &TriangulationReport{
		MAC:            device.MAC,
		Kind:           device.Kind,
		Name:           device.Name,
		Vendor:         device.Vendor,
		Notes:          device.Notes,
		Confidence:     device.Confidence,
		FirstSeen:      device.FirstSeen,
		FirstSeenStr:   formatTimestamp(device.FirstSeen),
		LastSeen:       device.LastSeen,
		LastSeenStr:    formatTimestamp(device.LastSeen),
		TotalSightings: len(sightings),
	}
	if span := device.LastSeen - device.FirstSeen; span > 0 {
		report.ObservationSeconds = span
		report.ObservationStr = units.FormatDuration(span)
	}

	if device.Kind == db.KindWiFi {
		ssids, err := t.db.SSIDsForDevice(ctx, mac)
		if err != nil {
			return nil, fmt.Errorf("failed to load ssids for %s: %w", mac, err)
		}
		report.SSIDs = ssids
	}

	for _, s := range sightings {
		if !s.HasLocation() {
			continue
		}
		report.SightingsWithLocation++
		report.Path = append(report.Path, PathPoint{
			Lat:         *s.Lat,
			Lon:         *s.Lon,
			Timestamp:   s.Timestamp,
			TimeDisplay: time.Unix(s.Timestamp, 0).UTC().Format("15:04:05"),
			RSSI:        s.RSSI,
			SSID:        s.SSID,
		})
	}

	report.Movement = ClassifyMovement(sightings)

	clusters := ClusterSightings(sightings, t.cfg.GetClusterRadiusM())
	for _, c := range clusters {
		report.Clusters = append(report.Clusters, ClusterSummary{
			CenterLat:       c.CenterLat,
			CenterLon:       c.CenterLon,
			SightingCount:   c.Count(),
			AvgRSSI:         c.AvgRSSI,
			FirstSeen:       c.FirstSeen,
			FirstSeenStr:    formatTimestamp(c.FirstSeen),
			LastSeen:        c.LastSeen,
			LastSeenStr:     formatTimestamp(c.LastSeen),
			DurationSeconds: c.LastSeen - c.FirstSeen,
		})
	}

	if primary := primaryCluster(clusters); primary != nil {
		report.EstimatedLocation = &geo.Point{Lat: primary.CenterLat, Lon: primary.CenterLon}
	}
	report.Segments = buildSegments(clusters, speedUnits)

	return report, nil
}

// primaryCluster picks the cluster with the most sightings, breaking ties by
// the most recent last sighting.
func primaryCluster(clusters []*LocationCluster) *LocationCluster {
	var best *LocationCluster
	for _, c := range clusters {
		if best == nil ||
			c.Count() > best.Count() ||
			(c.Count() == best.Count() && c.LastSeen > best.LastSeen) {
			best = c
		}
	}
	return best
}

// buildSegments derives hop distance and speed between consecutive cluster
// centers. A non-positive dwell gap is treated as one second so speed stays
// finite.
func buildSegments(clusters []*LocationCluster, speedUnits string) []MovementSegment {
	var segments []MovementSegment
	for i := 1; i < len(clusters); i++ {
		from, to := clusters[i-1], clusters[i]
		dist := geo.Haversine(from.CenterLat, from.CenterLon, to.CenterLat, to.CenterLon)
		dt := to.FirstSeen - from.LastSeen
		if dt <= 0 {
			dt = 1
		}
		segments = append(segments, MovementSegment{
			FromLat:        from.CenterLat,
			FromLon:        from.CenterLon,
			ToLat:          to.CenterLat,
			ToLon:          to.CenterLon,
			StartTime:      from.LastSeen,
			EndTime:        to.FirstSeen,
			DistanceMeters: dist,
			Speed:          units.ConvertSpeed(dist/float64(dt), speedUnits),
			SpeedUnits:     speedUnits,
		})
	}
	return segments
}

func formatTimestamp(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
}
