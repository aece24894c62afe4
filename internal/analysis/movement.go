package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/geo"
)

// Movement classification statuses.
const (
	StatusStationary   = "stationary"
	StatusMoving       = "moving"
	StatusUndetermined = "undetermined"
)

// Stationary thresholds. A device is stationary only when all three hold.
const (
	stationaryMaxDistanceM = 100.0
	stationaryMaxAreaSqM   = 2500.0
	stationaryMaxSpeedMps  = 0.3
)

// MovementAssessment summarizes whether a device stayed put or travelled
// across its GPS sightings.
type MovementAssessment struct {
	Status         string  `json:"status"`
	Confidence     int     `json:"confidence"`
	TotalDistanceM float64 `json:"total_distance_m"`
	AreaSqM        float64 `json:"area_sq_m"`
	AvgSpeedMps    float64 `json:"avg_speed_mps"`
	MaxSpeedMps    float64 `json:"max_speed_mps"`
	GPSSightings   int     `json:"gps_sightings"`
}

// ClassifyMovement evaluates the device's GPS trail. Total distance sums the
// haversine legs between consecutive GPS sightings; average speed is total
// distance over the full trail duration. With no GPS data the status is
// undetermined; confidence grows with the number of GPS points and stays
// below 50 when fewer than three are available.
func ClassifyMovement(sightings []db.Sighting) MovementAssessment {
	var points []geo.Point
	var located []db.Sighting
	for _, s := range sightings {
		if s.HasLocation() {
			located = append(located, s)
			points = append(points, geo.Point{Lat: *s.Lat, Lon: *s.Lon})
		}
	}

	m := MovementAssessment{GPSSightings: len(located)}
	if len(located) == 0 {
		m.Status = StatusUndetermined
		return m
	}

	for i := 1; i < len(located); i++ {
		prev, cur := located[i-1], located[i]
		dist := geo.Haversine(*prev.Lat, *prev.Lon, *cur.Lat, *cur.Lon)
		m.TotalDistanceM += dist

		if dt := cur.Timestamp - prev.Timestamp; dt > 0 {
			if speed := dist / float64(dt); speed > m.MaxSpeedMps {
				m.MaxSpeedMps = speed
			}
		}
	}

	m.AreaSqM = geo.BoundingBoxArea(points)
	if dur := located[len(located)-1].Timestamp - located[0].Timestamp; dur > 0 {
		m.AvgSpeedMps = m.TotalDistanceM / float64(dur)
	}

	if m.TotalDistanceM < stationaryMaxDistanceM &&
		m.AreaSqM < stationaryMaxAreaSqM &&
		m.AvgSpeedMps < stationaryMaxSpeedMps {
		m.Status = StatusStationary
	} else {
		m.Status = StatusMoving
	}

	m.Confidence = movementConfidence(m, len(located))
	return m
}

// movementConfidence blends how decisively the distance, area and speed
// evidence points one way. The blend is clamped to [30,95] and then capped
// below 50 when fewer than three GPS points back it.
func movementConfidence(m MovementAssessment, gpsCount int) int {
	distScore := math.Min(100, m.TotalDistanceM/10)
	areaScore := math.Min(100, m.AreaSqM/100)
	speedScore := math.Min(100, m.AvgSpeedMps*20)
	blend := stat.Mean([]float64{distScore, areaScore, speedScore}, nil)

	conf := blend
	if m.Status == StatusStationary {
		conf = 100 - blend
	}
	conf = math.Min(95, math.Max(30, conf))

	if gpsCount < 3 {
		conf = math.Min(conf, float64(15*gpsCount))
	}
	return int(conf)
}
