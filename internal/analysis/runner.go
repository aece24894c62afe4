package analysis

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/grpck/sarscan/internal/config"
	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/geo"
	"github.com/grpck/sarscan/internal/monitoring"
)

// Summary aggregates one analysis pass.
type Summary struct {
	TotalDevices   int     `json:"total_devices"`
	BTDevices      int     `json:"bt_devices"`
	WiFiDevices    int     `json:"wifi_devices"`
	Whitelisted    int     `json:"whitelisted"`
	Changed        int     `json:"changed"`
	HighConfidence int     `json:"high_confidence"` // proposed score >= 70
	LowConfidence  int     `json:"low_confidence"`  // proposed score <= 30
	MedianScore    float64 `json:"median_score"`
	P85Score       float64 `json:"p85_score"`
}

// PreviewResult is one full scoring pass over every device. Nothing is
// persisted; NewConfidence values are proposals until applied.
type PreviewResult struct {
	RunID        string        `json:"run_id"`
	StartedUnix  int64         `json:"started_unix"`
	SessionStart int64         `json:"session_start"`
	SessionEnd   int64         `json:"session_end"`
	HQ           *geo.Point    `json:"hq,omitempty"`
	HQDetected   bool          `json:"hq_detected"`
	Devices      []ScoreResult `json:"devices"`
	Summary      Summary       `json:"summary"`
}

// ApplyResult reports a persisted analysis pass.
type ApplyResult struct {
	Preview        *PreviewResult `json:"preview"`
	DevicesUpdated int            `json:"devices_updated"`
}

// Runner drives full analysis passes: it loads every device, scores them
// concurrently, and optionally applies the proposed scores in one
// transaction.
type Runner struct {
	DB        *db.DB
	Config    *config.AnalysisConfig
	Whitelist *config.Whitelist

	// Parallelism bounds the scoring goroutines; defaults to NumCPU.
	Parallelism int
}

// NewRunner builds a Runner with default parallelism.
func NewRunner(database *db.DB, cfg *config.AnalysisConfig, wl *config.Whitelist) *Runner {
	return &Runner{DB: database, Config: cfg, Whitelist: wl}
}

// Preview scores every device without persisting anything. An empty database
// yields an empty result, not an error. Cancellation is honoured between
// devices.
func (r *Runner) Preview(ctx context.Context) (*PreviewResult, error) {
	result := &PreviewResult{
		RunID:       uuid.NewString(),
		StartedUnix: time.Now().Unix(),
	}

	start, end, ok, err := r.DB.SessionWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session window: %w", err)
	}
	if !ok {
		monitoring.Logf("analysis %s: no sightings recorded, nothing to score", result.RunID)
		return result, nil
	}
	result.SessionStart = start
	result.SessionEnd = end

	devices, err := r.DB.AllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load devices: %w", err)
	}

	timestamps, err := r.DB.AllTimestamps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load timestamps: %w", err)
	}

	sc := ScoreContext{
		SessionStart: start,
		SessionEnd:   end,
		Windows:      SessionWindows(timestamps, r.Config.GetSessionGapSeconds()),
	}
	sc.HQ, result.HQDetected, err = r.resolveHQ(ctx)
	if err != nil {
		return nil, err
	}
	result.HQ = sc.HQ

	scored, err := r.scoreAll(ctx, devices, sc)
	if err != nil {
		return nil, err
	}
	result.Devices = scored
	result.Summary = summarize(scored)

	monitoring.Logf("analysis %s: scored %d devices (%d changed)",
		result.RunID, result.Summary.TotalDevices, result.Summary.Changed)
	return result, nil
}

// Apply runs a preview and persists every proposed score in one atomic
// batch, recording an audit row for the run.
func (r *Runner) Apply(ctx context.Context) (*ApplyResult, error) {
	preview, err := r.Preview(ctx)
	if err != nil {
		return nil, err
	}

	scores := make(map[string]int, len(preview.Devices))
	for _, d := range preview.Devices {
		if d.NewConfidence != d.OldConfidence {
			scores[d.MAC] = d.NewConfidence
		}
	}

	updated, err := r.DB.ApplyConfidenceUpdates(ctx, scores)
	if err != nil {
		return nil, fmt.Errorf("failed to apply confidence updates: %w", err)
	}

	err = r.DB.RecordAnalysisRun(ctx, db.AnalysisRun{
		RunID:           preview.RunID,
		StartedUnix:     preview.StartedUnix,
		Mode:            "apply",
		DevicesAnalyzed: len(preview.Devices),
		DevicesUpdated:  updated,
	})
	if err != nil {
		return nil, err
	}

	monitoring.Logf("analysis %s: applied %d confidence updates", preview.RunID, updated)
	return &ApplyResult{Preview: preview, DevicesUpdated: updated}, nil
}

// resolveHQ prefers the configured HQ location and falls back to the
// earliest GPS sighting in the dataset (scanning starts at the staging
// area). Returns nil when neither is available.
func (r *Runner) resolveHQ(ctx context.Context) (*geo.Point, bool, error) {
	if lat, lon, ok := r.Config.HQLocation(); ok {
		return &geo.Point{Lat: lat, Lon: lon}, false, nil
	}
	earliest, err := r.DB.EarliestLocatedSighting(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to detect HQ location: %w", err)
	}
	if earliest == nil {
		return nil, false, nil
	}
	return &geo.Point{Lat: *earliest.Lat, Lon: *earliest.Lon}, true, nil
}

// scoreAll fans devices out to a bounded worker pool. Each worker loads the
// device's sightings and scores it; results come back sorted by MAC so runs
// are reproducible.
func (r *Runner) scoreAll(ctx context.Context, devices []db.Device, sc ScoreContext) ([]ScoreResult, error) {
	workers := r.Parallelism
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(devices) {
		workers = len(devices)
	}
	if workers == 0 {
		return nil, nil
	}

	scorer := NewScorer(r.Config, r.Whitelist)
	jobs := make(chan db.Device)
	results := make([]ScoreResult, 0, len(devices))

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for device := range jobs {
				sightings, err := r.DB.SightingsForDevice(ctx, device.MAC, nil, nil)
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("failed to load sightings for %s: %w", device.MAC, err)
					}
					mu.Unlock()
					continue
				}
				scored := scorer.Score(device, sightings, sc)
				mu.Lock()
				results = append(results, scored)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, device := range devices {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- device:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(results, func(i, j int) bool { return results[i].MAC < results[j].MAC })
	return results, nil
}

func summarize(devices []ScoreResult) Summary {
	s := Summary{TotalDevices: len(devices)}
	scores := make([]float64, 0, len(devices))
	for _, d := range devices {
		switch d.Kind {
		case db.KindBluetooth:
			s.BTDevices++
		case db.KindWiFi:
			s.WiFiDevices++
		}
		if d.Whitelisted {
			s.Whitelisted++
		}
		if d.NewConfidence != d.OldConfidence {
			s.Changed++
		}
		if d.NewConfidence >= 70 {
			s.HighConfidence++
		}
		if d.NewConfidence <= 30 {
			s.LowConfidence++
		}
		scores = append(scores, float64(d.NewConfidence))
	}
	if len(scores) > 0 {
		sort.Float64s(scores)
		s.MedianScore = stat.Quantile(0.5, stat.Empirical, scores, nil)
		s.P85Score = stat.Quantile(0.85, stat.Empirical, scores, nil)
	}
	return s
}
