// Package config holds the analysis tuning parameters and the MAC whitelist.
// All thresholds are explicit configuration passed into the analysis
// components rather than ambient globals, so the engine stays pure and
// testable.
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grpck/sarscan/internal/monitoring"
)

// AnalysisConfig represents the root configuration for the confidence and
// triangulation analysis. Fields are pointers so a partial JSON file only
// overrides what it names; the Get* accessors supply defaults for the rest.
type AnalysisConfig struct {
	// Session segmentation
	SessionGapSeconds *int64 `json:"session_gap_seconds,omitempty"`

	// HQ reference point. Both nil means auto-detect from the earliest
	// GPS-tagged sighting in the dataset.
	HQLat     *float64 `json:"hq_lat,omitempty"`
	HQLon     *float64 `json:"hq_lon,omitempty"`
	HQRadiusM *float64 `json:"hq_radius_m,omitempty"`

	// Clustering
	ClusterRadiusM *float64 `json:"cluster_radius_m,omitempty"`

	// Confidence scoring
	StrongRSSIThreshold *float64 `json:"strong_rssi_dbm,omitempty"`
	BoundaryPercent     *float64 `json:"boundary_percent,omitempty"`
	ScanCadenceSeconds  *float64 `json:"scan_cadence_seconds,omitempty"`

	// Whitelist of team equipment MACs, one per line.
	WhitelistPath *string `json:"whitelist_path,omitempty"`
}

// Load reads an AnalysisConfig from a JSON file. Fields omitted from the file
// keep their defaults, so partial configs are safe.
func Load(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &AnalysisConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configured values are usable.
func (c *AnalysisConfig) Validate() error {
	if c.SessionGapSeconds != nil && *c.SessionGapSeconds <= 0 {
		return fmt.Errorf("session_gap_seconds must be positive, got %d", *c.SessionGapSeconds)
	}
	if c.HQRadiusM != nil && *c.HQRadiusM <= 0 {
		return fmt.Errorf("hq_radius_m must be positive, got %f", *c.HQRadiusM)
	}
	if c.ClusterRadiusM != nil && *c.ClusterRadiusM <= 0 {
		return fmt.Errorf("cluster_radius_m must be positive, got %f", *c.ClusterRadiusM)
	}
	if c.BoundaryPercent != nil && (*c.BoundaryPercent <= 0 || *c.BoundaryPercent >= 0.5) {
		return fmt.Errorf("boundary_percent must be in (0, 0.5), got %f", *c.BoundaryPercent)
	}
	if c.ScanCadenceSeconds != nil && *c.ScanCadenceSeconds <= 0 {
		return fmt.Errorf("scan_cadence_seconds must be positive, got %f", *c.ScanCadenceSeconds)
	}
	if (c.HQLat == nil) != (c.HQLon == nil) {
		return fmt.Errorf("hq_lat and hq_lon must be set together")
	}
	return nil
}

// GetSessionGapSeconds returns the inactivity gap that splits sessions.
func (c *AnalysisConfig) GetSessionGapSeconds() int64 {
	if c.SessionGapSeconds == nil {
		return 7200
	}
	return *c.SessionGapSeconds
}

// HQLocation returns the configured HQ point, or ok=false when the point
// should be auto-detected from the data.
func (c *AnalysisConfig) HQLocation() (lat, lon float64, ok bool) {
	if c.HQLat == nil || c.HQLon == nil {
		return 0, 0, false
	}
	return *c.HQLat, *c.HQLon, true
}

// GetHQRadiusM returns the HQ proximity radius in meters.
func (c *AnalysisConfig) GetHQRadiusM() float64 {
	if c.HQRadiusM == nil {
		return 100
	}
	return *c.HQRadiusM
}

// GetClusterRadiusM returns the location cluster radius in meters.
func (c *AnalysisConfig) GetClusterRadiusM() float64 {
	if c.ClusterRadiusM == nil {
		return 30
	}
	return *c.ClusterRadiusM
}

// GetStrongRSSIThreshold returns the dBm level above which a signal counts
// as strong.
func (c *AnalysisConfig) GetStrongRSSIThreshold() float64 {
	if c.StrongRSSIThreshold == nil {
		return -60
	}
	return *c.StrongRSSIThreshold
}

// GetBoundaryPercent returns the fraction of session duration treated as the
// early/late boundary windows.
func (c *AnalysisConfig) GetBoundaryPercent() float64 {
	if c.BoundaryPercent == nil {
		return 0.10
	}
	return *c.BoundaryPercent
}

// GetScanCadenceSeconds returns the expected seconds per scan cycle, used to
// derive the expected sighting count for the frequency factor.
func (c *AnalysisConfig) GetScanCadenceSeconds() float64 {
	if c.ScanCadenceSeconds == nil {
		return 30
	}
	return *c.ScanCadenceSeconds
}

// NormalizeMAC strips :, - and . separators and uppercases, so whitelist
// entries and stored addresses compare regardless of formatting.
func NormalizeMAC(mac string) string {
	r := strings.NewReplacer(":", "", "-", "", ".", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(mac)))
}

// Whitelist is a set of normalized MAC addresses excluded from scoring.
type Whitelist struct {
	macs map[string]struct{}
}

// NewWhitelist builds a whitelist from raw MAC strings.
func NewWhitelist(macs []string) *Whitelist {
	w := &Whitelist{macs: make(map[string]struct{}, len(macs))}
	for _, m := range macs {
		n := NormalizeMAC(m)
		if n != "" {
			w.macs[n] = struct{}{}
		}
	}
	return w
}

// LoadWhitelist reads the whitelist file configured in cfg. One MAC per line,
// blank lines and #-comments ignored. An unset path or unreadable file
// degrades to an empty whitelist rather than failing the run.
func LoadWhitelist(cfg *AnalysisConfig) *Whitelist {
	if cfg.WhitelistPath == nil || *cfg.WhitelistPath == "" {
		return NewWhitelist(nil)
	}

	f, err := os.Open(*cfg.WhitelistPath)
	if err != nil {
		monitoring.Logf("whitelist unreadable, treating as empty: %v", err)
		return NewWhitelist(nil)
	}
	defer f.Close()

	var macs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		macs = append(macs, line)
	}
	if err := scanner.Err(); err != nil {
		monitoring.Logf("whitelist read error, keeping %d entries: %v", len(macs), err)
	}

	return NewWhitelist(macs)
}

// IsWhitelisted reports whether mac (any separator format) is whitelisted.
func (w *Whitelist) IsWhitelisted(mac string) bool {
	_, ok := w.macs[NormalizeMAC(mac)]
	return ok
}

// Len returns the number of whitelist entries.
func (w *Whitelist) Len() int { return len(w.macs) }
