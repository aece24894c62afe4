// Command triangulate prints the location and movement report for one device.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/grpck/sarscan/internal/analysis"
	"github.com/grpck/sarscan/internal/config"
	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/units"
)

func main() {
	var dbPath string
	var configPath string
	var speedUnits string
	var asJSON bool

	flag.StringVar(&dbPath, "db", "sightings.db", "path to sqlite db")
	flag.StringVar(&configPath, "config", "", "path to analysis config JSON")
	flag.StringVar(&speedUnits, "units", units.MPS, "speed units (mps, mph, kmph, kph)")
	flag.BoolVar(&asJSON, "json", false, "emit the report as JSON")
	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("usage: triangulate [flags] <mac>")
	}
	mac := flag.Arg(0)

	cfg := &config.AnalysisConfig{}
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(); err != nil {
		log.Fatalf("migrate db: %v", err)
	}

	tri := analysis.NewTriangulator(database, cfg)
	report, err := tri.Triangulate(context.Background(), mac, speedUnits)
	if errors.Is(err, db.ErrDeviceNotFound) {
		log.Fatalf("device %s not found", mac)
	}
	if err != nil {
		log.Fatalf("triangulation failed: %v", err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("encode report: %v", err)
		}
		return
	}
	printReport(report)
}

func printReport(r *analysis.TriangulationReport) {
	fmt.Printf("device %s [%s]", r.MAC, r.Kind)
	if r.Name != nil {
		fmt.Printf(" %q", *r.Name)
	}
	fmt.Println()
	if r.Vendor != nil {
		fmt.Printf("vendor: %s\n", *r.Vendor)
	}
	if len(r.SSIDs) > 0 {
		fmt.Printf("ssids: %v\n", r.SSIDs)
	}
	fmt.Printf("confidence: %d\n", r.Confidence)
	fmt.Printf("observed: %s -> %s", r.FirstSeenStr, r.LastSeenStr)
	if r.ObservationStr != "" {
		fmt.Printf(" (%s)", r.ObservationStr)
	}
	fmt.Println()
	fmt.Printf("sightings: %d total, %d with GPS\n", r.TotalSightings, r.SightingsWithLocation)

	m := r.Movement
	fmt.Printf("movement: %s (confidence %d)\n", m.Status, m.Confidence)
	if m.GPSSightings > 0 {
		fmt.Printf("  distance %.0f m, area %.0f sq m, avg %.2f m/s, max %.2f m/s\n",
			m.TotalDistanceM, m.AreaSqM, m.AvgSpeedMps, m.MaxSpeedMps)
	}

	if r.EstimatedLocation != nil {
		fmt.Printf("estimated location: %.6f, %.6f\n", r.EstimatedLocation.Lat, r.EstimatedLocation.Lon)
	}

	for i, c := range r.Clusters {
		fmt.Printf("cluster %d: %.6f, %.6f (%d sightings, %s -> %s)\n",
			i+1, c.CenterLat, c.CenterLon, c.SightingCount, c.FirstSeenStr, c.LastSeenStr)
	}
	for _, seg := range r.Segments {
		fmt.Printf("  hop %.0f m at %.2f %s\n", seg.DistanceMeters, seg.Speed, seg.SpeedUnits)
	}
}
