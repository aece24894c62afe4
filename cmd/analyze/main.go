// Command analyze runs a confidence analysis pass from the terminal: preview
// the proposed scores, then apply them after confirmation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/grpck/sarscan/internal/analysis"
	"github.com/grpck/sarscan/internal/config"
	"github.com/grpck/sarscan/internal/db"
)

func main() {
	var dbPath string
	var configPath string
	var dryRun bool
	var yes bool
	var verbose bool

	flag.StringVar(&dbPath, "db", "sightings.db", "path to sqlite db")
	flag.StringVar(&configPath, "config", "", "path to analysis config JSON")
	flag.BoolVar(&dryRun, "dry-run", false, "preview only, never write")
	flag.BoolVar(&yes, "yes", false, "apply without asking")
	flag.BoolVar(&verbose, "verbose", false, "print the factor ledger for every device")
	flag.Parse()

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

	ctx := context.Background()
	runner := analysis.NewRunner(database, cfg, config.LoadWhitelist(cfg))

	preview, err := runner.Preview(ctx)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}
	printPreview(preview, verbose)

	if dryRun {
		fmt.Println("\ndry run, nothing written")
		return
	}
	if preview.Summary.Changed == 0 {
		fmt.Println("\nno scores changed, nothing to apply")
		return
	}
	if !yes && !confirm(fmt.Sprintf("apply %d confidence updates?", preview.Summary.Changed)) {
		fmt.Println("aborted")
		return
	}

	applied, err := runner.Apply(ctx)
	if err != nil {
		log.Fatalf("apply failed: %v", err)
	}
	fmt.Printf("applied %d updates (run %s)\n", applied.DevicesUpdated, applied.Preview.RunID)
}

func printPreview(preview *analysis.PreviewResult, verbose bool) {
	s := preview.Summary
	fmt.Printf("run %s\n", preview.RunID)
	fmt.Printf("devices: %d (%d bt, %d wifi, %d whitelisted)\n",
		s.TotalDevices, s.BTDevices, s.WiFiDevices, s.Whitelisted)
	fmt.Printf("scores:  median %.0f, p85 %.0f, %d high (>=70), %d low (<=30)\n",
		s.MedianScore, s.P85Score, s.HighConfidence, s.LowConfidence)
	if preview.HQ != nil {
		src := "configured"
		if preview.HQDetected {
			src = "detected from earliest GPS sighting"
		}
		fmt.Printf("hq:      %.5f, %.5f (%s)\n", preview.HQ.Lat, preview.HQ.Lon, src)
	}

	fmt.Println()
	for _, d := range preview.Devices {
		if d.NewConfidence == d.OldConfidence && !verbose {
			continue
		}
		name := ""
		if d.Name != nil {
			name = " " + *d.Name
		}
		fmt.Printf("  %s [%s]%s  %d -> %d\n", d.MAC, d.Kind, name, d.OldConfidence, d.NewConfidence)
		if verbose {
			for _, f := range d.Factors {
				fmt.Printf("      %+d %s (%s)\n", f.Delta, f.Name, f.Reason)
			}
		}
	}
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
