// Command report renders a static HTML dashboard for an operation database:
// a confidence histogram across all devices and a map-style scatter of GPS
// sightings coloured by the owning device's confidence. Useful for a quick
// visual sweep before drilling into individual devices.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/grpck/sarscan/internal/db"
)

func main() {
	var dbPath string
	var outPath string

	flag.StringVar(&dbPath, "db", "sightings.db", "path to sqlite db")
	flag.StringVar(&outPath, "out", "report.html", "output HTML file")
	flag.Parse()

	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := database.MigrateUp(); err != nil {
		log.Fatalf("migrate db: %v", err)
	}

	ctx := context.Background()
	devices, err := database.AllDevices(ctx)
	if err != nil {
		log.Fatalf("load devices: %v", err)
	}
	if len(devices) == 0 {
		log.Fatalf("no devices in %s", dbPath)
	}

	page := components.NewPage()
	page.SetPageTitle("Sighting Analysis Report")
	page.AddCharts(confidenceHistogram(devices))

	if scatter := sightingScatter(ctx, database, devices); scatter != nil {
		page.AddCharts(scatter)
	}

	f, err := os.Create(outPath)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("render report: %v", err)
	}
	fmt.Printf("wrote %s (%d devices)\n", outPath, len(devices))
}

func confidenceHistogram(devices []db.Device) *charts.Bar {
	// ten buckets of width ten, 0-9 .. 90-100
	buckets := make([]int, 10)
	for _, d := range devices {
		idx := d.Confidence / 10
		if idx > 9 {
			idx = 9
		}
		buckets[idx]++
	}

	labels := make([]string, 10)
	data := make([]opts.BarData, 10)
	for i := range buckets {
		hi := i*10 + 9
		if i == 9 {
			hi = 100
		}
		labels[i] = fmt.Sprintf("%d-%d", i*10, hi)
		data[i] = opts.BarData{Value: buckets[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Confidence Distribution",
			Subtitle: fmt.Sprintf("%d devices; low scores are worth a look", len(devices)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "confidence"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "devices"}),
	)
	bar.SetXAxis(labels).AddSeries("devices", data)
	return bar
}

func sightingScatter(ctx context.Context, database *db.DB, devices []db.Device) *charts.Scatter {
	var data []opts.ScatterData
	minLat, maxLat := 90.0, -90.0
	minLon, maxLon := 180.0, -180.0

	for _, d := range devices {
		sightings, err := database.SightingsForDevice(ctx, d.MAC, nil, nil)
		if err != nil {
			log.Fatalf("load sightings for %s: %v", d.MAC, err)
		}
		for _, s := range sightings {
			if !s.HasLocation() {
				continue
			}
			if *s.Lat < minLat {
				minLat = *s.Lat
			}
			if *s.Lat > maxLat {
				maxLat = *s.Lat
			}
			if *s.Lon < minLon {
				minLon = *s.Lon
			}
			if *s.Lon > maxLon {
				maxLon = *s.Lon
			}
			data = append(data, opts.ScatterData{
				Name:  d.MAC,
				Value: []interface{}{*s.Lon, *s.Lat, d.Confidence},
			})
		}
	}
	if len(data) == 0 {
		return nil
	}

	latPad := (maxLat - minLat) * 0.05
	lonPad := (maxLon - minLon) * 0.05
	if latPad == 0 {
		latPad = 0.001
	}
	if lonPad == 0 {
		lonPad = 0.001
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "GPS Sightings",
			Subtitle: fmt.Sprintf("%d located sightings, coloured by device confidence", len(data)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minLon - lonPad, Max: maxLon + lonPad, Name: "lon"}),
		charts.WithYAxisOpts(opts.YAxis{Min: minLat - latPad, Max: maxLat + latPad, Name: "lat"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        100,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#d73027", "#fee08b", "#1a9850"}},
		}),
	)
	scatter.AddSeries("sightings", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	return scatter
}
