package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/grpck/sarscan/internal/analysis"
	"github.com/grpck/sarscan/internal/api"
	"github.com/grpck/sarscan/internal/config"
	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/units"
)

var (
	listen           = flag.String("listen", ":8080", "Listen address")
	dbFile           = flag.String("db", "sightings.db", "Path to the sqlite database")
	configFile       = flag.String("config", "", "Path to the analysis config JSON (optional)")
	speedUnits       = flag.String("units", units.MPS, "Default speed units for reports (mps, mph, kmph, kph)")
	analysisInterval = flag.Duration("analysis-interval", 15*time.Minute, "How often to re-score devices (0 disables)")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("Invalid units %q; valid values: %v", *speedUnits, units.ValidUnits)
	}

	cfg := &config.AnalysisConfig{}
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	whitelist := config.LoadWhitelist(cfg)

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	runner := analysis.NewRunner(database, cfg, whitelist)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// periodic re-scoring so tablets in the field read fresh confidence values
	if *analysisInterval > 0 {
		worker := analysis.NewWorker(runner, *analysisInterval)
		worker.Start()
		defer worker.Stop()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (database backup etc.)
		database.AttachAdminRoutes(mux)

		apiServer := api.NewServer(database, cfg, runner, *speedUnits)
		mux.Handle("/", apiServer.ServeMux())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
}
