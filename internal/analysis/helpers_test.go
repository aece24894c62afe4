package analysis

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/grpck/sarscan/internal/db"
	"github.com/grpck/sarscan/internal/timeutil"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

// sighting builds an in-memory sighting for the pure-computation tests.
func sighting(ts int64, lat, lon *float64, rssi *int) db.Sighting {
	return db.Sighting{MAC: "AA:BB:CC:DD:EE:FF", Timestamp: ts, Lat: lat, Lon: lon, RSSI: rssi}
}

func located(ts int64, lat, lon float64, rssi int) db.Sighting {
	return sighting(ts, &lat, &lon, &rssi)
}

// newAnalysisDB opens a migrated sqlite database for runner and report tests.
func newAnalysisDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.NewDB(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	return database
}

func seedDevice(t *testing.T, database *db.DB, mac, kind string, firstSeen, lastSeen int64) {
	t.Helper()

	ctx := context.Background()
	if err := database.UpsertDevice(ctx, mac, kind, nil, firstSeen); err != nil {
		t.Fatalf("UpsertDevice failed: %v", err)
	}
	if _, err := database.ExecContext(ctx,
		"UPDATE devices SET first_seen = ?, last_seen = ? WHERE mac = ?",
		firstSeen, lastSeen, mac); err != nil {
		t.Fatalf("failed to adjust seen window: %v", err)
	}
}

func newTestClock() *timeutil.MockClock {
	return timeutil.NewMockClock(time.Unix(1_700_000_000, 0))
}

func seedSighting(t *testing.T, database *db.DB, s db.Sighting) {
	t.Helper()

	if err := database.AddSighting(context.Background(), s); err != nil {
		t.Fatalf("AddSighting failed: %v", err)
	}
}
