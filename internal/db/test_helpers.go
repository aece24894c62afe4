package db

import (
	"context"
	"path/filepath"
	"testing"
)

// Helper functions for creating pointer values
func strPtr(s string) *string    { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

// newTestDB opens a migrated sqlite database in a per-test temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	return db
}

// seedDevice creates a device row and returns its MAC.
func seedDevice(t *testing.T, db *DB, mac, kind string, firstSeen, lastSeen int64) {
	t.Helper()

	if err := db.UpsertDevice(context.Background(), mac, kind, nil, firstSeen); err != nil {
		t.Fatalf("UpsertDevice failed: %v", err)
	}
	if _, err := db.ExecContext(context.Background(),
		"UPDATE devices SET first_seen = ?, last_seen = ? WHERE mac = ?",
		firstSeen, lastSeen, mac); err != nil {
		t.Fatalf("failed to adjust seen window: %v", err)
	}
}

// seedSighting inserts one sighting; lat/lon/rssi may be nil.
func seedSighting(t *testing.T, db *DB, mac string, ts int64, lat, lon *float64, rssi *int) {
	t.Helper()

	err := db.AddSighting(context.Background(), Sighting{
		MAC:       mac,
		Timestamp: ts,
		Lat:       lat,
		Lon:       lon,
		RSSI:      rssi,
	})
	if err != nil {
		t.Fatalf("AddSighting failed: %v", err)
	}
}
