package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// DeviceKind distinguishes the two capture sources.
const (
	KindBluetooth = "bt"
	KindWiFi      = "wifi"
)

// Device is the aggregate identity the capture subsystem maintains per MAC.
// This engine mutates only Confidence.
type Device struct {
	MAC         string  `json:"mac"`
	Kind        string  `json:"kind"`
	FirstSeen   int64   `json:"first_seen"`
	LastSeen    int64   `json:"last_seen"`
	Name        *string `json:"name,omitempty"`
	Vendor      *string `json:"vendor,omitempty"`
	Confidence  int     `json:"confidence"`
	Whitelisted bool    `json:"whitelisted"`
	Notes       *string `json:"notes,omitempty"`
}

// Sighting is one immutable observation of a device. Lat/Lon and RSSI may be
// absent; this engine never mutates sightings.
type Sighting struct {
	ID        int64    `json:"id"`
	MAC       string   `json:"mac"`
	Timestamp int64    `json:"ts_unix"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	RSSI      *int     `json:"rssi,omitempty"`
	SSID      *string  `json:"ssid,omitempty"`
	Scanner   *string  `json:"scanner_name,omitempty"`
}

// HasLocation reports whether the sighting carries GPS coordinates.
func (s *Sighting) HasLocation() bool {
	return s.Lat != nil && s.Lon != nil
}

const sightingColumns = "id, mac, ts_unix, lat, lon, rssi, ssid, scanner_name"

func scanSighting(rows *sql.Rows) (Sighting, error) {
	var s Sighting
	var lat, lon sql.NullFloat64
	var rssi sql.NullInt64
	var ssid, scanner sql.NullString

	if err := rows.Scan(&s.ID, &s.MAC, &s.Timestamp, &lat, &lon, &rssi, &ssid, &scanner); err != nil {
		return Sighting{}, err
	}
	if lat.Valid && lon.Valid {
		s.Lat = &lat.Float64
		s.Lon = &lon.Float64
	}
	if rssi.Valid {
		v := int(rssi.Int64)
		s.RSSI = &v
	}
	if ssid.Valid {
		s.SSID = &ssid.String
	}
	if scanner.Valid {
		s.Scanner = &scanner.String
	}
	return s, nil
}

// SightingsForDevice returns the device's sightings ordered by timestamp
// ascending. since/until bound the window when non-nil (inclusive).
func (db *DB) SightingsForDevice(ctx context.Context, mac string, since, until *int64) ([]Sighting, error) {
	q := "SELECT " + sightingColumns + " FROM sightings WHERE mac = ? COLLATE NOCASE"
	args := []interface{}{mac}
	if since != nil {
		q += " AND ts_unix >= ?"
		args = append(args, *since)
	}
	if until != nil {
		q += " AND ts_unix <= ?"
		args = append(args, *until)
	}
	q += " ORDER BY ts_unix ASC"

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings for %s: %w", mac, err)
	}
	defer rows.Close()

	var sightings []Sighting
	for rows.Next() {
		s, err := scanSighting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		sightings = append(sightings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sightings, nil
}

func scanDevice(scan func(dest ...interface{}) error) (Device, error) {
	var d Device
	var name, vendor, notes sql.NullString
	var whitelisted int

	err := scan(&d.MAC, &d.Kind, &d.FirstSeen, &d.LastSeen, &name, &vendor, &d.Confidence, &whitelisted, &notes)
	if err != nil {
		return Device{}, err
	}
	if name.Valid {
		d.Name = &name.String
	}
	if vendor.Valid {
		d.Vendor = &vendor.String
	}
	if notes.Valid {
		d.Notes = &notes.String
	}
	d.Whitelisted = whitelisted != 0
	return d, nil
}

const deviceColumns = "mac, kind, first_seen, last_seen, name, vendor, confidence, whitelisted, notes"

// Device returns the record for mac, or ErrDeviceNotFound.
func (db *DB) Device(ctx context.Context, mac string) (*Device, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE mac = ? COLLATE NOCASE", mac)

	d, err := scanDevice(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get device %s: %w", mac, err)
	}
	return &d, nil
}

// AllDevices returns every known device ordered by MAC.
func (db *DB) AllDevices(ctx context.Context) ([]Device, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY mac")
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return devices, nil
}

// SessionWindow returns the earliest and latest sighting timestamps across
// the whole dataset. ok is false when there are no sightings.
func (db *DB) SessionWindow(ctx context.Context) (start, end int64, ok bool, err error) {
	var min, max sql.NullInt64
	err = db.QueryRowContext(ctx,
		"SELECT MIN(ts_unix), MAX(ts_unix) FROM sightings WHERE ts_unix IS NOT NULL").Scan(&min, &max)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to query session window: %w", err)
	}
	if !min.Valid || !max.Valid {
		return 0, 0, false, nil
	}
	return min.Int64, max.Int64, true, nil
}

// AllTimestamps returns every sighting timestamp in the dataset, ascending.
// Used for global session segmentation.
func (db *DB) AllTimestamps(ctx context.Context) ([]int64, error) {
	rows, err := db.QueryContext(ctx, "SELECT ts_unix FROM sightings ORDER BY ts_unix ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamps: %w", err)
	}
	defer rows.Close()

	var timestamps []int64
	for rows.Next() {
		var ts int64
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		timestamps = append(timestamps, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Defensive: the index should return sorted rows already.
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps, nil
}

// EarliestLocatedSighting returns the globally earliest GPS-tagged sighting,
// or nil when no sighting has coordinates. Used for HQ auto-detection.
func (db *DB) EarliestLocatedSighting(ctx context.Context) (*Sighting, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+sightingColumns+" FROM sightings WHERE lat IS NOT NULL AND lon IS NOT NULL ORDER BY ts_unix ASC LIMIT 1")
	if err != nil {
		return nil, fmt.Errorf("failed to query earliest located sighting: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	s, err := scanSighting(rows)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ApplyConfidenceUpdates writes the given mac→score mapping inside one
// transaction so a crash mid-apply leaves either all or none of the scores
// updated. Returns the number of device rows changed.
func (db *DB) ApplyConfidenceUpdates(ctx context.Context, scores map[string]int) (int, error) {
	if len(scores) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "UPDATE devices SET confidence = ? WHERE mac = ? COLLATE NOCASE")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare confidence update: %w", err)
	}
	defer stmt.Close()

	updated := 0
	for mac, score := range scores {
		res, err := stmt.ExecContext(ctx, score, mac)
		if err != nil {
			return 0, fmt.Errorf("failed to update confidence for %s: %w", mac, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit confidence updates: %w", err)
	}
	return updated, nil
}

// UpsertDevice inserts or refreshes a device record. This is the capture
// subsystem's write path, carried here for tests and companion tools.
func (db *DB) UpsertDevice(ctx context.Context, mac, kind string, name *string, now int64) error {
	if now == 0 {
		now = time.Now().Unix()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO devices(mac, kind, first_seen, last_seen, name)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(mac) DO UPDATE SET
		  last_seen = excluded.last_seen,
		  name = COALESCE(excluded.name, devices.name)
	`, mac, kind, now, now, name)
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", mac, err)
	}
	return nil
}

// AddSighting records one observation for a device.
func (db *DB) AddSighting(ctx context.Context, s Sighting) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sightings(mac, ts_unix, lat, lon, rssi, ssid, scanner_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.MAC, s.Timestamp, s.Lat, s.Lon, s.RSSI, s.SSID, s.Scanner)
	if err != nil {
		return fmt.Errorf("failed to add sighting for %s: %w", s.MAC, err)
	}
	return nil
}

// SetWhitelisted flips the whitelist flag on a device record.
func (db *DB) SetWhitelisted(ctx context.Context, mac string, whitelisted bool) error {
	flag := 0
	if whitelisted {
		flag = 1
	}
	res, err := db.ExecContext(ctx,
		"UPDATE devices SET whitelisted = ? WHERE mac = ? COLLATE NOCASE", flag, mac)
	if err != nil {
		return fmt.Errorf("failed to set whitelist flag for %s: %w", mac, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// CountDevices returns per-kind device counts.
func (db *DB) CountDevices(ctx context.Context) (bt, wifi int, err error) {
	rows, err := db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM devices GROUP BY kind")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count devices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return 0, 0, err
		}
		switch kind {
		case KindBluetooth:
			bt = count
		case KindWiFi:
			wifi = count
		}
	}
	return bt, wifi, rows.Err()
}

// CountSightings returns the total number of stored sightings.
func (db *DB) CountSightings(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sightings").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sightings: %w", err)
	}
	return n, nil
}

// SSIDsForDevice returns the distinct SSIDs a WiFi device probed for.
func (db *DB) SSIDsForDevice(ctx context.Context, mac string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT DISTINCT ssid FROM sightings WHERE mac = ? COLLATE NOCASE AND ssid IS NOT NULL ORDER BY ssid", mac)
	if err != nil {
		return nil, fmt.Errorf("failed to query SSIDs for %s: %w", mac, err)
	}
	defer rows.Close()

	var ssids []string
	for rows.Next() {
		var ssid string
		if err := rows.Scan(&ssid); err != nil {
			return nil, err
		}
		ssids = append(ssids, ssid)
	}
	return ssids, rows.Err()
}
