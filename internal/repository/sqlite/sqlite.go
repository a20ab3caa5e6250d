package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"presenced/internal/domain"
	"presenced/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mac TEXT NOT NULL UNIQUE,
		identity TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		privacy INTEGER NOT NULL,
		created_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS sightings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mac TEXT NOT NULL,
		ip TEXT NOT NULL,
		seen_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_identity ON devices(identity);
	CREATE INDEX IF NOT EXISTS idx_sightings_mac_seen ON sightings(mac, seen_at);
	CREATE INDEX IF NOT EXISTS idx_sightings_seen ON sightings(seen_at);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database
func (r *Repository) Close() error {
	return r.db.Close()
}

// LookupDevice returns the registry entry for mac, or nil if it is unregistered
func (r *Repository) LookupDevice(ctx context.Context, mac string) (*domain.Device, error) {
	normalized, err := domain.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, mac, identity, description, privacy, created_at, 0
		FROM devices
		WHERE mac = ?
	`, normalized)

	device, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup device %s: %w", normalized, err)
	}
	return device, nil
}

// CreateDevice registers a new device
func (r *Repository) CreateDevice(ctx context.Context, device *domain.Device) error {
	normalized, err := domain.NormalizeMAC(device.HardwareAddress)
	if err != nil {
		return err
	}
	device.HardwareAddress = normalized
	if err := device.Validate(); err != nil {
		return err
	}

	created := r.now()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (mac, identity, description, privacy, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, device.HardwareAddress, device.Identity, device.Description, int(device.Privacy), timeToMillis(created))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", device.HardwareAddress, repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create device: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		device.ID = id
	}
	device.CreatedAt = &created
	return nil
}

// ListDevices returns all registered devices ordered by identity
func (r *Repository) ListDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mac, identity, description, privacy, created_at, 0
		FROM devices
		ORDER BY identity, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// ListDevicesByIdentity returns an identity's devices with Present derived
// from sightings newer than presentSince
func (r *Repository) ListDevicesByIdentity(ctx context.Context, identity string, presentSince time.Time) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.id, d.mac, d.identity, d.description, d.privacy, d.created_at,
			EXISTS (SELECT 1 FROM sightings s WHERE s.mac = d.mac AND s.seen_at > ?)
		FROM devices d
		WHERE d.identity = ?
		ORDER BY d.id
	`, timeToMillis(presentSince), identity)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices for %s: %w", identity, err)
	}
	defer rows.Close()

	return scanDevices(rows)
}

// UpdateDevice changes the privacy level and description of a device
func (r *Repository) UpdateDevice(ctx context.Context, device *domain.Device) error {
	normalized, err := domain.NormalizeMAC(device.HardwareAddress)
	if err != nil {
		return err
	}
	if !device.Privacy.Valid() {
		return fmt.Errorf("invalid privacy level %d", int8(device.Privacy))
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE devices SET privacy = ?, description = ? WHERE mac = ?
	`, int(device.Privacy), device.Description, normalized)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return requireAffected(result, normalized)
}

// DeleteDevice removes a device from the registry. Its history is kept.
func (r *Repository) DeleteDevice(ctx context.Context, mac string) error {
	normalized, err := domain.NormalizeMAC(mac)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE mac = ?`, normalized)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	return requireAffected(result, normalized)
}

// InsertSighting appends a history row if the registry allows logging the device
func (r *Repository) InsertSighting(ctx context.Context, sighting domain.Sighting) error {
	normalized, err := domain.NormalizeMAC(sighting.HardwareAddress)
	if err != nil {
		return err
	}

	// The privacy filter is part of the insert so a level changed between
	// lookup and insert is still honoured.
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO sightings (mac, ip, seen_at)
		SELECT ?, ?, ?
		FROM devices
		WHERE mac = ? AND privacy NOT IN (?, ?)
	`, normalized, sighting.IP, timeToMillis(sighting.Timestamp),
		normalized, int(domain.PrivacyHideIdentity), int(domain.PrivacyNoLog))
	if err != nil {
		return fmt.Errorf("failed to insert sighting: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s: %w", normalized, repository.ErrNotLoggable)
	}
	return nil
}

// RecordUnassigned appends a history row for an address with no registry entry
func (r *Repository) RecordUnassigned(ctx context.Context, sighting domain.Sighting) error {
	normalized, err := domain.NormalizeMAC(sighting.HardwareAddress)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO sightings (mac, ip, seen_at)
		SELECT ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM devices WHERE mac = ?)
	`, normalized, sighting.IP, timeToMillis(sighting.Timestamp), normalized)
	if err != nil {
		return fmt.Errorf("failed to record unassigned sighting: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s is registered: %w", normalized, repository.ErrNotLoggable)
	}
	return nil
}

// ListUnassigned returns unregistered addresses seen after since, newest first
func (r *Repository) ListUnassigned(ctx context.Context, since time.Time) ([]domain.UnassignedDevice, error) {
	// SQLite returns the ip of the row holding MAX(seen_at) for bare columns
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.mac, s.ip, MAX(s.seen_at) AS last_seen
		FROM sightings s
		LEFT JOIN devices d ON d.mac = s.mac
		WHERE d.id IS NULL AND s.seen_at > ?
		GROUP BY s.mac
		ORDER BY last_seen DESC, s.mac
	`, timeToMillis(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query unassigned devices: %w", err)
	}
	defer rows.Close()

	var unassigned []domain.UnassignedDevice
	for rows.Next() {
		var (
			u        domain.UnassignedDevice
			lastSeen int64
		)
		if err := rows.Scan(&u.HardwareAddress, &u.IP, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan unassigned device: %w", err)
		}
		u.LastSeen = millisToTime(lastSeen)
		unassigned = append(unassigned, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unassigned devices: %w", err)
	}
	return unassigned, nil
}
