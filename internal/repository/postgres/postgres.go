// Package postgres implements the registry and presence history on PostgreSQL
// for deployments where several services share the database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"presenced/internal/domain"
	"presenced/internal/repository"
)

const sqlstateUniqueViolation = "23505"

// executor is the subset of *pgxpool.Pool used by the repository
type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements repository.Repository using a pgx pool
type Repository struct {
	pool     *pgxpool.Pool
	executor executor
	now      func() time.Time
}

var _ repository.Repository = (*Repository)(nil)

// New dials dsn, applies the schema and returns a ready repository
func New(ctx context.Context, dsn string, maxConns int32, log zerolog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to initialize pool: %w", err)
	}

	repo := &Repository{pool: pool, executor: pool, now: time.Now}
	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: failed to migrate database: %w", err)
	}

	log.Info().
		Str("host", poolConfig.ConnConfig.Host).
		Uint16("port", poolConfig.ConnConfig.Port).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("connected to postgres")

	return repo, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	_, err := r.executor.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS devices (
		id BIGSERIAL PRIMARY KEY,
		mac TEXT NOT NULL UNIQUE,
		identity TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		privacy SMALLINT NOT NULL,
		created_at TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS sightings (
		id BIGSERIAL PRIMARY KEY,
		mac TEXT NOT NULL,
		ip TEXT NOT NULL,
		seen_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_identity ON devices(identity);
	CREATE INDEX IF NOT EXISTS idx_sightings_mac_seen ON sightings(mac, seen_at);
	CREATE INDEX IF NOT EXISTS idx_sightings_seen ON sightings(seen_at);
	`)
	return err
}

// Close releases the pool
func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// LookupDevice returns the registry entry for mac, or nil if it is unregistered
func (r *Repository) LookupDevice(ctx context.Context, mac string) (*domain.Device, error) {
	normalized, err := domain.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	row := r.executor.QueryRow(ctx, `
		SELECT id, mac, identity, description, privacy, created_at, false
		FROM devices
		WHERE mac = $1
	`, normalized)

	device, err := scanDevice(row)
	if errors.Is(err, pgx.ErrNoRows) {
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

	created := r.now().UTC()
	err = r.executor.QueryRow(ctx, `
		INSERT INTO devices (mac, identity, description, privacy, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, device.HardwareAddress, device.Identity, device.Description, int16(device.Privacy), created).Scan(&device.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", device.HardwareAddress, repository.ErrDuplicate)
		}
		return fmt.Errorf("failed to create device: %w", err)
	}

	device.CreatedAt = &created
	return nil
}

// ListDevices returns all registered devices ordered by identity
func (r *Repository) ListDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := r.executor.Query(ctx, `
		SELECT id, mac, identity, description, privacy, created_at, false
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
	rows, err := r.executor.Query(ctx, `
		SELECT d.id, d.mac, d.identity, d.description, d.privacy, d.created_at,
			EXISTS (SELECT 1 FROM sightings s WHERE s.mac = d.mac AND s.seen_at > $1)
		FROM devices d
		WHERE d.identity = $2
		ORDER BY d.id
	`, presentSince.UTC(), identity)
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

	tag, err := r.executor.Exec(ctx, `
		UPDATE devices SET privacy = $1, description = $2 WHERE mac = $3
	`, int16(device.Privacy), device.Description, normalized)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", normalized, repository.ErrNotFound)
	}
	return nil
}

// DeleteDevice removes a device from the registry. Its history is kept.
func (r *Repository) DeleteDevice(ctx context.Context, mac string) error {
	normalized, err := domain.NormalizeMAC(mac)
	if err != nil {
		return err
	}

	tag, err := r.executor.Exec(ctx, `DELETE FROM devices WHERE mac = $1`, normalized)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", normalized, repository.ErrNotFound)
	}
	return nil
}

// InsertSighting appends a history row if the registry allows logging the device
func (r *Repository) InsertSighting(ctx context.Context, sighting domain.Sighting) error {
	normalized, err := domain.NormalizeMAC(sighting.HardwareAddress)
	if err != nil {
		return err
	}

	tag, err := r.executor.Exec(ctx, `
		INSERT INTO sightings (mac, ip, seen_at)
		SELECT $1::text, $2::text, $3::timestamptz
		FROM devices
		WHERE mac = $1 AND privacy NOT IN ($4, $5)
	`, normalized, sighting.IP, sighting.Timestamp.UTC(),
		int16(domain.PrivacyHideIdentity), int16(domain.PrivacyNoLog))
	if err != nil {
		return fmt.Errorf("failed to insert sighting: %w", err)
	}
	if tag.RowsAffected() == 0 {
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

	tag, err := r.executor.Exec(ctx, `
		INSERT INTO sightings (mac, ip, seen_at)
		SELECT $1::text, $2::text, $3::timestamptz
		WHERE NOT EXISTS (SELECT 1 FROM devices WHERE mac = $1)
	`, normalized, sighting.IP, sighting.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record unassigned sighting: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s is registered: %w", normalized, repository.ErrNotLoggable)
	}
	return nil
}

// ListUnassigned returns unregistered addresses seen after since, newest first
func (r *Repository) ListUnassigned(ctx context.Context, since time.Time) ([]domain.UnassignedDevice, error) {
	rows, err := r.executor.Query(ctx, `
		SELECT mac, ip, seen_at FROM (
			SELECT DISTINCT ON (s.mac) s.mac, s.ip, s.seen_at
			FROM sightings s
			LEFT JOIN devices d ON d.mac = s.mac
			WHERE d.id IS NULL AND s.seen_at > $1
			ORDER BY s.mac, s.seen_at DESC
		) latest
		ORDER BY seen_at DESC, mac
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query unassigned devices: %w", err)
	}
	defer rows.Close()

	var unassigned []domain.UnassignedDevice
	for rows.Next() {
		var u domain.UnassignedDevice
		if err := rows.Scan(&u.HardwareAddress, &u.IP, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan unassigned device: %w", err)
		}
		u.LastSeen = u.LastSeen.UTC()
		unassigned = append(unassigned, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unassigned devices: %w", err)
	}
	return unassigned, nil
}

func scanDevice(row pgx.Row) (*domain.Device, error) {
	var (
		d         domain.Device
		privacy   int16
		createdAt *time.Time
	)
	if err := row.Scan(&d.ID, &d.HardwareAddress, &d.Identity, &d.Description, &privacy, &createdAt, &d.Present); err != nil {
		return nil, err
	}
	d.Privacy = domain.PrivacyLevel(privacy)
	if createdAt != nil {
		utc := createdAt.UTC()
		d.CreatedAt = &utc
	}
	return &d, nil
}

func scanDevices(rows pgx.Rows) ([]domain.Device, error) {
	var devices []domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlstateUniqueViolation
}
