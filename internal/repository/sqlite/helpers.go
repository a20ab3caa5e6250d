package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"presenced/internal/domain"
	"presenced/internal/repository"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice reads id, mac, identity, description, privacy, created_at, present
func scanDevice(row rowScanner) (*domain.Device, error) {
	var (
		d         domain.Device
		privacy   int
		createdAt sql.NullInt64
		present   int64
	)

	if err := row.Scan(&d.ID, &d.HardwareAddress, &d.Identity, &d.Description, &privacy, &createdAt, &present); err != nil {
		return nil, err
	}

	d.Privacy = domain.PrivacyLevel(privacy)
	d.CreatedAt = nullToTimePtr(createdAt)
	d.Present = present != 0
	return &d, nil
}

func scanDevices(rows *sql.Rows) ([]domain.Device, error) {
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

// requireAffected maps an update that touched no rows to ErrNotFound
func requireAffected(result sql.Result, mac string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", mac, repository.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// timeToMillis stores timestamps as unix milliseconds so range queries compare integers
func timeToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// nullToTimePtr safely converts a nullable millisecond column to *time.Time
func nullToTimePtr(ni sql.NullInt64) *time.Time {
	if !ni.Valid {
		return nil
	}
	t := millisToTime(ni.Int64)
	return &t
}
