package repository

import (
	"context"
	"errors"
	"time"

	"presenced/internal/domain"
)

var (
	// ErrNotFound is returned when no device matches the given key
	ErrNotFound = errors.New("device not found")
	// ErrDuplicate is returned when a hardware address is already registered
	ErrDuplicate = errors.New("hardware address already registered")
	// ErrNotLoggable is returned when the registry refuses a history insert
	ErrNotLoggable = errors.New("device must not be logged")
)

// DeviceLookup resolves hardware addresses against the registry.
// A nil device with a nil error means the address is not registered.
type DeviceLookup interface {
	LookupDevice(ctx context.Context, mac string) (*domain.Device, error)
}

// HistoryStore is the append-only presence history
type HistoryStore interface {
	// InsertSighting appends a sighting of a registered device. The store
	// re-checks the device's privacy level and returns ErrNotLoggable for
	// devices that must not be logged or are not registered.
	InsertSighting(ctx context.Context, sighting domain.Sighting) error

	// RecordUnassigned appends a sighting of an unregistered address so it can
	// be offered for assignment. Registered addresses are refused.
	RecordUnassigned(ctx context.Context, sighting domain.Sighting) error
}

// Repository defines the interface for registry and history data access
type Repository interface {
	DeviceLookup
	HistoryStore

	// Registry operations
	CreateDevice(ctx context.Context, device *domain.Device) error
	ListDevices(ctx context.Context) ([]domain.Device, error)
	ListDevicesByIdentity(ctx context.Context, identity string, presentSince time.Time) ([]domain.Device, error)
	UpdateDevice(ctx context.Context, device *domain.Device) error
	DeleteDevice(ctx context.Context, mac string) error

	// ListUnassigned returns unregistered addresses seen after since, newest first
	ListUnassigned(ctx context.Context, since time.Time) ([]domain.UnassignedDevice, error)

	// Close releases resources
	Close() error
}

// ImportDevices creates every device that is not yet registered and returns
// how many were created. Existing addresses are left untouched.
func ImportDevices(ctx context.Context, repo Repository, devices []domain.Device) (int, error) {
	created := 0
	for i := range devices {
		device := devices[i]
		if err := repo.CreateDevice(ctx, &device); err != nil {
			if errors.Is(err, ErrDuplicate) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
