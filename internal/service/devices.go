package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"presenced/internal/domain"
	"presenced/internal/repository"
)

// DeviceService provides registry operations for the API and seed import
type DeviceService struct {
	repo             repository.Repository
	eventBus         *EventBus
	unassignedWindow time.Duration
	now              func() time.Time
	logger           zerolog.Logger
}

// NewDeviceService creates a registry service. Devices count as present
// and addresses as unassigned when seen within window.
func NewDeviceService(repo repository.Repository, eventBus *EventBus, window time.Duration, logger zerolog.Logger) *DeviceService {
	if window <= 0 {
		window = 30 * time.Minute
	}
	if eventBus == nil {
		eventBus = NewEventBus()
	}
	return &DeviceService{
		repo:             repo,
		eventBus:         eventBus,
		unassignedWindow: window,
		now:              time.Now,
		logger:           logger,
	}
}

// GetDevice returns the device registered for mac
func (s *DeviceService) GetDevice(ctx context.Context, mac string) (*domain.Device, error) {
	device, err := s.repo.LookupDevice(ctx, mac)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, fmt.Errorf("%s: %w", mac, repository.ErrNotFound)
	}
	return device, nil
}

// ListDevices returns every registered device
func (s *DeviceService) ListDevices(ctx context.Context) ([]domain.Device, error) {
	return s.repo.ListDevices(ctx)
}

// ListDevicesByIdentity returns an identity's devices with Present set for
// those seen within the window
func (s *DeviceService) ListDevicesByIdentity(ctx context.Context, identity string) ([]domain.Device, error) {
	return s.repo.ListDevicesByIdentity(ctx, identity, s.now().Add(-s.unassignedWindow))
}

// CreateDevice registers a device
func (s *DeviceService) CreateDevice(ctx context.Context, device *domain.Device) error {
	if err := s.repo.CreateDevice(ctx, device); err != nil {
		return err
	}

	s.logger.Info().Str("mac", device.HardwareAddress).Str("privacy", device.Privacy.String()).Msg("device registered")
	s.eventBus.Publish(Event{
		Type:    EventDeviceCreated,
		Payload: map[string]string{"mac": device.HardwareAddress},
	})
	return nil
}

// UpdateDevice changes a device's privacy level and description
func (s *DeviceService) UpdateDevice(ctx context.Context, device *domain.Device) error {
	if err := s.repo.UpdateDevice(ctx, device); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventDeviceUpdated,
		Payload: map[string]string{"mac": device.HardwareAddress},
	})
	return nil
}

// DeleteDevice removes a device from the registry
func (s *DeviceService) DeleteDevice(ctx context.Context, mac string) error {
	if err := s.repo.DeleteDevice(ctx, mac); err != nil {
		return err
	}

	s.logger.Info().Str("mac", mac).Msg("device removed")
	s.eventBus.Publish(Event{
		Type:    EventDeviceDeleted,
		Payload: map[string]string{"mac": mac},
	})
	return nil
}

// ListUnassigned returns unregistered addresses seen within the window
func (s *DeviceService) ListUnassigned(ctx context.Context) ([]domain.UnassignedDevice, error) {
	return s.repo.ListUnassigned(ctx, s.now().Add(-s.unassignedWindow))
}

// ImportDevices registers every new device and skips known addresses
func (s *DeviceService) ImportDevices(ctx context.Context, devices []domain.Device) (int, error) {
	created, err := repository.ImportDevices(ctx, s.repo, devices)
	if err != nil {
		return created, fmt.Errorf("import stopped after %d devices: %w", created, err)
	}

	s.logger.Info().Int("created", created).Int("total", len(devices)).Msg("devices imported")
	s.eventBus.Publish(Event{
		Type:    EventDevicesImported,
		Payload: map[string]int{"created": created, "total": len(devices)},
	})
	return created, nil
}
