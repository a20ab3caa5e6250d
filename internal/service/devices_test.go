package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presenced/internal/domain"
	"presenced/internal/repository"
	"presenced/internal/repository/sqlite"
)

func newDeviceService(t *testing.T) (*DeviceService, *sqlite.Repository, chan Event) {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	bus := NewEventBus()
	events := make(chan Event, 16)
	bus.Subscribe(events)

	svc := NewDeviceService(repo, bus, 30*time.Minute, zerolog.Nop())
	return svc, repo, events
}

func TestDeviceService_Lifecycle(t *testing.T) {
	svc, _, events := newDeviceService(t)
	ctx := context.Background()

	d := &domain.Device{HardwareAddress: "AA:BB:CC:DD:EE:01", Identity: "alice", Privacy: domain.PrivacyShowIdentity}
	require.NoError(t, svc.CreateDevice(ctx, d))
	assert.Equal(t, EventDeviceCreated, (<-events).Type)

	got, err := svc.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Identity)

	got.Privacy = domain.PrivacyHideIdentity
	require.NoError(t, svc.UpdateDevice(ctx, got))
	assert.Equal(t, EventDeviceUpdated, (<-events).Type)

	require.NoError(t, svc.DeleteDevice(ctx, "aa:bb:cc:dd:ee:01"))
	assert.Equal(t, EventDeviceDeleted, (<-events).Type)

	_, err = svc.GetDevice(ctx, "aa:bb:cc:dd:ee:01")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeviceService_ErrorsPublishNoEvent(t *testing.T) {
	svc, _, events := newDeviceService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.DeleteDevice(ctx, "aa:bb:cc:dd:ee:01"), repository.ErrNotFound)
	assert.Error(t, svc.CreateDevice(ctx, &domain.Device{HardwareAddress: "bogus", Identity: "x"}))
	assert.Empty(t, events)
}

func TestDeviceService_PresenceAndUnassignedWindow(t *testing.T) {
	svc, repo, _ := newDeviceService(t)
	ctx := context.Background()
	now := time.Now()
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.CreateDevice(ctx, &domain.Device{HardwareAddress: "aa:bb:cc:dd:ee:01", Identity: "alice", Privacy: domain.PrivacyShowIdentity}))
	require.NoError(t, repo.InsertSighting(ctx, domain.Sighting{HardwareAddress: "aa:bb:cc:dd:ee:01", IP: "10.0.0.5", Timestamp: now.Add(-10 * time.Minute)}))

	require.NoError(t, repo.RecordUnassigned(ctx, domain.Sighting{HardwareAddress: "aa:bb:cc:dd:ee:10", IP: "10.0.0.20", Timestamp: now.Add(-5 * time.Minute)}))
	require.NoError(t, repo.RecordUnassigned(ctx, domain.Sighting{HardwareAddress: "aa:bb:cc:dd:ee:11", IP: "10.0.0.21", Timestamp: now.Add(-45 * time.Minute)}))

	devices, err := svc.ListDevicesByIdentity(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.True(t, devices[0].Present)

	unassigned, err := svc.ListUnassigned(ctx)
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:10", unassigned[0].HardwareAddress)

	svc.now = func() time.Time { return now.Add(time.Hour) }
	devices, err = svc.ListDevicesByIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, devices[0].Present)
}

func TestDeviceService_ImportDevices(t *testing.T) {
	svc, _, events := newDeviceService(t)
	ctx := context.Background()

	created, err := svc.ImportDevices(ctx, []domain.Device{
		{HardwareAddress: "aa:bb:cc:dd:ee:01", Identity: "alice", Privacy: domain.PrivacyShowIdentity},
		{HardwareAddress: "aa:bb:cc:dd:ee:02", Identity: "bob", Privacy: domain.PrivacyNoLog},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created)
	assert.Equal(t, EventDevicesImported, (<-events).Type)

	created, err = svc.ImportDevices(ctx, []domain.Device{
		{HardwareAddress: "aa:bb:cc:dd:ee:01", Identity: "alice", Privacy: domain.PrivacyShowIdentity},
	})
	require.NoError(t, err)
	assert.Zero(t, created)

	_, err = svc.ImportDevices(ctx, []domain.Device{{HardwareAddress: "aa:bb:cc:dd:ee:03"}})
	assert.Error(t, err, "devices without identity stop the import")

	all, err := svc.ListDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
