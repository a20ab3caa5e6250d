package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presenced/internal/domain"
	"presenced/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	require.NoError(t, err, "failed to create test repository")

	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func mustCreate(t *testing.T, repo *Repository, mac, identity string, privacy domain.PrivacyLevel) *domain.Device {
	t.Helper()
	d := &domain.Device{HardwareAddress: mac, Identity: identity, Description: identity + "'s device", Privacy: privacy}
	require.NoError(t, repo.CreateDevice(context.Background(), d))
	return d
}

func sightingCount(t *testing.T, repo *Repository, mac string) int {
	t.Helper()
	var n int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM sightings WHERE mac = ?`, mac).Scan(&n))
	return n
}

// ============================================================================
// Registry Tests
// ============================================================================

func TestCreateAndLookupDevice(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	d := mustCreate(t, repo, "AA:BB:CC:DD:EE:01", "alice", domain.PrivacyShowIdentity)
	assert.NotZero(t, d.ID)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", d.HardwareAddress)

	got, err := repo.LookupDevice(ctx, "aa-bb-cc-dd-ee-01")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, d.ID, got.ID)
	assert.Equal(t, "alice", got.Identity)
	assert.Equal(t, domain.PrivacyShowIdentity, got.Privacy)
	assert.Equal(t, "alice's device", got.Description)
	assert.NotNil(t, got.CreatedAt)
}

func TestLookupUnregisteredDevice(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.LookupDevice(context.Background(), "aa:bb:cc:dd:ee:99")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLookupInvalidMAC(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.LookupDevice(context.Background(), "nope")
	assert.Error(t, err)
}

func TestCreateDuplicateDevice(t *testing.T) {
	repo := newTestRepo(t)
	mustCreate(t, repo, "aa:bb:cc:dd:ee:01", "alice", domain.PrivacyShowIdentity)

	err := repo.CreateDevice(context.Background(), &domain.Device{
		HardwareAddress: "AA:BB:CC:DD:EE:01",
		Identity:        "bob",
		Privacy:         domain.PrivacyShowIdentity,
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}

func TestCreateInvalidDevice(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.CreateDevice(context.Background(), &domain.Device{
		HardwareAddress: "aa:bb:cc:dd:ee:01",
		Privacy:         domain.PrivacyShowIdentity,
	})
	assert.Error(t, err, "identity is required")
}

func TestUpdateDevice(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mustCreate(t, repo, "aa:bb:cc:dd:ee:01", "alice", domain.PrivacyShowIdentity)

	err := repo.UpdateDevice(ctx, &domain.Device{
		HardwareAddress: "aa:bb:cc:dd:ee:01",
		Description:     "work laptop",
		Privacy:         domain.PrivacyNoLog,
	})
	require.NoError(t, err)

	got, err := repo.LookupDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, domain.PrivacyNoLog, got.Privacy)
	assert.Equal(t, "work laptop", got.Description)
	assert.Equal(t, "alice", got.Identity, "identity is not changed by updates")

	err = repo.UpdateDevice(ctx, &domain.Device{HardwareAddress: "aa:bb:cc:dd:ee:02", Privacy: domain.PrivacyNoLog})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	err = repo.UpdateDevice(ctx, &domain.Device{HardwareAddress: "aa:bb:cc:dd:ee:01", Privacy: domain.PrivacyLevel(12)})
	assert.Error(t, err)
}

func TestDeleteDevice(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	mustCreate(t, repo, "aa:bb:cc:dd:ee:01", "alice", domain.PrivacyShowIdentity)

	require.NoError(t, repo.DeleteDevice(ctx, "AA:BB:CC:DD:EE:01"))

	got, err := repo.LookupDevice(ctx, "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, repo.DeleteDevice(ctx, "aa:bb:cc:dd:ee:01"), repository.ErrNotFound)
}

func TestListDevices(t *testing.T) {
	repo := newTestRepo(t)
	mustCreate(t, repo, "aa:bb:cc:dd:ee:03", "carol", domain.PrivacyShowIdentity)
	mustCreate(t, repo, "aa:bb:cc:dd:ee:01", "alice", domain.PrivacyShowIdentity)
	mustCreate(t, repo, "aa:bb:cc:dd:ee:02", "alice", domain.PrivacyShowAnonymous)

	devices, err := repo.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "alice", devices[0].Identity)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", devices[0].HardwareAddress)
	assert.Equal(t, "aa:bb:cc:dd:ee:02", devices[1].HardwareAddress)
	assert.Equal(t, "carol", devices[2].Identity)
}

func TestListDevicesByIdentityDerivesPresence(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	mustCreate(t, repo, "aa:bb:cc:dd:ee:01", "alice", domain.PrivacyShowIdentity)
	mustCreate(t, repo, "aa:bb:cc:dd:ee:02", "alice", domain.PrivacyShowIdentity)
	mustCreate(t, repo, "aa:bb:cc:dd:ee:03", "bob", domain.PrivacyShowIdentity)

	require.NoError(t, repo.InsertSighting(ctx, domain.Sighting{HardwareAddress: "aa:bb:cc:dd:ee:01", IP: "10.0.0.5", Timestamp: now}))
	require.NoError(t, repo.InsertSighting(ctx, domain.Sighting{HardwareAddress: "aa:bb:cc:dd:ee:02", IP: "10.0.0.6", Timestamp: now.Add(-2 * time.Hour)}))

	devices, err := repo.ListDevicesByIdentity(ctx, "alice", now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.True(t, devices[0].Present)
	assert.False(t, devices[1].Present, "old sightings do not count as present")
}

// ============================================================================
// History Tests
// ============================================================================

func TestInsertSightingHonoursPrivacy(t *testing.T) {
	tests := []struct {
		name    string
		privacy domain.PrivacyLevel
		wantErr bool
	}{
		{"show identity and device", domain.PrivacyShowIdentityAndDevice, false},
		{"show identity", domain.PrivacyShowIdentity, false},
		{"show anonymous", domain.PrivacyShowAnonymous, false},
		{"hide identity", domain.PrivacyHideIdentity, true},
		{"no log", domain.PrivacyNoLog, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepo(t)
			mustCreate(t, repo, "aa:bb:cc:dd:ee:01", "alice", tt.privacy)

			err := repo.InsertSighting(context.Background(), domain.Sighting{
				HardwareAddress: "aa:bb:cc:dd:ee:01",
				IP:              "10.0.0.5",
				Timestamp:       time.Now(),
			})

			if tt.wantErr {
				assert.ErrorIs(t, err, repository.ErrNotLoggable)
				assert.Zero(t, sightingCount(t, repo, "aa:bb:cc:dd:ee:01"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, sightingCount(t, repo, "aa:bb:cc:dd:ee:01"))
		})
	}
}

func TestInsertSightingUnregistered(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.InsertSighting(context.Background(), domain.Sighting{
		HardwareAddress: "aa:bb:cc:dd:ee:01",
		IP:              "10.0.0.5",
		Timestamp:       time.Now(),
	})
	assert.ErrorIs(t, err, repository.ErrNotLoggable)
}

func TestRecordUnassignedRefusesRegistered(t *testing.T) {
	repo := newTestRepo(t)
	mustCreate(t, repo, "aa:bb:cc:dd:ee:01", "alice", domain.PrivacyNoLog)

	err := repo.RecordUnassigned(context.Background(), domain.Sighting{
		HardwareAddress: "aa:bb:cc:dd:ee:01",
		IP:              "10.0.0.5",
		Timestamp:       time.Now(),
	})
	assert.ErrorIs(t, err, repository.ErrNotLoggable)
	assert.Zero(t, sightingCount(t, repo, "aa:bb:cc:dd:ee:01"))
}

func TestListUnassigned(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	mustCreate(t, repo, "aa:bb:cc:dd:ee:01", "alice", domain.PrivacyShowIdentity)
	require.NoError(t, repo.InsertSighting(ctx, domain.Sighting{HardwareAddress: "aa:bb:cc:dd:ee:01", IP: "10.0.0.5", Timestamp: now}))

	record := func(mac, ip string, at time.Time) {
		require.NoError(t, repo.RecordUnassigned(ctx, domain.Sighting{HardwareAddress: mac, IP: ip, Timestamp: at}))
	}
	record("aa:bb:cc:dd:ee:10", "10.0.0.20", now.Add(-10*time.Minute))
	record("aa:bb:cc:dd:ee:10", "10.0.0.21", now.Add(-1*time.Minute))
	record("aa:bb:cc:dd:ee:11", "10.0.0.30", now.Add(-5*time.Minute))
	record("aa:bb:cc:dd:ee:12", "10.0.0.40", now.Add(-2*time.Hour))

	unassigned, err := repo.ListUnassigned(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, unassigned, 2)

	assert.Equal(t, "aa:bb:cc:dd:ee:10", unassigned[0].HardwareAddress)
	assert.Equal(t, "10.0.0.21", unassigned[0].IP, "latest ip is reported")
	assert.True(t, unassigned[0].LastSeen.Equal(now.Add(-1*time.Minute)))
	assert.Equal(t, "aa:bb:cc:dd:ee:11", unassigned[1].HardwareAddress)
}

func TestListUnassignedDropsNewlyRegistered(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, repo.RecordUnassigned(ctx, domain.Sighting{HardwareAddress: "aa:bb:cc:dd:ee:10", IP: "10.0.0.20", Timestamp: now}))
	mustCreate(t, repo, "aa:bb:cc:dd:ee:10", "dave", domain.PrivacyShowIdentity)

	unassigned, err := repo.ListUnassigned(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, unassigned)
}

func TestImportDevicesSkipsExisting(t *testing.T) {
	repo := newTestRepo(t)
	mustCreate(t, repo, "aa:bb:cc:dd:ee:01", "alice", domain.PrivacyShowIdentity)

	created, err := repository.ImportDevices(context.Background(), repo, []domain.Device{
		{HardwareAddress: "aa:bb:cc:dd:ee:01", Identity: "mallory", Privacy: domain.PrivacyShowIdentity},
		{HardwareAddress: "aa:bb:cc:dd:ee:02", Identity: "bob", Privacy: domain.PrivacyShowAnonymous},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	got, err := repo.LookupDevice(context.Background(), "aa:bb:cc:dd:ee:01")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Identity)
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullToTimePtr(t *testing.T) {
	assert.Nil(t, nullToTimePtr(sql.NullInt64{}))

	ts := nullToTimePtr(sql.NullInt64{Int64: 1700000000123, Valid: true})
	require.NotNil(t, ts)
	assert.Equal(t, int64(1700000000123), ts.UnixMilli())
}
