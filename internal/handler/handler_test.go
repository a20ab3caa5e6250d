package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presenced/internal/domain"
	"presenced/internal/repository/sqlite"
	"presenced/internal/service"
)

type staticSnapshots struct {
	snapshot *service.Snapshot
}

func (s *staticSnapshots) LastSnapshot() *service.Snapshot {
	return s.snapshot
}

type testEnv struct {
	router    http.Handler
	repo      *sqlite.Repository
	snapshots *staticSnapshots
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	devices := service.NewDeviceService(repo, service.NewEventBus(), 30*time.Minute, zerolog.Nop())
	snapshots := &staticSnapshots{}
	api := NewAPIHandler(devices, snapshots, zerolog.Nop())

	return &testEnv{
		router:    NewRouter(api, nil, zerolog.Nop()),
		repo:      repo,
		snapshots: snapshots,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestGetPresence(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/presence", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.snapshots.snapshot = &service.Snapshot{
		CycleID:   "cycle-1",
		UpdatedAt: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		Result: domain.AggregationResult{
			SpaceOccupied: true,
			DeviceCount:   3,
			MemberCount:   2,
			MemberNames:   []string{"alice", "Anonymous"},
		},
	}

	rec = env.do(t, http.MethodGet, "/api/presence", "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[service.Snapshot](t, rec)
	assert.Equal(t, "cycle-1", got.CycleID)
	assert.True(t, got.Result.SpaceOccupied)
	assert.Equal(t, uint64(3), got.Result.DeviceCount)
	assert.Equal(t, []string{"alice", "Anonymous"}, got.Result.MemberNames)
}

func TestDeviceCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/devices",
		`{"mac":"AA-BB-CC-DD-EE-01","identity":"alice","description":"laptop","privacy":"show_identity"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Device](t, rec)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", created.HardwareAddress)
	assert.NotZero(t, created.ID)

	rec = env.do(t, http.MethodGet, "/api/devices/aa:bb:cc:dd:ee:01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PrivacyShowIdentity, decode[domain.Device](t, rec).Privacy)

	// Numeric privacy levels are accepted and omitted fields are kept
	rec = env.do(t, http.MethodPut, "/api/devices/aa:bb:cc:dd:ee:01", `{"privacy":4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[domain.Device](t, rec)
	assert.Equal(t, domain.PrivacyNoLog, updated.Privacy)
	assert.Equal(t, "laptop", updated.Description)

	rec = env.do(t, http.MethodGet, "/api/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Device](t, rec), 1)

	rec = env.do(t, http.MethodDelete, "/api/devices/aa:bb:cc:dd:ee:01", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/devices/aa:bb:cc:dd:ee:01", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/devices", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateDevice_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/devices", `{"mac":"aa:bb:cc:dd:ee:01","identity":"alice","privacy":1}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"duplicate", `{"mac":"AA:BB:CC:DD:EE:01","identity":"bob","privacy":1}`, http.StatusConflict},
		{"malformed json", `{"mac":`, http.StatusBadRequest},
		{"missing privacy", `{"mac":"aa:bb:cc:dd:ee:02","identity":"bob"}`, http.StatusBadRequest},
		{"privacy out of range", `{"mac":"aa:bb:cc:dd:ee:02","identity":"bob","privacy":5}`, http.StatusBadRequest},
		{"unknown privacy name", `{"mac":"aa:bb:cc:dd:ee:02","identity":"bob","privacy":"public"}`, http.StatusBadRequest},
		{"invalid mac", `{"mac":"nope","identity":"bob","privacy":1}`, http.StatusBadRequest},
		{"blank identity", `{"mac":"aa:bb:cc:dd:ee:02","identity":"  ","privacy":1}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/devices", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestDeviceByMAC_Errors(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/devices/not-a-mac", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPut, "/api/devices/aa:bb:cc:dd:ee:09", `{"privacy":1}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/devices/aa:bb:cc:dd:ee:09", "").Code)
}

func TestListDevicesByIdentity_DerivesPresence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, body := range []string{
		`{"mac":"aa:bb:cc:dd:ee:01","identity":"alice","privacy":1}`,
		`{"mac":"aa:bb:cc:dd:ee:02","identity":"alice","privacy":0}`,
		`{"mac":"aa:bb:cc:dd:ee:03","identity":"bob","privacy":1}`,
	} {
		require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/devices", body).Code)
	}
	require.NoError(t, env.repo.InsertSighting(ctx, domain.Sighting{
		HardwareAddress: "aa:bb:cc:dd:ee:02", IP: "10.0.0.2", Timestamp: time.Now(),
	}))

	rec := env.do(t, http.MethodGet, "/api/devices?identity=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	devices := decode[[]domain.Device](t, rec)
	require.Len(t, devices, 2)
	present := map[string]bool{}
	for _, d := range devices {
		assert.Equal(t, "alice", d.Identity)
		present[d.HardwareAddress] = d.Present
	}
	assert.False(t, present["aa:bb:cc:dd:ee:01"])
	assert.True(t, present["aa:bb:cc:dd:ee:02"])
}

func TestListUnassigned(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/unassigned", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, env.repo.RecordUnassigned(context.Background(), domain.Sighting{
		HardwareAddress: "aa:bb:cc:dd:ee:77", IP: "10.0.0.77", Timestamp: time.Now(),
	}))

	rec = env.do(t, http.MethodGet, "/api/unassigned", "")
	require.Equal(t, http.StatusOK, rec.Code)
	unassigned := decode[[]domain.UnassignedDevice](t, rec)
	require.Len(t, unassigned, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:77", unassigned[0].HardwareAddress)
	assert.Equal(t, "10.0.0.77", unassigned[0].IP)
}

func TestExportYAML(t *testing.T) {
	env := newTestEnv(t)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/devices",
		`{"mac":"aa:bb:cc:dd:ee:01","identity":"alice","description":"private phone","privacy":"no_log"}`).Code)

	rec := env.do(t, http.MethodGet, "/api/export/yaml", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-yaml", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "mac: aa:bb:cc:dd:ee:01")
	assert.Contains(t, body, "privacy: no_log")
	assert.Contains(t, body, "description: private phone")
}

func TestMiddleware(t *testing.T) {
	t.Run("cors preflight", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodOptions, "/api/devices", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("recover", func(t *testing.T) {
		h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}), Recover(zerolog.Nop()), Logger(zerolog.Nop()))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("chain order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			order = append(order, "handler")
		}), mark("outer"), mark("inner"))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"outer", "inner", "handler"}, order)
	})
}
