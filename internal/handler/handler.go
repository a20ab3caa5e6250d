package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"presenced/internal/codec"
	"presenced/internal/domain"
	"presenced/internal/repository"
	"presenced/internal/service"
)

// SnapshotSource exposes the result of the last successful presence cycle
type SnapshotSource interface {
	LastSnapshot() *service.Snapshot
}

// APIHandler handles presence and registry API requests
type APIHandler struct {
	devices   *service.DeviceService
	snapshots SnapshotSource
	exporter  codec.Exporter
	logger    zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(devices *service.DeviceService, snapshots SnapshotSource, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		devices:   devices,
		snapshots: snapshots,
		exporter:  codec.NewYAMLCodec(),
		logger:    logger,
	}
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// DeviceRequest is the body of device create and update requests. Privacy
// accepts the level's ordinal (0-4) or its name.
type DeviceRequest struct {
	MAC         string               `json:"mac"`
	Identity    string               `json:"identity"`
	Description *string              `json:"description"`
	Privacy     *domain.PrivacyLevel `json:"privacy"`
}

// Health reports that the process is serving
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GetPresence returns the last successful cycle's result
func (h *APIHandler) GetPresence(w http.ResponseWriter, r *http.Request) {
	snapshot := h.snapshots.LastSnapshot()
	if snapshot == nil {
		h.writeError(w, "No presence data yet", "no cycle has completed", http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, snapshot, http.StatusOK)
}

// ListUnassigned returns recently seen addresses that have no registry entry
func (h *APIHandler) ListUnassigned(w http.ResponseWriter, r *http.Request) {
	unassigned, err := h.devices.ListUnassigned(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list unassigned addresses")
		h.writeError(w, "Failed to list unassigned addresses", err.Error(), http.StatusInternalServerError)
		return
	}
	if unassigned == nil {
		unassigned = []domain.UnassignedDevice{}
	}

	h.writeJSON(w, unassigned, http.StatusOK)
}

// ListDevices returns registered devices, optionally only those of one identity
func (h *APIHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	var (
		devices []domain.Device
		err     error
	)
	if identity := r.URL.Query().Get("identity"); identity != "" {
		devices, err = h.devices.ListDevicesByIdentity(r.Context(), identity)
	} else {
		devices, err = h.devices.ListDevices(r.Context())
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list devices")
		h.writeError(w, "Failed to list devices", err.Error(), http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []domain.Device{}
	}

	h.writeJSON(w, devices, http.StatusOK)
}

// GetDevice returns a single device
func (h *APIHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.macParam(w, r)
	if !ok {
		return
	}

	device, err := h.devices.GetDevice(r.Context(), mac)
	if err != nil {
		h.writeRepoError(w, "Failed to get device", mac, err)
		return
	}

	h.writeJSON(w, device, http.StatusOK)
}

// CreateDevice registers a device
func (h *APIHandler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Privacy == nil {
		h.writeError(w, "Invalid device", "privacy is required", http.StatusBadRequest)
		return
	}

	description := ""
	if req.Description != nil {
		description = *req.Description
	}
	device, err := domain.NewDevice(req.MAC, strings.TrimSpace(req.Identity), description, *req.Privacy)
	if err != nil {
		h.writeError(w, "Invalid device", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.devices.CreateDevice(r.Context(), device); err != nil {
		h.writeRepoError(w, "Failed to create device", device.HardwareAddress, err)
		return
	}

	h.writeJSON(w, device, http.StatusCreated)
}

// UpdateDevice changes a device's privacy level and description. Omitted
// fields keep their stored values.
func (h *APIHandler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.macParam(w, r)
	if !ok {
		return
	}

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	device, err := h.devices.GetDevice(r.Context(), mac)
	if err != nil {
		h.writeRepoError(w, "Failed to update device", mac, err)
		return
	}
	if req.Privacy != nil {
		device.Privacy = *req.Privacy
	}
	if req.Description != nil {
		device.Description = *req.Description
	}

	if err := h.devices.UpdateDevice(r.Context(), device); err != nil {
		h.writeRepoError(w, "Failed to update device", mac, err)
		return
	}

	h.writeJSON(w, device, http.StatusOK)
}

// DeleteDevice removes a device from the registry
func (h *APIHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	mac, ok := h.macParam(w, r)
	if !ok {
		return
	}

	if err := h.devices.DeleteDevice(r.Context(), mac); err != nil {
		h.writeRepoError(w, "Failed to delete device", mac, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExportYAML exports the registry as a seed file
func (h *APIHandler) ExportYAML(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.ListDevices(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list devices for export")
		h.writeError(w, "Failed to export devices", err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", "attachment; filename=devices.yaml")

	if err := h.exporter.Export(devices, w); err != nil {
		// Headers are already written
		h.logger.Error().Err(err).Msg("Failed to export devices")
	}
}

// Helper methods

func (h *APIHandler) macParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	mac, err := domain.NormalizeMAC(r.PathValue("mac"))
	if err != nil {
		h.writeError(w, "Invalid hardware address", err.Error(), http.StatusBadRequest)
		return "", false
	}
	return mac, true
}

func (h *APIHandler) writeRepoError(w http.ResponseWriter, msg, mac string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		h.writeError(w, "Already registered", err.Error(), http.StatusConflict)
	default:
		h.logger.Error().Err(err).Str("mac", mac).Msg(msg)
		h.writeError(w, msg, err.Error(), http.StatusInternalServerError)
	}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON")
	}
}

func (h *APIHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}
