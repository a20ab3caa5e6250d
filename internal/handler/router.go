package handler

import (
	"net/http"

	"github.com/rs/zerolog"
)

// NewRouter registers the API routes and the event stream and wraps them in
// the standard middleware.
func NewRouter(api *APIHandler, events http.Handler, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", api.Health)

	// Presence
	mux.HandleFunc("GET /api/presence", api.GetPresence)
	mux.HandleFunc("GET /api/unassigned", api.ListUnassigned)

	// Registry
	mux.HandleFunc("GET /api/devices", api.ListDevices)
	mux.HandleFunc("POST /api/devices", api.CreateDevice)
	mux.HandleFunc("GET /api/devices/{mac}", api.GetDevice)
	mux.HandleFunc("PUT /api/devices/{mac}", api.UpdateDevice)
	mux.HandleFunc("DELETE /api/devices/{mac}", api.DeleteDevice)
	mux.HandleFunc("GET /api/export/yaml", api.ExportYAML)

	if events != nil {
		mux.Handle("GET /events", events)
	}

	return Chain(mux,
		Recover(logger),
		CORS,
		Logger(logger),
	)
}
