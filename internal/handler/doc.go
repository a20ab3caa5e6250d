// Package handler implements the HTTP surface of presenced.
//
// # Endpoints
//
//	GET    /healthz              liveness, returns "ok"
//	GET    /api/presence         last successful cycle result
//	GET    /api/unassigned       recently seen unregistered addresses
//	GET    /api/devices          registry, ?identity= filters and derives presence
//	POST   /api/devices          register a device
//	GET    /api/devices/{mac}    single device
//	PUT    /api/devices/{mac}    change privacy and description
//	DELETE /api/devices/{mac}    remove a device, history is kept
//	GET    /api/export/yaml      registry as a seed file
//	GET    /events               Server-Sent Events stream
//
// Errors are returned as JSON with an {error, details} body. Registry
// responses include device descriptions regardless of privacy level; the API
// is an operator surface and is not meant to be exposed publicly.
package handler
