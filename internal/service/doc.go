// Package service implements the presence engine's business logic.
//
// # Services
//
// PresenceService runs one aggregation cycle at a time: it fetches stations
// from the configured source, resolves them against the registry with
// Aggregate, publishes the summary and persists loggable sightings. The last
// successful result is kept for the HTTP API.
//
// DeviceService wraps the registry for the JSON API and seed import.
//
// # Privacy
//
// Aggregate is the single place privacy levels are applied to presence data.
// Hidden devices never leave it, NoLog devices are counted but produce no
// sighting, and an identity with several devices is shown with its most
// revealing level.
//
// # Event System
//
// Services publish events via EventBus; the hub relays them to SSE clients.
package service
