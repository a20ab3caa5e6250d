// Package repository defines the data access interfaces for presenced.
//
// The registry maps hardware addresses to identities and privacy levels; the
// history is an append-only log of sightings. Both live in the same database
// so the history insert can re-verify loggability against the registry in a
// single statement.
//
// # Implementations
//
// The sqlite subpackage is the default embedded store (modernc.org/sqlite, no
// cgo). The postgres subpackage targets a shared PostgreSQL server through a
// pgx connection pool.
//
// # Schema Migration
//
// Both implementations create their tables and indexes on startup if they do
// not exist.
package repository
