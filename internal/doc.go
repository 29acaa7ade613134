// Package internal documents the places server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: places and users, ownership rules, transactional place storage
// - storage: PostgreSQL and in-memory repositories, Redis geocoding cache
// - geocoding: address lookup through Nominatim or Google behind a cache
// - assets: image storage and release of orphaned uploads
// - jobs: River workers for asset release and cache cleanup
// - auth, config, metrics, telemetry, sanitize: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
