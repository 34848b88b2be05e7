// Package internal documents the Solidus PIM server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, and routing
// - domain: business logic and domain models (products, assets, feeds, users)
// - storage: Postgres repositories, migrations, and the file store
// - jobs: River background workers and schedules
// - auth, audit, cache, config, email, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
