// Package stores provides the build history layer for feL4.
// It includes SQLite-based storage with WAL mode, connection pooling,
// and CRUD operations for builds, steps, artifacts, deployments,
// tool probes, and events.
package stores
