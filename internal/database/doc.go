// Package database opens the PostgreSQL/TimescaleDB pool shared by the
// telemetry recorder and the postgres credential backend.
package database
