// Package recorder persists accepted telemetry updates to TimescaleDB.
//
// The session manager hands every accepted per-device update to
// Recorder.HandleTelemetry, which only enqueues it. A consumer goroutine
// expands updates into one row per channel and writes them with pgx.Batch,
// flushing when the batch is full or on a timer.
//
// Table layout:
//
//	time        TIMESTAMPTZ NOT NULL
//	connection  TEXT        NOT NULL
//	device      TEXT        NOT NULL
//	channel     TEXT        NOT NULL
//	value       JSONB
package recorder
