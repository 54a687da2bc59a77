package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/ems-client/internal/buffer"
	"github.com/rickgao/ems-client/internal/config"
	"github.com/rickgao/ems-client/internal/model"
)

// DB is the subset of *pgxpool.Pool used by the recorder.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Metrics counts recorder activity.
type Metrics struct {
	Updates int64 // Updates accepted by HandleTelemetry
	Dropped int64 // Updates refused after Stop
	Rows    int64 // Rows written
	Flushes int64
	Errors  int64 // Failed batches
}

// Recorder writes telemetry updates to a hypertable.
type Recorder struct {
	cfg    config.RecorderConfig
	table  string // Sanitized identifier
	logger *slog.Logger
	db     DB

	input *buffer.Queue[model.TelemetryUpdate]

	batch   []row
	batchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   Metrics
}

type row struct {
	Time       time.Time
	Connection string
	Device     string
	Channel    string
	Value      []byte // JSON
}

// New creates a Recorder. Zero config fields fall back to the config defaults.
func New(cfg config.RecorderConfig, db DB, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Table == "" {
		cfg.Table = config.DefaultRecorderTable
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = config.DefaultFlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = config.DefaultRecorderBuffer
	}
	return &Recorder{
		cfg:    cfg,
		table:  pgx.Identifier{cfg.Table}.Sanitize(),
		logger: logger,
		db:     db,
		input:  buffer.New[model.TelemetryUpdate](cfg.BufferSize),
		batch:  make([]row, 0, cfg.BatchSize),
	}
}

// EnsureSchema creates the table and converts it to a hypertable when
// TimescaleDB is available.
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+r.table+` (
			time       TIMESTAMPTZ NOT NULL,
			connection TEXT        NOT NULL,
			device     TEXT        NOT NULL,
			channel    TEXT        NOT NULL,
			value      JSONB
		)`)
	if err != nil {
		return fmt.Errorf("create telemetry table: %w", err)
	}

	// Fails without the timescaledb extension; plain tables still work.
	_, err = r.db.Exec(ctx, `SELECT create_hypertable($1::regclass, 'time', if_not_exists => TRUE)`, r.table)
	if err != nil {
		r.logger.Warn("hypertable setup skipped", "table", r.cfg.Table, "error", err)
	}
	return nil
}

// HandleTelemetry enqueues one update. It never blocks.
func (r *Recorder) HandleTelemetry(u model.TelemetryUpdate) {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()

	if !r.input.Push(u) {
		r.metrics.Dropped++
		return
	}
	r.metrics.Updates++
}

// Start begins consuming updates.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("telemetry recorder started",
		"table", r.cfg.Table,
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued updates and writes the final batch.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping telemetry recorder")

	r.input.Close()
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("telemetry recorder stop timed out")
		return ctx.Err()
	}

	r.flush(ctx)
	r.logger.Info("telemetry recorder stopped")
	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	return r.metrics
}

// Pending returns the number of queued updates not yet batched.
func (r *Recorder) Pending() int {
	return r.input.Len()
}

// consumeLoop runs until the queue is closed and drained.
func (r *Recorder) consumeLoop() {
	defer r.wg.Done()

	for {
		updates := r.input.WaitBatch(r.cfg.BatchSize)
		if updates == nil {
			return
		}
		for _, u := range updates {
			r.add(transform(u))
		}
	}
}

func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flush(r.ctx)
		}
	}
}

func (r *Recorder) add(rows []row) {
	r.batchMu.Lock()
	r.batch = append(r.batch, rows...)
	full := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if full {
		// Stop may have cancelled r.ctx while rows are still draining.
		r.flush(context.WithoutCancel(r.ctx))
	}
}

// transform expands an update into one row per channel, ordered by channel id.
func transform(u model.TelemetryUpdate) []row {
	rows := make([]row, 0, len(u.Channels))
	for _, ch := range slices.Sorted(maps.Keys(u.Channels)) {
		value, err := json.Marshal(u.Channels[ch])
		if err != nil {
			value = nil
		}
		rows = append(rows, row{
			Time:       u.ReceivedAt,
			Connection: u.Connection,
			Device:     u.DeviceID,
			Channel:    ch,
			Value:      value,
		})
	}
	return rows
}

func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}
	batch := r.batch
	r.batch = make([]row, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	if err := r.batchInsert(ctx, batch); err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.metricsMu.Lock()
		r.metrics.Errors++
		r.metricsMu.Unlock()
		return
	}

	r.metricsMu.Lock()
	r.metrics.Rows += int64(len(batch))
	r.metrics.Flushes++
	r.metricsMu.Unlock()

	r.logger.Debug("flushed telemetry",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

func (r *Recorder) batchInsert(ctx context.Context, rows []row) error {
	b := &pgx.Batch{}
	for _, rw := range rows {
		b.Queue(`
			INSERT INTO `+r.table+` (time, connection, device, channel, value)
			VALUES ($1, $2, $3, $4, $5)
		`, rw.Time, rw.Connection, rw.Device, rw.Channel, rw.Value)
	}

	results := r.db.SendBatch(ctx, b)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
