// Package engine runs collection cycles: it reads a counter table, keeps the
// record store in step with the table's shape, and publishes aggregate and
// per-column series to a sink, resolving sink handles only when a row's
// cached handle has gone stale.
package engine

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	irqerrors "github.com/xraph/irqstat/internal/errors"
	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink"
	"github.com/xraph/irqstat/internal/store"
	"github.com/xraph/irqstat/internal/table"
)

const tracerName = "github.com/xraph/irqstat/internal/engine"

// CycleReport summarizes one cycle.
type CycleReport struct {
	Table         string               `json:"table"`
	Started       time.Time            `json:"started"`
	Duration      time.Duration        `json:"duration"`
	Rows          int                  `json:"rows"`
	Columns       int                  `json:"columns"`
	Used          int                  `json:"used"`
	Rebuilt       bool                 `json:"rebuilt"`
	Resolutions   int                  `json:"resolutions"`
	Renames       int                  `json:"renames"`
	ActiveColumns int                  `json:"active_columns"`
	Fault         irqerrors.FaultClass `json:"fault,omitempty"`
	Error         string               `json:"error,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracer sets the tracer used for cycle spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// Engine owns one table's record store. RunCycle must not be called
// concurrently. SetDisplayNames and the read accessors are safe from any
// goroutine.
type Engine struct {
	config Config
	reader table.Reader
	sink   sink.Sink
	store  *store.Store
	logger logger.Logger
	tracer trace.Tracer

	names   map[string]string
	columns int
	warned  bool

	aggregateDefined bool
	active           []bool

	mu     sync.RWMutex
	last   CycleReport
	view   store.View
	cycles int64
}

// New creates an engine. The store is allocated on the first successful cycle.
func New(config Config, reader table.Reader, s sink.Sink, log logger.Logger, opts ...Option) *Engine {
	if config.ColumnPrefix == "" {
		config.ColumnPrefix = table.DefaultColumnPrefix
	}

	if config.Limits == (store.Limits{}) {
		config.Limits = store.DefaultLimits()
	}

	if log == nil {
		log = logger.NewNoopLogger()
	}

	e := &Engine{
		config: config,
		reader: reader,
		sink:   s,
		store:  store.New(config.Limits),
		logger: log.Named("engine").With(logger.Table(config.Table)),
		tracer: otel.Tracer(tracerName),
		names:  cloneNames(config.Names),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Name returns the table name.
func (e *Engine) Name() string {
	return e.config.Table
}

// Source returns where the table is read from.
func (e *Engine) Source() string {
	return e.reader.Source()
}

// SetDisplayNames replaces the display-name overrides. They apply from the
// next cycle; rows whose label changes are renamed in the sink, not re-created.
func (e *Engine) SetDisplayNames(names map[string]string) {
	names = cloneNames(names)

	e.mu.Lock()
	e.names = names
	e.mu.Unlock()
}

// Columns returns the column count fixed by the first successful cycle, or 0.
func (e *Engine) Columns() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.columns
}

// LastReport returns the report of the most recent cycle.
func (e *Engine) LastReport() CycleReport {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.last
}

// Cycles returns how many cycles have run.
func (e *Engine) Cycles() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.cycles
}

// View returns a copy of the store as of the last cycle that reached it.
func (e *Engine) View() store.View {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.view
}

// RunCycle performs one collection cycle. Read failures and unusable tables
// leave the store and the sink untouched. A sink failure aborts the rest of
// the cycle; handles resolved before it stay cached. Allocation failures are
// fatal.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{Table: e.config.Table, Started: time.Now()}

	ctx, span := e.tracer.Start(ctx, "irqstat.cycle",
		trace.WithAttributes(attribute.String("irqstat.table", e.config.Table)))
	defer span.End()

	err := e.cycle(ctx, &report)

	report.Duration = time.Since(report.Started)
	report.ActiveColumns = e.activeCount()

	span.SetAttributes(
		attribute.Int("irqstat.rows", report.Rows),
		attribute.Int("irqstat.columns", report.Columns),
		attribute.Int("irqstat.used", report.Used),
		attribute.Int("irqstat.resolutions", report.Resolutions),
		attribute.Bool("irqstat.rebuilt", report.Rebuilt),
	)

	if err != nil {
		report.Fault = irqerrors.Classify(err)
		report.Error = err.Error()

		span.RecordError(err)
		span.SetStatus(codes.Error, string(report.Fault))
	}

	e.mu.Lock()
	e.last = report
	e.cycles++
	e.mu.Unlock()

	return report, err
}

func (e *Engine) cycle(ctx context.Context, report *CycleReport) error {
	snap, err := e.reader.Snapshot(ctx)
	if err != nil {
		return err
	}

	columns, err := e.shape(snap)
	if err != nil {
		return err
	}

	report.Rows = snap.Rows
	report.Columns = columns

	rebuilt, err := e.store.EnsureCapacity(snap.Rows, columns)
	if err != nil {
		return err
	}

	if e.columns == 0 {
		e.mu.Lock()
		e.columns = columns
		e.mu.Unlock()

		e.active = make([]bool, columns)
	}

	if rebuilt {
		report.Rebuilt = true
		e.logger.Debug("record store rebuilt",
			logger.Int("rows", snap.Rows),
			logger.Int("columns", columns),
			logger.Uint64("generation", e.store.Generation()))
	}

	used := e.parse(snap)
	report.Used = len(used)

	defer e.snapshotView()

	if err := e.emitAggregate(ctx, used, report); err != nil {
		return err
	}

	if e.config.PerColumn {
		if err := e.emitColumns(ctx, used, report); err != nil {
			return err
		}
	}

	return nil
}

// shape validates the snapshot and returns the column count to use.
func (e *Engine) shape(snap *table.Snapshot) (int, error) {
	source := e.reader.Source()

	if snap.Rows == 0 {
		return 0, irqerrors.ErrTableStructure(source, "table has no rows")
	}

	if snap.Columns == 0 {
		return 0, irqerrors.ErrTableStructure(source, "header has no column markers")
	}

	if e.columns == 0 || snap.Columns == e.columns {
		return snap.Columns, nil
	}

	if !e.warned {
		e.warned = true
		e.logger.Warn("column count changed; keeping the count from the first cycle",
			logger.Int("columns", e.columns),
			logger.Int("observed", snap.Columns))
	}

	return e.columns, nil
}

// parse fills the store from the snapshot and returns the used rows.
func (e *Engine) parse(snap *table.Snapshot) []store.Row {
	e.store.Row(0).MarkUnused()

	e.mu.RLock()
	names := e.names
	e.mu.RUnlock()

	used := make([]store.Row, 0, snap.Rows-1)
	values := make([]uint64, e.store.Columns())

	for i := 1; i < snap.Rows; i++ {
		row := e.store.Row(i)
		tokens := snap.Line(i)

		if len(tokens) == 0 {
			row.MarkUnused()
			continue
		}

		id := NormalizeIdentifier(tokens[0])
		if id == "" {
			row.MarkUnused()
			continue
		}

		for c := range values {
			values[c] = 0
			if c+1 < len(tokens) {
				values[c] = parseCounter(tokens[c+1])
			}
		}

		row.Fill(id, DisplayName(id, names), values)
		used = append(used, row)
	}

	return used
}

func (e *Engine) emitAggregate(ctx context.Context, rows []store.Row, report *CycleReport) error {
	group := e.config.Aggregate

	if !e.aggregateDefined {
		if err := e.sink.DefineGroup(ctx, group); err != nil {
			return e.sinkError("define_group", err)
		}

		e.aggregateDefined = true
	}

	for _, row := range rows {
		h := row.AggregateHandle()

		if row.AggregateStale() || h.ID() != row.ID() {
			resolved, renamed, err := e.resolve(ctx, group.Key, row)
			if err != nil {
				return err
			}

			report.Resolutions++
			if renamed {
				report.Renames++
			}

			row.SetAggregateHandle(resolved)
			row.ResetColumnHandles()

			h = resolved
		}

		if err := e.sink.Append(ctx, h, row.Total()); err != nil {
			return e.sinkError("append", err)
		}
	}

	if err := e.sink.Commit(ctx, group.Key); err != nil {
		return e.sinkError("commit", err)
	}

	return nil
}

func (e *Engine) emitColumns(ctx context.Context, rows []store.Row, report *CycleReport) error {
	for c := 0; c < e.store.Columns(); c++ {
		spec := ColumnGroup(e.config.Column, c)

		if !e.active[c] {
			if !anyNonZero(rows, c) {
				continue
			}

			if err := e.sink.DefineGroup(ctx, spec); err != nil {
				return e.sinkError("define_group", err)
			}

			e.active[c] = true
			e.logger.Debug("column group activated", logger.String("group", spec.Key))
		}

		for _, row := range rows {
			h := row.ColumnHandle(c)

			if row.ColumnStale(c) || h.ID() != row.ID() {
				resolved, renamed, err := e.resolve(ctx, spec.Key, row)
				if err != nil {
					return err
				}

				report.Resolutions++
				if renamed {
					report.Renames++
				}

				row.SetColumnHandle(c, resolved)

				h = resolved
			}

			if err := e.sink.Append(ctx, h, row.Value(c)); err != nil {
				return e.sinkError("append", err)
			}
		}

		if err := e.sink.Commit(ctx, spec.Key); err != nil {
			return e.sinkError("commit", err)
		}
	}

	return nil
}

// resolve finds or creates the series for row in group and brings its label
// in line with the row's display name.
func (e *Engine) resolve(ctx context.Context, group string, row store.Row) (sink.Handle, bool, error) {
	h, err := e.sink.FindOrCreate(ctx, group, row.ID(), row.DisplayName())
	if err != nil {
		return nil, false, e.sinkError("find_or_create", err)
	}

	if h.Name() == row.DisplayName() {
		return h, false, nil
	}

	if err := e.sink.Rename(ctx, h, row.DisplayName()); err != nil {
		return nil, false, e.sinkError("rename", err)
	}

	return h, true, nil
}

func (e *Engine) sinkError(operation string, err error) error {
	return irqerrors.ErrSink(e.sink.Name(), operation, err).
		WithContext("table", e.config.Table)
}

func (e *Engine) snapshotView() {
	view := e.store.View()

	e.mu.Lock()
	e.view = view
	e.mu.Unlock()
}

func (e *Engine) activeCount() int {
	n := 0

	for _, on := range e.active {
		if on {
			n++
		}
	}

	return n
}

func anyNonZero(rows []store.Row, c int) bool {
	for _, row := range rows {
		if row.Value(c) != 0 {
			return true
		}
	}

	return false
}

// parseCounter reads the leading decimal digits of token. Anything else
// counts as 0; values past the uint64 range saturate.
func parseCounter(token string) uint64 {
	end := 0
	for end < len(token) && token[end] >= '0' && token[end] <= '9' {
		end++
	}

	if end == 0 {
		return 0
	}

	v, err := strconv.ParseUint(token[:end], 10, 64)
	if err != nil {
		return ^uint64(0)
	}

	return v
}
