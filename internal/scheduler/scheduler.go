// Package scheduler drives collection engines on a fixed interval. All
// engines run in one goroutine, so cycles never overlap and configuration
// reloads land between cycles.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/irqstat/internal/engine"
	irqerrors "github.com/xraph/irqstat/internal/errors"
	"github.com/xraph/irqstat/internal/logger"
)

// Cycler is one table's collection engine.
type Cycler interface {
	Name() string
	RunCycle(ctx context.Context) (engine.CycleReport, error)
	SetDisplayNames(names map[string]string)
}

// Config contains scheduler settings.
type Config struct {
	Interval time.Duration
	// FaultLogInterval limits how often a repeating fault is logged per table.
	FaultLogInterval time.Duration
}

// Stats contains scheduler statistics.
type Stats struct {
	Started     time.Time        `json:"started"`
	Cycles      int64            `json:"cycles"`
	Faults      map[string]int64 `json:"faults"`
	Reloads     int64            `json:"reloads"`
	LastSuccess time.Time        `json:"last_success"`
	LastFault   time.Time        `json:"last_fault"`
	LastError   string           `json:"last_error,omitempty"`
	Running     bool             `json:"running"`
}

// Scheduler runs engines until its context ends or a fatal fault occurs.
type Scheduler struct {
	config  Config
	engines []Cycler
	logger  logger.Logger
	now     func() time.Time
	reloads chan map[string]map[string]string

	throttles map[string]*rate.Sometimes

	mu    sync.RWMutex
	stats Stats
}

// New creates a scheduler for engines.
func New(config Config, engines []Cycler, log logger.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}

	if config.FaultLogInterval <= 0 {
		config.FaultLogInterval = time.Minute
	}

	if log == nil {
		log = logger.NewNoopLogger()
	}

	s := &Scheduler{
		config:    config,
		engines:   engines,
		logger:    log.Named("scheduler"),
		now:       time.Now,
		reloads:   make(chan map[string]map[string]string, 1),
		throttles: make(map[string]*rate.Sometimes, len(engines)),
		stats:     Stats{Faults: make(map[string]int64)},
	}

	for _, e := range engines {
		s.throttles[e.Name()] = &rate.Sometimes{First: 1, Interval: config.FaultLogInterval}
	}

	return s
}

// Reload queues new display-name overrides, keyed by table name. Only the
// most recent pending set is kept; it is applied before the next cycle.
func (s *Scheduler) Reload(names map[string]map[string]string) {
	for {
		select {
		case s.reloads <- names:
			return
		default:
		}

		select {
		case <-s.reloads:
		default:
		}
	}
}

// Run cycles every engine once immediately and then on every tick. It
// returns nil when ctx ends and the fault when an engine reports a fatal one.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.stats.Started = s.now()
	s.stats.Running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stats.Running = false
		s.mu.Unlock()
	}()

	s.logger.Info("scheduler started",
		logger.Duration("interval", s.config.Interval),
		logger.Int("tables", len(s.engines)))

	if err := s.RunOnce(ctx); irqerrors.IsFatal(err) {
		return err
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return nil
		case names := <-s.reloads:
			s.apply(names)
		case <-ticker.C:
			s.drainReload()

			if err := s.RunOnce(ctx); irqerrors.IsFatal(err) {
				return err
			}
		}
	}
}

// RunOnce runs one cycle of every engine in order. It stops at the first
// fatal fault; other faults are recorded and joined into the result.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error

	for _, e := range s.engines {
		if ctx.Err() != nil {
			break
		}

		err := s.runEngine(ctx, e)
		if err == nil {
			continue
		}

		if irqerrors.IsFatal(err) {
			s.logger.Error("fatal fault, stopping", logger.Table(e.Name()), logger.Error(err))
			return err
		}

		errs = append(errs, err)
	}

	return irqerrors.Join(errs...)
}

func (s *Scheduler) runEngine(ctx context.Context, e Cycler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in cycle of %s: %v", e.Name(), r)
			s.logger.Error("panic in collection cycle", logger.Table(e.Name()), logger.Any("panic", r))
			s.record(e.Name(), irqerrors.FaultTransient, err)
		}
	}()

	report, err := e.RunCycle(ctx)
	if err == nil {
		s.record(e.Name(), irqerrors.FaultNone, nil)

		if report.Rebuilt {
			s.logger.Debug("cycle rebuilt store",
				logger.Table(e.Name()),
				logger.Int("rows", report.Rows),
				logger.Int("columns", report.Columns))
		}

		return nil
	}

	class := irqerrors.Classify(err)
	s.record(e.Name(), class, err)

	if class != irqerrors.FaultFatal {
		s.throttles[e.Name()].Do(func() {
			s.logger.Warn("collection cycle skipped",
				logger.Table(e.Name()),
				logger.String("fault", string(class)),
				logger.Error(err))
		})
	}

	return err
}

func (s *Scheduler) record(table string, class irqerrors.FaultClass, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Cycles++

	if class == irqerrors.FaultNone {
		s.stats.LastSuccess = s.now()
		return
	}

	s.stats.Faults[string(class)]++
	s.stats.LastFault = s.now()
	s.stats.LastError = table + ": " + err.Error()
}

func (s *Scheduler) drainReload() {
	select {
	case names := <-s.reloads:
		s.apply(names)
	default:
	}
}

func (s *Scheduler) apply(names map[string]map[string]string) {
	for _, e := range s.engines {
		e.SetDisplayNames(names[e.Name()])
	}

	s.mu.Lock()
	s.stats.Reloads++
	s.mu.Unlock()

	s.logger.Info("display names reloaded")
}

// Stats returns a copy of the statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.stats
	st.Faults = make(map[string]int64, len(s.stats.Faults))

	for k, v := range s.stats.Faults {
		st.Faults[k] = v
	}

	return st
}

// Health fails when the scheduler is not running or no cycle has succeeded
// for more than two intervals.
func (s *Scheduler) Health(_ context.Context) error {
	st := s.Stats()

	if !st.Running {
		return irqerrors.ErrHealthCheckFailed("scheduler", fmt.Errorf("not running"))
	}

	since := st.LastSuccess
	if since.IsZero() {
		since = st.Started
	}

	if stalled := s.now().Sub(since); stalled > 2*s.config.Interval {
		return irqerrors.ErrHealthCheckFailed("scheduler",
			fmt.Errorf("no successful cycle for %s (last error: %s)", stalled.Round(time.Millisecond), st.LastError))
	}

	return nil
}
