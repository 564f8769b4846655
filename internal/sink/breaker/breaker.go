// Package breaker guards a remote sink with a circuit breaker.
//
// Remote backends fail independently of the host being sampled. While a
// backend is down every commit would abort the cycle, starving the local
// sinks too. The breaker lets the first MaxFailures consecutive commit
// errors through, then opens and drops batches until RecoveryTimeout has
// passed. The next commit is a probe: success closes the breaker, failure
// opens it again.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink"
)

// Config contains circuit breaker configuration.
type Config struct {
	Enabled         bool          `json:"enabled"          yaml:"enabled"`
	MaxFailures     int           `json:"max_failures"     yaml:"max_failures"`
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
}

// DefaultConfig opens after three failed commits and probes every 30s.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxFailures:     3,
		RecoveryTimeout: 30 * time.Second,
	}
}

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Stats represents circuit breaker statistics.
type Stats struct {
	State           string    `json:"state"`
	Commits         int64     `json:"commits"`
	Failures        int64     `json:"failures"`
	Dropped         int64     `json:"dropped"`
	StateChanges    int64     `json:"state_changes"`
	LastStateChange time.Time `json:"last_state_change"`
	LastFailure     time.Time `json:"last_failure"`
	LastSuccess     time.Time `json:"last_success"`
}

// Discarder is implemented by sinks that buffer per-group batches. An open
// breaker discards the batch instead of committing it.
type Discarder interface {
	Discard(group string)
}

// Sink wraps another sink. Everything except Commit passes through.
type Sink struct {
	inner  sink.Sink
	config Config
	logger logger.Logger
	now    func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	stats    Stats
}

var _ sink.Sink = (*Sink)(nil)

// New wraps inner.
func New(inner sink.Sink, config Config, log logger.Logger) *Sink {
	if config.MaxFailures <= 0 {
		config.MaxFailures = DefaultConfig().MaxFailures
	}

	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}

	if log == nil {
		log = logger.NewNoopLogger()
	}

	return &Sink{
		inner:  inner,
		config: config,
		logger: log.With(logger.Sink(inner.Name())),
		now:    time.Now,
		stats:  Stats{LastStateChange: time.Now()},
	}
}

func (s *Sink) Name() string {
	return s.inner.Name()
}

// Unwrap returns the guarded sink.
func (s *Sink) Unwrap() sink.Sink {
	return s.inner
}

func (s *Sink) DefineGroup(ctx context.Context, spec sink.GroupSpec) error {
	return s.inner.DefineGroup(ctx, spec)
}

func (s *Sink) FindOrCreate(ctx context.Context, group, id, name string) (sink.Handle, error) {
	return s.inner.FindOrCreate(ctx, group, id, name)
}

func (s *Sink) Rename(ctx context.Context, h sink.Handle, name string) error {
	return s.inner.Rename(ctx, h, name)
}

func (s *Sink) Append(ctx context.Context, h sink.Handle, value uint64) error {
	return s.inner.Append(ctx, h, value)
}

// Commit commits through the breaker. While open the batch is discarded
// and nil is returned. A failed probe reopens the breaker without
// reporting the error.
func (s *Sink) Commit(ctx context.Context, group string) error {
	if !s.allow() {
		if d, ok := s.inner.(Discarder); ok {
			d.Discard(group)
		}

		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()

		return nil
	}

	err := s.inner.Commit(ctx, group)

	probe := s.record(err)
	if err != nil && probe {
		s.logger.Warn("probe commit failed", logger.String("group", group), logger.Error(err))

		return nil
	}

	return err
}

func (s *Sink) Close() error {
	return s.inner.Close()
}

// State returns the current state.
func (s *Sink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Stats returns a copy of the statistics.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.State = s.state.String()

	return stats
}

// Reset closes the breaker and clears the failure count.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setState(StateClosed)
	s.failures = 0
}

func (s *Sink) allow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateOpen {
		return true
	}

	if s.now().Sub(s.openedAt) < s.config.RecoveryTimeout {
		return false
	}

	s.setState(StateHalfOpen)

	return true
}

// record updates the state after a commit and reports whether the commit
// was a half-open probe.
func (s *Sink) record(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	probe := s.state == StateHalfOpen
	now := s.now()

	s.stats.Commits++

	if err == nil {
		s.failures = 0
		s.stats.LastSuccess = now
		s.setState(StateClosed)

		return probe
	}

	s.failures++
	s.stats.Failures++
	s.stats.LastFailure = now

	if probe || s.failures >= s.config.MaxFailures {
		s.openedAt = now
		s.setState(StateOpen)
	}

	return probe
}

func (s *Sink) setState(next State) {
	if s.state == next {
		return
	}

	prev := s.state
	s.state = next
	s.stats.StateChanges++
	s.stats.LastStateChange = s.now()

	s.logger.Info("circuit breaker state changed",
		logger.String("old_state", prev.String()),
		logger.String("new_state", next.String()),
		logger.Int("failures", s.failures))
}
