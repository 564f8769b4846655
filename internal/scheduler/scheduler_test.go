package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/xraph/irqstat/internal/engine"
	irqerrors "github.com/xraph/irqstat/internal/errors"
	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink/memory"
	"github.com/xraph/irqstat/internal/table"
)

type fakeCycler struct {
	name string

	mu     sync.Mutex
	errs   []error
	runs   int
	names  []map[string]string
	events []string
}

func (f *fakeCycler) Name() string { return f.name }

func (f *fakeCycler) RunCycle(context.Context) (engine.CycleReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.runs++
	f.events = append(f.events, "cycle")

	if len(f.errs) == 0 {
		return engine.CycleReport{Table: f.name}, nil
	}

	err := f.errs[0]
	f.errs = f.errs[1:]

	return engine.CycleReport{Table: f.name}, err
}

func (f *fakeCycler) SetDisplayNames(names map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.names = append(f.names, names)
	f.events = append(f.events, "reload")
}

func (f *fakeCycler) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.runs
}

func TestRunOnceRunsEveryEngine(t *testing.T) {
	a, b := &fakeCycler{name: "a"}, &fakeCycler{name: "b"}
	s := New(Config{Interval: time.Second}, []Cycler{a, b}, logger.NewNoopLogger())

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
	assert.EqualValues(t, 2, s.Stats().Cycles)
}

func TestTransientFaultsContinue(t *testing.T) {
	a := &fakeCycler{name: "a", errs: []error{irqerrors.ErrTableRead("/proc/softirqs", errors.New("EOF"))}}
	b := &fakeCycler{name: "b"}
	s := New(Config{}, []Cycler{a, b}, logger.NewNoopLogger())

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, irqerrors.IsTransient(err))
	assert.Equal(t, 1, b.count(), "later engines still run")

	st := s.Stats()
	assert.EqualValues(t, 1, st.Faults["transient"])
	assert.Contains(t, st.LastError, "a: ")
	assert.False(t, st.LastSuccess.IsZero())
}

func TestFatalFaultStopsRun(t *testing.T) {
	fatal := irqerrors.ErrStoreAllocation(1<<40, 1<<40, errors.New("too large"))
	a := &fakeCycler{name: "a", errs: []error{nil, fatal}}
	b := &fakeCycler{name: "b"}
	s := New(Config{Interval: 10 * time.Millisecond}, []Cycler{a, b}, logger.NewNoopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.Run(ctx)
	require.Error(t, err)
	assert.True(t, irqerrors.IsFatal(err))
	assert.Equal(t, 2, a.count())
	assert.Equal(t, 1, b.count(), "engines after the fatal one are skipped")
	assert.False(t, s.Stats().Running)
}

func TestRunStopsOnCancel(t *testing.T) {
	a := &fakeCycler{name: "a"}
	s := New(Config{Interval: 5 * time.Millisecond}, []Cycler{a}, logger.NewNoopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return a.count() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()

	assert.NoError(t, <-done)
}

func TestReloadAppliedBetweenCycles(t *testing.T) {
	a := &fakeCycler{name: "softirqs"}
	s := New(Config{Interval: 5 * time.Millisecond}, []Cycler{a}, logger.NewNoopLogger())

	s.Reload(map[string]map[string]string{"softirqs": {"NET_RX": "old"}})
	s.Reload(map[string]map[string]string{"softirqs": {"NET_RX": "net rx"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Stats().Reloads == 1 && a.count() >= 2 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	a.mu.Lock()
	defer a.mu.Unlock()

	require.Len(t, a.names, 1, "only the latest pending reload is applied")
	assert.Equal(t, "net rx", a.names[0]["NET_RX"])
	assert.Equal(t, "cycle", a.events[0], "first cycle runs before the reload is picked up")
}

func TestFaultLoggingIsThrottled(t *testing.T) {
	log, logs := logger.NewObservedLogger(zapcore.WarnLevel)

	readErr := irqerrors.ErrTableRead("/proc/softirqs", errors.New("EOF"))
	a := &fakeCycler{name: "a", errs: []error{readErr, readErr, readErr}}
	s := New(Config{FaultLogInterval: time.Hour}, []Cycler{a}, log)

	for i := 0; i < 3; i++ {
		_ = s.RunOnce(context.Background())
	}

	assert.Equal(t, 1, logs.FilterMessage("collection cycle skipped").Len())
	assert.EqualValues(t, 3, s.Stats().Faults["transient"])
}

func TestPanicIsRecovered(t *testing.T) {
	s := New(Config{}, []Cycler{panicky{}}, logger.NewNoopLogger())

	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.False(t, irqerrors.IsFatal(err))
	assert.EqualValues(t, 1, s.Stats().Faults["transient"])
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }

func (panicky) RunCycle(context.Context) (engine.CycleReport, error) { panic("boom") }

func (panicky) SetDisplayNames(map[string]string) {}

func TestHealth(t *testing.T) {
	now := time.Unix(1000, 0)
	s := New(Config{Interval: time.Second}, nil, logger.NewNoopLogger())
	s.now = func() time.Time { return now }

	assert.Error(t, s.Health(context.Background()), "not running")

	s.mu.Lock()
	s.stats.Running = true
	s.stats.Started = now
	s.mu.Unlock()

	assert.NoError(t, s.Health(context.Background()))

	now = now.Add(3 * time.Second)
	err := s.Health(context.Background())
	require.Error(t, err)
	assert.True(t, irqerrors.Is(err, &irqerrors.IrqError{Code: irqerrors.CodeHealthCheck}))

	s.record("a", irqerrors.FaultNone, nil)
	assert.NoError(t, s.Health(context.Background()))
}

func TestDrivesRealEngine(t *testing.T) {
	reader := table.NewStaticReader("softirqs", table.DefaultColumnPrefix, "CPU0 CPU1\nNET_RX: 10 20\n")
	sink := memory.New()
	e := engine.New(engine.DefaultConfig(), reader, sink, logger.NewNoopLogger())

	s := New(Config{}, []Cycler{e}, logger.NewNoopLogger())
	s.Reload(map[string]map[string]string{"softirqs": {"NET_RX": "net rx"}})
	s.drainReload()

	require.NoError(t, s.RunOnce(context.Background()))

	series := sink.Index().Series("system.softirqs")
	require.Len(t, series, 1)
	assert.Equal(t, "net rx", series[0].Name())
	assert.EqualValues(t, 30, series[0].Value())
}
