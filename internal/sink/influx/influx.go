// Package influx writes sink series to InfluxDB 2.x.
package influx

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink"
)

// Config contains InfluxDB connection settings.
type Config struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url"     yaml:"url"`
	Token   string `json:"-"       yaml:"token"`
	Org     string `json:"org"     yaml:"org"`
	Bucket  string `json:"bucket"  yaml:"bucket"`
}

// DefaultConfig returns settings for a local InfluxDB.
func DefaultConfig() Config {
	return Config{
		URL:    "http://localhost:8086",
		Org:    "irqstat",
		Bucket: "irqstat",
	}
}

// Sink buffers one point per Append and writes a group's batch on Commit.
// The group key is the measurement; the series id and display name are tags.
type Sink struct {
	client   influxdb2.Client
	writer   api.WriteAPIBlocking
	index    *sink.Index
	instance string
	logger   logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending map[string][]*write.Point
}

// New connects to InfluxDB. instance is added as a tag to every point.
func New(config Config, instance string, log logger.Logger) *Sink {
	client := influxdb2.NewClient(config.URL, config.Token)

	s := NewWithWriter(client.WriteAPIBlocking(config.Org, config.Bucket), instance, log)
	s.client = client

	return s
}

// NewWithWriter creates a sink around an existing write API.
func NewWithWriter(writer api.WriteAPIBlocking, instance string, log logger.Logger) *Sink {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	return &Sink{
		writer:   writer,
		index:    sink.NewIndex(),
		instance: instance,
		logger:   log.Named("influx"),
		now:      time.Now,
		pending:  make(map[string][]*write.Point),
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "influx"
}

// Ping checks that the server is reachable. Sinks built around a bare
// writer always report healthy.
func (s *Sink) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}

	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("influxdb at %s is not ready", s.client.ServerURL())
	}

	return nil
}

func (s *Sink) DefineGroup(_ context.Context, spec sink.GroupSpec) error {
	s.index.Define(spec)

	return nil
}

func (s *Sink) FindOrCreate(_ context.Context, group, id, name string) (sink.Handle, error) {
	series, _ := s.index.FindOrCreate(group, id, name)

	return series, nil
}

func (s *Sink) Rename(_ context.Context, h sink.Handle, name string) error {
	series, ok := s.index.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %T", sink.ErrForeignHandle, h)
	}

	s.index.Rename(series, name)

	return nil
}

func (s *Sink) Append(_ context.Context, h sink.Handle, value uint64) error {
	series, ok := s.index.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %T", sink.ErrForeignHandle, h)
	}

	s.index.Set(series, value)

	p := influxdb2.NewPointWithMeasurement(series.Group()).
		AddTag("id", series.ID()).
		AddTag("name", series.Name()).
		AddField("value", value).
		SetTime(s.now())

	if s.instance != "" {
		p.AddTag("instance", s.instance)
	}

	if spec, ok := s.index.Group(series.Group()); ok && spec.Family != "" {
		p.AddTag("family", spec.Family)
	}

	s.mu.Lock()
	s.pending[series.Group()] = append(s.pending[series.Group()], p)
	s.mu.Unlock()

	return nil
}

// Commit writes the group's buffered points. The buffer is dropped even when
// the write fails; cumulative counters make the next batch self-contained.
func (s *Sink) Commit(ctx context.Context, group string) error {
	s.mu.Lock()
	points := s.pending[group]
	delete(s.pending, group)
	s.mu.Unlock()

	if len(points) == 0 {
		return nil
	}

	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points for %s: %w", len(points), group, err)
	}

	s.logger.Debug("batch written", logger.String("group", group), logger.Int("points", len(points)))

	return nil
}

// Discard drops the buffered points of group.
func (s *Sink) Discard(group string) {
	s.mu.Lock()
	delete(s.pending, group)
	s.mu.Unlock()
}

// Pending returns the number of buffered points across groups.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, points := range s.pending {
		n += len(points)
	}

	return n
}

func (s *Sink) Close() error {
	if s.client != nil {
		s.client.Close()
	}

	return nil
}
