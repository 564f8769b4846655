// Package redis publishes sink series to Redis: series labels in a hash per
// group and samples in a capped stream per group.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink"
)

// Config contains Redis connection settings.
type Config struct {
	Enabled     bool          `json:"enabled"      yaml:"enabled"`
	Addr        string        `json:"addr"         yaml:"addr"`
	Password    string        `json:"-"            yaml:"password"`
	DB          int           `json:"db"           yaml:"db"`
	Prefix      string        `json:"prefix"       yaml:"prefix"`
	MaxLen      int64         `json:"max_len"      yaml:"max_len"`
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	MaxRetries  int           `json:"max_retries"  yaml:"max_retries"`
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		Prefix:      "irqstat",
		MaxLen:      10000,
		DialTimeout: 5 * time.Second,
		MaxRetries:  3,
	}
}

// Sink queues commands per group and sends them in one pipeline on Commit.
type Sink struct {
	client   redis.UniversalClient
	config   Config
	index    *sink.Index
	instance string
	logger   logger.Logger
	now      func() time.Time

	mu    sync.Mutex
	pipes map[string]redis.Pipeliner
	// stale marks groups whose last pipeline was lost. Their metadata is
	// queued again in full with the next pipeline.
	stale map[string]bool
}

// New creates a sink with its own client. instance is written with every sample.
func New(config Config, instance string, log logger.Logger) *Sink {
	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
		MaxRetries:  config.MaxRetries,
	})

	return NewWithClient(client, config, instance, log)
}

// NewWithClient creates a sink around an existing client.
func NewWithClient(client redis.UniversalClient, config Config, instance string, log logger.Logger) *Sink {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	if config.Prefix == "" {
		config.Prefix = "irqstat"
	}

	return &Sink{
		client:   client,
		config:   config,
		index:    sink.NewIndex(),
		instance: instance,
		logger:   log.Named("redis"),
		now:      time.Now,
		pipes:    make(map[string]redis.Pipeliner),
		stale:    make(map[string]bool),
	}
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "redis"
}

// GroupKey is the hash holding a group's metadata.
func (s *Sink) GroupKey(group string) string {
	return s.config.Prefix + ":group:" + group
}

// SeriesKey is the hash mapping series ids to display names.
func (s *Sink) SeriesKey(group string) string {
	return s.config.Prefix + ":series:" + group
}

// SamplesKey is the stream receiving a group's samples.
func (s *Sink) SamplesKey(group string) string {
	return s.config.Prefix + ":samples:" + group
}

// Ping checks the connection.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Sink) DefineGroup(ctx context.Context, spec sink.GroupSpec) error {
	if !s.index.Define(spec) {
		return nil
	}

	s.queueGroup(ctx, s.pipe(ctx, spec.Key), spec)

	return nil
}

func (s *Sink) FindOrCreate(ctx context.Context, group, id, name string) (sink.Handle, error) {
	series, created := s.index.FindOrCreate(group, id, name)
	if created {
		s.pipe(ctx, group).HSet(ctx, s.SeriesKey(group), id, name)
	}

	return series, nil
}

func (s *Sink) Rename(ctx context.Context, h sink.Handle, name string) error {
	series, ok := s.index.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %T", sink.ErrForeignHandle, h)
	}

	s.index.Rename(series, name)
	s.pipe(ctx, series.Group()).HSet(ctx, s.SeriesKey(series.Group()), series.ID(), name)

	return nil
}

func (s *Sink) Append(ctx context.Context, h sink.Handle, value uint64) error {
	series, ok := s.index.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %T", sink.ErrForeignHandle, h)
	}

	s.index.Set(series, value)

	values := map[string]any{
		"id":    series.ID(),
		"value": strconv.FormatUint(value, 10),
		"ts":    s.now().UnixMilli(),
	}

	if s.instance != "" {
		values["instance"] = s.instance
	}

	s.pipe(ctx, series.Group()).XAdd(ctx, &redis.XAddArgs{
		Stream: s.SamplesKey(series.Group()),
		MaxLen: s.config.MaxLen,
		Approx: true,
		Values: values,
	})

	return nil
}

// Commit sends the group's queued commands. They are discarded on failure
// and the group's metadata is rewritten with the next pipeline.
func (s *Sink) Commit(ctx context.Context, group string) error {
	s.mu.Lock()
	pipe, ok := s.pipes[group]
	delete(s.pipes, group)
	s.mu.Unlock()

	if !ok || pipe.Len() == 0 {
		return nil
	}

	n := pipe.Len()

	if _, err := pipe.Exec(ctx); err != nil {
		s.markStale(group)

		return fmt.Errorf("exec %d commands for %s: %w", n, group, err)
	}

	s.logger.Debug("pipeline executed", logger.String("group", group), logger.Int("commands", n))

	return nil
}

// Discard drops the queued commands of group.
func (s *Sink) Discard(group string) {
	s.mu.Lock()
	pipe, ok := s.pipes[group]
	delete(s.pipes, group)
	s.mu.Unlock()

	if ok {
		pipe.Discard()
		s.markStale(group)
	}
}

// Queued returns the number of commands waiting for Commit in group.
func (s *Sink) Queued(group string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pipe, ok := s.pipes[group]; ok {
		return pipe.Len()
	}

	return 0
}

func (s *Sink) Close() error {
	return s.client.Close()
}

func (s *Sink) pipe(ctx context.Context, group string) redis.Pipeliner {
	s.mu.Lock()
	defer s.mu.Unlock()

	pipe, ok := s.pipes[group]
	if ok {
		return pipe
	}

	pipe = s.client.Pipeline()
	s.pipes[group] = pipe

	if s.stale[group] {
		delete(s.stale, group)
		s.requeue(ctx, pipe, group)
	}

	return pipe
}

func (s *Sink) markStale(group string) {
	s.mu.Lock()
	s.stale[group] = true
	s.mu.Unlock()
}

// requeue writes the group's metadata and every series label known to the
// index.
func (s *Sink) requeue(ctx context.Context, pipe redis.Pipeliner, group string) {
	if spec, ok := s.index.Group(group); ok && spec != (sink.GroupSpec{Key: group}) {
		s.queueGroup(ctx, pipe, spec)
	}

	series := s.index.Series(group)
	if len(series) == 0 {
		return
	}

	labels := make([]any, 0, 2*len(series))
	for _, ser := range series {
		labels = append(labels, ser.ID(), ser.Name())
	}

	pipe.HSet(ctx, s.SeriesKey(group), labels...)
}

func (s *Sink) queueGroup(ctx context.Context, pipe redis.Pipeliner, spec sink.GroupSpec) {
	pipe.HSet(ctx, s.GroupKey(spec.Key),
		"title", spec.Title,
		"units", spec.Units,
		"family", spec.Family,
		"context", spec.Context,
		"priority", spec.Priority,
		"type", string(spec.Type),
	)
}
