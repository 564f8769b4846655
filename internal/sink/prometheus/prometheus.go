// Package prometheus exposes sink series as Prometheus counters.
package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink"
)

// Config contains Prometheus sink configuration.
type Config struct {
	Enabled         bool   `json:"enabled"           yaml:"enabled"`
	Namespace       string `json:"namespace"         yaml:"namespace"`
	EnableGoMetrics bool   `json:"enable_go_metrics" yaml:"enable_go_metrics"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Namespace: "irqstat"}
}

// Sink keeps the latest value of every series and reports them as const
// counters on scrape. Series appear and get relabelled between scrapes, so
// the collector is unchecked.
type Sink struct {
	config   Config
	index    *sink.Index
	registry *prometheus.Registry
	logger   logger.Logger

	mu      sync.RWMutex
	commits map[string]time.Time
}

// New creates the sink and its private registry.
func New(config Config, log logger.Logger) (*Sink, error) {
	if log == nil {
		log = logger.NewNoopLogger()
	}

	s := &Sink{
		config:   config,
		index:    sink.NewIndex(),
		registry: prometheus.NewRegistry(),
		logger:   log.Named("prometheus"),
		commits:  make(map[string]time.Time),
	}

	if err := s.registry.Register(s); err != nil {
		return nil, fmt.Errorf("register series collector: %w", err)
	}

	if config.EnableGoMetrics {
		s.registry.MustRegister(collectors.NewGoCollector())
		s.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return s, nil
}

// Name returns the sink name.
func (s *Sink) Name() string {
	return "prometheus"
}

// Registry returns the private registry.
func (s *Sink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog: promLogger{s.logger},
	})
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

	return nil
}

// Commit records when the group was last complete; values are visible to
// scrapes as soon as they are appended.
func (s *Sink) Commit(_ context.Context, group string) error {
	s.mu.Lock()
	s.commits[group] = time.Now()
	s.mu.Unlock()

	return nil
}

func (s *Sink) Close() error {
	s.registry.Unregister(s)

	return nil
}

// Describe sends nothing, which makes the collector unchecked.
func (s *Sink) Describe(chan<- *prometheus.Desc) {}

// Collect emits one counter per series and one commit timestamp per group.
func (s *Sink) Collect(ch chan<- prometheus.Metric) {
	s.mu.RLock()
	commits := make(map[string]time.Time, len(s.commits))
	for k, v := range s.commits {
		commits[k] = v
	}
	s.mu.RUnlock()

	commitDesc := prometheus.NewDesc(
		prometheus.BuildFQName(s.config.Namespace, "", "last_commit_timestamp_seconds"),
		"Unix time of the last completed sample batch per group.",
		[]string{"group"}, nil,
	)

	for _, spec := range s.index.Groups() {
		desc := prometheus.NewDesc(
			MetricName(s.config.Namespace, spec.Key),
			help(spec),
			[]string{"id", "name"}, nil,
		)

		for _, series := range s.index.Series(spec.Key) {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue,
				float64(series.Value()), series.ID(), series.Name())
		}

		if at, ok := commits[spec.Key]; ok {
			ch <- prometheus.MustNewConstMetric(commitDesc, prometheus.GaugeValue,
				float64(at.UnixNano())/1e9, spec.Key)
		}
	}
}

// MetricName builds "<namespace>_<group>_total" with the group key reduced
// to characters valid in a metric name.
func MetricName(namespace, group string) string {
	return prometheus.BuildFQName(namespace, "", sanitize(group)+"_total")
}

func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}

func help(spec sink.GroupSpec) string {
	if spec.Title == "" {
		return "Counter series for " + spec.Key + "."
	}

	if spec.Units == "" {
		return spec.Title + "."
	}

	return spec.Title + " (" + spec.Units + ")."
}

type promLogger struct {
	logger logger.Logger
}

func (l promLogger) Println(v ...any) {
	l.logger.Error(fmt.Sprint(v...))
}
