package cli

import (
	"context"
	"errors"

	"github.com/xraph/irqstat/internal/config"
	"github.com/xraph/irqstat/internal/engine"
	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/scheduler"
	"github.com/xraph/irqstat/internal/server"
	"github.com/xraph/irqstat/internal/sink"
	"github.com/xraph/irqstat/internal/sink/breaker"
	"github.com/xraph/irqstat/internal/sink/influx"
	"github.com/xraph/irqstat/internal/sink/memory"
	"github.com/xraph/irqstat/internal/sink/prometheus"
	"github.com/xraph/irqstat/internal/sink/redis"
	"github.com/xraph/irqstat/internal/table"
	"github.com/xraph/irqstat/internal/telemetry"
)

// Collector is a fully wired process: sinks, engines, scheduler and server.
type Collector struct {
	Config     *config.Config
	Logger     logger.Logger
	Memory     *memory.Sink
	Prometheus *prometheus.Sink
	Influx     *influx.Sink
	Redis      *redis.Sink
	Breakers   []*breaker.Sink
	Sink       sink.Sink
	Engines    []*engine.Engine
	Scheduler  *scheduler.Scheduler
	Server     *server.Server
	Telemetry  *telemetry.Provider
}

// BuildCollector wires every component described by cfg.
func BuildCollector(ctx context.Context, cfg *config.Config, build BuildInfo, instance string, log logger.Logger) (*Collector, error) {
	c := &Collector{Config: cfg, Logger: log}

	tp, err := telemetry.New(ctx, cfg.Tracing, build.Version, instance, log)
	if err != nil {
		return nil, err
	}

	c.Telemetry = tp

	var sinks []sink.Sink

	health := map[string]server.HealthFunc{}

	if cfg.Sinks.Memory.Enabled {
		c.Memory = memory.New()
		sinks = append(sinks, c.Memory)
	}

	if cfg.Sinks.Prometheus.Enabled {
		c.Prometheus, err = prometheus.New(cfg.Sinks.Prometheus, log)
		if err != nil {
			return nil, err
		}

		sinks = append(sinks, c.Prometheus)
	}

	if cfg.Sinks.Influx.Enabled {
		c.Influx = influx.New(cfg.Sinks.Influx, instance, log)
		sinks = append(sinks, c.guard(c.Influx))
		health["influx"] = c.Influx.Ping
	}

	if cfg.Sinks.Redis.Enabled {
		c.Redis = redis.New(cfg.Sinks.Redis, instance, log)
		sinks = append(sinks, c.guard(c.Redis))
		health["redis"] = c.Redis.Ping
	}

	if len(sinks) == 0 {
		return nil, errors.New("no sink enabled")
	}

	c.Sink = sink.NewMulti(sinks...)

	cyclers := make([]scheduler.Cycler, 0, len(cfg.Tables))
	tables := make([]server.Table, 0, len(cfg.Tables))

	for _, t := range cfg.EnabledTables() {
		reader := table.NewFileReader(cfg.HostPrefix, t.Path, t.ColumnPrefix)
		e := engine.New(t.Engine(cfg.Limits), reader, c.Sink, log,
			engine.WithTracer(tp.Tracer("github.com/xraph/irqstat/internal/engine")))

		c.Engines = append(c.Engines, e)
		cyclers = append(cyclers, e)
		tables = append(tables, e)
	}

	c.Scheduler = scheduler.New(scheduler.Config{Interval: cfg.Interval}, cyclers, log)
	health["scheduler"] = c.Scheduler.Health

	opts := server.Options{
		Memory:   c.Memory,
		Tables:   tables,
		Health:   health,
		Version:  build.Version,
		Instance: instance,
	}

	if c.Prometheus != nil {
		opts.Metrics = c.Prometheus.Handler()
	}

	c.Server = server.New(opts, log)

	return c, nil
}

// guard wraps a remote sink in a circuit breaker when configured.
func (c *Collector) guard(s sink.Sink) sink.Sink {
	if !c.Config.Sinks.Breaker.Enabled {
		return s
	}

	b := breaker.New(s, c.Config.Sinks.Breaker, c.Logger)
	c.Breakers = append(c.Breakers, b)

	return b
}

// Close releases sinks and flushes traces.
func (c *Collector) Close(ctx context.Context) error {
	var errs []error

	if c.Sink != nil {
		errs = append(errs, c.Sink.Close())
	}

	if c.Telemetry != nil {
		errs = append(errs, c.Telemetry.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
