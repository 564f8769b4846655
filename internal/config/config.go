// Package config loads the irqstat configuration: a YAML file decoded over
// the defaults, then environment overrides, then validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/irqstat/internal/engine"
	irqerrors "github.com/xraph/irqstat/internal/errors"
	"github.com/xraph/irqstat/internal/logger"
	"github.com/xraph/irqstat/internal/sink"
	"github.com/xraph/irqstat/internal/sink/breaker"
	"github.com/xraph/irqstat/internal/sink/influx"
	"github.com/xraph/irqstat/internal/sink/prometheus"
	"github.com/xraph/irqstat/internal/sink/redis"
	"github.com/xraph/irqstat/internal/store"
	"github.com/xraph/irqstat/internal/table"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "IRQSTAT_"

// Config is the complete process configuration.
type Config struct {
	Interval   time.Duration        `json:"interval"    yaml:"interval"`
	HostPrefix string               `json:"host_prefix" yaml:"host_prefix"`
	Logging    logger.LoggingConfig `json:"logging"     yaml:"logging"`
	Limits     store.Limits         `json:"limits"      yaml:"limits"`
	Tables     []TableConfig        `json:"tables"      yaml:"tables"`
	Sinks      SinksConfig          `json:"sinks"       yaml:"sinks"`
	Server     ServerConfig         `json:"server"      yaml:"server"`
	Tracing    TracingConfig        `json:"tracing"     yaml:"tracing"`
}

// TableConfig describes one counter table.
type TableConfig struct {
	Name         string            `json:"name"          yaml:"name"`
	Path         string            `json:"path"          yaml:"path"`
	Disabled     bool              `json:"disabled"      yaml:"disabled"`
	ColumnPrefix string            `json:"column_prefix" yaml:"column_prefix"`
	PerColumn    bool              `json:"per_column"    yaml:"per_column"`
	Aggregate    sink.GroupSpec    `json:"aggregate"     yaml:"aggregate"`
	Column       sink.GroupSpec    `json:"column"        yaml:"column"`
	Names        map[string]string `json:"names"         yaml:"names"`
}

// UnmarshalYAML decodes a table over the softirqs defaults so partial
// entries inherit column prefix, per-column emission and group metadata.
func (t *TableConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain TableConfig

	def := plain(softirqsTable())
	def.Name = ""
	def.Path = ""

	if err := node.Decode(&def); err != nil {
		return err
	}

	*t = TableConfig(def)

	return nil
}

// Engine converts the table to the engine's configuration.
func (t TableConfig) Engine(limits store.Limits) engine.Config {
	return engine.Config{
		Table:        t.Name,
		ColumnPrefix: t.ColumnPrefix,
		Aggregate:    t.Aggregate,
		Column:       t.Column,
		PerColumn:    t.PerColumn,
		Names:        t.Names,
		Limits:       limits,
	}
}

// SinksConfig selects the sinks. At least one must be enabled.
type SinksConfig struct {
	Memory     MemoryConfig      `json:"memory"     yaml:"memory"`
	Prometheus prometheus.Config `json:"prometheus" yaml:"prometheus"`
	Influx     influx.Config     `json:"influx"     yaml:"influx"`
	Redis      redis.Config      `json:"redis"      yaml:"redis"`
	Breaker    breaker.Config    `json:"breaker"    yaml:"breaker"`
}

// MemoryConfig enables the in-process sink behind the debug endpoints.
type MemoryConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Enabled         bool          `json:"enabled"          yaml:"enabled"`
	Listen          string        `json:"listen"           yaml:"listen"`
	ReadTimeout     time.Duration `json:"read_timeout"     yaml:"read_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"      yaml:"enabled"`
	Endpoint    string  `json:"endpoint"     yaml:"endpoint"`
	Insecure    bool    `json:"insecure"     yaml:"insecure"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRatio float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

// DefaultConfig returns a configuration that samples /proc/softirqs every
// second into the memory and Prometheus sinks.
func DefaultConfig() *Config {
	interrupts := TableConfig{
		Name:         "interrupts",
		Path:         "/proc/interrupts",
		Disabled:     true,
		ColumnPrefix: table.DefaultColumnPrefix,
		PerColumn:    true,
		Aggregate: sink.GroupSpec{
			Key:      "system.interrupts",
			Title:    "System interrupts",
			Units:    "interrupts/s",
			Family:   "interrupts",
			Context:  "system.interrupts",
			Priority: 1000,
			Type:     sink.ChartStacked,
		},
		Column: sink.GroupSpec{
			Key:      "cpu.cpu%d_interrupts",
			Title:    "CPU%d interrupts",
			Units:    "interrupts/s",
			Family:   "interrupts",
			Context:  "cpu.interrupts",
			Priority: 1100,
			Type:     sink.ChartStacked,
		},
	}

	prom := prometheus.DefaultConfig()
	prom.Enabled = true

	return &Config{
		Interval: time.Second,
		Logging: logger.LoggingConfig{
			Level:       "info",
			Format:      "console",
			Environment: "development",
		},
		Limits: store.DefaultLimits(),
		Tables: []TableConfig{softirqsTable(), interrupts},
		Sinks: SinksConfig{
			Memory:     MemoryConfig{Enabled: true},
			Prometheus: prom,
			Influx:     influx.DefaultConfig(),
			Redis:      redis.DefaultConfig(),
			Breaker:    breaker.DefaultConfig(),
		},
		Server: ServerConfig{
			Enabled:         true,
			Listen:          ":9100",
			ReadTimeout:     5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			ServiceName: "irqstat",
			SampleRatio: 1,
		},
	}
}

func softirqsTable() TableConfig {
	ec := engine.DefaultConfig()

	return TableConfig{
		Name:         ec.Table,
		Path:         "/proc/softirqs",
		ColumnPrefix: ec.ColumnPrefix,
		PerColumn:    ec.PerColumn,
		Aggregate:    ec.Aggregate,
		Column:       ec.Column,
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path uses the defaults alone.
func Load(path string) (*Config, error) {
	var data []byte

	if path != "" {
		var err error

		data, err = os.ReadFile(path)
		if err != nil {
			return nil, irqerrors.ErrConfigError("failed to read config file "+path, err)
		}
	}

	return load(path, data)
}

// load decodes data over the defaults, then applies the environment and
// validates.
func load(path string, data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, irqerrors.ErrConfigError("failed to parse config file "+path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, irqerrors.ErrConfigError("failed to parse config", err)
	}

	return cfg, nil
}

// ApplyEnv applies IRQSTAT_* overrides found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return irqerrors.ErrValidationError(EnvPrefix+"INTERVAL", err)
		}

		c.Interval = d
	}

	strs := map[string]*string{
		"HOST_PREFIX":       &c.HostPrefix,
		"LOG_LEVEL":         &c.Logging.Level,
		"LOG_FORMAT":        &c.Logging.Format,
		"PROMETHEUS_LISTEN": &c.Server.Listen,
		"INFLUX_URL":        &c.Sinks.Influx.URL,
		"INFLUX_TOKEN":      &c.Sinks.Influx.Token,
		"REDIS_ADDR":        &c.Sinks.Redis.Addr,
		"REDIS_PASSWORD":    &c.Sinks.Redis.Password,
		"TRACING_ENDPOINT":  &c.Tracing.Endpoint,
	}

	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"INFLUX_ENABLED":  &c.Sinks.Influx.Enabled,
		"REDIS_ENABLED":   &c.Sinks.Redis.Enabled,
		"TRACING_ENABLED": &c.Tracing.Enabled,
	}

	for name, dst := range bools {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return irqerrors.ErrValidationError(EnvPrefix+name, err)
			}

			*dst = b
		}
	}

	return nil
}

// Validate checks the configuration for values the collector cannot run with.
func (c *Config) Validate() error {
	if c.Interval < 10*time.Millisecond {
		return irqerrors.ErrValidationError("interval", fmt.Errorf("must be at least 10ms, got %s", c.Interval))
	}

	if c.Limits.MaxRows < 0 || c.Limits.MaxColumns < 0 {
		return irqerrors.ErrValidationError("limits", fmt.Errorf("limits cannot be negative"))
	}

	names := make(map[string]bool)
	groups := make(map[string]string)
	enabled := 0

	for i, t := range c.Tables {
		field := fmt.Sprintf("tables[%d]", i)

		if t.Name == "" {
			return irqerrors.ErrValidationError(field+".name", fmt.Errorf("is required"))
		}

		if names[t.Name] {
			return irqerrors.ErrValidationError(field+".name", fmt.Errorf("duplicate table %q", t.Name))
		}

		names[t.Name] = true

		if t.Disabled {
			continue
		}

		enabled++

		if t.Path == "" {
			return irqerrors.ErrValidationError(field+".path", fmt.Errorf("is required"))
		}

		if t.Aggregate.Key == "" {
			return irqerrors.ErrValidationError(field+".aggregate.key", fmt.Errorf("is required"))
		}

		if owner, ok := groups[t.Aggregate.Key]; ok {
			return irqerrors.ErrValidationError(field+".aggregate.key",
				fmt.Errorf("group %q already used by table %q", t.Aggregate.Key, owner))
		}

		groups[t.Aggregate.Key] = t.Name

		if t.PerColumn {
			if t.Column.Key == "" {
				return irqerrors.ErrValidationError(field+".column.key", fmt.Errorf("is required when per_column is set"))
			}

			if strings.Count(t.Column.Key, "%") > 1 || (strings.Contains(t.Column.Key, "%") && !strings.Contains(t.Column.Key, "%d")) {
				return irqerrors.ErrValidationError(field+".column.key", fmt.Errorf("only a single %%d verb is allowed"))
			}
		}
	}

	if enabled == 0 {
		return irqerrors.ErrValidationError("tables", fmt.Errorf("no enabled table"))
	}

	s := c.Sinks
	if !s.Memory.Enabled && !s.Prometheus.Enabled && !s.Influx.Enabled && !s.Redis.Enabled {
		return irqerrors.ErrValidationError("sinks", fmt.Errorf("no enabled sink"))
	}

	if s.Influx.Enabled && (s.Influx.URL == "" || s.Influx.Org == "" || s.Influx.Bucket == "") {
		return irqerrors.ErrValidationError("sinks.influx", fmt.Errorf("url, org and bucket are required"))
	}

	if s.Redis.Enabled && s.Redis.Addr == "" {
		return irqerrors.ErrValidationError("sinks.redis.addr", fmt.Errorf("is required"))
	}

	if s.Breaker.Enabled && (s.Breaker.MaxFailures < 1 || s.Breaker.RecoveryTimeout <= 0) {
		return irqerrors.ErrValidationError("sinks.breaker", fmt.Errorf("max_failures and recovery_timeout must be positive"))
	}

	if c.Server.Enabled && c.Server.Listen == "" {
		return irqerrors.ErrValidationError("server.listen", fmt.Errorf("is required"))
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return irqerrors.ErrValidationError("tracing.sample_ratio", fmt.Errorf("must be within [0,1]"))
	}

	return nil
}

// EnabledTables returns the tables that are not disabled.
func (c *Config) EnabledTables() []TableConfig {
	out := make([]TableConfig, 0, len(c.Tables))

	for _, t := range c.Tables {
		if !t.Disabled {
			out = append(out, t)
		}
	}

	return out
}

// DisplayNames returns the display-name overrides per table name.
func (c *Config) DisplayNames() map[string]map[string]string {
	out := make(map[string]map[string]string, len(c.Tables))

	for _, t := range c.Tables {
		out[t.Name] = t.Names
	}

	return out
}
