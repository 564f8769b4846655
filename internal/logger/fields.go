package logger

import (
	"time"

	"go.uber.org/zap"
)

// zapField wraps a zap.Field and implements the Field interface.
type zapField struct {
	field zap.Field
}

func (f zapField) Key() string { return f.field.Key }

func (f zapField) Value() any {
	switch {
	case f.field.Interface != nil:
		return f.field.Interface
	case f.field.String != "":
		return f.field.String
	default:
		return f.field.Integer
	}
}

func (f zapField) ZapField() zap.Field { return f.field }

func wrap(f zap.Field) Field { return zapField{field: f} }

// String creates a string field.
func String(key, val string) Field { return wrap(zap.String(key, val)) }

// Strings creates a string slice field.
func Strings(key string, val []string) Field { return wrap(zap.Strings(key, val)) }

// Int creates an int field.
func Int(key string, val int) Field { return wrap(zap.Int(key, val)) }

// Int64 creates an int64 field.
func Int64(key string, val int64) Field { return wrap(zap.Int64(key, val)) }

// Uint64 creates a uint64 field.
func Uint64(key string, val uint64) Field { return wrap(zap.Uint64(key, val)) }

// Float64 creates a float64 field.
func Float64(key string, val float64) Field { return wrap(zap.Float64(key, val)) }

// Bool creates a bool field.
func Bool(key string, val bool) Field { return wrap(zap.Bool(key, val)) }

// Duration creates a duration field.
func Duration(key string, val time.Duration) Field { return wrap(zap.Duration(key, val)) }

// Time creates a time field.
func Time(key string, val time.Time) Field { return wrap(zap.Time(key, val)) }

// Error creates an error field.
func Error(err error) Field { return wrap(zap.Error(err)) }

// Any creates a field from an arbitrary value.
func Any(key string, val any) Field { return wrap(zap.Any(key, val)) }

// Table tags log lines with the table a component is working on.
func Table(name string) Field { return String("table", name) }

// Sink tags log lines with the sink name.
func Sink(name string) Field { return String("sink", name) }
