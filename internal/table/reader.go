package table

import (
	"context"
	"os"
	"path/filepath"

	irqerrors "github.com/xraph/irqstat/internal/errors"
)

// Reader supplies one snapshot of a counter table per cycle.
type Reader interface {
	// Snapshot reads and tokenizes the table. Read failures are reported as
	// transient errors; an empty table is returned as a zero-row snapshot.
	Snapshot(ctx context.Context) (*Snapshot, error)

	// Source names where the table comes from, for logs and errors.
	Source() string
}

// FileReader reads a table from a file such as /proc/softirqs.
type FileReader struct {
	path         string
	columnPrefix string
}

// NewFileReader creates a reader for path. hostPrefix is prepended when the
// collector runs in a container with the host's /proc mounted elsewhere.
func NewFileReader(hostPrefix, path, columnPrefix string) *FileReader {
	if hostPrefix != "" {
		path = filepath.Join(hostPrefix, path)
	}

	return &FileReader{path: path, columnPrefix: columnPrefix}
}

// Source returns the resolved file path.
func (r *FileReader) Source() string {
	return r.path
}

// Snapshot reads the whole file and tokenizes it.
func (r *FileReader) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, irqerrors.ErrTableRead(r.path, err)
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, irqerrors.ErrTableRead(r.path, err)
	}

	return Parse(data, r.columnPrefix), nil
}

// StaticReader serves a fixed table, replaceable between cycles. It backs the
// one-shot CLI mode when reading from stdin and tests that drive the engine.
type StaticReader struct {
	name         string
	columnPrefix string
	data         []byte
	err          error
}

// NewStaticReader creates a reader that returns text on every Snapshot call.
func NewStaticReader(name, columnPrefix, text string) *StaticReader {
	return &StaticReader{name: name, columnPrefix: columnPrefix, data: []byte(text)}
}

// Set replaces the table text and clears any injected failure.
func (r *StaticReader) Set(text string) {
	r.data = []byte(text)
	r.err = nil
}

// Fail makes subsequent snapshots fail with err until Set is called.
func (r *StaticReader) Fail(err error) {
	r.err = err
}

// Source returns the reader name.
func (r *StaticReader) Source() string {
	return r.name
}

// Snapshot parses the current text.
func (r *StaticReader) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, irqerrors.ErrTableRead(r.name, err)
	}

	if r.err != nil {
		return nil, irqerrors.ErrTableRead(r.name, r.err)
	}

	return Parse(r.data, r.columnPrefix), nil
}
