package sink

import (
	"context"
	"errors"
	"fmt"
)

// Multi fans every call out to a fixed list of sinks.
type Multi struct {
	sinks []Sink
}

type multiHandle struct {
	group    string
	id       string
	children []Handle
}

func (h *multiHandle) Group() string { return h.group }

func (h *multiHandle) ID() string { return h.id }

// Name reports the first child's name; all children are renamed together.
func (h *multiHandle) Name() string {
	if len(h.children) == 0 {
		return ""
	}

	return h.children[0].Name()
}

// NewMulti combines sinks. A single sink is returned unwrapped.
func NewMulti(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}

	return &Multi{sinks: sinks}
}

// Name returns the joined names of the child sinks.
func (m *Multi) Name() string {
	name := "multi("

	for i, s := range m.sinks {
		if i > 0 {
			name += ","
		}

		name += s.Name()
	}

	return name + ")"
}

// Sinks returns the child sinks.
func (m *Multi) Sinks() []Sink {
	return m.sinks
}

func (m *Multi) DefineGroup(ctx context.Context, spec GroupSpec) error {
	for _, s := range m.sinks {
		if err := s.DefineGroup(ctx, spec); err != nil {
			return err
		}
	}

	return nil
}

func (m *Multi) FindOrCreate(ctx context.Context, group, id, name string) (Handle, error) {
	h := &multiHandle{group: group, id: id, children: make([]Handle, len(m.sinks))}

	for i, s := range m.sinks {
		child, err := s.FindOrCreate(ctx, group, id, name)
		if err != nil {
			return nil, err
		}

		h.children[i] = child
	}

	return h, nil
}

func (m *Multi) Rename(ctx context.Context, h Handle, name string) error {
	mh, err := m.unwrap(h)
	if err != nil {
		return err
	}

	for i, s := range m.sinks {
		if mh.children[i].Name() == name {
			continue
		}

		if err := s.Rename(ctx, mh.children[i], name); err != nil {
			return err
		}
	}

	return nil
}

func (m *Multi) Append(ctx context.Context, h Handle, value uint64) error {
	mh, err := m.unwrap(h)
	if err != nil {
		return err
	}

	for i, s := range m.sinks {
		if err := s.Append(ctx, mh.children[i], value); err != nil {
			return err
		}
	}

	return nil
}

// Commit commits every child, returning all failures joined.
func (m *Multi) Commit(ctx context.Context, group string) error {
	var errs []error

	for _, s := range m.sinks {
		if err := s.Commit(ctx, group); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error

	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m *Multi) unwrap(h Handle) (*multiHandle, error) {
	mh, ok := h.(*multiHandle)
	if !ok || len(mh.children) != len(m.sinks) {
		return nil, fmt.Errorf("%w: %T", ErrForeignHandle, h)
	}

	return mh, nil
}

// ErrForeignHandle is returned when a sink receives a handle it did not issue.
var ErrForeignHandle = errors.New("handle was not issued by this sink")
