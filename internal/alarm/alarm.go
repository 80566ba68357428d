// Package alarm provides the sinks rung when a task is due in the coming
// minute.
package alarm

import (
	"context"
	"errors"
	"io"

	"github.com/infinitech/infinitask/internal/task"
)

type Sink interface {
	Ring(ctx context.Context, t task.Task) error
}

// Multi rings every sink and joins their errors.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	var out []Sink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Multi{sinks: out}
}

func (m *Multi) Ring(ctx context.Context, t task.Task) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Ring(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases sinks that hold resources.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Len() int {
	return len(m.sinks)
}
