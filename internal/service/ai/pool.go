package ai

import (
	"context"
	"errors"
)

// ErrNoModels is returned by NewPool when given nothing to pool.
var ErrNoModels = errors.New("no models loaded")

// Pool hands out model instances one caller at a time.
type Pool struct {
	free chan Model
	all  []Model
}

// NewPool wraps already loaded models.
func NewPool(models []Model) (*Pool, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}

	p := &Pool{
		free: make(chan Model, len(models)),
		all:  models,
	}
	for _, m := range models {
		p.free <- m
	}
	return p, nil
}

// Acquire blocks until a model is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (Model, error) {
	select {
	case m := <-p.free:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a model obtained from Acquire.
func (p *Pool) Release(m Model) {
	p.free <- m
}

// Size returns the number of pooled models.
func (p *Pool) Size() int {
	return len(p.all)
}

// Close closes every pooled model. The pool must not be used afterwards.
func (p *Pool) Close() error {
	var errs []error
	for _, m := range p.all {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
