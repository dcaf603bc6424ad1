package workerpool

import (
	"context"
	"runtime"
)

// Pool bounds how many CPU-heavy pipeline sections (decode, preprocess,
// inference) run at once, so one request's compute cannot starve every
// other in-flight request's I/O. Fetching stays outside the pool.
type Pool struct {
	slots chan struct{}
}

func New(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{slots: make(chan struct{}, size)}
}

// Do runs fn once a slot is free. The wait is cancellable; fn itself runs
// to completion once started.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	return fn()
}

// Size reports the pool's concurrency bound.
func (p *Pool) Size() int {
	return cap(p.slots)
}
