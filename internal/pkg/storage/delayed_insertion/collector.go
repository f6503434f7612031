package delayed_insertion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"rpcgate/internal/pkg/log"
)

const (
	flushAmount       = 1000
	finalFlushTimeout = 10 * time.Second
)

type (
	// Saver persists one flushed batch.
	Saver[T any] func(ctx context.Context, entries []T) error

	Collector[T any] struct {
		ctx           context.Context
		savers        []Saver[T]
		mx            sync.Mutex
		flushInterval time.Duration
		cache         []T
		done          chan struct{}
	}
)

// New starts the flush loop when at least one saver is set, otherwise Add is a no-op.
// The loop flushes a last time and stops once ctx is done.
func New[T any](ctx context.Context, flushInterval time.Duration, savers ...Saver[T]) (c *Collector[T]) {
	c = &Collector[T]{
		ctx:           ctx,
		savers:        savers,
		flushInterval: flushInterval,
		cache:         make([]T, 0, flushAmount),
		done:          make(chan struct{}),
	}

	if len(savers) == 0 {
		close(c.done)
		return
	}

	go c.start()

	return
}

func (c *Collector[T]) start() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), finalFlushTimeout)
			err := c.flushData(ctx)
			cancel()
			if err != nil {
				log.Logger.Collector.Errorf("flushData: %s", err)
			}

			return

		case <-time.After(c.flushInterval):
			err := c.flushData(c.ctx)
			if err != nil {
				log.Logger.Collector.Errorf("flushData: %s", err)
			}
		}
	}
}

// Done is closed after the final flush.
func (c *Collector[T]) Done() <-chan struct{} {
	return c.done
}

func (c *Collector[T]) flushData(ctx context.Context) error {
	entries := c.getCachedEntries()
	if len(entries) == 0 {
		return nil
	}

	timeNow := time.Now()
	var errs []error
	for i, save := range c.savers {
		if err := save(ctx, entries); err != nil {
			errs = append(errs, fmt.Errorf("saver %d: %s", i, err))
		}
	}
	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	log.Logger.Collector.Debugf("fin flushData %T len %d. Elapsed %s", entries, len(entries), time.Since(timeNow))

	return nil
}
