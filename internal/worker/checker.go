package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"leadbridge/internal/leads"
)

const (
	callbackLease = "lease:callbacks"
	dispatchLease = "lease:dispatch"
)

type CallbackProcessor interface {
	ProcessDueCallbacks(ctx context.Context, asOf time.Time) (int, error)
}

type Dispatcher interface {
	DispatchPending(ctx context.Context) (int, error)
	Notify()
	Wake() <-chan struct{}
	RoundBudget() time.Duration
}

// Checker runs the callback scheduler and the outbox dispatcher. With a
// marker configured only one instance works a round at a time.
type Checker struct {
	callbacks     CallbackProcessor
	dispatcher    Dispatcher
	marker        leads.Marker
	callbackEvery time.Duration
	dispatchEvery time.Duration
	log           *slog.Logger
	now           func() time.Time
}

func NewChecker(callbacks CallbackProcessor, dispatcher Dispatcher, marker leads.Marker, callbackEvery, dispatchEvery time.Duration, logger *slog.Logger) *Checker {
	return &Checker{
		callbacks:     callbacks,
		dispatcher:    dispatcher,
		marker:        marker,
		callbackEvery: callbackEvery,
		dispatchEvery: dispatchEvery,
		log:           logger,
		now:           time.Now,
	}
}

// Start blocks until ctx is cancelled.
func (c *Checker) Start(ctx context.Context) {
	c.log.Info("background worker started", "callback_every", c.callbackEvery, "dispatch_every", c.dispatchEvery)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.loop(ctx, c.callbackEvery, nil, c.checkCallbacks)
	}()
	go func() {
		defer wg.Done()
		c.loop(ctx, c.dispatchEvery, c.dispatcher.Wake(), c.dispatch)
	}()
	wg.Wait()

	c.log.Info("background worker stopped")
}

func (c *Checker) loop(ctx context.Context, every time.Duration, wake <-chan struct{}, round func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	// Run once at start
	round(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			round(ctx)
		case <-wake:
			round(ctx)
		}
	}
}

func (c *Checker) checkCallbacks(ctx context.Context) {
	release, ok := c.lease(ctx, callbackLease, c.callbackEvery)
	if !ok {
		return
	}
	defer release()

	n, err := c.callbacks.ProcessDueCallbacks(ctx, c.now())
	if err != nil {
		c.log.Error("callback cycle failed", "processed", n, "error", err)
		return
	}
	if n > 0 {
		c.log.Info("callback cycle finished", "processed", n)
	}
}

func (c *Checker) dispatch(ctx context.Context) {
	release, ok := c.lease(ctx, dispatchLease, c.dispatchLeaseTTL())
	if !ok {
		return
	}
	defer release()

	n, err := c.dispatcher.DispatchPending(ctx)
	if err != nil {
		c.log.Error("dispatch cycle failed", "dispatched", n, "error", err)
		return
	}
	if n > 0 {
		c.log.Info("dispatch cycle finished", "dispatched", n)
		// More may be waiting beyond the batch.
		c.dispatcher.Notify()
	}
}

// dispatchLeaseTTL outlives the slowest possible round so a second instance
// cannot pick up events that are still being delivered.
func (c *Checker) dispatchLeaseTTL() time.Duration {
	return c.dispatcher.RoundBudget() + c.dispatchEvery
}

// lease claims a round. An unavailable marker does not stop the round.
func (c *Checker) lease(ctx context.Context, key string, ttl time.Duration) (func(), bool) {
	noop := func() {}
	if c.marker == nil {
		return noop, true
	}
	ok, err := c.marker.Claim(ctx, key, ttl)
	if err != nil {
		c.log.Warn("worker lease unavailable", "key", key, "error", err)
		return noop, true
	}
	if !ok {
		return noop, false
	}
	return func() {
		if err := c.marker.Release(context.WithoutCancel(ctx), key); err != nil {
			c.log.Warn("worker lease release failed", "key", key, "error", err)
		}
	}, true
}
