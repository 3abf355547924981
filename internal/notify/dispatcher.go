package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"leadbridge/internal/models"
)

const (
	defaultMaxAttempts = 5
	// sendAllowance is the time budgeted per message for the transport itself.
	sendAllowance = time.Second
)

// Outbox is the event table plus the lookups needed to address an event.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]models.LeadEvent, error)
	MarkDispatched(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, park bool, at time.Time) error

	Lead(ctx context.Context, id uint, lock bool) (models.Lead, error)
	User(ctx context.Context, id uint) (models.User, error)
	Hierarchy(ctx context.Context, referrerID uint) (models.Hierarchy, error)
}

type Dispatcher struct {
	outbox      Outbox
	senders     []Sender
	limiter     *rate.Limiter
	batch       int
	maxAttempts int
	wake        chan struct{}
	log         *slog.Logger
	now         func() time.Time
}

type Option func(*Dispatcher)

// WithRate limits sends per second across all senders.
func WithRate(perSecond float64) Option {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithBatch(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batch = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(outbox Outbox, senders []Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		outbox:      outbox,
		senders:     senders,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		batch:       50,
		maxAttempts: defaultMaxAttempts,
		wake:        make(chan struct{}, 1),
		log:         slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify asks for a dispatch round without waiting for the next tick.
func (d *Dispatcher) Notify() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) Wake() <-chan struct{} {
	return d.wake
}

// RoundBudget is the longest a full batch may take: every event reaching all
// of its recipients on every sender, paced by the rate limit.
func (d *Dispatcher) RoundBudget() time.Duration {
	sends := d.batch * maxRecipients * max(len(d.senders), 1)
	budget := time.Duration(sends) * sendAllowance
	if limit := d.limiter.Limit(); limit != rate.Inf && limit > 0 {
		budget += time.Duration(float64(sends) / float64(limit) * float64(time.Second))
	}
	return budget
}

// DispatchPending delivers one batch and returns how many events were closed
// successfully. A delivery failure only fails its own event.
func (d *Dispatcher) DispatchPending(ctx context.Context) (int, error) {
	events, err := d.outbox.PendingEvents(ctx, d.batch)
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}

	sent := 0
	for _, ev := range events {
		if err := d.deliver(ctx, ev); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			d.fail(ctx, ev, err)
			continue
		}
		if err := d.outbox.MarkDispatched(ctx, ev.ID, d.now()); err != nil {
			return sent, fmt.Errorf("mark event %s dispatched: %w", ev.ID, err)
		}
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.LeadEvent) error {
	lead, err := d.outbox.Lead(ctx, ev.LeadID, false)
	if err != nil {
		return err
	}
	chain, err := d.outbox.Hierarchy(ctx, lead.ReferrerID)
	if err != nil {
		return fmt.Errorf("resolve hierarchy: %w", err)
	}

	ids := Recipients(ev, lead, chain)
	if len(ids) == 0 {
		return nil
	}
	msg := Render(ev, lead)

	var errs []error
	for _, id := range ids {
		u, err := d.outbox.User(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !u.IsActive {
			continue
		}
		for _, s := range d.senders {
			if !s.Accepts(u) {
				continue
			}
			if err := d.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := s.Send(ctx, u, msg); err != nil {
				errs = append(errs, fmt.Errorf("%s to user %d: %w", s.Name(), u.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) fail(ctx context.Context, ev models.LeadEvent, cause error) {
	park := ev.Attempts+1 >= d.maxAttempts
	if err := d.outbox.MarkFailed(ctx, ev.ID, cause.Error(), park, d.now()); err != nil {
		d.log.Error("record dispatch failure", "event_id", ev.ID, "error", err)
		return
	}
	if park {
		d.log.Error("event parked", "event_id", ev.ID, "lead_id", ev.LeadID, "attempts", ev.Attempts+1, "error", cause)
		return
	}
	d.log.Warn("event dispatch failed", "event_id", ev.ID, "lead_id", ev.LeadID, "attempts", ev.Attempts+1, "error", cause)
}
