// Package leads is the application service over leads and deals. Every
// command runs in one transaction: the change, the lead/deal synchronization
// and the event rows commit together or not at all.
package leads

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"leadbridge/internal/access"
	"leadbridge/internal/commission"
	"leadbridge/internal/models"
)

type Service struct {
	store    Store
	banks    *commission.BankTable
	notifier Notifier
	marker   Marker
	log      *slog.Logger
	now      func() time.Time
	sync     synchronizer
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithMarker guards due callbacks against a second runner.
func WithMarker(m Marker) Option {
	return func(s *Service) { s.marker = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, banks *commission.BankTable, opts ...Option) *Service {
	s := &Service{
		store: store,
		banks: banks,
		log:   slog.Default(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.banks == nil {
		s.banks = commission.DefaultBankTable()
	}
	return s
}

func (s *Service) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

func (s *Service) filter(ctx context.Context, dir access.Directory, actor models.User) (access.Filter, error) {
	f, err := access.Resolve(ctx, dir, access.CapabilityOf(actor))
	if err != nil {
		return access.Filter{}, fmt.Errorf("resolve visibility: %w", err)
	}
	return f, nil
}

// visibleLead loads a lead and hides it behind ErrNotFound when the actor may
// not see it.
func (s *Service) visibleLead(ctx context.Context, tx Store, actor models.User, id uint, lock bool) (models.Lead, error) {
	lead, err := tx.Lead(ctx, id, lock)
	if err != nil {
		return models.Lead{}, err
	}
	f, err := s.filter(ctx, tx, actor)
	if err != nil {
		return models.Lead{}, err
	}
	if !f.Lead(lead) {
		return models.Lead{}, fmt.Errorf("lead %d: %w", id, models.ErrNotFound)
	}
	return lead, nil
}

// visibleDeal locks the parent lead before the deal so that every command
// takes row locks in the same order.
func (s *Service) visibleDeal(ctx context.Context, tx Store, actor models.User, id uint, lock bool) (models.Deal, models.Lead, error) {
	deal, err := tx.Deal(ctx, id, false)
	if err != nil {
		return models.Deal{}, models.Lead{}, err
	}
	lead, err := tx.Lead(ctx, deal.LeadID, lock)
	if err != nil {
		return models.Deal{}, models.Lead{}, err
	}
	if lock {
		if deal, err = tx.Deal(ctx, id, true); err != nil {
			return models.Deal{}, models.Lead{}, err
		}
	}
	f, err := s.filter(ctx, tx, actor)
	if err != nil {
		return models.Deal{}, models.Lead{}, err
	}
	if !f.Deal(deal, lead) {
		return models.Deal{}, models.Lead{}, fmt.Errorf("deal %d: %w", id, models.ErrNotFound)
	}
	return deal, lead, nil
}

func (s *Service) record(ctx context.Context, tx Store, t models.EventType, leadID uint, dealID *uint, actor *models.User, description string, payload map[string]any) error {
	ev, err := models.NewLeadEvent(t, leadID, dealID, actor, description, payload)
	if err != nil {
		return fmt.Errorf("build %s event: %w", t, err)
	}
	ev.CreatedAt = s.now()
	if err := tx.AppendEvent(ctx, &ev); err != nil {
		return fmt.Errorf("append %s event: %w", t, err)
	}
	return nil
}

// computeSplit prices a deal with the current configuration of the lead's
// advisor. Shares for a manager or office the referrer does not have are not
// paid out.
func (s *Service) computeSplit(ctx context.Context, tx Store, lead models.Lead, loan decimal.Decimal, model commission.Model, personal bool) (commission.Split, error) {
	if lead.AdvisorID == nil {
		return commission.Split{}, fmt.Errorf("%w: lead %d has no advisor", models.ErrValidation, lead.ID)
	}
	advisor, err := tx.User(ctx, *lead.AdvisorID)
	if err != nil {
		return commission.Split{}, err
	}
	chain, err := tx.Hierarchy(ctx, lead.ReferrerID)
	if err != nil {
		return commission.Split{}, err
	}

	cfg := commission.Config{
		TotalPerMillion: advisor.CommissionTotalPerMillion,
		ReferrerPct:     advisor.CommissionReferrerPct,
		ManagerPct:      advisor.CommissionManagerPct,
		OfficePct:       advisor.CommissionOfficePct,
	}
	if err := cfg.Validate(); err != nil {
		return commission.Split{}, fmt.Errorf("%w: advisor %d: %w", models.ErrValidation, advisor.ID, err)
	}
	if !chain.HasManager() {
		cfg.ManagerPct = decimal.Zero
	}
	if !chain.HasOffice() {
		cfg.OfficePct = decimal.Zero
	}

	split, err := commission.Compute(loan, cfg, model, personal)
	if err != nil {
		return commission.Split{}, fmt.Errorf("%w: %w", models.ErrValidation, err)
	}
	return split, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func uintPtr(v uint) *uint {
	return &v
}
