package leads

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"leadbridge/internal/access"
	"leadbridge/internal/commission"
	"leadbridge/internal/models"
)

type NewDeal struct {
	LoanAmount   decimal.Decimal
	Bank         models.Bank
	PropertyType models.PropertyType
	// CommissionModel overrides the bank's default model.
	CommissionModel commission.Model
	// Personal is honoured only for a second or later deal on a lead that is
	// not a personal contact.
	Personal bool
}

func (s *Service) CreateDeal(ctx context.Context, actor models.User, leadID uint, in NewDeal) (models.Deal, error) {
	if !access.CanManageDeals(access.CapabilityOf(actor)) {
		return models.Deal{}, fmt.Errorf("create deal: %w", models.ErrForbidden)
	}
	if !in.LoanAmount.IsPositive() {
		return models.Deal{}, fmt.Errorf("%w: %w", models.ErrValidation, commission.ErrInvalidLoanAmount)
	}
	if !in.Bank.Valid() {
		return models.Deal{}, fmt.Errorf("%w: unknown bank %q", models.ErrValidation, in.Bank)
	}
	if in.PropertyType == "" {
		in.PropertyType = models.PropertyOwn
	}
	if !in.PropertyType.Valid() {
		return models.Deal{}, fmt.Errorf("%w: unknown property type %q", models.ErrValidation, in.PropertyType)
	}
	model, err := s.modelFor(in.Bank, in.CommissionModel)
	if err != nil {
		return models.Deal{}, err
	}

	var (
		deal models.Deal
		lead models.Lead
	)
	err = s.store.Transaction(ctx, func(tx Store) error {
		var err error
		lead, err = s.visibleLead(ctx, tx, actor, leadID, true)
		if err != nil {
			return err
		}
		existing, err := tx.DealsOfLead(ctx, lead.ID)
		if err != nil {
			return err
		}
		personal := personalFlag(lead, existing, in.Personal)

		split, err := s.computeSplit(ctx, tx, lead, in.LoanAmount, model, personal)
		if err != nil {
			return err
		}

		deal = models.Deal{
			LeadID:          lead.ID,
			LoanAmount:      in.LoanAmount,
			Bank:            in.Bank,
			CommissionModel: model,
			PropertyType:    in.PropertyType,
			Status:          models.DealRequestInBank,
			IsPersonalDeal:  personal,
		}
		deal.ApplyIdentity(lead.Identity())
		deal.ApplySplit(split)
		if err := tx.CreateDeal(ctx, &deal); err != nil {
			return fmt.Errorf("create deal: %w", err)
		}

		if err := s.sync.onDealCreated(ctx, tx, &lead); err != nil {
			return fmt.Errorf("sync lead: %w", err)
		}
		return s.record(ctx, tx, models.EventDealCreated, lead.ID, uintPtr(deal.ID), &actor,
			fmt.Sprintf("Deal created: %s, %s", s.banks.Label(string(deal.Bank)), deal.LoanAmount.StringFixed(2)),
			map[string]any{
				"loan_amount": deal.LoanAmount.StringFixed(2),
				"bank":        deal.Bank,
				"model":       deal.CommissionModel,
				"personal":    deal.IsPersonalDeal,
				"commission":  split,
			})
	})
	if err != nil {
		return models.Deal{}, err
	}

	s.log.Info("deal created",
		"lead_id", lead.ID,
		"deal_id", deal.ID,
		"actor_id", actor.ID,
		"personal", deal.IsPersonalDeal,
	)
	s.notify()
	return deal, nil
}

func (s *Service) modelFor(bank models.Bank, override commission.Model) (commission.Model, error) {
	if override != "" {
		if !override.Valid() {
			return "", fmt.Errorf("%w: unknown commission model %q", models.ErrValidation, override)
		}
		return override, nil
	}
	model, ok := s.banks.ModelFor(string(bank))
	if !ok {
		return "", fmt.Errorf("%w: bank %s has no commission model", models.ErrValidation, bank)
	}
	return model, nil
}

// personalFlag fixes is_personal_deal for a new deal. A personal contact only
// has personal deals; the first regular deal of a lead is never personal.
func personalFlag(lead models.Lead, existing []models.Deal, requested bool) bool {
	if lead.IsPersonalContact {
		return true
	}
	for _, d := range existing {
		if !d.IsPersonalDeal {
			return requested
		}
	}
	return false
}

// DealPatch lists the editable deal fields; nil means unchanged.
// IsPersonalDeal is present only so that an attempt to change it can be
// refused.
type DealPatch struct {
	Identity        *models.ClientIdentity
	LoanAmount      *decimal.Decimal
	Bank            *models.Bank
	CommissionModel *commission.Model
	PropertyType    *models.PropertyType
	Status          *models.DealStatus
	IsPersonalDeal  *bool
}

func (s *Service) UpdateDeal(ctx context.Context, actor models.User, dealID uint, p DealPatch) (models.Deal, error) {
	if !access.CanManageDeals(access.CapabilityOf(actor)) {
		return models.Deal{}, fmt.Errorf("update deal: %w", models.ErrForbidden)
	}
	if p.IsPersonalDeal != nil {
		return models.Deal{}, fmt.Errorf("personal flag is fixed at creation: %w", models.ErrStateConflict)
	}

	var (
		deal    models.Deal
		changes []string
	)
	err := s.store.Transaction(ctx, func(tx Store) error {
		var (
			lead models.Lead
			err  error
		)
		deal, lead, err = s.visibleDeal(ctx, tx, actor, dealID, true)
		if err != nil {
			return err
		}

		if p.Status != nil && *p.Status != deal.Status {
			if !p.Status.Valid() {
				return fmt.Errorf("%w: unknown deal status %q", models.ErrValidation, *p.Status)
			}
			if deal.Status.Terminal() {
				return fmt.Errorf("deal %d is %s: %w", deal.ID, deal.Status, models.ErrStateConflict)
			}
			deal.Status = *p.Status
			if deal.Status.Completed() && deal.CompletedAt == nil {
				now := s.now()
				deal.CompletedAt = &now
			}
			changes = append(changes, "status")
		}

		if p.PropertyType != nil && *p.PropertyType != deal.PropertyType {
			if !p.PropertyType.Valid() {
				return fmt.Errorf("%w: unknown property type %q", models.ErrValidation, *p.PropertyType)
			}
			deal.PropertyType = *p.PropertyType
			changes = append(changes, "property_type")
		}

		reprice, err := s.applyPricing(&deal, p)
		if err != nil {
			return err
		}
		if reprice {
			if deal.AnyLegPaid() {
				return fmt.Errorf("deal %d has paid commission: %w", deal.ID, models.ErrStateConflict)
			}
			split, err := s.computeSplit(ctx, tx, lead, deal.LoanAmount, deal.CommissionModel, deal.IsPersonalDeal)
			if err != nil {
				return err
			}
			deal.ApplySplit(split)
			changes = append(changes, "commission")
		}

		var identityChanged bool
		if p.Identity != nil {
			id := p.Identity.Normalize()
			if err := id.Validate(); err != nil {
				return err
			}
			if id != deal.Identity() {
				changes = append(changes, identityChanges(deal.Identity(), id)...)
				deal.ApplyIdentity(id)
				identityChanged = true
			}
		}

		if len(changes) == 0 {
			return nil
		}
		if err := tx.SaveDeal(ctx, &deal); err != nil {
			return fmt.Errorf("save deal: %w", err)
		}
		if identityChanged {
			if _, err := s.sync.onDealIdentityChanged(ctx, tx, &lead, deal); err != nil {
				return fmt.Errorf("sync lead: %w", err)
			}
		}
		return s.record(ctx, tx, models.EventDealUpdated, deal.LeadID, uintPtr(deal.ID), &actor,
			"Deal updated",
			map[string]any{"changes": changes, "status": deal.Status})
	})
	if err != nil {
		return models.Deal{}, err
	}

	if len(changes) > 0 {
		s.log.Info("deal updated", "lead_id", deal.LeadID, "deal_id", deal.ID, "actor_id", actor.ID, "changes", changes)
		s.notify()
	}
	return deal, nil
}

// applyPricing copies commission inputs from the patch and reports whether
// any of them changed. A bank change without an explicit model takes the new
// bank's default model.
func (s *Service) applyPricing(deal *models.Deal, p DealPatch) (bool, error) {
	changed := false
	if p.LoanAmount != nil && !p.LoanAmount.Equal(deal.LoanAmount) {
		if !p.LoanAmount.IsPositive() {
			return false, fmt.Errorf("%w: %w", models.ErrValidation, commission.ErrInvalidLoanAmount)
		}
		deal.LoanAmount = *p.LoanAmount
		changed = true
	}

	var override commission.Model
	if p.CommissionModel != nil {
		override = *p.CommissionModel
	}
	if p.Bank != nil && *p.Bank != deal.Bank {
		if !p.Bank.Valid() {
			return false, fmt.Errorf("%w: unknown bank %q", models.ErrValidation, *p.Bank)
		}
		model, err := s.modelFor(*p.Bank, override)
		if err != nil {
			return false, err
		}
		deal.Bank = *p.Bank
		deal.CommissionModel = model
		changed = true
	} else if override != "" && override != deal.CommissionModel {
		if !override.Valid() {
			return false, fmt.Errorf("%w: unknown commission model %q", models.ErrValidation, override)
		}
		deal.CommissionModel = override
		changed = true
	}
	return changed, nil
}

// MarkCommissionReady flags a drawn deal's commission as ready for payout.
func (s *Service) MarkCommissionReady(ctx context.Context, actor models.User, dealID uint) (models.Deal, error) {
	if !access.CanManageCommission(access.CapabilityOf(actor)) {
		return models.Deal{}, fmt.Errorf("mark commission ready: %w", models.ErrForbidden)
	}

	var (
		deal    models.Deal
		changed bool
	)
	err := s.store.Transaction(ctx, func(tx Store) error {
		var err error
		deal, _, err = s.visibleDeal(ctx, tx, actor, dealID, true)
		if err != nil {
			return err
		}
		if deal.CommissionReady {
			return nil
		}
		if deal.IsPersonalDeal {
			return fmt.Errorf("personal deal %d carries no commission: %w", deal.ID, models.ErrStateConflict)
		}
		if !deal.Status.Completed() {
			return fmt.Errorf("deal %d is %s, not drawn: %w", deal.ID, deal.Status, models.ErrStateConflict)
		}

		deal.CommissionReady = true
		if err := tx.SaveDeal(ctx, &deal); err != nil {
			return fmt.Errorf("save deal: %w", err)
		}
		changed = true
		return s.record(ctx, tx, models.EventCommissionReady, deal.LeadID, uintPtr(deal.ID), &actor,
			"Commission ready for payout",
			map[string]any{
				"referrer": deal.CommissionReferrer.StringFixed(2),
				"manager":  deal.CommissionManager.StringFixed(2),
				"office":   deal.CommissionOffice.StringFixed(2),
			})
	})
	if err != nil {
		return models.Deal{}, err
	}

	if changed {
		s.log.Info("commission ready", "lead_id", deal.LeadID, "deal_id", deal.ID, "actor_id", actor.ID)
		s.notify()
	}
	return deal, nil
}

// MarkCommissionPaid records the payout of one leg. Paying a paid leg again
// changes nothing and emits nothing.
func (s *Service) MarkCommissionPaid(ctx context.Context, actor models.User, dealID uint, leg models.Leg) (models.Deal, error) {
	if !access.CanManageCommission(access.CapabilityOf(actor)) {
		return models.Deal{}, fmt.Errorf("mark commission paid: %w", models.ErrForbidden)
	}
	if !leg.Valid() {
		return models.Deal{}, fmt.Errorf("%w: unknown commission leg %q", models.ErrValidation, leg)
	}

	var (
		deal     models.Deal
		lead     models.Lead
		changed  bool
		leadPaid bool
	)
	err := s.store.Transaction(ctx, func(tx Store) error {
		var err error
		deal, lead, err = s.visibleDeal(ctx, tx, actor, dealID, true)
		if err != nil {
			return err
		}
		if deal.LegPaid(leg) {
			return nil
		}
		if !deal.LegAmount(leg).IsPositive() {
			return fmt.Errorf("%w: deal %d has no %s commission", models.ErrValidation, deal.ID, leg)
		}

		deal.MarkLegPaid(leg, s.now())
		if err := tx.SaveDeal(ctx, &deal); err != nil {
			return fmt.Errorf("save deal: %w", err)
		}
		if leadPaid, err = s.sync.onCommissionLegPaid(ctx, tx, &lead, deal); err != nil {
			return fmt.Errorf("sync lead: %w", err)
		}
		changed = true
		return s.record(ctx, tx, models.EventCommissionPaid, deal.LeadID, uintPtr(deal.ID), &actor,
			fmt.Sprintf("Commission paid: %s", leg),
			map[string]any{
				"leg":         leg,
				"amount":      deal.LegAmount(leg).StringFixed(2),
				"fully_paid":  deal.FullyPaid(),
				"lead_status": lead.CommunicationStatus,
			})
	})
	if err != nil {
		return models.Deal{}, err
	}

	if changed {
		s.log.Info("commission paid",
			"lead_id", deal.LeadID,
			"deal_id", deal.ID,
			"actor_id", actor.ID,
			"leg", leg,
			"lead_paid", leadPaid,
		)
		s.notify()
	}
	return deal, nil
}
