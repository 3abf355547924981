package leads

import (
	"context"

	"leadbridge/internal/models"
)

// synchronizer keeps a lead in step with its deals. It runs inside the
// caller's transaction and never commits on its own.
//
// Lead status follows the most recent deal activity, not the aggregate of all
// deals: a new deal moves a fully paid lead back to DEAL_CREATED, and paying
// out any one deal in full marks the lead COMMISSION_PAID.
type synchronizer struct{}

func (synchronizer) onDealCreated(ctx context.Context, tx Store, lead *models.Lead) error {
	lead.CommunicationStatus = models.StatusDealCreated
	return tx.SaveLead(ctx, lead)
}

// onCommissionLegPaid reports whether the lead moved to COMMISSION_PAID.
func (synchronizer) onCommissionLegPaid(ctx context.Context, tx Store, lead *models.Lead, deal models.Deal) (bool, error) {
	if !deal.FullyPaid() || lead.CommunicationStatus == models.StatusCommissionPaid {
		return false, nil
	}
	lead.CommunicationStatus = models.StatusCommissionPaid
	return true, tx.SaveLead(ctx, lead)
}

// onLeadIdentityChanged copies the lead's client fields to all of its deals.
// A lead without deals is left alone.
func (synchronizer) onLeadIdentityChanged(ctx context.Context, tx Store, lead models.Lead) (int64, error) {
	return tx.SyncDealIdentity(ctx, lead.ID, lead.Identity())
}

// onDealIdentityChanged copies a deal's client fields to the parent lead and
// from there to the sibling deals.
func (sy synchronizer) onDealIdentityChanged(ctx context.Context, tx Store, lead *models.Lead, deal models.Deal) (int64, error) {
	lead.ApplyIdentity(deal.Identity())
	if err := tx.SaveLead(ctx, lead); err != nil {
		return 0, err
	}
	return sy.onLeadIdentityChanged(ctx, tx, *lead)
}
