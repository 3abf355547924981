package leads

import (
	"context"

	"leadbridge/internal/access"
	"leadbridge/internal/models"
)

func (s *Service) ListLeads(ctx context.Context, actor models.User) ([]models.Lead, error) {
	f, err := s.filter(ctx, s.store, actor)
	if err != nil {
		return nil, err
	}
	return s.store.ListLeads(ctx, f)
}

func (s *Service) GetLead(ctx context.Context, actor models.User, id uint) (models.Lead, error) {
	return s.visibleLead(ctx, s.store, actor, id, false)
}

func (s *Service) ListDeals(ctx context.Context, actor models.User) ([]models.Deal, error) {
	f, err := s.filter(ctx, s.store, actor)
	if err != nil {
		return nil, err
	}
	return s.store.ListDeals(ctx, f)
}

func (s *Service) GetDeal(ctx context.Context, actor models.User, id uint) (models.Deal, error) {
	deal, _, err := s.visibleDeal(ctx, s.store, actor, id, false)
	return deal, err
}

// DealsOfLead returns the deals of a visible lead that the actor may see.
func (s *Service) DealsOfLead(ctx context.Context, actor models.User, leadID uint) ([]models.Deal, error) {
	lead, err := s.visibleLead(ctx, s.store, actor, leadID, false)
	if err != nil {
		return nil, err
	}
	f, err := s.filter(ctx, s.store, actor)
	if err != nil {
		return nil, err
	}
	deals, err := s.store.DealsOfLead(ctx, lead.ID)
	if err != nil {
		return nil, err
	}

	visible := deals[:0]
	for _, d := range deals {
		if f.Deal(d, lead) {
			visible = append(visible, d)
		}
	}
	return visible, nil
}

func (s *Service) ListNotes(ctx context.Context, actor models.User, leadID uint) ([]models.LeadNote, error) {
	if _, err := s.visibleLead(ctx, s.store, actor, leadID, false); err != nil {
		return nil, err
	}
	notes, err := s.store.NotesOfLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	c := access.CapabilityOf(actor)
	visible := notes[:0]
	for _, n := range notes {
		if access.NoteVisible(c, n) {
			visible = append(visible, n)
		}
	}
	return visible, nil
}

// History returns the event log of a lead. Entries about private notes are
// shown to their author and to admins only.
func (s *Service) History(ctx context.Context, actor models.User, leadID uint) ([]models.LeadEvent, error) {
	if _, err := s.visibleLead(ctx, s.store, actor, leadID, false); err != nil {
		return nil, err
	}
	events, err := s.store.EventsOfLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	visible := events[:0]
	for _, ev := range events {
		if ev.EventType == models.EventNoteAdded && ev.Private() && !actor.IsAdmin() && !ev.ActedBy(actor.ID) {
			continue
		}
		visible = append(visible, ev)
	}
	return visible, nil
}
