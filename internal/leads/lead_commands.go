package leads

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"leadbridge/internal/access"
	"leadbridge/internal/models"
)

type NewLead struct {
	Identity    models.ClientIdentity
	Description string
	// ReferrerID is taken from the actor for referrers.
	ReferrerID uint
	AdvisorID  *uint
	// Personal marks an advisor's own contact. Referrer and advisor are then
	// the advisor.
	Personal bool
}

func (s *Service) CreateLead(ctx context.Context, actor models.User, in NewLead) (models.Lead, error) {
	c := access.CapabilityOf(actor)
	if !access.CanCreateLead(c) {
		return models.Lead{}, fmt.Errorf("create lead: %w", models.ErrForbidden)
	}

	identity := in.Identity.Normalize()
	if err := identity.Validate(); err != nil {
		return models.Lead{}, err
	}

	lead := models.Lead{
		Description:         strings.TrimSpace(in.Description),
		CommunicationStatus: models.StatusNew,
	}
	lead.ApplyIdentity(identity)

	err := s.store.Transaction(ctx, func(tx Store) error {
		if err := s.assignParties(ctx, tx, c, in, &lead); err != nil {
			return err
		}
		if err := tx.CreateLead(ctx, &lead); err != nil {
			return fmt.Errorf("create lead: %w", err)
		}
		return s.record(ctx, tx, models.EventLeadCreated, lead.ID, nil, &actor,
			fmt.Sprintf("Lead %s created", lead.ClientName()),
			map[string]any{"personal": lead.IsPersonalContact})
	})
	if err != nil {
		return models.Lead{}, err
	}

	s.log.Info("lead created", "lead_id", lead.ID, "actor_id", actor.ID, "personal", lead.IsPersonalContact)
	s.notify()
	return lead, nil
}

func (s *Service) assignParties(ctx context.Context, tx Store, c access.Capability, in NewLead, lead *models.Lead) error {
	switch {
	case c.Role == models.RoleReferrer && !c.IsAdmin():
		if in.Personal {
			return fmt.Errorf("%w: only advisors keep personal contacts", models.ErrValidation)
		}
		lead.ReferrerID = c.UserID
		if in.AdvisorID == nil {
			return nil
		}
		allowed, err := tx.AdvisorsOfReferrer(ctx, c.UserID)
		if err != nil {
			return err
		}
		if len(allowed) > 0 && !slices.Contains(allowed, *in.AdvisorID) {
			return fmt.Errorf("%w: advisor %d is not linked to this referrer", models.ErrValidation, *in.AdvisorID)
		}
		if err := s.requireRole(ctx, tx, *in.AdvisorID, models.RoleAdvisor); err != nil {
			return err
		}
		lead.AdvisorID = uintPtr(*in.AdvisorID)
		return tx.SetLastChosenAdvisor(ctx, c.UserID, *in.AdvisorID)

	case c.Role == models.RoleAdvisor && !c.IsAdmin():
		lead.AdvisorID = uintPtr(c.UserID)
		if in.Personal {
			lead.ReferrerID = c.UserID
			lead.IsPersonalContact = true
			return nil
		}
		if in.ReferrerID == 0 {
			return fmt.Errorf("%w: referrer is required", models.ErrValidation)
		}
		advisors, err := tx.AdvisorsOfReferrer(ctx, in.ReferrerID)
		if err != nil {
			return err
		}
		if !slices.Contains(advisors, c.UserID) {
			return fmt.Errorf("%w: referrer %d is not linked to this advisor", models.ErrValidation, in.ReferrerID)
		}
		lead.ReferrerID = in.ReferrerID
		return nil

	case c.IsAdmin():
		if in.AdvisorID != nil {
			if err := s.requireRole(ctx, tx, *in.AdvisorID, models.RoleAdvisor); err != nil {
				return err
			}
			lead.AdvisorID = uintPtr(*in.AdvisorID)
		}
		if in.Personal {
			if lead.AdvisorID == nil {
				return fmt.Errorf("%w: a personal contact needs an advisor", models.ErrValidation)
			}
			lead.ReferrerID = *lead.AdvisorID
			lead.IsPersonalContact = true
			return nil
		}
		if in.ReferrerID == 0 {
			return fmt.Errorf("%w: referrer is required", models.ErrValidation)
		}
		if _, err := tx.User(ctx, in.ReferrerID); err != nil {
			return referenceError("referrer", in.ReferrerID, err)
		}
		lead.ReferrerID = in.ReferrerID
		return nil
	}
	return fmt.Errorf("create lead: %w", models.ErrForbidden)
}

func (s *Service) requireRole(ctx context.Context, tx Store, userID uint, role models.Role) error {
	u, err := tx.User(ctx, userID)
	if err != nil {
		return referenceError(strings.ToLower(string(role)), userID, err)
	}
	if u.Role != role {
		return fmt.Errorf("%w: user %d is not %s", models.ErrValidation, userID, role)
	}
	return nil
}

// referenceError turns a missing referenced user into bad input.
func referenceError(what string, id uint, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: unknown %s %d", models.ErrValidation, what, id)
	}
	return err
}

// UpdateLeadIdentity edits the client fields of a lead and copies them to
// every deal of the lead.
func (s *Service) UpdateLeadIdentity(ctx context.Context, actor models.User, leadID uint, id models.ClientIdentity) (models.Lead, error) {
	id = id.Normalize()
	if err := id.Validate(); err != nil {
		return models.Lead{}, err
	}

	var (
		lead    models.Lead
		changed bool
	)
	err := s.store.Transaction(ctx, func(tx Store) error {
		var err error
		lead, err = s.visibleLead(ctx, tx, actor, leadID, true)
		if err != nil {
			return err
		}
		if !access.CanEditLead(access.CapabilityOf(actor), lead) {
			return fmt.Errorf("edit lead %d: %w", leadID, models.ErrForbidden)
		}
		if lead.Identity() == id {
			return nil
		}

		before := lead.Identity()
		lead.ApplyIdentity(id)
		if err := tx.SaveLead(ctx, &lead); err != nil {
			return fmt.Errorf("save lead: %w", err)
		}
		synced, err := s.sync.onLeadIdentityChanged(ctx, tx, lead)
		if err != nil {
			return fmt.Errorf("sync deals: %w", err)
		}
		changed = true
		return s.record(ctx, tx, models.EventLeadUpdated, lead.ID, nil, &actor,
			"Client details changed",
			map[string]any{"changes": identityChanges(before, id), "deals_synced": synced})
	})
	if err != nil {
		return models.Lead{}, err
	}

	if changed {
		s.log.Info("lead identity updated", "lead_id", lead.ID, "actor_id", actor.ID)
		s.notify()
	}
	return lead, nil
}

func identityChanges(before, after models.ClientIdentity) []string {
	var fields []string
	if before.FirstName != after.FirstName {
		fields = append(fields, "client_first_name")
	}
	if before.LastName != after.LastName {
		fields = append(fields, "client_last_name")
	}
	if before.Phone != after.Phone {
		fields = append(fields, "client_phone")
	}
	if before.Email != after.Email {
		fields = append(fields, "client_email")
	}
	return fields
}

func (s *Service) AddNote(ctx context.Context, actor models.User, leadID uint, text string, private bool) (models.LeadNote, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.LeadNote{}, fmt.Errorf("%w: note text is empty", models.ErrValidation)
	}

	note := models.LeadNote{
		LeadID:    leadID,
		AuthorID:  uintPtr(actor.ID),
		Text:      text,
		IsPrivate: private,
		CreatedAt: s.now(),
	}
	err := s.store.Transaction(ctx, func(tx Store) error {
		if _, err := s.visibleLead(ctx, tx, actor, leadID, false); err != nil {
			return err
		}
		if err := tx.CreateNote(ctx, &note); err != nil {
			return fmt.Errorf("create note: %w", err)
		}
		return s.record(ctx, tx, models.EventNoteAdded, leadID, nil, &actor, "Note added",
			map[string]any{"note_id": note.ID, "private": private})
	})
	if err != nil {
		return models.LeadNote{}, err
	}

	s.log.Info("note added", "lead_id", leadID, "actor_id", actor.ID, "private", private)
	if !private {
		s.notify()
	}
	return note, nil
}

type Meeting struct {
	At   time.Time
	Note string
}

func (s *Service) ScheduleMeeting(ctx context.Context, actor models.User, leadID uint, m Meeting) (models.Lead, error) {
	if !access.CanScheduleMeeting(access.CapabilityOf(actor)) {
		return models.Lead{}, fmt.Errorf("schedule meeting: %w", models.ErrForbidden)
	}
	if m.At.IsZero() {
		return models.Lead{}, fmt.Errorf("%w: meeting time is required", models.ErrValidation)
	}

	var lead models.Lead
	err := s.store.Transaction(ctx, func(tx Store) error {
		var err error
		lead, err = s.visibleLead(ctx, tx, actor, leadID, true)
		if err != nil {
			return err
		}

		at := m.At
		lead.MeetingScheduled = true
		lead.MeetingAt = &at
		lead.MeetingNote = strings.TrimSpace(m.Note)
		lead.MeetingDone = false
		lead.MeetingDoneAt = nil
		if !dealDriven(lead.CommunicationStatus) {
			lead.CommunicationStatus = models.StatusMeeting
		}
		if err := tx.SaveLead(ctx, &lead); err != nil {
			return fmt.Errorf("save lead: %w", err)
		}
		return s.record(ctx, tx, models.EventMeetingScheduled, lead.ID, nil, &actor,
			"Meeting scheduled for "+at.Format("2006-01-02 15:04"),
			map[string]any{"meeting_at": at, "note": lead.MeetingNote})
	})
	if err != nil {
		return models.Lead{}, err
	}

	s.log.Info("meeting scheduled", "lead_id", lead.ID, "actor_id", actor.ID)
	s.notify()
	return lead, nil
}

// CompleteMeeting closes the scheduled meeting and moves the lead to the
// status agreed with the client.
func (s *Service) CompleteMeeting(ctx context.Context, actor models.User, leadID uint, next models.CommunicationStatus, note string) (models.Lead, error) {
	if !access.CanScheduleMeeting(access.CapabilityOf(actor)) {
		return models.Lead{}, fmt.Errorf("complete meeting: %w", models.ErrForbidden)
	}
	switch next {
	case models.StatusSearchingProperty, models.StatusWaitingForClient, models.StatusFailed:
	default:
		return models.Lead{}, fmt.Errorf("%w: %q is not a meeting outcome", models.ErrValidation, next)
	}

	var lead models.Lead
	err := s.store.Transaction(ctx, func(tx Store) error {
		var err error
		lead, err = s.visibleLead(ctx, tx, actor, leadID, true)
		if err != nil {
			return err
		}
		if !lead.MeetingScheduled || lead.MeetingDone {
			return fmt.Errorf("lead %d has no open meeting: %w", lead.ID, models.ErrStateConflict)
		}

		now := s.now()
		lead.MeetingDone = true
		lead.MeetingDoneAt = &now
		if !dealDriven(lead.CommunicationStatus) {
			lead.CommunicationStatus = next
		}
		if err := tx.SaveLead(ctx, &lead); err != nil {
			return fmt.Errorf("save lead: %w", err)
		}
		if note = strings.TrimSpace(note); note != "" {
			n := models.LeadNote{LeadID: lead.ID, AuthorID: uintPtr(actor.ID), Text: note, CreatedAt: now}
			if err := tx.CreateNote(ctx, &n); err != nil {
				return fmt.Errorf("create note: %w", err)
			}
		}
		return s.record(ctx, tx, models.EventMeetingCompleted, lead.ID, nil, &actor,
			"Meeting completed",
			map[string]any{"outcome": next, "note": note})
	})
	if err != nil {
		return models.Lead{}, err
	}

	s.log.Info("meeting completed", "lead_id", lead.ID, "actor_id", actor.ID, "outcome", next)
	s.notify()
	return lead, nil
}

// CancelMeeting drops the open meeting and marks the lead failed.
func (s *Service) CancelMeeting(ctx context.Context, actor models.User, leadID uint, reason string) (models.Lead, error) {
	if !access.CanScheduleMeeting(access.CapabilityOf(actor)) {
		return models.Lead{}, fmt.Errorf("cancel meeting: %w", models.ErrForbidden)
	}

	var lead models.Lead
	err := s.store.Transaction(ctx, func(tx Store) error {
		var err error
		lead, err = s.visibleLead(ctx, tx, actor, leadID, true)
		if err != nil {
			return err
		}
		if !lead.MeetingScheduled || lead.MeetingDone {
			return fmt.Errorf("lead %d has no open meeting: %w", lead.ID, models.ErrStateConflict)
		}

		lead.MeetingScheduled = false
		lead.MeetingAt = nil
		if !dealDriven(lead.CommunicationStatus) {
			lead.CommunicationStatus = models.StatusFailed
		}
		if err := tx.SaveLead(ctx, &lead); err != nil {
			return fmt.Errorf("save lead: %w", err)
		}
		return s.record(ctx, tx, models.EventLeadUpdated, lead.ID, nil, &actor,
			"Meeting cancelled",
			map[string]any{"meeting_cancelled": true, "reason": strings.TrimSpace(reason)})
	})
	if err != nil {
		return models.Lead{}, err
	}

	s.log.Info("meeting cancelled", "lead_id", lead.ID, "actor_id", actor.ID)
	s.notify()
	return lead, nil
}

// ScheduleCallback parks the lead until the client should be contacted again.
func (s *Service) ScheduleCallback(ctx context.Context, actor models.User, leadID uint, date time.Time, note string) (models.Lead, error) {
	if date.IsZero() {
		return models.Lead{}, fmt.Errorf("%w: callback date is required", models.ErrValidation)
	}
	day := dateOnly(date)
	if day.Before(dateOnly(s.now())) {
		return models.Lead{}, fmt.Errorf("%w: callback date %s is in the past", models.ErrValidation, day.Format("2006-01-02"))
	}

	var lead models.Lead
	err := s.store.Transaction(ctx, func(tx Store) error {
		var err error
		lead, err = s.visibleLead(ctx, tx, actor, leadID, true)
		if err != nil {
			return err
		}
		chain, err := tx.Hierarchy(ctx, lead.ReferrerID)
		if err != nil {
			return err
		}
		if !access.CanScheduleCallback(access.CapabilityOf(actor), lead, chain) {
			return fmt.Errorf("schedule callback: %w", models.ErrForbidden)
		}
		if dealDriven(lead.CommunicationStatus) {
			return fmt.Errorf("lead %d already has a deal: %w", lead.ID, models.ErrStateConflict)
		}

		lead.CommunicationStatus = models.StatusWaitingForClient
		lead.CallbackScheduledDate = &day
		lead.CallbackNote = strings.TrimSpace(note)
		if err := tx.SaveLead(ctx, &lead); err != nil {
			return fmt.Errorf("save lead: %w", err)
		}
		return s.record(ctx, tx, models.EventLeadUpdated, lead.ID, nil, &actor,
			"Callback scheduled for "+day.Format("2006-01-02"),
			map[string]any{"callback_date": day.Format("2006-01-02"), "note": lead.CallbackNote})
	})
	if err != nil {
		return models.Lead{}, err
	}

	s.log.Info("callback scheduled", "lead_id", lead.ID, "actor_id", actor.ID, "date", day.Format("2006-01-02"))
	s.notify()
	return lead, nil
}

// dealDriven statuses are owned by the synchronizer.
func dealDriven(st models.CommunicationStatus) bool {
	return st == models.StatusDealCreated || st == models.StatusCommissionPaid
}
