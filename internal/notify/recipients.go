// Package notify delivers lead events from the outbox to the people involved.
package notify

import (
	"slices"

	"leadbridge/internal/models"
)

type audience int

const (
	audienceNone audience = iota
	audienceAdvisor
	audienceLead
	audienceStructure
)

// maxRecipients bounds Recipients: referrer, advisor, manager, office owner.
const maxRecipients = 4

func audienceOf(ev models.LeadEvent, lead models.Lead) audience {
	switch ev.EventType {
	case models.EventNoteAdded:
		if ev.Private() {
			return audienceNone
		}
		return audienceLead
	case models.EventCallbackDue:
		return audienceAdvisor
	case models.EventDealCreated, models.EventCommissionReady, models.EventCommissionPaid:
		// Personal records are hidden from the structure.
		if lead.IsPersonalContact || ev.Personal() {
			return audienceLead
		}
		return audienceStructure
	default:
		return audienceLead
	}
}

// Recipients lists the users an event is delivered to. The actor never
// receives its own event and nobody is listed twice.
func Recipients(ev models.LeadEvent, lead models.Lead, chain models.Hierarchy) []uint {
	var ids []uint
	add := func(id *uint) {
		if id == nil || ev.ActedBy(*id) || slices.Contains(ids, *id) {
			return
		}
		ids = append(ids, *id)
	}

	switch audienceOf(ev, lead) {
	case audienceNone:
		return nil
	case audienceAdvisor:
		add(lead.AdvisorID)
	case audienceLead:
		add(&lead.ReferrerID)
		add(lead.AdvisorID)
	case audienceStructure:
		add(&lead.ReferrerID)
		add(lead.AdvisorID)
		add(chain.ManagerID)
		add(chain.OfficeOwnerID)
	}
	return ids
}
