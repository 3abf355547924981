package access

import (
	"leadbridge/internal/models"
)

func CanScheduleMeeting(c Capability) bool {
	return c.IsAdmin() || c.Role == models.RoleAdvisor
}

func CanManageDeals(c Capability) bool {
	return c.IsAdmin() || c.Role == models.RoleAdvisor
}

func CanManageCommission(c Capability) bool {
	return c.IsAdmin() || c.Role == models.RoleAdvisor
}

// CanCreateLead reports roles that introduce clients.
func CanCreateLead(c Capability) bool {
	return c.IsAdmin() || c.Role == models.RoleAdvisor || c.Role == models.RoleReferrer
}

// CanScheduleCallback allows the assigned advisor, the referrer and the people
// above the referrer to postpone contact with the client.
func CanScheduleCallback(c Capability, lead models.Lead, chain models.Hierarchy) bool {
	switch {
	case c.IsAdmin():
		return true
	case c.Role == models.RoleAdvisor:
		return lead.AdvisedBy(c.UserID)
	case c.Role == models.RoleReferrer:
		return lead.ReferrerID == c.UserID
	case c.Role == models.RoleReferrerManager:
		return chain.ManagerID != nil && *chain.ManagerID == c.UserID
	case c.Role == models.RoleOffice:
		return chain.OfficeOwnerID != nil && *chain.OfficeOwnerID == c.UserID
	}
	return false
}

// CanEditLead covers client details of a visible lead. Managers and offices
// only watch.
func CanEditLead(c Capability, lead models.Lead) bool {
	switch {
	case c.IsAdmin(), c.Role == models.RoleAdvisor:
		return true
	case c.Role == models.RoleReferrer:
		return lead.ReferrerID == c.UserID
	}
	return false
}
