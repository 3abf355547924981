// Package stats aggregates lead and deal counters for dashboards.
//
// Deal counters count leads, not deals: a lead with three drawn loans is one
// completed client. Personal contacts and personal deals stay out of the
// standard counters; advisors get them in a separate pair.
package stats

import (
	"sort"
	"time"

	"leadbridge/internal/access"
	"leadbridge/internal/models"
)

type Counters struct {
	Contacts          int `json:"contacts"`
	MeetingsScheduled int `json:"meetings_scheduled"`
	MeetingsCompleted int `json:"meetings_completed"`
	DealsCreated      int `json:"deals_created"`
	DealsCompleted    int `json:"deals_completed"`
}

type PersonalCounters struct {
	DealsCreated   int `json:"deals_created_personal"`
	DealsCompleted int `json:"deals_completed_personal"`
}

type MemberCounters struct {
	UserID uint `json:"user_id"`
	Counters
}

type Report struct {
	Window   Window            `json:"window"`
	Role     models.Role       `json:"role"`
	Own      Counters          `json:"own"`
	Personal *PersonalCounters `json:"personal,omitempty"`
	Team     *Counters         `json:"team,omitempty"`
	Members  []MemberCounters  `json:"members,omitempty"`
}

func meetingTime(l models.Lead) time.Time {
	if l.MeetingAt != nil {
		return *l.MeetingAt
	}
	return l.CreatedAt
}

func meetingDoneTime(l models.Lead) time.Time {
	if l.MeetingDoneAt != nil {
		return *l.MeetingDoneAt
	}
	return meetingTime(l)
}

func completedTime(d models.Deal) time.Time {
	if d.CompletedAt != nil {
		return *d.CompletedAt
	}
	return d.UpdatedAt
}

// Count computes the standard counters over leads and their deals.
func Count(leads []models.Lead, deals []models.Deal, w Window) Counters {
	var c Counters
	counted := make(map[uint]bool, len(leads))
	for _, l := range leads {
		if l.IsPersonalContact {
			continue
		}
		counted[l.ID] = true
		if w.Contains(l.CreatedAt) {
			c.Contacts++
		}
		if l.MeetingScheduled && w.Contains(meetingTime(l)) {
			c.MeetingsScheduled++
		}
		if l.MeetingDone && w.Contains(meetingDoneTime(l)) {
			c.MeetingsCompleted++
		}
	}

	created := map[uint]bool{}
	completed := map[uint]bool{}
	for _, d := range deals {
		if d.IsPersonalDeal || !counted[d.LeadID] {
			continue
		}
		if w.Contains(d.CreatedAt) {
			created[d.LeadID] = true
		}
		if d.Status.Completed() && w.Contains(completedTime(d)) {
			completed[d.LeadID] = true
		}
	}
	c.DealsCreated = len(created)
	c.DealsCompleted = len(completed)
	return c
}

// CountPersonal counts the advisor's own personal business: deals on their
// personal contacts and deals flagged personal on any lead they advise.
func CountPersonal(leads []models.Lead, deals []models.Deal, advisorID uint, w Window) PersonalCounters {
	byID := make(map[uint]models.Lead, len(leads))
	for _, l := range leads {
		byID[l.ID] = l
	}

	created := map[uint]bool{}
	completed := map[uint]bool{}
	for _, d := range deals {
		l, ok := byID[d.LeadID]
		if !ok || !l.AdvisedBy(advisorID) {
			continue
		}
		if !l.IsPersonalContact && !d.IsPersonalDeal {
			continue
		}
		if w.Contains(d.CreatedAt) {
			created[d.LeadID] = true
		}
		if d.Status.Completed() && w.Contains(completedTime(d)) {
			completed[d.LeadID] = true
		}
	}
	return PersonalCounters{DealsCreated: len(created), DealsCompleted: len(completed)}
}

// Build assembles the report for actor from records already loaded through
// the actor's filter. Records outside the filter are dropped again before
// counting. team lists the referrers a manager or office rolls up.
func Build(actor models.User, f access.Filter, leads []models.Lead, deals []models.Deal, team []uint, w Window) Report {
	leads, deals = restrict(f, leads, deals)
	r := Report{Window: w, Role: actor.Role}

	switch {
	case actor.IsAdmin():
		r.Own = Count(leads, deals, w)
		r.Members = members(leads, deals, w, func(l models.Lead) (uint, bool) {
			if l.AdvisorID == nil {
				return 0, false
			}
			return *l.AdvisorID, true
		})

	case actor.Role == models.RoleAdvisor:
		own := selectLeads(leads, func(l models.Lead) bool { return l.AdvisedBy(actor.ID) })
		r.Own = Count(own, deals, w)
		p := CountPersonal(leads, deals, actor.ID, w)
		r.Personal = &p

	case actor.Role == models.RoleReferrerManager, actor.Role == models.RoleOffice:
		own := selectLeads(leads, func(l models.Lead) bool { return l.ReferrerID == actor.ID })
		r.Own = Count(own, deals, w)

		inTeam := make(map[uint]bool, len(team))
		for _, id := range team {
			if id != actor.ID {
				inTeam[id] = true
			}
		}
		teamLeads := selectLeads(leads, func(l models.Lead) bool { return inTeam[l.ReferrerID] })
		tc := Count(teamLeads, deals, w)
		r.Team = &tc
		r.Members = members(teamLeads, deals, w, func(l models.Lead) (uint, bool) {
			return l.ReferrerID, true
		})

	default:
		own := selectLeads(leads, func(l models.Lead) bool { return l.ReferrerID == actor.ID })
		r.Own = Count(own, deals, w)
	}
	return r
}

func restrict(f access.Filter, leads []models.Lead, deals []models.Deal) ([]models.Lead, []models.Deal) {
	byID := make(map[uint]models.Lead, len(leads))
	var keptLeads []models.Lead
	for _, l := range leads {
		if f.Lead(l) {
			byID[l.ID] = l
			keptLeads = append(keptLeads, l)
		}
	}
	var keptDeals []models.Deal
	for _, d := range deals {
		if l, ok := byID[d.LeadID]; ok && f.Deal(d, l) {
			keptDeals = append(keptDeals, d)
		}
	}
	return keptLeads, keptDeals
}

func selectLeads(leads []models.Lead, keep func(models.Lead) bool) []models.Lead {
	var out []models.Lead
	for _, l := range leads {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func members(leads []models.Lead, deals []models.Deal, w Window, key func(models.Lead) (uint, bool)) []MemberCounters {
	groups := map[uint][]models.Lead{}
	for _, l := range leads {
		if id, ok := key(l); ok {
			groups[id] = append(groups[id], l)
		}
	}

	out := make([]MemberCounters, 0, len(groups))
	for id, group := range groups {
		out = append(out, MemberCounters{UserID: id, Counters: Count(group, deals, w)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
