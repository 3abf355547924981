// Package access decides which leads, deals and notes a user may see.
//
// Resolve turns a user into a Filter once per request. The Filter answers the
// same question two ways: as a per-record predicate and as gorm scopes, and
// the two must agree.
package access

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"leadbridge/internal/models"
)

// Capability is everything the visibility rules look at.
type Capability struct {
	UserID      uint
	Role        models.Role
	Superuser   bool
	AdminAccess bool
}

func CapabilityOf(u models.User) Capability {
	return Capability{
		UserID:      u.ID,
		Role:        u.Role,
		Superuser:   u.IsSuperuser,
		AdminAccess: u.HasAdminAccess,
	}
}

func (c Capability) IsAdmin() bool {
	return c.Superuser || c.Role == models.RoleAdmin
}

// Directory answers hierarchy lookups.
type Directory interface {
	// ReferrersOfAdvisor returns referrers whose profile lists the advisor.
	ReferrersOfAdvisor(ctx context.Context, advisorID uint) ([]uint, error)
	// ReferrersManagedBy returns referrers whose profile manager is the user.
	ReferrersManagedBy(ctx context.Context, managerID uint) ([]uint, error)
	// ReferrersUnderOffice returns referrers managed by a manager of an office
	// the user owns, or managed by the owner directly.
	ReferrersUnderOffice(ctx context.Context, ownerID uint) ([]uint, error)
}

type idSet map[uint]struct{}

func newIDSet(ids ...uint) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) has(id uint) bool {
	_, ok := s[id]
	return ok
}

func (s idSet) hasPtr(id *uint) bool {
	return id != nil && s.has(*id)
}

func (s idSet) sorted() []uint {
	out := make([]uint, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Filter is a resolved visibility rule. The zero value sees nothing.
type Filter struct {
	all bool

	advisors         idSet
	referrers        idSet
	personalAdvisors idSet

	excludePersonalContacts bool
	excludePersonalDeals    bool
}

func All() Filter {
	return Filter{all: true}
}

// Resolve builds the filter for c.
func Resolve(ctx context.Context, dir Directory, c Capability) (Filter, error) {
	if c.IsAdmin() {
		return All(), nil
	}

	switch c.Role {
	case models.RoleAdvisor:
		f := Filter{advisors: newIDSet(c.UserID)}
		if c.AdminAccess {
			subs, err := dir.ReferrersOfAdvisor(ctx, c.UserID)
			if err != nil {
				return Filter{}, fmt.Errorf("resolve advisor scope: %w", err)
			}
			// Subordinates may be advisors themselves; their personal
			// contacts are visible too.
			f.referrers = newIDSet(subs...)
			f.personalAdvisors = newIDSet(subs...)
		}
		return f, nil

	case models.RoleReferrer:
		return Filter{referrers: newIDSet(c.UserID)}, nil

	case models.RoleReferrerManager:
		team, err := dir.ReferrersManagedBy(ctx, c.UserID)
		if err != nil {
			return Filter{}, fmt.Errorf("resolve manager scope: %w", err)
		}
		return Filter{
			referrers:               newIDSet(append(team, c.UserID)...),
			excludePersonalContacts: true,
			excludePersonalDeals:    true,
		}, nil

	case models.RoleOffice:
		tree, err := dir.ReferrersUnderOffice(ctx, c.UserID)
		if err != nil {
			return Filter{}, fmt.Errorf("resolve office scope: %w", err)
		}
		return Filter{
			referrers:               newIDSet(append(tree, c.UserID)...),
			excludePersonalContacts: true,
			excludePersonalDeals:    true,
		}, nil
	}
	return Filter{}, nil
}

func (f Filter) SeesAll() bool {
	return f.all
}

// ExcludesPersonal reports that personal records are hidden.
func (f Filter) ExcludesPersonal() bool {
	return f.excludePersonalContacts || f.excludePersonalDeals
}

// ReferrerIDs lists the referrers whose leads are visible by referral.
func (f Filter) ReferrerIDs() []uint {
	return f.referrers.sorted()
}

func (f Filter) Lead(l models.Lead) bool {
	if f.all {
		return true
	}
	if f.excludePersonalContacts && l.IsPersonalContact {
		return false
	}
	return f.advisors.hasPtr(l.AdvisorID) ||
		f.referrers.has(l.ReferrerID) ||
		(l.IsPersonalContact && f.personalAdvisors.hasPtr(l.AdvisorID))
}

// Deal follows the visibility of the parent lead.
func (f Filter) Deal(d models.Deal, parent models.Lead) bool {
	if d.LeadID != parent.ID || !f.Lead(parent) {
		return false
	}
	return !(f.excludePersonalDeals && d.IsPersonalDeal)
}

// Leads scopes a query on the leads table.
func (f Filter) Leads() func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		return f.applyLeads(tx)
	}
}

// Deals scopes a query on the deals table, joining the parent lead.
func (f Filter) Deals() func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if f.all {
			return tx
		}
		tx = f.applyLeads(tx.Joins("JOIN leads ON leads.id = deals.lead_id"))
		if f.excludePersonalDeals {
			tx = tx.Where("deals.is_personal_deal = ?", false)
		}
		return tx
	}
}

func (f Filter) applyLeads(tx *gorm.DB) *gorm.DB {
	if f.all {
		return tx
	}

	var (
		conds []string
		args  []any
	)
	if len(f.advisors) > 0 {
		conds = append(conds, "leads.advisor_id IN ?")
		args = append(args, f.advisors.sorted())
	}
	if len(f.referrers) > 0 {
		conds = append(conds, "leads.referrer_id IN ?")
		args = append(args, f.referrers.sorted())
	}
	if len(f.personalAdvisors) > 0 {
		conds = append(conds, "(leads.is_personal_contact = ? AND leads.advisor_id IN ?)")
		args = append(args, true, f.personalAdvisors.sorted())
	}
	if len(conds) == 0 {
		return tx.Where("1 = 0")
	}

	tx = tx.Where("("+strings.Join(conds, " OR ")+")", args...)
	if f.excludePersonalContacts {
		tx = tx.Where("leads.is_personal_contact = ?", false)
	}
	return tx
}

// NoteVisible layers note privacy on top of lead visibility, which the caller
// has already established.
func NoteVisible(c Capability, n models.LeadNote) bool {
	return !n.IsPrivate || n.AuthoredBy(c.UserID) || c.IsAdmin()
}
