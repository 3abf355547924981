package leads

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"leadbridge/internal/access"
	"leadbridge/internal/models"
)

var errInjected = errors.New("injected failure")

type memData struct {
	users           map[uint]models.User
	advisorsOf      map[uint][]uint
	managerOf       map[uint]uint
	officeOfManager map[uint]uint
	lastChosen      map[uint]uint
	leads           map[uint]models.Lead
	deals           map[uint]models.Deal
	notes           []models.LeadNote
	events          []models.LeadEvent
	nextID          uint
}

func (d *memData) clone() *memData {
	c := *d
	c.users = maps.Clone(d.users)
	c.advisorsOf = maps.Clone(d.advisorsOf)
	c.managerOf = maps.Clone(d.managerOf)
	c.officeOfManager = maps.Clone(d.officeOfManager)
	c.lastChosen = maps.Clone(d.lastChosen)
	c.leads = maps.Clone(d.leads)
	c.deals = maps.Clone(d.deals)
	c.notes = slices.Clone(d.notes)
	c.events = slices.Clone(d.events)
	return &c
}

// memStore is an in-memory Store. A failed transaction restores the state
// from before it started.
type memStore struct {
	data   *memData
	failOn string
	now    func() time.Time
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now: now,
		data: &memData{
			users:           map[uint]models.User{},
			advisorsOf:      map[uint][]uint{},
			managerOf:       map[uint]uint{},
			officeOfManager: map[uint]uint{},
			lastChosen:      map[uint]uint{},
			leads:           map[uint]models.Lead{},
			deals:           map[uint]models.Deal{},
			nextID:          1000,
		},
	}
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return fmt.Errorf("%s: %w", op, errInjected)
	}
	return nil
}

func (s *memStore) id() uint {
	s.data.nextID++
	return s.data.nextID
}

func (s *memStore) Transaction(_ context.Context, fn func(tx Store) error) error {
	snapshot := s.data.clone()
	if err := fn(s); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *memStore) ReferrersOfAdvisor(_ context.Context, advisorID uint) ([]uint, error) {
	var out []uint
	for ref, advisors := range s.data.advisorsOf {
		if slices.Contains(advisors, advisorID) {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *memStore) ReferrersManagedBy(_ context.Context, managerID uint) ([]uint, error) {
	var out []uint
	for ref, m := range s.data.managerOf {
		if m == managerID {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *memStore) ReferrersUnderOffice(_ context.Context, ownerID uint) ([]uint, error) {
	var out []uint
	for ref, m := range s.data.managerOf {
		if m == ownerID || s.data.officeOfManager[m] == ownerID {
			out = append(out, ref)
		}
	}
	return out, nil
}

func (s *memStore) User(_ context.Context, id uint) (models.User, error) {
	u, ok := s.data.users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return u, nil
}

func (s *memStore) Hierarchy(_ context.Context, referrerID uint) (models.Hierarchy, error) {
	h := models.Hierarchy{ReferrerID: referrerID}
	m, ok := s.data.managerOf[referrerID]
	if !ok {
		return h, nil
	}
	if s.data.users[m].Role == models.RoleOffice {
		h.OfficeOwnerID = uintPtr(m)
		return h, nil
	}
	h.ManagerID = uintPtr(m)
	if owner, ok := s.data.officeOfManager[m]; ok {
		h.OfficeOwnerID = uintPtr(owner)
	}
	return h, nil
}

func (s *memStore) AdvisorsOfReferrer(_ context.Context, referrerID uint) ([]uint, error) {
	return slices.Clone(s.data.advisorsOf[referrerID]), nil
}

func (s *memStore) SetLastChosenAdvisor(_ context.Context, referrerID, advisorID uint) error {
	s.data.lastChosen[referrerID] = advisorID
	return nil
}

func (s *memStore) Lead(_ context.Context, id uint, _ bool) (models.Lead, error) {
	l, ok := s.data.leads[id]
	if !ok {
		return models.Lead{}, fmt.Errorf("lead %d: %w", id, models.ErrNotFound)
	}
	return l, nil
}

func (s *memStore) CreateLead(_ context.Context, lead *models.Lead) error {
	if err := s.fail("CreateLead"); err != nil {
		return err
	}
	lead.ID = s.id()
	lead.CreatedAt = s.now()
	lead.UpdatedAt = lead.CreatedAt
	s.data.leads[lead.ID] = *lead
	return nil
}

func (s *memStore) SaveLead(_ context.Context, lead *models.Lead) error {
	if err := s.fail("SaveLead"); err != nil {
		return err
	}
	lead.UpdatedAt = s.now()
	s.data.leads[lead.ID] = *lead
	return nil
}

func (s *memStore) ListLeads(_ context.Context, f access.Filter) ([]models.Lead, error) {
	var out []models.Lead
	for _, l := range s.data.leads {
		if f.Lead(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) DueCallbacks(_ context.Context, asOf time.Time) ([]uint, error) {
	var out []uint
	for _, l := range s.data.leads {
		if l.CallbackScheduledDate != nil && !l.CallbackScheduledDate.After(asOf) && !l.CommunicationStatus.Closed() {
			out = append(out, l.ID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *memStore) Deal(_ context.Context, id uint, _ bool) (models.Deal, error) {
	d, ok := s.data.deals[id]
	if !ok {
		return models.Deal{}, fmt.Errorf("deal %d: %w", id, models.ErrNotFound)
	}
	return d, nil
}

func (s *memStore) DealsOfLead(_ context.Context, leadID uint) ([]models.Deal, error) {
	var out []models.Deal
	for _, d := range s.data.deals {
		if d.LeadID == leadID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateDeal(_ context.Context, deal *models.Deal) error {
	if err := s.fail("CreateDeal"); err != nil {
		return err
	}
	deal.ID = s.id()
	deal.CreatedAt = s.now()
	deal.UpdatedAt = deal.CreatedAt
	s.data.deals[deal.ID] = *deal
	return nil
}

func (s *memStore) SaveDeal(_ context.Context, deal *models.Deal) error {
	if err := s.fail("SaveDeal"); err != nil {
		return err
	}
	deal.UpdatedAt = s.now()
	s.data.deals[deal.ID] = *deal
	return nil
}

func (s *memStore) ListDeals(_ context.Context, f access.Filter) ([]models.Deal, error) {
	var out []models.Deal
	for _, d := range s.data.deals {
		if f.Deal(d, s.data.leads[d.LeadID]) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SyncDealIdentity(_ context.Context, leadID uint, id models.ClientIdentity) (int64, error) {
	if err := s.fail("SyncDealIdentity"); err != nil {
		return 0, err
	}
	var n int64
	for key, d := range s.data.deals {
		if d.LeadID == leadID {
			d.ApplyIdentity(id)
			s.data.deals[key] = d
			n++
		}
	}
	return n, nil
}

func (s *memStore) CreateNote(_ context.Context, note *models.LeadNote) error {
	note.ID = s.id()
	s.data.notes = append(s.data.notes, *note)
	return nil
}

func (s *memStore) NotesOfLead(_ context.Context, leadID uint) ([]models.LeadNote, error) {
	var out []models.LeadNote
	for _, n := range s.data.notes {
		if n.LeadID == leadID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *memStore) AppendEvent(_ context.Context, ev *models.LeadEvent) error {
	if err := s.fail("AppendEvent"); err != nil {
		return err
	}
	s.data.events = append(s.data.events, *ev)
	return nil
}

func (s *memStore) EventsOfLead(_ context.Context, leadID uint) ([]models.LeadEvent, error) {
	var out []models.LeadEvent
	for _, ev := range s.data.events {
		if ev.LeadID == leadID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memStore) eventsOf(t models.EventType) []models.LeadEvent {
	var out []models.LeadEvent
	for _, ev := range s.data.events {
		if ev.EventType == t {
			out = append(out, ev)
		}
	}
	return out
}

type countingNotifier struct{ calls int }

func (n *countingNotifier) Notify() { n.calls++ }

type memMarker struct {
	keys map[string]bool
	err  error
}

func (m *memMarker) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memMarker) Release(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}
