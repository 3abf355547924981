package leads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"leadbridge/internal/commission"
	"leadbridge/internal/models"
)

var (
	admin      = models.User{ID: 1, Role: models.RoleAdmin}
	advisor    = configured(models.User{ID: 10, Role: models.RoleAdvisor})
	advisor2   = configured(models.User{ID: 11, Role: models.RoleAdvisor})
	unpriced   = models.User{ID: 12, Role: models.RoleAdvisor}
	referrer   = models.User{ID: 20, Role: models.RoleReferrer, FirstName: "Petr", LastName: "Referrer"}
	loneRef    = models.User{ID: 21, Role: models.RoleReferrer}
	unpricedRf = models.User{ID: 22, Role: models.RoleReferrer}
	manager    = models.User{ID: 30, Role: models.RoleReferrerManager}
	office     = models.User{ID: 40, Role: models.RoleOffice}
)

func configured(u models.User) models.User {
	u.CommissionTotalPerMillion = decimal.NewFromInt(20000)
	u.CommissionReferrerPct = decimal.NewFromInt(10)
	u.CommissionManagerPct = decimal.NewFromInt(5)
	u.CommissionOfficePct = decimal.NewFromInt(5)
	return u
}

var clock = time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	store    *memStore
	notifier *countingNotifier
	marker   *memMarker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := func() time.Time { return clock }
	store := newMemStore(now)
	for _, u := range []models.User{admin, advisor, advisor2, unpriced, referrer, loneRef, unpricedRf, manager, office} {
		store.data.users[u.ID] = u
	}
	store.data.advisorsOf[referrer.ID] = []uint{advisor.ID}
	store.data.advisorsOf[loneRef.ID] = []uint{advisor2.ID}
	store.data.advisorsOf[unpricedRf.ID] = []uint{unpriced.ID}
	store.data.managerOf[referrer.ID] = manager.ID
	store.data.officeOfManager[manager.ID] = office.ID

	f := &fixture{
		store:    store,
		notifier: &countingNotifier{},
		marker:   &memMarker{keys: map[string]bool{}},
	}
	f.svc = NewService(store, commission.DefaultBankTable(),
		WithNotifier(f.notifier),
		WithMarker(f.marker),
		WithClock(now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return f
}

func (f *fixture) lead(t *testing.T, by models.User, advisorID uint) models.Lead {
	t.Helper()
	in := NewLead{Identity: models.ClientIdentity{FirstName: "Jan", LastName: "Novák", Phone: "605 877 000"}}
	if by.Role == models.RoleReferrer {
		in.AdvisorID = uintPtr(advisorID)
	} else {
		in.ReferrerID = referrer.ID
	}
	lead, err := f.svc.CreateLead(context.Background(), by, in)
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	return lead
}

func (f *fixture) deal(t *testing.T, leadID uint, bank models.Bank, personal bool) models.Deal {
	t.Helper()
	deal, err := f.svc.CreateDeal(context.Background(), advisor, leadID, NewDeal{
		LoanAmount: decimal.NewFromInt(2_000_000),
		Bank:       bank,
		Personal:   personal,
	})
	if err != nil {
		t.Fatalf("CreateDeal: %v", err)
	}
	return deal
}

func (f *fixture) storedLead(t *testing.T, id uint) models.Lead {
	t.Helper()
	l, ok := f.store.data.leads[id]
	if !ok {
		t.Fatalf("lead %d not stored", id)
	}
	return l
}

func assertAmount(t *testing.T, name string, got decimal.Decimal, want int64) {
	t.Helper()
	if !got.Equal(decimal.NewFromInt(want)) {
		t.Errorf("%s = %s, want %d", name, got, want)
	}
}

func TestCreateDealSplitsCommissionAndMovesLead(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	deal := f.deal(t, lead.ID, models.BankCS, false)

	if deal.CommissionModel != commission.FullMinusStructure {
		t.Fatalf("model = %s", deal.CommissionModel)
	}
	assertAmount(t, "referrer", deal.CommissionReferrer, 4000)
	assertAmount(t, "manager", deal.CommissionManager, 2000)
	assertAmount(t, "office", deal.CommissionOffice, 2000)
	assertAmount(t, "residual", deal.AdvisorResidual, 32000)

	if deal.ClientLastName != "Novák" || deal.ClientPhone != "605877000" {
		t.Errorf("deal identity = %+v", deal.Identity())
	}
	if got := f.storedLead(t, lead.ID).CommunicationStatus; got != models.StatusDealCreated {
		t.Errorf("lead status = %s", got)
	}
	if n := len(f.store.eventsOf(models.EventDealCreated)); n != 1 {
		t.Errorf("deal_created events = %d", n)
	}
	if f.notifier.calls != 2 {
		t.Errorf("notifier calls = %d, want 2", f.notifier.calls)
	}
	if f.store.data.lastChosen[referrer.ID] != advisor.ID {
		t.Error("last chosen advisor not remembered")
	}
}

func TestCreateDealUsesBankModel(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)

	deal := f.deal(t, lead.ID, models.BankFio, false)
	if deal.CommissionModel != commission.NetWithStructure {
		t.Fatalf("model = %s", deal.CommissionModel)
	}
	assertAmount(t, "referrer", deal.CommissionReferrer, 4000)
	assertAmount(t, "residual", deal.AdvisorResidual, 36000)

	override, err := f.svc.CreateDeal(context.Background(), advisor, lead.ID, NewDeal{
		LoanAmount:      decimal.NewFromInt(2_000_000),
		Bank:            models.BankFio,
		CommissionModel: commission.FullMinusStructure,
	})
	if err != nil {
		t.Fatalf("CreateDeal: %v", err)
	}
	assertAmount(t, "overridden residual", override.AdvisorResidual, 32000)
}

func TestCreateDealWithoutStructureLeavesLegsEmpty(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, loneRef, advisor2.ID)

	deal, err := f.svc.CreateDeal(context.Background(), advisor2, lead.ID, NewDeal{
		LoanAmount: decimal.NewFromInt(2_000_000),
		Bank:       models.BankKB,
	})
	if err != nil {
		t.Fatalf("CreateDeal: %v", err)
	}
	assertAmount(t, "referrer", deal.CommissionReferrer, 4000)
	assertAmount(t, "manager", deal.CommissionManager, 0)
	assertAmount(t, "office", deal.CommissionOffice, 0)

	_, err = f.svc.MarkCommissionPaid(context.Background(), advisor2, deal.ID, models.LegManager)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("paying an empty leg: err = %v", err)
	}
}

func TestCreateDealValidation(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	ctx := context.Background()

	if _, err := f.svc.CreateDeal(ctx, advisor, lead.ID, NewDeal{LoanAmount: decimal.Zero, Bank: models.BankCS}); !errors.Is(err, models.ErrValidation) || !errors.Is(err, commission.ErrInvalidLoanAmount) {
		t.Errorf("zero loan: err = %v", err)
	}
	if _, err := f.svc.CreateDeal(ctx, advisor, lead.ID, NewDeal{LoanAmount: decimal.NewFromInt(1), Bank: "NOPE"}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("unknown bank: err = %v", err)
	}
	if _, err := f.svc.CreateDeal(ctx, manager, lead.ID, NewDeal{LoanAmount: decimal.NewFromInt(1), Bank: models.BankCS}); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("manager: err = %v", err)
	}
	if _, err := f.svc.CreateDeal(ctx, advisor2, lead.ID, NewDeal{LoanAmount: decimal.NewFromInt(1), Bank: models.BankCS}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("foreign advisor: err = %v", err)
	}

	unpricedLead := f.lead(t, unpricedRf, unpriced.ID)
	_, err := f.svc.CreateDeal(ctx, unpriced, unpricedLead.ID, NewDeal{LoanAmount: decimal.NewFromInt(1), Bank: models.BankCS})
	if !errors.Is(err, models.ErrValidation) || !errors.Is(err, commission.ErrInvalidCommissionConfig) {
		t.Errorf("advisor without rates: err = %v", err)
	}
	if len(f.store.data.deals) != 0 {
		t.Errorf("deals written on failure: %d", len(f.store.data.deals))
	}
	if got := f.storedLead(t, unpricedLead.ID).CommunicationStatus; got != models.StatusNew {
		t.Errorf("failed deal moved lead to %s", got)
	}
}

func TestPersonalDealFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	personalLead, err := f.svc.CreateLead(ctx, advisor, NewLead{
		Identity: models.ClientIdentity{LastName: "Soukromý"},
		Personal: true,
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if !personalLead.IsPersonalContact || personalLead.ReferrerID != advisor.ID {
		t.Fatalf("personal lead = %+v", personalLead)
	}
	d := f.deal(t, personalLead.ID, models.BankCS, false)
	if !d.IsPersonalDeal || !d.CommissionReferrer.IsZero() || !d.CommissionManager.IsZero() || !d.CommissionOffice.IsZero() {
		t.Fatalf("deal on personal contact = %+v", d)
	}
	assertAmount(t, "residual", d.AdvisorResidual, 40000)

	lead := f.lead(t, referrer, advisor.ID)
	if first := f.deal(t, lead.ID, models.BankCS, true); first.IsPersonalDeal {
		t.Error("first regular deal became personal")
	}
	if second := f.deal(t, lead.ID, models.BankCS, true); !second.IsPersonalDeal {
		t.Error("requested personal flag ignored on a later deal")
	}
	if third := f.deal(t, lead.ID, models.BankCS, false); third.IsPersonalDeal {
		t.Error("later deal became personal unasked")
	}
}

func TestPersonalFlagIsImmutable(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	deal := f.deal(t, lead.ID, models.BankCS, false)
	events := len(f.store.data.events)

	yes := true
	_, err := f.svc.UpdateDeal(context.Background(), advisor, deal.ID, DealPatch{IsPersonalDeal: &yes})
	if !errors.Is(err, models.ErrStateConflict) {
		t.Fatalf("err = %v", err)
	}
	if f.store.data.deals[deal.ID].IsPersonalDeal {
		t.Error("personal flag changed")
	}
	if len(f.store.data.events) != events {
		t.Error("event emitted for a rejected update")
	}
}

func payAll(t *testing.T, f *fixture, dealID uint) {
	t.Helper()
	for _, leg := range models.Legs {
		if _, err := f.svc.MarkCommissionPaid(context.Background(), advisor, dealID, leg); err != nil {
			t.Fatalf("MarkCommissionPaid(%s): %v", leg, err)
		}
	}
}

func drawn(t *testing.T, f *fixture, dealID uint) models.Deal {
	t.Helper()
	st := models.DealDrawn
	d, err := f.svc.UpdateDeal(context.Background(), advisor, dealID, DealPatch{Status: &st})
	if err != nil {
		t.Fatalf("UpdateDeal: %v", err)
	}
	return d
}

func TestLeadStatusFollowsMostRecentDeal(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	a := f.deal(t, lead.ID, models.BankCS, false)
	drawn(t, f, a.ID)

	if _, err := f.svc.MarkCommissionReady(context.Background(), advisor, a.ID); err != nil {
		t.Fatalf("MarkCommissionReady: %v", err)
	}
	if _, err := f.svc.MarkCommissionPaid(context.Background(), advisor, a.ID, models.LegReferrer); err != nil {
		t.Fatalf("MarkCommissionPaid: %v", err)
	}
	if got := f.storedLead(t, lead.ID).CommunicationStatus; got != models.StatusDealCreated {
		t.Fatalf("partly paid lead = %s", got)
	}
	payAll(t, f, a.ID)
	if got := f.storedLead(t, lead.ID).CommunicationStatus; got != models.StatusCommissionPaid {
		t.Fatalf("fully paid lead = %s", got)
	}

	b := f.deal(t, lead.ID, models.BankCS, true)
	if !b.IsPersonalDeal {
		t.Fatal("second deal not personal")
	}
	if got := f.storedLead(t, lead.ID).CommunicationStatus; got != models.StatusDealCreated {
		t.Fatalf("lead after new deal = %s, want DEAL_CREATED", got)
	}
	if !f.store.data.deals[a.ID].FullyPaid() {
		t.Fatal("deal A lost its payments")
	}
}

func TestMarkCommissionPaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	deal := f.deal(t, lead.ID, models.BankCS, false)
	ctx := context.Background()

	first, err := f.svc.MarkCommissionPaid(ctx, advisor, deal.ID, models.LegReferrer)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	events, calls := len(f.store.data.events), f.notifier.calls
	status := f.storedLead(t, lead.ID).CommunicationStatus

	second, err := f.svc.MarkCommissionPaid(ctx, advisor, deal.ID, models.LegReferrer)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !second.PaidReferrer || !second.ReferrerPaidAt.Equal(*first.ReferrerPaidAt) {
		t.Errorf("second call changed the leg: %+v", second)
	}
	if len(f.store.data.events) != events || f.notifier.calls != calls {
		t.Error("duplicate payment emitted an event")
	}
	if f.storedLead(t, lead.ID).CommunicationStatus != status {
		t.Error("duplicate payment changed the lead")
	}
	if n := len(f.store.eventsOf(models.EventCommissionPaid)); n != 1 {
		t.Errorf("commission_paid events = %d", n)
	}
}

func TestMarkCommissionPaidRejectsUnknownLeg(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	deal := f.deal(t, lead.ID, models.BankCS, false)

	if _, err := f.svc.MarkCommissionPaid(context.Background(), advisor, deal.ID, "advisor"); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if _, err := f.svc.MarkCommissionPaid(context.Background(), referrer, deal.ID, models.LegReferrer); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("referrer paying: err = %v", err)
	}
}

func TestMarkCommissionReady(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	deal := f.deal(t, lead.ID, models.BankCS, false)
	ctx := context.Background()

	if _, err := f.svc.MarkCommissionReady(ctx, advisor, deal.ID); !errors.Is(err, models.ErrStateConflict) {
		t.Fatalf("undrawn deal: err = %v", err)
	}
	drawn(t, f, deal.ID)
	if _, err := f.svc.MarkCommissionReady(ctx, advisor, deal.ID); err != nil {
		t.Fatalf("MarkCommissionReady: %v", err)
	}
	if _, err := f.svc.MarkCommissionReady(ctx, advisor, deal.ID); err != nil {
		t.Fatalf("second MarkCommissionReady: %v", err)
	}
	if n := len(f.store.eventsOf(models.EventCommissionReady)); n != 1 {
		t.Errorf("commission_ready events = %d", n)
	}
}

func TestLeadIdentityPropagatesToDeals(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	d1 := f.deal(t, lead.ID, models.BankCS, false)
	d2 := f.deal(t, lead.ID, models.BankKB, false)

	updated, err := f.svc.UpdateLeadIdentity(context.Background(), referrer, lead.ID, models.ClientIdentity{
		FirstName: "Jana", LastName: "Nováková", Phone: "+420 777-111-222", Email: "jana@example.com",
	})
	if err != nil {
		t.Fatalf("UpdateLeadIdentity: %v", err)
	}
	if updated.ClientPhone != "+420777111222" {
		t.Errorf("phone = %q", updated.ClientPhone)
	}
	for _, id := range []uint{d1.ID, d2.ID} {
		if got := f.store.data.deals[id].Identity(); got != updated.Identity() {
			t.Errorf("deal %d identity = %+v", id, got)
		}
	}
	if n := len(f.store.eventsOf(models.EventLeadUpdated)); n != 1 {
		t.Errorf("lead_updated events = %d", n)
	}
}

func TestDealIdentityPropagatesToLeadAndSiblings(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	d1 := f.deal(t, lead.ID, models.BankCS, false)
	d2 := f.deal(t, lead.ID, models.BankKB, false)

	id := models.ClientIdentity{FirstName: "Karel", LastName: "Dvořák"}
	if _, err := f.svc.UpdateDeal(context.Background(), advisor, d1.ID, DealPatch{Identity: &id}); err != nil {
		t.Fatalf("UpdateDeal: %v", err)
	}
	if got := f.storedLead(t, lead.ID).Identity(); got != id {
		t.Errorf("lead identity = %+v", got)
	}
	if got := f.store.data.deals[d2.ID].Identity(); got != id {
		t.Errorf("sibling identity = %+v", got)
	}
}

func TestIdentityUpdateWithoutDeals(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)

	_, err := f.svc.UpdateLeadIdentity(context.Background(), advisor, lead.ID, models.ClientIdentity{LastName: "Jiný"})
	if err != nil {
		t.Fatalf("UpdateLeadIdentity: %v", err)
	}
	if f.storedLead(t, lead.ID).ClientLastName != "Jiný" {
		t.Error("lead not updated")
	}
}

func TestIdentityCascadeIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	f.deal(t, lead.ID, models.BankCS, false)
	before := f.storedLead(t, lead.ID)
	events := len(f.store.data.events)

	f.store.failOn = "SyncDealIdentity"
	_, err := f.svc.UpdateLeadIdentity(context.Background(), referrer, lead.ID, models.ClientIdentity{LastName: "Rollback"})
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v", err)
	}
	if got := f.storedLead(t, lead.ID); got.ClientLastName != before.ClientLastName {
		t.Errorf("lead kept partial update: %q", got.ClientLastName)
	}
	if len(f.store.data.events) != events {
		t.Error("event survived the rollback")
	}
}

func TestIdentityEditPermissions(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	id := models.ClientIdentity{LastName: "X"}

	if _, err := f.svc.UpdateLeadIdentity(context.Background(), manager, lead.ID, id); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("manager: err = %v", err)
	}
	if _, err := f.svc.UpdateLeadIdentity(context.Background(), loneRef, lead.ID, id); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("outsider: err = %v", err)
	}
	if _, err := f.svc.UpdateLeadIdentity(context.Background(), referrer, lead.ID, models.ClientIdentity{}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("empty last name: err = %v", err)
	}
}

func TestUpdateDealReprices(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	deal := f.deal(t, lead.ID, models.BankCS, false)
	ctx := context.Background()

	loan := decimal.NewFromInt(1_000_000)
	updated, err := f.svc.UpdateDeal(ctx, advisor, deal.ID, DealPatch{LoanAmount: &loan})
	if err != nil {
		t.Fatalf("UpdateDeal: %v", err)
	}
	assertAmount(t, "referrer", updated.CommissionReferrer, 2000)
	assertAmount(t, "residual", updated.AdvisorResidual, 16000)

	bank := models.BankMBank
	updated, err = f.svc.UpdateDeal(ctx, advisor, deal.ID, DealPatch{Bank: &bank})
	if err != nil {
		t.Fatalf("UpdateDeal bank: %v", err)
	}
	if updated.CommissionModel != commission.NetWithStructure {
		t.Errorf("model after bank change = %s", updated.CommissionModel)
	}
	assertAmount(t, "residual", updated.AdvisorResidual, 18000)

	if _, err := f.svc.MarkCommissionPaid(ctx, advisor, deal.ID, models.LegOffice); err != nil {
		t.Fatalf("MarkCommissionPaid: %v", err)
	}
	loan = decimal.NewFromInt(3_000_000)
	if _, err := f.svc.UpdateDeal(ctx, advisor, deal.ID, DealPatch{LoanAmount: &loan}); !errors.Is(err, models.ErrStateConflict) {
		t.Fatalf("repricing a paid deal: err = %v", err)
	}
	assertAmount(t, "stored referrer", f.store.data.deals[deal.ID].CommissionReferrer, 2000)
}

func TestTerminalDealStatus(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	deal := f.deal(t, lead.ID, models.BankCS, false)

	d := drawn(t, f, deal.ID)
	if d.CompletedAt == nil || !d.CompletedAt.Equal(clock) {
		t.Fatalf("completed at = %v", d.CompletedAt)
	}

	back := models.DealApproval
	_, err := f.svc.UpdateDeal(context.Background(), advisor, deal.ID, DealPatch{Status: &back})
	if !errors.Is(err, models.ErrStateConflict) {
		t.Fatalf("leaving DRAWN: err = %v", err)
	}
	if f.store.data.deals[deal.ID].Status != models.DealDrawn {
		t.Error("status changed")
	}
}

func TestUpdateDealWithoutChangesEmitsNothing(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	deal := f.deal(t, lead.ID, models.BankCS, false)
	events := len(f.store.data.events)

	st := deal.Status
	if _, err := f.svc.UpdateDeal(context.Background(), advisor, deal.ID, DealPatch{Status: &st}); err != nil {
		t.Fatalf("UpdateDeal: %v", err)
	}
	if len(f.store.data.events) != events {
		t.Error("no-op update emitted an event")
	}
}

func TestCreateLeadRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := models.ClientIdentity{LastName: "Klient"}

	tests := []struct {
		name  string
		actor models.User
		in    NewLead
		want  error
	}{
		{"referrer picks unlinked advisor", referrer, NewLead{Identity: id, AdvisorID: uintPtr(advisor2.ID)}, models.ErrValidation},
		{"referrer personal", referrer, NewLead{Identity: id, Personal: true}, models.ErrValidation},
		{"advisor for unlinked referrer", advisor, NewLead{Identity: id, ReferrerID: loneRef.ID}, models.ErrValidation},
		{"advisor without referrer", advisor, NewLead{Identity: id}, models.ErrValidation},
		{"manager", manager, NewLead{Identity: id}, models.ErrForbidden},
		{"admin with unknown referrer", admin, NewLead{Identity: id, ReferrerID: 999}, models.ErrValidation},
		{"admin picks a referrer as advisor", admin, NewLead{Identity: id, ReferrerID: referrer.ID, AdvisorID: uintPtr(loneRef.ID)}, models.ErrValidation},
		{"missing last name", referrer, NewLead{}, models.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateLead(ctx, tt.actor, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(f.store.data.leads) != 0 {
		t.Errorf("leads written: %d", len(f.store.data.leads))
	}

	lead, err := f.svc.CreateLead(ctx, admin, NewLead{Identity: id, ReferrerID: referrer.ID, AdvisorID: uintPtr(advisor.ID)})
	if err != nil {
		t.Fatalf("admin CreateLead: %v", err)
	}
	if lead.CommunicationStatus != models.StatusNew || lead.ReferrerID != referrer.ID || !lead.AdvisedBy(advisor.ID) {
		t.Errorf("lead = %+v", lead)
	}
}

func TestVisibilityOnReads(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	f.deal(t, lead.ID, models.BankCS, false)
	second := f.deal(t, lead.ID, models.BankCS, true)
	ctx := context.Background()

	if _, err := f.svc.GetLead(ctx, loneRef, lead.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("outsider GetLead: err = %v", err)
	}
	if _, err := f.svc.GetLead(ctx, manager, lead.ID); err != nil {
		t.Errorf("manager GetLead: %v", err)
	}
	if _, err := f.svc.GetDeal(ctx, manager, second.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("manager sees personal deal: err = %v", err)
	}

	deals, err := f.svc.DealsOfLead(ctx, office, lead.ID)
	if err != nil {
		t.Fatalf("DealsOfLead: %v", err)
	}
	if len(deals) != 1 || deals[0].IsPersonalDeal {
		t.Errorf("office deals = %+v", deals)
	}
	all, err := f.svc.ListDeals(ctx, referrer)
	if err != nil || len(all) != 2 {
		t.Errorf("referrer deals = %d, %v", len(all), err)
	}
	leads, err := f.svc.ListLeads(ctx, advisor2)
	if err != nil || len(leads) != 0 {
		t.Errorf("advisor2 leads = %d, %v", len(leads), err)
	}
}

func TestNotePrivacy(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	ctx := context.Background()

	calls := f.notifier.calls
	if _, err := f.svc.AddNote(ctx, advisor, lead.ID, "interní poznámka", true); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if f.notifier.calls != calls {
		t.Error("private note triggered notification")
	}
	if _, err := f.svc.AddNote(ctx, referrer, lead.ID, "veřejná", false); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if _, err := f.svc.AddNote(ctx, referrer, lead.ID, "   ", false); !errors.Is(err, models.ErrValidation) {
		t.Errorf("empty note: err = %v", err)
	}

	counts := map[string]int{}
	for name, u := range map[string]models.User{"advisor": advisor, "referrer": referrer, "admin": admin} {
		notes, err := f.svc.ListNotes(ctx, u, lead.ID)
		if err != nil {
			t.Fatalf("ListNotes(%s): %v", name, err)
		}
		counts[name] = len(notes)
	}
	if counts["advisor"] != 2 || counts["referrer"] != 1 || counts["admin"] != 2 {
		t.Errorf("visible notes = %v", counts)
	}

	history, err := f.svc.History(ctx, referrer, lead.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	for _, ev := range history {
		if ev.EventType == models.EventNoteAdded && ev.ActedBy(advisor.ID) {
			t.Error("referrer sees the private note event")
		}
	}
}

func TestMeetingFlow(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	ctx := context.Background()
	at := clock.Add(48 * time.Hour)

	if _, err := f.svc.ScheduleMeeting(ctx, referrer, lead.ID, Meeting{At: at}); !errors.Is(err, models.ErrForbidden) {
		t.Fatalf("referrer scheduling: err = %v", err)
	}
	if _, err := f.svc.CompleteMeeting(ctx, advisor, lead.ID, models.StatusSearchingProperty, ""); !errors.Is(err, models.ErrStateConflict) {
		t.Fatalf("completing unscheduled meeting: err = %v", err)
	}

	l, err := f.svc.ScheduleMeeting(ctx, advisor, lead.ID, Meeting{At: at, Note: "kavárna"})
	if err != nil {
		t.Fatalf("ScheduleMeeting: %v", err)
	}
	if l.CommunicationStatus != models.StatusMeeting || !l.MeetingScheduled || !l.MeetingAt.Equal(at) {
		t.Fatalf("lead = %+v", l)
	}

	if _, err := f.svc.CompleteMeeting(ctx, advisor, lead.ID, models.StatusDealCreated, ""); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("deal status as outcome: err = %v", err)
	}
	l, err = f.svc.CompleteMeeting(ctx, advisor, lead.ID, models.StatusSearchingProperty, "hledají byt")
	if err != nil {
		t.Fatalf("CompleteMeeting: %v", err)
	}
	if !l.MeetingDone || l.CommunicationStatus != models.StatusSearchingProperty {
		t.Fatalf("lead = %+v", l)
	}
	if _, err := f.svc.CompleteMeeting(ctx, advisor, lead.ID, models.StatusFailed, ""); !errors.Is(err, models.ErrStateConflict) {
		t.Fatalf("completing twice: err = %v", err)
	}
	if len(f.store.data.notes) != 1 {
		t.Errorf("outcome note missing")
	}
}

func TestCancelMeeting(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	ctx := context.Background()

	if _, err := f.svc.ScheduleMeeting(ctx, admin, lead.ID, Meeting{At: clock}); err != nil {
		t.Fatalf("ScheduleMeeting: %v", err)
	}
	l, err := f.svc.CancelMeeting(ctx, advisor, lead.ID, "klient nemá zájem")
	if err != nil {
		t.Fatalf("CancelMeeting: %v", err)
	}
	if l.MeetingScheduled || l.CommunicationStatus != models.StatusFailed {
		t.Fatalf("lead = %+v", l)
	}
}

func TestProcessDueCallbacks(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	ctx := context.Background()
	due := clock.AddDate(0, 0, 2)

	if _, err := f.svc.ScheduleCallback(ctx, referrer, lead.ID, clock.AddDate(0, 0, -1), ""); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("past date: err = %v", err)
	}
	if _, err := f.svc.ScheduleCallback(ctx, loneRef, lead.ID, due, ""); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("outsider: err = %v", err)
	}
	l, err := f.svc.ScheduleCallback(ctx, manager, lead.ID, due, "po dovolené")
	if err != nil {
		t.Fatalf("ScheduleCallback: %v", err)
	}
	if l.CommunicationStatus != models.StatusWaitingForClient {
		t.Fatalf("status = %s", l.CommunicationStatus)
	}

	if n, err := f.svc.ProcessDueCallbacks(ctx, clock); err != nil || n != 0 {
		t.Fatalf("early run: %d, %v", n, err)
	}
	n, err := f.svc.ProcessDueCallbacks(ctx, due)
	if err != nil || n != 1 {
		t.Fatalf("due run: %d, %v", n, err)
	}
	got := f.storedLead(t, lead.ID)
	if got.CommunicationStatus != models.StatusNew || got.CallbackScheduledDate != nil || got.CallbackNote != "" {
		t.Fatalf("lead after callback = %+v", got)
	}
	evs := f.store.eventsOf(models.EventCallbackDue)
	if len(evs) != 1 || evs[0].ActorUserID != nil || evs[0].PayloadMap()["note"] != "po dovolené" {
		t.Fatalf("callback events = %+v", evs)
	}

	if n, err := f.svc.ProcessDueCallbacks(ctx, due.AddDate(0, 0, 1)); err != nil || n != 0 {
		t.Fatalf("repeat run: %d, %v", n, err)
	}
}

func TestProcessDueCallbacksHonoursMarker(t *testing.T) {
	f := newFixture(t)
	lead := f.lead(t, referrer, advisor.ID)
	ctx := context.Background()

	if _, err := f.svc.ScheduleCallback(ctx, advisor, lead.ID, clock, ""); err != nil {
		t.Fatalf("ScheduleCallback: %v", err)
	}
	f.marker.keys[fmt.Sprintf("callback_due:%d:2026-10-15", lead.ID)] = true

	if n, err := f.svc.ProcessDueCallbacks(ctx, clock); err != nil || n != 0 {
		t.Fatalf("claimed elsewhere: %d, %v", n, err)
	}
	if f.storedLead(t, lead.ID).CallbackScheduledDate == nil {
		t.Fatal("lead processed despite marker")
	}

	f.marker.keys = map[string]bool{}
	f.store.failOn = "AppendEvent"
	if _, err := f.svc.ProcessDueCallbacks(ctx, clock); !errors.Is(err, errInjected) {
		t.Fatalf("failing run: err = %v", err)
	}
	if len(f.marker.keys) != 0 {
		t.Fatal("marker kept after rollback")
	}

	f.store.failOn = ""
	f.marker.err = errors.New("redis down")
	if n, err := f.svc.ProcessDueCallbacks(ctx, clock); err != nil || n != 1 {
		t.Fatalf("marker outage: %d, %v", n, err)
	}
}
